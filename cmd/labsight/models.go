package labsight

import (
	"encoding/json"
	"os"

	"github.com/kamilpajak/labsight/internal/credentials"
	"github.com/spf13/cobra"
)

var modelsJSON bool

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List available models",
	Long: `List the model catalogue. A model is available when its provider's
API key is set in the environment (ANTHROPIC_API_KEY, OPENAI_API_KEY,
GOOGLE_API_KEY, HF_TOKEN).`,
	Args: cobra.NoArgs,
	RunE: runModels,
}

func init() {
	modelsCmd.Flags().BoolVar(&modelsJSON, "json", false, "Output as JSON")
}

func runModels(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	reg, err := loadRegistry(cfg)
	if err != nil {
		return err
	}

	listings := reg.List(credentials.FromEnvironment(os.Getenv))
	if modelsJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(listings)
	}
	printModelList(os.Stdout, listings, reg.DefaultVisionModel())
	return nil
}
