package labsight

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/briandowns/spinner"
	"github.com/kamilpajak/labsight/internal/core"
	"github.com/kamilpajak/labsight/internal/credentials"
	"github.com/kamilpajak/labsight/internal/logging"
	"github.com/kamilpajak/labsight/internal/pipeline"
	"github.com/kamilpajak/labsight/pkg/models"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	analyzeModel       string
	analyzeGuidance    string
	analyzeContext     string
	analyzeJSON        bool
	analyzeConcurrency int
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file>...",
	Short: "Analyze one or more lab reports",
	Long: `Extract lab values from PDF or image reports and interpret them.

Examples:
  labsight analyze ./cbc.pdf --model claude-sonnet-4
  labsight analyze ./panel.png --model medgemma --guidance "Focus on kidney function"
  labsight analyze ./reports/*.pdf --json -j 4`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringVarP(&analyzeModel, "model", "m", "", "Model id (default: the default vision model)")
	analyzeCmd.Flags().StringVarP(&analyzeGuidance, "guidance", "g", "", "Clinician guidance for the interpretation")
	analyzeCmd.Flags().StringVarP(&analyzeContext, "context", "c", "", "Patient context, e.g. age and history")
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "Output results as JSON")
	analyzeCmd.Flags().IntVarP(&analyzeConcurrency, "concurrency", "j", 2, "Reports analyzed in parallel")
}

// runner is the part of the orchestrator the command needs.
type runner interface {
	Run(ctx context.Context, in pipeline.Input) (*models.PipelineResult, error)
}

// fileOutcome is the result of analyzing one report.
type fileOutcome struct {
	Path   string                 `json:"file"`
	Result *models.PipelineResult `json:"result,omitempty"`
	Err    error                  `json:"-"`
	Error  string                 `json:"error,omitempty"`
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	lc := cfg.LoggingConfig()
	lc.Format = "console"
	if logLevel == "" {
		lc.Level = "warn"
	}
	logger := logging.New(lc)

	orch, reg, err := newOrchestrator(cfg, logger)
	if err != nil {
		return err
	}

	model := analyzeModel
	if model == "" {
		model = reg.DefaultVisionModel()
	}
	if model == "" {
		return fmt.Errorf("no --model given and no default vision model configured")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	base := pipeline.Input{
		ModelID:        model,
		Guidance:       analyzeGuidance,
		PatientContext: analyzeContext,
		Credentials:    credentials.FromEnvironment(os.Getenv),
	}

	progress := newProgress(os.Stderr, len(args), !analyzeJSON && isTerminal(os.Stderr))
	outcomes := analyzeFiles(ctx, orch, base, args, analyzeConcurrency, progress)
	progress.stop()

	if analyzeJSON {
		if err := writeOutcomesJSON(os.Stdout, outcomes); err != nil {
			return err
		}
	} else {
		for _, o := range outcomes {
			if o.Result == nil {
				fmt.Fprintf(os.Stderr, "%s: %v\n", o.Path, o.Err)
				continue
			}
			printResult(os.Stderr, os.Stdout, o.Path, o.Result)
		}
	}

	failed := 0
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d analyses failed", failed, len(outcomes))
	}
	return nil
}

// analyzeFiles runs the pipeline for every path with at most concurrency runs
// in flight. One failing report does not stop the others.
func analyzeFiles(ctx context.Context, r runner, base pipeline.Input, paths []string, concurrency int, progress *progress) []fileOutcome {
	outcomes := make([]fileOutcome, len(paths))
	if concurrency < 1 {
		concurrency = 1
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, path := range paths {
		g.Go(func() error {
			outcomes[i] = analyzeFile(gCtx, r, base, path, progress.emitterFor(path))
			progress.done()
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

func analyzeFile(ctx context.Context, r runner, base pipeline.Input, path string, emitter pipeline.ProgressEmitter) fileOutcome {
	out := fileOutcome{Path: path}

	data, err := os.ReadFile(path)
	if err != nil {
		out.Err = fmt.Errorf("failed to read file: %w", err)
		out.Error = out.Err.Error()
		return out
	}

	in := base
	in.File = pipeline.File{Data: data, Filename: filepath.Base(path)}
	in.Emitter = emitter

	out.Result, out.Err = r.Run(ctx, in)
	if out.Err != nil {
		out.Error = core.PublicMessage(out.Err)
	}
	return out
}

func writeOutcomesJSON(w io.Writer, outcomes []fileOutcome) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if len(outcomes) == 1 && outcomes[0].Result != nil {
		return enc.Encode(outcomes[0].Result)
	}
	return enc.Encode(outcomes)
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// progress reports pipeline state on stderr: a spinner on terminals, plain
// lines otherwise. With several files only completion counts are shown.
type progress struct {
	w       io.Writer
	total   int
	spin    *spinner.Spinner
	settled atomic.Int32
}

func newProgress(w io.Writer, total int, interactive bool) *progress {
	p := &progress{w: w, total: total}
	if interactive {
		p.spin = spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(w))
		p.spin.Suffix = " Starting..."
		p.spin.Start()
	}
	return p
}

func (p *progress) emitterFor(path string) pipeline.ProgressEmitter {
	if p.total > 1 {
		return nil
	}
	if p.spin != nil {
		return &spinnerEmitter{s: p.spin}
	}
	return &pipeline.TextEmitter{W: p.w}
}

func (p *progress) done() {
	n := p.settled.Add(1)
	if p.total > 1 && p.spin != nil {
		p.spin.Lock()
		p.spin.Suffix = fmt.Sprintf(" %d/%d reports analyzed", n, p.total)
		p.spin.Unlock()
	}
}

func (p *progress) stop() {
	if p.spin != nil {
		p.spin.Stop()
	}
}

// spinnerEmitter shows the latest pipeline state as the spinner suffix.
type spinnerEmitter struct {
	s *spinner.Spinner
}

func (e *spinnerEmitter) Emit(ev pipeline.ProgressEvent) {
	if ev.Type != "state" {
		return
	}
	msg := " " + ev.Message
	if ev.Model != "" {
		msg += " (" + ev.Model + ")"
	}
	e.s.Lock()
	e.s.Suffix = msg
	e.s.Unlock()
}
