package labsight

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kamilpajak/labsight/internal/core"
	"github.com/kamilpajak/labsight/internal/pipeline"
	"github.com/kamilpajak/labsight/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	mu       sync.Mutex
	inputs   []pipeline.Input
	inFlight atomic.Int32
	peak     atomic.Int32
	delay    time.Duration
	fail     map[string]error
}

func (f *fakeRunner) Run(ctx context.Context, in pipeline.Input) (*models.PipelineResult, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}

	f.mu.Lock()
	f.inputs = append(f.inputs, in)
	f.mu.Unlock()

	if in.Emitter != nil {
		in.Emitter.Emit(pipeline.ProgressEvent{Type: "state", State: pipeline.StateRouting, Message: "Selecting models"})
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if err, ok := f.fail[in.File.Filename]; ok {
		return nil, err
	}
	return glucoseResult(), nil
}

func writeReports(t *testing.T, names ...string) []string {
	t.Helper()
	dir := t.TempDir()
	paths := make([]string, len(names))
	for i, name := range names {
		paths[i] = filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(paths[i], []byte("%PDF-1.7 "+name), 0o600))
	}
	return paths
}

func TestAnalyzeFiles_SingleFileEmitsText(t *testing.T) {
	paths := writeReports(t, "cbc.pdf")
	r := &fakeRunner{}
	var progressOut bytes.Buffer

	base := pipeline.Input{ModelID: "medgemma", Guidance: "kidney", Credentials: map[string]string{"google": "k"}}
	outcomes := analyzeFiles(context.Background(), r, base, paths, 2, newProgress(&progressOut, 1, false))

	require.Len(t, outcomes, 1)
	require.NoError(t, outcomes[0].Err)
	assert.Equal(t, models.StatusSuccess, outcomes[0].Result.Status)

	require.Len(t, r.inputs, 1)
	in := r.inputs[0]
	assert.Equal(t, "cbc.pdf", in.File.Filename)
	assert.Equal(t, []byte("%PDF-1.7 cbc.pdf"), in.File.Data)
	assert.Equal(t, "medgemma", in.ModelID)
	assert.Equal(t, "kidney", in.Guidance)
	assert.Contains(t, progressOut.String(), "[routing] Selecting models")
}

func TestAnalyzeFiles_BoundedConcurrency(t *testing.T) {
	paths := writeReports(t, "a.pdf", "b.pdf", "c.pdf", "d.pdf", "e.pdf")
	r := &fakeRunner{delay: 20 * time.Millisecond}

	outcomes := analyzeFiles(context.Background(), r, pipeline.Input{ModelID: "gpt-4o"}, paths, 2, newProgress(&bytes.Buffer{}, len(paths), false))

	require.Len(t, outcomes, 5)
	for i, o := range outcomes {
		assert.Equal(t, paths[i], o.Path, "outcomes keep argument order")
		assert.NoError(t, o.Err)
	}
	assert.LessOrEqual(t, r.peak.Load(), int32(2))
	for _, in := range r.inputs {
		assert.Nil(t, in.Emitter, "no per-file progress with several files")
	}
}

func TestAnalyzeFiles_FailuresAreIsolated(t *testing.T) {
	paths := writeReports(t, "good.pdf", "bad.pdf")
	paths = append(paths, filepath.Join(t.TempDir(), "missing.pdf"))
	r := &fakeRunner{fail: map[string]error{"bad.pdf": core.ErrUnknownModel("gpt-9")}}

	outcomes := analyzeFiles(context.Background(), r, pipeline.Input{ModelID: "gpt-9"}, paths, 1, newProgress(&bytes.Buffer{}, len(paths), false))

	require.Len(t, outcomes, 3)
	assert.NoError(t, outcomes[0].Err)
	assert.Equal(t, "unknown model: gpt-9", outcomes[1].Error)
	assert.Error(t, outcomes[2].Err)
	assert.Contains(t, outcomes[2].Error, "failed to read file")
	assert.Len(t, r.inputs, 2)
}

func TestWriteOutcomesJSON(t *testing.T) {
	var single bytes.Buffer
	require.NoError(t, writeOutcomesJSON(&single, []fileOutcome{{Path: "a.pdf", Result: glucoseResult()}}))

	var result models.PipelineResult
	require.NoError(t, json.Unmarshal(single.Bytes(), &result))
	assert.Equal(t, models.StatusSuccess, result.Status)

	var multi bytes.Buffer
	require.NoError(t, writeOutcomesJSON(&multi, []fileOutcome{
		{Path: "a.pdf", Result: glucoseResult()},
		{Path: "b.pdf", Error: "unknown model: gpt-9"},
	}))

	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(multi.Bytes(), &decoded))
	require.Len(t, decoded, 2)
	assert.Equal(t, "a.pdf", decoded[0]["file"])
	assert.NotContains(t, decoded[0], "error")
	assert.Equal(t, "unknown model: gpt-9", decoded[1]["error"])
	assert.NotContains(t, decoded[1], "result")
}
