package ortbench

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// requireRuntime skips the test when the onnxruntime shared library cannot be loaded.
func requireRuntime(t *testing.T) {
	t.Helper()
	if err := InitRuntime(""); err != nil {
		t.Skipf("Skipping: onnxruntime not available: %v", err)
	}
}

// testModel returns ORTBENCH_TEST_MODEL or testdata/model.onnx, skipping when neither exists.
func testModel(t *testing.T) string {
	t.Helper()
	path := os.Getenv("ORTBENCH_TEST_MODEL")
	if path == "" {
		path = filepath.Join("testdata", "model.onnx")
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Skipf("Skipping integration test: model not found at %s", path)
	}
	return path
}

func TestEngine_Integration(t *testing.T) {
	modelPath := testModel(t)
	requireRuntime(t)

	for _, reuse := range []bool{false, true} {
		cfg := DefaultEngineConfig(modelPath)
		cfg.IntraOpNumThreads = 1
		cfg.ReuseTensors = reuse

		engine, err := NewEngine(cfg)
		require.NoError(t, err)

		md, err := engine.Metadata()
		require.NoError(t, err)
		var sig bytes.Buffer
		require.NoError(t, WriteSignature(&sig, md, engine.Inputs(), engine.Outputs()))
		assert.Contains(t, sig.String(), "input number=")

		inputs, err := RandomInputs(engine.Inputs(), nil, 1)
		require.NoError(t, err)

		res, err := Benchmark(context.Background(), engine, inputs, BenchmarkConfig{Loops: 3, Warmup: 1})
		require.NoError(t, err)
		assert.Len(t, res.Outputs, len(engine.Outputs()))
		for _, out := range res.Outputs {
			n, err := ElementCount(out.Shape)
			require.NoError(t, err)
			assert.Len(t, out.Data, n)
		}
		assert.Equal(t, 4, engine.Stats().Calls)
		assert.Equal(t, 3, engine.Stats().Timed)

		report := NewReport(time.Now(), cfg, engine.Inputs(), engine.Outputs(), inputs, "random", res)
		var buf bytes.Buffer
		require.NoError(t, report.WriteText(&buf))
		assert.Contains(t, buf.String(), "loops=3 avg_time=")

		res.Release()
		require.NoError(t, engine.Close())
	}
}
