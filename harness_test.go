package ortbench

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func writeTestImage(t *testing.T, w, h int) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, color.NRGBA{R: 200, G: 100, B: 50, A: 255})
		}
	}
	path := filepath.Join(t.TempDir(), "frame.png")
	require.NoError(t, imaging.Save(img, path))
	return path
}

func TestBuildInputs(t *testing.T) {
	infos := []TensorInfo{
		{Name: "obs", ElementType: "float", Dims: []int64{224, 224, 12}},
		{Name: "state", ElementType: "float", Dims: []int64{4, -1, 80}},
	}

	t.Run("Random", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Shapes = map[string]string{"state": "4x2x80"}

		inputs, source, err := BuildInputs(cfg, infos)
		require.NoError(t, err)
		assert.Equal(t, "random", source)
		require.Len(t, inputs, 2)
		assert.Equal(t, []int64{224, 224, 12}, inputs[0].Shape)
		assert.Equal(t, []int64{4, 2, 80}, inputs[1].Shape)
		assert.Len(t, inputs[1].Data, 640)
	})

	t.Run("BadShape", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Shapes = map[string]string{"state": "4xz"}
		_, _, err := BuildInputs(cfg, infos)
		assert.Error(t, err)
	})

	t.Run("ImageDefaultInput", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Image.Path = writeTestImage(t, 16, 12)
		cfg.Image.Crop = nil
		cfg.Image.Width, cfg.Image.Height = 8, 4

		inputs, source, err := BuildInputs(cfg, infos)
		require.NoError(t, err)
		assert.Equal(t, cfg.Image.Path, source)
		require.Len(t, inputs, 2)
		assert.Equal(t, "obs", inputs[0].Name)
		assert.Equal(t, []int64{1, 3, 4, 8}, inputs[0].Shape)
		// bgr: first plane is blue
		assert.Equal(t, float32(50), inputs[0].Data[0])
		assert.Equal(t, float32(200), inputs[0].Data[2*32])
		assert.Equal(t, "state", inputs[1].Name)
		assert.Equal(t, []int64{4, 1, 80}, inputs[1].Shape)
	})

	t.Run("ImageNamedInput", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Image.Path = writeTestImage(t, 16, 12)
		cfg.Image.Crop = []int{0, 0, 8, 8}
		cfg.Image.Width, cfg.Image.Height = 0, 0
		cfg.Image.Input = "state"

		inputs, _, err := BuildInputs(cfg, infos)
		require.NoError(t, err)
		require.Len(t, inputs, 2)
		assert.Equal(t, "obs", inputs[0].Name)
		assert.Equal(t, "state", inputs[1].Name)
		assert.Equal(t, []int64{1, 3, 8, 8}, inputs[1].Shape)
	})

	t.Run("UnknownImageInput", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Image.Path = writeTestImage(t, 4, 4)
		cfg.Image.Input = "missing"
		_, _, err := BuildInputs(cfg, infos)
		assert.Error(t, err)
	})

	t.Run("OverrideOnImageInput", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Image.Path = writeTestImage(t, 4, 4)
		cfg.Shapes = map[string]string{"obs": "1x3x4x4"}
		_, _, err := BuildInputs(cfg, infos)
		assert.Error(t, err)
	})

	t.Run("NoInputs", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Image.Path = writeTestImage(t, 4, 4)
		_, _, err := BuildInputs(cfg, nil)
		assert.Error(t, err)
	})

	t.Run("MissingImage", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Image.Path = filepath.Join(t.TempDir(), "nope.png")
		_, _, err := BuildInputs(cfg, infos)
		assert.Error(t, err)
	})
}

func sampledResult() *Result {
	return &Result{
		Loops: 1,
		Outputs: []Output{
			{Name: "y", Shape: []int64{2}, Data: []float32{1, 2}},
			{Name: "seg", Shape: []int64{1, 2, 2, 2}, Data: []float32{0, 0, 0, 0, 0, 0.5, 1, 0}},
		},
	}
}

func TestWriteResults(t *testing.T) {
	t.Run("JSONWithSamples", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Report.Format = "json"
		cfg.Report.Sample = 3

		var stdout bytes.Buffer
		require.NoError(t, writeResults(&stdout, cfg, sampleReport(), sampledResult()))

		var decoded Report
		require.NoError(t, json.Unmarshal(stdout.Bytes(), &decoded), stdout.String())
		require.Len(t, decoded.Samples, 2)
		assert.Equal(t, "y", decoded.Samples[0].Name)
		assert.Equal(t, []float32{1, 2}, decoded.Samples[0].Values)
		assert.Equal(t, []float32{0, 0, 0}, decoded.Samples[1].Values)
		assert.Equal(t, 8, decoded.Samples[1].Total)
	})

	t.Run("YAMLWithSamples", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Report.Format = "yaml"
		cfg.Report.Sample = 1

		var stdout bytes.Buffer
		require.NoError(t, writeResults(&stdout, cfg, sampleReport(), sampledResult()))

		var decoded struct {
			Loops   int            `yaml:"loops"`
			Samples []OutputSample `yaml:"samples"`
		}
		require.NoError(t, yaml.Unmarshal(stdout.Bytes(), &decoded), stdout.String())
		assert.Equal(t, 4, decoded.Loops)
		require.Len(t, decoded.Samples, 2)
		assert.Equal(t, []int64{1, 2, 2, 2}, decoded.Samples[1].Shape)
	})

	t.Run("TextWithSamples", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Report.Sample = 1

		var stdout bytes.Buffer
		require.NoError(t, writeResults(&stdout, cfg, sampleReport(), sampledResult()))
		out := stdout.String()
		assert.Contains(t, out, "y [2]: 1.00000 ... (2 values)\n")
		assert.True(t, strings.HasSuffix(out, "loops=4 avg_time=0.01\n"), out)
	})

	t.Run("NoSamples", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Report.Format = "json"

		var stdout bytes.Buffer
		require.NoError(t, writeResults(&stdout, cfg, sampleReport(), sampledResult()))
		assert.NotContains(t, stdout.String(), "samples")
	})

	t.Run("ReportFileAndVisualization", func(t *testing.T) {
		dir := t.TempDir()
		cfg := DefaultConfig()
		cfg.Report.Format = "json"
		cfg.Report.Path = filepath.Join(dir, "report.json")
		cfg.Visualize.Path = filepath.Join(dir, "seg.png")
		cfg.Visualize.Output = 1

		var stdout bytes.Buffer
		require.NoError(t, writeResults(&stdout, cfg, sampleReport(), sampledResult()))
		assert.Zero(t, stdout.Len())

		data, err := os.ReadFile(cfg.Report.Path)
		require.NoError(t, err)
		assert.True(t, json.Valid(data))

		img, err := imaging.Open(cfg.Visualize.Path)
		require.NoError(t, err)
		assert.Equal(t, image.Rect(0, 0, 2, 2), img.Bounds())
	})
}
