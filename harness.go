package ortbench

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"time"
)

// Execute runs the benchmark described by cfg: it loads the model, builds the
// inputs, times the passes, optionally saves a visualization and writes the
// report to w (or to cfg.Report.Path).
func Execute(ctx context.Context, cfg *Config, w io.Writer) (*Report, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := InitRuntime(cfg.Library); err != nil {
		return nil, err
	}

	engine, err := NewEngine(cfg.EngineConfig())
	if err != nil {
		return nil, err
	}
	defer engine.Close()

	inputs, source, err := BuildInputs(cfg, engine.Inputs())
	if err != nil {
		return nil, err
	}

	started := time.Now()
	res, err := Benchmark(ctx, engine, inputs, cfg.BenchmarkConfig())
	if err != nil {
		return nil, err
	}
	defer res.Release()

	report := NewReport(started, engine.Config(), engine.Inputs(), engine.Outputs(), inputs, source, res)
	if err := writeResults(w, cfg, report, res); err != nil {
		return nil, err
	}
	return report, nil
}

// writeResults attaches output samples, saves the visualization and writes the report.
func writeResults(w io.Writer, cfg *Config, report *Report, res *Result) error {
	if cfg.Report.Sample > 0 {
		report.Samples = SampleOutputs(res.Outputs, cfg.Report.Sample)
	}
	if cfg.Visualize.Path != "" {
		if err := visualize(res.Outputs, cfg); err != nil {
			return err
		}
	}
	return writeReport(report, cfg.Report, w)
}

func visualize(outputs []Output, cfg *Config) error {
	opts := cfg.VisualizeOptions()
	out, err := SelectOutput(outputs, opts.Output)
	if err != nil {
		return err
	}
	img, err := OutputToGray(out, opts)
	if err != nil {
		return err
	}
	if err := SaveGray(img, cfg.Visualize.Path); err != nil {
		return err
	}
	pkgLogger().Info("saved output visualization", "output", out.Name, "channel", opts.Channel, "path", cfg.Visualize.Path)
	return nil
}

func writeReport(r *Report, cfg ReportConfig, w io.Writer) error {
	if cfg.Path == "" {
		return r.Write(w, cfg.Format)
	}
	f, err := os.Create(cfg.Path)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	if err := r.Write(f, cfg.Format); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// BuildInputs creates the tensors fed to the model. With an image configured the
// image is bound to cfg.Image.Input (or the first model input) and any other
// inputs get random data. The returned source is "random" or the image path.
func BuildInputs(cfg *Config, infos []TensorInfo) ([]Input, string, error) {
	overrides, err := cfg.ShapeOverrides()
	if err != nil {
		return nil, "", err
	}

	if cfg.Image.Path == "" {
		inputs, err := RandomInputs(infos, overrides, cfg.Seed)
		if err != nil {
			return nil, "", err
		}
		return inputs, "random", nil
	}

	if len(infos) == 0 {
		return nil, "", fmt.Errorf("model has no inputs to bind the image to")
	}
	target := cfg.Image.Input
	if target == "" {
		target = infos[0].Name
	}
	idx := slices.IndexFunc(infos, func(t TensorInfo) bool { return t.Name == target })
	if idx < 0 {
		return nil, "", fmt.Errorf("model has no input named %q", target)
	}
	if _, ok := overrides[target]; ok {
		return nil, "", fmt.Errorf("input %q is fed from an image and cannot take a shape override", target)
	}

	opts, err := cfg.ImageOptions()
	if err != nil {
		return nil, "", err
	}
	img, err := LoadImage(cfg.Image.Path)
	if err != nil {
		return nil, "", err
	}
	imageInput, err := Preprocess(img, opts)
	if err != nil {
		return nil, "", err
	}
	imageInput.Name = target

	rest := slices.Delete(slices.Clone(infos), idx, idx+1)
	others, err := RandomInputs(rest, overrides, cfg.Seed)
	if err != nil {
		return nil, "", err
	}

	inputs := make([]Input, 0, len(infos))
	inputs = append(inputs, others[:idx]...)
	inputs = append(inputs, imageInput)
	inputs = append(inputs, others[idx:]...)
	return inputs, cfg.Image.Path, nil
}
