package ortbench

import (
	"fmt"
	"image"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is a benchmark profile, usually loaded from YAML and then adjusted by flags.
type Config struct {
	Library       string            `yaml:"library"`
	Model         string            `yaml:"model"`
	Threads       int               `yaml:"threads"`
	InterThreads  int               `yaml:"inter_threads"`
	Optimization  string            `yaml:"optimization"`
	ExecutionMode string            `yaml:"execution_mode"`
	MemArena      bool              `yaml:"mem_arena"`
	MemPattern    bool              `yaml:"mem_pattern"`
	GPU           int               `yaml:"gpu"`
	ReuseTensors  bool              `yaml:"reuse_tensors"`
	Outputs       []string          `yaml:"outputs"`
	Loops         int               `yaml:"loops"`
	Warmup        int               `yaml:"warmup"`
	Seed          uint64            `yaml:"seed"`
	Shapes        map[string]string `yaml:"shapes"`
	Image         ImageConfig       `yaml:"image"`
	Visualize     VisualizeConfig   `yaml:"visualize"`
	Report        ReportConfig      `yaml:"report"`
	LogLevel      string            `yaml:"log_level"`
}

// ImageConfig feeds a preprocessed image instead of random tensors when Path is set.
type ImageConfig struct {
	Path string `yaml:"path"`
	// Crop is x, y, width, height. Empty disables cropping.
	Crop         []int     `yaml:"crop,flow"`
	Width        int       `yaml:"width"`
	Height       int       `yaml:"height"`
	ChannelOrder string    `yaml:"channel_order"`
	Scale        float32   `yaml:"scale"`
	Mean         []float32 `yaml:"mean,flow"`
	Std          []float32 `yaml:"std,flow"`
	// Input names the model input the image is bound to. Empty means the first one.
	Input string `yaml:"input"`
}

// VisualizeConfig writes one output plane as a grayscale image when Path is set.
type VisualizeConfig struct {
	Path    string  `yaml:"path"`
	Output  int     `yaml:"output"`
	Channel int     `yaml:"channel"`
	Scale   float32 `yaml:"scale"`
}

// ReportConfig controls the benchmark report.
type ReportConfig struct {
	Format string `yaml:"format"`
	// Path writes the report to a file instead of stdout.
	Path string `yaml:"path"`
	// Sample prints the first Sample values of each output.
	Sample int `yaml:"sample"`
}

// DefaultConfig returns the profile used when no file is given.
func DefaultConfig() *Config {
	img := DefaultImageOptions()
	vis := DefaultVisualizeOptions()
	bench := DefaultBenchmarkConfig()
	return &Config{
		Threads:       DefaultThreads(),
		InterThreads:  1,
		Optimization:  "extended",
		ExecutionMode: "sequential",
		MemArena:      true,
		MemPattern:    true,
		GPU:           -1,
		Loops:         bench.Loops,
		Warmup:        bench.Warmup,
		Seed:          1,
		Image: ImageConfig{
			Crop:         []int{img.Crop.Min.X, img.Crop.Min.Y, img.Crop.Dx(), img.Crop.Dy()},
			Width:        img.Width,
			Height:       img.Height,
			ChannelOrder: img.ChannelOrder,
			Scale:        img.Scale,
		},
		Visualize: VisualizeConfig{
			Output:  vis.Output,
			Channel: vis.Channel,
			Scale:   vis.Scale,
		},
		Report: ReportConfig{
			Format: "text",
		},
		LogLevel: "info",
	}
}

// LoadConfig reads a YAML profile. Keys missing from the file keep their defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseConfig(data)
}

// ParseConfig decodes a YAML profile on top of DefaultConfig.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// Validate checks every enumerated and numeric setting.
func (c *Config) Validate() error {
	if c.Model == "" {
		return fmt.Errorf("model path is required")
	}
	if err := c.BenchmarkConfig().Validate(); err != nil {
		return err
	}
	if _, err := ParseGraphOptimization(c.Optimization); err != nil {
		return err
	}
	if _, err := ParseExecutionMode(c.ExecutionMode); err != nil {
		return err
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	if _, err := c.ShapeOverrides(); err != nil {
		return err
	}
	if c.Image.Path != "" {
		opts, err := c.ImageOptions()
		if err != nil {
			return err
		}
		if _, err := channelOrder(opts.ChannelOrder); err != nil {
			return err
		}
		if err := checkSize(opts); err != nil {
			return err
		}
		if err := checkNormalization(opts); err != nil {
			return err
		}
	}
	switch strings.ToLower(c.Report.Format) {
	case "", "text", "json", "yaml", "yml":
	default:
		return fmt.Errorf("unknown report format %q", c.Report.Format)
	}
	if c.Report.Sample < 0 {
		return fmt.Errorf("report sample must not be negative, got %d", c.Report.Sample)
	}
	return nil
}

// EngineConfig maps the profile onto session settings.
func (c *Config) EngineConfig() EngineConfig {
	return EngineConfig{
		ModelPath:         c.Model,
		IntraOpNumThreads: c.Threads,
		InterOpNumThreads: c.InterThreads,
		GraphOptimization: c.Optimization,
		ExecutionMode:     c.ExecutionMode,
		CpuMemArena:       c.MemArena,
		MemPattern:        c.MemPattern,
		GPUDevice:         c.GPU,
		OutputNames:       c.Outputs,
		ReuseTensors:      c.ReuseTensors,
	}
}

// BenchmarkConfig maps the profile onto loop settings.
func (c *Config) BenchmarkConfig() BenchmarkConfig {
	return BenchmarkConfig{Loops: c.Loops, Warmup: c.Warmup}
}

// ImageOptions maps the image section onto preprocessing options.
func (c *Config) ImageOptions() (ImageOptions, error) {
	opts := ImageOptions{
		Width:        c.Image.Width,
		Height:       c.Image.Height,
		ChannelOrder: c.Image.ChannelOrder,
		Scale:        c.Image.Scale,
		Mean:         c.Image.Mean,
		Std:          c.Image.Std,
	}
	switch len(c.Image.Crop) {
	case 0:
	case 4:
		x, y, w, h := c.Image.Crop[0], c.Image.Crop[1], c.Image.Crop[2], c.Image.Crop[3]
		if w <= 0 || h <= 0 {
			return opts, fmt.Errorf("crop size must be positive, got %dx%d", w, h)
		}
		opts.Crop = image.Rect(x, y, x+w, y+h)
	default:
		return opts, fmt.Errorf("crop needs x, y, width, height, got %d values", len(c.Image.Crop))
	}
	return opts, nil
}

// VisualizeOptions maps the visualize section.
func (c *Config) VisualizeOptions() VisualizeOptions {
	return VisualizeOptions{
		Output:  c.Visualize.Output,
		Channel: c.Visualize.Channel,
		Scale:   c.Visualize.Scale,
	}
}

// ShapeOverrides parses the shapes section.
func (c *Config) ShapeOverrides() (map[string][]int64, error) {
	if len(c.Shapes) == 0 {
		return nil, nil
	}
	out := make(map[string][]int64, len(c.Shapes))
	for name, s := range c.Shapes {
		dims, err := ParseDims(s)
		if err != nil {
			return nil, fmt.Errorf("shape for input %q: %w", name, err)
		}
		out[name] = dims
	}
	return out, nil
}
