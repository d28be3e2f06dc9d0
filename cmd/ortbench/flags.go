package main

import (
	"flag"
	"fmt"
	"strconv"
	"strings"

	"github.com/josuedeavila/ortbench"
)

// runFlags parses into a scratch config; only flags given on the command line
// are copied over the profile loaded from -config.
type runFlags struct {
	configPath string
	scratch    *ortbench.Config
	apply      map[string]func(dst, src *ortbench.Config)
}

func bindFlags(fs *flag.FlagSet) *runFlags {
	c := ortbench.DefaultConfig()
	f := &runFlags{
		scratch: c,
		apply:   make(map[string]func(dst, src *ortbench.Config)),
	}

	fs.StringVar(&f.configPath, "config", "", "YAML benchmark profile")

	f.stringVar(fs, "lib", &c.Library, "path to the onnxruntime shared library (default $"+ortbench.LibraryPathEnv+")",
		func(d, s *ortbench.Config) { d.Library = s.Library })
	f.stringVar(fs, "model", &c.Model, "path to ONNX model file",
		func(d, s *ortbench.Config) { d.Model = s.Model })
	f.intVar(fs, "threads", &c.Threads, "intra-op threads",
		func(d, s *ortbench.Config) { d.Threads = s.Threads })
	f.intVar(fs, "inter-threads", &c.InterThreads, "inter-op threads",
		func(d, s *ortbench.Config) { d.InterThreads = s.InterThreads })
	f.stringVar(fs, "opt", &c.Optimization, "graph optimization: disable, basic, extended or all",
		func(d, s *ortbench.Config) { d.Optimization = s.Optimization })
	f.stringVar(fs, "mode", &c.ExecutionMode, "execution mode: sequential or parallel",
		func(d, s *ortbench.Config) { d.ExecutionMode = s.ExecutionMode })
	f.boolVar(fs, "mem-arena", &c.MemArena, "enable the CPU memory arena",
		func(d, s *ortbench.Config) { d.MemArena = s.MemArena })
	f.boolVar(fs, "mem-pattern", &c.MemPattern, "enable memory pattern optimization",
		func(d, s *ortbench.Config) { d.MemPattern = s.MemPattern })
	f.intVar(fs, "gpu", &c.GPU, "CUDA device id, -1 for CPU",
		func(d, s *ortbench.Config) { d.GPU = s.GPU })
	f.boolVar(fs, "reuse", &c.ReuseTensors, "reuse input tensors between passes",
		func(d, s *ortbench.Config) { d.ReuseTensors = s.ReuseTensors })
	f.intVar(fs, "loops", &c.Loops, "timed passes",
		func(d, s *ortbench.Config) { d.Loops = s.Loops })
	f.intVar(fs, "warmup", &c.Warmup, "untimed passes before timing",
		func(d, s *ortbench.Config) { d.Warmup = s.Warmup })
	fs.Uint64Var(&c.Seed, "seed", c.Seed, "random input seed")
	f.apply["seed"] = func(d, s *ortbench.Config) { d.Seed = s.Seed }

	f.funcVar(fs, "outputs", "comma separated output names to fetch", func(v string) error {
		c.Outputs = splitList(v)
		return nil
	}, func(d, s *ortbench.Config) { d.Outputs = s.Outputs })
	f.funcVar(fs, "shape", "input shape override name=1x3x224x224 (repeatable)", func(v string) error {
		name, dims, ok := strings.Cut(v, "=")
		if !ok || name == "" {
			return fmt.Errorf("want name=dims, got %q", v)
		}
		if _, err := ortbench.ParseDims(dims); err != nil {
			return err
		}
		if c.Shapes == nil {
			c.Shapes = make(map[string]string)
		}
		c.Shapes[name] = dims
		return nil
	}, func(d, s *ortbench.Config) {
		if d.Shapes == nil {
			d.Shapes = make(map[string]string)
		}
		for k, v := range s.Shapes {
			d.Shapes[k] = v
		}
	})

	f.stringVar(fs, "image", &c.Image.Path, "image to feed instead of random data",
		func(d, s *ortbench.Config) { d.Image.Path = s.Image.Path })
	f.stringVar(fs, "image-input", &c.Image.Input, "model input the image is bound to",
		func(d, s *ortbench.Config) { d.Image.Input = s.Image.Input })
	f.funcVar(fs, "crop", "image crop x,y,width,height (empty disables)", func(v string) error {
		ints, err := parseInts(v)
		if err != nil {
			return err
		}
		c.Image.Crop = ints
		return nil
	}, func(d, s *ortbench.Config) { d.Image.Crop = s.Image.Crop })
	f.funcVar(fs, "size", "image tensor size WxH", func(v string) error {
		ws, hs, ok := strings.Cut(strings.ToLower(v), "x")
		if !ok {
			return fmt.Errorf("want WxH, got %q", v)
		}
		w, err := strconv.Atoi(ws)
		if err != nil {
			return err
		}
		h, err := strconv.Atoi(hs)
		if err != nil {
			return err
		}
		c.Image.Width, c.Image.Height = w, h
		return nil
	}, func(d, s *ortbench.Config) { d.Image.Width, d.Image.Height = s.Image.Width, s.Image.Height })
	f.stringVar(fs, "order", &c.Image.ChannelOrder, "image channel order: bgr or rgb",
		func(d, s *ortbench.Config) { d.Image.ChannelOrder = s.Image.ChannelOrder })
	f.funcVar(fs, "scale", "multiplier for raw pixel values", func(v string) error {
		x, err := strconv.ParseFloat(v, 32)
		c.Image.Scale = float32(x)
		return err
	}, func(d, s *ortbench.Config) { d.Image.Scale = s.Image.Scale })
	f.funcVar(fs, "mean", "per-channel mean a,b,c", func(v string) error {
		vals, err := parseFloats(v)
		c.Image.Mean = vals
		return err
	}, func(d, s *ortbench.Config) { d.Image.Mean = s.Image.Mean })
	f.funcVar(fs, "std", "per-channel std a,b,c", func(v string) error {
		vals, err := parseFloats(v)
		c.Image.Std = vals
		return err
	}, func(d, s *ortbench.Config) { d.Image.Std = s.Image.Std })

	f.stringVar(fs, "vis", &c.Visualize.Path, "write one output plane as a grayscale image to this path",
		func(d, s *ortbench.Config) { d.Visualize.Path = s.Visualize.Path })
	f.intVar(fs, "vis-output", &c.Visualize.Output, "output index to visualize",
		func(d, s *ortbench.Config) { d.Visualize.Output = s.Visualize.Output })
	f.intVar(fs, "vis-channel", &c.Visualize.Channel, "plane index to visualize",
		func(d, s *ortbench.Config) { d.Visualize.Channel = s.Visualize.Channel })

	f.stringVar(fs, "format", &c.Report.Format, "report format: text, json or yaml",
		func(d, s *ortbench.Config) { d.Report.Format = s.Report.Format })
	f.stringVar(fs, "out", &c.Report.Path, "write the report to this file",
		func(d, s *ortbench.Config) { d.Report.Path = s.Report.Path })
	f.intVar(fs, "sample", &c.Report.Sample, "print the first N values of each output",
		func(d, s *ortbench.Config) { d.Report.Sample = s.Report.Sample })
	f.stringVar(fs, "log-level", &c.LogLevel, "debug, info, warn or error",
		func(d, s *ortbench.Config) { d.LogLevel = s.LogLevel })

	return f
}

func (f *runFlags) stringVar(fs *flag.FlagSet, name string, p *string, usage string, apply func(d, s *ortbench.Config)) {
	fs.StringVar(p, name, *p, usage)
	f.apply[name] = apply
}

func (f *runFlags) intVar(fs *flag.FlagSet, name string, p *int, usage string, apply func(d, s *ortbench.Config)) {
	fs.IntVar(p, name, *p, usage)
	f.apply[name] = apply
}

func (f *runFlags) boolVar(fs *flag.FlagSet, name string, p *bool, usage string, apply func(d, s *ortbench.Config)) {
	fs.BoolVar(p, name, *p, usage)
	f.apply[name] = apply
}

func (f *runFlags) funcVar(fs *flag.FlagSet, name, usage string, parse func(string) error, apply func(d, s *ortbench.Config)) {
	fs.Func(name, usage, parse)
	f.apply[name] = apply
}

// resolve loads the profile and layers the explicitly set flags on top.
func (f *runFlags) resolve(fs *flag.FlagSet) (*ortbench.Config, error) {
	if f.configPath == "" {
		return f.scratch, nil
	}
	cfg, err := ortbench.LoadConfig(f.configPath)
	if err != nil {
		return nil, err
	}
	fs.Visit(func(fl *flag.Flag) {
		if apply, ok := f.apply[fl.Name]; ok {
			apply(cfg, f.scratch)
		}
	})
	return cfg, nil
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func parseInts(v string) ([]int, error) {
	parts := splitList(v)
	out := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, err
		}
		out[i] = n
	}
	return out, nil
}

func parseFloats(v string) ([]float32, error) {
	parts := splitList(v)
	out := make([]float32, len(parts))
	for i, p := range parts {
		x, err := strconv.ParseFloat(p, 32)
		if err != nil {
			return nil, err
		}
		out[i] = float32(x)
	}
	return out, nil
}
