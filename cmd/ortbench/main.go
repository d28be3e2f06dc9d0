// Command ortbench times ONNX Runtime inference on random or image inputs.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"gopkg.in/yaml.v3"

	"github.com/josuedeavila/ortbench"
)

const version = "v0.1.0"

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	cmd := "run"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd, args = args[0], args[1:]
	}

	switch cmd {
	case "run":
		return runBenchmark(args, stdout, stderr)
	case "inspect":
		return runInspect(args, stdout, stderr)
	case "version":
		fmt.Fprintf(stdout, "ortbench %s\n", version)
		return nil
	default:
		fmt.Fprintln(stderr, "Usage: ortbench [run|inspect|version] [flags]")
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func runBenchmark(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(stderr)
	flags := bindFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := flags.resolve(fs)
	if err != nil {
		return err
	}

	logger, err := ortbench.NewLogger(stderr, cfg.LogLevel)
	if err != nil {
		return err
	}
	ortbench.SetLogger(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	defer func() {
		if err := ortbench.ShutdownRuntime(); err != nil {
			logger.Warn("failed to destroy ORT env", "err", err)
		}
	}()

	_, err = ortbench.Execute(ctx, cfg, stdout)
	return err
}

type signature struct {
	Metadata ortbench.ModelMetadata `json:"metadata" yaml:"metadata"`
	Inputs   []ortbench.TensorInfo  `json:"inputs" yaml:"inputs"`
	Outputs  []ortbench.TensorInfo  `json:"outputs" yaml:"outputs"`
}

func runInspect(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	fs.SetOutput(stderr)
	lib := fs.String("lib", "", "path to the onnxruntime shared library (default $"+ortbench.LibraryPathEnv+")")
	model := fs.String("model", "", "path to ONNX model file (required)")
	format := fs.String("format", "text", "output format: text, json or yaml")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *model == "" {
		fs.Usage()
		return errors.New("-model is required")
	}

	logger, err := ortbench.NewLogger(stderr, "warn")
	if err != nil {
		return err
	}
	ortbench.SetLogger(logger)

	if err := ortbench.InitRuntime(*lib); err != nil {
		return err
	}
	defer ortbench.ShutdownRuntime()

	inputs, outputs, err := ortbench.ReadSignature(*model)
	if err != nil {
		return err
	}
	md, err := ortbench.ReadMetadata(*model)
	if err != nil {
		return err
	}

	sig := signature{Metadata: md, Inputs: inputs, Outputs: outputs}
	switch strings.ToLower(*format) {
	case "text":
		return ortbench.WriteSignature(stdout, md, inputs, outputs)
	case "json":
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(sig)
	case "yaml", "yml":
		enc := yaml.NewEncoder(stdout)
		defer enc.Close()
		return enc.Encode(sig)
	default:
		return fmt.Errorf("unknown format %q", *format)
	}
}
