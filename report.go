package ortbench

import (
	"encoding/json"
	"fmt"
	"io"
	"runtime"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/cpuid/v2"
	"gopkg.in/yaml.v3"
)

// HostInfo describes the machine a benchmark ran on.
type HostInfo struct {
	CPU           string   `json:"cpu" yaml:"cpu"`
	Vendor        string   `json:"vendor" yaml:"vendor"`
	PhysicalCores int      `json:"physical_cores" yaml:"physical_cores"`
	LogicalCores  int      `json:"logical_cores" yaml:"logical_cores"`
	Features      []string `json:"features" yaml:"features,flow"`
	OS            string   `json:"os" yaml:"os"`
	Arch          string   `json:"arch" yaml:"arch"`
}

var reportedFeatures = []cpuid.FeatureID{
	cpuid.SSE42,
	cpuid.AVX,
	cpuid.AVX2,
	cpuid.FMA3,
	cpuid.F16C,
	cpuid.AVX512F,
	cpuid.AVX512BF16,
	cpuid.AVX512VNNI,
	cpuid.AVXVNNI,
	cpuid.ASIMD,
}

// CollectHostInfo reads the CPU identification of the current machine.
func CollectHostInfo() HostInfo {
	info := HostInfo{
		CPU:           cpuid.CPU.BrandName,
		Vendor:        cpuid.CPU.VendorString,
		PhysicalCores: cpuid.CPU.PhysicalCores,
		LogicalCores:  cpuid.CPU.LogicalCores,
		OS:            runtime.GOOS,
		Arch:          runtime.GOARCH,
	}
	if info.LogicalCores == 0 {
		info.LogicalCores = runtime.NumCPU()
	}
	for _, f := range reportedFeatures {
		if cpuid.CPU.Supports(f) {
			info.Features = append(info.Features, f.String())
		}
	}
	return info
}

// SessionSummary is the part of EngineConfig worth reporting.
type SessionSummary struct {
	IntraOpThreads    int    `json:"intra_op_threads" yaml:"intra_op_threads"`
	InterOpThreads    int    `json:"inter_op_threads" yaml:"inter_op_threads"`
	GraphOptimization string `json:"graph_optimization" yaml:"graph_optimization"`
	ExecutionMode     string `json:"execution_mode" yaml:"execution_mode"`
	GPUDevice         int    `json:"gpu_device" yaml:"gpu_device"`
	ReuseTensors      bool   `json:"reuse_tensors" yaml:"reuse_tensors"`
}

// LatencyMillis is LatencyStats in milliseconds, for reports.
type LatencyMillis struct {
	Mean       float64 `json:"mean_ms" yaml:"mean_ms"`
	Min        float64 `json:"min_ms" yaml:"min_ms"`
	Max        float64 `json:"max_ms" yaml:"max_ms"`
	StdDev     float64 `json:"stddev_ms" yaml:"stddev_ms"`
	P50        float64 `json:"p50_ms" yaml:"p50_ms"`
	P90        float64 `json:"p90_ms" yaml:"p90_ms"`
	P99        float64 `json:"p99_ms" yaml:"p99_ms"`
	Throughput float64 `json:"throughput_per_sec" yaml:"throughput_per_sec"`
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func toMillis(s LatencyStats) LatencyMillis {
	return LatencyMillis{
		Mean:       millis(s.Mean),
		Min:        millis(s.Min),
		Max:        millis(s.Max),
		StdDev:     millis(s.StdDev),
		P50:        millis(s.P50),
		P90:        millis(s.P90),
		P99:        millis(s.P99),
		Throughput: s.Throughput,
	}
}

// Report is the outcome of one benchmark run.
type Report struct {
	ID        string         `json:"id" yaml:"id"`
	StartedAt time.Time      `json:"started_at" yaml:"started_at"`
	Model     string         `json:"model" yaml:"model"`
	Runtime   string         `json:"runtime" yaml:"runtime"`
	Host      HostInfo       `json:"host" yaml:"host"`
	Session   SessionSummary `json:"session" yaml:"session"`
	Source    string         `json:"source" yaml:"source"`
	Inputs    []TensorInfo   `json:"inputs" yaml:"inputs"`
	Outputs   []TensorInfo   `json:"outputs" yaml:"outputs"`
	Fed       []TensorInfo   `json:"fed" yaml:"fed"`
	Loops     int            `json:"loops" yaml:"loops"`
	Warmup    int            `json:"warmup" yaml:"warmup"`
	AvgTime   float64        `json:"avg_time_sec" yaml:"avg_time_sec"`
	Latency   LatencyMillis  `json:"latency" yaml:"latency"`
	Samples   []OutputSample `json:"samples,omitempty" yaml:"samples,omitempty"`
}

// OutputSample holds the first values of one output.
type OutputSample struct {
	Name   string    `json:"name" yaml:"name"`
	Shape  []int64   `json:"shape" yaml:"shape,flow"`
	Values []float32 `json:"values" yaml:"values,flow"`
	Total  int       `json:"total" yaml:"total"`
}

// SampleOutputs copies up to n leading values of each output.
func SampleOutputs(outputs []Output, n int) []OutputSample {
	samples := make([]OutputSample, 0, len(outputs))
	for _, out := range outputs {
		limit := max(0, min(n, len(out.Data)))
		samples = append(samples, OutputSample{
			Name:   out.Name,
			Shape:  cloneDims(out.Shape),
			Values: slices.Clone(out.Data[:limit]),
			Total:  len(out.Data),
		})
	}
	return samples
}

// NewReport assembles a report for a finished run. source names where the
// inputs came from: "random" or an image path.
func NewReport(started time.Time, cfg EngineConfig, inputs, outputs []TensorInfo, fed []Input, source string, res *Result) *Report {
	r := &Report{
		ID:        uuid.NewString(),
		StartedAt: started.UTC(),
		Model:     cfg.ModelPath,
		Runtime:   RuntimeVersion(),
		Host:      CollectHostInfo(),
		Session: SessionSummary{
			IntraOpThreads:    cfg.IntraOpNumThreads,
			InterOpThreads:    cfg.InterOpNumThreads,
			GraphOptimization: cfg.GraphOptimization,
			ExecutionMode:     cfg.ExecutionMode,
			GPUDevice:         cfg.GPUDevice,
			ReuseTensors:      cfg.ReuseTensors,
		},
		Source:  source,
		Inputs:  inputs,
		Outputs: outputs,
	}
	for i, in := range fed {
		name := in.Name
		if name == "" && i < len(inputs) {
			name = inputs[i].Name
		}
		r.Fed = append(r.Fed, TensorInfo{Name: name, ElementType: "float", Dims: cloneDims(in.Shape)})
	}
	if res != nil {
		r.Loops = res.Loops
		r.Warmup = res.Warmup
		r.AvgTime = res.AverageSeconds()
		r.Latency = toMillis(res.Stats)
	}
	return r
}

// Write renders the report as text, json or yaml.
func (r *Report) Write(w io.Writer, format string) error {
	switch strings.ToLower(format) {
	case "", "text":
		return r.WriteText(w)
	case "json":
		return r.WriteJSON(w)
	case "yaml", "yml":
		return r.WriteYAML(w)
	default:
		return fmt.Errorf("unknown report format %q", format)
	}
}

// WriteJSON writes the report as indented JSON.
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// WriteYAML writes the report as YAML.
func (r *Report) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return err
	}
	return enc.Close()
}

// WriteText writes a human readable summary ending with the loops/avg_time line.
func (r *Report) WriteText(w io.Writer) error {
	var b strings.Builder
	fmt.Fprintf(&b, "run      %s (%s)\n", r.ID, r.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "model    %s\n", r.Model)
	if r.Runtime != "" {
		fmt.Fprintf(&b, "runtime  onnxruntime %s\n", r.Runtime)
	}
	fmt.Fprintf(&b, "host     %s, %d cores / %d threads, %s/%s",
		r.Host.CPU, r.Host.PhysicalCores, r.Host.LogicalCores, r.Host.OS, r.Host.Arch)
	if len(r.Host.Features) > 0 {
		fmt.Fprintf(&b, " [%s]", strings.Join(r.Host.Features, " "))
	}
	b.WriteString("\n")
	device := "cpu"
	if r.Session.GPUDevice >= 0 {
		device = fmt.Sprintf("cuda:%d", r.Session.GPUDevice)
	}
	fmt.Fprintf(&b, "session  %s, threads=%d/%d, optimization=%s, mode=%s\n",
		device, r.Session.IntraOpThreads, r.Session.InterOpThreads,
		r.Session.GraphOptimization, r.Session.ExecutionMode)
	fmt.Fprintf(&b, "source   %s\n", r.Source)
	for _, in := range r.Fed {
		fmt.Fprintf(&b, "  fed    %s\n", in)
	}
	for _, out := range r.Outputs {
		fmt.Fprintf(&b, "  output %s\n", out)
	}
	if len(r.Samples) > 0 {
		if err := writeSamples(&b, r.Samples); err != nil {
			return err
		}
	}
	l := r.Latency
	fmt.Fprintf(&b, "latency  mean=%.3fms min=%.3fms p50=%.3fms p90=%.3fms p99=%.3fms max=%.3fms stddev=%.3fms (%.1f/s)\n",
		l.Mean, l.Min, l.P50, l.P90, l.P99, l.Max, l.StdDev, l.Throughput)
	fmt.Fprintf(&b, "loops=%d avg_time=%g\n", r.Loops, r.AvgTime)

	_, err := io.WriteString(w, b.String())
	return err
}

// DescribeOutputs prints each output's shape followed by its first n values.
func DescribeOutputs(w io.Writer, outputs []Output, n int) error {
	return writeSamples(w, SampleOutputs(outputs, n))
}

func writeSamples(w io.Writer, samples []OutputSample) error {
	for _, s := range samples {
		if _, err := fmt.Fprintf(w, "%s [%s]:", s.Name, FormatDims(s.Shape)); err != nil {
			return err
		}
		for _, v := range s.Values {
			if _, err := fmt.Fprintf(w, " %.5f", v); err != nil {
				return err
			}
		}
		if len(s.Values) < s.Total {
			if _, err := fmt.Fprintf(w, " ... (%d values)", s.Total); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintln(w); err != nil {
			return err
		}
	}
	return nil
}
