package ortbench

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"time"
)

// Inferer runs one forward pass.
type Inferer interface {
	Infer(ctx context.Context, inputs []Input) ([]Output, error)
}

// BenchmarkConfig sets how many passes are run.
type BenchmarkConfig struct {
	Loops  int
	Warmup int
}

// DefaultBenchmarkConfig runs one untimed warmup pass followed by 200 timed passes.
func DefaultBenchmarkConfig() BenchmarkConfig {
	return BenchmarkConfig{Loops: 200, Warmup: 1}
}

// Validate rejects non-positive loop counts and negative warmups.
func (c BenchmarkConfig) Validate() error {
	if c.Loops <= 0 {
		return fmt.Errorf("loops must be positive, got %d", c.Loops)
	}
	if c.Warmup < 0 {
		return fmt.Errorf("warmup must not be negative, got %d", c.Warmup)
	}
	return nil
}

// Result holds the timings of a benchmark run and the outputs of the last pass.
type Result struct {
	Loops     int
	Warmup    int
	Total     time.Duration
	Latencies []time.Duration
	Stats     LatencyStats
	Outputs   []Output
}

// AverageSeconds is the wall time of the timed loop divided by its passes.
func (r *Result) AverageSeconds() float64 {
	if r.Loops == 0 {
		return 0
	}
	return r.Total.Seconds() / float64(r.Loops)
}

// Release returns the buffers of the retained outputs.
func (r *Result) Release() {
	for i := range r.Outputs {
		r.Outputs[i].Release()
	}
	r.Outputs = nil
}

// Benchmark feeds the same inputs to inf Warmup times without timing, then Loops
// times with timing. Only the outputs of the final pass are kept.
func Benchmark(ctx context.Context, inf Inferer, inputs []Input, cfg BenchmarkConfig) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	for i := range cfg.Warmup {
		outputs, err := inf.Infer(ctx, inputs)
		if err != nil {
			return nil, fmt.Errorf("warmup pass %d: %w", i, err)
		}
		releaseAll(outputs)
	}

	res := &Result{
		Loops:     cfg.Loops,
		Warmup:    cfg.Warmup,
		Latencies: make([]time.Duration, 0, cfg.Loops),
	}

	start := time.Now()
	for i := range cfg.Loops {
		if err := ctx.Err(); err != nil {
			releaseAll(res.Outputs)
			return nil, err
		}

		passStart := time.Now()
		outputs, err := inf.Infer(ctx, inputs)
		elapsed := time.Since(passStart)
		if err != nil {
			releaseAll(res.Outputs)
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			return nil, fmt.Errorf("pass %d: %w", i, err)
		}

		releaseAll(res.Outputs)
		res.Outputs = outputs
		res.Latencies = append(res.Latencies, elapsed)
	}
	res.Total = time.Since(start)
	res.Stats = ComputeStats(res.Latencies)

	pkgLogger().Info("benchmark finished", "loops", res.Loops, "avg_time", res.AverageSeconds())
	return res, nil
}

func releaseAll(outputs []Output) {
	for i := range outputs {
		outputs[i].Release()
	}
}

// LatencyStats summarizes a set of per-pass latencies.
type LatencyStats struct {
	Count      int
	Total      time.Duration
	Mean       time.Duration
	Min        time.Duration
	Max        time.Duration
	StdDev     time.Duration
	P50        time.Duration
	P90        time.Duration
	P99        time.Duration
	Throughput float64 // passes per second
}

// ComputeStats derives mean, spread and nearest-rank percentiles.
func ComputeStats(latencies []time.Duration) LatencyStats {
	if len(latencies) == 0 {
		return LatencyStats{}
	}

	sorted := slices.Clone(latencies)
	slices.Sort(sorted)

	var total time.Duration
	for _, d := range sorted {
		total += d
	}
	mean := float64(total) / float64(len(sorted))

	var sq float64
	for _, d := range sorted {
		diff := float64(d) - mean
		sq += diff * diff
	}

	s := LatencyStats{
		Count:  len(sorted),
		Total:  total,
		Mean:   time.Duration(mean),
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
		StdDev: time.Duration(math.Sqrt(sq / float64(len(sorted)))),
		P50:    percentile(sorted, 50),
		P90:    percentile(sorted, 90),
		P99:    percentile(sorted, 99),
	}
	if total > 0 {
		s.Throughput = float64(len(sorted)) / total.Seconds()
	}
	return s
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	idx = clamp(idx, 0, len(sorted)-1)
	return sorted[idx]
}

func clamp(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
