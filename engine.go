package ortbench

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/cpuid/v2"
	ort "github.com/yalue/onnxruntime_go"
)

// EngineConfig configures the inference session.
type EngineConfig struct {
	ModelPath         string
	IntraOpNumThreads int
	InterOpNumThreads int
	// GraphOptimization is one of disable, basic, extended or all.
	GraphOptimization string
	// ExecutionMode is sequential or parallel.
	ExecutionMode string
	CpuMemArena   bool
	MemPattern    bool
	// GPUDevice selects a CUDA device; negative runs on CPU only.
	GPUDevice int
	// OutputNames restricts the fetched outputs. Empty fetches all of them.
	OutputNames []string
	// ReuseTensors keeps input tensors alive between calls.
	ReuseTensors bool
}

// DefaultEngineConfig returns the settings the harness uses when nothing is overridden.
func DefaultEngineConfig(modelPath string) EngineConfig {
	return EngineConfig{
		ModelPath:         modelPath,
		IntraOpNumThreads: DefaultThreads(),
		InterOpNumThreads: 1,
		GraphOptimization: "extended",
		ExecutionMode:     "sequential",
		CpuMemArena:       true,
		MemPattern:        true,
		GPUDevice:         -1,
	}
}

// DefaultThreads is the number of physical cores, or the logical CPU count when
// the CPU cannot be identified.
func DefaultThreads() int {
	if n := cpuid.CPU.PhysicalCores; n > 0 {
		return n
	}
	return runtime.NumCPU()
}

// Input is a float32 tensor fed to the model. An empty Name binds by position.
type Input struct {
	Name  string
	Shape []int64
	Data  []float32
}

// Output is a Go-owned copy of a model output.
type Output struct {
	Name  string
	Shape []int64
	Data  []float32

	buf  *floatBuffer
	pool *bufferPool
}

// Release hands the output buffer back for reuse. Data must not be used afterwards.
func (o *Output) Release() {
	if o.buf != nil && o.pool != nil {
		o.pool.put(o.buf)
	}
	o.buf = nil
	o.Data = nil
}

// CallStats accumulates per-call latency. The first call warms the device up and
// is left out of the average.
type CallStats struct {
	Calls int
	Timed int
	Total time.Duration
	Last  time.Duration
}

// Average is the mean latency of the timed calls.
func (s CallStats) Average() time.Duration {
	if s.Timed == 0 {
		return 0
	}
	return s.Total / time.Duration(s.Timed)
}

// ErrEngineClosed is returned by Infer once Close has been called.
var ErrEngineClosed = errors.New("engine closed")

// Engine wraps an ONNX Runtime session bound to every model input.
type Engine struct {
	cfg       EngineConfig
	session   *ort.DynamicAdvancedSession
	sessionMu sync.Mutex

	inputs     []TensorInfo
	outputs    []TensorInfo
	inputTypes []ort.TensorElementDataType

	tensors *tensorCache
	buffers *bufferPool

	statsMu sync.Mutex
	stats   CallStats
}

// NewEngine loads the model and introspects its signature. InitRuntime must have
// been called first.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.ModelPath == "" {
		return nil, errors.New("model path is required")
	}

	inputInfo, outputInfo, err := ort.GetInputOutputInfo(cfg.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read model signature: %w", err)
	}

	e := &Engine{
		cfg:     cfg,
		tensors: newTensorCache(),
		buffers: newBufferPool(),
	}

	for _, info := range inputInfo {
		if info.OrtValueType != ort.ONNXTypeTensor {
			return nil, fmt.Errorf("input %q is not a tensor: %w", info.Name, ErrUnsupportedType)
		}
		e.inputs = append(e.inputs, tensorInfo(info))
		e.inputTypes = append(e.inputTypes, info.DataType)
	}

	outputs, err := selectOutputs(outputInfo, cfg.OutputNames)
	if err != nil {
		return nil, err
	}
	e.outputs = outputs

	logSignature("input", e.inputs)
	logSignature("output", e.outputs)

	session, err := createSession(cfg, names(e.inputs), names(e.outputs))
	if err != nil {
		return nil, err
	}
	e.session = session

	return e, nil
}

func tensorInfo(info ort.InputOutputInfo) TensorInfo {
	return TensorInfo{
		Name:        info.Name,
		ElementType: info.DataType.String(),
		Dims:        cloneDims(info.Dimensions),
	}
}

func selectOutputs(all []ort.InputOutputInfo, wanted []string) ([]TensorInfo, error) {
	var out []TensorInfo
	if len(wanted) == 0 {
		for _, info := range all {
			if info.OrtValueType != ort.ONNXTypeTensor {
				pkgLogger().Warn("skipping non-tensor output", "name", info.Name)
				continue
			}
			out = append(out, tensorInfo(info))
		}
		if len(out) == 0 {
			return nil, errors.New("model has no tensor outputs")
		}
		return out, nil
	}

	for _, name := range wanted {
		idx := slices.IndexFunc(all, func(info ort.InputOutputInfo) bool { return info.Name == name })
		if idx < 0 {
			return nil, fmt.Errorf("model has no output named %q", name)
		}
		if all[idx].OrtValueType != ort.ONNXTypeTensor {
			return nil, fmt.Errorf("output %q is not a tensor: %w", name, ErrUnsupportedType)
		}
		out = append(out, tensorInfo(all[idx]))
	}
	return out, nil
}

func logSignature(kind string, infos []TensorInfo) {
	l := pkgLogger()
	l.Info(kind+" number", "count", len(infos))
	for i, info := range infos {
		l.Info(kind, "id", i, "name", info.Name, "type", info.ElementType, "dims", info.Rank(), "shape", FormatDims(info.Dims))
	}
}

func names(infos []TensorInfo) []string {
	out := make([]string, len(infos))
	for i, info := range infos {
		out[i] = info.Name
	}
	return out
}

func createSession(cfg EngineConfig, inputNames, outputNames []string) (*ort.DynamicAdvancedSession, error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer options.Destroy()

	if err := configureOptions(options, cfg); err != nil {
		return nil, err
	}

	session, err := ort.NewDynamicAdvancedSession(cfg.ModelPath, inputNames, outputNames, options)
	if err != nil {
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}
	return session, nil
}

func configureOptions(options *ort.SessionOptions, cfg EngineConfig) error {
	level, err := ParseGraphOptimization(cfg.GraphOptimization)
	if err != nil {
		return err
	}
	mode, err := ParseExecutionMode(cfg.ExecutionMode)
	if err != nil {
		return err
	}

	if cfg.IntraOpNumThreads > 0 {
		if err := options.SetIntraOpNumThreads(cfg.IntraOpNumThreads); err != nil {
			return fmt.Errorf("failed to set intra-op threads: %w", err)
		}
	}
	if cfg.InterOpNumThreads > 0 {
		if err := options.SetInterOpNumThreads(cfg.InterOpNumThreads); err != nil {
			return fmt.Errorf("failed to set inter-op threads: %w", err)
		}
	}
	if err := options.SetCpuMemArena(cfg.CpuMemArena); err != nil {
		return fmt.Errorf("failed to set cpu mem arena: %w", err)
	}
	if err := options.SetMemPattern(cfg.MemPattern); err != nil {
		return fmt.Errorf("failed to set mem pattern: %w", err)
	}
	if err := options.SetExecutionMode(mode); err != nil {
		return fmt.Errorf("failed to set execution mode: %w", err)
	}
	if err := options.SetGraphOptimizationLevel(level); err != nil {
		return fmt.Errorf("failed to set graph optimization level: %w", err)
	}

	if cfg.GPUDevice >= 0 {
		if err := appendCUDA(options, cfg.GPUDevice); err != nil {
			pkgLogger().Warn("CUDA provider unavailable, running on CPU", "device", cfg.GPUDevice, "err", err)
		} else {
			pkgLogger().Info("CUDA provider enabled", "device", cfg.GPUDevice)
		}
	}
	return nil
}

func appendCUDA(options *ort.SessionOptions, device int) error {
	cudaOptions, err := ort.NewCUDAProviderOptions()
	if err != nil {
		return err
	}
	defer cudaOptions.Destroy()

	err = cudaOptions.Update(map[string]string{
		"device_id": strconv.Itoa(device),
	})
	if err != nil {
		return err
	}
	return options.AppendExecutionProviderCUDA(cudaOptions)
}

// ParseGraphOptimization maps disable, basic, extended and all to runtime levels.
func ParseGraphOptimization(s string) (ort.GraphOptimizationLevel, error) {
	switch strings.ToLower(s) {
	case "disable", "none":
		return ort.GraphOptimizationLevelDisableAll, nil
	case "basic":
		return ort.GraphOptimizationLevelEnableBasic, nil
	case "", "extended":
		return ort.GraphOptimizationLevelEnableExtended, nil
	case "all":
		return ort.GraphOptimizationLevelEnableAll, nil
	default:
		return 0, fmt.Errorf("unknown graph optimization level %q", s)
	}
}

// ParseExecutionMode maps sequential and parallel to runtime execution modes.
func ParseExecutionMode(s string) (ort.ExecutionMode, error) {
	switch strings.ToLower(s) {
	case "", "sequential":
		return ort.ExecutionModeSequential, nil
	case "parallel":
		return ort.ExecutionModeParallel, nil
	default:
		return 0, fmt.Errorf("unknown execution mode %q", s)
	}
}

// Inputs returns the model input signatures.
func (e *Engine) Inputs() []TensorInfo {
	return slices.Clone(e.inputs)
}

// Outputs returns the signatures of the outputs fetched by Infer.
func (e *Engine) Outputs() []TensorInfo {
	return slices.Clone(e.outputs)
}

// Config returns the configuration the engine was built with.
func (e *Engine) Config() EngineConfig {
	return e.cfg
}

// Stats returns the accumulated call latencies.
func (e *Engine) Stats() CallStats {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()
	return e.stats
}

// Infer runs one forward pass and copies every fetched output into Go memory.
func (e *Engine) Infer(ctx context.Context, inputs []Input) ([]Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if e.closed() {
		return nil, ErrEngineClosed
	}

	ordered, err := e.bindInputs(inputs)
	if err != nil {
		return nil, err
	}

	values := make([]ort.Value, len(ordered))
	defer e.releaseInputs(values)
	for i, in := range ordered {
		v, err := e.newInputTensor(in)
		if err != nil {
			return nil, fmt.Errorf("failed to create input %q: %w", e.inputs[i].Name, err)
		}
		values[i] = v
	}

	results := make([]ort.Value, len(e.outputs))
	defer func() {
		for _, v := range results {
			if v != nil {
				v.Destroy()
			}
		}
	}()

	if err := e.run(values, results); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	outputs := make([]Output, len(results))
	for i, v := range results {
		out, err := e.copyOutput(e.outputs[i].Name, v)
		if err != nil {
			for j := range i {
				outputs[j].Release()
			}
			return nil, err
		}
		outputs[i] = out
	}
	return outputs, nil
}

func (e *Engine) run(inputs, outputs []ort.Value) error {
	start := time.Now()
	e.sessionMu.Lock()
	if e.session == nil {
		e.sessionMu.Unlock()
		return ErrEngineClosed
	}
	err := e.session.Run(inputs, outputs)
	e.sessionMu.Unlock()
	if err != nil {
		return err
	}
	e.record(time.Since(start))
	return nil
}

func (e *Engine) closed() bool {
	e.sessionMu.Lock()
	defer e.sessionMu.Unlock()
	return e.session == nil
}

func (e *Engine) record(d time.Duration) {
	e.statsMu.Lock()
	e.stats.Calls++
	e.stats.Last = d
	if e.stats.Calls > 1 {
		e.stats.Timed++
		e.stats.Total += d
	}
	s := e.stats
	e.statsMu.Unlock()

	if s.Timed > 0 {
		pkgLogger().Debug("inference", "cur_loop", s.Calls, "avg_time", s.Average().Seconds())
	}
}

// bindInputs orders inputs to match the model. Named inputs go to their slot,
// unnamed ones fill the remaining slots in order.
func (e *Engine) bindInputs(inputs []Input) ([]Input, error) {
	if len(inputs) != len(e.inputs) {
		return nil, fmt.Errorf("model takes %d inputs, got %d", len(e.inputs), len(inputs))
	}

	ordered := make([]Input, len(e.inputs))
	filled := make([]bool, len(e.inputs))
	var unnamed []Input
	for _, in := range inputs {
		if in.Name == "" {
			unnamed = append(unnamed, in)
			continue
		}
		idx := slices.IndexFunc(e.inputs, func(t TensorInfo) bool { return t.Name == in.Name })
		if idx < 0 {
			return nil, fmt.Errorf("model has no input named %q", in.Name)
		}
		if filled[idx] {
			return nil, fmt.Errorf("input %q given twice", in.Name)
		}
		ordered[idx] = in
		filled[idx] = true
	}
	for i := range ordered {
		if filled[i] {
			continue
		}
		ordered[i] = unnamed[0]
		unnamed = unnamed[1:]
	}

	for i, in := range ordered {
		if err := e.checkInput(i, in); err != nil {
			return nil, err
		}
	}
	return ordered, nil
}

func (e *Engine) checkInput(i int, in Input) error {
	info := e.inputs[i]
	if e.inputTypes[i] != ort.TensorElementDataTypeFloat {
		return fmt.Errorf("input %q is %s: %w", info.Name, info.ElementType, ErrUnsupportedType)
	}
	if len(in.Shape) != info.Rank() {
		return fmt.Errorf("input %q: rank %d, model expects %d: %w",
			info.Name, len(in.Shape), info.Rank(), ErrShapeMismatch)
	}
	for j, d := range info.Dims {
		if d > 0 && in.Shape[j] != d {
			return fmt.Errorf("input %q: shape %s, model expects %s: %w",
				info.Name, FormatDims(in.Shape), FormatDims(info.Dims), ErrShapeMismatch)
		}
	}
	n, err := ElementCount(in.Shape)
	if err != nil {
		return fmt.Errorf("input %q: %w", info.Name, err)
	}
	if n != len(in.Data) {
		return fmt.Errorf("input %q: shape %s holds %d values, got %d: %w",
			info.Name, FormatDims(in.Shape), n, len(in.Data), ErrShapeMismatch)
	}
	return nil
}

func (e *Engine) newInputTensor(in Input) (ort.Value, error) {
	if !e.cfg.ReuseTensors {
		return ort.NewTensor(ort.NewShape(in.Shape...), in.Data)
	}
	t, err := e.tensors.get(in.Shape)
	if err != nil {
		return nil, err
	}
	copy(t.GetData(), in.Data)
	return t, nil
}

func (e *Engine) releaseInputs(values []ort.Value) {
	for _, v := range values {
		if v == nil {
			continue
		}
		if t, ok := v.(*ort.Tensor[float32]); ok && e.cfg.ReuseTensors {
			e.tensors.put(t)
			continue
		}
		v.Destroy()
	}
}

func (e *Engine) copyOutput(name string, v ort.Value) (Output, error) {
	if v == nil {
		return Output{}, fmt.Errorf("output %q was not produced", name)
	}
	shape := cloneDims(v.GetShape())
	n := int(ort.NewShape(shape...).FlattenedSize())

	buf := e.buffers.get(n)
	switch t := v.(type) {
	case *ort.Tensor[float32]:
		copy(buf.data, t.GetData())
	case *ort.Tensor[float64]:
		convertInto(buf.data, t.GetData())
	case *ort.Tensor[int64]:
		convertInto(buf.data, t.GetData())
	case *ort.Tensor[int32]:
		convertInto(buf.data, t.GetData())
	case *ort.Tensor[int8]:
		convertInto(buf.data, t.GetData())
	case *ort.Tensor[uint8]:
		convertInto(buf.data, t.GetData())
	default:
		e.buffers.put(buf)
		return Output{}, fmt.Errorf("output %q: %w", name, ErrUnsupportedType)
	}

	return Output{
		Name:  name,
		Shape: shape,
		Data:  buf.data,
		buf:   buf,
		pool:  e.buffers,
	}, nil
}

func convertInto[T float64 | int64 | int32 | int8 | uint8](dst []float32, src []T) {
	for i := range min(len(dst), len(src)) {
		dst[i] = float32(src[i])
	}
}

// Close destroys the cached tensors and the session.
func (e *Engine) Close() error {
	var errs []error
	if e.tensors != nil {
		errs = append(errs, e.tensors.destroy())
	}
	if e.session != nil {
		e.sessionMu.Lock()
		errs = append(errs, e.session.Destroy())
		e.session = nil
		e.sessionMu.Unlock()
	}
	return errors.Join(errs...)
}
