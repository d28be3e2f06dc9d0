package ortbench

import (
	"fmt"
	"math/rand/v2"
	"slices"
)

// RandomInputs builds one input per model input filled with uniform values in
// [0, 1). Shapes come from overrides when given, otherwise from the model with
// dynamic dims set to 1. The same seed always yields the same data.
func RandomInputs(infos []TensorInfo, overrides map[string][]int64, seed uint64) ([]Input, error) {
	for name := range overrides {
		if !slices.ContainsFunc(infos, func(t TensorInfo) bool { return t.Name == name }) {
			return nil, fmt.Errorf("shape override for unknown input %q", name)
		}
	}

	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	inputs := make([]Input, 0, len(infos))
	for _, info := range infos {
		shape := info.Resolve(nil)
		if dims, ok := overrides[info.Name]; ok {
			if len(dims) != info.Rank() {
				return nil, fmt.Errorf("override %s for input %q has rank %d, model expects %d: %w",
					FormatDims(dims), info.Name, len(dims), info.Rank(), ErrShapeMismatch)
			}
			shape = info.Resolve(dims)
			for i, d := range dims {
				if d <= 0 {
					continue
				}
				shape[i] = d
			}
		}

		n, err := ElementCount(shape)
		if err != nil {
			return nil, fmt.Errorf("input %q: %w", info.Name, err)
		}
		data := make([]float32, n)
		for i := range data {
			data[i] = rng.Float32()
		}
		inputs = append(inputs, Input{Name: info.Name, Shape: shape, Data: data})
	}
	return inputs, nil
}
