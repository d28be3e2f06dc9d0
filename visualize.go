package ortbench

import (
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"
)

// VisualizeOptions selects which plane of which output becomes an image.
type VisualizeOptions struct {
	Output int
	// Channel indexes the HxW planes of the output, counting across all leading dims.
	Channel int
	// Scale multiplies each value before it is saturated to 0..255. Zero means 255.
	Scale float32
}

// DefaultVisualizeOptions shows the second plane of the first output, with values
// in [0, 1] mapped to [0, 255].
func DefaultVisualizeOptions() VisualizeOptions {
	return VisualizeOptions{Output: 0, Channel: 1, Scale: 255}
}

// OutputToGray renders one HxW plane of an output tensor of rank 3 or more,
// where H and W are its last two dims.
func OutputToGray(out Output, opts VisualizeOptions) (*image.Gray, error) {
	rank := len(out.Shape)
	if rank < 3 {
		return nil, fmt.Errorf("output %q has rank %d, need at least 3", out.Name, rank)
	}
	n, err := ElementCount(out.Shape)
	if err != nil {
		return nil, fmt.Errorf("output %q: %w", out.Name, err)
	}
	if n != len(out.Data) {
		return nil, fmt.Errorf("output %q: shape %s holds %d values, got %d: %w",
			out.Name, FormatDims(out.Shape), n, len(out.Data), ErrShapeMismatch)
	}

	h, w := int(out.Shape[rank-2]), int(out.Shape[rank-1])
	planes := n / (h * w)
	if opts.Channel < 0 || opts.Channel >= planes {
		return nil, fmt.Errorf("output %q has %d planes, channel %d out of range", out.Name, planes, opts.Channel)
	}

	scale := opts.Scale
	if scale == 0 {
		scale = 255
	}

	plane := out.Data[opts.Channel*h*w : (opts.Channel+1)*h*w]
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := range h {
		row := img.Pix[y*img.Stride : y*img.Stride+w]
		for x := range w {
			row[x] = saturate(plane[y*w+x] * scale)
		}
	}
	return img, nil
}

// SelectOutput picks the output to visualize.
func SelectOutput(outputs []Output, index int) (Output, error) {
	if index < 0 || index >= len(outputs) {
		return Output{}, fmt.Errorf("output index %d out of range, model produced %d", index, len(outputs))
	}
	return outputs[index], nil
}

// SaveGray writes img to path; the format follows the file extension.
func SaveGray(img *image.Gray, path string) error {
	if err := imaging.Save(img, path); err != nil {
		return fmt.Errorf("error saving image: %w", err)
	}
	return nil
}

// saturate rounds half away from zero and clamps to 0..255. NaN maps to 0.
func saturate(v float32) uint8 {
	if math.IsNaN(float64(v)) {
		return 0
	}
	r := math.Round(float64(v))
	if r <= 0 {
		return 0
	}
	if r >= 255 {
		return 255
	}
	return uint8(r)
}
