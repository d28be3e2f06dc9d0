package ortbench

import (
	"errors"
	"fmt"
	"image"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

// ErrEmptyCrop is returned when the crop rectangle misses the image entirely.
var ErrEmptyCrop = errors.New("crop rectangle does not intersect the image")

// ImageOptions controls how an image becomes a CHW float tensor.
type ImageOptions struct {
	// Crop is applied before resizing. The zero rectangle keeps the whole image.
	Crop image.Rectangle
	// Width and Height of the tensor. Zero for both keeps the cropped size, zero
	// for one of them keeps the aspect ratio.
	Width  int
	Height int
	// ChannelOrder is bgr or rgb.
	ChannelOrder string
	// Scale multiplies raw 0..255 values. Zero means 1.
	Scale float32
	// Mean and Std, when set, normalize each channel as (v-mean)/std after scaling.
	Mean []float32
	Std  []float32
}

// DefaultImageOptions crops a 1920x960 band starting at row 120 and resizes it
// to 1024x512, keeping raw BGR values.
func DefaultImageOptions() ImageOptions {
	return ImageOptions{
		Crop:         image.Rect(0, 120, 1920, 1080),
		Width:        1024,
		Height:       512,
		ChannelOrder: "bgr",
		Scale:        1,
	}
}

// LoadImage decodes an image file (jpeg, png, gif, bmp, tiff or webp).
func LoadImage(path string) (image.Image, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("error opening image: %w", err)
	}
	return img, nil
}

// Preprocess crops, resizes and reorders img into a {1, 3, H, W} input.
func Preprocess(img image.Image, opts ImageOptions) (Input, error) {
	order, err := channelOrder(opts.ChannelOrder)
	if err != nil {
		return Input{}, err
	}
	if err := checkSize(opts); err != nil {
		return Input{}, err
	}
	if err := checkNormalization(opts); err != nil {
		return Input{}, err
	}

	src := img
	if !opts.Crop.Empty() {
		rect := opts.Crop.Add(img.Bounds().Min).Intersect(img.Bounds())
		if rect.Empty() {
			return Input{}, fmt.Errorf("crop %v on image %v: %w", opts.Crop, img.Bounds(), ErrEmptyCrop)
		}
		src = imaging.Crop(img, rect)
	}

	var nrgba *image.NRGBA
	if opts.Width > 0 || opts.Height > 0 {
		nrgba = imaging.Resize(src, opts.Width, opts.Height, imaging.Linear)
	} else {
		nrgba = imaging.Clone(src)
	}

	w, h := nrgba.Bounds().Dx(), nrgba.Bounds().Dy()
	packed := packChannels(nrgba, order)
	data := HWCToCHW(packed, h, w, 3, w*3)

	scale := opts.Scale
	if scale == 0 {
		scale = 1
	}
	plane := h * w
	for c := range 3 {
		mean, std := float32(0), float32(1)
		if len(opts.Mean) == 3 {
			mean = opts.Mean[c]
		}
		if len(opts.Std) == 3 {
			std = opts.Std[c]
		}
		ch := data[c*plane : (c+1)*plane]
		for i, v := range ch {
			ch[i] = (v*scale - mean) / std
		}
	}

	return Input{
		Shape: []int64{1, 3, int64(h), int64(w)},
		Data:  data,
	}, nil
}

// HWCToCHW reorders interleaved pixels (rows stride bytes apart) into planar
// float32 data laid out as data[(c*height+h)*width+w].
func HWCToCHW(pix []uint8, height, width, channels, stride int) []float32 {
	data := make([]float32, channels*height*width)
	for h := range height {
		row := pix[h*stride : h*stride+width*channels]
		idx := 0
		for w := range width {
			for c := range channels {
				data[(c*height+h)*width+w] = float32(row[idx])
				idx++
			}
		}
	}
	return data
}

// packChannels drops alpha and writes the three color channels in order.
func packChannels(img *image.NRGBA, order [3]int) []uint8 {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	out := make([]uint8, w*h*3)
	for y := range h {
		row := img.Pix[y*img.Stride : y*img.Stride+w*4]
		for x := range w {
			base := x * 4
			dst := (y*w + x) * 3
			out[dst+0] = row[base+order[0]]
			out[dst+1] = row[base+order[1]]
			out[dst+2] = row[base+order[2]]
		}
	}
	return out
}

func channelOrder(s string) ([3]int, error) {
	switch strings.ToLower(s) {
	case "", "bgr":
		return [3]int{2, 1, 0}, nil
	case "rgb":
		return [3]int{0, 1, 2}, nil
	default:
		return [3]int{}, fmt.Errorf("unknown channel order %q", s)
	}
}

func checkSize(opts ImageOptions) error {
	if opts.Width < 0 || opts.Height < 0 {
		return fmt.Errorf("image size must not be negative, got %dx%d", opts.Width, opts.Height)
	}
	return nil
}

func checkNormalization(opts ImageOptions) error {
	if n := len(opts.Mean); n != 0 && n != 3 {
		return fmt.Errorf("mean needs 3 values, got %d", n)
	}
	if n := len(opts.Std); n != 0 && n != 3 {
		return fmt.Errorf("std needs 3 values, got %d", n)
	}
	for i, s := range opts.Std {
		if s == 0 {
			return fmt.Errorf("std[%d] is zero", i)
		}
	}
	return nil
}
