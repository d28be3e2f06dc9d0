package ortbench

import (
	"image"
	"image/color"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHWCToCHW(t *testing.T) {
	// 2x2 image with 3 channels, pixel (h, w) channel c = 100*h + 10*w + c
	pix := []uint8{
		0, 1, 2, 10, 11, 12,
		100, 101, 102, 110, 111, 112,
	}
	data := HWCToCHW(pix, 2, 2, 3, 6)
	want := []float32{
		0, 10, 100, 110,
		1, 11, 101, 111,
		2, 12, 102, 112,
	}
	assert.Equal(t, want, data)
}

func TestHWCToCHW_Stride(t *testing.T) {
	// one row of padding bytes after each 1x2 row
	pix := []uint8{
		1, 2, 9, 9,
		3, 4, 9, 9,
	}
	data := HWCToCHW(pix, 2, 1, 2, 4)
	assert.Equal(t, []float32{1, 3, 2, 4}, data)
}

func testImage(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(10 * x), G: uint8(10 * y), B: 200, A: 255})
		}
	}
	return img
}

func TestPreprocess(t *testing.T) {
	t.Run("BGRNoResize", func(t *testing.T) {
		img := testImage(2, 2)
		in, err := Preprocess(img, ImageOptions{})
		require.NoError(t, err)

		assert.Equal(t, []int64{1, 3, 2, 2}, in.Shape)
		require.Len(t, in.Data, 12)
		// channel 0 is blue
		assert.Equal(t, []float32{200, 200, 200, 200}, in.Data[0:4])
		// channel 1 is green: 10*y
		assert.Equal(t, []float32{0, 0, 10, 10}, in.Data[4:8])
		// channel 2 is red: 10*x
		assert.Equal(t, []float32{0, 10, 0, 10}, in.Data[8:12])
	})

	t.Run("RGB", func(t *testing.T) {
		in, err := Preprocess(testImage(2, 2), ImageOptions{ChannelOrder: "rgb"})
		require.NoError(t, err)
		assert.Equal(t, []float32{0, 10, 0, 10}, in.Data[0:4])
		assert.Equal(t, []float32{200, 200, 200, 200}, in.Data[8:12])
	})

	t.Run("ScaleAndNormalize", func(t *testing.T) {
		in, err := Preprocess(testImage(1, 1), ImageOptions{
			ChannelOrder: "rgb",
			Scale:        1.0 / 255,
			Mean:         []float32{0, 0, 0.5},
			Std:          []float32{1, 1, 0.5},
		})
		require.NoError(t, err)
		assert.InDelta(t, 0, in.Data[0], 1e-6)
		assert.InDelta(t, 0, in.Data[1], 1e-6)
		assert.InDelta(t, (200.0/255-0.5)/0.5, in.Data[2], 1e-5)
	})

	t.Run("CropAndResize", func(t *testing.T) {
		img := testImage(40, 30)
		in, err := Preprocess(img, ImageOptions{
			Crop:   image.Rect(10, 5, 30, 25),
			Width:  8,
			Height: 4,
		})
		require.NoError(t, err)
		assert.Equal(t, []int64{1, 3, 4, 8}, in.Shape)
		assert.Len(t, in.Data, 3*4*8)
	})

	t.Run("WidthOnlyKeepsAspect", func(t *testing.T) {
		in, err := Preprocess(testImage(40, 30), ImageOptions{Width: 20})
		require.NoError(t, err)
		assert.Equal(t, []int64{1, 3, 15, 20}, in.Shape)
		assert.Len(t, in.Data, 3*15*20)
	})

	t.Run("HeightOnlyKeepsAspect", func(t *testing.T) {
		in, err := Preprocess(testImage(40, 30), ImageOptions{Height: 6})
		require.NoError(t, err)
		assert.Equal(t, []int64{1, 3, 6, 8}, in.Shape)
	})

	t.Run("CropClampedToBounds", func(t *testing.T) {
		img := testImage(20, 20)
		in, err := Preprocess(img, ImageOptions{Crop: image.Rect(10, 10, 100, 100)})
		require.NoError(t, err)
		assert.Equal(t, []int64{1, 3, 10, 10}, in.Shape)
		// first red value comes from x=10
		assert.Equal(t, float32(100), in.Data[2*100])
	})

	t.Run("CropOutside", func(t *testing.T) {
		_, err := Preprocess(testImage(10, 10), ImageOptions{Crop: image.Rect(50, 50, 60, 60)})
		assert.ErrorIs(t, err, ErrEmptyCrop)
	})

	t.Run("NonZeroOrigin", func(t *testing.T) {
		img := testImage(20, 20).SubImage(image.Rect(5, 5, 15, 15))
		in, err := Preprocess(img, ImageOptions{Crop: image.Rect(0, 0, 4, 4)})
		require.NoError(t, err)
		assert.Equal(t, []int64{1, 3, 4, 4}, in.Shape)
		// crop is relative to the sub-image origin, so red starts at x=5
		assert.Equal(t, float32(50), in.Data[2*16])
	})

	t.Run("BadOptions", func(t *testing.T) {
		_, err := Preprocess(testImage(2, 2), ImageOptions{ChannelOrder: "bgra"})
		assert.Error(t, err)
		_, err = Preprocess(testImage(2, 2), ImageOptions{Mean: []float32{1}})
		assert.Error(t, err)
		_, err = Preprocess(testImage(2, 2), ImageOptions{Std: []float32{1, 0, 1}})
		assert.Error(t, err)
		_, err = Preprocess(testImage(2, 2), ImageOptions{Width: 4, Height: -1})
		assert.Error(t, err)
		_, err = Preprocess(testImage(2, 2), ImageOptions{Width: -4})
		assert.Error(t, err)
	})
}

func TestDefaultImageOptions(t *testing.T) {
	opts := DefaultImageOptions()
	assert.Equal(t, image.Rect(0, 120, 1920, 1080), opts.Crop)
	assert.Equal(t, 1920, opts.Crop.Dx())
	assert.Equal(t, 960, opts.Crop.Dy())
	assert.Equal(t, 1024, opts.Width)
	assert.Equal(t, 512, opts.Height)
	assert.Equal(t, "bgr", opts.ChannelOrder)
}

func TestLoadImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "input.png")
	require.NoError(t, imaging.Save(testImage(6, 4), path))

	img, err := LoadImage(path)
	require.NoError(t, err)
	assert.Equal(t, 6, img.Bounds().Dx())
	assert.Equal(t, 4, img.Bounds().Dy())

	_, err = LoadImage(filepath.Join(t.TempDir(), "missing.png"))
	assert.Error(t, err)
}
