package ortbench

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTensorInfo(t *testing.T) {
	t.Run("Fixed", func(t *testing.T) {
		info := TensorInfo{Name: "image", ElementType: "float", Dims: []int64{1, 3, 512, 1024}}
		assert.Equal(t, 4, info.Rank())
		assert.False(t, info.IsDynamic())
		assert.Equal(t, 3*512*1024, info.ElementCount())
		assert.Equal(t, []int64{1, 3, 512, 1024}, info.Resolve(nil))
	})

	t.Run("Dynamic", func(t *testing.T) {
		info := TensorInfo{Name: "state", Dims: []int64{-1, 1, 80}}
		assert.True(t, info.IsDynamic())
		assert.Equal(t, 80, info.ElementCount())
		assert.Equal(t, []int64{1, 1, 80}, info.Resolve(nil))
		assert.Equal(t, []int64{4, 1, 80}, info.Resolve([]int64{4}))
	})

	t.Run("ResolveKeepsFixedDims", func(t *testing.T) {
		info := TensorInfo{Dims: []int64{2, -1}}
		assert.Equal(t, []int64{2, 7}, info.Resolve([]int64{9, 7}))
	})

	t.Run("String", func(t *testing.T) {
		info := TensorInfo{Name: "x", ElementType: "float", Dims: []int64{-1, 3}}
		assert.Equal(t, "x float[?x3]", info.String())
	})
}

func TestElementCount(t *testing.T) {
	n, err := ElementCount([]int64{224, 224, 12})
	require.NoError(t, err)
	assert.Equal(t, 224*224*12, n)

	n, err = ElementCount(nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "scalar holds one element")

	_, err = ElementCount([]int64{1, -1})
	assert.ErrorIs(t, err, ErrDynamicShape)
}

func TestParseDims(t *testing.T) {
	tests := []struct {
		in      string
		want    []int64
		wantErr bool
	}{
		{"1x3x224x224", []int64{1, 3, 224, 224}, false},
		{"4,1,80", []int64{4, 1, 80}, false},
		{"?x3", []int64{-1, 3}, false},
		{"-1X3", []int64{-1, 3}, false},
		{" 7 ", []int64{7}, false},
		{"", nil, true},
		{"1x0", nil, true},
		{"1xa", nil, true},
		{"-2", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDims(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatDims(t *testing.T) {
	assert.Equal(t, "1x3x?x?", FormatDims([]int64{1, 3, -1, 0}))
	assert.Equal(t, "", FormatDims(nil))

	dims, err := ParseDims(FormatDims([]int64{8, 1, 4, 224, 224}))
	require.NoError(t, err)
	assert.Equal(t, []int64{8, 1, 4, 224, 224}, dims)
}
