package ortbench

import (
	"testing"
)

func TestBufferPool(t *testing.T) {
	pool := newBufferPool()

	t.Run("GetAndPut", func(t *testing.T) {
		size := 1024
		buf := pool.get(size)
		if len(buf.data) != size {
			t.Errorf("Expected size %d, got %d", size, len(buf.data))
		}
		pool.put(buf)
	})

	t.Run("Resizing", func(t *testing.T) {
		size1 := 100
		buf1 := pool.get(size1)
		pool.put(buf1)

		// Test growing
		size2 := 200
		buf2 := pool.get(size2)
		if len(buf2.data) != size2 {
			t.Errorf("Expected size %d, got %d", size2, len(buf2.data))
		}
		pool.put(buf2)

		size3 := 50
		buf3 := pool.get(size3)
		if len(buf3.data) != size3 {
			t.Errorf("Expected size %d, got %d", size3, len(buf3.data))
		}
		pool.put(buf3)
	})

	t.Run("ShrinkKeepsCapacity", func(t *testing.T) {
		buf := &floatBuffer{}
		buf.resize(200)
		cap1 := cap(buf.data)
		first := &buf.data[0]

		buf.resize(50)
		if len(buf.data) != 50 {
			t.Errorf("Expected size 50, got %d", len(buf.data))
		}
		if cap(buf.data) != cap1 {
			t.Errorf("Expected capacity %d to be retained, got %d", cap1, cap(buf.data))
		}
		if &buf.data[0] != first {
			t.Error("Expected the backing array to be reused")
		}

		buf.resize(300)
		if len(buf.data) != 300 || cap(buf.data) < 300 {
			t.Errorf("Expected growth to 300, got len %d cap %d", len(buf.data), cap(buf.data))
		}
	})
}

func TestTensorCache(t *testing.T) {
	// tensorCache allocates through the runtime, so it needs the shared library.
	requireRuntime(t)

	cache := newTensorCache()
	defer func() {
		if err := cache.destroy(); err != nil {
			t.Errorf("destroy: %v", err)
		}
	}()

	shape := []int64{1, 3, 8, 8}
	a, err := cache.get(shape)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	got := a.GetShape()
	if len(got) != len(shape) {
		t.Fatalf("Expected shape length %d, got %d", len(shape), len(got))
	}
	for i := range shape {
		if got[i] != shape[i] {
			t.Errorf("Expected shape[%d] = %d, got %d", i, shape[i], got[i])
		}
	}
	if len(a.GetData()) != 3*8*8 {
		t.Errorf("Expected %d elements, got %d", 3*8*8, len(a.GetData()))
	}

	cache.put(a)
	b, err := cache.get(shape)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if a != b {
		t.Error("Expected the released tensor to be reused")
	}

	if _, err := cache.get([]int64{1, 4}); err != nil {
		t.Fatalf("get: %v", err)
	}
	if n := cache.size(); n != 2 {
		t.Errorf("Expected 2 live tensors, got %d", n)
	}
}
