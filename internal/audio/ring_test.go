package audio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingWriteRead(t *testing.T) {
	r := NewRing(8)
	r.Write([]int16{1, 2, 3})
	assert.Equal(t, 3, r.Len())

	dst := make([]int16, 2)
	n, ok := r.ReadPartial(dst)
	assert.True(t, ok)
	assert.Equal(t, 2, n)
	assert.Equal(t, []int16{1, 2}, dst)
	assert.Equal(t, 1, r.Len())
}

func TestRingOverwritesOldest(t *testing.T) {
	r := NewRing(4)
	r.Write([]int16{1, 2, 3, 4})
	r.Write([]int16{5, 6})
	assert.Equal(t, 4, r.Len())

	dst := make([]int16, 4)
	n, ok := r.ReadPartial(dst)
	assert.True(t, ok)
	assert.Equal(t, 4, n)
	assert.Equal(t, []int16{3, 4, 5, 6}, dst)
}

func TestRingReadEmpty(t *testing.T) {
	r := NewRing(4)
	dst := make([]int16, 4)
	n, ok := r.ReadPartial(dst)
	assert.True(t, ok)
	assert.Zero(t, n)
}

func TestRingReadBlocksUntilWrite(t *testing.T) {
	r := NewRing(8)

	got := make(chan []int16, 1)
	go func() {
		dst := make([]int16, 4)
		n, ok := r.Read(dst)
		if ok {
			got <- dst[:n]
		}
	}()

	select {
	case <-got:
		t.Fatal("read returned before any write")
	case <-time.After(20 * time.Millisecond):
	}

	r.Write([]int16{7, 8})
	select {
	case samples := <-got:
		assert.Equal(t, []int16{7, 8}, samples)
	case <-time.After(time.Second):
		t.Fatal("read did not wake on write")
	}
}

func TestRingCloseUnblocksRead(t *testing.T) {
	r := NewRing(8)

	returned := make(chan bool, 1)
	go func() {
		_, ok := r.Read(make([]int16, 4))
		returned <- ok
	}()

	r.Close()
	select {
	case ok := <-returned:
		require.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("close did not unblock read")
	}
}

func TestRingClose(t *testing.T) {
	r := NewRing(4)
	r.Write([]int16{1})
	r.Close()

	dst := make([]int16, 4)
	_, ok := r.ReadPartial(dst)
	assert.False(t, ok)
}
