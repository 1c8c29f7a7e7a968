package memory

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rec struct {
	A int
	B string
}

func TestSlabAllocateFree(t *testing.T) {
	s := NewSlab[rec](3)
	require.Equal(t, 3, s.Cap())
	require.Equal(t, 3, s.Available())

	h1, err := s.Allocate()
	require.NoError(t, err)
	assert.Equal(t, Handle(0), h1, "lowest index handed out first")

	s.At(h1).A = 7
	assert.True(t, s.Live(h1))
	assert.Equal(t, 1, s.Len())

	require.NoError(t, s.Free(h1))
	assert.False(t, s.Live(h1))
	assert.Equal(t, 0, s.Len())

	h2, err := s.Allocate()
	require.NoError(t, err)
	assert.Equal(t, h1, h2, "freed slot is reused")
	assert.Equal(t, rec{}, *s.At(h2), "reused slot is zeroed")
}

func TestSlabExhaustion(t *testing.T) {
	s := NewSlab[rec](2)
	_, err := s.Allocate()
	require.NoError(t, err)
	_, err = s.Allocate()
	require.NoError(t, err)

	h, err := s.Allocate()
	assert.Equal(t, NilHandle, h)
	assert.True(t, errors.Is(err, ErrSlabExhausted))
	assert.Equal(t, 0, s.Available())
}

func TestSlabRejectsDoubleFree(t *testing.T) {
	s := NewSlab[rec](2)
	h, _ := s.Allocate()
	require.NoError(t, s.Free(h))

	err := s.Free(h)
	assert.ErrorIs(t, err, ErrDoubleFree)
	assert.Equal(t, 2, s.Available(), "free stack must not grow on double free")
}

func TestSlabRejectsInvalidHandle(t *testing.T) {
	s := NewSlab[rec](1)
	assert.ErrorIs(t, s.Free(NilHandle), ErrInvalidHandle)
	assert.ErrorIs(t, s.Free(5), ErrInvalidHandle)
	assert.False(t, s.Live(NilHandle))
	assert.False(t, s.Live(5))
}

func TestSlabEachVisitsLiveSlots(t *testing.T) {
	s := NewSlab[rec](4)
	var hs []Handle
	for i := 0; i < 4; i++ {
		h, err := s.Allocate()
		require.NoError(t, err)
		s.At(h).A = i
		hs = append(hs, h)
	}
	require.NoError(t, s.Free(hs[1]))

	var seen []int
	s.Each(func(_ Handle, r *rec) bool {
		seen = append(seen, r.A)
		return true
	})
	assert.Equal(t, []int{0, 2, 3}, seen)
}

func BenchmarkSlabAllocateFree(b *testing.B) {
	s := NewSlab[rec](1024)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		h, _ := s.Allocate()
		_ = s.Free(h)
	}
}
