package usenet

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSegmentList_GetNext(t *testing.T) {
	segs := []*Segment{
		NewSegment("1@x", nil, 10, 0, 10),
		NewSegment("2@x", nil, 10, 0, 10),
	}
	list := NewSegmentList(segs, 0, 20)

	assert.Equal(t, 2, list.Len())
	start, end := list.Range()
	assert.Equal(t, int64(0), start)
	assert.Equal(t, int64(20), end)

	got, err := list.Get()
	require.NoError(t, err)
	assert.Same(t, segs[0], got)

	got, err = list.Next()
	require.NoError(t, err)
	assert.Same(t, segs[1], got)

	// The segment left behind is released.
	_, err = segs[0].Read(make([]byte, 1))
	assert.ErrorIs(t, err, io.ErrClosedPipe)

	_, err = list.Next()
	assert.ErrorIs(t, err, ErrNoMoreSegments)
	_, err = list.Next()
	assert.ErrorIs(t, err, ErrNoMoreSegments)
	_, err = list.Get()
	assert.ErrorIs(t, err, ErrNoMoreSegments)
}

func TestSegmentList_Empty(t *testing.T) {
	list := NewSegmentList(nil, 0, 0)

	_, err := list.Get()
	assert.ErrorIs(t, err, ErrNoMoreSegments)
	_, err = list.Next()
	assert.ErrorIs(t, err, ErrNoMoreSegments)
}

func TestSegmentList_Clear(t *testing.T) {
	segs := []*Segment{
		NewSegment("1@x", nil, 10, 0, 10),
		NewSegment("2@x", nil, 10, 0, 10),
	}
	list := NewSegmentList(segs, 0, 20)

	snapshot := list.Segments()
	require.Len(t, snapshot, 2)

	require.NoError(t, list.Clear())
	require.NoError(t, list.Clear())

	assert.Equal(t, 0, list.Len())
	_, err := list.Get()
	assert.ErrorIs(t, err, ErrNoMoreSegments)

	for _, s := range snapshot {
		_, err := s.Write([]byte("x"))
		assert.ErrorIs(t, err, io.ErrClosedPipe)
	}
}
