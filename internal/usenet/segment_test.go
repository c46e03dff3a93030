package usenet

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSegment_WriteKeepsWindow(t *testing.T) {
	seg := NewSegment("a@b", nil, 30, 10, 20)
	assert.Equal(t, int64(10), seg.Length())

	body := []byte("0123456789abcdefghijKLMNOPQRST")
	for i := 0; i < len(body); i += 7 {
		n, err := seg.Write(body[i:min(i+7, len(body))])
		require.NoError(t, err)
		assert.Equal(t, min(7, len(body)-i), n)
	}
	require.NoError(t, seg.Close())

	got, err := io.ReadAll(seg)
	require.NoError(t, err)
	assert.Equal(t, "abcdefghij", string(got))
}

func TestSegment_NewSegmentClampsWindow(t *testing.T) {
	seg := NewSegment("a@b", nil, 100, -5, 0)
	assert.Equal(t, int64(100), seg.Length())

	seg = NewSegment("a@b", nil, 100, 120, 500)
	assert.Equal(t, int64(0), seg.Length())
}

func TestSegment_ReadBlocksUntilWrite(t *testing.T) {
	seg := NewSegment("a@b", nil, 5, 0, 5)

	done := make(chan []byte)
	go func() {
		b, _ := io.ReadAll(seg)
		done <- b
	}()

	select {
	case <-done:
		t.Fatal("read returned before the segment was written")
	case <-time.After(30 * time.Millisecond):
	}

	_, err := seg.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, seg.Close())

	select {
	case b := <-done:
		assert.Equal(t, "hello", string(b))
	case <-time.After(time.Second):
		t.Fatal("read did not finish after close")
	}
}

func TestSegment_CloseWithErrorAfterDrain(t *testing.T) {
	seg := NewSegment("a@b", nil, 10, 0, 10)
	boom := errors.New("boom")

	_, err := seg.Write([]byte("abc"))
	require.NoError(t, err)
	require.NoError(t, seg.CloseWithError(boom))

	buf := make([]byte, 10)
	n, err := seg.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(buf[:n]))

	_, err = seg.Read(buf)
	assert.ErrorIs(t, err, boom)

	// First close wins.
	require.NoError(t, seg.Close())
	_, err = seg.Read(buf)
	assert.ErrorIs(t, err, boom)
}

func TestSegment_CloseWithWrappedSentinels(t *testing.T) {
	cases := map[string]error{
		"eof":          fmt.Errorf("read greeting: %w", io.EOF),
		"deadline":     fmt.Errorf("read tcp: %w", os.ErrDeadlineExceeded),
		"dial timeout": fmt.Errorf("connection failed: %w", context.DeadlineExceeded),
		"canceled":     fmt.Errorf("fetch: %w", context.Canceled),
	}
	for name, cause := range cases {
		t.Run(name, func(t *testing.T) {
			seg := NewSegment("a@b", nil, 10, 0, 10)
			require.NoError(t, seg.CloseWithError(cause))

			_, err := seg.Read(make([]byte, 4))
			var segErr *SegmentError
			require.ErrorAs(t, err, &segErr)
			assert.Equal(t, "a@b", segErr.SegmentID)
			assert.ErrorIs(t, err, cause)
			assert.NotEqual(t, io.EOF, err)
			assert.NotEqual(t, errReadDeadline, err)
		})
	}
}

func TestSegment_WriteAfterClose(t *testing.T) {
	seg := NewSegment("a@b", nil, 10, 0, 10)
	require.NoError(t, seg.Close())

	_, err := seg.Write([]byte("x"))
	assert.ErrorIs(t, err, io.ErrClosedPipe)
}

func TestSegment_ReadDeadline(t *testing.T) {
	seg := NewSegment("a@b", nil, 10, 0, 10)
	seg.SetReadDeadline(time.Now().Add(20 * time.Millisecond))

	start := time.Now()
	_, err := seg.Read(make([]byte, 4))
	assert.ErrorIs(t, err, os.ErrDeadlineExceeded)
	assert.Same(t, errReadDeadline, err)
	assert.Less(t, time.Since(start), time.Second)

	seg.SetReadDeadline(time.Time{})
	_, err = seg.Write([]byte("ok"))
	require.NoError(t, err)

	buf := make([]byte, 4)
	n, err := seg.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(buf[:n]))
}

func TestSegment_ReleaseWakesReader(t *testing.T) {
	seg := NewSegment("a@b", nil, 10, 0, 10)

	errc := make(chan error, 1)
	go func() {
		_, err := seg.Read(make([]byte, 4))
		errc <- err
	}()

	time.Sleep(10 * time.Millisecond)
	seg.Release()
	seg.Release()

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, io.ErrClosedPipe)
	case <-time.After(time.Second):
		t.Fatal("release did not wake the reader")
	}

	_, err := seg.Write([]byte("late"))
	assert.ErrorIs(t, err, io.ErrClosedPipe)
}

func TestSegment_Classification(t *testing.T) {
	t.Run("complete", func(t *testing.T) {
		seg := NewSegment("a@b", nil, 4, 0, 4)
		_, _ = seg.Write([]byte("abcd"))
		_ = seg.Close()
		_, _ = io.ReadAll(seg)
		seg.AddBytesRead(4)

		assert.True(t, seg.IsComplete())
		assert.False(t, seg.IsIncomplete())
		assert.False(t, seg.HitNNTPBufferLimit())
	})

	t.Run("incomplete then adjusted", func(t *testing.T) {
		seg := NewSegment("a@b", nil, 10, 0, 10)
		_, _ = seg.Write([]byte("abcd"))
		_ = seg.Close()
		seg.AddBytesRead(4)

		assert.False(t, seg.IsComplete())
		assert.True(t, seg.IsIncomplete())

		seg.AdjustToBytesRead(seg.BytesRead())
		assert.Equal(t, int64(4), seg.Length())
		assert.True(t, seg.IsComplete())
		assert.False(t, seg.IsIncomplete())
	})

	t.Run("buffer limit is not incomplete", func(t *testing.T) {
		seg := NewSegment("a@b", nil, 10, 0, 10)
		seg.MarkBufferLimit()
		_ = seg.Close()
		seg.AddBytesRead(8)

		assert.True(t, seg.HitNNTPBufferLimit())
		assert.False(t, seg.IsIncomplete())
	})

	t.Run("adjust never grows", func(t *testing.T) {
		seg := NewSegment("a@b", nil, 10, 2, 8)
		seg.AdjustToBytesRead(100)
		assert.Equal(t, int64(6), seg.Length())
	})
}
