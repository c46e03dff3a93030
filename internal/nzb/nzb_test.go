package nzb

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/datallboy/nzbstream/internal/decoding"
	"github.com/datallboy/nzbstream/internal/usenet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleNZB = `<?xml version="1.0" encoding="utf-8"?>
<!DOCTYPE nzb PUBLIC "-//newzBin//DTD NZB 1.1//EN" "http://www.newzbin.com/DTD/nzb/nzb-1.1.dtd">
<nzb xmlns="http://www.newzbin.com/DTD/2003/nzb">
  <head>
    <meta type="title">Big Buck Bunny</meta>
    <meta type="password">secret</meta>
  </head>
  <file poster="poster@example.com" date="1700000000" subject="[1/2] - &quot;bunny.mkv&quot; yEnc (1/3)">
    <groups><group>alt.binaries.test</group></groups>
    <segments>
      <segment bytes="100" number="2">part2@example</segment>
      <segment bytes="100" number="1">&lt;part1@example&gt;</segment>
      <segment bytes="50" number="3">part3@example</segment>
      <segment bytes="100" number="2">part2-dup@example</segment>
    </segments>
  </file>
  <file poster="poster@example.com" date="1700000000" subject="[2/2] bunny.nfo yEnc (1/1)">
    <groups><group>alt.binaries.test</group></groups>
    <segments>
      <segment bytes="10" number="1">nfo@example</segment>
    </segments>
  </file>
  <file poster="poster@example.com" subject="empty">
    <segments></segments>
  </file>
</nzb>`

func parseSample(t *testing.T) *Model {
	t.Helper()
	m, err := NewParser().Parse(strings.NewReader(sampleNZB))
	require.NoError(t, err)
	return m
}

func TestParse(t *testing.T) {
	m := parseSample(t)

	require.Len(t, m.Files, 2)
	assert.Equal(t, "secret", m.MetaValue("password"))
	assert.Equal(t, "Big Buck Bunny", m.MetaValue("title"))
	assert.Empty(t, m.MetaValue("category"))

	f := m.Files[0]
	require.Len(t, f.Segments, 3)
	assert.Equal(t, "part1@example", f.Segments[0].MessageID)
	assert.Equal(t, "part2@example", f.Segments[1].MessageID)
	assert.Equal(t, "part3@example", f.Segments[2].MessageID)
	assert.Equal(t, int64(250), f.Size())
	assert.Equal(t, []string{"alt.binaries.test"}, f.Groups)
	assert.Equal(t, "bunny.mkv", f.Name())

	infos := m.FileInfos()
	require.Len(t, infos, 2)
	assert.Equal(t, FileInfo{Index: 1, Name: "bunny.nfo", Size: 10, Segments: 1}, infos[1])
}

func TestParse_Errors(t *testing.T) {
	_, err := NewParser().Parse(strings.NewReader("<nzb><file subject=\"x\"></file></nzb>"))
	assert.ErrorIs(t, err, ErrNoFiles)

	_, err = NewParser().Parse(strings.NewReader("not xml"))
	assert.Error(t, err)
}

func TestCleanName(t *testing.T) {
	cases := map[string]string{
		`[01/14] - "movie.part01.rar" yEnc (1/200)`: "movie.part01.rar",
		`[1/3] movie.nfo yEnc (1/1)`:                 "movie.nfo",
		`some:file?.bin (1/5)`:                       "some_file_.bin",
		`&quot;quoted.mkv&quot; yEnc`:                "quoted.mkv",
	}
	for in, want := range cases {
		assert.Equal(t, want, CleanName(in), in)
	}
}

func TestSegmentSizes(t *testing.T) {
	f := parseSample(t).Files[0]

	assert.Equal(t, []int64{100, 100, 50}, f.SegmentSizes(nil))
	assert.Equal(t, []int64{90, 90, 70}, f.SegmentSizes(&Layout{FileSize: 250, PartSize: 90}))
}

// readAllSegments writes each segment's full body and drains the list.
func readAllSegments(t *testing.T, list *usenet.SegmentList, bodies map[string][]byte) []byte {
	t.Helper()
	out := []byte{}
	for _, seg := range list.Segments() {
		_, err := seg.Write(bodies[seg.ID])
		require.NoError(t, err)
		require.NoError(t, seg.Close())

		buf := make([]byte, 512)
		for {
			n, err := seg.Read(buf)
			out = append(out, buf[:n]...)
			if err != nil {
				break
			}
		}
	}
	return out
}

func TestBuildSegmentList_Ranges(t *testing.T) {
	f := parseSample(t).Files[0]
	sizes := f.SegmentSizes(nil)

	bodies := map[string][]byte{}
	var whole []byte
	for i, s := range f.Segments {
		b := []byte(strings.Repeat(string(rune('a'+i)), int(sizes[i])))
		bodies[s.MessageID] = b
		whole = append(whole, b...)
	}

	cases := []struct {
		name       string
		start, end int64
		segments   int
	}{
		{"whole file", 0, 0, 3},
		{"inside first", 10, 20, 1},
		{"spanning", 90, 210, 3},
		{"exact boundary", 100, 200, 1},
		{"tail", 230, 0, 1},
		{"end clamped", 150, 9999, 2},
		{"empty", 100, 100, 0},
		{"empty inside segment", 50, 50, 0},
		{"empty at end", 250, 250, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			list, err := BuildSegmentList(&f, sizes, tc.start, tc.end)
			require.NoError(t, err)
			assert.Equal(t, tc.segments, list.Len())

			start, end := list.Range()
			assert.Equal(t, tc.start, start)
			assert.Equal(t, whole[start:end], readAllSegments(t, list, bodies))
		})
	}
}

func TestBuildSegmentList_Invalid(t *testing.T) {
	f := parseSample(t).Files[0]

	_, err := BuildSegmentList(&f, f.SegmentSizes(nil), 300, 0)
	assert.ErrorIs(t, err, ErrInvalidRange)

	_, err = BuildSegmentList(&f, f.SegmentSizes(nil), -1, 10)
	assert.ErrorIs(t, err, ErrInvalidRange)

	_, err = BuildSegmentList(&f, []int64{1}, 0, 0)
	assert.Error(t, err)
}

type headerFunc func(ctx context.Context, id string, groups []string) (decoding.Header, error)

func (h headerFunc) Header(ctx context.Context, id string, groups []string) (decoding.Header, error) {
	return h(ctx, id, groups)
}

func TestProbeLayout(t *testing.T) {
	f := parseSample(t).Files[0]

	var asked string
	l, err := ProbeLayout(context.Background(), headerFunc(func(_ context.Context, id string, _ []string) (decoding.Header, error) {
		asked = id
		return decoding.Header{Size: 240, Part: 1, Begin: 1, End: 96}, nil
	}), &f)
	require.NoError(t, err)
	assert.Equal(t, "part1@example", asked)
	assert.Equal(t, &Layout{FileSize: 240, PartSize: 96}, l)
	assert.Equal(t, []int64{96, 96, 48}, f.SegmentSizes(l))

	boom := errors.New("boom")
	_, err = ProbeLayout(context.Background(), headerFunc(func(context.Context, string, []string) (decoding.Header, error) {
		return decoding.Header{}, boom
	}), &f)
	assert.ErrorIs(t, err, boom)
}
