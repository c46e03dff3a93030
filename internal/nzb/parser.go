package nzb

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
)

var ErrNoFiles = errors.New("nzb contains no files with segments")

type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

// Parse decodes an NZB document. Segments are ordered by number, duplicates and
// empty message ids are dropped, and files left without segments are removed.
func (p *Parser) Parse(r io.Reader) (*Model, error) {
	var model Model
	decoder := xml.NewDecoder(r)
	if err := decoder.Decode(&model); err != nil {
		return nil, fmt.Errorf("decode nzb: %w", err)
	}

	files := model.Files[:0]
	for _, f := range model.Files {
		f.Segments = normalizeSegments(f.Segments)
		if len(f.Segments) > 0 {
			files = append(files, f)
		}
	}
	model.Files = files

	if len(model.Files) == 0 {
		return nil, ErrNoFiles
	}
	return &model, nil
}

func normalizeSegments(segs []Segment) []Segment {
	sort.SliceStable(segs, func(i, j int) bool {
		return segs[i].Number < segs[j].Number
	})

	out := segs[:0]
	seen := make(map[int]bool, len(segs))
	for _, s := range segs {
		s.MessageID = strings.Trim(strings.TrimSpace(s.MessageID), "<>")
		if s.MessageID == "" || seen[s.Number] {
			continue
		}
		seen[s.Number] = true
		out = append(out, s)
	}
	return out
}
