package decoding

import (
	"bufio"
	"errors"
	"fmt"
	"hash"
	"hash/crc32"
	"io"
	"strconv"
	"strings"
)

var ErrHeaderNotFound = errors.New("yenc header not found")

// ErrChecksum is wrapped by Verify when the decoded bytes do not match the footer.
var ErrChecksum = errors.New("yenc checksum mismatch")

// Header holds the =ybegin / =ypart attributes of an article.
type Header struct {
	Name  string
	Size  int64
	Line  int
	Part  int
	Total int
	Begin int64
	End   int64
}

// PartSize is the decoded size of this part, or the whole file for single part posts.
func (h Header) PartSize() int64 {
	if h.End > 0 && h.End >= h.Begin {
		return h.End - h.Begin + 1
	}
	return h.Size
}

type YencDecoder struct {
	scanner     *bufio.Reader
	Header      Header
	reachedEnd  bool
	escaped     bool // State: was the previous byte '='?
	lineStart   bool
	hash        hash.Hash32
	expectedCRC uint32
	hasCRC      bool
}

func NewYencDecoder(r io.Reader) *YencDecoder {
	return &YencDecoder{
		scanner:   bufio.NewReader(r),
		hash:      crc32.NewIEEE(), // yEnc uses the standard IEEE polynomial
		lineStart: true,
	}
}

// DiscardHeader skips to the =ybegin line and consumes it together with an
// optional =ypart line.
func (d *YencDecoder) DiscardHeader() error {
	for {
		line, err := d.scanner.ReadString('\n')
		if strings.HasPrefix(line, "=ybegin") {
			d.parseBegin(line)
			return d.handlePotentialPartHeader()
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return ErrHeaderNotFound
			}
			return fmt.Errorf("searching for yenc header: %w", err)
		}
	}
}

func (d *YencDecoder) Read(p []byte) (n int, err error) {
	if d.reachedEnd {
		return 0, io.EOF
	}
	defer func() { d.hash.Write(p[:n]) }()

	for n < len(p) {
		b, err := d.scanner.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return n, err
		}

		if b == '\r' || b == '\n' {
			// Line breaks are never data.
			d.escaped = false
			d.lineStart = true
			continue
		}

		if b == '=' && !d.escaped {
			if d.lineStart {
				peek, _ := d.scanner.Peek(4)
				if string(peek) == "yend" {
					d.reachedEnd = true
					d.parseFooter()
					return n, io.EOF
				}
			}
			d.escaped = true
			d.lineStart = false
			continue
		}
		d.lineStart = false

		var decoded byte
		if d.escaped {
			decoded = b - 64 - 42
			d.escaped = false
		} else {
			decoded = b - 42
		}

		p[n] = decoded
		n++
	}

	return n, nil
}

func (d *YencDecoder) parseBegin(line string) {
	attrs := parseAttrs(line)
	d.Header.Line, _ = strconv.Atoi(attrs["line"])
	d.Header.Part, _ = strconv.Atoi(attrs["part"])
	d.Header.Total, _ = strconv.Atoi(attrs["total"])
	d.Header.Size, _ = strconv.ParseInt(attrs["size"], 10, 64)

	// name= is the last attribute and may contain spaces.
	if i := strings.Index(line, " name="); i >= 0 {
		d.Header.Name = strings.TrimSpace(line[i+len(" name="):])
	}
}

func (d *YencDecoder) parseFooter() {
	line, _ := d.scanner.ReadString('\n')
	// Typical footer: =yend size=12345 part=1 pcrc32=ABC12345
	attrs := parseAttrs(line)

	for _, key := range []string{"pcrc32", "crc32"} {
		val, ok := attrs[key]
		if !ok {
			continue
		}
		if crc, err := strconv.ParseUint(val, 16, 32); err == nil {
			d.expectedCRC = uint32(crc)
			d.hasCRC = true
			return
		}
	}
}

// Verify compares the CRC of the decoded bytes with the footer. Articles without a
// CRC in the footer always verify.
func (d *YencDecoder) Verify() error {
	if !d.hasCRC {
		return nil
	}
	actual := d.hash.Sum32()
	if actual != d.expectedCRC {
		return fmt.Errorf("%w: expected %08X, got %08X", ErrChecksum, d.expectedCRC, actual)
	}
	return nil
}

func (d *YencDecoder) handlePotentialPartHeader() error {
	peek, _ := d.scanner.Peek(6)
	if string(peek) != "=ypart" {
		return nil
	}

	line, err := d.scanner.ReadString('\n')
	if err != nil {
		return err
	}
	attrs := parseAttrs(line)
	d.Header.Begin, _ = strconv.ParseInt(attrs["begin"], 10, 64)
	d.Header.End, _ = strconv.ParseInt(attrs["end"], 10, 64)
	return nil
}

func parseAttrs(line string) map[string]string {
	attrs := make(map[string]string)
	for _, field := range strings.Fields(line) {
		k, v, ok := strings.Cut(field, "=")
		if ok && k != "" {
			attrs[k] = v
		}
	}
	return attrs
}

// Decode streams the decoded body of one yEnc article from r into w and verifies
// its checksum.
func Decode(r io.Reader, w io.Writer) (Header, int64, error) {
	d := NewYencDecoder(r)
	if err := d.DiscardHeader(); err != nil {
		return Header{}, 0, err
	}

	n, err := io.Copy(w, d)
	if err != nil {
		return d.Header, n, err
	}
	return d.Header, n, d.Verify()
}
