package nzb

import "encoding/xml"

type Model struct {
	XMLName xml.Name `xml:"nzb"`
	Meta    []Meta   `xml:"head>meta"`
	Files   []File   `xml:"file"`
}

type Meta struct {
	Type  string `xml:"type,attr"`
	Value string `xml:",chardata"`
}

type File struct {
	Subject  string    `xml:"subject,attr"`
	Poster   string    `xml:"poster,attr"`
	Date     int64     `xml:"date,attr"`
	Groups   []string  `xml:"groups>group"`
	Segments []Segment `xml:"segments>segment"`
}

type Segment struct {
	XMLName   xml.Name `xml:"segment"`
	Number    int      `xml:"number,attr"`
	Bytes     int64    `xml:"bytes,attr"`
	MessageID string   `xml:",chardata"`
}

// MetaValue returns the first <meta> of the given type, e.g. "password" or "title".
func (m *Model) MetaValue(typ string) string {
	for _, meta := range m.Meta {
		if meta.Type == typ {
			return meta.Value
		}
	}
	return ""
}

// Size is the sum of the segment sizes declared in the NZB.
func (f *File) Size() int64 {
	var total int64
	for _, s := range f.Segments {
		total += s.Bytes
	}
	return total
}

// Name is the cleaned file name taken from the subject.
func (f *File) Name() string {
	return CleanName(f.Subject)
}
