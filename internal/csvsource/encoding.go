package csvsource

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Encoding names accepted by Options.Encoding.
const (
	EncodingAuto        = "auto"
	EncodingUTF8        = "utf-8"
	EncodingUTF16       = "utf-16"
	EncodingUTF16LE     = "utf-16le"
	EncodingUTF16BE     = "utf-16be"
	EncodingISO88591    = "iso-8859-1"
	EncodingWindows1252 = "windows-1252"
)

var (
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

var encodingAliases = map[string]string{
	"":       EncodingUTF8,
	"utf8":   EncodingUTF8,
	"utf16":  EncodingUTF16,
	"latin1": EncodingISO88591,
	"cp1252": EncodingWindows1252,
}

// lookupEncoding resolves an encoding name. The UTF-8 decoder strips a
// leading BOM and replaces invalid sequences with U+FFFD.
func lookupEncoding(name string) (encoding.Encoding, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if alias, ok := encodingAliases[name]; ok {
		name = alias
	}

	switch name {
	case EncodingUTF8:
		return unicode.UTF8BOM, nil
	case EncodingUTF16:
		return unicode.UTF16(unicode.LittleEndian, unicode.UseBOM), nil
	case EncodingUTF16LE:
		return unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM), nil
	case EncodingUTF16BE:
		return unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM), nil
	case EncodingISO88591:
		return charmap.ISO8859_1, nil
	case EncodingWindows1252:
		return charmap.Windows1252, nil
	default:
		return nil, fmt.Errorf("encoding error: unsupported encoding %q", name)
	}
}

// decode wraps r so it yields UTF-8. "auto" sniffs a UTF-16 byte order mark
// and otherwise assumes UTF-8.
func decode(r io.Reader, name string) (io.Reader, error) {
	if strings.EqualFold(strings.TrimSpace(name), EncodingAuto) {
		br := bufio.NewReader(r)
		head, _ := br.Peek(2)
		switch {
		case bytes.Equal(head, bomUTF16LE):
			name = EncodingUTF16LE
			br.Discard(2)
		case bytes.Equal(head, bomUTF16BE):
			name = EncodingUTF16BE
			br.Discard(2)
		default:
			name = EncodingUTF8
		}
		r = br
	}

	enc, err := lookupEncoding(name)
	if err != nil {
		return nil, err
	}
	return transform.NewReader(r, enc.NewDecoder()), nil
}

// CountingReader tracks bytes read from the raw upload for progress
// reporting.
type CountingReader struct {
	reader    io.Reader
	BytesRead int64
	Total     int64 // 0 when unknown
}

// NewCountingReader wraps r. total may be 0.
func NewCountingReader(r io.Reader, total int64) *CountingReader {
	return &CountingReader{reader: r, Total: total}
}

func (c *CountingReader) Read(p []byte) (int, error) {
	n, err := c.reader.Read(p)
	c.BytesRead += int64(n)
	return n, err
}

// Progress returns the share of the input read so far, 0-100.
func (c *CountingReader) Progress() int {
	if c.Total <= 0 {
		return 0
	}
	pct := int(c.BytesRead * 100 / c.Total)
	if pct > 100 {
		pct = 100
	}
	return pct
}
