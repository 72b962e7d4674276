// Package csvsource reads an upload file into rows for the engine.
//
// A Source decodes the file to UTF-8, normalises the header row and then
// yields one core.RawRow per record together with the file line it started
// on. Blank lines and rows whose cells are all empty are skipped.
package csvsource

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/JonMunkholm/uploaduser/internal/core"
	"github.com/JonMunkholm/uploaduser/internal/schema"
)

// ErrEmptyFile is returned by Open when the file has no header row.
var ErrEmptyFile = errors.New("empty file: no header row found")

var delimiters = map[string]rune{
	"comma":     ',',
	"semicolon": ';',
	"colon":     ':',
	"tab":       '\t',
}

// Delimiter resolves a delimiter name or a single literal character.
func Delimiter(name string) (rune, error) {
	if name == "" {
		return ',', nil
	}
	if r, ok := delimiters[strings.ToLower(strings.TrimSpace(name))]; ok {
		return r, nil
	}
	if utf8.RuneCountInString(name) == 1 {
		r, _ := utf8.DecodeRuneInString(name)
		if r != '"' && r != '\r' && r != '\n' && r != utf8.RuneError {
			return r, nil
		}
	}
	return 0, fmt.Errorf("invalid csv delimiter %q", name)
}

// Options controls how a file is read.
type Options struct {
	Delimiter string // comma, semicolon, colon, tab or one character
	Encoding  string // utf-8 (default), utf-16, utf-16le, utf-16be, iso-8859-1, windows-1252, auto
	Size      int64  // Raw size in bytes when known, for Progress
}

// Source yields the data rows of one file. It implements core.RowSource.
type Source struct {
	reader  *csv.Reader
	counter *CountingReader
	header  []string
	unknown []string
}

var _ core.RowSource = (*Source)(nil)

// Open reads and validates the header row.
func Open(r io.Reader, opts Options) (*Source, error) {
	comma, err := Delimiter(opts.Delimiter)
	if err != nil {
		return nil, err
	}

	counter := NewCountingReader(r, opts.Size)
	decoded, err := decode(counter, opts.Encoding)
	if err != nil {
		return nil, err
	}

	cr := csv.NewReader(decoded)
	cr.Comma = comma
	cr.LazyQuotes = true
	cr.ReuseRecord = true

	raw, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrEmptyFile
	}
	if err != nil {
		return nil, fmt.Errorf("invalid csv header: %w", err)
	}

	header, err := schema.NormalizeHeader(raw)
	if err != nil {
		return nil, err
	}

	return &Source{
		reader:  cr,
		counter: counter,
		header:  header,
		unknown: schema.UnknownColumns(header),
	}, nil
}

// Header returns the normalised column names.
func (s *Source) Header() []string {
	return append([]string(nil), s.header...)
}

// UnknownColumns returns header columns no part of the upload consumes.
func (s *Source) UnknownColumns() []string {
	return append([]string(nil), s.unknown...)
}

// Progress returns how much of the raw input has been consumed, 0-100.
func (s *Source) Progress() int {
	return s.counter.Progress()
}

// Next returns the next non-blank row and its 1-based file line. It returns
// io.EOF after the last row.
func (s *Source) Next() (int, core.RawRow, error) {
	for {
		record, err := s.reader.Read()
		if errors.Is(err, io.EOF) {
			return 0, nil, io.EOF
		}
		if err != nil {
			return 0, nil, fmt.Errorf("invalid csv: %w", err)
		}

		line, _ := s.reader.FieldPos(0)
		if blank(record) {
			continue
		}

		row := make(core.RawRow, len(s.header))
		for i, col := range s.header {
			row[col] = record[i]
		}
		return line, row, nil
	}
}

func blank(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
