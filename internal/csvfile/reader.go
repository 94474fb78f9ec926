// Package csvfile adapts CSV documents to the import engine's row reader.
package csvfile

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

// Reader serves a CSV document row by row. The payload is held in memory,
// stripped of any UTF-8 BOM and sanitized to valid UTF-8 up front (invalid
// sequences become U+FFFD).
//
// encoding/csv silently skips blank lines, which would shift every row
// number reported to the user. Reader puts them back: a physically blank
// line comes out as an empty record, so positions stay faithful to the file.
type Reader struct {
	data []byte
	csv  *csv.Reader

	lastLine   int      // last physical line consumed
	owe        int      // blank rows still to emit before pending
	pending    []string // record parked while blank rows are emitted
	pendingEnd int      // last physical line of the parked record
}

// NewReader wraps an in-memory CSV payload.
func NewReader(data []byte) *Reader {
	r := &Reader{data: sanitizeUTF8(stripBOM(data))}
	r.reset()
	return r
}

// FromReader drains rd into memory. A positive maxSize rejects larger
// payloads before parsing.
func FromReader(rd io.Reader, maxSize int64) (*Reader, error) {
	var src io.Reader = rd
	if maxSize > 0 {
		src = io.LimitReader(rd, maxSize+1)
	}
	data, err := io.ReadAll(src)
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if maxSize > 0 && int64(len(data)) > maxSize {
		return nil, fmt.Errorf("upload exceeds the %d byte limit", maxSize)
	}
	return NewReader(data), nil
}

// Read returns the next physical row, io.EOF at the end. Blank lines come
// out as empty records.
func (r *Reader) Read() ([]string, error) {
	if r.owe > 0 {
		r.owe--
		return nil, nil
	}
	if r.pending != nil {
		rec := r.pending
		r.pending = nil
		r.lastLine = r.pendingEnd
		return rec, nil
	}

	rec, err := r.csv.Read()
	if err != nil {
		return nil, err
	}

	start, _ := r.csv.FieldPos(0)
	// FieldPos reports where the last field starts; quoted newlines inside
	// it still occupy physical lines.
	end, _ := r.csv.FieldPos(len(rec) - 1)
	end += strings.Count(rec[len(rec)-1], "\n")

	if gap := start - r.lastLine - 1; gap > 0 {
		r.owe = gap - 1
		r.pending = rec
		r.pendingEnd = end
		return nil, nil
	}
	r.lastLine = end
	return rec, nil
}

// Rewind repositions at the first row.
func (r *Reader) Rewind() error {
	r.reset()
	return nil
}

func (r *Reader) reset() {
	cr := csv.NewReader(bytes.NewReader(r.data))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	r.csv = cr
	r.lastLine = 0
	r.owe = 0
	r.pending = nil
	r.pendingEnd = 0
}

func stripBOM(data []byte) []byte {
	return bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})
}

func sanitizeUTF8(data []byte) []byte {
	if utf8.Valid(data) {
		return data
	}

	var buf bytes.Buffer
	buf.Grow(len(data))

	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		if r == utf8.RuneError && size == 1 {
			buf.WriteRune('�')
			data = data[1:]
		} else {
			buf.WriteRune(r)
			data = data[size:]
		}
	}

	return buf.Bytes()
}
