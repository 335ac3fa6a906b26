// Package csvcodec implements the strict CSV interchange format for
// vault export and import.
//
// The format is deliberately rigid so that the parser accepts exactly
// what the builder produces and nothing else: a fixed header, unquoted
// comma-joined fields, LF-only line endings, UTF-8 without a byte-order
// mark. Parsing validates the whole file before the caller mutates
// anything, which gives imports whole-file atomicity even though CSV
// itself has no transaction concept.
package csvcodec

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
)

// Header is the fixed first line of every interchange file.
const Header = "service,username,password"

// ErrInvalidFormat is wrapped by every parse and build rejection.
var ErrInvalidFormat = errors.New("csvcodec: invalid interchange file")

// Record is one credential triple in plaintext form. Records only exist
// in memory during export and import.
type Record struct {
	Service  string
	Username string
	Password string
}

var bom = []byte{0xEF, 0xBB, 0xBF}

// Build serializes records into the canonical byte-for-byte form: the
// header, one comma-joined line per record, each line terminated by a
// single LF.
//
// The format has no quoting or escaping, so a field containing a comma,
// tab, CR or LF cannot round-trip; Build rejects such records instead of
// producing a file its own parser would refuse.
func Build(records []Record) ([]byte, error) {
	var b strings.Builder
	b.WriteString(Header)
	b.WriteByte('\n')

	for i, r := range records {
		for _, f := range [...]struct{ name, value string }{
			{"service", r.Service},
			{"username", r.Username},
			{"password", r.Password},
		} {
			if reason := fieldViolation(f.value); reason != "" {
				return nil, fmt.Errorf("%w: record %d: %s field %s",
					ErrInvalidFormat, i+1, f.name, reason)
			}
		}
		b.WriteString(r.Service)
		b.WriteByte(',')
		b.WriteString(r.Username)
		b.WriteByte(',')
		b.WriteString(r.Password)
		b.WriteByte('\n')
	}
	return []byte(b.String()), nil
}

// Parse decodes an interchange file, rejecting anything Build would not
// itself produce. Errors carry the 1-based line number where applicable.
// No partial result is ever returned: the file either parses completely
// or not at all.
func Parse(data []byte) ([]Record, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: file is empty", ErrInvalidFormat)
	}
	if bytes.HasPrefix(data, bom) {
		return nil, fmt.Errorf("%w: file starts with a UTF-8 byte-order mark", ErrInvalidFormat)
	}
	if i := bytes.IndexByte(data, '\r'); i >= 0 {
		line := 1 + bytes.Count(data[:i], []byte{'\n'})
		return nil, fmt.Errorf("%w: line %d: carriage return found (CRLF line endings are not supported)",
			ErrInvalidFormat, line)
	}

	lines := strings.Split(string(data), "\n")
	// A single trailing blank line is the LF terminating the last row.
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}

	if len(lines) == 0 || lines[0] != Header {
		return nil, fmt.Errorf("%w: line 1: header must be exactly %q", ErrInvalidFormat, Header)
	}

	records := make([]Record, 0, len(lines)-1)
	for i, line := range lines[1:] {
		lineNo := i + 2
		if line == "" {
			return nil, fmt.Errorf("%w: line %d: blank line", ErrInvalidFormat, lineNo)
		}
		fields := strings.Split(line, ",")
		if len(fields) != 3 {
			return nil, fmt.Errorf("%w: line %d: expected 3 comma-separated fields, got %d",
				ErrInvalidFormat, lineNo, len(fields))
		}
		for _, f := range fields {
			if strings.ContainsRune(f, '\t') {
				return nil, fmt.Errorf("%w: line %d: field contains a tab character",
					ErrInvalidFormat, lineNo)
			}
		}
		records = append(records, Record{
			Service:  fields[0],
			Username: fields[1],
			Password: fields[2],
		})
	}
	return records, nil
}

// fieldViolation reports why a field cannot be encoded, or "" if it can.
func fieldViolation(field string) string {
	switch {
	case strings.ContainsRune(field, ','):
		return "contains a comma"
	case strings.ContainsRune(field, '\t'):
		return "contains a tab character"
	case strings.ContainsRune(field, '\r'):
		return "contains a carriage return"
	case strings.ContainsRune(field, '\n'):
		return "contains a line feed"
	default:
		return ""
	}
}
