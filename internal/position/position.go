// Package position encodes and decodes source occurrences in the
// "file:line:column[:length]" form used by the cross-reference database.
//
// An occurrence may carry a leading indirection marker ("*"). The marker is
// opaque to this package: it is preserved verbatim through encode/decode.
package position

import (
	"fmt"
	"strconv"
	"strings"
)

// IndirectMarker is prepended to an encoded position whose occurrence is
// flagged indirect by the front end.
const IndirectMarker = "*"

// Position is a single source occurrence. File is the per-unit file id,
// Line and Column are 1-based. Length is optional; zero means absent.
type Position struct {
	File     int
	Line     int
	Column   int
	Length   int
	Indirect bool
}

// FormatError reports a position that cannot be encoded or decoded.
type FormatError struct {
	Input  string
	Reason string
}

func (e *FormatError) Error() string {
	if e.Input == "" {
		return "position: " + e.Reason
	}
	return fmt.Sprintf("position: %q: %s", e.Input, e.Reason)
}

// Validate checks that every field is in range.
func (p Position) Validate() error {
	switch {
	case p.File < 0:
		return &FormatError{Reason: fmt.Sprintf("file id %d is negative", p.File)}
	case p.Line < 1:
		return &FormatError{Reason: fmt.Sprintf("line %d is not 1-based", p.Line)}
	case p.Column < 1:
		return &FormatError{Reason: fmt.Sprintf("column %d is not 1-based", p.Column)}
	case p.Length < 0:
		return &FormatError{Reason: fmt.Sprintf("length %d is negative", p.Length)}
	}
	return nil
}

// Encode renders p. It fails with *FormatError when a field is out of range.
func Encode(p Position) (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}
	return p.String(), nil
}

// String renders p without validation.
func (p Position) String() string {
	var b strings.Builder
	if p.Indirect {
		b.WriteString(IndirectMarker)
	}
	b.WriteString(strconv.Itoa(p.File))
	b.WriteByte(':')
	b.WriteString(strconv.Itoa(p.Line))
	b.WriteByte(':')
	b.WriteString(strconv.Itoa(p.Column))
	if p.Length > 0 {
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(p.Length))
	}
	return b.String()
}

// Decode parses s, the exact inverse of Encode. Numbers must be plain
// decimal without sign or leading zeros so that Encode(Decode(s)) == s.
func Decode(s string) (Position, error) {
	var p Position
	rest := s
	if strings.HasPrefix(rest, IndirectMarker) {
		p.Indirect = true
		rest = rest[len(IndirectMarker):]
	}

	fields := strings.Split(rest, ":")
	if len(fields) != 3 && len(fields) != 4 {
		return Position{}, &FormatError{Input: s, Reason: fmt.Sprintf("expected 3 or 4 fields, got %d", len(fields))}
	}

	targets := []*int{&p.File, &p.Line, &p.Column, &p.Length}
	names := []string{"file id", "line", "column", "length"}
	for i, f := range fields {
		n, err := parseField(f)
		if err != nil {
			return Position{}, &FormatError{Input: s, Reason: fmt.Sprintf("%s: %v", names[i], err)}
		}
		*targets[i] = n
	}

	if len(fields) == 4 && p.Length == 0 {
		return Position{}, &FormatError{Input: s, Reason: "length must be positive when present"}
	}
	if err := p.Validate(); err != nil {
		return Position{}, &FormatError{Input: s, Reason: err.(*FormatError).Reason}
	}
	return p, nil
}

// MustDecode is Decode for tests and constants; it panics on error.
func MustDecode(s string) Position {
	p, err := Decode(s)
	if err != nil {
		panic(err)
	}
	return p
}

func parseField(f string) (int, error) {
	if f == "" {
		return 0, fmt.Errorf("empty")
	}
	for _, c := range f {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("non-digit %q", c)
		}
	}
	if len(f) > 1 && f[0] == '0' {
		return 0, fmt.Errorf("leading zero in %q", f)
	}
	n, err := strconv.Atoi(f)
	if err != nil {
		return 0, fmt.Errorf("out of range")
	}
	return n, nil
}
