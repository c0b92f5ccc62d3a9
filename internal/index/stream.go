package index

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/jward/cxref/internal/position"
)

// wireEvent is the JSON Lines form of an Event. An absent file means the
// unit's main file, id 1.
type wireEvent struct {
	Category      string `json:"category"`
	Kind          string `json:"kind,omitempty"`
	USR           string `json:"usr,omitempty"`
	ShortName     string `json:"short_name,omitempty"`
	QualifiedName string `json:"qualified_name,omitempty"`
	File          *int   `json:"file,omitempty"`
	Line          int    `json:"line,omitempty"`
	Column        int    `json:"column,omitempty"`
	Length        int    `json:"length,omitempty"`
	Indirect      bool   `json:"indirect,omitempty"`
	Call          bool   `json:"call,omitempty"`
	CallerUSR     string `json:"caller_usr,omitempty"`
}

const maxEventLine = 1 << 20

// StreamReader decodes a JSON Lines event stream. Blank lines are skipped.
// It reports io.EOF at the end of input; checking for the end marker is
// the builder's job.
type StreamReader struct {
	scanner *bufio.Scanner
	line    int
}

// NewStreamReader returns a reader over r.
func NewStreamReader(r io.Reader) *StreamReader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxEventLine)
	return &StreamReader{scanner: sc}
}

// Next returns the next event.
func (r *StreamReader) Next() (Event, error) {
	for r.scanner.Scan() {
		r.line++
		raw := bytes.TrimSpace(r.scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		ev, err := decodeEvent(raw)
		if err != nil {
			return Event{}, fmt.Errorf("line %d: %w", r.line, err)
		}
		return ev, nil
	}
	if err := r.scanner.Err(); err != nil {
		return Event{}, fmt.Errorf("line %d: %w", r.line+1, err)
	}
	return Event{}, io.EOF
}

func decodeEvent(raw []byte) (Event, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	var w wireEvent
	if err := dec.Decode(&w); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}

	cat, err := ParseCategory(w.Category)
	if err != nil {
		return Event{}, err
	}
	if cat == End {
		return EndEvent(), nil
	}
	kind, err := ParseKind(w.Kind)
	if err != nil {
		return Event{}, err
	}
	file := 1
	if w.File != nil {
		file = *w.File
	}
	return Event{
		Category:      cat,
		Kind:          kind,
		USR:           w.USR,
		ShortName:     w.ShortName,
		QualifiedName: w.QualifiedName,
		Pos: position.Position{
			File:     file,
			Line:     w.Line,
			Column:   w.Column,
			Length:   w.Length,
			Indirect: w.Indirect,
		},
		Call:      w.Call,
		CallerUSR: w.CallerUSR,
	}, nil
}

// StreamWriter encodes events as JSON Lines.
type StreamWriter struct {
	enc *json.Encoder
}

// NewStreamWriter returns a writer to w.
func NewStreamWriter(w io.Writer) *StreamWriter {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &StreamWriter{enc: enc}
}

// Write encodes one event.
func (w *StreamWriter) Write(ev Event) error {
	out := wireEvent{Category: ev.Category.String()}
	if ev.Category != End {
		out.Kind = ev.Kind.String()
		out.USR = ev.USR
		out.ShortName = ev.ShortName
		out.QualifiedName = ev.QualifiedName
		file := ev.Pos.File
		out.File = &file
		out.Line = ev.Pos.Line
		out.Column = ev.Pos.Column
		out.Length = ev.Pos.Length
		out.Indirect = ev.Pos.Indirect
		out.Call = ev.Call
		out.CallerUSR = ev.CallerUSR
	}
	if err := w.enc.Encode(out); err != nil {
		return fmt.Errorf("index: write event: %w", err)
	}
	return nil
}

// WriteAll encodes events in order.
func (w *StreamWriter) WriteAll(events []Event) error {
	for _, ev := range events {
		if err := w.Write(ev); err != nil {
			return err
		}
	}
	return nil
}
