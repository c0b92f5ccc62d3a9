package index

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/jward/cxref/internal/position"
)

// Database is the finalized, serialization-ready output of one build. Each
// collection is ordered by ascending id. Key order and the omission of
// absent optional fields are part of the output contract.
type Database struct {
	Types     []SymbolRecord   `json:"types"`
	Functions []FunctionRecord `json:"functions"`
	Variables []SymbolRecord   `json:"variables"`
}

// SymbolRecord is a finalized type or variable.
type SymbolRecord struct {
	ID            int      `json:"id"`
	USR           string   `json:"usr"`
	ShortName     string   `json:"short_name"`
	QualifiedName string   `json:"qualified_name"`
	Declaration   string   `json:"declaration,omitempty"`
	Definition    string   `json:"definition,omitempty"`
	AllUses       []string `json:"all_uses"`
}

// FunctionRecord is a finalized function. Callers and Callees hold
// "id@position" edge strings and are omitted when empty.
type FunctionRecord struct {
	ID            int      `json:"id"`
	USR           string   `json:"usr"`
	ShortName     string   `json:"short_name"`
	QualifiedName string   `json:"qualified_name"`
	Declaration   string   `json:"declaration,omitempty"`
	Definition    string   `json:"definition,omitempty"`
	Callers       []string `json:"callers,omitempty"`
	Callees       []string `json:"callees,omitempty"`
	AllUses       []string `json:"all_uses"`
}

// NewDatabase returns an empty Database whose collections encode as [].
func NewDatabase() *Database {
	return &Database{
		Types:     []SymbolRecord{},
		Functions: []FunctionRecord{},
		Variables: []SymbolRecord{},
	}
}

// WriteJSON writes db as indented JSON followed by a newline. Output is a
// pure function of db, so identical builds produce identical bytes.
func (db *Database) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(db); err != nil {
		return fmt.Errorf("index: encode database: %w", err)
	}
	return nil
}

// JSON returns the WriteJSON encoding of db.
func (db *Database) JSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := db.WriteJSON(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ReadDatabase decodes a document written by WriteJSON.
func ReadDatabase(r io.Reader) (*Database, error) {
	db := NewDatabase()
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(db); err != nil {
		return nil, fmt.Errorf("index: decode database: %w", err)
	}
	db.normalize()
	return db, nil
}

// normalize restores the always-present invariants after decoding.
func (db *Database) normalize() {
	if db.Types == nil {
		db.Types = []SymbolRecord{}
	}
	if db.Functions == nil {
		db.Functions = []FunctionRecord{}
	}
	if db.Variables == nil {
		db.Variables = []SymbolRecord{}
	}
	for i := range db.Types {
		if db.Types[i].AllUses == nil {
			db.Types[i].AllUses = []string{}
		}
	}
	for i := range db.Functions {
		if db.Functions[i].AllUses == nil {
			db.Functions[i].AllUses = []string{}
		}
	}
	for i := range db.Variables {
		if db.Variables[i].AllUses == nil {
			db.Variables[i].AllUses = []string{}
		}
	}
}

// Len returns the number of records of kind.
func (db *Database) Len(kind Kind) int {
	switch kind {
	case Function:
		return len(db.Functions)
	case Type:
		return len(db.Types)
	case Variable:
		return len(db.Variables)
	}
	return 0
}

// FunctionByUSR returns the function record with usr, or nil.
func (db *Database) FunctionByUSR(usr string) *FunctionRecord {
	for i := range db.Functions {
		if db.Functions[i].USR == usr {
			return &db.Functions[i]
		}
	}
	return nil
}

// SymbolByUSR returns the type or variable record with usr, or nil.
func (db *Database) SymbolByUSR(kind Kind, usr string) *SymbolRecord {
	var recs []SymbolRecord
	switch kind {
	case Type:
		recs = db.Types
	case Variable:
		recs = db.Variables
	default:
		return nil
	}
	for i := range recs {
		if recs[i].USR == usr {
			return &recs[i]
		}
	}
	return nil
}

// ParseEdge splits an "id@position" edge string.
func ParseEdge(s string) (int, position.Position, error) {
	idPart, posPart, ok := strings.Cut(s, "@")
	if !ok {
		return 0, position.Position{}, fmt.Errorf("index: edge %q: missing '@'", s)
	}
	id, err := strconv.Atoi(idPart)
	if err != nil || id < 0 {
		return 0, position.Position{}, fmt.Errorf("index: edge %q: bad id", s)
	}
	pos, err := position.Decode(posPart)
	if err != nil {
		return 0, position.Position{}, fmt.Errorf("index: edge %q: %w", s, err)
	}
	return id, pos, nil
}
