package store

import "time"

// Unit is one indexed source file and the build that produced its
// database.
type Unit struct {
	ID      int64
	Path    string
	Hash    string
	BuildID string
	BuiltAt time.Time
}

// UnitSymbol is a symbol record as stored for one unit. LocalID is the
// symbol's id within that unit's database.
type UnitSymbol struct {
	UnitID        int64
	UnitPath      string
	Kind          string
	LocalID       int
	USR           string
	ShortName     string
	QualifiedName string
	Declaration   string
	Definition    string
}

// UnitUse is one occurrence of a symbol in a unit.
type UnitUse struct {
	UnitPath string
	Kind     string
	USR      string
	Position string
}
