package cxref

import (
	"github.com/jward/cxref/internal/index"
	"github.com/jward/cxref/internal/store"
)

// Public type aliases for internal types used in the Engine and
// QueryBuilder API.

type Store = store.Store
type Unit = store.Unit
type UnitSymbol = store.UnitSymbol
type UnitUse = store.UnitUse
type Database = index.Database
type SymbolRecord = index.SymbolRecord
type FunctionRecord = index.FunctionRecord
