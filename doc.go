// Package cxref builds cross-reference databases for C and C++ source.
//
// # Pipeline
//
// For each translation unit, a front end parses the file with tree-sitter
// and emits a stream of declaration, definition and reference events.
// The stream is folded into a database of types, functions and variables:
// every entity gets a dense per-kind id from its USR, every occurrence is
// recorded, and every call inside a function body becomes a caller/callee
// edge pair.
//
// Events can also come from a JSON Lines stream (see internal/index) or a
// Risor script (see internal/runtime), so other front ends can feed the
// same builder.
//
// # Usage
//
//	e, err := cxref.New(".cxref/index.db")
//	if err != nil { ... }
//	defer e.Close()
//
//	db, err := e.BuildFile(ctx, "src/main.c")
//	err = db.WriteJSON(os.Stdout)
//
//	stats, err := e.IndexDirectory(ctx, "src")
//	callers, err := e.Query().Callers("src/main.c", "c:@F@main#")
//
// # Incremental Indexing
//
// [Engine.IndexFiles] stores one database per file and skips files whose
// content hash is unchanged. Changing the indirect marker policy rebuilds
// every file on the next run. [Engine.IndexDirectory] honors .gitignore
// and [WithExclude] patterns and prunes units whose files disappeared.
package cxref
