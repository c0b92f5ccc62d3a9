// Package scripts embeds the bundled Risor event scripts.
package scripts

import "embed"

// FS holds every bundled .risor script, addressed as "events/<name>.risor".
//
//go:embed events/*.risor
var FS embed.FS
