// Package version carries the build identity stamped in at link time.
package version

// Set via -ldflags at build time.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// String is the human-readable build identity.
func String() string {
	return Version + " (commit: " + Commit + ", built: " + Date + ")"
}
