// Package version holds build version information.
package version

// Version is the current release version, overridden at build time via
// -ldflags "-X github.com/blakazulu/search-mcp/pkg/version.Version=...".
var Version = "0.3.0-dev"

// Commit is the git commit hash, set at build time.
var Commit = "unknown"
