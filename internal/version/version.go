// Package version holds the build version, overridden with
// -ldflags "-X rblast/internal/version.Version=...".
package version

var Version = "dev"
