// Package version carries build metadata, stamped with
// -ldflags "-X slackagent/pkg/version.Version=v0.3.0".
package version

//nolint:gochecknoglobals // set by the linker
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// String renders all three fields on one line.
func String() string {
	return Version + " (" + Commit + ", " + Date + ")"
}
