// Package buildinfo carries build-time metadata injected through ldflags.
package buildinfo

import "fmt"

// UnknownValue is reported for metadata missing from the build.
const UnknownValue = "unknown"

// Context holds the version and build date of the binary.
type Context struct {
	// Version is the git tag the binary was built from
	Version string

	// BuildDate is the time the binary was built
	BuildDate string
}

// NewContext creates build metadata. Empty values are reported as unknown.
func NewContext(version, buildDate string) *Context {
	return &Context{Version: version, BuildDate: buildDate}
}

// GetVersion returns the build version.
func (c *Context) GetVersion() string {
	if c == nil || c.Version == "" {
		return UnknownValue
	}
	return c.Version
}

// GetBuildDate returns the build date.
func (c *Context) GetBuildDate() string {
	if c == nil || c.BuildDate == "" {
		return UnknownValue
	}
	return c.BuildDate
}

// Release is the identifier used for error telemetry.
func (c *Context) Release() string {
	return "sensorrec@" + c.GetVersion()
}

func (c *Context) String() string {
	return fmt.Sprintf("sensorrec %s (built %s)", c.GetVersion(), c.GetBuildDate())
}
