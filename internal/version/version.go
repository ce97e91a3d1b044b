// Package version exposes the release version embedded from the VERSION file.
package version

import (
	_ "embed"
	"strings"
)

//go:embed VERSION
var versionContent string

// Get returns the embedded version string.
func Get() string {
	return strings.TrimSpace(versionContent)
}
