// Package version carries build metadata set with -ldflags -X.
package version

var (
	// Version is the release tag.
	Version = "dev"
	// GitSHA is the commit the binary was built from.
	GitSHA = "unknown"
	// BuildTime is the build timestamp.
	BuildTime = "unknown"
)

// String formats the build metadata for logs and the status endpoint.
func String() string {
	return Version + " (" + GitSHA + ", built " + BuildTime + ")"
}
