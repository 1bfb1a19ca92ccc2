// Package version provides build and version information for Still Engine.
package version

// Version is the current release version of Still Engine.
// This can be overridden at build time using:
//
//	go build -ldflags "-X github.com/quietroom/stillengine/internal/version.Version=x.y.z"
var Version = "1.0.0"
