package engine

import "github.com/seuros/gopher-relay/internal/buildinfo"

// Version returns the current version of the gopher-relay compile engine
func Version() string {
	return buildinfo.LibraryVersion
}

// UserAgent returns the identifier reported by the CLI and in telemetry
func UserAgent() string {
	return buildinfo.UserAgent()
}
