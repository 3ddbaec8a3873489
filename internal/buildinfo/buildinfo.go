// Package buildinfo reports the library version and the runtime it was
// built with.
package buildinfo

import (
	"fmt"
	"runtime"
)

// LibraryVersion is injected at build time via -ldflags
var LibraryVersion = "dev"

// UserAgent identifies the compiler in logs and telemetry.
func UserAgent() string {
	return fmt.Sprintf("gopher-relay/%s (Go/%s)", LibraryVersion, runtime.Version()[2:])
}

// Platform describes the host the binary runs on.
func Platform() string {
	return fmt.Sprintf("go %s [%s-%s]", runtime.Version()[2:], runtime.GOARCH, runtime.GOOS)
}
