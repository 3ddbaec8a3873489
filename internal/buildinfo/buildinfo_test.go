package buildinfo

import (
	"runtime"
	"strings"
	"testing"
)

func TestUserAgent(t *testing.T) {
	userAgent := UserAgent()
	if !strings.HasPrefix(userAgent, "gopher-relay/"+LibraryVersion) {
		t.Errorf("User agent should start with product and version: %s", userAgent)
	}
	if !strings.Contains(userAgent, runtime.Version()[2:]) {
		t.Errorf("User agent should contain the Go version: %s", userAgent)
	}
}

func TestPlatform(t *testing.T) {
	platform := Platform()
	if !strings.Contains(platform, runtime.GOARCH) {
		t.Errorf("Platform string should contain architecture: %s", platform)
	}
	if !strings.Contains(platform, runtime.GOOS) {
		t.Errorf("Platform string should contain OS: %s", platform)
	}
	if !strings.HasPrefix(platform, "go ") {
		t.Errorf("Platform string should start with 'go ': %s", platform)
	}
}
