package engine

import (
	"strings"
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestVersion(t *testing.T) {
	version := Version()
	if version == "" {
		t.Error("Version should not be empty")
	}

	// Version should be in semantic version format (roughly), except for dev builds
	if version != "dev" && !strings.Contains(version, ".") {
		t.Errorf("Version should contain dots for semantic versioning: %s", version)
	}
}

func TestUserAgent(t *testing.T) {
	userAgent := UserAgent()
	if !strings.Contains(userAgent, "gopher-relay") {
		t.Errorf("UserAgent should contain product name: %s", userAgent)
	}
	if !strings.Contains(userAgent, Version()) {
		t.Errorf("UserAgent should contain version: %s", userAgent)
	}
}

func TestSpansCarryVersion(t *testing.T) {
	config := DefaultObservabilityConfig()
	found := false
	for _, kv := range config.TracingAttributes {
		if kv == attribute.String("relay.version", Version()) {
			found = true
		}
	}
	if !found {
		t.Errorf("tracing attributes should carry relay.version=%s", Version())
	}
}
