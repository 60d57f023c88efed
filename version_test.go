package networking

import (
	"strings"
	"testing"
)

func TestGetVersion(t *testing.T) {
	got := GetVersion()
	if !strings.HasPrefix(got, "PowerAuthNetworking "+Version) {
		t.Errorf("Unexpected version string %q", got)
	}

	info := GetVersionInfo()
	for _, key := range []string{"version", "commit", "build_date", "go_version"} {
		if info[key] == "" {
			t.Errorf("Expected %s in version info", key)
		}
	}
}
