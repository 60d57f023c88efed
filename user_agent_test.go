package networking

import (
	"runtime"
	"strings"
	"testing"
)

func TestLanguageTag(t *testing.T) {
	tests := map[string]string{
		"en_US":       "en-US",
		"en-us":       "en-US",
		"cs":          "cs",
		"cs_CZ.UTF-8": "cs-CZ",
		"zh_hant_tw":  "zh-Hant-TW",
		"es_419":      "es-419",
		"iw_IL":       "he-IL",
		"in":          "id",
		"ji":          "yi",
		"EN_gb@euro":  "en-GB",
		"":            "und",
		"1234":        "und",
	}
	for in, want := range tests {
		if got := LanguageTag(in); got != want {
			t.Errorf("LanguageTag(%q): expected %q, got %q", in, want, got)
		}
	}
}

func TestLibraryDefaultUserAgent(t *testing.T) {
	ua := LibraryDefaultUserAgent(AppInfo{Name: "Wallet", Version: "2.1", Platform: "android", Locale: "cs_CZ"})

	want := "PowerAuthNetworking/" + strings.TrimPrefix(Version, "v") + " (android; cs-CZ) Wallet/2.1"
	if got := ua.Value(); got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
}

func TestLibraryDefaultUserAgentFallbacks(t *testing.T) {
	got := LibraryDefaultUserAgent(AppInfo{}).Value()

	if !strings.Contains(got, "("+runtime.GOOS+"; en)") {
		t.Errorf("Expected OS and en fallback in %q", got)
	}
	if strings.HasSuffix(got, " ") {
		t.Errorf("Expected no trailing app part in %q", got)
	}
}

func TestSystemAndCustomUserAgent(t *testing.T) {
	if got := SystemDefaultUserAgent().Value(); got != "" {
		t.Errorf("Expected empty system user agent, got %q", got)
	}
	if got := CustomUserAgent("MyApp/1").Value(); got != "MyApp/1" {
		t.Errorf("Expected custom value, got %q", got)
	}
}
