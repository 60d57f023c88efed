package networking

import (
	"fmt"
	"runtime"
	"strings"

	"golang.org/x/text/language"
)

// AppInfo describes the application embedding the library.
type AppInfo struct {
	Name    string
	Version string
	// Platform defaults to the running OS when empty.
	Platform string
	// Locale is a language tag or POSIX locale such as "en_US".
	Locale string
}

type userAgentKind int

const (
	userAgentLibrary userAgentKind = iota
	userAgentSystem
	userAgentCustom
)

// UserAgent decides the User-Agent header. The value is assembled once when
// the UserAgent is created.
type UserAgent struct {
	kind  userAgentKind
	value string
}

// LibraryDefaultUserAgent builds
// "PowerAuthNetworking/<version> (<platform>; <language>) <app>/<appVersion>".
func LibraryDefaultUserAgent(app AppInfo) UserAgent {
	platform := app.Platform
	if platform == "" {
		platform = runtime.GOOS
	}
	lang := LanguageTag(app.Locale)
	if lang == "und" {
		lang = "en"
	}
	value := fmt.Sprintf("PowerAuthNetworking/%s (%s; %s)", strings.TrimPrefix(Version, "v"), platform, lang)
	if app.Name != "" {
		value += " " + app.Name
		if app.Version != "" {
			value += "/" + app.Version
		}
	}
	return UserAgent{kind: userAgentLibrary, value: value}
}

// SystemDefaultUserAgent leaves the header to the HTTP transport.
func SystemDefaultUserAgent() UserAgent {
	return UserAgent{kind: userAgentSystem}
}

// CustomUserAgent sends value verbatim.
func CustomUserAgent(value string) UserAgent {
	return UserAgent{kind: userAgentCustom, value: value}
}

// Value returns the header value, or "" when the transport default is used.
func (u UserAgent) Value() string {
	if u.kind == userAgentSystem {
		return ""
	}
	return u.value
}

// LanguageTag normalizes a locale to a BCP 47 tag: "en_US" and "en-us"
// become "en-US", "cs" stays "cs". Deprecated language codes are replaced and
// malformed input yields "und".
func LanguageTag(locale string) string {
	locale = strings.TrimSpace(locale)
	if i := strings.IndexAny(locale, ".@"); i >= 0 {
		locale = locale[:i]
	}
	tag, err := language.Parse(strings.ReplaceAll(locale, "_", "-"))
	if err != nil && tag == language.Und {
		return "und"
	}
	if canon, err := language.Deprecated.Canonicalize(tag); err == nil {
		tag = canon
	}
	return tag.String()
}
