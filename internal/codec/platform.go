package codec

import (
	"fmt"
	"runtime"
	"strings"
)

// Family groups platforms that share recording quirks.
type Family int

const (
	FamilyUnknown Family = iota
	FamilyIOS
	FamilyAndroid
	FamilyDesktop
)

// String returns the string representation of the Family.
func (f Family) String() string {
	switch f {
	case FamilyIOS:
		return "ios"
	case FamilyAndroid:
		return "android"
	case FamilyDesktop:
		return "desktop"
	case FamilyUnknown:
		return "unknown"
	default:
		return fmt.Sprintf("Family(%d)", f)
	}
}

// Platform is the signature the detector branches on.
type Platform struct {
	Family       Family
	SafariLike   bool // WebKit engine advertising Safari.
	ChromiumLike bool // Blink engine (Chrome, Edge, Opera, Samsung Internet, ...).
}

// Host returns the Platform of the running process.
func Host() Platform {
	return FromGOOS(runtime.GOOS)
}

// FromGOOS maps a GOOS value to a Platform. Native hosts are never
// Safari-like; only the family matters.
func FromGOOS(goos string) Platform {
	switch goos {
	case "ios":
		return Platform{Family: FamilyIOS}
	case "android":
		return Platform{Family: FamilyAndroid}
	case "darwin", "linux", "windows", "freebsd", "openbsd", "netbsd":
		return Platform{Family: FamilyDesktop}
	default:
		return Platform{Family: FamilyUnknown}
	}
}

// chromiumMarkers identify Blink-based browsers, including the iOS shells
// that embed WebKit but brand themselves as Chrome or Edge.
var chromiumMarkers = []string{
	"chrome/",
	"chromium/",
	"crios/",
	"edg/",
	"edgios/",
	"edga/",
	"opr/",
	"samsungbrowser/",
}

// ParseUserAgent classifies a browser User-Agent string.
// An empty string yields FamilyUnknown.
func ParseUserAgent(ua string) Platform {
	lower := strings.ToLower(ua)
	if lower == "" {
		return Platform{}
	}

	var p Platform
	for _, m := range chromiumMarkers {
		if strings.Contains(lower, m) {
			p.ChromiumLike = true
			break
		}
	}
	p.SafariLike = strings.Contains(lower, "safari/") || strings.Contains(lower, "applewebkit/")

	switch {
	case strings.Contains(lower, "iphone"),
		strings.Contains(lower, "ipad"),
		strings.Contains(lower, "ipod"):
		p.Family = FamilyIOS
	case strings.Contains(lower, "android"):
		p.Family = FamilyAndroid
	case strings.Contains(lower, "windows"),
		strings.Contains(lower, "macintosh"),
		strings.Contains(lower, "mac os x"),
		strings.Contains(lower, "x11"),
		strings.Contains(lower, "linux"),
		strings.Contains(lower, "cros"):
		p.Family = FamilyDesktop
	}
	return p
}
