// Package codec selects the audio codec and container a platform can both
// encode and later play back.
package codec

import "strings"

// MIME types in preference order. The codec-qualified strings are what an
// encoder is asked for; the bare container is the fallback.
const (
	MIMEWebMOpus = "audio/webm;codecs=opus"
	MIMEOggOpus  = "audio/ogg;codecs=opus"
	MIMEMP4AAC   = "audio/mp4;codecs=mp4a.40.2"
	MIMEMP4      = "audio/mp4"
)

// Choice is the codec/container pair used for one capture session.
// It is immutable once a session starts.
type Choice struct {
	MIMEType  string
	Extension string // Without the leading dot.
}

// BaseMIME returns the MIME type without parameters.
func (c Choice) BaseMIME() string {
	return BaseMIME(c.MIMEType)
}

// BaseMIME strips codec parameters: "audio/webm;codecs=opus" -> "audio/webm".
func BaseMIME(mimeType string) string {
	base, _, _ := strings.Cut(mimeType, ";")
	return strings.TrimSpace(base)
}

// SupportFunc reports whether the runtime can encode the given MIME type.
type SupportFunc func(mimeType string) bool

// Detect returns exactly one Choice for the platform. First match wins:
//  1. iOS, or a Safari-like engine that is not Chromium-like: AAC in MP4.
//     The bare MP4 container is used when the codec string cannot be
//     confirmed; these runtimes produce zero-byte files with anything else.
//  2. Android: Opus in WebM, else AAC in MP4.
//  3. Desktop: Opus in WebM, else Opus in Ogg, else AAC in MP4.
//  4. Anything else: AAC in MP4.
//
// Detect is pure: the same inputs always yield the same Choice.
func Detect(p Platform, supported SupportFunc) Choice {
	if supported == nil {
		supported = func(string) bool { return false }
	}

	switch {
	case p.Family == FamilyIOS || (p.SafariLike && !p.ChromiumLike):
		return aacMP4(supported)
	case p.Family == FamilyAndroid:
		if supported(MIMEWebMOpus) {
			return Choice{MIMEType: MIMEWebMOpus, Extension: "webm"}
		}
		return aacMP4(supported)
	case p.Family == FamilyDesktop:
		if supported(MIMEWebMOpus) {
			return Choice{MIMEType: MIMEWebMOpus, Extension: "webm"}
		}
		if supported(MIMEOggOpus) {
			return Choice{MIMEType: MIMEOggOpus, Extension: "ogg"}
		}
		return aacMP4(supported)
	default:
		return aacMP4(supported)
	}
}

// aacMP4 returns the codec-qualified MP4 choice when confirmed, the bare
// container otherwise.
func aacMP4(supported SupportFunc) Choice {
	if supported(MIMEMP4AAC) {
		return Choice{MIMEType: MIMEMP4AAC, Extension: "m4a"}
	}
	return Choice{MIMEType: MIMEMP4, Extension: "m4a"}
}

// ExtensionFor returns the file extension for a base MIME type, or "bin"
// when unknown. Used when the encoder fell back to a runtime default.
func ExtensionFor(mimeType string) string {
	switch BaseMIME(mimeType) {
	case "audio/webm":
		return "webm"
	case "audio/ogg":
		return "ogg"
	case "audio/mp4", "audio/x-m4a", "audio/aac":
		return "m4a"
	default:
		return "bin"
	}
}
