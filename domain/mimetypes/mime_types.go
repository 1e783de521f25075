// Package mimetypes lists the attachment types a chat accepts.
package mimetypes

import (
	"mime"
	"slices"
)

type MIME string

const (
	Unknown   MIME = "unknown"
	TextPlain MIME = "text/plain"

	ApplicationPDF  MIME = "application/pdf"
	ApplicationJSON MIME = "application/json"
	ApplicationZIP  MIME = "application/zip"

	ImagePNG  MIME = "image/png"
	ImageJPEG MIME = "image/jpeg"
	ImageGIF  MIME = "image/gif"
	ImageWEBP MIME = "image/webp"

	AudioMPEG MIME = "audio/mpeg"
	VideoMP4  MIME = "video/mp4"
)

// Attachments is the allowlist for uploaded files. Anything executable or
// rendered by browsers (html, svg, scripts) is left out.
var Attachments = []MIME{
	TextPlain, ApplicationPDF, ApplicationJSON, ApplicationZIP,
	ImagePNG, ImageJPEG, ImageGIF, ImageWEBP,
	AudioMPEG, VideoMP4,
}

// ToMIME drops the parameters of a detected media type.
func ToMIME(detected string) MIME {
	mt, _, err := mime.ParseMediaType(detected)
	if err != nil {
		return Unknown
	}
	return MIME(mt)
}

func Matches(detected string, expected MIME) (MIME, bool) {
	mt := ToMIME(detected)
	if mt == Unknown {
		return Unknown, false
	}
	return expected, mt == expected
}

// Allowed reports whether a detected media type may be attached to a message.
func Allowed(detected string) (MIME, bool) {
	mt := ToMIME(detected)
	return mt, slices.Contains(Attachments, mt)
}
