package assembler

import (
	"strings"
	"unicode"
)

// Phrases that turn a chat message into an image generation request.
var imageKeywords = []string{
	"generate image", "tạo ảnh", "tạo tranh", "tạo logo", "gen image",
	"gen pic", "gen photo", "gen logo", "create image", "create pic",
	"create photo", "create logo",
}

// Streaming chat only reacts to a request at the start of the message.
var imagePrefixes = []string{
	"generate image", "gen image", "create image", "tạo ảnh", "tạo tranh", "gen pic",
}

// IsImageRequest reports whether text asks for an image anywhere in the message.
func IsImageRequest(text string) bool {
	lower := strings.ToLower(text)
	for _, k := range imageKeywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

// HasImagePrefix reports whether text starts with an image request phrase.
func HasImagePrefix(text string) bool {
	lower := strings.ToLower(text)
	for _, p := range imagePrefixes {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	return false
}

// Sanitize trims text, drops control characters other than tab and newlines
// and caps the result at maxRunes.
func Sanitize(text string, maxRunes int) string {
	var b strings.Builder
	b.Grow(len(text))
	n := 0
	for _, r := range strings.TrimSpace(text) {
		if unicode.IsControl(r) && r != '\n' && r != '\t' && r != '\r' {
			continue
		}
		if maxRunes > 0 && n >= maxRunes {
			break
		}
		b.WriteRune(r)
		n++
	}
	return strings.TrimSpace(b.String())
}
