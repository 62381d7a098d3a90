package helper

import (
	"time"
)

// FormatTime renders timestamps the way the conversation API exposes them.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
