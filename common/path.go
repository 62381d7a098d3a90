package common

import (
	"os"
	"regexp"
	"strings"
)

var windowsEnvPattern = regexp.MustCompile(`%([A-Za-z0-9_]+)%`)

// expandLogDirPath resolves $VAR and %VAR% placeholders. Unknown %VAR% stays literal,
// except %DATA_DIR% which defaults to /data inside containers.
func expandLogDirPath(path string) string {
	if path == "" {
		return ""
	}

	return windowsEnvPattern.ReplaceAllStringFunc(os.ExpandEnv(path), func(match string) string {
		key := strings.Trim(match, "%")
		if val, ok := os.LookupEnv(key); ok && val != "" {
			return val
		}
		if key == "DATA_DIR" {
			return "/data"
		}
		return match
	})
}
