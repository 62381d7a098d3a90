package logger

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/one-chat/one-chat/common/config"
)

func TestLogFilePath(t *testing.T) {
	day := time.Date(2025, 3, 9, 10, 0, 0, 0, time.UTC)

	orig := config.OnlyOneLogFile
	t.Cleanup(func() { config.OnlyOneLogFile = orig })

	config.OnlyOneLogFile = false
	require.Equal(t, filepath.Join("/var/log", "one-chat-20250309.log"), logFilePath("/var/log", day))

	config.OnlyOneLogFile = true
	require.Equal(t, filepath.Join("/var/log", "one-chat.log"), logFilePath("/var/log", day))
}

func TestSetupLoggerWritesGinOutputToFile(t *testing.T) {
	dir := t.TempDir()
	origDir, origOut, origErr := LogDir, gin.DefaultWriter, gin.DefaultErrorWriter
	t.Cleanup(func() {
		LogDir = origDir
		gin.DefaultWriter = origOut
		gin.DefaultErrorWriter = origErr
		ResetSetupLogOnceForTests()
	})

	LogDir = dir
	ResetSetupLogOnceForTests()
	SetupLogger()

	_, err := gin.DefaultWriter.Write([]byte("hello log file\n"))
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	data, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)
	require.Contains(t, string(data), "hello log file")
	require.NotNil(t, Logger)
}
