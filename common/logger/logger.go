package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	glog "github.com/Laisky/go-utils/v5/log"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"

	"github.com/one-chat/one-chat/common/config"
)

var (
	// Logger is the process-wide logger; request handlers should prefer gmw.GetLogger(c).
	Logger glog.Logger
	// LogDir is set by common.Init from --log-dir; empty disables the log file.
	LogDir string

	setupLogOnce sync.Once
	initLogOnce  sync.Once
)

func init() {
	initLogger()
}

func initLogger() {
	initLogOnce.Do(func() {
		var err error
		level := glog.LevelInfo
		if config.DebugEnabled {
			level = glog.LevelDebug
		}

		Logger, err = glog.NewConsoleWithName("one-chat", level)
		if err != nil {
			panic(fmt.Sprintf("failed to create logger: %+v", err))
		}
	})
}

// SetupLogger tees gin's writers into a log file under LogDir and pins the level.
func SetupLogger() {
	setupLogOnce.Do(func() {
		if LogDir != "" {
			fd, err := os.OpenFile(logFilePath(LogDir, time.Now()), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
			if err != nil {
				log.Fatal("failed to open log file")
			}
			gin.DefaultWriter = io.MultiWriter(os.Stdout, fd)
			gin.DefaultErrorWriter = io.MultiWriter(os.Stderr, fd)
		}

		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		Logger = Logger.With(zap.String("host", hostname))

		if config.DebugEnabled {
			_ = Logger.ChangeLevel("debug")
			Logger.Info("running in debug mode")
		} else {
			_ = Logger.ChangeLevel("info")
		}
	})
}

func logFilePath(dir string, now time.Time) string {
	if config.OnlyOneLogFile {
		return filepath.Join(dir, "one-chat.log")
	}
	return filepath.Join(dir, fmt.Sprintf("one-chat-%s.log", now.Format("20060102")))
}
