package common

import (
	"flag"
	"os"
	"path/filepath"

	"github.com/Laisky/zap"

	"github.com/one-chat/one-chat/common/config"
	"github.com/one-chat/one-chat/common/logger"
)

// Version is overwritten at build time with -ldflags "-X".
var Version = "v0.0.0"

var (
	Port   = flag.Int("port", 3000, "the listening port")
	LogDir = flag.String("log-dir", "./logs", "specify the log directory")
)

// Init parses flags and prepares the log directory. It must run before logger.SetupLogger.
func Init() {
	flag.Parse()

	if config.SessionSecretEnvValue == "random_string" {
		logger.Logger.Error("SESSION_SECRET is set to an example value, please change it to a random string.")
	}
	SQLitePath = config.SQLitePath

	if *LogDir == "" {
		return
	}

	expanded := expandLogDirPath(*LogDir)
	lg := logger.Logger.With(zap.String("log_dir", expanded))

	var err error
	if expanded, err = filepath.Abs(expanded); err != nil {
		lg.Fatal("failed to get absolute log dir", zap.Error(err))
	}
	if err = os.MkdirAll(expanded, 0o755); err != nil {
		lg.Fatal("failed to create log dir", zap.Error(err))
	}

	lg.Info("set log dir", zap.String("log_dir", expanded))
	logger.LogDir = expanded
	*LogDir = expanded
}
