// Command relaycheck probes every configured chat model through the relay's
// upstream engine, streaming and non-streaming, and prints a pass/fail matrix.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/Laisky/errors/v2"
	gmw "github.com/Laisky/gin-middlewares/v6"
	glog "github.com/Laisky/go-utils/v5/log"
	"github.com/Laisky/zap"
	_ "github.com/joho/godotenv/autoload"
	"golang.org/x/sync/errgroup"

	"github.com/one-chat/one-chat/common/config"
	"github.com/one-chat/one-chat/common/env"
	"github.com/one-chat/one-chat/relay/upstream"
)

const defaultPrompt = "Reply with the single word: pong"

type checkConfig struct {
	Models      []string
	Prompt      string
	Concurrency int
	Timeout     time.Duration
}

func main() {
	logger, err := glog.NewConsoleWithName("relaycheck", glog.LevelInfo)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %+v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(gmw.SetLogger(ctx, logger), logger); err != nil {
		logger.Error("relay check failed", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("all probes passed")
}

func run(ctx context.Context, logger glog.Logger) error {
	cfg, err := loadConfig()
	if err != nil {
		return errors.Wrap(err, "load config")
	}
	logger.Info("starting relay check",
		zap.String("base_url", config.APIBaseURL),
		zap.Int("model_count", len(cfg.Models)),
		zap.Int("concurrency", cfg.Concurrency))

	client := upstream.New(upstream.Options{
		BaseURL:      config.APIBaseURL,
		APIKey:       config.APIKey,
		SystemPrompt: config.SystemPrompt,
		MaxTokens:    256,
		Temperature:  config.Temperature,
		TextTimeout:  cfg.Timeout,
	})

	var (
		mu      sync.Mutex
		results []probeResult
	)
	grp, grpCtx := errgroup.WithContext(ctx)
	grp.SetLimit(cfg.Concurrency)
	for _, modelName := range cfg.Models {
		for _, v := range probeVariants {
			grp.Go(func() error {
				res := v.run(grpCtx, client, modelName, cfg.Prompt)
				if res.Success {
					logger.Info("probe succeeded", zap.String("model", modelName),
						zap.String("variant", v.Key), zap.Duration("duration", res.Duration))
				} else {
					logger.Warn("probe failed", zap.String("model", modelName),
						zap.String("variant", v.Key), zap.String("error", res.Reason))
				}
				mu.Lock()
				results = append(results, res)
				mu.Unlock()
				return nil
			})
		}
	}
	_ = grp.Wait()

	rep := buildReport(cfg.Models, results)
	renderReport(os.Stdout, rep)
	if rep.failed > 0 {
		return errors.Errorf("%d of %d probes failed", rep.failed, rep.total)
	}
	return nil
}

func loadConfig() (checkConfig, error) {
	models := parseModels(env.String("RELAYCHECK_MODELS", ""))
	if len(models) == 0 {
		models = append(append(models, config.FreeModels...), config.PremiumModels...)
	}
	if len(models) == 0 {
		return checkConfig{}, errors.New("no models to probe, set RELAYCHECK_MODELS")
	}

	cfg := checkConfig{
		Models:      models,
		Prompt:      env.String("RELAYCHECK_PROMPT", defaultPrompt),
		Concurrency: env.Int("RELAYCHECK_CONCURRENCY", 4),
		Timeout:     env.Duration("RELAYCHECK_TIMEOUT", 60*time.Second),
	}
	if cfg.Concurrency <= 0 {
		return checkConfig{}, errors.Errorf("RELAYCHECK_CONCURRENCY must be positive, got %d", cfg.Concurrency)
	}
	return cfg, nil
}

// parseModels accepts comma, semicolon, newline or space separated ids.
func parseModels(raw string) []string {
	normalized := strings.NewReplacer(";", ",", "\n", ",", "\r", ",").Replace(raw)
	if !strings.Contains(normalized, ",") {
		return strings.Fields(normalized)
	}

	var models []string
	for _, part := range strings.Split(normalized, ",") {
		if candidate := strings.TrimSpace(part); candidate != "" {
			models = append(models, candidate)
		}
	}
	return models
}
