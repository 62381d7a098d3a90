// Package tokenizer estimates how many upstream tokens a piece of text costs.
package tokenizer

import (
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"
	"github.com/pkoukk/tiktoken-go"

	"github.com/one-chat/one-chat/common/config"
	"github.com/one-chat/one-chat/common/logger"
	"github.com/one-chat/one-chat/relay/model"
)

// MessageOverhead is added to every non-empty span for role and framing tokens.
const MessageOverhead = 20

// Estimator is a pure function of its input: deterministic, zero for empty text,
// and non-decreasing when text is appended.
type Estimator interface {
	Estimate(text string) int
}

// Heuristic approximates one token per four characters.
type Heuristic struct{}

func (Heuristic) Estimate(text string) int {
	if text == "" {
		return 0
	}
	return utf8.RuneCountInString(text)/4 + MessageOverhead
}

// Tiktoken counts cl100k_base tokens exactly.
type Tiktoken struct {
	enc *tiktoken.Tiktoken
}

// NewTiktoken loads the cl100k_base encoding. Offline hosts need TIKTOKEN_CACHE_DIR
// pointing at pre-downloaded BPE files.
func NewTiktoken() (*Tiktoken, error) {
	enc, err := tiktoken.GetEncoding(tiktoken.MODEL_CL100K_BASE)
	if err != nil {
		return nil, errors.Wrap(err, "load cl100k_base encoding")
	}
	return &Tiktoken{enc: enc}, nil
}

func (t *Tiktoken) Estimate(text string) int {
	if text == "" {
		return 0
	}
	return len(t.enc.Encode(text, nil, nil)) + MessageOverhead
}

var (
	defaultEstimator Estimator = Heuristic{}
	initOnce         sync.Once
)

// Init picks the process estimator from TOKEN_ESTIMATOR. A tiktoken load
// failure is logged and the heuristic is kept.
func Init() {
	initOnce.Do(func() {
		if strings.EqualFold(config.TokenEstimator, "heuristic") {
			logger.Logger.Info("using heuristic token estimator")
			return
		}

		est, err := NewTiktoken()
		if err != nil {
			logger.Logger.Warn("tiktoken unavailable, falling back to heuristic token estimator",
				zap.String("tiktoken_cache_dir", config.TiktokenCacheDir),
				zap.Error(err))
			return
		}
		defaultEstimator = est
		logger.Logger.Info("using tiktoken cl100k_base token estimator")
	})
}

// Default returns the estimator chosen by Init.
func Default() Estimator {
	Init()
	return defaultEstimator
}

// EstimateMessage counts only the text parts of m.
func EstimateMessage(est Estimator, m model.Message) int {
	return est.Estimate(m.Content.Text())
}

// EstimateMessages sums EstimateMessage over msgs.
func EstimateMessages(est Estimator, msgs []model.Message) int {
	total := 0
	for _, m := range msgs {
		total += EstimateMessage(est, m)
	}
	return total
}
