// Package contextwindow trims conversation history to a token budget.
package contextwindow

import (
	"slices"

	"github.com/one-chat/one-chat/common/config"
	"github.com/one-chat/one-chat/relay/model"
	"github.com/one-chat/one-chat/relay/tokenizer"
)

// Stats describes one limiting pass.
type Stats struct {
	Kept    int
	Dropped int
	Tokens  int
}

// Limit returns the longest chronological suffix of messages whose estimated
// size fits in maxTokens minus the reserved response budget. The input is not
// modified and the result never aliases it.
func Limit(messages []model.Message, maxTokens int, est tokenizer.Estimator) []model.Message {
	out, _ := LimitWithStats(messages, maxTokens, est)
	return out
}

func LimitWithStats(messages []model.Message, maxTokens int, est tokenizer.Estimator) ([]model.Message, Stats) {
	available := maxTokens - config.ContextReservedTokens
	used := 0
	start := len(messages)
	for i := len(messages) - 1; i >= 0; i-- {
		cost := tokenizer.EstimateMessage(est, messages[i])
		if used+cost > available {
			break
		}
		used += cost
		start = i
	}

	kept := slices.Clone(messages[start:])
	if kept == nil {
		kept = []model.Message{}
	}
	return kept, Stats{
		Kept:    len(kept),
		Dropped: start,
		Tokens:  used,
	}
}

// Budget reports the history budget for a request. Premium users get the
// large budget, free models the small one, anything else is unlimited.
func Budget(premium bool, isFreeModel bool) (int, bool) {
	switch {
	case premium:
		return config.ContextBudgetPremium, true
	case isFreeModel:
		return config.ContextBudgetFree, true
	default:
		return 0, false
	}
}

// Apply limits messages when a budget applies and copies them otherwise.
func Apply(messages []model.Message, budget int, limited bool, est tokenizer.Estimator) ([]model.Message, Stats) {
	if !limited {
		kept := slices.Clone(messages)
		if kept == nil {
			kept = []model.Message{}
		}
		return kept, Stats{Kept: len(kept), Tokens: tokenizer.EstimateMessages(est, kept)}
	}
	return LimitWithStats(messages, budget, est)
}
