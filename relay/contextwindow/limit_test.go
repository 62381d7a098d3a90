package contextwindow

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/one-chat/one-chat/common/config"
	"github.com/one-chat/one-chat/relay/model"
	"github.com/one-chat/one-chat/relay/tokenizer"
)

var est = tokenizer.Heuristic{}

func msg(role model.Role, n int) model.Message {
	return model.NewTextMessage(role, strings.Repeat("x", n))
}

func TestSingleOversizeMessageIsDropped(t *testing.T) {
	// 40000 chars costs 10020 tokens, more than 10000-2000
	out := Limit([]model.Message{msg(model.RoleUser, 40000)}, 10000, est)
	require.NotNil(t, out)
	require.Empty(t, out)
}

func TestEmptyInput(t *testing.T) {
	require.Empty(t, Limit(nil, 10000, est))
	require.Empty(t, Limit([]model.Message{}, 10000, est))
}

func TestStopsAtFirstOverflowFromTheEnd(t *testing.T) {
	msgs := []model.Message{
		msg(model.RoleUser, 40),      // 30
		msg(model.RoleAssistant, 40), // 30
		msg(model.RoleUser, 40000),   // 10020, blocks everything before it
		msg(model.RoleAssistant, 80), // 40
		msg(model.RoleUser, 80),      // 40
	}
	out, stats := LimitWithStats(msgs, 12000, est)
	require.Equal(t, msgs[3:], out)
	require.Equal(t, Stats{Kept: 2, Dropped: 3, Tokens: 80}, stats)
}

func TestDoesNotMutateOrAlias(t *testing.T) {
	msgs := []model.Message{msg(model.RoleUser, 8), msg(model.RoleAssistant, 8)}
	out := Limit(msgs, 100000, est)
	require.Equal(t, msgs, out)

	out[0] = model.NewTextMessage(model.RoleSystem, "changed")
	require.Equal(t, model.RoleUser, msgs[0].Role)
}

func TestMaximalSuffixProperty(t *testing.T) {
	r := rand.New(rand.NewPCG(7, 11))
	for round := range 200 {
		n := r.IntN(12)
		msgs := make([]model.Message, n)
		for i := range msgs {
			msgs[i] = msg(model.RoleUser, r.IntN(4000))
		}
		budget := config.ContextReservedTokens + r.IntN(3000)
		out := Limit(msgs, budget, est)

		t.Run(fmt.Sprintf("round-%d", round), func(t *testing.T) {
			k := len(out)
			require.Equal(t, msgs[n-k:], out, "must be a suffix")

			available := budget - config.ContextReservedTokens
			require.LessOrEqual(t, tokenizer.EstimateMessages(est, out), available)
			if k < n {
				require.Greater(t, tokenizer.EstimateMessages(est, msgs[n-k-1:]), available, "suffix must be maximal")
			}
		})
	}
}

func TestBudget(t *testing.T) {
	b, ok := Budget(true, false)
	require.True(t, ok)
	require.Equal(t, config.ContextBudgetPremium, b)

	b, ok = Budget(false, true)
	require.True(t, ok)
	require.Equal(t, config.ContextBudgetFree, b)

	_, ok = Budget(false, false)
	require.False(t, ok)
}

func TestApplyUnlimitedCopies(t *testing.T) {
	msgs := []model.Message{msg(model.RoleUser, 400000)}
	out, stats := Apply(msgs, 0, false, est)
	require.Equal(t, msgs, out)
	require.Equal(t, 1, stats.Kept)
	require.Zero(t, stats.Dropped)
}
