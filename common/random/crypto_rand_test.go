package random_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/one-chat/one-chat/common/random"
)

func TestGeneratorsAreUnique(t *testing.T) {
	for name, gen := range map[string]func() string{
		"uuid":         random.GetUUID,
		"conversation": random.GetConversationID,
		"string":       func() string { return random.GetRandomString(24) },
	} {
		t.Run(name, func(t *testing.T) {
			seen := make(map[string]struct{}, 2000)
			for range 2000 {
				v := gen()
				_, dup := seen[v]
				require.False(t, dup, "duplicate value %q", v)
				seen[v] = struct{}{}
			}
		})
	}
}

func TestFormats(t *testing.T) {
	require.Len(t, random.GetUUID(), 32)
	require.NotContains(t, random.GetUUID(), "-")

	_, err := uuid.Parse(random.GetConversationID())
	require.NoError(t, err)

	require.Len(t, random.GetRandomString(0), 0)
	require.Len(t, random.GetRandomString(13), 13)
}
