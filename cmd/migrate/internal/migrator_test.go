package internal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/one-chat/one-chat/model"
	relaymodel "github.com/one-chat/one-chat/relay/model"
)

func seedSource(t *testing.T, dsn string) (owner, convID string) {
	t.Helper()
	conn, err := Connect(dsn)
	require.NoError(t, err)
	defer conn.Close()

	store := model.NewStore(conn.DB, time.Minute)
	require.NoError(t, store.Migrate())

	ctx := context.Background()
	owner = "user-1"
	convID, err = store.CreateConversation(ctx, owner, "", 10)
	require.NoError(t, err)
	require.NoError(t, store.AppendBatch(ctx, owner, convID, []relaymodel.Message{
		relaymodel.NewTextMessage(relaymodel.RoleUser, "hello"),
		relaymodel.NewTextMessage(relaymodel.RoleAssistant, "hi there"),
	}))
	require.NoError(t, store.SetModel(ctx, owner, "chat", "gpt-5"))
	return owner, convID
}

func TestMigrateCopiesChatTables(t *testing.T) {
	dir := t.TempDir()
	src := "sqlite://" + filepath.Join(dir, "src.db")
	dst := "sqlite://" + filepath.Join(dir, "dst.db")
	owner, convID := seedSource(t, src)

	m := &Migrator{SourceDSN: src, TargetDSN: dst, BatchSize: 1}
	stats, err := m.Migrate(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 1, stats.Rows["conversations"])
	require.EqualValues(t, 2, stats.Rows["conversation_messages"])
	require.EqualValues(t, 1, stats.Rows["user_preferences"])

	// a second run is a no-op on existing rows
	_, err = m.Migrate(context.Background())
	require.NoError(t, err)

	conn, err := Connect(dst)
	require.NoError(t, err)
	defer conn.Close()
	store := model.NewStore(conn.DB, time.Minute)

	msgs, err := store.GetMessages(context.Background(), owner, convID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, "hi there", msgs[1].StringContent())

	pref, err := store.GetModel(context.Background(), owner, "chat")
	require.NoError(t, err)
	require.Equal(t, "gpt-5", pref)
}

func TestMigrateDryRunWritesNothing(t *testing.T) {
	dir := t.TempDir()
	src := "sqlite://" + filepath.Join(dir, "src.db")
	dst := "sqlite://" + filepath.Join(dir, "dst.db")
	seedSource(t, src)

	stats, err := (&Migrator{SourceDSN: src, TargetDSN: dst, DryRun: true}).Migrate(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 2, stats.Rows["conversation_messages"])

	conn, err := Connect(dst)
	require.NoError(t, err)
	defer conn.Close()
	require.False(t, conn.DB.Migrator().HasTable(&model.Conversation{}))
}

func TestMigrateRejectsSameDatabase(t *testing.T) {
	_, err := (&Migrator{SourceDSN: "sqlite://x.db", TargetDSN: "sqlite://x.db"}).Migrate(context.Background())
	require.Error(t, err)
}
