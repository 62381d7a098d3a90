// Package internal copies the chat schema from one database to another.
package internal

import (
	"context"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/one-chat/one-chat/common/logger"
	"github.com/one-chat/one-chat/model"
)

const defaultBatchSize = 500

// Migrator copies every chat table from SourceDSN to TargetDSN. Rows that
// already exist in the target are left untouched, so a run can be repeated.
type Migrator struct {
	SourceDSN string
	TargetDSN string
	DryRun    bool
	BatchSize int
}

// Stats reports one run.
type Stats struct {
	StartTime time.Time
	EndTime   time.Time
	// Rows maps table name to rows read from the source.
	Rows map[string]int64
}

type tableCopy struct {
	name  string
	order string
	copy  func(ctx context.Context, src, dst *gorm.DB, order string, batchSize int, dryRun bool) (int64, error)
}

var tables = []tableCopy{
	{name: "conversations", order: "id", copy: copyRows[model.Conversation]},
	{name: "conversation_messages", order: "id", copy: copyRows[model.ConversationMessage]},
	{name: "uploaded_documents", order: "id", copy: copyRows[model.UploadedDocument]},
	{name: "document_injections", order: "document_id, conversation_id", copy: copyRows[model.DocumentInjection]},
	{name: "user_preferences", order: "owner, model_type", copy: copyRows[model.UserPreference]},
}

func (m *Migrator) Migrate(ctx context.Context) (*Stats, error) {
	stats := &Stats{StartTime: time.Now(), Rows: make(map[string]int64, len(tables))}
	if m.SourceDSN == m.TargetDSN {
		return nil, errors.New("source and target databases cannot be the same")
	}
	batchSize := m.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	src, err := Connect(m.SourceDSN)
	if err != nil {
		return nil, errors.Wrap(err, "connect source database")
	}
	defer closeConn("source", src)
	dst, err := Connect(m.TargetDSN)
	if err != nil {
		return nil, errors.Wrap(err, "connect target database")
	}
	defer closeConn("target", dst)

	logger.Logger.Info("starting database migration",
		zap.String("source_type", src.Type),
		zap.String("target_type", dst.Type),
		zap.Bool("dry_run", m.DryRun))

	if !m.DryRun {
		if err = model.MigrateSchema(dst.DB); err != nil {
			return nil, errors.Wrap(err, "prepare target schema")
		}
	}

	for _, t := range tables {
		n, err := t.copy(ctx, src.DB, dst.DB, t.order, batchSize, m.DryRun)
		if err != nil {
			return nil, errors.Wrapf(err, "copy table %s", t.name)
		}
		stats.Rows[t.name] = n
		logger.Logger.Info("table copied", zap.String("table", t.name), zap.Int64("rows", n))
	}

	if !m.DryRun && dst.Type == "postgres" {
		if err = dst.DB.WithContext(ctx).Exec(
			"SELECT setval(pg_get_serial_sequence('conversation_messages', 'id'), " +
				"COALESCE((SELECT MAX(id) FROM conversation_messages), 0) + 1, false)").Error; err != nil {
			return nil, errors.Wrap(err, "fix conversation_messages sequence")
		}
	}

	stats.EndTime = time.Now()
	logger.Logger.Info("migration completed", zap.Duration("duration", stats.EndTime.Sub(stats.StartTime)))
	return stats, nil
}

// copyRows pages through T ordered by its key columns. Composite keys rule
// out gorm's FindInBatches.
func copyRows[T any](ctx context.Context, src, dst *gorm.DB, order string, batchSize int, dryRun bool) (int64, error) {
	var copied int64
	for offset := 0; ; offset += batchSize {
		var batch []T
		if err := src.WithContext(ctx).Order(order).Limit(batchSize).Offset(offset).Find(&batch).Error; err != nil {
			return copied, errors.Wrap(err, "read batch")
		}
		if len(batch) == 0 {
			return copied, nil
		}
		if !dryRun {
			if err := dst.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&batch).Error; err != nil {
				return copied, errors.Wrap(err, "write batch")
			}
		}
		copied += int64(len(batch))
		if len(batch) < batchSize {
			return copied, nil
		}
	}
}

func closeConn(name string, c *Connection) {
	if err := c.Close(); err != nil {
		logger.Logger.Error("failed to close database", zap.String("database", name), zap.Error(err))
	}
}
