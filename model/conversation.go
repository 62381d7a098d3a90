package model

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Laisky/errors/v2"
	"gorm.io/gorm"

	"github.com/one-chat/one-chat/common/helper"
	"github.com/one-chat/one-chat/common/random"
	"github.com/one-chat/one-chat/dto"
	relaymodel "github.com/one-chat/one-chat/relay/model"
)

const (
	DefaultTitle  = "New Conversation"
	maxTitleRunes = 50
	titleEllipsis = "..."
)

type Conversation struct {
	Id           string `json:"id" gorm:"primaryKey;type:varchar(64)"`
	Owner        string `json:"-" gorm:"type:varchar(128);index:idx_conversation_owner_created,priority:1;not null"`
	Title        string `json:"title" gorm:"type:varchar(255);not null"`
	MessageCount int    `json:"message_count" gorm:"not null;default:0"`
	CreatedTime  int64  `json:"created_time" gorm:"bigint;index:idx_conversation_owner_created,priority:2"`
	UpdatedTime  int64  `json:"updated_time" gorm:"bigint"`
}

// ConversationMessage is one append-only history entry. Seq orders messages
// within a conversation; Id breaks ties between concurrent writers.
type ConversationMessage struct {
	Id             int64  `json:"id" gorm:"primaryKey;autoIncrement"`
	ConversationId string `json:"conversation_id" gorm:"type:varchar(64);index:idx_message_conversation_seq,priority:1;not null"`
	Seq            int    `json:"seq" gorm:"index:idx_message_conversation_seq,priority:2"`
	Role           string `json:"role" gorm:"type:varchar(16);not null"`
	Kind           string `json:"kind" gorm:"type:varchar(16);default:''"`
	Content        string `json:"content" gorm:"type:text"`
	CreatedTime    int64  `json:"created_time" gorm:"bigint"`
}

// TitleFromText derives a conversation title from a user message.
func TitleFromText(text string) string {
	title := strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(title) <= maxTitleRunes {
		return title
	}
	runes := []rune(title)
	return strings.TrimSpace(string(runes[:maxTitleRunes])) + titleEllipsis
}

// ListConversations returns the owner's conversations, newest first.
func (s *Store) ListConversations(ctx context.Context, owner string) ([]dto.ConversationSummary, error) {
	return s.cachedList(ctx, owner)
}

func (s *Store) queryList(ctx context.Context, owner string) ([]dto.ConversationSummary, error) {
	rows := make([]dto.ConversationSummary, 0)
	err := s.db.WithContext(ctx).Model(&Conversation{}).
		Select(`conversations.id AS conversation_id, conversations.title, conversations.message_count,
			conversations.created_time, conversations.updated_time,
			COALESCE((SELECT m.content FROM conversation_messages m
				WHERE m.conversation_id = conversations.id
				ORDER BY m.seq ASC, m.id ASC LIMIT 1), '') AS first_message`).
		Where("conversations.owner = ?", owner).
		Order("conversations.created_time DESC, conversations.id DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, errors.Wrapf(err, "list conversations for %s", owner)
	}

	for i := range rows {
		rows[i].CreatedAt = helper.FormatTime(time.UnixMilli(rows[i].CreatedTime))
		rows[i].LastUpdated = helper.FormatTime(time.UnixMilli(rows[i].UpdatedTime))
	}
	return rows, nil
}

// LatestConversationID returns the newest conversation of owner, or "" when there is none.
func (s *Store) LatestConversationID(ctx context.Context, owner string) (string, error) {
	list, err := s.cachedList(ctx, owner)
	if err != nil || len(list) == 0 {
		return "", err
	}
	return list[0].ConversationId, nil
}

// CreateConversation inserts a conversation for owner. When owner already
// holds maxConversations or more, the oldest ones by creation time are
// deleted first. maxConversations <= 0 disables eviction.
func (s *Store) CreateConversation(ctx context.Context, owner, title string, maxConversations int) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		title = DefaultTitle
	}
	now := s.nowMilli()
	conv := Conversation{
		Id:          random.GetConversationID(),
		Owner:       owner,
		Title:       title,
		CreatedTime: now,
		UpdatedTime: now,
	}

	err := withBusyRetry(ctx, func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if maxConversations > 0 {
				var ids []string
				if err := tx.Model(&Conversation{}).
					Where("owner = ?", owner).
					Order("created_time ASC, id ASC").
					Pluck("id", &ids).Error; err != nil {
					return errors.Wrap(err, "load existing conversations")
				}
				for len(ids) >= maxConversations {
					if err := deleteConversationTx(tx, ids[0]); err != nil {
						return err
					}
					ids = ids[1:]
				}
			}
			return errors.Wrap(tx.Create(&conv).Error, "insert conversation")
		})
	})
	s.invalidate(owner)
	if err != nil {
		return "", errors.Wrapf(err, "create conversation for %s", owner)
	}
	return conv.Id, nil
}

func deleteConversationTx(tx *gorm.DB, id string) error {
	if err := tx.Where("conversation_id = ?", id).Delete(&ConversationMessage{}).Error; err != nil {
		return errors.Wrapf(err, "delete messages of %s", id)
	}
	if err := tx.Where("conversation_id = ?", id).Delete(&DocumentInjection{}).Error; err != nil {
		return errors.Wrapf(err, "delete document injections of %s", id)
	}
	if err := tx.Where("id = ?", id).Delete(&Conversation{}).Error; err != nil {
		return errors.Wrapf(err, "delete conversation %s", id)
	}
	return nil
}

// GetMessages returns the stored history in order. Conversations owned by
// someone else are reported as not found.
func (s *Store) GetMessages(ctx context.Context, owner, id string) ([]relaymodel.Message, error) {
	db := s.db.WithContext(ctx)
	var conv Conversation
	if err := db.Where("id = ? AND owner = ?", id, owner).Take(&conv).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, errors.Wrapf(err, "load conversation %s", id)
	}

	var rows []ConversationMessage
	if err := db.Where("conversation_id = ?", id).Order("seq ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, errors.Wrapf(err, "load messages of %s", id)
	}

	out := make([]relaymodel.Message, 0, len(rows))
	for _, r := range rows {
		m := relaymodel.NewTextMessage(relaymodel.Role(r.Role), r.Content)
		m.Kind = relaymodel.MessageKind(r.Kind)
		out = append(out, m)
	}
	return out, nil
}

// Append stores one message at the end of the conversation.
func (s *Store) Append(ctx context.Context, owner, id string, msg relaymodel.Message) error {
	return s.AppendBatch(ctx, owner, id, []relaymodel.Message{msg})
}

// AppendBatch stores msgs in order in one transaction. Only text parts are
// persisted; image parts are dropped.
func (s *Store) AppendBatch(ctx context.Context, owner, id string, msgs []relaymodel.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	for _, m := range msgs {
		if !m.Role.Valid() {
			return errors.Wrapf(ErrInvalidRole, "role %q", m.Role)
		}
	}

	now := s.nowMilli()
	err := withBusyRetry(ctx, func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var conv Conversation
			if err := tx.Where("id = ? AND owner = ?", id, owner).Take(&conv).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrConversationNotFound
				}
				return errors.Wrap(err, "load conversation")
			}

			rows := make([]ConversationMessage, 0, len(msgs))
			for i, m := range msgs {
				rows = append(rows, ConversationMessage{
					ConversationId: id,
					Seq:            conv.MessageCount + i,
					Role:           string(m.Role),
					Kind:           string(m.Kind),
					Content:        m.StringContent(),
					CreatedTime:    now,
				})
			}
			if err := tx.Create(&rows).Error; err != nil {
				return errors.Wrap(err, "insert messages")
			}

			return errors.Wrap(tx.Model(&Conversation{}).Where("id = ?", id).Updates(map[string]any{
				"message_count": conv.MessageCount + len(msgs),
				"updated_time":  now,
			}).Error, "touch conversation")
		})
	})
	s.invalidate(owner)
	if errors.Is(err, ErrConversationNotFound) {
		return ErrConversationNotFound
	}
	return errors.Wrapf(err, "append to conversation %s", id)
}

// DeleteConversation reports false when id does not exist or belongs to someone else.
func (s *Store) DeleteConversation(ctx context.Context, owner, id string) (bool, error) {
	deleted := false
	err := withBusyRetry(ctx, func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var n int64
			if err := tx.Model(&Conversation{}).Where("id = ? AND owner = ?", id, owner).Count(&n).Error; err != nil {
				return errors.Wrap(err, "check conversation owner")
			}
			if n == 0 {
				return nil
			}
			deleted = true
			return deleteConversationTx(tx, id)
		})
	})
	s.invalidate(owner)
	if err != nil {
		return false, errors.Wrapf(err, "delete conversation %s", id)
	}
	return deleted, nil
}

// DeleteAll removes every conversation of owner and returns how many were deleted.
func (s *Store) DeleteAll(ctx context.Context, owner string) (int, error) {
	var ids []string
	err := withBusyRetry(ctx, func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			ids = ids[:0]
			if err := tx.Model(&Conversation{}).Where("owner = ?", owner).Pluck("id", &ids).Error; err != nil {
				return errors.Wrap(err, "load conversations")
			}
			for _, id := range ids {
				if err := deleteConversationTx(tx, id); err != nil {
					return err
				}
			}
			return nil
		})
	})
	s.invalidate(owner)
	if err != nil {
		return 0, errors.Wrapf(err, "delete conversations of %s", owner)
	}
	return len(ids), nil
}

// SetTitleIfDefault titles the conversation from text while it still has
// the default title. It reports whether the title changed.
func (s *Store) SetTitleIfDefault(ctx context.Context, owner, id, text string) (bool, error) {
	title := TitleFromText(text)
	if title == "" {
		return false, nil
	}

	var affected int64
	err := withBusyRetry(ctx, func() error {
		res := s.db.WithContext(ctx).Model(&Conversation{}).
			Where("id = ? AND owner = ? AND title = ?", id, owner, DefaultTitle).
			Update("title", title)
		affected = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return false, errors.Wrapf(err, "set title of %s", id)
	}
	if affected > 0 {
		s.invalidate(owner)
	}
	return affected > 0, nil
}
