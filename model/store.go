package model

import (
	"context"
	"slices"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"github.com/one-chat/one-chat/dto"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrInvalidRole          = errors.New("invalid message role")
)

// Store persists conversations, uploaded documents and model preferences.
// Conversation lists are cached per owner and invalidated on every write
// that touches that owner.
type Store struct {
	db    *gorm.DB
	lists *cache.Cache
	group singleflight.Group
	now   func() time.Time
}

// NewStore wraps db. listTTL bounds how long a cached list may be served.
func NewStore(db *gorm.DB, listTTL time.Duration) *Store {
	if listTTL <= 0 {
		listTTL = time.Minute
	}
	return &Store{
		db:    db,
		lists: cache.New(listTTL, 2*listTTL),
		now:   time.Now,
	}
}

// Migrate creates or updates the chat schema on s's database.
func (s *Store) Migrate() error {
	return MigrateSchema(s.db)
}

func (s *Store) nowMilli() int64 { return s.now().UnixMilli() }

func (s *Store) invalidate(owner string) { s.lists.Delete(owner) }

func (s *Store) cachedList(ctx context.Context, owner string) ([]dto.ConversationSummary, error) {
	if v, ok := s.lists.Get(owner); ok {
		return slices.Clone(v.([]dto.ConversationSummary)), nil
	}

	v, err, _ := s.group.Do(owner, func() (any, error) {
		rows, err := s.queryList(ctx, owner)
		if err != nil {
			return nil, err
		}
		s.lists.SetDefault(owner, rows)
		return rows, nil
	})
	if err != nil {
		return nil, err
	}
	return slices.Clone(v.([]dto.ConversationSummary)), nil
}
