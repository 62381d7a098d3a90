// Package controller holds the gin handlers of the chat relay.
package controller

import (
	"context"
	"sync"

	"github.com/one-chat/one-chat/common/config"
	"github.com/one-chat/one-chat/dto"
	"github.com/one-chat/one-chat/model"
	"github.com/one-chat/one-chat/relay/access"
	"github.com/one-chat/one-chat/relay/catalog"
	relaymodel "github.com/one-chat/one-chat/relay/model"
	"github.com/one-chat/one-chat/relay/tokenizer"
	"github.com/one-chat/one-chat/relay/upstream"
)

// ConversationStore persists conversations scoped by owner.
type ConversationStore interface {
	ListConversations(ctx context.Context, owner string) ([]dto.ConversationSummary, error)
	LatestConversationID(ctx context.Context, owner string) (string, error)
	CreateConversation(ctx context.Context, owner, title string, maxConversations int) (string, error)
	GetMessages(ctx context.Context, owner, id string) ([]relaymodel.Message, error)
	Append(ctx context.Context, owner, id string, msg relaymodel.Message) error
	AppendBatch(ctx context.Context, owner, id string, msgs []relaymodel.Message) error
	DeleteConversation(ctx context.Context, owner, id string) (bool, error)
	DeleteAll(ctx context.Context, owner string) (int, error)
	SetTitleIfDefault(ctx context.Context, owner, id, text string) (bool, error)
}

// DocumentStore keeps the single uploaded document of each owner.
type DocumentStore interface {
	GetDocument(ctx context.Context, owner string) (*model.UploadedDocument, error)
	PendingDocument(ctx context.Context, owner, conversationID string) (*model.UploadedDocument, error)
	SetDocument(ctx context.Context, owner string, doc *model.UploadedDocument) error
	ClearDocument(ctx context.Context, owner string) (bool, error)
	MarkInjected(ctx context.Context, owner, documentID, conversationID string) error
}

// PreferenceStore keeps the selected model per owner and model type.
type PreferenceStore interface {
	GetModel(ctx context.Context, owner, modelType string) (string, error)
	SetModel(ctx context.Context, owner, modelType, model string) error
}

// Engine is the upstream API.
type Engine interface {
	Stream(ctx context.Context, in upstream.ChatInput) *upstream.Stream
	Request(ctx context.Context, in upstream.ChatInput) (string, error)
	GenerateImage(ctx context.Context, modelName, prompt string) (*upstream.ImageResult, error)
	EditImage(ctx context.Context, modelName string, src []byte, prompt string) ([]byte, error)
}

// Relay wires the handlers to their collaborators. All fields are required
// except Estimator, which defaults to tokenizer.Default().
type Relay struct {
	Conversations ConversationStore
	Documents     DocumentStore
	Preferences   PreferenceStore
	Catalog       *catalog.Catalog
	Access        *access.Registry
	Engine        Engine
	Estimator     tokenizer.Estimator

	streams streamRegistry
}

// NewRelay builds a Relay backed by a single store.
func NewRelay(store *model.Store, cat *catalog.Catalog, reg *access.Registry, engine Engine) *Relay {
	return &Relay{
		Conversations: store,
		Documents:     store,
		Preferences:   store,
		Catalog:       cat,
		Access:        reg,
		Engine:        engine,
	}
}

func (r *Relay) estimator() tokenizer.Estimator {
	if r.Estimator != nil {
		return r.Estimator
	}
	return tokenizer.Default()
}

func maxConversations(premium bool) int {
	if premium {
		return config.PremiumTierMaxConversations
	}
	return config.FreeTierMaxConversations
}

// streamRegistry tracks the latest in-flight stream of each user key so it
// can be cancelled from another request.
type streamRegistry struct {
	mu     sync.Mutex
	seq    uint64
	active map[string]streamEntry
}

type streamEntry struct {
	id     uint64
	cancel context.CancelFunc
}

// start derives a cancellable context for key's stream. The returned release
// must be called when the stream ends.
func (r *streamRegistry) start(parent context.Context, key string) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)

	r.mu.Lock()
	if r.active == nil {
		r.active = make(map[string]streamEntry)
	}
	r.seq++
	id := r.seq
	r.active[key] = streamEntry{id: id, cancel: cancel}
	r.mu.Unlock()

	return ctx, func() {
		cancel()
		r.mu.Lock()
		if e, ok := r.active[key]; ok && e.id == id {
			delete(r.active, key)
		}
		r.mu.Unlock()
	}
}

// cancel stops key's latest stream and reports whether one was running.
func (r *streamRegistry) cancel(key string) bool {
	r.mu.Lock()
	e, ok := r.active[key]
	if ok {
		delete(r.active, key)
	}
	r.mu.Unlock()

	if ok {
		e.cancel()
	}
	return ok
}

func (r *streamRegistry) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}
