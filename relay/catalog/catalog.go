// Package catalog lists the chat and image models and applies the tier rules
// for choosing between them.
package catalog

import (
	"slices"
	"strings"

	"github.com/Laisky/errors/v2"

	"github.com/one-chat/one-chat/common/config"
)

type ModelType string

const (
	TypeChat  ModelType = "chat"
	TypeImage ModelType = "image"
)

// Selection errors carry the message shown to the user.
var (
	ErrPremiumChatModel  = errors.New("This model is only available for premium users.")
	ErrPremiumImageModel = errors.New("Image models are only available for premium users.")
	ErrEmptyModel        = errors.New("Model cannot be empty")
	ErrUnknownModelType  = errors.New("Unknown model type")
)

// Entry is one selectable model as listed to the front-end.
type Entry struct {
	ID      string `json:"id"`
	Premium bool   `json:"premium"`
}

type Options struct {
	FreeModels            []string
	PremiumModels         []string
	ImageModels           []string
	DefaultPremiumModel   string
	DefaultFreeModel      string
	DefaultImageModel     string
	DefaultImageEditModel string
}

// Catalog is immutable after construction.
type Catalog struct {
	opts Options
	free map[string]struct{}
}

func New(opts Options) *Catalog {
	free := make(map[string]struct{}, len(opts.FreeModels))
	for _, m := range opts.FreeModels {
		free[m] = struct{}{}
	}
	return &Catalog{opts: opts, free: free}
}

// FromConfig builds the catalog from environment configuration.
func FromConfig() *Catalog {
	return New(Options{
		FreeModels:            config.FreeModels,
		PremiumModels:         config.PremiumModels,
		ImageModels:           config.ImageModels,
		DefaultPremiumModel:   config.DefaultPremiumModel,
		DefaultFreeModel:      config.DefaultFreeModel,
		DefaultImageModel:     config.DefaultImageModel,
		DefaultImageEditModel: config.DefaultImageEditModel,
	})
}

func (c *Catalog) IsFreeModel(id string) bool {
	_, ok := c.free[id]
	return ok
}

// ChatModels lists premium models first, then the free ones.
func (c *Catalog) ChatModels() []Entry {
	out := make([]Entry, 0, len(c.opts.PremiumModels)+len(c.opts.FreeModels))
	for _, m := range c.opts.PremiumModels {
		if !c.IsFreeModel(m) {
			out = append(out, Entry{ID: m, Premium: true})
		}
	}
	for _, m := range c.opts.FreeModels {
		out = append(out, Entry{ID: m})
	}
	return out
}

func (c *Catalog) ImageModels() []Entry {
	out := make([]Entry, 0, len(c.opts.ImageModels))
	for _, m := range c.opts.ImageModels {
		out = append(out, Entry{ID: m, Premium: true})
	}
	return out
}

// ChatModel resolves the model for a chat turn: the stored preference, then
// the tier default. A free user whose preference is not a free model gets the
// free default.
func (c *Catalog) ChatModel(preferred string, premium bool) string {
	if preferred != "" && (premium || c.IsFreeModel(preferred)) {
		return preferred
	}
	if premium {
		return c.opts.DefaultPremiumModel
	}
	return c.opts.DefaultFreeModel
}

// ImageModel resolves the generation model: explicit request, stored
// preference, then the configured default.
func (c *Catalog) ImageModel(requested, preferred string) string {
	for _, m := range []string{requested, preferred, c.opts.DefaultImageModel} {
		if m = strings.TrimSpace(m); m != "" {
			return m
		}
	}
	if len(c.opts.ImageModels) > 0 {
		return c.opts.ImageModels[0]
	}
	return ""
}

// ImageEditModel resolves the model used by image edits.
func (c *Catalog) ImageEditModel(requested, preferred string) string {
	for _, m := range []string{requested, preferred, c.opts.DefaultImageEditModel} {
		if m = strings.TrimSpace(m); m != "" {
			return m
		}
	}
	return c.ImageModel("", "")
}

// ParseModelType maps the request value; empty means chat.
func ParseModelType(s string) (ModelType, error) {
	switch ModelType(strings.ToLower(strings.TrimSpace(s))) {
	case "", TypeChat:
		return TypeChat, nil
	case TypeImage:
		return TypeImage, nil
	default:
		return "", errors.Wrapf(ErrUnknownModelType, "model_type %q", s)
	}
}

// ValidateSelection checks whether the user may store id as preference.
// Tier checks run before the empty check, so a free user sending an empty
// chat model is told it is premium only.
func (c *Catalog) ValidateSelection(t ModelType, id string, premium bool) error {
	switch t {
	case TypeChat:
		if !premium && !c.IsFreeModel(id) {
			return ErrPremiumChatModel
		}
	case TypeImage:
		if !premium {
			return ErrPremiumImageModel
		}
	default:
		return ErrUnknownModelType
	}
	if strings.TrimSpace(id) == "" {
		return ErrEmptyModel
	}
	return nil
}

// Known reports whether id appears in any list.
func (c *Catalog) Known(id string) bool {
	return c.IsFreeModel(id) ||
		slices.Contains(c.opts.PremiumModels, id) ||
		slices.Contains(c.opts.ImageModels, id)
}
