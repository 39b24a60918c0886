// Package settings stores the shop's editable configuration documents.
package settings

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/example/sportshop/internal/apperr"
)

type Key string

const (
	KeyShopInfo Key = "shop_info"
	KeyContact  Key = "contact"
	KeyBranding Key = "branding"
	KeyShipping Key = "shipping"
	KeyPayment  Key = "payment"
	KeySocial   Key = "social"
)

var Keys = []Key{KeyShopInfo, KeyContact, KeyBranding, KeyShipping, KeyPayment, KeySocial}

var (
	ErrUnknownKey   = apperr.Validation("unknown settings key")
	ErrVersionClash = apperr.DomainConstraint("settings were changed by someone else, reload and retry")
	ErrInvalidValue = apperr.Validation("settings value must not be empty")
)

type Document struct {
	Key       Key            `json:"key" bson:"_id"`
	Value     map[string]any `json:"value" bson:"value"`
	Version   int            `json:"version" bson:"version"`
	UpdatedBy string         `json:"updated_by,omitempty" bson:"updated_by,omitempty"`
	UpdatedAt time.Time      `json:"updated_at,omitempty" bson:"updated_at,omitempty"`
}

func ParseKey(s string) (Key, error) {
	k := Key(strings.ToLower(strings.TrimSpace(s)))
	if !slices.Contains(Keys, k) {
		return "", fmt.Errorf("%w: %q", ErrUnknownKey, s)
	}
	return k, nil
}

type Repository interface {
	// Get returns nil and no error when the key was never written.
	Get(ctx context.Context, key Key) (*Document, error)
	List(ctx context.Context) ([]*Document, error)
	// Put writes doc if the stored version equals expected. Version 0 means
	// the document must not exist yet.
	Put(ctx context.Context, doc *Document, expected int) error
}

type Service struct {
	repo Repository
	log  *slog.Logger
	now  func() time.Time
}

func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, log: logger.With("component", "settings"), now: time.Now}
}

// Get returns the document for key, or an empty version 0 document when it
// has never been saved.
func (s *Service) Get(ctx context.Context, key string) (*Document, error) {
	k, err := ParseKey(key)
	if err != nil {
		return nil, err
	}
	doc, err := s.repo.Get(ctx, k)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		doc = &Document{Key: k, Value: map[string]any{}}
	}
	return doc, nil
}

// List returns one document per known key.
func (s *Service) List(ctx context.Context) ([]*Document, error) {
	stored, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	byKey := make(map[Key]*Document, len(stored))
	for _, d := range stored {
		byKey[d.Key] = d
	}
	out := make([]*Document, 0, len(Keys))
	for _, k := range Keys {
		if d, ok := byKey[k]; ok {
			out = append(out, d)
			continue
		}
		out = append(out, &Document{Key: k, Value: map[string]any{}})
	}
	return out, nil
}

// Update replaces the value of key when expectedVersion matches the stored
// version.
func (s *Service) Update(ctx context.Context, key string, value map[string]any, editor string, expectedVersion int) (*Document, error) {
	k, err := ParseKey(key)
	if err != nil {
		return nil, err
	}
	if len(value) == 0 {
		return nil, ErrInvalidValue
	}
	doc := &Document{
		Key:       k,
		Value:     maps.Clone(value),
		Version:   expectedVersion + 1,
		UpdatedBy: editor,
		UpdatedAt: s.now(),
	}
	if err := s.repo.Put(ctx, doc, expectedVersion); err != nil {
		return nil, err
	}
	s.log.Info("settings updated", "key", k, "version", doc.Version, "editor", editor)
	return doc, nil
}
