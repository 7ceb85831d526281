// Package store persists the item forest, the active selection and the image
// blob map into a key-value byte store.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"notetree/internal/model"

	"github.com/sirupsen/logrus"
)

const (
	KeyItems      = "app-items"
	KeyActiveItem = "app-current-item"
	KeyImages     = "app-images"
	// KeyLegacyNotes held a flat list of notes before folders existed.
	KeyLegacyNotes = "app-notes"
)

var ErrCorruptState = errors.New("corrupt persisted state")

// State is everything the gateway round-trips.
type State struct {
	Items    []model.Item
	ActiveID string
	// Images maps image ids to data URLs.
	Images map[string]string
}

type Gateway struct {
	kv  KV
	log logrus.FieldLogger
	now func() time.Time

	mu     sync.Mutex
	images map[string]string
}

type Option func(*Gateway)

func WithLogger(l logrus.FieldLogger) Option {
	return func(g *Gateway) {
		if l != nil {
			g.log = l
		}
	}
}

func WithTimeFunc(fn func() time.Time) Option {
	return func(g *Gateway) {
		if fn != nil {
			g.now = fn
		}
	}
}

func NewGateway(kv KV, opts ...Option) *Gateway {
	discard := logrus.New()
	discard.SetOutput(io.Discard)
	g := &Gateway{kv: kv, log: discard, now: time.Now, images: map[string]string{}}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Save writes the three keys independently. Every write is attempted; the
// returned error joins whichever of them failed.
func (g *Gateway) Save(ctx context.Context, st State) error {
	var errs []error

	items := st.Items
	if items == nil {
		items = []model.Item{}
	}
	if raw, err := json.Marshal(items); err != nil {
		errs = append(errs, fmt.Errorf("encode %s: %w", KeyItems, err))
	} else if err := g.kv.Put(ctx, KeyItems, raw); err != nil {
		errs = append(errs, fmt.Errorf("write %s: %w", KeyItems, err))
	}

	if id := strings.TrimSpace(st.ActiveID); id != "" {
		if err := g.kv.Put(ctx, KeyActiveItem, []byte(id)); err != nil {
			errs = append(errs, fmt.Errorf("write %s: %w", KeyActiveItem, err))
		}
	} else if err := g.kv.Delete(ctx, KeyActiveItem); err != nil {
		errs = append(errs, fmt.Errorf("clear %s: %w", KeyActiveItem, err))
	}

	images := st.Images
	if images == nil {
		images = map[string]string{}
	}
	if raw, err := json.Marshal(images); err != nil {
		errs = append(errs, fmt.Errorf("encode %s: %w", KeyImages, err))
	} else if err := g.kv.Put(ctx, KeyImages, raw); err != nil {
		errs = append(errs, fmt.Errorf("write %s: %w", KeyImages, err))
	}

	g.mu.Lock()
	g.images = cloneImages(images)
	g.mu.Unlock()

	return errors.Join(errs...)
}

// Load reads the persisted state. A store without an item list falls back
// to the legacy notes key (migrated and written back once) or to the seed
// forest.
func (g *Gateway) Load(ctx context.Context) (State, error) {
	var st State

	raw, ok, err := g.kv.Get(ctx, KeyItems)
	if err != nil {
		return State{}, fmt.Errorf("read %s: %w", KeyItems, err)
	}
	switch {
	case ok:
		if err := json.Unmarshal(raw, &st.Items); err != nil {
			return State{}, fmt.Errorf("%w: %s: %v", ErrCorruptState, KeyItems, err)
		}
	default:
		migrated, found, err := g.migrateLegacy(ctx)
		if err != nil {
			return State{}, err
		}
		if found {
			st.Items = migrated
		} else {
			st.Items = SeedItems(g.now())
		}
	}
	st.Items = g.ensureNote(st.Items)

	active, ok, err := g.kv.Get(ctx, KeyActiveItem)
	if err != nil {
		return State{}, fmt.Errorf("read %s: %w", KeyActiveItem, err)
	}
	st.ActiveID = resolveActive(st.Items, strings.TrimSpace(string(active)), ok)

	st.Images = map[string]string{}
	raw, ok, err = g.kv.Get(ctx, KeyImages)
	if err != nil {
		return State{}, fmt.Errorf("read %s: %w", KeyImages, err)
	}
	if ok && len(raw) > 0 {
		if err := json.Unmarshal(raw, &st.Images); err != nil {
			return State{}, fmt.Errorf("%w: %s: %v", ErrCorruptState, KeyImages, err)
		}
		if st.Images == nil {
			st.Images = map[string]string{}
		}
	}

	g.mu.Lock()
	g.images = cloneImages(st.Images)
	g.mu.Unlock()
	return st, nil
}

// Persist saves items and the active id together with the image map from
// the last Load, Save or SetImages call.
func (g *Gateway) Persist(ctx context.Context, items []model.Item, activeID string) error {
	return g.Save(ctx, State{Items: items, ActiveID: activeID, Images: g.Images()})
}

func (g *Gateway) Images() map[string]string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return cloneImages(g.images)
}

func (g *Gateway) SetImages(images map[string]string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.images = cloneImages(images)
}

// ensureNote adds the welcome note to a forest that holds no note, so a
// loaded state always satisfies the tree's one-note rule.
func (g *Gateway) ensureNote(items []model.Item) []model.Item {
	for _, it := range items {
		if it.IsNote() {
			return items
		}
	}
	note := seedNote(g.now())
	for _, it := range items {
		if it.ID == note.ID {
			note.ID = model.NewID()
			break
		}
	}
	g.log.WithFields(logrus.Fields{"items": len(items)}).Warn("stored tree has no note; adding the welcome note")
	return append(items, note)
}

func resolveActive(items []model.Item, stored string, ok bool) string {
	if ok && stored != "" {
		for _, it := range items {
			if it.ID == stored {
				return stored
			}
		}
	}
	for _, it := range items {
		if it.IsNote() {
			return it.ID
		}
	}
	return ""
}

func cloneImages(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
