package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"notetree/internal/model"

	"github.com/sirupsen/logrus"
)

type legacyNote struct {
	ID           string          `json:"id"`
	Title        string          `json:"title"`
	Content      *string         `json:"content"`
	LastModified json.RawMessage `json:"lastModified"`
}

// migrateLegacy converts the flat legacy notes list into root-level notes and
// writes the result under KeyItems, so it runs at most once per store.
func (g *Gateway) migrateLegacy(ctx context.Context) ([]model.Item, bool, error) {
	raw, ok, err := g.kv.Get(ctx, KeyLegacyNotes)
	if err != nil {
		return nil, false, fmt.Errorf("read %s: %w", KeyLegacyNotes, err)
	}
	if !ok || len(strings.TrimSpace(string(raw))) == 0 || strings.TrimSpace(string(raw)) == "null" {
		return nil, false, nil
	}
	var notes []legacyNote
	if err := json.Unmarshal(raw, &notes); err != nil {
		return nil, false, fmt.Errorf("%w: %s: %v", ErrCorruptState, KeyLegacyNotes, err)
	}
	if len(notes) == 0 {
		return nil, false, nil
	}

	items := make([]model.Item, 0, len(notes))
	seen := map[string]bool{}
	for _, n := range notes {
		id := strings.TrimSpace(n.ID)
		if id == "" || seen[id] {
			id = model.NewID()
		}
		seen[id] = true
		content := ""
		if n.Content != nil {
			content = *n.Content
		}
		title := strings.TrimSpace(n.Title)
		if title == "" {
			title = "Untitled.md"
		}
		items = append(items, model.Item{
			ID:           id,
			Kind:         model.KindNote,
			Title:        title,
			Content:      model.StrPtr(content),
			LastModified: parseLegacyTime(n.LastModified, g.now()),
		})
	}

	out, err := json.Marshal(items)
	if err != nil {
		return nil, false, err
	}
	if err := g.kv.Put(ctx, KeyItems, out); err != nil {
		return nil, false, fmt.Errorf("write migrated %s: %w", KeyItems, err)
	}
	g.log.WithFields(logrus.Fields{"notes": len(items)}).Info("migrated legacy notes")
	return items, true, nil
}

// parseLegacyTime accepts epoch milliseconds or an RFC 3339 string.
func parseLegacyTime(raw json.RawMessage, fallback time.Time) time.Time {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return fallback
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC()
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return time.UnixMilli(int64(f)).UTC()
	}
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		if t, err := time.Parse(time.RFC3339Nano, str); err == nil {
			return t
		}
	}
	return fallback
}
