package model

import (
	"fmt"
	"strings"
	"time"
)

type Kind string

const (
	KindFolder Kind = "folder"
	KindNote   Kind = "note"
	KindImage  Kind = "image"
)

func (k Kind) Valid() bool {
	switch k {
	case KindFolder, KindNote, KindImage:
		return true
	default:
		return false
	}
}

func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", fmt.Errorf("invalid item kind: %q (expected folder|note|image)", s)
	}
	return k, nil
}

// Item is a node of the note forest.
//
// ParentID nil means the item sits at the forest root. Content nil means a
// filesystem-backed note whose body has not been read yet.
type Item struct {
	ID       string  `json:"id"`
	Kind     Kind    `json:"kind"`
	ParentID *string `json:"parentId,omitempty"`

	Title        string    `json:"title"`
	LastModified time.Time `json:"lastModified"`
	Content      *string   `json:"content,omitempty"`

	// BackingPath is the absolute filesystem path when the item is mirrored to disk.
	BackingPath string `json:"fsPath,omitempty"`
	// StalePath marks a BackingPath left behind by an ancestor move or rename.
	// It is cleared by the next directory re-scan.
	StalePath bool `json:"stalePath,omitempty"`

	// UI-only.
	IsExpanded bool `json:"isExpanded,omitempty"`
}

func (it Item) IsFolder() bool { return it.Kind == KindFolder }
func (it Item) IsNote() bool   { return it.Kind == KindNote }
func (it Item) Mirrored() bool { return it.BackingPath != "" }

// Parent returns the parent id, or "" for forest-root items.
func (it Item) Parent() string {
	if it.ParentID == nil {
		return ""
	}
	return *it.ParentID
}

// Clone returns a copy that shares no pointers with it.
func (it Item) Clone() Item {
	out := it
	if it.ParentID != nil {
		out.ParentID = StrPtr(*it.ParentID)
	}
	if it.Content != nil {
		out.Content = StrPtr(*it.Content)
	}
	return out
}

func CloneAll(items []Item) []Item {
	out := make([]Item, len(items))
	for i := range items {
		out[i] = items[i].Clone()
	}
	return out
}

func StrPtr(s string) *string { return &s }

// ParentPtr converts "" to the forest-root sentinel.
func ParentPtr(id string) *string {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil
	}
	return &id
}
