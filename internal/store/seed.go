package store

import (
	"time"

	"notetree/internal/model"
)

const (
	SeedFolderID = "folder-default"
	SeedNoteID   = "note-default"
)

const welcomeContent = `# Welcome to notetree

A small, local note organizer.

## Features
- **Folders** keep notes grouped
- **Open a folder** to mirror a directory of markdown files
- **Images** are embedded with ` + "`![alt](img://id)`" + `
- **Browse** the tree from the terminal
`

// SeedItems is the forest used when nothing has been persisted yet.
func SeedItems(now time.Time) []model.Item {
	return []model.Item{
		{ID: SeedFolderID, Kind: model.KindFolder, Title: "Notes", IsExpanded: true, LastModified: now},
		seedNote(now),
	}
}

func seedNote(now time.Time) model.Item {
	return model.Item{ID: SeedNoteID, Kind: model.KindNote, Title: "Welcome.md", Content: model.StrPtr(welcomeContent), LastModified: now}
}
