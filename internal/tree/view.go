package tree

import (
	"sort"

	"notetree/internal/model"
)

// OrderForDisplay returns a sorted copy: folders first, then everything else,
// each group newest first. Equal timestamps keep their input order.
func OrderForDisplay(items []model.Item) []model.Item {
	out := make([]model.Item, len(items))
	copy(out, items)
	sort.SliceStable(out, func(i, j int) bool {
		fi, fj := out[i].IsFolder(), out[j].IsFolder()
		if fi != fj {
			return fi
		}
		return out[i].LastModified.After(out[j].LastModified)
	})
	return out
}

// Row is one visible line of a flattened tree.
type Row struct {
	Item  model.Item
	Depth int
}

// Flatten walks the forest depth first in display order. Children of a
// collapsed folder are skipped unless all is set.
func Flatten(items []model.Item, all bool) []Row {
	children := map[string][]model.Item{}
	ids := make(map[string]bool, len(items))
	for _, it := range items {
		ids[it.ID] = true
	}
	for _, it := range items {
		pid := it.Parent()
		if pid != "" && !ids[pid] {
			pid = ""
		}
		children[pid] = append(children[pid], it)
	}
	for k, v := range children {
		children[k] = OrderForDisplay(v)
	}

	var rows []Row
	seen := map[string]bool{}
	var walk func(parentID string, depth int)
	walk = func(parentID string, depth int) {
		for _, it := range children[parentID] {
			if seen[it.ID] {
				continue
			}
			seen[it.ID] = true
			rows = append(rows, Row{Item: it.Clone(), Depth: depth})
			if it.IsFolder() && (all || it.IsExpanded) {
				walk(it.ID, depth+1)
			}
		}
	}
	walk("", 0)
	return rows
}

// Reconcile merges a fresh scan with the previous forest. Expansion flags
// carry over by id and the previous active item is kept when it still
// exists, matched by id first and backing path second.
func Reconcile(prev []model.Item, prevActive string, scanned []model.Item) ([]model.Item, string) {
	out := model.CloneAll(scanned)
	expanded := map[string]bool{}
	activePath := ""
	for _, it := range prev {
		if it.IsFolder() {
			expanded[it.ID] = it.IsExpanded
		}
		if it.ID == prevActive {
			activePath = it.BackingPath
		}
	}
	active := ""
	for i := range out {
		if v, ok := expanded[out[i].ID]; ok && out[i].ParentID != nil {
			out[i].IsExpanded = v
		}
		if out[i].ID == prevActive {
			active = out[i].ID
		}
	}
	if active == "" && activePath != "" {
		for _, it := range out {
			if it.BackingPath == activePath {
				active = it.ID
				break
			}
		}
	}
	if active == "" {
		for _, it := range out {
			if it.IsNote() {
				active = it.ID
				break
			}
		}
	}
	return out, active
}
