// Package tui is the interactive tree browser.
package tui

import (
	"context"
	"fmt"
	"strings"

	"notetree/internal/model"
	"notetree/internal/render"
	"notetree/internal/tree"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

type Options struct {
	RenderStyle string
	RenderWidth int
	// Images resolves img:// references in previews.
	Images map[string]string
}

type view int

const (
	viewTree view = iota
	viewNote
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true)
	cursorStyle   = lipgloss.NewStyle().Reverse(true)
	folderStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.AdaptiveColor{Light: "#0550AE", Dark: "#79C0FF"})
	imageStyle    = lipgloss.NewStyle().Faint(true)
	helpStyle     = lipgloss.NewStyle().Faint(true)
	statusStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#9A6700", Dark: "#D29922"})
	activeMarker  = "●"
	defaultWidth  = 80
	defaultHeight = 24
)

// Model browses a tree.Store. Expanding a folder and opening a note go
// through the store, so both are persisted.
type Model struct {
	ctx   context.Context
	store *tree.Store
	opts  Options
	keys  keyMap

	rows   []tree.Row
	cursor int
	offset int

	width  int
	height int

	view      view
	preview   viewport.Model
	previewID string
	status    string

	editor editSession
}

func New(ctx context.Context, store *tree.Store, opts Options) Model {
	if ctx == nil {
		ctx = context.Background()
	}
	m := Model{
		ctx:     ctx,
		store:   store,
		opts:    opts,
		keys:    defaultKeyMap(),
		width:   defaultWidth,
		height:  defaultHeight,
		preview: viewport.New(defaultWidth, defaultHeight-2),
	}
	m.refresh(store.ActiveID())
	return m
}

func (m Model) Init() tea.Cmd { return nil }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.preview.Width = msg.Width
		m.preview.Height = max(1, msg.Height-2)
		if m.view == viewNote {
			m.renderPreview()
		}
		m.clampOffset()
		return m, nil

	case externalEditorDoneMsg:
		m.applyExternalEditorResult(msg)
		m.refresh(m.store.ActiveID())
		if m.view == viewNote {
			if err := m.renderPreview(); err != nil {
				m.status = err.Error()
			}
		}
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, m.keys.Quit) {
			return m, tea.Quit
		}
		if m.view == viewNote {
			if key.Matches(msg, m.keys.Back) {
				m.view = viewTree
				m.status = ""
				return m, nil
			}
			if key.Matches(msg, m.keys.Edit) {
				return m.startEdit(m.previewID)
			}
			var cmd tea.Cmd
			m.preview, cmd = m.preview.Update(msg)
			return m, cmd
		}
		return m.updateTree(msg)
	}
	return m, nil
}

func (m Model) updateTree(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.status = ""
	switch {
	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.rows)-1 {
			m.cursor++
		}
	case key.Matches(msg, m.keys.Top):
		m.cursor = 0
	case key.Matches(msg, m.keys.Bottom):
		m.cursor = max(0, len(m.rows)-1)
	case key.Matches(msg, m.keys.Open):
		m.open()
	case key.Matches(msg, m.keys.Edit):
		if it, ok := m.selected(); ok {
			return m.startEdit(it.ID)
		}
	}
	m.clampOffset()
	return m, nil
}

func (m *Model) open() {
	it, ok := m.selected()
	if !ok {
		return
	}
	switch it.Kind {
	case model.KindFolder:
		if _, err := m.store.ToggleExpanded(m.ctx, it.ID); err != nil {
			m.status = err.Error()
		}
		m.refresh(it.ID)
	case model.KindNote:
		if err := m.store.SetActive(m.ctx, it.ID); err != nil {
			m.status = err.Error()
			return
		}
		m.previewID = it.ID
		if err := m.renderPreview(); err != nil {
			m.status = err.Error()
			return
		}
		m.view = viewNote
	default:
		m.status = "images are not previewed in the terminal"
	}
}

func (m *Model) renderPreview() error {
	body, err := m.store.LoadContent(m.ctx, m.previewID)
	if err != nil {
		return err
	}
	width := m.opts.RenderWidth
	if width <= 0 || width > m.width {
		width = m.width
	}
	out := render.Markdown(body, render.Options{Style: m.opts.RenderStyle, Width: width, Images: m.opts.Images})
	if out == "" {
		out = helpStyle.Render("(empty note)")
	}
	m.preview.SetContent(out)
	m.preview.GotoTop()
	return nil
}

// refresh rebuilds the visible rows and puts the cursor on focusID when it
// is visible.
func (m *Model) refresh(focusID string) {
	m.rows = tree.Flatten(m.store.Items(), false)
	for i, r := range m.rows {
		if r.Item.ID == focusID {
			m.cursor = i
			m.clampOffset()
			return
		}
	}
	if m.cursor >= len(m.rows) {
		m.cursor = max(0, len(m.rows)-1)
	}
	m.clampOffset()
}

func (m Model) selected() (model.Item, bool) {
	if m.cursor < 0 || m.cursor >= len(m.rows) {
		return model.Item{}, false
	}
	return m.rows[m.cursor].Item, true
}

func (m Model) listHeight() int {
	return max(1, m.height-2)
}

func (m *Model) clampOffset() {
	h := m.listHeight()
	if m.cursor < m.offset {
		m.offset = m.cursor
	}
	if m.cursor >= m.offset+h {
		m.offset = m.cursor - h + 1
	}
	if m.offset < 0 {
		m.offset = 0
	}
}

func (m Model) View() string {
	if m.view == viewNote {
		title := ""
		if it, ok := m.store.Get(m.previewID); ok {
			title = it.Title
		}
		header := titleStyle.Render(ansi.Truncate(title, m.width, "…"))
		footer := helpStyle.Render(helpLine(m.keys.Back, m.keys.Edit, m.keys.Quit))
		if m.status != "" {
			footer = statusStyle.Render(ansi.Truncate(m.status, m.width, "…"))
		}
		return header + "\n" + m.preview.View() + "\n" + footer
	}

	var b strings.Builder
	header := "notetree"
	if root, ok := m.store.Root(); ok {
		header += " · " + root.BackingPath
	}
	b.WriteString(titleStyle.Render(ansi.Truncate(header, m.width, "…")))
	b.WriteByte('\n')

	activeID := m.store.ActiveID()
	end := min(len(m.rows), m.offset+m.listHeight())
	for i := m.offset; i < end; i++ {
		b.WriteString(m.renderRow(m.rows[i], i == m.cursor, m.rows[i].Item.ID == activeID))
		b.WriteByte('\n')
	}
	if len(m.rows) == 0 {
		b.WriteString(helpStyle.Render("(empty)") + "\n")
	}

	footer := helpLine(m.keys.Up, m.keys.Down, m.keys.Open, m.keys.Edit, m.keys.Quit)
	if m.status != "" {
		b.WriteString(statusStyle.Render(ansi.Truncate(m.status, m.width, "…")))
	} else {
		b.WriteString(helpStyle.Render(ansi.Truncate(footer, m.width, "…")))
	}
	return b.String()
}

func (m Model) renderRow(r tree.Row, isCursor, isActive bool) string {
	marker := " "
	if isActive {
		marker = activeMarker
	}
	glyph := "•"
	switch r.Item.Kind {
	case model.KindFolder:
		glyph = "▸"
		if r.Item.IsExpanded {
			glyph = "▾"
		}
	case model.KindImage:
		glyph = "◇"
	}
	line := fmt.Sprintf("%s %s%s %s", marker, strings.Repeat("  ", r.Depth), glyph, r.Item.Title)
	line = ansi.Truncate(line, m.width, "…")
	switch {
	case isCursor:
		return cursorStyle.Render(line)
	case r.Item.IsFolder():
		return folderStyle.Render(line)
	case r.Item.Kind == model.KindImage:
		return imageStyle.Render(line)
	}
	return line
}

// Run starts the browser full screen and blocks until it quits.
func Run(ctx context.Context, store *tree.Store, opts Options) error {
	_, err := tea.NewProgram(New(ctx, store, opts), tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	return err
}
