package tui

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

type externalEditorDoneMsg struct {
	err error
}

// editSession tracks a note handed to an external editor.
type editSession struct {
	noteID string
	path   string
	before string
}

func externalEditorName() string {
	if v := strings.TrimSpace(os.Getenv("VISUAL")); v != "" {
		return v
	}
	if v := strings.TrimSpace(os.Getenv("EDITOR")); v != "" {
		return v
	}
	return "vi"
}

// startEdit writes the note to a temp file and suspends the program while
// the editor runs.
func (m Model) startEdit(id string) (tea.Model, tea.Cmd) {
	it, ok := m.store.Get(id)
	if !ok || !it.IsNote() {
		m.status = "only notes can be edited"
		return m, nil
	}
	cmd, err := m.openExternalEditor(id)
	if err != nil {
		m.status = "Editor failed: " + err.Error()
		return m, nil
	}
	return m, cmd
}

func (m *Model) openExternalEditor(id string) (tea.Cmd, error) {
	body, err := m.store.LoadContent(m.ctx, id)
	if err != nil {
		return nil, err
	}
	args := splitShellWords(externalEditorName())
	if len(args) == 0 {
		args = []string{"vi"}
	}

	f, err := os.CreateTemp("", "notetree-*.md")
	if err != nil {
		return nil, err
	}
	path := f.Name()
	if _, err := f.WriteString(body); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return nil, err
	}
	_ = f.Close()

	m.editor = editSession{noteID: id, path: path, before: body}

	cmd := exec.Command(args[0], append(args[1:], path)...)
	return tea.ExecProcess(cmd, func(err error) tea.Msg {
		return externalEditorDoneMsg{err: err}
	}), nil
}

// applyExternalEditorResult stores the edited text when it changed.
func (m *Model) applyExternalEditorResult(msg externalEditorDoneMsg) {
	ed := m.editor
	m.editor = editSession{}
	if strings.TrimSpace(ed.path) == "" {
		return
	}
	defer func() { _ = os.Remove(ed.path) }()

	if msg.err != nil {
		m.status = "Editor failed: " + msg.err.Error()
		return
	}
	b, err := os.ReadFile(ed.path)
	if err != nil {
		m.status = "Editor read failed: " + err.Error()
		return
	}
	after := string(b)
	if after == ed.before {
		m.status = fmt.Sprintf("No changes from %s", externalEditorName())
		return
	}
	if _, err := m.store.SetContent(m.ctx, ed.noteID, after); err != nil {
		m.status = "Save failed: " + err.Error()
		return
	}
	m.status = fmt.Sprintf("Saved from %s", externalEditorName())
}
