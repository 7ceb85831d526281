// Package render turns note markdown into styled terminal output.
package render

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"notetree/internal/images"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/glamour/ansi"
	"github.com/charmbracelet/glamour/styles"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

const (
	StyleAuto  = "auto"
	StyleDark  = "dark"
	StyleLight = "light"

	minWidth = 10
)

var (
	colorText   = lipgloss.AdaptiveColor{Light: "#1F2328", Dark: "#E6EDF3"}
	colorAccent = lipgloss.AdaptiveColor{Light: "#8250DF", Dark: "#B392F0"}
	colorCodeBg = lipgloss.AdaptiveColor{Light: "#F6F8FA", Dark: "#2D333B"}
)

type Options struct {
	// Style is auto, dark or light.
	Style string
	Width int
	// Images resolves img:// references. Nil marks every reference missing.
	Images map[string]string
}

var (
	mu sync.Mutex
	// Renderers are cached by style and wrap width; building one is not cheap.
	renderers = map[string]*glamour.TermRenderer{}
)

// Markdown renders md for the terminal. Rendering failures fall back to the
// input text.
func Markdown(md string, opts Options) string {
	md = strings.TrimSpace(ImagePlaceholders(md, opts.Images))
	if md == "" {
		return ""
	}
	width := opts.Width
	if width < minWidth {
		width = minWidth
	}
	style := ResolveStyle(opts.Style)

	r, err := renderer(style, width)
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return strings.TrimRight(out, "\n")
}

// ImagePlaceholders swaps img:// references for text a terminal can show.
func ImagePlaceholders(md string, blobs map[string]string) string {
	return images.Replace(md, func(ref images.Ref) string {
		if _, ok := blobs[ref.ID]; !ok {
			return images.NotFound(ref.Alt)
		}
		label := strings.TrimSpace(ref.Alt)
		if label == "" {
			label = ref.ID
		}
		if ref.Width > 0 {
			return fmt.Sprintf("*[image: %s, %dpx]*", label, ref.Width)
		}
		return fmt.Sprintf("*[image: %s]*", label)
	})
}

func renderer(style string, width int) (*glamour.TermRenderer, error) {
	key := style + ":" + strconv.Itoa(width)
	mu.Lock()
	defer mu.Unlock()
	if r := renderers[key]; r != nil {
		return r, nil
	}
	// Not WithAutoStyle: it can block on terminal queries.
	r, err := glamour.NewTermRenderer(
		glamour.WithStyles(styleConfig(style)),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return nil, err
	}
	renderers[key] = r
	return r, nil
}

// ResolveStyle maps a configured style to dark or light. NOTETREE_MD_STYLE
// overrides the preference.
func ResolveStyle(pref string) string {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("NOTETREE_MD_STYLE"))) {
	case StyleLight:
		return StyleLight
	case StyleDark:
		return StyleDark
	}
	switch strings.ToLower(strings.TrimSpace(pref)) {
	case StyleLight:
		return StyleLight
	case StyleDark:
		return StyleDark
	}
	// COLORFGBG is often "fg;bg" (e.g. "15;0" => dark bg).
	if v := strings.TrimSpace(os.Getenv("COLORFGBG")); v != "" {
		parts := strings.Split(v, ";")
		if bg, err := strconv.Atoi(strings.TrimSpace(parts[len(parts)-1])); err == nil && bg >= 0 {
			// Common xterm palette: 0-6 dark colors, 7-15 light colors.
			if bg >= 7 {
				return StyleLight
			}
			return StyleDark
		}
	}
	if term.IsTerminal(int(os.Stdout.Fd())) && !termenv.HasDarkBackground() {
		return StyleLight
	}
	return StyleDark
}

func styleConfig(style string) ansi.StyleConfig {
	cfg := styles.DarkStyleConfig
	if style == StyleLight {
		cfg = styles.LightStyleConfig
	}

	heading := color(colorText, style)
	cfg.Heading.Color = heading
	cfg.H1.Color = heading
	cfg.H2.Color = heading
	cfg.H3.Color = heading
	cfg.Text.Color = color(colorText, style)
	cfg.Code.Color = color(colorText, style)
	if cfg.CodeBlock.BackgroundColor == nil {
		cfg.CodeBlock.BackgroundColor = color(colorCodeBg, style)
	}
	cfg.Emph.Color = color(colorAccent, style)
	cfg.Strong.Color = nil
	cfg.BlockQuote.Faint = boolPtr(false)
	return cfg
}

func color(c lipgloss.AdaptiveColor, style string) *string {
	if style == StyleLight {
		return strPtr(c.Light)
	}
	return strPtr(c.Dark)
}

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }
