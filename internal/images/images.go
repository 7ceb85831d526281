// Package images manages the image blob map and the img:// references notes
// use to embed those blobs.
package images

import (
	"encoding/base64"
	"errors"
	"fmt"
	"html"
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"notetree/internal/model"

	"github.com/google/uuid"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

const Scheme = "img://"

var ErrInvalidDataURL = errors.New("invalid image data url")

// refPattern matches ![alt](img://id) with an optional " =Wx" width hint.
var refPattern = regexp.MustCompile(`!\[([^\]]*)\]\(img://([^)\s]+)(?:\s*=(\d+)x)?\)`)

type Ref struct {
	Alt   string
	ID    string
	Width int
	// Start and End are byte offsets of the whole reference in the content.
	Start int
	End   int
}

// NewID returns a fresh image id.
func NewID() string {
	return "img-" + uuid.NewString()
}

// Add stores data in blobs as a data URL and returns its new id. An empty
// mimeType is sniffed from the bytes.
func Add(blobs map[string]string, data []byte, mimeType string) (string, error) {
	if blobs == nil {
		return "", errors.New("nil image map")
	}
	if len(data) == 0 {
		return "", errors.New("empty image")
	}
	mimeType = strings.TrimSpace(mimeType)
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	if !strings.HasPrefix(mimeType, "image/") {
		return "", fmt.Errorf("not an image: %s", mimeType)
	}
	id := NewID()
	blobs[id] = "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
	return id, nil
}

// Decode splits a base64 data URL into its mime type and bytes.
func Decode(dataURL string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(dataURL, "data:")
	if !ok {
		return "", nil, ErrInvalidDataURL
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, ErrInvalidDataURL
	}
	mimeType, isB64 := strings.CutSuffix(meta, ";base64")
	if !isB64 {
		return "", nil, fmt.Errorf("%w: not base64", ErrInvalidDataURL)
	}
	b, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrInvalidDataURL, err)
	}
	return mimeType, b, nil
}

// Markdown returns the reference to embed in a note. A width of 0 omits the
// size hint.
func Markdown(alt, id string, width int) string {
	if width > 0 {
		return fmt.Sprintf("![%s](%s%s =%dx)", alt, Scheme, id, width)
	}
	return fmt.Sprintf("![%s](%s%s)", alt, Scheme, id)
}

// Refs lists the image references in content, skipping any that sit inside
// code spans or code blocks.
func Refs(content string) []Ref {
	src := []byte(content)
	code := codeRanges(src)

	var out []Ref
	for _, m := range refPattern.FindAllSubmatchIndex(src, -1) {
		if inRanges(code, m[0]) {
			continue
		}
		r := Ref{
			Alt:   content[m[2]:m[3]],
			ID:    content[m[4]:m[5]],
			Start: m[0],
			End:   m[1],
		}
		if m[6] >= 0 {
			r.Width, _ = strconv.Atoi(content[m[6]:m[7]])
		}
		out = append(out, r)
	}
	return out
}

// Replace rewrites every reference outside code with fn's result.
func Replace(content string, fn func(Ref) string) string {
	refs := Refs(content)
	if len(refs) == 0 {
		return content
	}
	var b strings.Builder
	last := 0
	for _, r := range refs {
		b.WriteString(content[last:r.Start])
		b.WriteString(fn(r))
		last = r.End
	}
	b.WriteString(content[last:])
	return b.String()
}

// Resolve substitutes inline <img> tags for known ids and a visible
// placeholder for ids missing from blobs.
func Resolve(content string, blobs map[string]string) string {
	return Replace(content, func(r Ref) string {
		src, ok := blobs[r.ID]
		if !ok {
			return NotFound(r.Alt)
		}
		width := ""
		if r.Width > 0 {
			width = fmt.Sprintf(` width="%d"`, r.Width)
		}
		return fmt.Sprintf(`<img src="%s" alt="%s"%s style="max-width:100%%">`,
			html.EscapeString(src), html.EscapeString(r.Alt), width)
	})
}

func NotFound(alt string) string {
	return "![" + alt + " (image not found)]()"
}

// Unreferenced returns the sorted ids in blobs that no note content refers
// to. Notes whose content is not loaded count as referencing nothing.
func Unreferenced(items []model.Item, blobs map[string]string) []string {
	used := map[string]bool{}
	for _, it := range items {
		if !it.IsNote() || it.Content == nil {
			continue
		}
		for _, r := range Refs(*it.Content) {
			used[r.ID] = true
		}
	}
	var out []string
	for id := range blobs {
		if !used[id] {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

var parser = goldmark.New().Parser()

func codeRanges(src []byte) []text.Segment {
	doc := parser.Parse(text.NewReader(src))
	var out []text.Segment
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch n.Kind() {
		case ast.KindFencedCodeBlock, ast.KindCodeBlock:
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				out = append(out, lines.At(i))
			}
			return ast.WalkSkipChildren, nil
		case ast.KindCodeSpan:
			for c := n.FirstChild(); c != nil; c = c.NextSibling() {
				if t, ok := c.(*ast.Text); ok {
					out = append(out, t.Segment)
				}
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return out
}

func inRanges(ranges []text.Segment, pos int) bool {
	for _, r := range ranges {
		if pos >= r.Start && pos < r.Stop {
			return true
		}
	}
	return false
}
