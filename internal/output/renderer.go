package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/atikulmunna/sitekeeper/internal/model"
	"github.com/charmbracelet/lipgloss"
)

// Renderer writes AccessEntry values to an output stream.
type Renderer interface {
	Render(entry model.AccessEntry) error
}

// ---------------------------------------------------------------------------
// Text Renderer (colorized terminal output)
// ---------------------------------------------------------------------------

var (
	styleGet     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))             // green
	styleWrite   = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))            // yellow
	styleDelete  = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true) // red bold
	styleOther   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))            // gray
	styleSource  = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Faint(true) // cyan
	styleUnknown = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Faint(true)
)

// TextRenderer prints access entries with method-based colors.
type TextRenderer struct {
	w io.Writer
}

// NewTextRenderer returns a Renderer that writes colorized text to stdout.
func NewTextRenderer() *TextRenderer {
	return &TextRenderer{w: os.Stdout}
}

func (r *TextRenderer) Render(entry model.AccessEntry) error {
	src := styleSource.Render(entry.Source)

	// Lines that did not parse are shown verbatim.
	if entry.Method == "" {
		_, err := fmt.Fprintf(r.w, "%s %s\n", src, styleUnknown.Render(entry.Raw))
		return err
	}

	ts := entry.Timestamp.Format("15:04:05")
	_, err := fmt.Fprintf(r.w, "%s %s %s %s\n", ts, styleMethod(entry.Method), src, entry.Path)
	return err
}

func styleMethod(method string) string {
	padded := fmt.Sprintf("%-6s", method)
	switch method {
	case "GET", "HEAD":
		return styleGet.Render(padded)
	case "POST", "PUT", "PATCH":
		return styleWrite.Render(padded)
	case "DELETE":
		return styleDelete.Render(padded)
	default:
		return styleOther.Render(padded)
	}
}

// ---------------------------------------------------------------------------
// JSON Renderer (structured output for piping)
// ---------------------------------------------------------------------------

// JSONRenderer prints each access entry as a single JSON object per line.
type JSONRenderer struct {
	enc *json.Encoder
}

// NewJSONRenderer returns a Renderer that writes JSON lines to stdout.
func NewJSONRenderer() *JSONRenderer {
	return &JSONRenderer{enc: json.NewEncoder(os.Stdout)}
}

func (r *JSONRenderer) Render(entry model.AccessEntry) error {
	return r.enc.Encode(entry)
}
