package assistant

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Bounds on serialized notebook context, to cap request size and cost.
// maxCellChars counts runes, not bytes, so CJK cells keep as much context
// as ASCII ones.
const (
	maxContextCells = 20
	maxCellChars    = 500
)

// NotebookCell is one cell of the student's notebook as sent by the frontend.
type NotebookCell struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// NotebookContext is the structured notebook snapshot attached to chat
// requests.
type NotebookContext struct {
	Cells            []NotebookCell `json:"cells"`
	CurrentCellIndex int            `json:"current_cell_index"`
}

// ParseNotebookContext decodes the raw JSON context from a request body.
// Empty or malformed input yields an empty context rather than an error:
// context is advisory, never required.
func ParseNotebookContext(raw json.RawMessage) NotebookContext {
	var nbctx NotebookContext
	if len(raw) == 0 {
		return nbctx
	}
	_ = json.Unmarshal(raw, &nbctx)
	return nbctx
}

// Render serializes the notebook excerpt for inclusion in a prompt, bounded
// to maxContextCells cells and maxCellChars characters per cell. The current
// cell is marked so the assistant can anchor its answer. Returns "" when
// there is nothing to include.
func (c NotebookContext) Render() string {
	if len(c.Cells) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("目前 Notebook 的內容：\n\n")
	for i, cell := range c.Cells {
		if i >= maxContextCells {
			break
		}
		cellType := cell.Type
		if cellType == "" {
			cellType = "code"
		}
		content := truncateRunes(cell.Content, maxCellChars)
		marker := ""
		if i == c.CurrentCellIndex {
			marker = "👉 "
		}
		fmt.Fprintf(&b, "%s[%s Cell %d]\n%s\n\n", marker, strings.ToUpper(cellType), i+1, content)
	}
	return strings.TrimRight(b.String(), "\n")
}

// truncateRunes cuts s to at most n runes.
func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
