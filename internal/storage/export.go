package storage

import (
	"encoding/json"
	"fmt"
	"go/format"
	"io"
	"strconv"
	"strings"

	"github.com/MarcoPoloResearchLab/lumina/internal/notes"
)

const (
	// ExportFileName is the suggested download name for the JSON backup.
	ExportFileName = "notes.json"
	// ExportSourceFileName is the suggested download name for the dataset source file.
	ExportSourceFileName = "default_notes.go"

	exportIndent = "  "
)

const sourceTemplate = `// Code generated by lumina export. DO NOT EDIT.

package storage

// defaultNotesJSON seeds the store when no note list has been persisted.
const defaultNotesJSON = %s
`

// Export writes the list as a pretty-printed JSON array.
func Export(w io.Writer, list []notes.Note) error {
	payload, err := encodeNotes(list, exportIndent)
	if err != nil {
		return fmt.Errorf("storage: encode export: %w", err)
	}
	payload = append(payload, '\n')
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("storage: write export: %w", err)
	}
	return nil
}

// ExportSource writes a Go source file that embeds the list as the built-in
// dataset, in the same shape as default_notes.go.
func ExportSource(w io.Writer, list []notes.Note) error {
	payload, err := encodeNotes(list, exportIndent)
	if err != nil {
		return fmt.Errorf("storage: encode export: %w", err)
	}
	source := fmt.Sprintf(sourceTemplate, goStringLiteral(string(payload)))
	formatted, err := format.Source([]byte(source))
	if err != nil {
		return fmt.Errorf("storage: format export source: %w", err)
	}
	if _, err := w.Write(formatted); err != nil {
		return fmt.Errorf("storage: write export source: %w", err)
	}
	return nil
}

// DefaultNotes decodes the built-in dataset. Each call returns fresh copies.
func DefaultNotes() []notes.Note {
	var defaults []notes.Note
	if err := json.Unmarshal([]byte(defaultNotesJSON), &defaults); err != nil {
		panic(fmt.Sprintf("storage: built-in dataset is malformed: %v", err))
	}
	sanitized, _ := sanitizeNotes(defaults)
	return sanitized
}

// goStringLiteral prefers a raw string so the dataset stays readable; content
// containing backticks or carriage returns falls back to a quoted literal.
func goStringLiteral(value string) string {
	if strings.ContainsAny(value, "`\r") {
		return strconv.Quote(value)
	}
	return "`" + value + "`"
}
