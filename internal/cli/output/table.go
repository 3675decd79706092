// Package output provides output formatting for keymesh-cli.
package output

import (
	"encoding/json"
	"io"
	"text/tabwriter"
)

// TableFormatter formats data as an ASCII table. Commands build the
// Table explicitly; anything else falls back to JSON.
type TableFormatter struct {
	NoHeaders bool
}

// Format renders a *Table, or JSON for other types.
func (f *TableFormatter) Format(w io.Writer, data any) error {
	if data == nil {
		return nil
	}

	if t, ok := data.(*Table); ok {
		return t.RenderWithOptions(w, f.NoHeaders)
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

// Table represents tabular data.
type Table struct {
	Headers []string
	Rows    [][]string
}

// NewTable creates a table with the given headers.
func NewTable(headers ...string) *Table {
	return &Table{Headers: headers}
}

// AddRow adds a row to the table.
func (t *Table) AddRow(cells ...string) {
	t.Rows = append(t.Rows, cells)
}

// Render renders the table to the writer.
func (t *Table) Render(w io.Writer) error {
	return t.RenderWithOptions(w, false)
}

// RenderWithOptions renders the table, optionally without headers.
func (t *Table) RenderWithOptions(w io.Writer, noHeaders bool) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	if !noHeaders && len(t.Headers) > 0 {
		writeTabbedLine(tw, t.Headers)
	}
	for _, row := range t.Rows {
		writeTabbedLine(tw, row)
	}

	return nil
}

func writeTabbedLine(w io.Writer, cells []string) {
	for i, cell := range cells {
		if i > 0 {
			_, _ = w.Write([]byte("\t"))
		}
		_, _ = w.Write([]byte(cell))
	}
	_, _ = w.Write([]byte("\n"))
}
