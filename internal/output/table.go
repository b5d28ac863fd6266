package output

import (
	"fmt"
	"io"

	"github.com/dunamismax/webopt/internal/domain"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
)

type Table struct {
	table  *tablewriter.Table
	header []string
	rows   [][]string
}

func NewTable(w io.Writer, headers []string) *Table {
	table := tablewriter.NewTable(w,
		tablewriter.WithConfig(tablewriter.Config{
			Row: tw.CellConfig{
				Formatting: tw.CellFormatting{
					AutoWrap: tw.WrapNone,
				},
				Alignment: tw.CellAlignment{
					Global: tw.AlignLeft,
				},
			},
			Header: tw.CellConfig{
				Formatting: tw.CellFormatting{
					AutoFormat: tw.On,
				},
				Alignment: tw.CellAlignment{
					Global: tw.AlignLeft,
				},
			},
		}),
		tablewriter.WithRendition(tw.Rendition{
			Borders: tw.BorderNone,
		}),
	)

	return &Table{table: table, header: headers}
}

func (t *Table) AddRow(row []string) {
	t.rows = append(t.rows, row)
}

func (t *Table) Render() {
	t.table.Header(t.header)
	_ = t.table.Bulk(t.rows)
	_ = t.table.Render()
}

// ResultsTable lists stored results, one row per file.
func ResultsTable(w io.Writer, results []domain.FileResult) {
	table := NewTable(w, []string{"File", "Status", "Original", "New", "Bytes", "Reason"})
	for _, r := range results {
		table.AddRow([]string{
			r.Name,
			r.Status,
			dims(r.OrigWidth, r.OrigHeight),
			dims(r.Width, r.Height),
			fmt.Sprintf("%d -> %d", r.SourceBytes, r.OutputBytes),
			r.Reason,
		})
	}
	table.Render()
}

func dims(w, h int) string {
	if w == 0 && h == 0 {
		return "-"
	}
	return fmt.Sprintf("%dx%d", w, h)
}
