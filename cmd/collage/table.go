package main

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// column is one table heading and the alignment of its cells.
type column struct {
	title string
	align text.Align
}

func left(title string) column  { return column{title: title, align: text.AlignLeft} }
func right(title string) column { return column{title: title, align: text.AlignRight} }

var (
	statsColumns = []column{left("State"), right("Count")}
	listColumns  = []column{
		left("ID"), left("State"), left("Layout"), left("Border"),
		right("Inputs"), right("Attempt"), left("Created"), left("Detail"),
	}
)

// renderTable draws rows with a rounded border. Rows shorter than columns get
// blank trailing cells; extra cells are dropped.
func renderTable(columns []column, rows [][]string) string {
	if len(columns) == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, len(columns))
	configs := make([]table.ColumnConfig, len(columns))
	for i, col := range columns {
		header[i] = col.title
		configs[i] = table.ColumnConfig{Number: i + 1, Align: col.align, AlignHeader: text.AlignLeft}
	}
	tw.AppendHeader(header)
	tw.SetColumnConfigs(configs)

	for _, cells := range rows {
		row := make(table.Row, len(columns))
		for i := range row {
			row[i] = ""
			if i < len(cells) {
				row[i] = cells[i]
			}
		}
		tw.AppendRow(row)
	}
	return tw.Render() + "\n"
}
