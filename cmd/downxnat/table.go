package main

import (
	"io/fs"
	"path/filepath"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"downxnat/internal/batch"
	"downxnat/internal/ledger"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := 0; i < columns; i++ {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := 0; i < columns; i++ {
			if i < len(row) {
				r[i] = row[i]
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}

func renderSummary(s *batch.Summary) string {
	rows := make([][]string, 0, len(s.Completed)+len(s.Failed))
	for _, r := range s.Completed {
		rows = append(rows, []string{
			r.Label,
			strconv.Itoa(r.Experiments),
			strconv.Itoa(len(r.Downloaded)),
			strconv.Itoa(len(r.Skipped)),
			humanize.Bytes(dirSize(r.Dir)),
			"ok",
		})
	}
	for _, f := range s.Failed {
		rows = append(rows, []string{f.Subject, "", "", "", "", f.Err.Error()})
	}
	return renderTable(
		[]string{"Subject", "Experiments", "Downloaded", "Skipped", "Size", "Status"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight, alignLeft},
	)
}

func renderLedger(entries []ledger.Entry) string {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{
			e.Subject,
			strconv.Itoa(e.Downloaded),
			strconv.Itoa(e.Skipped),
			humanize.Time(e.FinishedAt),
			e.RunID,
			e.Dir,
		})
	}
	return renderTable(
		[]string{"Subject", "Downloaded", "Skipped", "Finished", "Run", "Directory"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignRight},
	)
}

// dirSize sums the sizes of the regular files under dir. Unreadable entries
// are ignored.
func dirSize(dir string) uint64 {
	var total uint64
	_ = filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			total += uint64(info.Size())
		}
		return nil
	})
	return total
}
