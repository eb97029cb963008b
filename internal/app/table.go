package app

import (
	"fmt"
	"io"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/hitoshi/cryptoinsight/internal/model"
)

var presenceHeader = []string{"Username", "Role", "Status", "Last Seen"}

// renderPresence はプレゼンス一覧を表形式でwに書き込む。
func renderPresence(w io.Writer, entries []model.Presence) error {
	table := tablewriter.NewTable(w,
		tablewriter.WithConfig(tablewriter.Config{
			Row: tw.CellConfig{
				Formatting: tw.CellFormatting{AutoWrap: tw.WrapNone},
				Alignment:  tw.CellAlignment{Global: tw.AlignLeft},
			},
			Header: tw.CellConfig{
				Formatting: tw.CellFormatting{AutoFormat: tw.On},
				Alignment:  tw.CellAlignment{Global: tw.AlignLeft},
			},
		}),
	)

	rows := make([][]string, 0, len(entries))
	online := 0
	for _, p := range entries {
		status := "offline"
		if p.IsOnline {
			status = "online"
			online++
		}
		rows = append(rows, []string{
			p.Username,
			string(p.Role),
			status,
			p.LastSeen.UTC().Format(time.RFC3339),
		})
	}

	table.Header(presenceHeader)
	if err := table.Bulk(rows); err != nil {
		return fmt.Errorf("failed to build presence table: %w", err)
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("failed to render presence table: %w", err)
	}

	_, err := fmt.Fprintf(w, "%d/%d online\n", online, len(entries))
	return err
}
