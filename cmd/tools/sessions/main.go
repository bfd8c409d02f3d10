package main

import (
	"context"
	"log"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/david/scholarship-finder/internal/db"
)

func main() {
	ctx := context.Background()
	pool, err := db.Connect(ctx)
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()

	rows, err := pool.Query(ctx, `
		SELECT started_at, duration_secs, total_processed, success_count, failed_count, status, errors
		FROM crawl_sessions ORDER BY started_at DESC LIMIT 10
	`)
	if err != nil {
		log.Fatal(err)
	}
	defer rows.Close()

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Started At", "Duration", "Processed", "Succeeded", "Failed", "Status", "First Error"})

	for rows.Next() {
		var startedAt time.Time
		var durationSecs, processed, succeeded, failed int
		var status string
		var errs []string

		if err := rows.Scan(&startedAt, &durationSecs, &processed, &succeeded, &failed, &status, &errs); err != nil {
			log.Printf("Scan error: %v", err)
			continue
		}

		firstErr := ""
		if len(errs) > 0 {
			firstErr = errs[0]
			if len(firstErr) > 60 {
				firstErr = firstErr[:60] + "..."
			}
		}

		t.AppendRow(table.Row{
			startedAt.Format("2006-01-02 15:04:05"),
			(time.Duration(durationSecs) * time.Second).String(),
			processed, succeeded, failed,
			strings.ToUpper(status),
			firstErr,
		})
	}
	t.Render()
}
