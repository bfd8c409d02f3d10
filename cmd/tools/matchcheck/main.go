package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/david/scholarship-finder/internal/db"
	"github.com/david/scholarship-finder/internal/match"
	"github.com/david/scholarship-finder/internal/models"
)

func main() {
	cgpa := flag.Float64("cgpa", 3.0, "student CGPA")
	program := flag.String("program", "", "student program, e.g. \"Software Engineering\"")
	flag.Parse()

	if *program == "" {
		fmt.Println("Usage: matchcheck -cgpa 3.2 -program \"Software Engineering\"")
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx)
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()

	store := db.NewStore(pool)
	active, err := store.FindActive(ctx)
	if err != nil {
		log.Fatal(err)
	}

	engine := match.NewEngine()
	profile := models.StudentProfile{Grade: *cgpa, Program: *program}
	matches, nonMatches := engine.Evaluate(profile, active)

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Score", "Level", "Title", "Min GPA", "Reasons"})

	for _, m := range matches {
		t.AppendRow(table.Row{
			m.Score, m.MatchLevel, truncate(m.Scholarship.Title, 50),
			fmt.Sprintf("%.2f", m.Scholarship.MinimumGrade),
			truncate(strings.Join(m.Reasons, "; "), 70),
		})
	}
	t.AppendSeparator()
	for _, m := range nonMatches {
		t.AppendRow(table.Row{
			"-", m.MatchLevel, truncate(m.Scholarship.Title, 50),
			fmt.Sprintf("%.2f", m.Scholarship.MinimumGrade),
			truncate(strings.Join(m.Reasons, "; "), 70),
		})
	}
	t.Render()

	fmt.Printf("\n%d matches, %d non-matches out of %d active scholarships\n",
		len(matches), len(nonMatches), len(active))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
