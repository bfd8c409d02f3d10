package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/david/scholarship-finder/internal/api"
	"github.com/david/scholarship-finder/internal/db"
	"github.com/david/scholarship-finder/internal/ingest"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8081"
	}

	cfg, err := ingest.LoadConfig(os.Getenv("CRAWLER_CONFIG"))
	if err != nil {
		log.Fatalf("Failed to load crawler config: %v", err)
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	if err := db.ApplyMigrations(ctx, pool); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	srv := api.NewServer(pool, cfg)

	// Optional scheduled crawl, e.g. CRAWL_SCHEDULE="0 3 * * *".
	if schedule := os.Getenv("CRAWL_SCHEDULE"); schedule != "" {
		c := cron.New()
		_, err := c.AddFunc(schedule, func() { runScheduledCrawl(srv) })
		if err != nil {
			log.Fatalf("Invalid CRAWL_SCHEDULE %q: %v", schedule, err)
		}
		c.Start()
		defer c.Stop()
		log.Printf("Scheduled crawl registered: %s", schedule)
	}

	log.Printf("Server starting on port %s...", port)
	if err := srv.Start(port); err != nil {
		log.Fatal(err)
	}
}

func runScheduledCrawl(srv *api.Server) {
	if !srv.Tracker.Begin() {
		log.Print("Scheduled crawl skipped: a crawl is already running")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Hour)
	defer cancel()

	pipeline := ingest.NewPipeline(
		srv.Config.Crawler,
		ingest.CollyFetcherWithConfig(srv.Config.Fetch),
		srv.Store,
		srv.Classifier,
	)
	if srv.Config.AI.MinTextLength > 0 {
		pipeline.MinTextForAI = srv.Config.AI.MinTextLength
	}

	if err := pipeline.Run(ctx, srv.Tracker, false); err != nil {
		log.Printf("Scheduled crawl failed: %v", err)
	}
}
