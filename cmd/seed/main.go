// seed inserts a demo user, one job, and a handful of endpoints into the
// local dev database. Run: go run ./cmd/seed
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/weskerllc/cronicorn/internal/infrastructure/postgres"
)

const seedUserID = "user_seed_dev_local"

type endpointSpec struct {
	name       string
	url        string
	method     string
	intervalMs int64
}

var endpoints = []endpointSpec{
	// Happy path — 2xx from httpbin
	{"httpbin-get", "https://httpbin.org/get", "GET", 60_000},
	{"httpbin-post", "https://httpbin.org/post", "POST", 120_000},
	{"httpbin-json", "https://httpbin.org/json", "GET", 60_000},

	// Will fail — server returns 500/503, exercises backoff and the planner
	{"httpbin-500", "https://httpbin.org/status/500", "GET", 60_000},
	{"httpbin-503", "https://httpbin.org/status/503", "GET", 60_000},

	// Will time out — httpbin delays longer than the 10s timeout below
	{"httpbin-slow", "https://httpbin.org/delay/30", "GET", 120_000},
}

func main() {
	ctx := context.Background()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	pool, err := postgres.NewPool(ctx, dbURL)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer pool.Close()

	_, err = pool.Exec(ctx,
		`INSERT INTO users (id, tier) VALUES ($1, 'pro') ON CONFLICT (id) DO NOTHING`,
		seedUserID,
	)
	if err != nil {
		log.Fatalf("upsert user: %v", err)
	}

	var jobID string
	err = pool.QueryRow(ctx, `
		INSERT INTO jobs (user_id, name, description, status)
		VALUES ($1, 'httpbin-demo', 'Demo endpoints against httpbin.org', 'active')
		ON CONFLICT (user_id, name) DO UPDATE SET updated_at = NOW()
		RETURNING id`,
		seedUserID,
	).Scan(&jobID)
	if err != nil {
		log.Fatalf("upsert job: %v", err)
	}

	firstRunAt := time.Now().Add(time.Minute)

	var inserted, skipped int
	for _, spec := range endpoints {
		tag, err := pool.Exec(ctx, `
			INSERT INTO endpoints (
				job_id, tenant_id, name, url, method, headers,
				baseline_interval_ms, timeout_ms, next_run_at
			) VALUES ($1, $2, $3, $4, $5, '{}', $6, 10000, $7)
			ON CONFLICT (job_id, name) DO NOTHING`,
			jobID, seedUserID, spec.name, spec.url, spec.method,
			spec.intervalMs, firstRunAt,
		)
		if err != nil {
			log.Fatalf("insert endpoint %s: %v", spec.name, err)
		}
		if tag.RowsAffected() == 0 {
			skipped++
		} else {
			inserted++
		}
	}

	fmt.Println("Seed complete")
	fmt.Println()
	fmt.Printf("  User ID:            %s (tier: pro)\n", seedUserID)
	fmt.Printf("  Job ID:             %s\n", jobID)
	fmt.Printf("  Endpoints created:  %d  (skipped %d already existing)\n", inserted, skipped)
	fmt.Printf("  First run at:       %s  (~1 minute from now)\n", firstRunAt.Format(time.RFC3339))
	fmt.Println()
	fmt.Println("How to test:")
	fmt.Println()
	fmt.Println("  Generate a JWT signed with JWT_SECRET, sub =", seedUserID)
	fmt.Println()
	fmt.Println("    export JWT=eyJ...")
	fmt.Printf("    curl -s http://localhost:8080/jobs/%s/endpoints -H \"Authorization: Bearer $JWT\"\n", jobID)
	fmt.Println()
	fmt.Println("  Start the workers, then watch runs accumulate:")
	fmt.Println()
	fmt.Println("    go run ./cmd/scheduler   # dispatches due endpoints")
	fmt.Println("    go run ./cmd/planner     # needs LLM_API_KEY")
	fmt.Println()
	fmt.Println("  What to expect:")
	fmt.Println("    httpbin-get/post/json  →  success runs on their baselines")
	fmt.Println("    httpbin-500/503        →  failed runs, exponential backoff, planner hints")
	fmt.Println("    httpbin-slow           →  timeout runs (30s delay > 10s timeout)")
}
