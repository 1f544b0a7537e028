package main

import (
	"context"
	"log"
	"time"

	"video-batch-orchestrator/internal/config"
	"video-batch-orchestrator/internal/domain/model"
	"video-batch-orchestrator/internal/infra/db/postgres"
	"video-batch-orchestrator/internal/infra/redis"

	"github.com/jackc/pgx/v4/pgxpool"
)

// This script is for setting up a clean, predictable database state
// for manual end-to-end testing.
func main() {
	ctx := context.Background()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("config load: %v", err)
	}

	// --- Connect to Postgres ---
	pool, err := postgres.NewPgxPool(ctx, cfg.Database.URL, 5)
	if err != nil {
		log.Fatalf("postgres connection failed: %v", err)
	}
	defer pool.Close()

	// --- Connect to Redis ---
	redisClient, err := redis.NewClient(ctx, &cfg.Redis)
	if err != nil {
		log.Fatalf("redis connection failed: %v", err)
	}
	defer redisClient.Close()

	log.Println("--- Starting E2E Environment Setup ---")

	// 1. Clean the Redis cache to remove stale durable-source entries and
	//    review locks.
	log.Println("[1/3] Wiping Redis cache...")
	if err := redisClient.FlushDB(ctx); err != nil {
		log.Fatalf("failed to flush redis: %v", err)
	}

	// 2. Clean the database completely.
	log.Println("[2/3] Wiping all existing database data...")
	_, err = pool.Exec(ctx, `
		TRUNCATE
			jobs, batches, reference_images, model_profiles
		RESTART IDENTITY CASCADE;
	`)
	if err != nil {
		log.Fatalf("failed to truncate tables: %v", err)
	}

	// 3. Seed one profile with an image pool so a batch can be submitted
	//    without further setup.
	log.Println("[3/3] Seeding test model profile and image pool...")
	seedProfileAndPool(ctx, pool)

	log.Println("--- E2E Environment Setup Complete ---")
}

// seedProfileAndPool contains the minimal data needed to run a batch
// end to end.
func seedProfileAndPool(ctx context.Context, pool *pgxpool.Pool) {
	profileRepo := postgres.NewModelProfileRepo(pool)
	imageRepo := postgres.NewImageRepo(pool)

	now := time.Now()
	images := []string{
		"https://storage.example.com/faces/e2e-front.jpg",
		"https://storage.example.com/faces/e2e-side.jpg",
	}
	for i, url := range images {
		img := &model.ReferenceImage{
			ID:             "e2e-img-" + string(rune('1'+i)),
			ModelProfileID: "e2e-profile",
			URL:            url,
			CreatedAt:      now,
		}
		if err := imageRepo.Save(ctx, nil, img); err != nil {
			log.Printf("failed to save image %s: %v", img.ID, err)
		}
	}

	profile := &model.ModelProfile{
		ID:             "e2e-profile",
		Name:           "E2E Test Model",
		PrimaryImageID: "e2e-img-1",
		CreatedAt:      now,
	}
	if err := profileRepo.Save(ctx, nil, profile); err != nil {
		log.Printf("failed to save profile: %v", err)
	}
}
