package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"video-batch-orchestrator/internal/config"
	"video-batch-orchestrator/internal/domain/model"
	pg "video-batch-orchestrator/internal/infra/db/postgres"
)

func main() {
	// ---- Config ----
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Connect Postgres
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 4)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	profileRepo := pg.NewModelProfileRepo(pool)
	imageRepo := pg.NewImageRepo(pool)

	// If profiles already exist, do nothing
	existing, err := profileRepo.FindByIDs(ctx, nil, []string{"demo-ava", "demo-mia"})
	if err != nil {
		log.Fatalf("list profiles: %v", err)
	}
	if len(existing) > 0 {
		fmt.Printf("%d demo profiles already present. No changes.\n", len(existing))
		for _, p := range existing {
			fmt.Printf("  - %s (primary image %s)\n", p.Name, p.PrimaryImageID)
		}
		return
	}

	// Seed a couple of sample profiles with small image pools so a batch can
	// be submitted right away.
	seed := []struct {
		ID     string
		Name   string
		Images []string
	}{
		{"demo-ava", "Ava", []string{
			"https://storage.example.com/faces/ava-front.jpg",
			"https://storage.example.com/faces/ava-side.jpg",
		}},
		{"demo-mia", "Mia", []string{
			"https://storage.example.com/faces/mia-front.jpg",
			"https://storage.example.com/faces/mia-smile.jpg",
			"https://storage.example.com/faces/mia-side.jpg",
		}},
	}

	now := time.Now()
	for _, s := range seed {
		var primary string
		for i, url := range s.Images {
			img := &model.ReferenceImage{
				ID:             fmt.Sprintf("%s-img-%d", s.ID, i+1),
				ModelProfileID: s.ID,
				URL:            url,
				CreatedAt:      now,
			}
			if err := imageRepo.Save(ctx, nil, img); err != nil {
				log.Fatalf("save image %s: %v", img.ID, err)
			}
			if i == 0 {
				primary = img.ID
			}
		}
		p := &model.ModelProfile{
			ID:             s.ID,
			Name:           s.Name,
			PrimaryImageID: primary,
			CreatedAt:      now,
		}
		if err := profileRepo.Save(ctx, nil, p); err != nil {
			log.Fatalf("save profile %q: %v", s.Name, err)
		}
		fmt.Printf("seeded: %s (id=%s, pool=%d images)\n", p.Name, p.ID, len(s.Images))
	}

	fmt.Println("Seeding complete.")
}
