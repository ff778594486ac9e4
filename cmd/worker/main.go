package main

import (
	"context"
	"log"
	"time"

	"ragkit/internal/activities"
	"ragkit/internal/config"
	"ragkit/internal/providers"
	"ragkit/internal/vectorstore/backends"
	"ragkit/internal/workflows"

	"github.com/joho/godotenv"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
)

func main() {
	_ = godotenv.Load(".env")
	cfg := config.Load()

	c, err := client.Dial(client.Options{HostPort: cfg.TemporalAddress})
	if err != nil {
		log.Fatal(err)
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	store, err := backends.Open(ctx, &cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	manager, err := providers.NewManager(cfg.LLMProviders, cfg.EmbedProviders, cfg.EmbedDim)
	if err != nil {
		log.Fatal(err)
	}

	w := worker.New(c, cfg.TemporalTaskQueue, worker.Options{})
	workflows.Register(w)
	activities.Register(w, activities.New(&cfg, manager, store))

	log.Printf("ragkit worker listening on %s queue=%s store=%s embed_providers=%q",
		cfg.TemporalAddress, cfg.TemporalTaskQueue, cfg.VectorStore, cfg.EmbedProviders)
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatal(err)
	}
}
