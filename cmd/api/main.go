package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"ragkit/internal/api"
	"ragkit/internal/config"
	"ragkit/internal/metrics"
	"ragkit/internal/providers"
	"ragkit/internal/vectorstore/backends"

	"github.com/joho/godotenv"
	"go.temporal.io/sdk/client"
)

func main() {
	_ = godotenv.Load(".env")
	cfg := config.Load()

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

	// Batch ingestion needs Temporal; everything else works without it.
	var temporal client.Client
	if tc, err := client.Dial(client.Options{HostPort: cfg.TemporalAddress}); err != nil {
		log.Printf("temporal unavailable at %s, batch ingestion disabled: %v", cfg.TemporalAddress, err)
	} else {
		temporal = tc
		defer tc.Close()
	}

	s := api.NewServer(cfg, store, manager, metrics.NewCollector(), temporal)
	log.Printf("ragkit api listening on %s store=%s llm_providers=%q embed_providers=%q",
		cfg.APIAddr, cfg.VectorStore, cfg.LLMProviders, cfg.EmbedProviders)
	if err := http.ListenAndServe(cfg.APIAddr, s.Routes()); err != nil {
		log.Fatal(err)
	}
}
