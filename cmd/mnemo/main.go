// Command mnemo runs the memory store daemon: SQLite structured index,
// chromem vector index and a local embedder, served to the host over the
// WebSocket protocol.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/mnemohq/mnemo/memory"
	chromemstore "github.com/mnemohq/mnemo/memory/store/chromem"
	"github.com/mnemohq/mnemo/memory/store/sqlite"
	"github.com/mnemohq/mnemo/server"
)

func main() {
	_ = godotenv.Load()

	cfg := configFromEnv()
	addr := envOr("MNEMO_ADDR", "127.0.0.1:7643")

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Fatalf("create data directory: %v", err)
	}

	structured, err := sqlite.Open(filepath.Join(cfg.DataDir, "memories.db"))
	if err != nil {
		log.Fatalf("open structured index: %v", err)
	}

	// A vector store that fails to open leaves recall structured-only
	// for this process; the store itself keeps working.
	var vector memory.VectorIndex
	if cfg.EnableEmbeddings {
		v, err := chromemstore.Open(filepath.Join(cfg.DataDir, "vectors"))
		if err != nil {
			log.Printf("open vector index: %v (continuing without semantic recall)", err)
		} else {
			vector = v
		}
	}

	var gateway *memory.Gateway
	if cfg.EnableEmbeddings {
		gateway = memory.NewGateway(newEmbedderFactory(cfg))
	}

	manager, err := memory.NewManager(structured, vector, gateway, cfg)
	if err != nil {
		log.Fatalf("init manager: %v", err)
	}

	srv := server.New(manager)
	go func() {
		if err := srv.ListenAndServe(addr); err != nil {
			log.Fatalf("serve: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Printf("[SERVER] shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("shutdown server: %v", err)
	}
	if err := manager.Close(); err != nil {
		log.Printf("close manager: %v", err)
	}
}

func configFromEnv() *memory.Config {
	cfg := memory.DefaultConfig()
	cfg.DataDir = envOr("MNEMO_DATA_DIR", defaultDataDir())
	cfg.EmbeddingModel = os.Getenv("MNEMO_EMBEDDING_MODEL")

	if v := os.Getenv("MNEMO_MAX_MEMORIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxMemories = n
		}
	}
	if v := os.Getenv("MNEMO_DEFAULT_IMPORTANCE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.DefaultImportance = f
		}
	}
	if v := os.Getenv("MNEMO_NOISE_PATTERNS"); v != "" {
		for _, pat := range strings.Split(v, ",") {
			if pat = strings.TrimSpace(pat); pat != "" {
				cfg.NoisePatterns = append(cfg.NoisePatterns, pat)
			}
		}
	}
	if v := os.Getenv("MNEMO_DISABLE_EMBEDDINGS"); v == "1" || strings.EqualFold(v, "true") {
		cfg.EnableEmbeddings = false
	}
	return cfg
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".mnemo"
	}
	return filepath.Join(home, ".mnemo")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
