package server

import (
	"context"
	"fmt"
	"os"

	"github.com/quickfaqs/quickfaqs-api/internal/entitlement"
	"github.com/quickfaqs/quickfaqs-api/internal/faq"
	"github.com/quickfaqs/quickfaqs-api/internal/storage/mongo"
	"github.com/quickfaqs/quickfaqs-api/internal/storage/sqlite"
	"github.com/rs/zerolog/log"
)

// Stores bundles the entitlement store and FAQ repository of one backend.
type Stores struct {
	Accounts entitlement.Store
	FAQs     faq.Repository
	migrate  func(context.Context) error
}

// Migrate brings the backend schema and indexes up to date. The memory
// backend has nothing to migrate.
func (s *Stores) Migrate(ctx context.Context) error {
	if s.migrate == nil {
		return nil
	}
	return s.migrate(ctx)
}

// Close releases the backend.
func (s *Stores) Close() error {
	return s.Accounts.Close()
}

// OpenStores opens the backend selected by cfg.Store.
func OpenStores(ctx context.Context, cfg *Config) (*Stores, error) {
	switch cfg.Store {
	case StoreMemory:
		log.Warn().Msg("Using in-memory store, entitlements are lost on restart")
		return &Stores{
			Accounts: entitlement.NewMemoryStore(),
			FAQs:     faq.NewMemoryRepository(),
		}, nil

	case StoreSQLite:
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		store, err := sqlite.Open(cfg.DataDir)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		log.Info().Str("dir", cfg.DataDir).Msg("SQLite store opened")
		return &Stores{Accounts: store, FAQs: store, migrate: store.Migrate}, nil

	case StoreMongo:
		store, err := mongo.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, fmt.Errorf("connect mongo store: %w", err)
		}
		if err := store.Migrate(ctx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("migrate mongo store: %w", err)
		}
		log.Info().Str("database", cfg.MongoDatabase).Msg("MongoDB store connected")
		return &Stores{Accounts: store, FAQs: store, migrate: store.Migrate}, nil

	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}
