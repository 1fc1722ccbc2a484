package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"launchline/internal/config"
	"launchline/internal/domain"
	"launchline/internal/repo"
)

// ResolveStoreAndConfig picks the active store and ensures a store + config exist in DB,
// seeding defaults if missing. It prefers overrides, then single-store DB.
// If the store does not exist, it is created on the fly.
func ResolveStoreAndConfig(ctx context.Context, workspace, storeOverride string, r repo.Repo) (string, *config.Config, error) {
	storeID := storeOverride
	if storeID == "" {
		if s, err := r.SingleStore(ctx); err == nil {
			storeID = s.ID
		} else {
			return "", nil, fmt.Errorf("store not specified; use --store")
		}
	}
	seedCfg := config.Default(storeID)
	if fileCfg, err := config.LoadOptional(workspace); err != nil {
		return "", nil, err
	} else if fileCfg != nil {
		seedCfg = fileCfg
		seedCfg.Store.ID = storeID
	}

	if _, err := r.GetStore(ctx, storeID); err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			return "", nil, err
		}
		if err := createStore(ctx, r, storeID, seedCfg); err != nil {
			return "", nil, err
		}
	}
	cfg, err := r.GetStoreConfig(ctx, storeID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			if err := r.UpsertStoreConfig(ctx, storeID, seedCfg); err != nil {
				return "", nil, fmt.Errorf("seed store config: %w", err)
			}
			cfg = seedCfg
		} else {
			return "", nil, err
		}
	}
	cfg.Store.ID = storeID
	return storeID, cfg, nil
}

// createStore inserts a minimal store footprint using the seed config.
func createStore(ctx context.Context, r repo.Repo, storeID string, seedCfg *config.Config) error {
	if seedCfg == nil {
		seedCfg = config.Default(storeID)
	}
	now := time.Now().UTC().Format(time.RFC3339)
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	s := domain.Store{
		ID:        storeID,
		Kind:      seedCfg.Store.Kind,
		Status:    "active",
		CreatedAt: now,
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO stores(id,kind,status,description,created_at) VALUES (?,?,?,?,?)`,
		s.ID, s.Kind, s.Status, s.Description, s.CreatedAt); err != nil {
		return fmt.Errorf("insert store: %w", err)
	}
	if err := r.UpsertStoreConfigTx(ctx, tx, storeID, seedCfg); err != nil {
		return fmt.Errorf("insert store config: %w", err)
	}
	for _, seed := range seedCfg.Members.Seed {
		id := seed.ID
		if id == "" {
			id = uuid.New().String()
		}
		role := seed.Role
		if role == "" {
			role = "operator"
		}
		m := domain.Member{
			ID:          id,
			StoreID:     storeID,
			Name:        seed.Name,
			Role:        role,
			CreditScore: 100,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := r.InsertMemberTx(ctx, tx, m); err != nil {
			return fmt.Errorf("seed member %s: %w", seed.Name, err)
		}
	}
	return tx.Commit()
}
