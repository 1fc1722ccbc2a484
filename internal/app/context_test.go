package app_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"launchline/internal/app"
	"launchline/internal/config"
	"launchline/internal/db"
	"launchline/internal/migrate"
	"launchline/internal/repo"
)

func newTestRepo(t *testing.T) (repo.Repo, string) {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return repo.Repo{DB: conn}, workspace
}

func TestResolveRequiresStore(t *testing.T) {
	r, workspace := newTestRepo(t)
	if _, _, err := app.ResolveStoreAndConfig(context.Background(), workspace, "", r); err == nil {
		t.Fatalf("expected error with no store to resolve")
	}
}

func TestResolveCreatesStoreAndSeedsMembers(t *testing.T) {
	r, workspace := newTestRepo(t)
	yml := strings.Replace(config.GenerateDefault("store-1"), "seed: []",
		"seed:\n    - id: m1\n      name: Li Wen\n    - name: Zhang Qiang\n      role: admin", 1)
	if err := os.WriteFile(filepath.Join(workspace, "launchline.yml"), []byte(yml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	ctx := context.Background()
	storeID, cfg, err := app.ResolveStoreAndConfig(ctx, workspace, "store-1", r)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if storeID != "store-1" || cfg.Store.ID != "store-1" {
		t.Fatalf("unexpected resolution %s %+v", storeID, cfg.Store)
	}
	m, err := r.GetMember(ctx, "m1")
	if err != nil {
		t.Fatalf("seed member: %v", err)
	}
	if m.CreditScore != 100 || m.Role != "operator" {
		t.Fatalf("unexpected seed member %+v", m)
	}
	members, err := r.ListMembers(ctx, "store-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(members) != 2 {
		t.Fatalf("expected 2 seeded members, got %d", len(members))
	}

	// second resolution reuses the existing store, no duplicate seeding
	if _, _, err := app.ResolveStoreAndConfig(ctx, workspace, "store-1", r); err != nil {
		t.Fatalf("re-resolve: %v", err)
	}
	members, _ = r.ListMembers(ctx, "store-1")
	if len(members) != 2 {
		t.Fatalf("seeding must run once, got %d members", len(members))
	}
}

func TestResolveSingleStoreWithoutOverride(t *testing.T) {
	r, workspace := newTestRepo(t)
	ctx := context.Background()
	if _, _, err := app.ResolveStoreAndConfig(ctx, workspace, "store-1", r); err != nil {
		t.Fatalf("create: %v", err)
	}
	storeID, _, err := app.ResolveStoreAndConfig(ctx, workspace, "", r)
	if err != nil {
		t.Fatalf("resolve single: %v", err)
	}
	if storeID != "store-1" {
		t.Fatalf("expected store-1, got %s", storeID)
	}
}
