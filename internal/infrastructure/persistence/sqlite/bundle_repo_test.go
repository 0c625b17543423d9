package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"roguelike-forge-api/internal/domain/entity"
	"roguelike-forge-api/internal/domain/repository"
)

func openTestRepo(t *testing.T) *BundleRepository {
	t.Helper()
	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "forge.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return NewBundleRepository(store)
}

func sampleBundle(name string, created time.Time) *entity.AssetBundle {
	return &entity.AssetBundle{
		Name:                  name,
		RawDescription:        "zombie post apocalyptic world",
		Description:           "A ruined city overrun by the dead.",
		GenerationTimeSeconds: 42,
		LLMProvider:           "groq",
		LLMModel:              "openai/gpt-oss-120b",
		DungeonLevels: entity.DungeonLevelWithTextureList{Items: []entity.DungeonLevelWithTexture{
			{DungeonLevel: entity.DungeonLevel{Name: "The Quarantine Gate", Depth: 1}},
		}},
		UsageMetadata: entity.UsageMetadata{"openai/gpt-oss-120b": {InputTokens: 10, OutputTokens: 5, TotalTokens: 15, Calls: 1}},
		CreatedAt:     created,
	}
}

func TestBundleRepositoryCRUD(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)

	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	first := sampleBundle("Souls of the Dead City", base)
	second := sampleBundle("Echoes of the Sunken Crypt", base.Add(time.Minute))
	for _, b := range []*entity.AssetBundle{first, second} {
		if err := repo.Create(ctx, b); err != nil {
			t.Fatalf("create: %v", err)
		}
		if b.ID == "" {
			t.Fatal("expected id to be assigned")
		}
	}

	page, err := repo.List(ctx, repository.NewPagination(1, 10))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Total != 2 || len(page.Items) != 2 {
		t.Fatalf("expected 2 bundles, got %d/%d", page.Total, len(page.Items))
	}
	if page.Items[0].ID != second.ID {
		t.Fatalf("expected newest first, got %s", page.Items[0].Name)
	}

	got, err := repo.GetByID(ctx, first.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || got.Name != first.Name || got.UsageMetadata.Total().TotalTokens != 15 {
		t.Fatalf("unexpected bundle %+v", got)
	}
	if !got.CreatedAt.Equal(base) {
		t.Fatalf("expected created_at %s, got %s", base, got.CreatedAt)
	}

	ok, err := repo.Rename(ctx, first.ID, "Ashes of the Dead City")
	if err != nil || !ok {
		t.Fatalf("rename: ok=%v err=%v", ok, err)
	}
	got, _ = repo.GetByID(ctx, first.ID)
	if got.Name != "Ashes of the Dead City" {
		t.Fatalf("expected renamed bundle, got %q", got.Name)
	}

	ok, err = repo.Delete(ctx, first.ID)
	if err != nil || !ok {
		t.Fatalf("delete: ok=%v err=%v", ok, err)
	}
	if got, err := repo.GetByID(ctx, first.ID); err != nil || got != nil {
		t.Fatalf("expected missing bundle, got %+v err=%v", got, err)
	}
}

func TestBundleRepositoryMissing(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)

	if ok, err := repo.Delete(ctx, "nope"); err != nil || ok {
		t.Fatalf("expected delete miss, got ok=%v err=%v", ok, err)
	}
	if ok, err := repo.Rename(ctx, "nope", "Some Valid Title Here"); err != nil || ok {
		t.Fatalf("expected rename miss, got ok=%v err=%v", ok, err)
	}
	page, err := repo.List(ctx, repository.NewPagination(2, 5))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Total != 0 || len(page.Items) != 0 || page.Page != 2 {
		t.Fatalf("unexpected empty page %+v", page)
	}
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open(context.Background(), "  "); err == nil {
		t.Fatal("expected error for empty path")
	}
}
