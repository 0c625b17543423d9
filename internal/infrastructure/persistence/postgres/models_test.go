package postgres

import (
	"encoding/json"
	"testing"
	"time"

	"roguelike-forge-api/internal/config"
	"roguelike-forge-api/internal/domain/entity"
)

func TestBundleModelRoundTrip(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	b := &entity.AssetBundle{
		ID:             "7f2c1f9e-1c4a-4f7b-9d1e-3c2a6b8e0f11",
		Name:           "Souls of the Dead City",
		RawDescription: "zombies",
		LLMModel:       "openai/gpt-oss-120b",
		DungeonLevels: entity.DungeonLevelWithTextureList{Items: []entity.DungeonLevelWithTexture{
			{DungeonLevel: entity.DungeonLevel{Name: "The Gate", Depth: 1}},
			{DungeonLevel: entity.DungeonLevel{Name: "The Metro", Depth: 2}},
		}},
		CreatedAt: created,
	}

	m, err := newBundleModel(b)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(m.LevelNames) != 2 || m.LevelNames[1] != "The Metro" {
		t.Fatalf("expected level names, got %v", m.LevelNames)
	}

	m.Name = "Renamed Dead City Tale"
	out, err := m.toEntity()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Name != "Renamed Dead City Tale" {
		t.Fatalf("expected column name to win, got %q", out.Name)
	}
	if !out.CreatedAt.Equal(created) || out.ID != b.ID {
		t.Fatalf("unexpected identity %s %s", out.ID, out.CreatedAt)
	}
}

func TestJobModelIdempotencyKey(t *testing.T) {
	j := entity.NewGenerationJob(entity.JobTypeMapGen, "crypt")
	m := newJobModel(j)
	if m.IdempotencyKey != nil {
		t.Fatal("expected empty key stored as NULL")
	}
	if m.OutputResult != nil {
		t.Fatal("expected empty output stored as NULL")
	}

	j.IdempotencyKey = "abc"
	j.OutputResult = json.RawMessage(`{"turn":0}`)
	back := newJobModel(j).toEntity()
	if back.IdempotencyKey != "abc" || string(back.OutputResult) != `{"turn":0}` {
		t.Fatalf("unexpected round trip %+v", back)
	}
}

func TestDSN(t *testing.T) {
	cfg := &config.PostgresConfig{Host: "db", Port: 5432, User: "forge", Database: "forge", SSLMode: "disable"}
	want := "host=db port=5432 user=forge dbname=forge sslmode=disable application_name=roguelike-forge"
	if got := DSN(cfg); got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}
