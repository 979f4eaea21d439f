package statestore

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func TestMemoryStoreVersions(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	first, err := s.Save(ctx, "lyrics", "active")
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if first.Version != 1 {
		t.Errorf("Version = %d, want 1", first.Version)
	}
	second, _ := s.Save(ctx, "lyrics", "inactive")
	if second.Version != 2 {
		t.Errorf("Version = %d, want 2", second.Version)
	}

	got, err := s.Load(ctx, "lyrics")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.State != "inactive" || got.Version != 2 {
		t.Errorf("Load() = %+v, want inactive v2", got)
	}
}

func TestMemoryStoreListSorted(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		if _, err := s.Save(ctx, name, "registered"); err != nil {
			t.Fatal(err)
		}
	}
	recs, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	want := []string{"alpha", "mid", "zeta"}
	if len(recs) != len(want) {
		t.Fatalf("len(List()) = %d, want %d", len(recs), len(want))
	}
	for i, rec := range recs {
		if rec.Extension != want[i] {
			t.Errorf("List()[%d] = %q, want %q", i, rec.Extension, want[i])
		}
	}
}

func TestMemoryStoreDelete(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	if _, err := s.Save(ctx, "x", "active"); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, "x"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := s.Load(ctx, "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load() error = %v, want ErrNotFound", err)
	}
}

func TestDecodeRedisRecord(t *testing.T) {
	rec, err := decode("x", `{"extension":"x","state":"active","version":3,"updated_at":1700000000000}`)
	if err != nil {
		t.Fatalf("decode() error = %v", err)
	}
	if rec.State != "active" || rec.Version != 3 || rec.UpdatedAt.UnixMilli() != 1700000000000 {
		t.Errorf("decode() = %+v", rec)
	}
	if _, err := decode("x", "not json"); err == nil {
		t.Error("decode() of garbage should fail")
	}
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("BACKPLANE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("BACKPLANE_TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}

	prefix := "backplane:test:" + uuid.NewString() + ":"
	s := NewRedisStore(client, WithKeyPrefix(prefix))
	defer client.Del(ctx, prefix+"extension-states")

	if _, err := s.Load(ctx, "lyrics"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load() on empty store error = %v, want %v", err, ErrNotFound)
	}
	for i, state := range []string{"registered", "active"} {
		rec, err := s.Save(ctx, "lyrics", state)
		if err != nil {
			t.Fatalf("Save() error = %v", err)
		}
		if rec.Version != int64(i+1) {
			t.Errorf("Version = %d, want %d", rec.Version, i+1)
		}
	}
	if _, err := s.Save(ctx, "artwork", "inactive"); err != nil {
		t.Fatal(err)
	}

	recs, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(recs) != 2 || recs[0].Extension != "artwork" || recs[1].State != "active" {
		t.Errorf("List() = %+v, want artwork then active lyrics", recs)
	}

	if err := s.Delete(ctx, "lyrics"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := s.Load(ctx, "lyrics"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load() after delete error = %v, want %v", err, ErrNotFound)
	}
}
