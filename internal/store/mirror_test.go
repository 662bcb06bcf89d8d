package store

import (
	"context"
	"errors"
	"testing"

	"opsdesk/api/internal/localcache"
)

type failingCache struct {
	localcache.Cache
	err error
}

func (c failingCache) Get(context.Context, string) (string, error) { return "", c.err }

func TestMirrorMissReadsEmpty(t *testing.T) {
	mirror := NewMirror(localcache.NewMemory())
	docs, err := mirror.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if docs == nil || len(docs) != 0 {
		t.Fatalf("expected empty non-nil list, got %#v", docs)
	}
}

func TestMirrorUnparseableReadsEmpty(t *testing.T) {
	cache := localcache.NewMemory()
	_ = cache.Set(context.Background(), DocumentsKey, "{not json")
	docs, err := NewMirror(cache).Load(context.Background())
	if err != nil || len(docs) != 0 {
		t.Fatalf("expected empty list without error, got %v %v", docs, err)
	}
}

func TestMirrorSaveThenLoad(t *testing.T) {
	mirror := NewMirror(localcache.NewMemory())
	ctx := context.Background()
	in := []Document{{ID: "doc-1", Title: "Ops", Tags: []string{"runbook"}, Status: StatusPublished}}
	if err := mirror.Save(ctx, in); err != nil {
		t.Fatalf("save: %v", err)
	}
	out, err := mirror.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(out) != 1 || out[0].ID != "doc-1" || out[0].Tags[0] != "runbook" {
		t.Fatalf("unexpected mirror contents %+v", out)
	}
}

func TestMirrorTransportErrorSurfaces(t *testing.T) {
	boom := errors.New("redis down")
	docs, err := NewMirror(failingCache{Cache: localcache.NewMemory(), err: boom}).Load(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped transport error, got %v", err)
	}
	if docs == nil || len(docs) != 0 {
		t.Fatalf("expected empty list alongside error, got %#v", docs)
	}
}
