package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"opsdesk/api/internal/localcache"
)

// DocumentsKey holds the JSON document list mirrored for offline reads.
const DocumentsKey = "knowledge_documents"

// Mirror reads and writes the serialized document list in the local cache.
type Mirror struct {
	cache localcache.Cache
}

func NewMirror(cache localcache.Cache) *Mirror {
	return &Mirror{cache: cache}
}

// Load returns the mirrored documents. A missing or unparseable value reads
// as an empty list.
func (m *Mirror) Load(ctx context.Context) ([]Document, error) {
	raw, err := m.cache.Get(ctx, DocumentsKey)
	if errors.Is(err, localcache.ErrMiss) {
		return []Document{}, nil
	}
	if err != nil {
		return []Document{}, fmt.Errorf("read mirror: %w", err)
	}
	var docs []Document
	if err := json.Unmarshal([]byte(raw), &docs); err != nil {
		return []Document{}, nil
	}
	if docs == nil {
		docs = []Document{}
	}
	return docs, nil
}

func (m *Mirror) Save(ctx context.Context, docs []Document) error {
	if docs == nil {
		docs = []Document{}
	}
	payload, err := json.Marshal(docs)
	if err != nil {
		return fmt.Errorf("marshal mirror: %w", err)
	}
	if err := m.cache.Set(ctx, DocumentsKey, string(payload)); err != nil {
		return fmt.Errorf("write mirror: %w", err)
	}
	return nil
}
