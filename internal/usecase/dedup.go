package usecase

import (
	"context"
	"fmt"

	"ResaleScanner/internal/domain"
	"ResaleScanner/internal/ports"
)

const defaultBatchLimit = 100

// DedupFilter drops candidates whose stored record marks them as handled.
type DedupFilter struct {
	store ports.RecordStore
	keys  domain.Keyspace
}

// NewDedupFilter binds the filter to a record store.
func NewDedupFilter(store ports.RecordStore, keys domain.Keyspace) *DedupFilter {
	return &DedupFilter{store: store, keys: keys}
}

// Filter returns the candidates without a settled record, preserving order.
func (f *DedupFilter) Filter(ctx context.Context, candidates []domain.Candidate) ([]domain.Candidate, error) {
	if f.store == nil || len(candidates) == 0 {
		return candidates, nil
	}

	limit := f.store.BatchLimit()
	if limit <= 0 {
		limit = defaultBatchLimit
	}

	kept := make([]domain.Candidate, 0, len(candidates))
	for start := 0; start < len(candidates); start += limit {
		chunk := candidates[start:min(start+limit, len(candidates))]

		keys := make([]string, len(chunk))
		for i, cand := range chunk {
			keys[i] = f.keys.Key(cand.ID)
		}

		records, err := f.store.BatchGet(ctx, keys)
		if err != nil {
			return nil, fmt.Errorf("load processed records: %w", err)
		}

		for i, cand := range chunk {
			if rec, ok := records[keys[i]]; ok && rec.Settled() {
				continue
			}
			kept = append(kept, cand)
		}
	}

	return kept, nil
}
