package scan

import (
	"context"
	"fmt"
	"sync"
)

// Scan types of the incremental scans. Each scan owns its own row.
const (
	ScanTypeTokens   = "tokens"
	ScanTypeRichList = "richlist"
	scanTypeNFT      = "nft:"
)

// NFTScanType returns the scan type of the holder indexer for one token contract.
func NFTScanType(token string) string {
	return scanTypeNFT + NormalizeHex(token)
}

// ProgressStore persists scan cursors.
// SaveProgress must never lower a stored cursor.
type ProgressStore interface {
	LoadProgress(ctx context.Context, scanType string) (uint64, bool, error)
	SaveProgress(ctx context.Context, scanType string, lastScanned uint64) error
}

// Tracker reads and advances the cursor of one scan type.
type Tracker struct {
	store    ProgressStore
	scanType string

	mu     sync.Mutex
	last   uint64
	loaded bool
}

func NewTracker(store ProgressStore, scanType string) *Tracker {
	return &Tracker{store: store, scanType: scanType}
}

// ScanType returns the tracked scan type.
func (t *Tracker) ScanType() string {
	return t.scanType
}

// Load returns the last fully scanned block. ok is false when the scan never ran.
func (t *Tracker) Load(ctx context.Context) (uint64, bool, error) {
	if t.store == nil {
		return 0, false, fmt.Errorf("progress store is nil")
	}
	last, ok, err := t.store.LoadProgress(ctx, t.scanType)
	if err != nil {
		return 0, false, fmt.Errorf("load progress %s: %w", t.scanType, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if ok && (!t.loaded || last > t.last) {
		t.last = last
		t.loaded = true
	}
	if t.loaded {
		return t.last, true, nil
	}
	return 0, false, nil
}

// Advance records block as fully scanned. Lower values than the current cursor are ignored.
func (t *Tracker) Advance(ctx context.Context, block uint64) error {
	if t.store == nil {
		return fmt.Errorf("progress store is nil")
	}

	t.mu.Lock()
	if t.loaded && block <= t.last {
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	if err := t.store.SaveProgress(ctx, t.scanType, block); err != nil {
		return fmt.Errorf("save progress %s: %w", t.scanType, err)
	}

	t.mu.Lock()
	if !t.loaded || block > t.last {
		t.last = block
		t.loaded = true
	}
	t.mu.Unlock()
	return nil
}
