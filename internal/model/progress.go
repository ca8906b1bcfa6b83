package model

import "time"

// ScanProgress is the persisted cursor of an incremental scan.
type ScanProgress struct {
	ScanType         string    `json:"scan_type"`
	LastScannedBlock uint64    `json:"last_scanned_block"`
	LastUpdateTime   time.Time `json:"last_update_time"`
}
