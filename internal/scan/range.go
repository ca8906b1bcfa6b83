package scan

import "fmt"

// BlockRange represents an inclusive block range.
type BlockRange struct {
	From uint64
	To   uint64
}

// Len returns the number of blocks in the range.
func (r BlockRange) Len() uint64 {
	if r.To < r.From {
		return 0
	}
	return r.To - r.From + 1
}

// SplitRange splits a block range into batches of size batchSize.
func SplitRange(from, to, batchSize uint64) ([]BlockRange, error) {
	if batchSize == 0 {
		return nil, fmt.Errorf("batch size must be greater than zero")
	}
	if to < from {
		return nil, fmt.Errorf("to block must be >= from block")
	}

	ranges := make([]BlockRange, 0, (to-from)/batchSize+1)
	start := from
	for start <= to {
		end := to
		if to-start+1 > batchSize {
			end = start + batchSize - 1
		}
		ranges = append(ranges, BlockRange{From: start, To: end})
		if end == to {
			break
		}
		start = end + 1
	}

	return ranges, nil
}

// WindowBelow returns the window of at most size blocks ending at top and
// never reaching below floor.
func WindowBelow(top, size, floor uint64) (BlockRange, error) {
	if size == 0 {
		return BlockRange{}, fmt.Errorf("window size must be greater than zero")
	}
	if top < floor {
		return BlockRange{}, fmt.Errorf("window top %d is below floor %d", top, floor)
	}
	from := floor
	if top-floor+1 > size {
		from = top - size + 1
	}
	return BlockRange{From: from, To: top}, nil
}
