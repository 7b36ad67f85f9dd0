package indexer

import "fmt"

// BlockRange is an inclusive block interval.
type BlockRange struct {
	From uint64
	To   uint64
}

// SplitRange partitions [from, to] into consecutive ranges of at most
// batchSize blocks.
func SplitRange(from, to, batchSize uint64) ([]BlockRange, error) {
	if batchSize == 0 {
		return nil, fmt.Errorf("batch size must be greater than zero")
	}
	if to < from {
		return nil, fmt.Errorf("to block must be >= from block")
	}

	var ranges []BlockRange
	for start := from; ; {
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
