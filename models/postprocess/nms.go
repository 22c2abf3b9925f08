package postprocess

import (
	"sort"

	"github.com/nvr-ai/go-detect/images"
)

// NMSConfig defines parameters for Non-Maximum Suppression.
type NMSConfig struct {
	IoUThreshold float32 // Overlap above which the lower scoring box is suppressed.
	ClassAware   bool    // If true, suppress only within same class.
}

// SortByScore orders detections by descending score, keeping the input order on ties.
func SortByScore(detections []RawDetection) {
	sort.SliceStable(detections, func(i, j int) bool {
		return detections[i].Score > detections[j].Score
	})
}

// ApplyGreedyNMS performs standard greedy Non-Maximum Suppression.
//
// The input is sorted (stable, descending score) before suppression, so among equal
// scores the earlier detection wins. A box is suppressed when its IoU with a kept box
// is strictly greater than the threshold.
//
// Arguments:
//   - detections: Slice of detections in any order. It is not modified.
//   - config: NMS configuration.
//
// Returns:
//   - Filtered slice of detections, sorted by descending score.
func ApplyGreedyNMS(detections []RawDetection, config NMSConfig) []RawDetection {
	n := len(detections)
	if n == 0 {
		return nil
	}

	sorted := make([]RawDetection, n)
	copy(sorted, detections)
	SortByScore(sorted)

	filtered := make([]RawDetection, 0, n)
	used := make([]bool, n)

	for i := 0; i < n; i++ {
		if used[i] {
			continue
		}

		anchor := sorted[i]
		filtered = append(filtered, anchor)
		used[i] = true

		for j := i + 1; j < n; j++ {
			if used[j] {
				continue
			}
			if config.ClassAware && sorted[j].Class != anchor.Class {
				continue
			}
			// Suppress if IoU exceeds threshold
			if images.CalculateIoU(anchor.Box, sorted[j].Box) > config.IoUThreshold {
				used[j] = true
			}
		}
	}

	return filtered
}
