// Package progress turns raw segment state into a user-facing
// percentage and label. Estimates are deliberately conservative: a run
// never reads 100% while any segment is still pending.
package progress

import (
	"fmt"
	"time"

	"github.com/storyforge/storyforge-agent/internal/status"
)

// halfLife controls how fast the in-flight segment's sub-progress
// approaches its cap: after halfLife elapsed the segment reads half of
// its share.
const halfLife = 8 * time.Second

// subProgressCap keeps an in-flight segment from ever claiming its full
// share before the provider actually finishes.
const subProgressCap = 0.9

// Report is a point-in-time progress estimate.
type Report struct {
	Percent int    `json:"percent"`
	Label   string `json:"label"`
}

// Estimate computes overall run progress. Completed segments count
// fully; the in-flight segment (generatingIndex, running for
// generatingFor) contributes a time-based fraction of its share, capped
// below completion. A run with only terminal segments reads 100% even
// when some failed, with the label reporting the completed count.
func Estimate(statuses []status.Status, generatingIndex int, generatingFor time.Duration) Report {
	total := len(statuses)
	if total == 0 {
		return Report{Percent: 0, Label: "No generation in progress"}
	}

	completed := 0
	terminal := 0
	for _, st := range statuses {
		if st.Kind == status.Completed {
			completed++
		}
		if st.IsTerminal() {
			terminal++
		}
	}

	if terminal == total {
		return Report{
			Percent: 100,
			Label:   fmt.Sprintf("%d of %d clips completed", completed, total),
		}
	}

	share := 100.0 / float64(total)
	pct := float64(completed) * share

	label := fmt.Sprintf("Generating clips (%d of %d completed)", completed, total)
	if generatingIndex >= 0 && generatingIndex < total && statuses[generatingIndex].Kind == status.Generating {
		frac := float64(generatingFor) / float64(generatingFor+halfLife)
		pct += share * subProgressCap * frac
		label = fmt.Sprintf("Generating clip %d of %d", generatingIndex+1, total)
	}

	p := int(pct)
	if p >= 100 { // non-terminal runs never read complete
		p = 99
	}
	if p < 0 {
		p = 0
	}
	return Report{Percent: p, Label: label}
}
