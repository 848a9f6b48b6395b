package loop

import "github.com/thruflo/ralph/internal/state"

// DetectStuck checks if the loop is stuck by analyzing history.
// A loop is considered stuck if criteria_done hasn't changed
// for the last N iterations where N is the threshold.
func DetectStuck(history []state.History, threshold int) bool {
	if threshold <= 0 || len(history) < threshold {
		return false
	}

	recent := history[len(history)-threshold:]

	first := recent[0].CriteriaDone
	for _, entry := range recent[1:] {
		if entry.CriteriaDone != first {
			return false
		}
	}

	return true
}

// ProgressRate calculates the completion rate over recent history.
// Returns criteria completed per iteration (averaged over the window).
func ProgressRate(history []state.History, window int) float64 {
	if len(history) < 2 {
		return 0
	}

	if window > len(history) {
		window = len(history)
	}

	recent := history[len(history)-window:]
	if len(recent) < 2 {
		return 0
	}

	start := recent[0].CriteriaDone
	end := recent[len(recent)-1].CriteriaDone
	iterations := len(recent) - 1

	return float64(end-start) / float64(iterations)
}
