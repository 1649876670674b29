package store

import (
	"sort"
	"time"
)

// Ranking weights. The three terms are all on a [0,1] scale before
// weighting; importance is divided by MaxImportance to get there.
const (
	importanceWeight = 0.6
	confidenceWeight = 0.3
	recencyWeight    = 0.1

	maxRecencyBoost = 0.3
	recencyWindow   = 30 * 24 * time.Hour
)

// RecencyBoost returns the freshness bonus for a fact last reinforced age
// ago: maxRecencyBoost at age zero, decaying linearly to zero at the
// 30-day window edge. Clamped on both sides, so it is never negative and a
// future-dated reinforcement cannot exceed the ceiling.
func RecencyBoost(age time.Duration) float64 {
	boost := maxRecencyBoost - maxRecencyBoost*(age.Seconds()/recencyWindow.Seconds())
	if boost < 0 {
		return 0
	}
	if boost > maxRecencyBoost {
		return maxRecencyBoost
	}
	return boost
}

// Score computes the retrieval score of a memory at the given time. It is
// evaluated at query time and never stored. Confidence does not decay on
// its own; only the recency term fades. Confidence counts how often a fact
// was confirmed, recency says how fresh it is, and the two must not be
// conflated.
func Score(memory *Memory, now time.Time) float64 {
	age := now.Sub(time.Unix(memory.LastReinforcedTs, 0))
	importanceNormalized := float64(memory.Importance) / float64(MaxImportance)
	return importanceNormalized*importanceWeight +
		memory.Confidence*confidenceWeight +
		RecencyBoost(age)*recencyWeight
}

// RankMemories sorts memories in place for retrieval: score descending,
// ties broken by last_reinforced_ts descending (most recently touched
// wins), then by ID so equal rows always come back in the same order.
func RankMemories(memories []*Memory, now time.Time) {
	sort.SliceStable(memories, func(i, j int) bool {
		si, sj := Score(memories[i], now), Score(memories[j], now)
		if si != sj {
			return si > sj
		}
		if memories[i].LastReinforcedTs != memories[j].LastReinforcedTs {
			return memories[i].LastReinforcedTs > memories[j].LastReinforcedTs
		}
		return memories[i].ID < memories[j].ID
	})
}
