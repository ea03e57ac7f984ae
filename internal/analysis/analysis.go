// Package analysis summarizes support sessions for operators: queue sizes
// and how seekers rated each helper.
package analysis

import (
	"sort"

	"sapex/backend/internal/models"
)

// Totals counts sessions by lifecycle state.
type Totals struct {
	Waiting  int `json:"waiting"`
	Matched  int `json:"matched"`
	Resolved int `json:"resolved"`
}

// HelperStats aggregates one helper's sessions. MeanOutcome is the average
// of stored outcomes (rating/10) and is zero when nothing was resolved.
type HelperStats struct {
	HelperID    string  `json:"helperId"`
	Open        int     `json:"open"`
	Resolved    int     `json:"resolved"`
	MeanOutcome float64 `json:"meanOutcome"`
}

// Report is the output of Summarize.
type Report struct {
	Totals  Totals        `json:"totals"`
	Helpers []HelperStats `json:"helpers"`
	// Illegal counts resolved records that never had a helper.
	Illegal int `json:"illegal"`
}

// Summarize builds a report over sessions. Helpers are ordered by id.
func Summarize(sessions []models.SupportSession) Report {
	var r Report
	byHelper := make(map[string]*HelperStats)
	sums := make(map[string]float64)

	for i := range sessions {
		s := &sessions[i]
		state, err := s.State()
		if err != nil {
			r.Illegal++
			continue
		}

		var helperID string
		switch st := state.(type) {
		case models.Unmatched:
			r.Totals.Waiting++
			continue
		case models.Matched:
			r.Totals.Matched++
			helperID = st.HelperID
		case models.Closed:
			r.Totals.Resolved++
			helperID = st.HelperID
			sums[helperID] += st.Outcome
		}

		hs, ok := byHelper[helperID]
		if !ok {
			hs = &HelperStats{HelperID: helperID}
			byHelper[helperID] = hs
		}
		if _, closed := state.(models.Closed); closed {
			hs.Resolved++
		} else {
			hs.Open++
		}
	}

	r.Helpers = make([]HelperStats, 0, len(byHelper))
	for id, hs := range byHelper {
		if hs.Resolved > 0 {
			hs.MeanOutcome = sums[id] / float64(hs.Resolved)
		}
		r.Helpers = append(r.Helpers, *hs)
	}
	sort.Slice(r.Helpers, func(i, j int) bool { return r.Helpers[i].HelperID < r.Helpers[j].HelperID })
	return r
}
