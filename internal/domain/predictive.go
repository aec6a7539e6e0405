package domain

// PredictivePoint is the posterior predictive distribution at one observation.
type PredictivePoint struct {
	Index    int     `json:"index"`
	Observed float64 `json:"observed"`
	Mean     float64 `json:"mean"`
	SD       float64 `json:"sd"`
	// Lower and Upper are Mean -/+ 2 SD.
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// PredictiveSummary is the forward model re-run at a random subset of
// posterior draws.
type PredictiveSummary struct {
	Seed uint64 `json:"seed"`
	// Requested is the number of draws selected; Evaluated of them succeeded.
	Requested    int               `json:"requested"`
	Evaluated    int               `json:"evaluated"`
	Failed       int               `json:"failed"`
	Observations []PredictivePoint `json:"observations"`
}

// Covered counts observations that fall inside their band.
func (s *PredictiveSummary) Covered() int {
	n := 0
	for _, p := range s.Observations {
		if p.Observed >= p.Lower && p.Observed <= p.Upper {
			n++
		}
	}
	return n
}
