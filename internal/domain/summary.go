package domain

import (
	"encoding/json"
	"math"
)

// ParameterSummary holds posterior statistics of one parameter pooled over chains
type ParameterSummary struct {
	Name     string  `json:"name"`
	Mean     float64 `json:"mean"`
	SD       float64 `json:"sd"`
	HDILower float64 `json:"hdiLower"`
	HDIUpper float64 `json:"hdiUpper"`
	MCSE     float64 `json:"mcse"`
	ESS      float64 `json:"ess"`
	RHat     float64 `json:"rhat"`
}

// ChainSummary holds per-chain statistics
type ChainSummary struct {
	Chain          int        `json:"chain"`
	State          ChainState `json:"state"`
	Draws          int        `json:"draws"`
	AcceptanceRate float64    `json:"acceptanceRate"`
}

// Summary is the diagnostics report over all chains of a run
type Summary struct {
	HDIProb    float64            `json:"hdiProb"`
	TotalDraws int                `json:"totalDraws"`
	Parameters []ParameterSummary `json:"parameters"`
	Chains     []ChainSummary     `json:"chains"`
}

// Parameter returns the summary of a named parameter
func (s *Summary) Parameter(name string) (ParameterSummary, bool) {
	for _, p := range s.Parameters {
		if p.Name == name {
			return p, true
		}
	}
	return ParameterSummary{}, false
}

type parameterSummaryJSON struct {
	Name     string   `json:"name"`
	Mean     *float64 `json:"mean"`
	SD       *float64 `json:"sd"`
	HDILower *float64 `json:"hdiLower"`
	HDIUpper *float64 `json:"hdiUpper"`
	MCSE     *float64 `json:"mcse"`
	ESS      *float64 `json:"ess"`
	RHat     *float64 `json:"rhat"`
}

func nullable(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func orNaN(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}

// MarshalJSON encodes statistics that could not be computed as null.
func (p ParameterSummary) MarshalJSON() ([]byte, error) {
	return json.Marshal(parameterSummaryJSON{
		Name:     p.Name,
		Mean:     nullable(p.Mean),
		SD:       nullable(p.SD),
		HDILower: nullable(p.HDILower),
		HDIUpper: nullable(p.HDIUpper),
		MCSE:     nullable(p.MCSE),
		ESS:      nullable(p.ESS),
		RHat:     nullable(p.RHat),
	})
}

// UnmarshalJSON decodes null statistics as NaN.
func (p *ParameterSummary) UnmarshalJSON(data []byte) error {
	var v parameterSummaryJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*p = ParameterSummary{
		Name:     v.Name,
		Mean:     orNaN(v.Mean),
		SD:       orNaN(v.SD),
		HDILower: orNaN(v.HDILower),
		HDIUpper: orNaN(v.HDIUpper),
		MCSE:     orNaN(v.MCSE),
		ESS:      orNaN(v.ESS),
		RHat:     orNaN(v.RHat),
	}
	return nil
}
