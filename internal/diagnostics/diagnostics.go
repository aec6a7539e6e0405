// Package diagnostics summarises posterior draws and checks chain
// convergence. Statistics follow the rank-normalised split R-hat and bulk
// ESS of Vehtari et al. (2021).
package diagnostics

import (
	"math"
	"slices"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/ynkmn/reactoruq/internal/domain"
)

// DefaultHDIProb is the mass of the reported highest density interval.
const DefaultHDIProb = 0.95

// SummarizeChains builds the report for a run's chain results, including
// the per-chain outcome table.
func SummarizeChains(results []*domain.ChainResult, hdiProb float64) *domain.Summary {
	traces := make(map[int]*domain.Trace, len(results))
	for _, r := range results {
		if r != nil {
			traces[r.Chain] = r.Trace
		}
	}
	s := SummarizeTraces(traces, hdiProb)

	s.Chains = s.Chains[:0]
	for _, r := range results {
		if r == nil {
			continue
		}
		s.Chains = append(s.Chains, domain.ChainSummary{
			Chain:          r.Chain,
			State:          r.State,
			Draws:          r.Trace.Len(),
			AcceptanceRate: r.AcceptanceRate,
		})
	}
	sort.Slice(s.Chains, func(i, j int) bool { return s.Chains[i].Chain < s.Chains[j].Chain })
	return s
}

// SummarizeTraces computes pooled statistics for every parameter. Statistics
// that cannot be computed from the available draws are NaN.
func SummarizeTraces(traces map[int]*domain.Trace, hdiProb float64) *domain.Summary {
	if !(hdiProb > 0 && hdiProb < 1) {
		hdiProb = DefaultHDIProb
	}
	ids := make([]int, 0, len(traces))
	for id := range traces {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	s := &domain.Summary{HDIProb: hdiProb}
	var names []string
	for _, id := range ids {
		t := traces[id]
		s.Chains = append(s.Chains, domain.ChainSummary{
			Chain:          id,
			Draws:          t.Len(),
			AcceptanceRate: t.AcceptanceRate(),
		})
		s.TotalDraws += t.Len()
		if names == nil && t != nil && len(t.Names) > 0 {
			names = t.Names
		}
	}

	for _, name := range names {
		var chains [][]float64
		for _, id := range ids {
			if traces[id] == nil {
				continue
			}
			if col, ok := traces[id].Column(name); ok && len(col) > 0 {
				chains = append(chains, col)
			}
		}
		s.Parameters = append(s.Parameters, Summarize(name, chains, hdiProb))
	}
	return s
}

// Summarize computes the statistics of one parameter from its per-chain
// series. Convergence statistics use only the chains of full length, so a
// chain that aborted early still contributes to the moments and the HDI.
func Summarize(name string, chains [][]float64, hdiProb float64) domain.ParameterSummary {
	ps := domain.ParameterSummary{
		Name: name, Mean: math.NaN(), SD: math.NaN(),
		HDILower: math.NaN(), HDIUpper: math.NaN(),
		MCSE: math.NaN(), ESS: math.NaN(), RHat: math.NaN(),
	}

	var pooled []float64
	for _, c := range chains {
		pooled = append(pooled, c...)
	}
	if len(pooled) == 0 {
		return ps
	}
	ps.Mean = stat.Mean(pooled, nil)
	if len(pooled) > 1 {
		ps.SD = stat.StdDev(pooled, nil)
	}
	ps.HDILower, ps.HDIUpper = HDI(pooled, hdiProb)

	full := fullLength(chains)
	ps.RHat = RHat(full)
	ps.ESS = BulkESS(full)
	if ess := meanESS(full); ess > 0 {
		ps.MCSE = ps.SD / math.Sqrt(ess)
	}
	return ps
}

func fullLength(chains [][]float64) [][]float64 {
	n := 0
	for _, c := range chains {
		n = max(n, len(c))
	}
	var out [][]float64
	for _, c := range chains {
		if len(c) == n {
			out = append(out, c)
		}
	}
	return out
}

// HDI returns the narrowest interval holding prob of the sorted draws.
func HDI(x []float64, prob float64) (lower, upper float64) {
	n := len(x)
	inc := int(math.Floor(prob * float64(n)))
	if n < 2 || inc < 1 || inc >= n {
		return math.NaN(), math.NaN()
	}
	sorted := append([]float64(nil), x...)
	slices.Sort(sorted)

	best := 0
	width := math.Inf(1)
	for i := 0; i+inc < n; i++ {
		if w := sorted[i+inc] - sorted[i]; w < width {
			width = w
			best = i
		}
	}
	return sorted[best], sorted[best+inc]
}

// RHat returns the rank-normalised split R-hat, the larger of the bulk and
// tail (folded) versions. Chains must have equal length of at least four.
func RHat(chains [][]float64) float64 {
	split := splitChains(chains)
	if split == nil {
		return math.NaN()
	}
	bulk := rhat(rankNormalize(split))
	tail := rhat(rankNormalize(fold(split)))
	if math.IsNaN(bulk) || math.IsNaN(tail) {
		return math.NaN()
	}
	return max(bulk, tail)
}

// BulkESS returns the effective sample size of the rank-normalised split
// chains.
func BulkESS(chains [][]float64) float64 {
	split := splitChains(chains)
	if split == nil {
		return math.NaN()
	}
	return ess(rankNormalize(split))
}

func meanESS(chains [][]float64) float64 {
	split := splitChains(chains)
	if split == nil {
		return math.NaN()
	}
	return ess(split)
}

// splitChains halves every chain, dropping the middle draw of odd lengths.
func splitChains(chains [][]float64) [][]float64 {
	if len(chains) == 0 {
		return nil
	}
	n := len(chains[0])
	if n < 4 {
		return nil
	}
	half := n / 2
	out := make([][]float64, 0, 2*len(chains))
	for _, c := range chains {
		if len(c) != n {
			return nil
		}
		out = append(out, c[:half], c[n-half:])
	}
	return out
}

func fold(chains [][]float64) [][]float64 {
	var pooled []float64
	for _, c := range chains {
		pooled = append(pooled, c...)
	}
	slices.Sort(pooled)
	med := stat.Quantile(0.5, stat.LinInterp, pooled, nil)

	out := make([][]float64, len(chains))
	for i, c := range chains {
		out[i] = make([]float64, len(c))
		for j, v := range c {
			out[i][j] = math.Abs(v - med)
		}
	}
	return out
}

// rankNormalize replaces draws by normal scores of their pooled ranks, with
// tied draws sharing their average rank.
func rankNormalize(chains [][]float64) [][]float64 {
	type ref struct {
		chain, idx int
		v          float64
	}
	var all []ref
	for i, c := range chains {
		for j, v := range c {
			all = append(all, ref{i, j, v})
		}
	}
	sort.SliceStable(all, func(a, b int) bool { return all[a].v < all[b].v })

	s := float64(len(all))
	out := make([][]float64, len(chains))
	for i, c := range chains {
		out[i] = make([]float64, len(c))
	}
	for lo := 0; lo < len(all); {
		hi := lo
		for hi+1 < len(all) && all[hi+1].v == all[lo].v {
			hi++
		}
		rank := float64(lo+hi)/2 + 1
		z := distuv.UnitNormal.Quantile((rank - 0.375) / (s + 0.25))
		for k := lo; k <= hi; k++ {
			out[all[k].chain][all[k].idx] = z
		}
		lo = hi + 1
	}
	return out
}

func rhat(chains [][]float64) float64 {
	m := len(chains)
	n := float64(len(chains[0]))
	means := make([]float64, m)
	vars := make([]float64, m)
	for i, c := range chains {
		means[i], vars[i] = stat.MeanVariance(c, nil)
	}
	w := stat.Mean(vars, nil)
	if !(w > 0) {
		return math.NaN()
	}
	b := n * stat.Variance(means, nil)
	varPlus := (n-1)/n*w + b/n
	return math.Sqrt(varPlus / w)
}

// ess estimates the effective sample size with Geyer's initial monotone
// sequence over the multi-chain autocorrelation.
func ess(chains [][]float64) float64 {
	m := len(chains)
	n := len(chains[0])
	acov := newAutocov(chains)

	means := make([]float64, m)
	for i, c := range chains {
		means[i] = stat.Mean(c, nil)
	}
	meanVar := acov.mean(0) * float64(n) / float64(n-1)
	varPlus := meanVar * float64(n-1) / float64(n)
	if m > 1 {
		varPlus += stat.Variance(means, nil)
	}
	if !(varPlus > 0) {
		return math.NaN()
	}
	rho := func(t int) float64 {
		return 1 - (meanVar-acov.mean(t))/varPlus
	}

	rhoHat := make([]float64, n)
	rhoHat[0] = 1
	even, odd := 1.0, rho(1)
	rhoHat[1] = odd
	t := 1
	for t < n-3 && even+odd > 0 {
		even, odd = rho(t+1), rho(t+2)
		if even+odd >= 0 {
			rhoHat[t+1] = even
			rhoHat[t+2] = odd
		}
		t += 2
	}
	maxT := t - 2
	if odd > 0 {
		rhoHat[maxT+1] = odd
	}

	for t := 1; t <= maxT-2; t += 2 {
		if rhoHat[t+1]+rhoHat[t+2] > rhoHat[t-1]+rhoHat[t] {
			rhoHat[t+1] = (rhoHat[t-1] + rhoHat[t]) / 2
			rhoHat[t+2] = rhoHat[t+1]
		}
	}

	total := float64(m * n)
	tau := -1.0
	for i := 0; i <= maxT; i++ {
		tau += 2 * rhoHat[i]
	}
	tau += rhoHat[maxT+1]
	tau = max(tau, 1/math.Log10(total))
	return total / tau
}

// autocov lazily computes the biased autocovariance of each chain by lag.
type autocov struct {
	chains [][]float64
	means  []float64
	lags   map[int]float64
}

func newAutocov(chains [][]float64) *autocov {
	a := &autocov{chains: chains, means: make([]float64, len(chains)), lags: make(map[int]float64)}
	for i, c := range chains {
		a.means[i] = stat.Mean(c, nil)
	}
	return a
}

// mean returns the lag-t autocovariance averaged over chains.
func (a *autocov) mean(t int) float64 {
	if v, ok := a.lags[t]; ok {
		return v
	}
	var sum float64
	for i, c := range a.chains {
		mu := a.means[i]
		var s float64
		for j := 0; j+t < len(c); j++ {
			s += (c[j] - mu) * (c[j+t] - mu)
		}
		sum += s / float64(len(c))
	}
	v := sum / float64(len(a.chains))
	a.lags[t] = v
	return v
}
