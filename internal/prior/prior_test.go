package prior

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"

	apperrors "github.com/ynkmn/reactoruq/internal/pkg/errors"
)

func TestSpec_Build(t *testing.T) {
	tests := []struct {
		name    string
		spec    Spec
		kind    string
		wantErr bool
	}{
		{name: "normal", spec: Spec{Kind: "normal", Mu: 0, Sigma: 0.1}, kind: KindNormal},
		{name: "uniform", spec: Spec{Kind: "uniform", Lower: -5, Upper: 0}, kind: KindUniform},
		{name: "half normal", spec: Spec{Kind: "half_normal", Sigma: 10}, kind: KindHalfNormal},
		{name: "normal without sigma", spec: Spec{Kind: "normal"}, wantErr: true},
		{name: "empty uniform", spec: Spec{Kind: "uniform", Lower: 1, Upper: 1}, wantErr: true},
		{name: "unknown kind", spec: Spec{Kind: "beta"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := tt.spec.Build()
			if tt.wantErr {
				assert.True(t, apperrors.IsConfiguration(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.kind, p.Kind())
		})
	}
}

func TestLogProb(t *testing.T) {
	n := Normal{Mu: 0, Sigma: 1}
	assert.InDelta(t, -0.5*math.Log(2*math.Pi), n.LogProb(0), 1e-12)

	u := Uniform{Lower: -5, Upper: 0}
	assert.InDelta(t, -math.Log(5), u.LogProb(-2), 1e-12)
	assert.True(t, math.IsInf(u.LogProb(0.1), -1))

	h := HalfNormal{Sigma: 2}
	assert.InDelta(t, math.Ln2+Normal{Sigma: 2}.LogProb(1), h.LogProb(1), 1e-12)
	assert.True(t, math.IsInf(h.LogProb(-0.1), -1))
}

func TestGradMatchesFiniteDifference(t *testing.T) {
	const eps = 1e-6
	cases := []struct {
		p Prior
		x float64
	}{
		{Normal{Mu: 1, Sigma: 0.5}, 0.3},
		{HalfNormal{Sigma: 3}, 1.7},
		{Uniform{Lower: -1, Upper: 1}, 0.2},
	}
	for _, c := range cases {
		fd := (c.p.LogProb(c.x+eps) - c.p.LogProb(c.x-eps)) / (2 * eps)
		assert.InDelta(t, fd, c.p.Grad(c.x), 1e-5, c.p.Kind())
	}
}

func TestRand_StaysInSupportAndIsReproducible(t *testing.T) {
	priors := []Prior{
		Uniform{Lower: -3, Upper: 0},
		HalfNormal{Sigma: 10},
		Normal{Mu: 0.05, Sigma: 0.1},
	}
	for _, p := range priors {
		a := rand.New(rand.NewPCG(1, 2))
		b := rand.New(rand.NewPCG(1, 2))

		xs := make([]float64, 2000)
		for i := range xs {
			xs[i] = p.Rand(a)
			assert.Equal(t, xs[i], p.Rand(b))
			lo, hi := p.Support()
			assert.GreaterOrEqual(t, xs[i], lo)
			assert.LessOrEqual(t, xs[i], hi)
		}
		assert.InDelta(t, p.Scale(), stat.StdDev(xs, nil), 0.1*p.Scale(), p.Kind())
	}
}
