package id

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEvaluationHandle_Unique(t *testing.T) {
	const workers, perWorker = 16, 200

	var mu sync.Mutex
	seen := make(map[string]struct{}, workers*perWorker)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(chain int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				h := NewEvaluationHandle(chain)
				mu.Lock()
				seen[h.String()] = struct{}{}
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()

	assert.Len(t, seen, workers*perWorker)
}

func TestNewEvaluationHandle_Fields(t *testing.T) {
	before := Issued()
	h := NewEvaluationHandle(3)

	assert.Equal(t, 3, h.Chain)
	assert.Greater(t, h.Seq, before)
	assert.Len(t, h.Nonce, NonceLength*2)
	assert.NotContains(t, h.String(), "/")
}

func TestParseUUID(t *testing.T) {
	u := NewRunID()
	parsed, err := ParseUUID(u.String())
	require.NoError(t, err)
	assert.Equal(t, u, parsed)

	_, err = ParseUUID("nope")
	assert.Error(t, err)
	assert.Len(t, NewUUID(), 36)
}

func BenchmarkNewEvaluationHandle(b *testing.B) {
	b.ReportAllocs()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_ = NewEvaluationHandle(0)
		}
	})
}
