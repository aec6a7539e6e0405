package id

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ynkmn/reactoruq/internal/domain"
)

// NonceLength is the number of random bytes in an evaluation handle nonce
const NonceLength = 4

var (
	randReader = rand.Reader

	// invocations counts evaluation handles issued by this process
	invocations atomic.Uint64

	pid = os.Getpid()

	noncePool = sync.Pool{
		New: func() any {
			b := make([]byte, NonceLength)
			return &b
		},
	}
)

// NewEvaluationHandle issues a handle for one evaluation on the given chain.
func NewEvaluationHandle(chain int) domain.EvaluationHandle {
	return domain.EvaluationHandle{
		PID:   pid,
		Seq:   invocations.Add(1),
		Chain: chain,
		Nonce: newNonce(),
	}
}

// Issued returns the number of handles issued so far
func Issued() uint64 {
	return invocations.Load()
}

func newNonce() string {
	bufPtr := noncePool.Get().(*[]byte)
	defer noncePool.Put(bufPtr)
	buf := *bufPtr

	if _, err := randReader.Read(buf); err != nil {
		// Fallback to time-based nonce if random fails
		return fmt.Sprintf("%08x", uint32(time.Now().UnixNano()))
	}
	return hex.EncodeToString(buf)
}

// NewUUID generates a new UUID v4
func NewUUID() string {
	return uuid.New().String()
}

// NewRunID generates the identifier of an inference run
func NewRunID() uuid.UUID {
	return uuid.New()
}

// ParseUUID parses and validates a UUID string
func ParseUUID(id string) (uuid.UUID, error) {
	return uuid.Parse(id)
}
