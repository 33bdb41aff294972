package idhash

import (
	cryptorand "crypto/rand"
	"encoding/binary"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	runMu      sync.Mutex
	runEntropy io.Reader
)

func init() {
	var seed int64
	_ = binary.Read(cryptorand.Reader, binary.LittleEndian, &seed)
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	runEntropy = ulid.Monotonic(rand.New(rand.NewSource(seed)), 0)
}

// NewRunID returns a ULID stamped with at. IDs minted within one millisecond
// stay lexicographically increasing.
func NewRunID(at time.Time) string {
	runMu.Lock()
	defer runMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(at.UTC()), runEntropy).String()
}

// RunTime returns the timestamp encoded in a run id.
func RunTime(runID string) (time.Time, error) {
	id, err := ulid.ParseStrict(runID)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(id.Time()), nil
}
