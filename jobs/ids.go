package jobs

import (
	"crypto/rand"
	"math/big"
	"strconv"
	"time"
)

// newJobID combines a millisecond timestamp with a random suffix, both
// base36-encoded. The time component keeps ids roughly sortable; the random
// component makes collisions within the same millisecond negligible.
func newJobID() string {
	ts := strconv.FormatInt(time.Now().UnixMilli(), 36)

	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return ts + strconv.FormatInt(time.Now().UnixNano(), 36)
	}

	return ts + new(big.Int).SetBytes(buf).Text(36)
}
