package session

import (
	"crypto/rand"
	"encoding/hex"
	"strconv"
	"time"
)

// NewToken returns an ephemeral per-process session token: wall-clock
// milliseconds plus a short random suffix. It is a staleness heuristic,
// not a correctness mechanism, so collisions across simultaneous starts
// are tolerable.
func NewToken() string {
	return strconv.FormatInt(time.Now().UnixMilli(), 10) + "-" + randSuffix(3)
}

func randSuffix(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "000000"[:n*2]
	}
	return hex.EncodeToString(b)
}
