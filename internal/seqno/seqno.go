// Package seqno holds sequence-number sentinels, retention leases, and the
// range query handed to merge policies for soft-deleted documents.
package seqno

import (
	"fmt"
	"math"
)

const (
	// NoOpsPerformed is the checkpoint of a shard that has not processed any
	// operation yet.
	NoOpsPerformed int64 = -1

	// UnassignedSeqNo marks an operation that has not been given a sequence
	// number.
	UnassignedSeqNo int64 = -2

	// MaxSeqNo is the largest representable sequence number.
	MaxSeqNo int64 = math.MaxInt64
)

// RangeQuery selects sequence numbers in [Min, Max], both ends inclusive.
// Documents outside the range are eligible for purging.
type RangeQuery struct {
	Field string `json:"field"`
	Min   int64  `json:"min"`
	Max   int64  `json:"max"`
}

// Matches reports whether seqNo is retained by the query.
func (q RangeQuery) Matches(seqNo int64) bool {
	return seqNo >= q.Min && seqNo <= q.Max
}

func (q RangeQuery) String() string {
	return fmt.Sprintf("%s:[%d TO %d]", q.Field, q.Min, q.Max)
}

// AddSaturating returns a+b clamped to the int64 range.
func AddSaturating(a, b int64) int64 {
	c := a + b
	if b > 0 && c < a {
		return math.MaxInt64
	}
	if b < 0 && c > a {
		return math.MinInt64
	}
	return c
}

// SubSaturating returns a-b clamped to the int64 range.
func SubSaturating(a, b int64) int64 {
	if b == math.MinInt64 {
		if a >= 0 {
			return math.MaxInt64
		}
		return a - b
	}
	return AddSaturating(a, -b)
}
