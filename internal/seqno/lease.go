package seqno

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidLease is returned when a lease is built from invalid values.
var ErrInvalidLease = errors.New("seqno: invalid retention lease")

// RetentionLease reserves every operation at or above RetainingSeqNo on
// behalf of a replica or follower.
type RetentionLease struct {
	// ID identifies the lease holder.
	ID string `json:"id" yaml:"id"`

	// RetainingSeqNo is the lowest sequence number the holder still needs.
	RetainingSeqNo int64 `json:"retainingSeqNo" yaml:"retainingSeqNo"`

	// Timestamp is when the lease was last renewed (unix milliseconds).
	Timestamp int64 `json:"timestamp" yaml:"timestamp"`

	// Source names the subsystem that created the lease (e.g. "peer recovery").
	Source string `json:"source" yaml:"source"`
}

// NewRetentionLease validates and builds a lease.
func NewRetentionLease(id string, retainingSeqNo, timestamp int64, source string) (RetentionLease, error) {
	switch {
	case id == "":
		return RetentionLease{}, fmt.Errorf("%w: empty id", ErrInvalidLease)
	case retainingSeqNo < 0:
		return RetentionLease{}, fmt.Errorf("%w: retaining sequence number [%d] out of range", ErrInvalidLease, retainingSeqNo)
	case timestamp < 0:
		return RetentionLease{}, fmt.Errorf("%w: timestamp [%d] out of range", ErrInvalidLease, timestamp)
	case source == "":
		return RetentionLease{}, fmt.Errorf("%w: empty source", ErrInvalidLease)
	}
	return RetentionLease{
		ID:             id,
		RetainingSeqNo: retainingSeqNo,
		Timestamp:      timestamp,
		Source:         source,
	}, nil
}

// RetentionLeases is an immutable, versioned collection of leases.
// The zero value is an empty collection.
type RetentionLeases struct {
	primaryTerm int64
	version     int64
	leases      []RetentionLease
	byID        map[string]int
}

// EmptyRetentionLeases is the collection a shard starts with.
var EmptyRetentionLeases = NewRetentionLeases(1, 0, nil)

// NewRetentionLeases copies leases into a new collection. Later leases with a
// duplicate ID replace earlier ones while keeping the first position.
func NewRetentionLeases(primaryTerm, version int64, leases []RetentionLease) RetentionLeases {
	rl := RetentionLeases{
		primaryTerm: primaryTerm,
		version:     version,
		leases:      make([]RetentionLease, 0, len(leases)),
		byID:        make(map[string]int, len(leases)),
	}
	for _, l := range leases {
		if i, ok := rl.byID[l.ID]; ok {
			rl.leases[i] = l
			continue
		}
		rl.byID[l.ID] = len(rl.leases)
		rl.leases = append(rl.leases, l)
	}
	return rl
}

// PrimaryTerm returns the primary term the collection was created under.
func (r RetentionLeases) PrimaryTerm() int64 { return r.primaryTerm }

// Version returns the collection version.
func (r RetentionLeases) Version() int64 { return r.version }

// Len returns the number of leases.
func (r RetentionLeases) Len() int { return len(r.leases) }

// Leases returns a copy of the leases in insertion order.
func (r RetentionLeases) Leases() []RetentionLease {
	out := make([]RetentionLease, len(r.leases))
	copy(out, r.leases)
	return out
}

// Get returns the lease with the given ID.
func (r RetentionLeases) Get(id string) (RetentionLease, bool) {
	i, ok := r.byID[id]
	if !ok {
		return RetentionLease{}, false
	}
	return r.leases[i], true
}

// Contains reports whether a lease with the given ID exists.
func (r RetentionLeases) Contains(id string) bool {
	_, ok := r.byID[id]
	return ok
}

// MinRetainingSeqNo returns the smallest retaining sequence number across all
// leases. ok is false when the collection is empty.
func (r RetentionLeases) MinRetainingSeqNo() (minSeqNo int64, ok bool) {
	if len(r.leases) == 0 {
		return math.MaxInt64, false
	}
	minSeqNo = math.MaxInt64
	for _, l := range r.leases {
		minSeqNo = min(minSeqNo, l.RetainingSeqNo)
	}
	return minSeqNo, true
}

// SupersedesByVersion reports whether r is newer than other.
func (r RetentionLeases) SupersedesByVersion(other RetentionLeases) bool {
	return r.primaryTerm > other.primaryTerm ||
		(r.primaryTerm == other.primaryTerm && r.version > other.version)
}

func (r RetentionLeases) String() string {
	return fmt.Sprintf("RetentionLeases{primaryTerm=%d, version=%d, leases=%v}", r.primaryTerm, r.version, r.leases)
}
