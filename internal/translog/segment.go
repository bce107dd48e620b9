// Package translog decides which WAL (translog) generations must survive.
//
// The deletion policy combines three admin bounds with the generation locks
// held by snapshots and recoveries:
//
//   - size: keep the newest generations until retention.size bytes are covered
//   - age: keep every generation modified within retention.age
//   - total files: keep the newest retention.total_files files, writer included
//   - locks: never drop a generation pinned by an open lock
//
// Each admin bound retains history on its own, so the configured floor is the
// minimum of the bounds. Disabled bounds report Unconstrained and drop out of
// the minimum. Generations below the result may be deleted.
package translog

import "math"

// Unconstrained is returned by a bound that imposes no constraint. It is the
// neutral element of a minimum over bounds.
const Unconstrained int64 = math.MaxInt64

// Segment describes one translog file: a closed reader or the active writer.
type Segment interface {
	// Generation returns the segment's generation id.
	Generation() int64
	// SizeInBytes returns the file size.
	SizeInBytes() int64
	// LastModifiedMillis returns the last modification time in unix milliseconds.
	LastModifiedMillis() int64
}

// SegmentInfo is a value implementation of Segment.
type SegmentInfo struct {
	Gen            int64 `json:"generation" yaml:"generation"`
	Size           int64 `json:"sizeInBytes" yaml:"sizeInBytes"`
	ModifiedMillis int64 `json:"lastModifiedMillis" yaml:"lastModifiedMillis"`
}

// Generation returns s.Gen.
func (s SegmentInfo) Generation() int64 { return s.Gen }

// SizeInBytes returns s.Size.
func (s SegmentInfo) SizeInBytes() int64 { return s.Size }

// LastModifiedMillis returns s.ModifiedMillis.
func (s SegmentInfo) LastModifiedMillis() int64 { return s.ModifiedMillis }

// Segments converts value descriptors into the slice shape the policy takes.
func Segments(infos []SegmentInfo) []Segment {
	out := make([]Segment, len(infos))
	for i := range infos {
		out[i] = infos[i]
	}
	return out
}
