package translog

// Readers are ordered oldest first; the writer is newer than every reader.

// MinGenBySize walks from the writer back through the readers until the
// accumulated size reaches retentionSizeBytes and returns the last generation
// included. A negative retentionSizeBytes disables the bound.
func MinGenBySize(readers []Segment, writer Segment, retentionSizeBytes int64) int64 {
	if retentionSizeBytes < 0 {
		return Unconstrained
	}
	totalSize := writer.SizeInBytes()
	minGen := writer.Generation()
	for i := len(readers) - 1; i >= 0 && totalSize < retentionSizeBytes; i-- {
		totalSize += readers[i].SizeInBytes()
		minGen = readers[i].Generation()
	}
	return minGen
}

// MinGenByAge returns the oldest reader modified within retentionAgeMillis of
// nowMillis, or the writer's generation if every reader is older. A negative
// retentionAgeMillis disables the bound.
func MinGenByAge(readers []Segment, writer Segment, retentionAgeMillis, nowMillis int64) int64 {
	if retentionAgeMillis < 0 {
		return Unconstrained
	}
	for _, r := range readers {
		if nowMillis-r.LastModifiedMillis() <= retentionAgeMillis {
			return r.Generation()
		}
	}
	return writer.Generation()
}

// MinGenByTotalFiles keeps the newest retentionTotalFiles files, counting the
// writer as one, and returns the oldest generation kept.
func MinGenByTotalFiles(readers []Segment, writer Segment, retentionTotalFiles int) int64 {
	minGen := writer.Generation()
	totalFiles := 1
	for i := len(readers) - 1; i >= 0 && totalFiles < retentionTotalFiles; i-- {
		totalFiles++
		minGen = readers[i].Generation()
	}
	return minGen
}
