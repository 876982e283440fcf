// Package storage - Serialization helpers for run records.
package storage

import (
	"bytes"
	"encoding/gob"
	"fmt"
)

// serializeRun converts a RunRecord to gob bytes.
// gob keeps uint64 candidates and durations exact, unlike JSON.
func serializeRun(r *RunRecord) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(r); err != nil {
		return nil, fmt.Errorf("encoding run: %w", err)
	}
	return buf.Bytes(), nil
}

// deserializeRun converts gob bytes back to a RunRecord.
func deserializeRun(data []byte) (*RunRecord, error) {
	var r RunRecord
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&r); err != nil {
		return nil, fmt.Errorf("decoding run: %w", err)
	}
	return &r, nil
}

// summary drops the matches, which Runs does not return.
func summary(r *RunRecord) *RunRecord {
	s := *r
	s.Matches = nil
	return &s
}
