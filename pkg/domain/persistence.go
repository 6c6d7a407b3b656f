package domain

import (
	"context"
	"encoding/json"
	"fmt"
)

// Snapshot is the persisted subset of configuration state. The patch queue
// is session scoped and never part of a snapshot.
type Snapshot struct {
	Hierarchy    Hierarchy     `json:"hierarchy"`
	Parameters   []Parameter   `json:"parameters"`
	Calculations []Calculation `json:"calculations"`
	CurrentStep  int           `json:"currentStep"`
}

// Clone returns a deep copy of s.
func (s Snapshot) Clone() Snapshot {
	return Snapshot{
		Hierarchy:    s.Hierarchy,
		Parameters:   CloneParameters(s.Parameters),
		Calculations: CloneCalculations(s.Calculations),
		CurrentStep:  s.CurrentStep,
	}
}

// SnapshotStore is a minimal abstraction over durable backends: load once at
// startup, save after every successful mutation.
type SnapshotStore interface {
	// Load returns the stored snapshot. found is false when nothing has been
	// saved yet.
	Load(ctx context.Context) (snapshot Snapshot, found bool, err error)
	Save(ctx context.Context, snapshot Snapshot) error
	Close() error
}

// Snapshot bucket names used by the keyed state table of the SQL backends.
const (
	BucketHierarchy    = "hierarchy"
	BucketParameters   = "parameters"
	BucketCalculations = "calculations"
	BucketCurrentStep  = "current_step"
)

// SnapshotBuckets lists the buckets in write order.
var SnapshotBuckets = []string{BucketHierarchy, BucketParameters, BucketCalculations, BucketCurrentStep}

// EncodeBuckets splits s into one JSON payload per bucket.
func (s Snapshot) EncodeBuckets() (map[string][]byte, error) {
	out := make(map[string][]byte, len(SnapshotBuckets))
	for _, bucket := range SnapshotBuckets {
		var (
			data []byte
			err  error
		)
		switch bucket {
		case BucketHierarchy:
			data, err = json.Marshal(s.Hierarchy)
		case BucketParameters:
			data, err = json.Marshal(nonNilParameters(s.Parameters))
		case BucketCalculations:
			data, err = json.Marshal(nonNilCalculations(s.Calculations))
		case BucketCurrentStep:
			data, err = json.Marshal(s.CurrentStep)
		}
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", bucket, err)
		}
		out[bucket] = data
	}
	return out, nil
}

// DecodeBuckets rebuilds a snapshot from bucket payloads. Unknown buckets
// are ignored and missing ones leave the zero value.
func DecodeBuckets(payloads map[string][]byte) (Snapshot, error) {
	var s Snapshot
	for bucket, data := range payloads {
		if len(data) == 0 {
			continue
		}
		var target any
		switch bucket {
		case BucketHierarchy:
			target = &s.Hierarchy
		case BucketParameters:
			target = &s.Parameters
		case BucketCalculations:
			target = &s.Calculations
		case BucketCurrentStep:
			target = &s.CurrentStep
		default:
			continue
		}
		if err := json.Unmarshal(data, target); err != nil {
			return Snapshot{}, fmt.Errorf("decode %s: %w", bucket, err)
		}
	}
	return s, nil
}

func nonNilParameters(in []Parameter) []Parameter {
	if in == nil {
		return []Parameter{}
	}
	return in
}

func nonNilCalculations(in []Calculation) []Calculation {
	if in == nil {
		return []Calculation{}
	}
	return in
}
