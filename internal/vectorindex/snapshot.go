package vectorindex

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/dshills/coderag/pkg/types"
)

// FormatVersion is written into every snapshot header. Snapshots with a
// different major version are rejected.
const FormatVersion = "1.0.0"

var formatConstraint = mustConstraint("^1.0.0")

// ErrCorruptSnapshot is returned when a persisted snapshot cannot be decoded
var ErrCorruptSnapshot = errors.New("corrupt index snapshot")

func mustConstraint(c string) *semver.Constraints {
	constraint, err := semver.NewConstraint(c)
	if err != nil {
		panic(err)
	}
	return constraint
}

type snapshotHeader struct {
	Format    string
	ID        string
	Name      string
	Backend   string
	Dimension int
	Provider  string
	Model     string
	Count     int
	CreatedAt time.Time
	UpdatedAt time.Time
}

type snapshotEntry struct {
	Fragment types.Fragment
	Vector   []byte
}

type snapshotBody struct {
	Entries []snapshotEntry
	State   []byte
}

// encodeSnapshot writes the header and body as two gob values so the header
// can be checked before the body is decoded
func encodeSnapshot(h snapshotHeader, entries []types.Fragment, b Backend) ([]byte, error) {
	state, err := b.MarshalState()
	if err != nil {
		return nil, err
	}

	body := snapshotBody{Entries: make([]snapshotEntry, len(entries)), State: state}
	for i := range entries {
		body.Entries[i] = snapshotEntry{Fragment: entries[i], Vector: serializeVector(b.Vector(i))}
	}

	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	if err := enc.Encode(h); err != nil {
		return nil, fmt.Errorf("failed to encode snapshot header: %w", err)
	}
	if err := enc.Encode(body); err != nil {
		return nil, fmt.Errorf("failed to encode snapshot body: %w", err)
	}
	return buf.Bytes(), nil
}

// decodeSnapshot restores fragments into a fresh backend of the kind named
// in the header
func decodeSnapshot(blob []byte, graph GraphConfig) (snapshotHeader, []types.Fragment, Backend, error) {
	var h snapshotHeader
	dec := gob.NewDecoder(bytes.NewReader(blob))
	if err := dec.Decode(&h); err != nil {
		return h, nil, nil, fmt.Errorf("%w: header: %v", ErrCorruptSnapshot, err)
	}

	v, err := semver.NewVersion(h.Format)
	if err != nil {
		return h, nil, nil, fmt.Errorf("%w: format version %q: %v", ErrCorruptSnapshot, h.Format, err)
	}
	if !formatConstraint.Check(v) {
		return h, nil, nil, fmt.Errorf("%w: snapshot format %s, supported %s",
			types.ErrIncompatibleIndex, h.Format, FormatVersion)
	}

	var body snapshotBody
	if err := dec.Decode(&body); err != nil {
		return h, nil, nil, fmt.Errorf("%w: body: %v", ErrCorruptSnapshot, err)
	}
	if len(body.Entries) != h.Count {
		return h, nil, nil, fmt.Errorf("%w: header count %d, %d entries",
			ErrCorruptSnapshot, h.Count, len(body.Entries))
	}

	fragments := make([]types.Fragment, len(body.Entries))
	vectors := make([][]float32, len(body.Entries))
	for i, e := range body.Entries {
		vec, err := deserializeVector(e.Vector)
		if err != nil {
			return h, nil, nil, fmt.Errorf("%w: entry %d: %v", ErrCorruptSnapshot, i, err)
		}
		if len(vec) != h.Dimension {
			return h, nil, nil, fmt.Errorf("%w: entry %d has dimension %d, header %d",
				ErrCorruptSnapshot, i, len(vec), h.Dimension)
		}
		fragments[i] = e.Fragment
		vectors[i] = vec
	}

	backend, err := NewBackend(h.Backend, graph)
	if err != nil {
		return h, nil, nil, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}
	if err := backend.Restore(vectors, body.State); err != nil {
		return h, nil, nil, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}
	return h, fragments, backend, nil
}
