// Package snapshot persists trained surrogate models as versioned, compressed XDR records.
package snapshot

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	xdr "github.com/davecgh/go-xdr/xdr2"
	"github.com/google/uuid"
	"github.com/ulikunitz/xz"

	"github.com/go-sod/surrogate/internal/learner/ensemble"
	"github.com/go-sod/surrogate/internal/schema"
	"github.com/go-sod/surrogate/internal/surrogate"
)

const version = 1

var ErrVersion = errors.New("snapshot: unsupported version")

// Snapshot is a trained model together with how it was obtained.
type Snapshot struct {
	ID        uuid.UUID
	Schema    schema.Kind
	CreatedAt time.Time
	// committee size and attempts spent building it
	Members  int
	Attempts int
	// ground truth rows the model was trained on
	Rows  int
	Model surrogate.State
}

func New(model *surrogate.Model, res *ensemble.Result, rows int, createdAt time.Time) (Snapshot, error) {
	st, err := model.State()
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot state: %w", err)
	}
	return Snapshot{
		ID:        uuid.New(),
		Schema:    st.Kind,
		CreatedAt: createdAt,
		Members:   model.Members(),
		Attempts:  res.Attempts,
		Rows:      rows,
		Model:     st,
	}, nil
}

// Restore rebuilds the model held by the snapshot.
func (s Snapshot) Restore() (*surrogate.Model, error) {
	return surrogate.FromState(s.Model)
}

type record struct {
	Version   uint32
	ID        uuid.UUID
	Schema    schema.Kind
	CreatedAt int64
	Members   uint32
	Attempts  uint32
	Rows      uint32
	Model     surrogate.State
}

func Encode(w io.Writer, s Snapshot) error {
	rec := record{
		Version:   version,
		ID:        s.ID,
		Schema:    s.Schema,
		CreatedAt: s.CreatedAt.UnixNano(),
		Members:   uint32(s.Members),
		Attempts:  uint32(s.Attempts),
		Rows:      uint32(s.Rows),
		Model:     s.Model,
	}
	return encodeRecord(w, &rec)
}

func encodeRecord(w io.Writer, rec *record) error {
	zw, err := xz.NewWriter(w)
	if err != nil {
		return fmt.Errorf("snapshot compressor: %w", err)
	}
	if _, err := xdr.Marshal(zw, rec); err != nil {
		return fmt.Errorf("snapshot encode: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("snapshot compressor: %w", err)
	}
	return nil
}

func Decode(r io.Reader) (Snapshot, error) {
	zr, err := xz.NewReader(r)
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot decompressor: %w", err)
	}
	var rec record
	if _, err := xdr.Unmarshal(zr, &rec); err != nil {
		return Snapshot{}, fmt.Errorf("snapshot decode: %w", err)
	}
	if rec.Version != version {
		return Snapshot{}, fmt.Errorf("%w: %d", ErrVersion, rec.Version)
	}
	return Snapshot{
		ID:        rec.ID,
		Schema:    rec.Schema,
		CreatedAt: time.Unix(0, rec.CreatedAt).UTC(),
		Members:   int(rec.Members),
		Attempts:  int(rec.Attempts),
		Rows:      int(rec.Rows),
		Model:     rec.Model,
	}, nil
}

func Marshal(s Snapshot) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, s); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func Unmarshal(data []byte) (Snapshot, error) {
	return Decode(bytes.NewReader(data))
}
