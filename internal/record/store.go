package record

import (
	"context"
	"encoding/json"

	"qrattend/internal/store"
)

// Store owns the persisted attendance collection. All mutations of the
// collection go through it; it serializes the full slice under a single
// key on every write.
type Store struct {
	kv store.KV
}

// NewStore creates a record store over the given KV backend.
func NewStore(kv store.KV) *Store {
	return &Store{kv: kv}
}

// Load returns all persisted records. Absent or unreadable state yields
// an empty slice, never an error: the store recovers silently.
func (s *Store) Load(ctx context.Context) []AttendanceRecord {
	raw, ok, err := s.kv.Get(ctx, store.KeyAttendanceDB)
	if err != nil || !ok {
		return nil
	}
	var recs []AttendanceRecord
	if err := json.Unmarshal([]byte(raw), &recs); err != nil {
		return nil
	}
	return recs
}

// Save overwrites the full collection.
func (s *Store) Save(ctx context.Context, recs []AttendanceRecord) error {
	if recs == nil {
		recs = []AttendanceRecord{}
	}
	raw, err := json.Marshal(recs)
	if err != nil {
		return err
	}
	return s.kv.Set(ctx, store.KeyAttendanceDB, string(raw))
}

// Append adds one record to the collection.
func (s *Store) Append(ctx context.Context, rec AttendanceRecord) error {
	recs := s.Load(ctx)
	return s.Save(ctx, append(recs, rec))
}

// DeleteMatching removes every record satisfying pred and reports how
// many were removed. With a tuple predicate this can remove more than
// one record per logical delete.
func (s *Store) DeleteMatching(ctx context.Context, pred func(AttendanceRecord) bool) (int, error) {
	recs := s.Load(ctx)
	kept := recs[:0]
	removed := 0
	for _, r := range recs {
		if pred(r) {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	if removed == 0 {
		return 0, nil
	}
	return removed, s.Save(ctx, kept)
}

// DeleteByID removes the record with the given id, if present.
func (s *Store) DeleteByID(ctx context.Context, id string) (bool, error) {
	n, err := s.DeleteMatching(ctx, func(r AttendanceRecord) bool { return r.ID == id })
	return n > 0, err
}
