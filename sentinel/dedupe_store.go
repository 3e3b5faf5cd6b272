package sentinel

import (
	"encoding/binary"
	"time"

	"github.com/cockroachdb/pebble"
)

// DedupeStore persists the alert deduplication window in a pebble
// key-value store so a restart does not immediately re-fire every alert
// still inside its suppression window (§5.2, supplemented: the
// distilled spec left dedupe state in-memory only).
type DedupeStore struct {
	db *pebble.DB
}

// OpenDedupeStore opens (creating if absent) a pebble database at dir.
func OpenDedupeStore(dir string) (*DedupeStore, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, newErr(ErrSinkUnavailable, err)
	}
	return &DedupeStore{db: db}, nil
}

func (s *DedupeStore) Close() error {
	return s.db.Close()
}

func dedupeStoreKey(k dedupeKey) []byte {
	buf := make([]byte, 20+4)
	copy(buf, k.contract[:])
	binary.BigEndian.PutUint32(buf[20:], uint32(k.pattern))
	return buf
}

// SeenRecently reports whether key was recorded within window.
func (s *DedupeStore) SeenRecently(k dedupeKey, window time.Duration) (bool, error) {
	v, closer, err := s.db.Get(dedupeStoreKey(k))
	if err == pebble.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	defer closer.Close()
	ts := int64(binary.BigEndian.Uint64(v))
	seenAt := time.Unix(0, ts)
	return time.Since(seenAt) < window, nil
}

// Record stores the observation time for key.
func (s *DedupeStore) Record(k dedupeKey, at time.Time) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(at.UnixNano()))
	return s.db.Set(dedupeStoreKey(k), buf, pebble.Sync)
}

// Compact drops entries older than window from the durable store,
// called periodically by SentinelService alongside the in-memory Sweep.
func (s *DedupeStore) Compact(window time.Duration) error {
	iter, err := s.db.NewIter(nil)
	if err != nil {
		return err
	}
	defer iter.Close()

	var stale [][]byte
	for iter.First(); iter.Valid(); iter.Next() {
		v := iter.Value()
		ts := int64(binary.BigEndian.Uint64(v))
		if time.Since(time.Unix(0, ts)) > window {
			k := append([]byte(nil), iter.Key()...)
			stale = append(stale, k)
		}
	}
	batch := s.db.NewBatch()
	defer batch.Close()
	for _, k := range stale {
		if err := batch.Delete(k, nil); err != nil {
			return err
		}
	}
	return batch.Commit(pebble.Sync)
}
