package cplscheme

import (
	"encoding/binary"
	"time"

	"github.com/boltdb/bolt"
	log "github.com/golang/glog"
)

var checkpointBucket = []byte("checkpoints")

// checkpointStore persists, on a best-effort basis, the time window and
// simulation time this participant last completed a checkpoint at. It
// exists so a restarted process can report where the previous run left off;
// the coupling scheme itself never reads it back, since resuming a run is
// the solver's responsibility.
type checkpointStore struct {
	db *bolt.DB
}

// openCheckpointStore opens (creating if needed) a boltdb file at path. A
// failure to open is logged and degrades to a no-op store, matching
// newIterationLog's fallback behavior: checkpoint durability is a
// diagnostic aid, not a correctness requirement for this process's own
// run.
func openCheckpointStore(path string) *checkpointStore {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		log.Warningf("cplscheme: could not open checkpoint store %s: %v", path, err)
		return &checkpointStore{}
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(checkpointBucket)
		return err
	})
	if err != nil {
		log.Warningf("cplscheme: could not initialize checkpoint store %s: %v", path, err)
		db.Close()
		return &checkpointStore{}
	}
	return &checkpointStore{db: db}
}

// record stores the (timeWindow, time) pair most recently confirmed by a
// write-checkpoint action, keyed by participant.
func (s *checkpointStore) record(participant string, timeWindow int, simTime float64) {
	if s.db == nil {
		return
	}
	val := make([]byte, 16)
	binary.BigEndian.PutUint64(val[:8], uint64(timeWindow))
	binary.BigEndian.PutUint64(val[8:], uint64(int64(simTime*1e9)))
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(checkpointBucket).Put([]byte(participant), val)
	})
	if err != nil {
		log.Warningf("cplscheme: could not record checkpoint for %q: %v", participant, err)
	}
}

// Last returns the last recorded (timeWindow, time) for participant, or
// (0, 0, false) if nothing has been recorded yet (fresh store, or the store
// degraded to a no-op at open time).
func (s *checkpointStore) Last(participant string) (timeWindow int, simTime float64, ok bool) {
	if s.db == nil {
		return 0, 0, false
	}
	_ = s.db.View(func(tx *bolt.Tx) error {
		val := tx.Bucket(checkpointBucket).Get([]byte(participant))
		if len(val) != 16 {
			return nil
		}
		timeWindow = int(binary.BigEndian.Uint64(val[:8]))
		simTime = float64(int64(binary.BigEndian.Uint64(val[8:]))) / 1e9
		ok = true
		return nil
	})
	return timeWindow, simTime, ok
}

// Close releases the underlying database file, if one was opened.
func (s *checkpointStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
