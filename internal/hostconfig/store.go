package hostconfig

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/holger24/AFD-sub006/internal/hst"
)

var snapshotBucket = []byte("last_known_good")

const snapshotKey = "hosts"

// SnapshotStore persists the last successfully installed host-config
// (Install saves it after every successful reload); nothing in this
// package reads it back to refuse or roll back a reload. Grounded on
// backend/cache's bolt.Open + Update/View use.
type SnapshotStore struct {
	db *bolt.DB
}

// OpenStore opens (creating if needed) the bbolt snapshot database at path.
func OpenStore(path string) (*SnapshotStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("hostconfig: open snapshot store %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(snapshotBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("hostconfig: init snapshot store %s: %w", path, err)
	}
	return &SnapshotStore{db: db}, nil
}

// Close closes the underlying database.
func (s *SnapshotStore) Close() error { return s.db.Close() }

// Save records hosts as the last-known-good config.
func (s *SnapshotStore) Save(hosts []hst.ConfigHost) error {
	encoded, err := json.Marshal(hosts)
	if err != nil {
		return fmt.Errorf("hostconfig: marshal snapshot: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(snapshotBucket).Put([]byte(snapshotKey), encoded)
	})
}

// Load returns the last-known-good config, or ErrNoSnapshot if none
// has ever been saved.
func (s *SnapshotStore) Load() ([]hst.ConfigHost, error) {
	var hosts []hst.ConfigHost
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(snapshotBucket).Get([]byte(snapshotKey))
		if data == nil {
			return ErrNoSnapshot
		}
		return json.Unmarshal(data, &hosts)
	})
	if err != nil {
		return nil, err
	}
	return hosts, nil
}

// ErrNoSnapshot is returned by Load before any Save has happened.
var ErrNoSnapshot = fmt.Errorf("hostconfig: no snapshot saved yet")
