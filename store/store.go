// Package store persists replicas in a bbolt database, one record per replica holding
// its counter and encoded operation log.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"quilt/packages/communication"
	"quilt/packages/replica"

	bolt "go.etcd.io/bbolt"
)

// ErrNotFound is returned when no replica is stored under an id.
var ErrNotFound = errors.New("replica not found")

const DefaultBucket = "replicas"

type record struct {
	ID      communication.ReplicaID `json:"id"`
	Counter uint64                  `json:"counter"`
	Log     json.RawMessage         `json:"log"`
}

type Store struct {
	db     *bolt.DB
	bucket []byte
	logger *log.Logger
}

// Open opens (creating if needed) the database at path
func Open(path, bucket string, logger *log.Logger) (*Store, error) {
	if bucket == "" {
		bucket = DefaultBucket
	}
	if logger == nil {
		logger = log.Default()
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create bucket %s: %w", bucket, err)
	}
	return &Store{db: db, bucket: []byte(bucket), logger: logger}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Save writes the replica's counter and log, replacing any previous record
func (s *Store) Save(r *replica.Replica) error {
	ops, err := communication.EncodeLog(r.Log())
	if err != nil {
		return err
	}
	data, err := json.Marshal(record{ID: r.GetID(), Counter: r.Counter(), Log: ops})
	if err != nil {
		return fmt.Errorf("encode replica %s: %w", r.GetID(), err)
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).Put([]byte(r.GetID()), data)
	})
	if err != nil {
		return fmt.Errorf("save replica %s: %w", r.GetID(), err)
	}
	s.logger.Println("[ STORE ] SAVED", r.GetID(), "with", r.OperationLog().Len(), "operations")
	return nil
}

// Load rebuilds a stored replica
func (s *Store) Load(id communication.ReplicaID, opts ...replica.Option) (*replica.Replica, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(s.bucket).Get([]byte(id))
		if v == nil {
			return fmt.Errorf("load %s: %w", id, ErrNotFound)
		}
		data = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode replica %s: %w", id, err)
	}
	ops, err := communication.DecodeLog(rec.Log)
	if err != nil {
		return nil, fmt.Errorf("decode replica %s: %w", id, err)
	}
	s.logger.Println("[ STORE ] LOADED", id, "with", len(ops), "operations")
	return replica.Restore(rec.ID, rec.Counter, ops, opts...), nil
}

// List returns the ids of all stored replicas in key order
func (s *Store) List() ([]communication.ReplicaID, error) {
	var ids []communication.ReplicaID
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).ForEach(func(k, _ []byte) error {
			ids = append(ids, communication.ReplicaID(k))
			return nil
		})
	})
	return ids, err
}

// Delete removes a stored replica; deleting a missing id is not an error
func (s *Store) Delete(id communication.ReplicaID) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).Delete([]byte(id))
	})
}
