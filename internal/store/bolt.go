package store

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketControllers = []byte("controllers")
	bucketScans       = []byte("scans")
)

// maxScans bounds the scan history kept on disk.
const maxScans = 500

// BoltStore implements Store using BoltDB.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens or creates a BoltDB database.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	// Create buckets
	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketControllers, bucketScans} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) SaveController(c *Controller) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return putJSON(tx, bucketControllers, c.Address, c)
	})
}

func (s *BoltStore) GetController(addr string) (*Controller, error) {
	var c Controller
	err := s.db.View(func(tx *bolt.Tx) error {
		return getJSON(tx, bucketControllers, addr, &c)
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *BoltStore) DeleteController(addr string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketControllers)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketControllers)
		}
		return b.Delete([]byte(addr))
	})
}

func (s *BoltStore) ListControllers() ([]*Controller, error) {
	var list []*Controller
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketControllers)
		if b == nil {
			return nil // no bucket = no controllers
		}
		list = make([]*Controller, 0, b.Stats().KeyN)
		return b.ForEach(func(k, v []byte) error {
			var c Controller
			if err := json.Unmarshal(v, &c); err != nil {
				return err
			}
			list = append(list, &c)
			return nil
		})
	})
	return list, err
}

func (s *BoltStore) UpdateController(addr string, fn func(c *Controller) error) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		var c Controller
		if err := getJSON(tx, bucketControllers, addr, &c); err != nil {
			return err
		}
		if err := fn(&c); err != nil {
			return err
		}
		c.Address = addr
		return putJSON(tx, bucketControllers, addr, &c)
	})
}

// SaveScan stores rec and drops the oldest records beyond maxScans.
func (s *BoltStore) SaveScan(rec *ScanRecord) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := putJSON(tx, bucketScans, rec.ID, rec); err != nil {
			return err
		}
		c := tx.Bucket(bucketScans).Cursor()
		n := 0
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			n++
		}
		for ; n > maxScans; n-- {
			if k, _ := c.First(); k == nil {
				break
			}
			if err := c.Delete(); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListScans returns up to limit records, newest first. limit <= 0 means all.
func (s *BoltStore) ListScans(limit int) ([]*ScanRecord, error) {
	var list []*ScanRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketScans)
		if b == nil {
			return nil
		}
		c := b.Cursor()
		// IDs are UUIDv7, so key order is start-time order.
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(list) >= limit {
				break
			}
			var rec ScanRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			list = append(list, &rec)
		}
		return nil
	})
	return list, err
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func putJSON(tx *bolt.Tx, bucket []byte, key string, v any) error {
	b := tx.Bucket(bucket)
	if b == nil {
		return fmt.Errorf("bucket %q not found", bucket)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Put([]byte(key), data)
}

func getJSON(tx *bolt.Tx, bucket []byte, key string, v any) error {
	b := tx.Bucket(bucket)
	if b == nil {
		return fmt.Errorf("bucket %q not found", bucket)
	}
	data := b.Get([]byte(key))
	if data == nil {
		return fmt.Errorf("%s %s: %w", bucket, key, ErrNotFound)
	}
	return json.Unmarshal(data, v)
}
