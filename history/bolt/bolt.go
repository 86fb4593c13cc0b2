// Package bolt is a history.Store backed by go.etcd.io/bbolt.
//
// Records live in one bucket keyed by received time and goal id, so a
// cursor walks them in order.  A second bucket maps goal ids to those
// keys.
package bolt

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/Comcast/keyframer/history"

	bolt "go.etcd.io/bbolt"
)

var (
	goalsBucket = []byte("goals")
	idsBucket   = []byte("ids")

	NotOpen = errors.New("storage not open")
)

type Storage struct {
	Debug    bool
	filename string
	db       *bolt.DB
}

func NewStorage(filename string) (*Storage, error) {
	return &Storage{
		filename: filename,
	}, nil
}

func (s *Storage) Open(ctx context.Context) error {
	opts := &bolt.Options{
		Timeout: time.Second,
	}

	db, err := bolt.Open(s.filename, 0644, opts)
	if err != nil {
		return err
	}
	s.db = db

	return s.db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(goalsBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(idsBucket)
		return err
	})
}

func (s *Storage) Close(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *Storage) logf(format string, args ...interface{}) {
	if s.Debug {
		log.Printf("BoltDB Storage."+format, args...)
	}
}

// key orders records by received time.  RFC3339 with a fixed number
// of fractional digits sorts lexically.
func key(r *history.Record) []byte {
	return []byte(r.Received.UTC().Format("2006-01-02T15:04:05.000000000Z") + "/" + r.Id)
}

func (s *Storage) Write(ctx context.Context, r *history.Record) error {
	if s.db == nil {
		return NotOpen
	}

	js, err := json.Marshal(r)
	if err != nil {
		return err
	}
	s.logf("Write %s", js)

	return s.db.Update(func(tx *bolt.Tx) error {
		var (
			goals = tx.Bucket(goalsBucket)
			ids   = tx.Bucket(idsBucket)
			k     = key(r)
		)
		if old := ids.Get([]byte(r.Id)); old != nil {
			if err := goals.Delete(old); err != nil {
				return err
			}
		}
		if err := goals.Put(k, js); err != nil {
			return err
		}
		return ids.Put([]byte(r.Id), k)
	})
}

func (s *Storage) Get(ctx context.Context, id string) (*history.Record, error) {
	s.logf("Get %s", id)
	if s.db == nil {
		return nil, NotOpen
	}

	var r *history.Record
	err := s.db.View(func(tx *bolt.Tx) error {
		k := tx.Bucket(idsBucket).Get([]byte(id))
		if k == nil {
			return history.NotFound
		}
		js := tx.Bucket(goalsBucket).Get(k)
		if js == nil {
			return history.NotFound
		}
		r = &history.Record{}
		return json.Unmarshal(js, r)
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Storage) List(ctx context.Context, limit int) ([]*history.Record, error) {
	s.logf("List %d", limit)
	if s.db == nil {
		return nil, NotOpen
	}

	acc := make([]*history.Record, 0, 32)
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(goalsBucket).Cursor()
		for k, js := c.Last(); k != nil; k, js = c.Prev() {
			if 0 < limit && limit <= len(acc) {
				break
			}
			var r history.Record
			if err := json.Unmarshal(js, &r); err != nil {
				return err
			}
			acc = append(acc, &r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logf("List found %d records", len(acc))

	return acc, nil
}
