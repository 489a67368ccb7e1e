// Package joblog keeps a persistent history of print jobs in a bbolt
// database under the home folder.
package joblog

import (
	"bytes"
	"encoding/gob"
	"path"
	"time"

	"github.com/usbhost/printerbridge/utils"
	"go.etcd.io/bbolt"
)

const DBPath = "db"

var jobsBucket = []byte("jobs")

// Entry records the outcome of a single print job.
type Entry struct {
	Time   time.Time
	Bytes  int
	Status string
	Err    string
}

type Log struct {
	db *bbolt.DB
}

func DefaultPath() string {
	return path.Join(utils.GetSubFolder(DBPath), "jobs.db")
}

func Open(dbPath string) (*Log, error) {
	db, err := bbolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(jobsBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Log{db: db}, nil
}

func (l *Log) Record(entry Entry) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&entry); err != nil {
		return err
	}
	return l.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(jobsBucket).Put(utils.TimeToBytes(entry.Time), buf.Bytes())
	})
}

// Recent returns up to count entries, newest first.
func (l *Log) Recent(count int) ([]Entry, error) {
	var entries []Entry
	err := l.db.View(func(tx *bbolt.Tx) error {
		cursor := tx.Bucket(jobsBucket).Cursor()
		for key, value := cursor.Last(); key != nil && len(entries) < count; key, value = cursor.Prev() {
			var entry Entry
			if err := gob.NewDecoder(bytes.NewReader(value)).Decode(&entry); err != nil {
				return err
			}
			entries = append(entries, entry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (l *Log) Close() error {
	return l.db.Close()
}
