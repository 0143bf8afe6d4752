package contentstore

import (
	"context"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const cacheKeyPrefix = "blob:"

// BadgerCache wraps a Client and keeps downloaded and uploaded artifacts in a
// local badger database. Content addresses are immutable, so entries never
// need invalidation.
type BadgerCache struct {
	Client
	db   *badger.DB
	stop chan struct{}
}

// NewBadgerCache opens (or creates) the badger database at path and wraps client
func NewBadgerCache(client Client, path string) (*BadgerCache, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrap(err, "contentstore: failed to open cache")
	}
	c := &BadgerCache{
		Client: client,
		db:     db,
		stop:   make(chan struct{}),
	}
	go c.runGC()
	return c, nil
}

func (c *BadgerCache) runGC() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			for c.db.RunValueLogGC(0.7) == nil {
			}
		}
	}
}

// Close stops the value log gc and closes the database
func (c *BadgerCache) Close() error {
	close(c.stop)
	return c.db.Close()
}

func cacheKey(address string) []byte {
	return []byte(cacheKeyPrefix + address)
}

func (c *BadgerCache) put(address string, data []byte) {
	err := c.db.Update(
		func(txn *badger.Txn) error {
			return txn.Set(cacheKey(address), data)
		},
	)
	if err != nil {
		log.WithError(err).WithField("address", address).Warn("contentstore: failed to cache artifact")
	}
}

func (c *BadgerCache) get(address string) ([]byte, bool, error) {
	var data []byte
	err := c.db.View(
		func(txn *badger.Txn) error {
			item, err := txn.Get(cacheKey(address))
			if err != nil {
				return err
			}
			data, err = item.ValueCopy(nil)
			return err
		},
	)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, false, nil
		}
		return nil, false, errors.WithStack(err)
	}
	return data, true, nil
}

// Upload implements Client and caches the uploaded bytes under the returned
// address
func (c *BadgerCache) Upload(ctx context.Context, data []byte, filename string) (*UploadResult, error) {
	res, err := c.Client.Upload(ctx, data, filename)
	if err != nil {
		return nil, err
	}
	c.put(res.Address, data)
	return res, nil
}

// Download implements Client. Cached artifacts are served even if the
// storage network is unreachable.
func (c *BadgerCache) Download(ctx context.Context, address string) ([]byte, error) {
	parsed, err := ParseAddress(address)
	if err != nil {
		return nil, err
	}
	address = parsed.String()
	data, ok, err := c.get(address)
	if err != nil {
		log.WithError(err).Warn("contentstore: cache lookup failed")
	}
	if ok {
		return data, nil
	}
	data, err = c.Client.Download(ctx, address)
	if err != nil {
		return nil, err
	}
	c.put(address, data)
	return data, nil
}

// Cached reports the number of cached artifacts
func (c *BadgerCache) Cached() (int, error) {
	n := 0
	err := c.db.View(
		func(txn *badger.Txn) error {
			opts := badger.DefaultIteratorOptions
			opts.PrefetchValues = false
			opts.Prefix = []byte(cacheKeyPrefix)
			it := txn.NewIterator(opts)
			defer it.Close()
			for it.Rewind(); it.Valid(); it.Next() {
				n++
			}
			return nil
		},
	)
	return n, errors.WithStack(err)
}
