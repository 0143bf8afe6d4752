package main

import (
	"context"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/defensechain/defensechain/cmd/defensechain/config"
	"github.com/defensechain/defensechain/contentstore"
	"github.com/defensechain/defensechain/signing"
	"github.com/defensechain/defensechain/storage/model"
)

// initKeys loads or generates the key material of every signing organization
// so that a misconfiguration fails at startup instead of at anchoring time
func initKeys(c config.SigningConf, kv model.KeyValueStore) (signing.KeyProvider, error) {
	keys := c.NewKeyProvider(kv, c.AutoGenerateKeys)
	for _, org := range c.Organizations.All() {
		if _, err := keys.SigningKey(context.Background(), org); err != nil {
			return nil, errors.WithMessagef(err, "no usable signing key for organization '%s'", org)
		}
	}
	return keys, nil
}

func initContentStore(c config.ContentStoreConf) (contentstore.Client, func(), error) {
	var client contentstore.Client = contentstore.NewKuboClient(c.URL, c.Timeout.Duration())
	if c.CacheDir == "" {
		return client, func() {}, nil
	}
	cache, err := contentstore.NewBadgerCache(client, c.CacheDir)
	if err != nil {
		return nil, nil, err
	}
	log.WithField("dir", c.CacheDir).Info("Loaded content cache")
	closeCache := func() {
		if err := cache.Close(); err != nil {
			log.WithError(err).Error("failed to close content cache")
		}
	}
	return cache, closeCache, nil
}
