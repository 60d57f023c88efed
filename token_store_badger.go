package networking

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"
)

const tokenKeyPrefix = "token/"

// BadgerStoreConfig configures a BadgerTokenStore.
type BadgerStoreConfig struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path     string
	InMemory bool
	Logger   *logrus.Logger
}

// BadgerTokenStore persists tokens in a badger database so they survive
// restarts. Token expiry is enforced through badger TTLs.
type BadgerTokenStore struct {
	db  *badger.DB
	log *logrus.Logger
	now func() time.Time
}

// NewBadgerTokenStore opens the database described by config.
func NewBadgerTokenStore(config BadgerStoreConfig) (*BadgerTokenStore, error) {
	if config.Logger == nil {
		config.Logger = logrus.New()
	}
	if config.Path == "" && !config.InMemory {
		return nil, errors.New("badger token store: path is required")
	}

	var opts badger.Options
	if config.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(config.Path)
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("error opening badger token store: %w", err)
	}

	return &BadgerTokenStore{db: db, log: config.Logger, now: time.Now}, nil
}

func tokenKey(name string) []byte {
	return []byte(tokenKeyPrefix + name)
}

// Get implements TokenStore.
func (s *BadgerTokenStore) Get(name string) (*Token, bool) {
	var raw []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(tokenKey(name))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if !errors.Is(err, badger.ErrKeyNotFound) {
			s.log.WithError(err).WithField("token", name).Warn("failed to read token")
		}
		return nil, false
	}

	var tok Token
	if err := json.Unmarshal(raw, &tok); err != nil {
		s.log.WithError(err).WithField("token", name).Warn("discarding corrupt token")
		s.Delete(name)
		return nil, false
	}
	if tok.Expired(s.now()) {
		return nil, false
	}
	return &tok, true
}

// Set implements TokenStore. Tokens already past expiry are not stored.
func (s *BadgerTokenStore) Set(token *Token) {
	if token == nil {
		return
	}
	raw, err := json.Marshal(token)
	if err != nil {
		s.log.WithError(err).WithField("token", token.Name).Error("failed to encode token")
		return
	}

	entry := badger.NewEntry(tokenKey(token.Name), raw)
	if !token.ExpiresAt.IsZero() {
		ttl := token.ExpiresAt.Sub(s.now())
		if ttl <= 0 {
			s.Delete(token.Name)
			return
		}
		entry = entry.WithTTL(ttl)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(entry)
	})
	if err != nil {
		s.log.WithError(err).WithField("token", token.Name).Error("failed to store token")
	}
}

// Delete implements TokenStore.
func (s *BadgerTokenStore) Delete(name string) {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(tokenKey(name))
	})
	if err != nil {
		s.log.WithError(err).WithField("token", name).Error("failed to delete token")
	}
}

// Clear implements TokenStore.
func (s *BadgerTokenStore) Clear() {
	if err := s.db.DropPrefix([]byte(tokenKeyPrefix)); err != nil {
		s.log.WithError(err).Error("failed to clear tokens")
	}
}

// Close closes the underlying database.
func (s *BadgerTokenStore) Close() error {
	return s.db.Close()
}
