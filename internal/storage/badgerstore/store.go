// Package badgerstore implements storage interfaces using an embedded
// Badger database
package badgerstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/sirosfoundation/go-ebics/internal/storage"
)

// Key layout. Trace ordering uses a time index next to the records.
const (
	bankPrefix       = "bank:"
	subscriberPrefix = "subscriber:"
	partnerPrefix    = "partner:"
	tracePrefix      = "trace:"
	traceIndexPrefix = "trace-by-time:"
)

// Store implements storage.Store using Badger
type Store struct {
	db     *badger.DB
	logger *slog.Logger
	now    func() time.Time
}

// Config holds Badger settings
type Config struct {
	Path     string
	InMemory bool
	Logger   *slog.Logger
}

// NewStore opens a Badger database
func NewStore(cfg *Config) (*Store, error) {
	opts := badger.DefaultOptions(cfg.Path).WithLogger(nil)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger database: %w", err)
	}
	return New(db, cfg.Logger), nil
}

// New wraps an open database
func New(db *badger.DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger, now: time.Now}
}

// Close closes the database
func (s *Store) Close(ctx context.Context) error {
	return s.db.Close()
}

// Ping reports whether the database is open
func (s *Store) Ping(ctx context.Context) error {
	if s.db.IsClosed() {
		return errors.New("badger database is closed")
	}
	return nil
}

// BankStore implementation

func bankKey(hostID string) []byte { return []byte(bankPrefix + hostID) }

func (s *Store) SaveBank(ctx context.Context, bank *storage.Bank) error {
	return s.db.Update(func(txn *badger.Txn) error {
		var existing storage.Bank
		err := get(txn, bankKey(bank.HostID), &existing)
		switch {
		case err == nil:
			bank.CreatedAt = existing.CreatedAt
		case errors.Is(err, storage.ErrNotFound):
			bank.CreatedAt = s.now()
		default:
			return err
		}
		bank.UpdatedAt = s.now()
		return set(txn, bankKey(bank.HostID), bank)
	})
}

func (s *Store) GetBank(ctx context.Context, hostID string) (*storage.Bank, error) {
	var bank storage.Bank
	if err := s.db.View(func(txn *badger.Txn) error {
		return get(txn, bankKey(hostID), &bank)
	}); err != nil {
		return nil, err
	}
	return &bank, nil
}

func (s *Store) ListBanks(ctx context.Context) ([]*storage.Bank, error) {
	return list[storage.Bank](s.db, []byte(bankPrefix))
}

// SubscriberStore implementation

func subscriberKey(hostID, partnerID, userID string) []byte {
	return []byte(subscriberPrefix + strings.Join([]string{hostID, partnerID, userID}, ":"))
}

func (s *Store) SaveSubscriber(ctx context.Context, sub *storage.Subscriber) error {
	key := subscriberKey(sub.HostID, sub.PartnerID, sub.UserID)
	return s.db.Update(func(txn *badger.Txn) error {
		var existing storage.Subscriber
		err := get(txn, key, &existing)
		switch {
		case err == nil:
			sub.CreatedAt = existing.CreatedAt
		case errors.Is(err, storage.ErrNotFound):
			sub.CreatedAt = s.now()
		default:
			return err
		}
		sub.UpdatedAt = s.now()
		return set(txn, key, sub)
	})
}

func (s *Store) GetSubscriber(ctx context.Context, hostID, partnerID, userID string) (*storage.Subscriber, error) {
	var sub storage.Subscriber
	if err := s.db.View(func(txn *badger.Txn) error {
		return get(txn, subscriberKey(hostID, partnerID, userID), &sub)
	}); err != nil {
		return nil, err
	}
	return &sub, nil
}

func (s *Store) ListSubscribers(ctx context.Context, hostID string) ([]*storage.Subscriber, error) {
	return list[storage.Subscriber](s.db, []byte(subscriberPrefix+hostID+":"))
}

func (s *Store) DeleteSubscriber(ctx context.Context, hostID, partnerID, userID string) error {
	key := subscriberKey(hostID, partnerID, userID)
	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key); err != nil {
			return notFound(err)
		}
		return txn.Delete(key)
	})
}

// PartnerStore implementation

func partnerKey(hostID, partnerID string) []byte {
	return []byte(partnerPrefix + hostID + ":" + partnerID)
}

func (s *Store) SavePartner(ctx context.Context, partner *storage.Partner) error {
	partner.UpdatedAt = s.now()
	return s.db.Update(func(txn *badger.Txn) error {
		return set(txn, partnerKey(partner.HostID, partner.PartnerID), partner)
	})
}

func (s *Store) GetPartner(ctx context.Context, hostID, partnerID string) (*storage.Partner, error) {
	var partner storage.Partner
	if err := s.db.View(func(txn *badger.Txn) error {
		return get(txn, partnerKey(hostID, partnerID), &partner)
	}); err != nil {
		return nil, err
	}
	return &partner, nil
}

// TraceStore implementation

func traceIndexKey(t *storage.Trace) []byte {
	return []byte(fmt.Sprintf("%s%020d:%s", traceIndexPrefix, t.Time.UnixNano(), t.ID))
}

func (s *Store) AppendTrace(ctx context.Context, t *storage.Trace) error {
	if t.ID == "" {
		return errors.New("trace id is required")
	}
	if t.Time.IsZero() {
		t.Time = s.now()
	}
	t.Size = len(t.Body)
	return s.db.Update(func(txn *badger.Txn) error {
		if err := set(txn, []byte(tracePrefix+t.ID), t); err != nil {
			return err
		}
		return txn.Set(traceIndexKey(t), []byte(t.ID))
	})
}

func (s *Store) GetTrace(ctx context.Context, id string) (*storage.Trace, error) {
	var t storage.Trace
	if err := s.db.View(func(txn *badger.Txn) error {
		return get(txn, []byte(tracePrefix+id), &t)
	}); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Store) ListTraces(ctx context.Context, filter *storage.TraceFilter) ([]*storage.Trace, error) {
	var out []*storage.Trace
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(traceIndexPrefix)
		// reverse iteration starts past the last possible index key
		for it.Seek(append([]byte(traceIndexPrefix), 0xFF)); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			id, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			var t storage.Trace
			if err := get(txn, []byte(tracePrefix+string(id)), &t); err != nil {
				s.logger.Warn("dangling trace index entry", "trace_id", string(id), "error", err)
				continue
			}
			if !filter.Matches(&t) {
				continue
			}
			t.Body = nil
			out = append(out, &t)
			if filter != nil && filter.Limit > 0 && len(out) >= filter.Limit {
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing traces: %w", err)
	}
	return out, nil
}

func get(txn *badger.Txn, key []byte, v any) error {
	item, err := txn.Get(key)
	if err != nil {
		return notFound(err)
	}
	return item.Value(func(data []byte) error {
		return json.Unmarshal(data, v)
	})
}

func set(txn *badger.Txn, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(key, data)
}

func list[T any](db *badger.DB, prefix []byte) ([]*T, error) {
	var out []*T
	err := db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var v T
			if err := it.Item().Value(func(data []byte) error {
				return json.Unmarshal(data, &v)
			}); err != nil {
				return err
			}
			out = append(out, &v)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", strings.TrimSuffix(string(prefix), ":"), err)
	}
	return out, nil
}

func notFound(err error) error {
	if errors.Is(err, badger.ErrKeyNotFound) {
		return storage.ErrNotFound
	}
	return err
}
