// Package docstore is a path-addressed JSON document store with live
// subscriptions. Records live under "collection/key"; every successful write
// announces the touched path so subscribers re-read.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/angelmondragon/nursecall-backend/pkg/db/models"
	"github.com/angelmondragon/nursecall-backend/pkg/logger"
	"github.com/angelmondragon/nursecall-backend/pkg/metrics"
	"github.com/angelmondragon/nursecall-backend/pkg/notify"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const defaultChannel = "docstore"

// Options configures a Store.
type Options struct {
	Notifier notify.Notifier
	Channel  string
	Logger   *logger.Logger
	Metrics  *metrics.StoreMetrics
	Clock    func() time.Time
}

// Store reads and writes documents through GORM.
type Store struct {
	db       *gorm.DB
	notifier notify.Notifier
	channel  string
	logg     *logger.Logger
	metrics  *metrics.StoreMetrics
	now      func() time.Time
	newKey   func() (string, error)
}

type change struct {
	Collection string `json:"collection"`
	Key        string `json:"key,omitempty"`
	Op         string `json:"op"`
}

// New builds a Store. A nil notifier falls back to an in-process hub.
func New(db *gorm.DB, opts Options) (*Store, error) {
	if db == nil {
		return nil, errors.New("gorm db is required")
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.NewLocal()
	}
	if opts.Channel == "" {
		opts.Channel = defaultChannel
	}
	if opts.Logger == nil {
		opts.Logger = logger.New(logger.Options{ServiceName: "docstore", Output: io.Discard})
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Store{
		db:       db,
		notifier: opts.Notifier,
		channel:  opts.Channel,
		logg:     opts.Logger,
		metrics:  opts.Metrics,
		now:      opts.Clock,
		newKey:   newKey,
	}, nil
}

// newKey returns a time-ordered key so key order follows creation order.
func newKey() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}
	return id.String(), nil
}

// Push appends rec under collection and returns the generated key.
func (s *Store) Push(ctx context.Context, collection string, rec Record) (string, error) {
	started := time.Now()
	p, err := ParsePath(collection)
	if err != nil {
		return "", err
	}
	if p.IsRecord() {
		return "", fmt.Errorf("push %s: %w", collection, ErrNotCollection)
	}
	resolved := resolve(rec, s.now(), false)
	if len(resolved) == 0 {
		return "", fmt.Errorf("push %s: %w", collection, ErrEmptyRecord)
	}
	data, err := encode(resolved)
	if err != nil {
		return "", err
	}
	key, err := s.newKey()
	if err != nil {
		return "", err
	}

	doc := models.Document{Collection: p.Collection, Key: key, Data: data}
	err = s.db.WithContext(ctx).Create(&doc).Error
	s.metrics.ObserveCommand(p.Collection, "push", started, err)
	if err != nil {
		return "", fmt.Errorf("push %s: %w", collection, err)
	}
	s.announce(ctx, change{Collection: p.Collection, Key: key, Op: "push"})
	return key, nil
}

// Set replaces the record at path. An empty record removes it.
func (s *Store) Set(ctx context.Context, path string, rec Record) error {
	started := time.Now()
	p, err := s.recordPath(path)
	if err != nil {
		return err
	}
	resolved := resolve(rec, s.now(), false)
	if len(resolved) == 0 {
		return s.Remove(ctx, path)
	}
	data, err := encode(resolved)
	if err != nil {
		return err
	}
	err = upsert(s.db.WithContext(ctx), p, data)
	s.metrics.ObserveCommand(p.Collection, "set", started, err)
	if err != nil {
		return fmt.Errorf("set %s: %w", path, err)
	}
	s.announce(ctx, change{Collection: p.Collection, Key: p.Key, Op: "set"})
	return nil
}

// Update merges patch into the record at path. Omitted fields are left alone
// and nil values delete fields. A missing record is created from the patch.
// The record row is locked for the read-modify-write, so concurrent updates
// to different fields both land.
func (s *Store) Update(ctx context.Context, path string, patch Record) error {
	return s.update(ctx, path, patch, false, nil)
}

// Guard inspects the stored record inside an update and vetoes the write by
// returning an error.
type Guard func(current Record) error

// UpdateExisting is Update for a record that must already exist: a missing
// record reports ErrNotFound instead of being recreated. A non-nil guard runs
// against the stored record in the same transaction as the write; its error
// aborts the update and is returned wrapped.
func (s *Store) UpdateExisting(ctx context.Context, path string, patch Record, guard Guard) error {
	return s.update(ctx, path, patch, true, guard)
}

func (s *Store) update(ctx context.Context, path string, patch Record, mustExist bool, guard Guard) error {
	started := time.Now()
	p, err := s.recordPath(path)
	if err != nil {
		return err
	}
	if len(patch) == 0 && !mustExist && guard == nil {
		return nil
	}
	resolved := resolve(patch, s.now(), true)

	removed := false
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, found, err := lockRecord(tx, p)
		if err != nil {
			return err
		}
		if mustExist && !found {
			return ErrNotFound
		}
		if guard != nil {
			if err := guard(current); err != nil {
				return err
			}
		}
		if err := applyPatch(current, resolved); err != nil {
			return err
		}
		if len(current) == 0 {
			removed = true
			return deleteRecord(tx, p)
		}
		data, err := encode(current)
		if err != nil {
			return err
		}
		return upsert(tx, p, data)
	})
	s.metrics.ObserveCommand(p.Collection, "update", started, err)
	if err != nil {
		return fmt.Errorf("update %s: %w", path, err)
	}
	op := "update"
	if removed {
		op = "remove"
	}
	s.announce(ctx, change{Collection: p.Collection, Key: p.Key, Op: op})
	return nil
}

// lockRecord reads the record at p for update.
func lockRecord(tx *gorm.DB, p Path) (Record, bool, error) {
	var doc models.Document
	err := forUpdate(tx, p).Take(&doc).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return Record{}, false, nil
	case err != nil:
		return nil, false, err
	}
	current, err := decode(doc.Data)
	if err != nil {
		return nil, false, err
	}
	if current == nil {
		current = Record{}
	}
	return current, true, nil
}

// Remove deletes the record or the whole collection at path. Removing missing
// data is not an error.
func (s *Store) Remove(ctx context.Context, path string) error {
	started := time.Now()
	p, err := ParsePath(path)
	if err != nil {
		return err
	}
	db := s.db.WithContext(ctx)
	if p.IsRecord() {
		err = deleteRecord(db, p)
	} else {
		err = db.Where(map[string]any{"collection": p.Collection}).Delete(&models.Document{}).Error
	}
	s.metrics.ObserveCommand(p.Collection, "remove", started, err)
	if err != nil {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	s.announce(ctx, change{Collection: p.Collection, Key: p.Key, Op: "remove"})
	return nil
}

// Get reads path once. The query only applies to collection paths.
func (s *Store) Get(ctx context.Context, path string, q Query) (Snapshot, error) {
	p, err := ParsePath(path)
	if err != nil {
		return Snapshot{}, err
	}
	return s.read(ctx, p, q)
}

func (s *Store) read(ctx context.Context, p Path, q Query) (Snapshot, error) {
	db := s.db.WithContext(ctx)
	if p.IsRecord() {
		var doc models.Document
		err := db.Where(map[string]any{"collection": p.Collection, "doc_key": p.Key}).Take(&doc).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return NewRecordSnapshot(p.Collection, p.Key, nil), nil
		}
		if err != nil {
			return Snapshot{}, fmt.Errorf("get %s: %w", p, err)
		}
		rec, err := decode(doc.Data)
		if err != nil {
			return Snapshot{}, fmt.Errorf("get %s: %w", p, err)
		}
		return NewRecordSnapshot(p.Collection, p.Key, rec), nil
	}

	var docs []models.Document
	if err := db.Where(map[string]any{"collection": p.Collection}).Order("doc_key").Find(&docs).Error; err != nil {
		return Snapshot{}, fmt.Errorf("get %s: %w", p, err)
	}
	children := make([]Child, 0, len(docs))
	for _, doc := range docs {
		rec, err := decode(doc.Data)
		if err != nil {
			return Snapshot{}, fmt.Errorf("get %s/%s: %w", p, doc.Key, err)
		}
		children = append(children, Child{Key: doc.Key, Value: rec})
	}
	return NewCollectionSnapshot(p.Collection, q.apply(children)), nil
}

func (s *Store) recordPath(path string) (Path, error) {
	p, err := ParsePath(path)
	if err != nil {
		return Path{}, err
	}
	if !p.IsRecord() {
		return Path{}, fmt.Errorf("%s: %w", path, ErrNotRecord)
	}
	return p, nil
}

func (s *Store) topic(collection string) string {
	return s.channel + ":" + collection
}

func (s *Store) announce(ctx context.Context, c change) {
	payload, err := json.Marshal(c)
	if err != nil {
		return
	}
	if err := s.notifier.Publish(ctx, s.topic(c.Collection), payload); err != nil {
		s.logg.Error(s.logg.WithPath(ctx, c.Collection), "docstore.announce_failed", err)
	}
}

// forUpdate selects the record row with a row lock. SQLite has no row locks;
// its write transactions are already serialised.
func forUpdate(tx *gorm.DB, p Path) *gorm.DB {
	q := tx.Where(map[string]any{"collection": p.Collection, "doc_key": p.Key})
	if tx.Dialector.Name() == "sqlite" {
		return q
	}
	return q.Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate})
}

func upsert(db *gorm.DB, p Path, data string) error {
	doc := models.Document{Collection: p.Collection, Key: p.Key, Data: data}
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "collection"}, {Name: "doc_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"data", "updated_at"}),
	}).Create(&doc).Error
}

func deleteRecord(db *gorm.DB, p Path) error {
	return db.Where(map[string]any{"collection": p.Collection, "doc_key": p.Key}).Delete(&models.Document{}).Error
}
