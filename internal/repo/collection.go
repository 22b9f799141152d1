package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/angelmondragon/nursecall-backend/pkg/docstore"
	pkgerrors "github.com/angelmondragon/nursecall-backend/pkg/errors"
)

// Store is the command surface of the document store used by domain services.
type Store interface {
	Push(ctx context.Context, collection string, rec docstore.Record) (string, error)
	Set(ctx context.Context, path string, rec docstore.Record) error
	Update(ctx context.Context, path string, patch docstore.Record) error
	UpdateExisting(ctx context.Context, path string, patch docstore.Record, guard docstore.Guard) error
	Remove(ctx context.Context, path string) error
	Get(ctx context.Context, path string, q docstore.Query) (docstore.Snapshot, error)
}

// Collection dispatches commands against one collection. Writes return as soon
// as the store accepts them; live mirrors observe them on their own schedule.
type Collection struct {
	store Store
	name  string
}

// NewCollection binds store to the named collection.
func NewCollection(store Store, name string) (Collection, error) {
	if store == nil {
		return Collection{}, fmt.Errorf("document store is required")
	}
	if _, err := docstore.ParsePath(name); err != nil {
		return Collection{}, err
	}
	return Collection{store: store, name: name}, nil
}

// Name returns the collection name.
func (c Collection) Name() string { return c.name }

// Path returns the record path for key.
func (c Collection) Path(key string) string {
	return docstore.Join(c.name, key)
}

// Create appends rec and returns the store-assigned key.
func (c Collection) Create(ctx context.Context, rec docstore.Record) (string, error) {
	key, err := c.store.Push(ctx, c.name, rec)
	if err != nil {
		return "", storeError(err, "create "+c.name)
	}
	return key, nil
}

// Put replaces the record at key.
func (c Collection) Put(ctx context.Context, key string, rec docstore.Record) error {
	path, err := c.recordPath(key)
	if err != nil {
		return err
	}
	if err := c.store.Set(ctx, path, rec); err != nil {
		return storeError(err, "write "+c.name)
	}
	return nil
}

// Patch merges patch into the record at key. Nil values remove fields.
func (c Collection) Patch(ctx context.Context, key string, patch docstore.Record) error {
	path, err := c.recordPath(key)
	if err != nil {
		return err
	}
	if err := c.store.Update(ctx, path, patch); err != nil {
		return storeError(err, "update "+c.name)
	}
	return nil
}

// PatchExisting merges patch into a record that must still exist. The guard,
// when set, sees the stored record in the same transaction as the write, so
// a check and the write it protects cannot be split by another command.
func (c Collection) PatchExisting(ctx context.Context, key string, patch docstore.Record, guard docstore.Guard) error {
	path, err := c.recordPath(key)
	if err != nil {
		return err
	}
	if err := c.store.UpdateExisting(ctx, path, patch, guard); err != nil {
		return storeError(err, "update "+c.name)
	}
	return nil
}

// Delete removes the record at key. Deleting a missing record succeeds.
func (c Collection) Delete(ctx context.Context, key string) error {
	path, err := c.recordPath(key)
	if err != nil {
		return err
	}
	if err := c.store.Remove(ctx, path); err != nil {
		return storeError(err, "delete "+c.name)
	}
	return nil
}

// Find reads one record. The boolean is false when it does not exist.
func (c Collection) Find(ctx context.Context, key string) (docstore.Record, bool, error) {
	path, err := c.recordPath(key)
	if err != nil {
		return nil, false, err
	}
	snap, err := c.store.Get(ctx, path, docstore.Query{})
	if err != nil {
		return nil, false, storeError(err, "read "+c.name)
	}
	if !snap.Exists() {
		return nil, false, nil
	}
	return snap.Val(), true, nil
}

// List reads the collection once.
func (c Collection) List(ctx context.Context, q docstore.Query) ([]docstore.Child, error) {
	snap, err := c.store.Get(ctx, c.name, q)
	if err != nil {
		return nil, storeError(err, "list "+c.name)
	}
	return snap.Children(), nil
}

func (c Collection) recordPath(key string) (string, error) {
	if key == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "id is required")
	}
	path := c.Path(key)
	if _, err := docstore.ParsePath(path); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid id")
	}
	return path, nil
}

func storeError(err error, action string) error {
	if typed := pkgerrors.As(err); typed != nil {
		return typed
	}
	switch {
	case errors.Is(err, docstore.ErrNotFound):
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, action+": record not found")
	case errors.Is(err, docstore.ErrInvalidPath),
		errors.Is(err, docstore.ErrNotRecord),
		errors.Is(err, docstore.ErrNotCollection),
		errors.Is(err, docstore.ErrEmptyRecord),
		errors.Is(err, docstore.ErrInvalidPatch):
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, action)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, action+": request cancelled")
	default:
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, action)
	}
}
