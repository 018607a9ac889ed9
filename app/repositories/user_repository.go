package repositories

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dgraph-io/badger/v4"

	"postingapp/app/models"
)

// BadgerUserRepository implements UserRepository using BadgerDB. Usernames
// are unique case-insensitively through a name index.
type BadgerUserRepository struct {
	db  *badger.DB
	seq *badger.Sequence
	now func() time.Time
}

func NewBadgerUserRepository(db *badger.DB) (*BadgerUserRepository, error) {
	seq, err := db.GetSequence([]byte(UserSeqKey), sequenceBandwidth)
	if err != nil {
		return nil, fmt.Errorf("failed to open user sequence: %w", err)
	}
	return &BadgerUserRepository{db: db, seq: seq, now: time.Now}, nil
}

func (r *BadgerUserRepository) Close() error {
	return r.seq.Release()
}

// Create checks the name index and stores the user in one transaction. An ID
// is only drawn once the name is known to be free, and is kept across
// conflict retries.
func (r *BadgerUserRepository) Create(ctx context.Context, user *models.User) error {
	var id int
	return update(ctx, r.db, func(txn *badger.Txn) error {
		nameKey := usernameIndexKey(user.Username)
		_, err := txn.Get(nameKey)
		if err == nil {
			return ErrDuplicate
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		if id == 0 {
			if id, err = nextID(r.seq); err != nil {
				return err
			}
		}
		user.ID = id
		user.BeforeCreate(r.now())

		data, err := marshalEntity(user)
		if err != nil {
			return err
		}
		if err := txn.Set(entityKey(UserKeyPrefix, user.ID), data); err != nil {
			return err
		}
		return txn.Set(nameKey, []byte(strconv.Itoa(user.ID)))
	})
}

func (r *BadgerUserRepository) GetByID(_ context.Context, id int) (*models.User, error) {
	var user models.User
	err := r.db.View(func(txn *badger.Txn) error {
		return getEntity(txn, entityKey(UserKeyPrefix, id), &user)
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *BadgerUserRepository) GetByUsername(_ context.Context, username string) (*models.User, error) {
	var user models.User
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(usernameIndexKey(username))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		var id int
		err = item.Value(func(val []byte) error {
			id, err = strconv.Atoi(string(val))
			return err
		})
		if err != nil {
			return err
		}
		return getEntity(txn, entityKey(UserKeyPrefix, id), &user)
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}
