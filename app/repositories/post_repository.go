package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"postingapp/app/models"
)

// BadgerPostRepository implements PostRepository using BadgerDB
type BadgerPostRepository struct {
	db  *badger.DB
	seq *badger.Sequence
	now func() time.Time
}

// NewBadgerPostRepository creates a new BadgerPostRepository. Close must be
// called before the database is closed.
func NewBadgerPostRepository(db *badger.DB) (*BadgerPostRepository, error) {
	seq, err := db.GetSequence([]byte(PostSeqKey), sequenceBandwidth)
	if err != nil {
		return nil, fmt.Errorf("failed to open post sequence: %w", err)
	}
	return &BadgerPostRepository{db: db, seq: seq, now: time.Now}, nil
}

// Close returns the unused part of the ID lease.
func (r *BadgerPostRepository) Close() error {
	return r.seq.Release()
}

// Create assigns the next ID and stores the post together with its owner index entry.
func (r *BadgerPostRepository) Create(ctx context.Context, post *models.Post) error {
	id, err := nextID(r.seq)
	if err != nil {
		return err
	}
	post.ID = id
	post.BeforeCreate(r.now())

	return update(ctx, r.db, func(txn *badger.Txn) error {

		data, err := marshalEntity(post)
		if err != nil {
			return err
		}
		if err := txn.Set(entityKey(PostKeyPrefix, post.ID), data); err != nil {
			return err
		}
		return txn.Set(postUserIndexKey(post.UserID, post.ID), nil)
	})
}

// GetByID retrieves a post by ID
func (r *BadgerPostRepository) GetByID(_ context.Context, id int) (*models.Post, error) {
	var post models.Post
	err := r.db.View(func(txn *badger.Txn) error {
		return getEntity(txn, entityKey(PostKeyPrefix, id), &post)
	})
	if err != nil {
		return nil, err
	}
	return &post, nil
}

// ListByUser walks the owner index and loads each post.
func (r *BadgerPostRepository) ListByUser(_ context.Context, userID int) ([]*models.Post, error) {
	posts := []*models.Post{}
	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := postUserIndexPrefix(userID)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			id, err := idFromKey(it.Item().Key())
			if err != nil {
				return fmt.Errorf("corrupt index key %q: %w", it.Item().Key(), err)
			}
			var post models.Post
			if err := getEntity(txn, entityKey(PostKeyPrefix, id), &post); err != nil {
				return fmt.Errorf("failed to load post %d: %w", id, err)
			}
			posts = append(posts, &post)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	SortByUpdatedAt(posts)
	return posts, nil
}

// Latest returns the post with the highest ID.
func (r *BadgerPostRepository) Latest(_ context.Context) (*models.Post, error) {
	var post *models.Post
	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(PostKeyPrefix)
		// In reverse mode Seek lands on the largest key <= the seek key.
		it.Seek(append(append([]byte{}, prefix...), 0xff))
		if !it.ValidForPrefix(prefix) {
			return ErrNotFound
		}
		post = &models.Post{}
		return it.Item().Value(func(val []byte) error {
			return unmarshalEntity(val, post)
		})
	})
	if err != nil {
		return nil, err
	}
	return post, nil
}

// Update stores the new title and content. Owner and creation time always
// come from the stored record.
func (r *BadgerPostRepository) Update(ctx context.Context, post *models.Post) error {
	return update(ctx, r.db, func(txn *badger.Txn) error {
		key := entityKey(PostKeyPrefix, post.ID)

		var existing models.Post
		if err := getEntity(txn, key, &existing); err != nil {
			return err
		}
		post.UserID = existing.UserID
		post.CreatedAt = existing.CreatedAt
		post.BeforeSave(r.now())

		data, err := marshalEntity(post)
		if err != nil {
			return err
		}
		return txn.Set(key, data)
	})
}

// Delete deletes a post by ID
func (r *BadgerPostRepository) Delete(ctx context.Context, id int) error {
	return update(ctx, r.db, func(txn *badger.Txn) error {
		key := entityKey(PostKeyPrefix, id)

		var existing models.Post
		if err := getEntity(txn, key, &existing); err != nil {
			return err
		}
		if err := txn.Delete(postUserIndexKey(existing.UserID, id)); err != nil {
			return err
		}
		return txn.Delete(key)
	})
}
