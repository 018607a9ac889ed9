package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"postingapp/app/models"
)

const (
	// Key prefixes for different entity types
	PostKeyPrefix = "post:"
	UserKeyPrefix = "user:"

	// Secondary indexes
	PostUserIndexPrefix = "idx:post:user:"
	UsernameIndexPrefix = "idx:user:name:"

	// Sequence keys for auto-incrementing IDs
	PostSeqKey = "seq:post"
	UserSeqKey = "seq:user"
)

// entityKey zero-pads the ID so that badger's byte ordering matches ID order.
func entityKey(prefix string, id int) []byte {
	return []byte(fmt.Sprintf("%s%010d", prefix, id))
}

func postUserIndexPrefix(userID int) []byte {
	return []byte(fmt.Sprintf("%s%d:", PostUserIndexPrefix, userID))
}

func postUserIndexKey(userID, postID int) []byte {
	return []byte(fmt.Sprintf("%s%d:%010d", PostUserIndexPrefix, userID, postID))
}

func usernameIndexKey(username string) []byte {
	return []byte(UsernameIndexPrefix + strings.ToLower(username))
}

// idFromKey parses the trailing ID of a key built by entityKey or postUserIndexKey.
func idFromKey(key []byte) (int, error) {
	s := string(key)
	if i := strings.LastIndexByte(s, ':'); i >= 0 {
		s = s[i+1:]
	}
	return strconv.Atoi(s)
}

// sequenceBandwidth is how many IDs a badger sequence leases per disk write.
const sequenceBandwidth = 100

// nextID draws from a badger sequence. Sequences start at 0, IDs at 1.
func nextID(seq *badger.Sequence) (int, error) {
	n, err := seq.Next()
	if err != nil {
		return 0, fmt.Errorf("failed to allocate id: %w", err)
	}
	return int(n) + 1, nil
}

// maxConflictRetries bounds how often a transaction is replayed after
// losing a race with a concurrent writer.
const maxConflictRetries = 1000

// update runs fn in a read-write transaction and replays it while badger
// reports a conflict, so concurrent writers end up last-write-wins instead
// of failing. fn must be safe to run more than once.
func update(ctx context.Context, db *badger.DB, fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		err = db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%w: %w", err, ctxErr)
		}
	}
	return err
}

// getEntity loads key into v, mapping a missing key to ErrNotFound.
func getEntity(txn *badger.Txn, key []byte, v interface{}) error {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return unmarshalEntity(val, v)
	})
}

// marshalEntity marshals an entity to JSON
func marshalEntity(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal entity: %w", err)
	}
	return data, nil
}

// unmarshalEntity unmarshals JSON data into an entity
func unmarshalEntity(data []byte, v interface{}) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal entity: %w", err)
	}
	return nil
}

// SortByUpdatedAt orders posts oldest update first, then by ID.
func SortByUpdatedAt(posts []*models.Post) {
	sort.SliceStable(posts, func(i, j int) bool {
		if !posts[i].UpdatedAt.Equal(posts[j].UpdatedAt) {
			return posts[i].UpdatedAt.Before(posts[j].UpdatedAt)
		}
		return posts[i].ID < posts[j].ID
	})
}
