package snapshot

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
)

const (
	// KeyPrefix starts every key written by this package.
	KeyPrefix = "tct/"

	// LenUUIDString is the length of the UUID string representation, per
	// https://www.rfc-editor.org/rfc/rfc9562.html#name-uuid-format
	LenUUIDString = 36

	ObjectTree   = "tree"
	ObjectBloom  = "bloom"
	ObjectAnchor = "anchor"
)

var ErrNotFound = errors.New("snapshot object not found")

// Store is a flat key value store for snapshot objects. Implementations
// return ErrNotFound, possibly wrapped, for missing keys.
type Store interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
}

// ObjectKey returns the key of one object of the snapshot id.
func ObjectKey(id uuid.UUID, object string) string {
	return KeyPrefix + id.String() + "/" + object
}

// ParseKeyID recovers the tree id from a key produced by ObjectKey. The uuid
// may be followed by a slash or the end of the string.
func ParseKeyID(key string) (uuid.UUID, bool) {
	i := strings.Index(key, KeyPrefix)
	if i == -1 {
		return uuid.Nil, false
	}
	rest := key[i+len(KeyPrefix):]
	j := strings.Index(rest, "/")
	if j == -1 {
		j = len(rest)
	}
	if j != LenUUIDString {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(rest[:j])
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}
