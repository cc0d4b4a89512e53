package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	azStorageBlob "github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/datatrails/go-datatrails-common/azblob"
)

// TagObject is the blob index tag naming the snapshot object a blob holds.
const TagObject = "tct_object"

const (
	azblobBlobNotFound      = "BlobNotFound"
	azblobBlobAlreadyExists = "BlobAlreadyExists"
	azblobConditionNotMet   = "ConditionNotMet"
)

var (
	ErrEtagRequired = errors.New("etag is required when updating any blob")
	// ErrWriteConflict is returned when a blob changed since this store last
	// saw it, or was created by someone else.
	ErrWriteConflict = errors.New("blob was changed by another writer")
)

type blobStore interface {
	Put(
		ctx context.Context,
		identity string,
		source io.ReadSeekCloser,
		opts ...azblob.Option,
	) (*azblob.WriteResponse, error)
	Reader(
		ctx context.Context,
		identity string,
		opts ...azblob.Option,
	) (*azblob.ReaderResponse, error)
}

// BlobStore keeps snapshot objects in azure blob storage.
//
// Every write is conditional. A key never read or written through this store
// is created with a none-match on any etag, so a concurrent creator fails
// rather than being overwritten. Later writes require the etag last seen, so
// a writer holding a stale view of the snapshot fails too. Track learns the
// etags of blobs this store has not read yet.
type BlobStore struct {
	store blobStore

	mu    sync.Mutex
	etags map[string]string
}

func NewBlobStore(store blobStore) *BlobStore {
	return &BlobStore{store: store, etags: map[string]string{}}
}

func (s *BlobStore) Put(ctx context.Context, key string, data []byte) error {
	s.mu.Lock()
	etag, seen := s.etags[key]
	s.mu.Unlock()

	opts := []azblob.Option{azblob.WithTags(map[string]string{TagObject: objectName(key)})}
	switch {
	case etag != "":
		opts = append(opts, azblob.WithEtagMatch(etag))
	case seen:
		return fmt.Errorf("%w: %s", ErrEtagRequired, key)
	default:
		// The way to spell 'fail without modifying if the blob exists' is to
		// require that no blob matches *any* etag.
		opts = append(opts, azblob.WithEtagNoneMatch("*"))
	}

	wr, err := s.store.Put(ctx, key, azblob.NewBytesReaderCloser(data), opts...)
	if code := storageErrorCode(err); code == azblobConditionNotMet || code == azblobBlobAlreadyExists {
		return fmt.Errorf("%w: %s", ErrWriteConflict, key)
	}
	if err != nil {
		return err
	}
	s.remember(key, wr.ETag)
	return nil
}

func (s *BlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	rr, err := s.store.Reader(ctx, key, azblob.WithGetTags())
	if storageErrorCode(err) == azblobBlobNotFound {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, err
	}
	if rr.Reader == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	defer rr.Reader.Close()
	data, err := io.ReadAll(rr.Reader)
	if err != nil {
		return nil, err
	}
	s.remember(key, rr.ETag)
	return data, nil
}

// Track records the current etags of keys, so that the next Put of each is
// conditional on the blob not having changed since. A missing key is left to
// be created.
func (s *BlobStore) Track(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		_, err := s.Get(ctx, key)
		if errors.Is(err, ErrNotFound) {
			s.mu.Lock()
			delete(s.etags, key)
			s.mu.Unlock()
			continue
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *BlobStore) remember(key string, etag *string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if etag == nil {
		s.etags[key] = ""
		return
	}
	s.etags[key] = *etag
}

func objectName(key string) string {
	for i := len(key) - 1; i >= 0; i-- {
		if key[i] == '/' {
			return key[i+1:]
		}
	}
	return key
}

// storageErrorCode returns the azure storage error code carried by err, or
// the empty string.
func storageErrorCode(err error) string {
	var serr *azStorageBlob.StorageError
	if err == nil || !errors.As(err, &serr) {
		return ""
	}
	return string(serr.ErrorCode)
}
