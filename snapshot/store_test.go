package snapshot

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"reflect"
	"sync"
	"testing"

	azStorageBlob "github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/datatrails/go-datatrails-common/azblob"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBlobs is an in memory stand in for the azure blob storer. Writes honour
// the etag conditions the BlobStore sends and every blob has its own etag.
type fakeBlobs struct {
	mu      sync.Mutex
	blobs   map[string][]byte
	etags   map[string]string
	version int
	noEtag  bool
	puts    int
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{blobs: map[string][]byte{}, etags: map[string]string{}}
}

func storageError(code azStorageBlob.StorageErrorCode) error {
	return &azStorageBlob.StorageError{ErrorCode: code}
}

// sameOptions reports whether opts, tags aside, configure exactly what want
// does.
func sameOptions(opts []azblob.Option, want ...azblob.Option) bool {
	var got, exp azblob.StorerOptions
	for _, o := range opts {
		o(&got)
	}
	azblob.WithTags(nil)(&got)
	for _, o := range want {
		o(&exp)
	}
	return reflect.DeepEqual(got, exp)
}

func (f *fakeBlobs) Put(
	ctx context.Context, identity string, source io.ReadSeekCloser, opts ...azblob.Option,
) (*azblob.WriteResponse, error) {
	data, err := io.ReadAll(source)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	current, exists := f.etags[identity]
	switch {
	case sameOptions(opts, azblob.WithEtagNoneMatch("*")):
		if exists {
			return nil, storageError(azStorageBlob.StorageErrorCode("BlobAlreadyExists"))
		}
	case exists && sameOptions(opts, azblob.WithEtagMatch(current)):
	case sameOptions(opts):
	default:
		return nil, storageError(azStorageBlob.StorageErrorCodeConditionNotMet)
	}

	f.version++
	f.puts++
	etag := fmt.Sprintf("v%d", f.version)
	f.blobs[identity] = data
	f.etags[identity] = etag
	wr := &azblob.WriteResponse{}
	if !f.noEtag {
		wr.ETag = &etag
	}
	return wr, nil
}

func (f *fakeBlobs) Reader(
	ctx context.Context, identity string, opts ...azblob.Option,
) (*azblob.ReaderResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.blobs[identity]
	if !ok {
		return nil, azblob.ErrorFromError(storageError(azStorageBlob.StorageErrorCode("BlobNotFound")))
	}
	etag := f.etags[identity]
	rr := &azblob.ReaderResponse{}
	rr.Reader = io.NopCloser(bytes.NewReader(data))
	rr.ETag = &etag
	return rr, nil
}

type storeFactory func(t *testing.T) Store

func storeFactories() map[string]storeFactory {
	return map[string]storeFactory{
		"bolt": func(t *testing.T) Store {
			s, err := OpenBoltStore(filepath.Join(t.TempDir(), "tct.db"))
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
		"leveldb": func(t *testing.T) Store {
			s, err := OpenLevelDBStore(filepath.Join(t.TempDir(), "tct.ldb"))
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
		"blob": func(t *testing.T) Store {
			return NewBlobStore(newFakeBlobs())
		},
	}
}

func TestStorePutGet(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := factory(t)
			key := ObjectKey(uuid.New(), ObjectTree)

			_, err := s.Get(ctx, key)
			require.Error(t, err)

			require.NoError(t, s.Put(ctx, key, []byte("one")))
			got, err := s.Get(ctx, key)
			require.NoError(t, err)
			assert.Equal(t, []byte("one"), got)

			require.NoError(t, s.Put(ctx, key, []byte("two")))
			got, err = s.Get(ctx, key)
			require.NoError(t, err)
			assert.Equal(t, []byte("two"), got)
		})
	}
}

func TestStoreNotFound(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			_, err := factory(t).Get(context.Background(), "tct/missing")
			require.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStoreCancelledContext(t *testing.T) {
	for _, name := range []string{"bolt", "leveldb"} {
		t.Run(name, func(t *testing.T) {
			s := storeFactories()[name](t)
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			require.ErrorIs(t, s.Put(ctx, "k", []byte{1}), context.Canceled)
			_, err := s.Get(ctx, "k")
			require.ErrorIs(t, err, context.Canceled)
		})
	}
}

func TestBlobStoreEtags(t *testing.T) {
	ctx := context.Background()
	blobs := newFakeBlobs()
	s := NewBlobStore(blobs)

	require.NoError(t, s.Put(ctx, "tct/a/tree", []byte{1}))
	assert.Equal(t, "v1", s.etags["tct/a/tree"])
	require.NoError(t, s.Put(ctx, "tct/b/tree", []byte{2}))
	assert.Equal(t, "v2", s.etags["tct/b/tree"])

	// each blob keeps its own etag
	_, err := s.Get(ctx, "tct/a/tree")
	require.NoError(t, err)
	assert.Equal(t, "v1", s.etags["tct/a/tree"])

	// another store creating the same blob loses
	other := NewBlobStore(blobs)
	require.ErrorIs(t, other.Put(ctx, "tct/a/tree", []byte{3}), ErrWriteConflict)

	// once it has read the blob it may update it, and the first store's view
	// is then stale
	require.NoError(t, other.Track(ctx, "tct/a/tree", "tct/never/written"))
	require.NoError(t, other.Put(ctx, "tct/a/tree", []byte{3}))
	require.ErrorIs(t, s.Put(ctx, "tct/a/tree", []byte{4}), ErrWriteConflict)
	require.NoError(t, other.Put(ctx, "tct/never/written", []byte{5}))

	got, err := s.Get(ctx, "tct/a/tree")
	require.NoError(t, err)
	assert.Equal(t, []byte{3}, got)
	require.NoError(t, s.Put(ctx, "tct/a/tree", []byte{4}))

	// a write whose etag was never reported cannot be followed by an
	// unconditional one
	blobs.noEtag = true
	require.NoError(t, s.Put(ctx, "tct/c/tree", []byte{3}))
	puts := blobs.puts
	require.ErrorIs(t, s.Put(ctx, "tct/c/tree", []byte{4}), ErrEtagRequired)
	assert.Equal(t, puts, blobs.puts)
}

func TestParseKeyID(t *testing.T) {
	id := uuid.New()
	tests := []struct {
		name string
		key  string
		ok   bool
	}{
		{"object key", ObjectKey(id, ObjectTree), true},
		{"prefix only", KeyPrefix + id.String(), true},
		{"nested", "container/" + ObjectKey(id, ObjectBloom), true},
		{"no prefix", id.String() + "/tree", false},
		{"short id", KeyPrefix + "1234/tree", false},
		{"not a uuid", KeyPrefix + "zzzzzzzz-zzzz-zzzz-zzzz-zzzzzzzzzzzz/tree", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseKeyID(tt.key)
			require.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, id, got)
			}
		})
	}
	assert.Equal(t, "tree", objectName(ObjectKey(id, ObjectTree)))
}
