package snapshot

import (
	"time"

	"github.com/datatrails/go-datatrails-common/logger"
	"github.com/google/uuid"
	"github.com/veraison/go-cose"
)

const (
	DefaultBloomBitsPerElement = 10
	DefaultBloomFilters        = 1
)

type Options struct {
	ID uuid.UUID

	// Signer, when set, signs the anchor at save time.
	Signer   cose.Signer
	KeyID    string
	External []byte

	BloomBitsPerElement uint64
	// BloomFilters shards the prefilter by epoch.
	BloomFilters uint8

	Log logger.Logger
	Now func() time.Time
}

type Option func(*Options)

// WithID saves over an existing snapshot rather than creating a new one.
func WithID(id uuid.UUID) Option {
	return func(o *Options) { o.ID = id }
}

// WithSigner signs the anchor of every saved tree with signer, identified to
// verifiers by keyID.
func WithSigner(signer cose.Signer, keyID string) Option {
	return func(o *Options) {
		o.Signer = signer
		o.KeyID = keyID
	}
}

// WithExternal sets the external additional data bound into the signature.
func WithExternal(external []byte) Option {
	return func(o *Options) { o.External = external }
}

func WithBloom(bitsPerElement uint64, filters uint8) Option {
	return func(o *Options) {
		o.BloomBitsPerElement = bitsPerElement
		o.BloomFilters = filters
	}
}

func WithLogger(log logger.Logger) Option {
	return func(o *Options) { o.Log = log }
}

func WithClock(now func() time.Time) Option {
	return func(o *Options) { o.Now = now }
}

func newOptions(opts ...Option) Options {
	o := Options{
		BloomBitsPerElement: DefaultBloomBitsPerElement,
		BloomFilters:        DefaultBloomFilters,
		Now:                 time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Log == nil && logger.Sugar != nil {
		o.Log = logger.Sugar.WithServiceName("snapshot")
	}
	return o
}

func (o Options) infof(format string, args ...any) {
	if o.Log != nil {
		o.Log.Infof(format, args...)
	}
}
