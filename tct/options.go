package tct

import (
	"github.com/datatrails/go-datatrails-common/logger"
	"github.com/forestrie/go-commitmenttree/tcthash"
	"github.com/forestrie/go-commitmenttree/tcthash/tctmimc"
)

type Options struct {
	Height uint8
	Hasher tcthash.Hasher
	Log    logger.Logger
}

type Option func(*Options)

// WithHeight sets the height of every tier. Each tier then holds 4^height leaves.
func WithHeight(height uint8) Option {
	return func(o *Options) { o.Height = height }
}

// WithHasher replaces the default MiMC hasher.
func WithHasher(hasher tcthash.Hasher) Option {
	return func(o *Options) { o.Hasher = hasher }
}

func WithLogger(log logger.Logger) Option {
	return func(o *Options) { o.Log = log }
}

func newOptions(opts ...Option) (Options, error) {
	o := Options{
		Height: DefaultHeight,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Height == 0 || o.Height > MaxHeight {
		return Options{}, ErrBadHeight
	}
	if o.Hasher == nil {
		o.Hasher = tctmimc.New()
	}
	if o.Log == nil && logger.Sugar != nil {
		o.Log = logger.Sugar.WithServiceName("tct")
	}
	return o, nil
}
