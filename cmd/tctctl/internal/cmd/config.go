package cmd

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/forestrie/go-commitmenttree/tct"
	"github.com/forestrie/go-commitmenttree/tcthash"
	"github.com/forestrie/go-commitmenttree/tcthash/tctmimc"
	"github.com/forestrie/go-commitmenttree/tcthash/tctsha3"
	"github.com/veraison/go-cose"
)

const (
	StoreBolt    = "bolt"
	StoreLevelDB = "leveldb"
	StoreAzure   = "azure"

	HasherMiMC = "mimc"
	HasherSHA3 = "sha3"
)

var (
	ErrUnknownStore  = errors.New("unknown store kind")
	ErrUnknownHasher = errors.New("unknown hasher")
	ErrBadKey        = errors.New("signing key is not a PEM encoded EC private key")
)

// Config is read from a toml file, see DefaultConfig for the defaults.
type Config struct {
	Store     string `toml:"store"`
	Path      string `toml:"path"`
	Container string `toml:"container"`
	LogLevel  string `toml:"log_level"`

	Height uint8  `toml:"height"`
	Hasher string `toml:"hasher"`

	BloomBitsPerElement uint64 `toml:"bloom_bits_per_element"`
	BloomFilters        uint8  `toml:"bloom_filters"`

	Signing SigningConfig `toml:"signing"`
}

type SigningConfig struct {
	// KeyFile is a PEM encoded EC private key. Anchors are only signed and
	// verified when it is set.
	KeyFile string `toml:"key_file"`
	KeyID   string `toml:"key_id"`
}

func DefaultConfig() Config {
	return Config{
		Store:               StoreBolt,
		Path:                "tct.db",
		Container:           "tct",
		LogLevel:            "INFO",
		Height:              tct.DefaultHeight,
		Hasher:              HasherMiMC,
		BloomBitsPerElement: 10,
		BloomFilters:        1,
	}
}

// LoadConfig reads path over the defaults. A missing file is not an error
// when path is the default name.
func LoadConfig(path string, required bool) (Config, error) {
	conf := DefaultConfig()
	if path == "" {
		return conf, nil
	}
	if _, err := toml.DecodeFile(path, &conf); err != nil {
		if !required && errors.Is(err, os.ErrNotExist) {
			return conf, nil
		}
		return Config{}, fmt.Errorf("failed to load config: %w", err)
	}
	return conf, nil
}

func (c Config) TreeHasher() (tcthash.Hasher, error) {
	switch c.Hasher {
	case HasherMiMC, "":
		return tctmimc.New(), nil
	case HasherSHA3:
		return tctsha3.New(), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownHasher, c.Hasher)
}

// SigningKey loads the configured key. It returns nil when none is set.
func (c Config) SigningKey() (*ecdsa.PrivateKey, error) {
	if c.Signing.KeyFile == "" {
		return nil, nil
	}
	data, err := os.ReadFile(c.Signing.KeyFile)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, ErrBadKey
	}
	if key, err := x509.ParseECPrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadKey, err)
	}
	ec, ok := key.(*ecdsa.PrivateKey)
	if !ok {
		return nil, ErrBadKey
	}
	return ec, nil
}

// coseSigner returns a signer using the algorithm matching the key's curve.
func coseSigner(key *ecdsa.PrivateKey) (cose.Signer, error) {
	alg, err := curveAlgorithm(key.Public())
	if err != nil {
		return nil, err
	}
	return cose.NewSigner(alg, key)
}

func curveAlgorithm(pub crypto.PublicKey) (cose.Algorithm, error) {
	ec, ok := pub.(*ecdsa.PublicKey)
	if !ok {
		return 0, ErrBadKey
	}
	switch ec.Curve {
	case elliptic.P256():
		return cose.AlgorithmES256, nil
	case elliptic.P384():
		return cose.AlgorithmES384, nil
	case elliptic.P521():
		return cose.AlgorithmES512, nil
	}
	return 0, fmt.Errorf("%w: unsupported curve %s", ErrBadKey, ec.Curve.Params().Name)
}
