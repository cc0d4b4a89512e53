// Package cmd implements the tctctl commands.
package cmd

import (
	"fmt"
	"os"

	"github.com/datatrails/go-datatrails-common/azblob"
	"github.com/datatrails/go-datatrails-common/logger"
	"github.com/forestrie/go-commitmenttree/snapshot"
	"github.com/forestrie/go-commitmenttree/tct"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "tctctl",
		Short:         "Inspect and extend tiered commitment tree snapshots",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringP("config", "c", "tctctl.toml", "Path to the configuration file")
	pf.String("store", "", "Snapshot store: bolt, leveldb or azure")
	pf.String("path", "", "Database path for the bolt and leveldb stores")
	pf.String("log-level", "", "Log level, for example DEBUG or INFO")

	root.AddCommand(
		newInitCmd(),
		newInsertCmd(),
		newAnchorCmd(),
		newWitnessCmd(),
		newVerifyCmd(),
	)
	return root
}

// Execute runs the command line.
func Execute() {
	defer logger.OnExit()
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// env is the state shared by commands that touch a store.
type env struct {
	cfg   Config
	log   logger.Logger
	store snapshot.Store
	close func() error
}

func setup(cmd *cobra.Command) (*env, error) {
	flags := cmd.Flags()
	cfg, err := LoadConfig(flags.Lookup("config").Value.String(), flags.Changed("config"))
	if err != nil {
		return nil, err
	}
	if flags.Changed("store") {
		cfg.Store = flags.Lookup("store").Value.String()
	}
	if flags.Changed("path") {
		cfg.Path = flags.Lookup("path").Value.String()
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = flags.Lookup("log-level").Value.String()
	}

	logger.New(cfg.LogLevel)
	e := &env{cfg: cfg, log: logger.Sugar.WithServiceName("tctctl")}

	switch cfg.Store {
	case StoreBolt:
		s, err := snapshot.OpenBoltStore(cfg.Path)
		if err != nil {
			return nil, err
		}
		e.store, e.close = s, s.Close
	case StoreLevelDB:
		s, err := snapshot.OpenLevelDBStore(cfg.Path)
		if err != nil {
			return nil, err
		}
		e.store, e.close = s, s.Close
	case StoreAzure:
		storer, err := azblob.NewDev(azblob.NewDevConfigFromEnv(), cfg.Container)
		if err != nil {
			return nil, err
		}
		e.store, e.close = snapshot.NewBlobStore(storer), func() error { return nil }
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStore, cfg.Store)
	}
	e.log.Debugf("using %s store", cfg.Store)
	return e, nil
}

func (e *env) load(cmd *cobra.Command, id uuid.UUID) (*tct.Tree, error) {
	hasher, err := e.cfg.TreeHasher()
	if err != nil {
		return nil, err
	}
	return snapshot.Load(cmd.Context(), e.store, id, hasher, tct.WithLogger(e.log))
}

func treeID(cmd *cobra.Command) (uuid.UUID, error) {
	s := cmd.Flag("id").Value.String()
	if s == "" {
		return uuid.Nil, fmt.Errorf("--id is required")
	}
	return uuid.Parse(s)
}
