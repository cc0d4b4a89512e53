package cmd

import (
	"errors"
	"fmt"

	"github.com/forestrie/go-commitmenttree/snapshot"
	"github.com/spf13/cobra"
)

var ErrNoSigningKey = errors.New("no signing key configured")

func newVerifyCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "verify",
		Short: "Reload a snapshot and check the anchor signed when it was saved",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := treeID(cmd)
			if err != nil {
				return err
			}
			e, err := setup(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			key, err := e.cfg.SigningKey()
			if err != nil {
				return err
			}
			if key == nil {
				return ErrNoSigningKey
			}
			tree, err := e.load(cmd, id)
			if err != nil {
				return err
			}
			state, err := snapshot.VerifyAnchor(cmd.Context(), e.store, id, tree, key.Public(), nil)
			if err != nil {
				return err
			}
			e.log.Infof("verified anchor of %s signed at %d", id, state.Timestamp)
			fmt.Fprintf(cmd.OutOrStdout(), "ok %x\n", state.Anchor)
			return nil
		},
	}
	c.Flags().String("id", "", "Snapshot id")
	return c
}
