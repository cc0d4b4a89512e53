package cmd

import (
	"fmt"

	"github.com/forestrie/go-commitmenttree/snapshot"
	"github.com/forestrie/go-commitmenttree/tct"
	"github.com/forestrie/go-commitmenttree/tcthash"
	"github.com/spf13/cobra"
)

func newWitnessCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "witness <commitment-hex>",
		Short: "Print an inclusion proof for a witnessed commitment as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := treeID(cmd)
			if err != nil {
				return err
			}
			c, err := tcthash.ParseCommitment(args[0])
			if err != nil {
				return err
			}
			e, err := setup(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			maybe, err := snapshot.MaybeWitnessed(cmd.Context(), e.store, id, c)
			if err != nil {
				return err
			}
			if !maybe {
				return fmt.Errorf("%w: %s", tct.ErrNotWitnessed, c)
			}
			tree, err := e.load(cmd, id)
			if err != nil {
				return err
			}
			proof, err := tree.Witness(c)
			if err != nil {
				return err
			}
			return printJSON(cmd, proof)
		},
	}
	c.Flags().String("id", "", "Snapshot id")
	return c
}
