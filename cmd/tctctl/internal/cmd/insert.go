package cmd

import (
	"fmt"

	"github.com/forestrie/go-commitmenttree/snapshot"
	"github.com/forestrie/go-commitmenttree/tct"
	"github.com/forestrie/go-commitmenttree/tcthash"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newInsertCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "insert [commitment-hex...]",
		Short: "Insert commitments into a snapshot, creating it when --id is not given",
		Long: `Insert commitments into a snapshot.

Commitments are inserted in order into the open block. With --end-block or
--end-epoch the open tier is ended after the inserts. The snapshot id is
printed on success.`,
		RunE: runInsert,
	}
	f := c.Flags()
	f.String("id", "", "Snapshot to extend")
	f.Bool("forget", false, "Insert without retaining the commitments for witnessing")
	f.Bool("end-block", false, "End the open block after inserting")
	f.Bool("end-epoch", false, "End the open epoch after inserting")
	return c
}

func runInsert(cmd *cobra.Command, args []string) error {
	commitments := make([]tcthash.Commitment, 0, len(args))
	for _, a := range args {
		c, err := tcthash.ParseCommitment(a)
		if err != nil {
			return err
		}
		commitments = append(commitments, c)
	}

	e, err := setup(cmd)
	if err != nil {
		return err
	}
	defer e.close()

	var tree *tct.Tree
	id := uuid.Nil
	if cmd.Flags().Changed("id") {
		if id, err = treeID(cmd); err != nil {
			return err
		}
		if tree, err = e.load(cmd, id); err != nil {
			return err
		}
	} else {
		hasher, err := e.cfg.TreeHasher()
		if err != nil {
			return err
		}
		if tree, err = tct.New(tct.WithHeight(e.cfg.Height), tct.WithHasher(hasher), tct.WithLogger(e.log)); err != nil {
			return err
		}
	}

	w := tct.Keep
	if forget, _ := cmd.Flags().GetBool("forget"); forget {
		w = tct.Forget
	}
	for _, c := range commitments {
		pos, err := tree.Insert(c, w)
		if err != nil {
			return fmt.Errorf("insert %s: %w", c, err)
		}
		e.log.Debugf("inserted %s at %s", c, pos)
	}
	if end, _ := cmd.Flags().GetBool("end-block"); end {
		if err := tree.EndBlock(); err != nil {
			return err
		}
	}
	if end, _ := cmd.Flags().GetBool("end-epoch"); end {
		if err := tree.EndEpoch(); err != nil {
			return err
		}
	}

	opts := []snapshot.Option{
		snapshot.WithID(id),
		snapshot.WithBloom(e.cfg.BloomBitsPerElement, e.cfg.BloomFilters),
		snapshot.WithLogger(e.log),
	}
	key, err := e.cfg.SigningKey()
	if err != nil {
		return err
	}
	if key != nil {
		signer, err := coseSigner(key)
		if err != nil {
			return err
		}
		opts = append(opts, snapshot.WithSigner(signer, e.cfg.Signing.KeyID))
	}
	if id, err = snapshot.Save(cmd.Context(), e.store, tree, opts...); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), id)
	return nil
}
