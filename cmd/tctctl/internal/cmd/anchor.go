package cmd

import (
	"encoding/json"

	"github.com/forestrie/go-commitmenttree/tcthash"
	"github.com/spf13/cobra"
)

type anchorOutput struct {
	ID          string       `json:"id"`
	Anchor      tcthash.Hash `json:"anchor"`
	Height      uint8        `json:"height"`
	Epochs      uint32       `json:"epochs"`
	Blocks      uint32       `json:"blocks"`
	Commitments uint32       `json:"commitments"`
	Witnessed   int          `json:"witnessed"`
}

func newAnchorCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "anchor",
		Short: "Print the anchor and position of a snapshot",
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

			tree, err := e.load(cmd, id)
			if err != nil {
				return err
			}
			epochs, blocks, commitments := tree.Lengths()
			return printJSON(cmd, anchorOutput{
				ID:          id.String(),
				Anchor:      tree.Root(),
				Height:      tree.Height(),
				Epochs:      epochs,
				Blocks:      blocks,
				Commitments: commitments,
				Witnessed:   tree.WitnessedCount(),
			})
		},
	}
	c.Flags().String("id", "", "Snapshot id")
	return c
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
