// Command tctctl inspects and extends tiered commitment tree snapshots.
package main

import "github.com/forestrie/go-commitmenttree/cmd/tctctl/internal/cmd"

func main() {
	cmd.Execute()
}
