package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var indicesCmd = &cobra.Command{
	Use:   "indices DN",
	Short: "Print every index entry recorded for the entry at DN",
	Long: `indices resolves DN to its internal id and prints the debugging
snapshot of every system, alias, presence, and user index entry that
mentions it, tagged with a correlation id for cross-referencing with
partition logs.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dn := args[0]

		store, err := openStore(cmd, nil)
		if err != nil {
			return err
		}
		defer store.Close()

		id, err := store.GetEntryId(dn)
		if err != nil {
			return fmt.Errorf("indices %s: %w", dn, err)
		}
		snap, err := store.GetIndices(id)
		if err != nil {
			return fmt.Errorf("indices %s: %w", dn, err)
		}

		out, err := json.MarshalIndent(snap, "", "  ")
		if err != nil {
			return fmt.Errorf("indices %s: encode snapshot: %w", dn, err)
		}
		fmt.Println(string(out))
		return nil
	},
}
