package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var renameCmd = &cobra.Command{
	Use:   "rename DN NEW-RDN",
	Short: "Rename an entry's RDN in place",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		dn, newRdn := args[0], args[1]
		deleteOldRdn, _ := cmd.Flags().GetBool("delete-old-rdn")

		store, err := openStore(cmd, nil)
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.Rename(dn, newRdn, deleteOldRdn); err != nil {
			return fmt.Errorf("rename %s: %w", dn, err)
		}
		fmt.Printf("✓ Entry renamed: %s -> %s\n", dn, newRdn)
		return nil
	},
}

func init() {
	renameCmd.Flags().Bool("delete-old-rdn", false, "Remove the old RDN's attribute values that aren't also in the new RDN")
}

var moveCmd = &cobra.Command{
	Use:   "move DN NEW-PARENT-DN",
	Short: "Move an entry (and its subtree) under a new parent",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		dn, newParent := args[0], args[1]
		newRdn, _ := cmd.Flags().GetString("new-rdn")
		deleteOldRdn, _ := cmd.Flags().GetBool("delete-old-rdn")

		store, err := openStore(cmd, nil)
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.Move(dn, newParent, newRdn, deleteOldRdn); err != nil {
			return fmt.Errorf("move %s: %w", dn, err)
		}
		fmt.Printf("✓ Entry moved: %s -> under %s\n", dn, newParent)
		return nil
	},
}

func init() {
	moveCmd.Flags().String("new-rdn", "", "Rename the RDN as part of the move (default: keep current RDN)")
	moveCmd.Flags().Bool("delete-old-rdn", false, "With --new-rdn, remove the old RDN's attribute values that aren't also in the new RDN")
}
