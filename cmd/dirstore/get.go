package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var getCmd = &cobra.Command{
	Use:   "get DN",
	Short: "Print the entry stored at DN",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dn := args[0]

		store, err := openStore(cmd, nil)
		if err != nil {
			return err
		}
		defer store.Close()

		id, err := store.GetEntryId(dn)
		if err != nil {
			return fmt.Errorf("get %s: %w", dn, err)
		}
		e, err := store.Lookup(id)
		if err != nil {
			return fmt.Errorf("get %s: %w", dn, err)
		}

		fmt.Printf("dn: %s\n", dn)
		fmt.Printf("id: %d\n", id)
		for _, a := range e.Attributes() {
			for _, v := range a.Values {
				fmt.Printf("%s: %s\n", a.ID, v)
			}
		}
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list DN",
	Short: "List the immediate children of DN",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dn := args[0]

		store, err := openStore(cmd, nil)
		if err != nil {
			return err
		}
		defer store.Close()

		id, err := store.GetEntryId(dn)
		if err != nil {
			return fmt.Errorf("list %s: %w", dn, err)
		}
		children, err := store.List(id)
		if err != nil {
			return fmt.Errorf("list %s: %w", dn, err)
		}
		if len(children) == 0 {
			fmt.Println("No children")
			return nil
		}
		for _, childID := range children {
			updn, err := store.GetEntryUpdn(childID)
			if err != nil {
				return fmt.Errorf("list %s: child %d: %w", dn, childID, err)
			}
			fmt.Printf("%d\t%s\n", childID, updn)
		}
		return nil
	},
}
