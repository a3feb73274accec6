package main

import (
	"fmt"
	"strings"

	"github.com/cuemby/dirstore/pkg/entry"
	"github.com/spf13/cobra"
)

var addCmd = &cobra.Command{
	Use:   "add DN",
	Short: "Add a new entry",
	Long: `Add a new entry at DN, built from repeated --attr id=value flags.

Examples:
  dirstore add "cn=alice,ou=people,dc=example,dc=com" \
    --attr objectClass=person --attr objectClass=top --attr cn=alice --attr sn=Liskov`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dn := args[0]
		attrs, _ := cmd.Flags().GetStringArray("attr")
		e, err := entryFromAttrFlags(attrs)
		if err != nil {
			return err
		}

		store, err := openStore(cmd, nil)
		if err != nil {
			return err
		}
		defer store.Close()

		id, err := store.Add(dn, e)
		if err != nil {
			return fmt.Errorf("add %s: %w", dn, err)
		}
		fmt.Printf("✓ Entry added: %s (id %d)\n", dn, id)
		return nil
	},
}

func init() {
	addCmd.Flags().StringArray("attr", nil, "Attribute as id=value (repeatable, same id appends values)")
}

// entryFromAttrFlags builds an entry.Entry from repeated "id=value" flags,
// grouping repeats of the same id into one multi-valued attribute.
func entryFromAttrFlags(attrs []string) (*entry.Entry, error) {
	e := entry.New()
	for _, raw := range attrs {
		eq := strings.IndexByte(raw, '=')
		if eq < 0 {
			return nil, fmt.Errorf("malformed --attr %q, want id=value", raw)
		}
		e.Add(raw[:eq], raw[eq+1:])
	}
	return e, nil
}
