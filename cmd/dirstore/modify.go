package main

import (
	"fmt"
	"strings"

	"github.com/cuemby/dirstore/internal/partition"
	"github.com/spf13/cobra"
)

var modifyCmd = &cobra.Command{
	Use:   "modify DN",
	Short: "Apply add/remove/replace modifications to an entry",
	Long: `Apply a mixed-op sequence of modifications to the entry at DN.
Each --add/--remove/--replace flag is "attr=value"; repeating a flag with
the same attr accumulates values onto the same modify item. --remove and
--replace with no value remove or clear the whole attribute.

Examples:
  dirstore modify "cn=alice,ou=people,dc=example,dc=com" --add sn=Liskov
  dirstore modify "cn=alice,ou=people,dc=example,dc=com" --remove sn=
  dirstore modify "cn=alice,ou=people,dc=example,dc=com" --replace cn=alice --replace cn=ann`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dn := args[0]
		adds, _ := cmd.Flags().GetStringArray("add")
		removes, _ := cmd.Flags().GetStringArray("remove")
		replaces, _ := cmd.Flags().GetStringArray("replace")

		items, err := modItemsFromFlags(adds, removes, replaces)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return fmt.Errorf("at least one of --add, --remove, --replace is required")
		}

		store, err := openStore(cmd, nil)
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.ModifyItems(dn, items); err != nil {
			return fmt.Errorf("modify %s: %w", dn, err)
		}
		fmt.Printf("✓ Entry modified: %s\n", dn)
		return nil
	},
}

func init() {
	modifyCmd.Flags().StringArray("add", nil, "Add attr=value (repeatable)")
	modifyCmd.Flags().StringArray("remove", nil, "Remove attr=value, or attr= to remove the whole attribute (repeatable)")
	modifyCmd.Flags().StringArray("replace", nil, "Replace attr=value, or attr= to clear the attribute (repeatable)")
}

// modItemsFromFlags groups repeated "attr=value" flags of one op kind into
// one ModItem per attribute, preserving first-seen attribute order within
// each op. All ADD items come first, then REMOVE, then REPLACE, regardless
// of the order the flags were given in.
func modItemsFromFlags(adds, removes, replaces []string) ([]partition.ModItem, error) {
	var items []partition.ModItem
	group := func(op partition.ModOp, raws []string) error {
		order := make([]string, 0, len(raws))
		values := make(map[string][]string, len(raws))
		for _, raw := range raws {
			eq := strings.IndexByte(raw, '=')
			if eq < 0 {
				return fmt.Errorf("malformed modification %q, want attr=value", raw)
			}
			attr, value := raw[:eq], raw[eq+1:]
			if _, seen := values[attr]; !seen {
				order = append(order, attr)
			}
			if value != "" {
				values[attr] = append(values[attr], value)
			} else if _, seen := values[attr]; !seen {
				values[attr] = nil
			}
		}
		for _, attr := range order {
			items = append(items, partition.ModItem{Op: op, Attr: attr, Values: values[attr]})
		}
		return nil
	}
	if err := group(partition.ModAdd, adds); err != nil {
		return nil, err
	}
	if err := group(partition.ModRemove, removes); err != nil {
		return nil, err
	}
	if err := group(partition.ModReplace, replaces); err != nil {
		return nil, err
	}
	return items, nil
}
