package main

import (
	"fmt"
	"io"
	"os"

	"github.com/cuemby/dirstore/internal/partition"
	"github.com/cuemby/dirstore/pkg/entry"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply a manifest of entries to the partition",
	Long: `Apply a dirstore manifest from a YAML file. The file may contain
multiple "---"-separated documents; each is applied in order.

Example:
  apiVersion: dirstore/v1
  kind: Entry
  metadata:
    dn: ou=people,dc=example,dc=com
  spec:
    attributes:
      objectClass: [top, organizationalUnit]
      ou: [people]
---
  apiVersion: dirstore/v1
  kind: Entry
  metadata:
    dn: cn=alice,ou=people,dc=example,dc=com
  spec:
    attributes:
      objectClass: [top, person]
      cn: [alice]
      sn: [Liskov]`,
	RunE: runApply,
}

func init() {
	applyCmd.Flags().StringP("file", "f", "", "YAML manifest file to apply (required)")
	_ = applyCmd.MarkFlagRequired("file")
}

// Resource is a generic dirstore manifest document: one apiVersion/kind/
// metadata/spec envelope per directory resource.
type Resource struct {
	APIVersion string           `yaml:"apiVersion"`
	Kind       string           `yaml:"kind"`
	Metadata   ResourceMetadata `yaml:"metadata"`
	Spec       ResourceSpec     `yaml:"spec"`
}

type ResourceMetadata struct {
	DN string `yaml:"dn"`
}

type ResourceSpec struct {
	Attributes map[string][]string `yaml:"attributes"`
}

func runApply(cmd *cobra.Command, args []string) error {
	filename, _ := cmd.Flags().GetString("file")

	f, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	store, err := openStore(cmd, nil)
	if err != nil {
		return err
	}
	defer store.Close()

	dec := yaml.NewDecoder(f)
	applied := 0
	for {
		var res Resource
		if err := dec.Decode(&res); err != nil {
			if err == io.EOF {
				break
			}
			return fmt.Errorf("failed to parse YAML document %d: %w", applied+1, err)
		}
		if res.Kind == "" {
			continue // blank document between separators
		}
		if err := applyResource(store, &res); err != nil {
			return err
		}
		applied++
	}

	fmt.Printf("✓ Applied %d resource(s) from %s\n", applied, filename)
	return nil
}

func applyResource(store *partition.Store, res *Resource) error {
	switch res.Kind {
	case "Entry":
		return applyEntry(store, res)
	default:
		return fmt.Errorf("unsupported resource kind: %s", res.Kind)
	}
}

func applyEntry(store *partition.Store, res *Resource) error {
	if res.Metadata.DN == "" {
		return fmt.Errorf("entry resource missing metadata.dn")
	}

	e := entry.New()
	for attr, values := range res.Spec.Attributes {
		e.Add(attr, values...)
	}

	if _, err := store.GetEntryId(res.Metadata.DN); err == nil {
		fmt.Printf("Entry already exists: %s (skipping)\n", res.Metadata.DN)
		return nil
	}

	id, err := store.Add(res.Metadata.DN, e)
	if err != nil {
		return fmt.Errorf("apply entry %s: %w", res.Metadata.DN, err)
	}
	fmt.Printf("✓ Entry created: %s (id %d)\n", res.Metadata.DN, id)
	return nil
}
