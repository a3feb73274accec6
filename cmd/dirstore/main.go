package main

import (
	"fmt"
	"net/http"
	_ "net/http/pprof" // Import pprof for profiling endpoints
	"os"

	"github.com/cuemby/dirstore/internal/partition"
	"github.com/cuemby/dirstore/pkg/entry"
	"github.com/cuemby/dirstore/pkg/log"
	"github.com/cuemby/dirstore/pkg/metrics"
	"github.com/cuemby/dirstore/pkg/schema"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "dirstore",
	Short: "dirstore - an embedded directory partition storage engine",
	Long: `dirstore manages a single LDAP directory partition: a B+tree-backed
master table plus the system, alias, and user indices that keep entry
lookup, hierarchy traversal, and alias resolution consistent across
Add/Delete/Modify/Rename/Move.

Every subcommand opens one partition rooted at --data-dir and operates
directly on it; there is no server process to start.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"dirstore version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("data-dir", "./data", "Partition data directory")
	rootCmd.PersistentFlags().String("suffix", "dc=example,dc=com", "Partition suffix DN")
	rootCmd.PersistentFlags().Bool("sync-on-write", false, "Commit durably after every mutation")
	rootCmd.PersistentFlags().Int("cache-size", 0, "Record-manager page cache size, also used for the ndn/updn lookup caches (0 = 10000)")
	rootCmd.PersistentFlags().StringSlice("index", nil, "Attribute to maintain a user index on (repeatable)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(modifyCmd)
	rootCmd.AddCommand(renameCmd)
	rootCmd.AddCommand(moveCmd)
	rootCmd.AddCommand(indicesCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(serveCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

// openStore opens the partition rooted at --data-dir using the flags
// common to every subcommand. seed is nil except for init, which needs to
// seed the suffix entry the first time the partition is created.
func openStore(cmd *cobra.Command, seed *entry.Entry) (*partition.Store, error) {
	dataDir, _ := cmd.Flags().GetString("data-dir")
	suffix, _ := cmd.Flags().GetString("suffix")
	syncOnWrite, _ := cmd.Flags().GetBool("sync-on-write")
	cacheSize, _ := cmd.Flags().GetInt("cache-size")
	indexed, _ := cmd.Flags().GetStringSlice("index")

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir %s: %w", dataDir, err)
	}

	res := schema.NewDefaultSchema()

	cfg := partition.Config{
		WorkingDirectory: dataDir,
		CacheSize:        cacheSize,
		SyncOnWrite:      syncOnWrite,
		Name:             "cli",
		SuffixDN:         suffix,
		ContextEntry:     seed,
	}
	for _, attr := range indexed {
		cfg.IndexedAttributes = append(cfg.IndexedAttributes, partition.IndexedAttribute{AttrID: attr})
	}

	return partition.Open(cfg, res, entry.JSONCodec{})
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Open the partition and expose /metrics, /health, /ready, /live",
	Long: `serve opens the partition and blocks, periodically refreshing
Prometheus gauges from it and serving them alongside the health and
readiness endpoints. Useful for running dirstore as a supervised sidecar
next to whatever process embeds it for mutations.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(cmd, nil)
		if err != nil {
			return err
		}
		defer store.Close()

		addr, _ := cmd.Flags().GetString("addr")
		pprofEnabled, _ := cmd.Flags().GetBool("enable-pprof")

		collector := metrics.NewCollector(store)
		collector.Start()
		defer collector.Stop()

		metrics.RegisterComponent("store", true, "")

		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		mux.HandleFunc("/health", metrics.HealthHandler())
		mux.HandleFunc("/ready", metrics.ReadyHandler())
		mux.HandleFunc("/live", metrics.LivenessHandler())
		if pprofEnabled {
			mux.Handle("/debug/pprof/", http.DefaultServeMux)
			fmt.Printf("✓ Profiling endpoints enabled at http://%s/debug/pprof/\n", addr)
		}

		fmt.Printf("✓ Serving metrics at http://%s/metrics\n", addr)
		return http.ListenAndServe(addr, mux)
	},
}

func init() {
	serveCmd.Flags().String("addr", "127.0.0.1:9090", "Listen address for metrics/health endpoints")
	serveCmd.Flags().Bool("enable-pprof", false, "Enable pprof profiling endpoints")
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a partition, seeding its suffix entry",
	Long: `init opens (creating if absent) the partition at --data-dir and,
if the suffix entry does not already exist, seeds it with the objectClass
values given by --object-class.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		classes, _ := cmd.Flags().GetStringSlice("object-class")
		if len(classes) == 0 {
			classes = []string{"top", "organization"}
		}
		seed := entry.New()
		seed.Add("objectClass", classes...)

		store, err := openStore(cmd, seed)
		if err != nil {
			return err
		}
		defer store.Close()

		suffix, _ := cmd.Flags().GetString("suffix")
		id, err := store.GetEntryId(suffix)
		if err != nil {
			return fmt.Errorf("resolve suffix after init: %w", err)
		}
		fmt.Printf("✓ Partition ready at %s (suffix id %d)\n", suffix, id)
		return nil
	},
}

func init() {
	initCmd.Flags().StringSlice("object-class", nil, "objectClass values to seed the suffix entry with")
}
