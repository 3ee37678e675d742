package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/hupe1980/bmapdb"
	"github.com/hupe1980/bmapdb/blobstore"
	bsminio "github.com/hupe1980/bmapdb/blobstore/minio"
	bss3 "github.com/hupe1980/bmapdb/blobstore/s3"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/spf13/cobra"
)

var (
	dbDir       string
	memoryLimit int64
	ioLimit     int64
	logLevel    string
	codecName   string
	workers     int64
)

var rootCmd = &cobra.Command{
	Use:          "bmapctl",
	Short:        "CLI tool for bmapdb table directories",
	Long:         `A command-line interface for inspecting, repairing and backing up bmapdb tables.`,
	SilenceUsage: true,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the tables on disk",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		infos, err := db.List()
		if err != nil {
			return fmt.Errorf("failed to list tables: %w", err)
		}

		outputJSON, _ := cmd.Flags().GetBool("json")
		if outputJSON {
			return printJSON(infos)
		}
		for _, info := range infos {
			if info.Kind == bmapdb.KindScalar {
				fmt.Printf("%-32s %-7s %s\n", info.Name, info.Kind, info.TypeCode)
			} else {
				fmt.Printf("%-32s %s\n", info.Name, info.Kind)
			}
		}
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats [name...]",
	Short: "Display table statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		names, err := tableNames(db, args)
		if err != nil {
			return err
		}

		var all []bmapdb.TableStats
		for _, name := range names {
			tbl, err := db.OpenTable(name)
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", name, err)
			}
			stats, err := tbl.Stats()
			_ = tbl.Close()
			if err != nil {
				return fmt.Errorf("failed to get stats of %s: %w", name, err)
			}
			all = append(all, stats)
		}

		outputJSON, _ := cmd.Flags().GetBool("json")
		if outputJSON {
			return printJSON(all)
		}
		for _, s := range all {
			fmt.Printf("Table: %s\n", s.Name)
			fmt.Printf("  Kind: %s\n", s.Kind)
			if s.Kind == bmapdb.KindScalar {
				fmt.Printf("  Type code: %s\n", s.TypeCode)
				fmt.Printf("  State: %s\n", s.State)
				fmt.Printf("  Pending inserts: %d\n", s.PendingInserts)
				fmt.Printf("  Pending deletes: %d\n", s.PendingDeletes)
			}
			fmt.Printf("  Records: %d\n", s.Records)
			fmt.Printf("  Mapped: %.2f MB\n", float64(s.MappedBytes)/(1024*1024))
			if s.Crashed {
				fmt.Printf("  Crashed: %s\n", s.CrashReason)
			}
			if !s.Times.Modified.IsZero() {
				fmt.Printf("  Modified: %s\n", s.Times.Modified.Format("2006-01-02 15:04:05"))
			}
		}
		es := db.Stats()
		fmt.Printf("Memory: %.2f MB used, %.2f MB peak, %.2f MB limit\n",
			mb(es.MemoryUsage), mb(es.MemoryPeak), mb(es.MemoryLimit))
		return nil
	},
}

var checkCmd = &cobra.Command{
	Use:   "check [name...]",
	Short: "Check tables for damage",
	RunE: func(cmd *cobra.Command, args []string) error {
		repair, _ := cmd.Flags().GetBool("repair")
		return runCheck(cmd.Context(), args, repair)
	},
}

var repairCmd = &cobra.Command{
	Use:   "repair [name...]",
	Short: "Check tables and repair damaged ones",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCheck(cmd.Context(), args, true)
	},
}

var dumpCmd = &cobra.Command{
	Use:   "dump <name>",
	Short: "Print the rows of a table",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		byValue, _ := cmd.Flags().GetBool("by-value")

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		tbl, err := db.OpenTable(args[0])
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", args[0], err)
		}
		defer tbl.Close()

		n := 0
		more := func() bool {
			n++
			return limit <= 0 || n < limit
		}
		switch t := tbl.(type) {
		case *bmapdb.BitmapTable:
			return t.ForEach(func(key uint64) bool {
				fmt.Println(key)
				return more()
			})
		case *bmapdb.ScalarTable:
			show := func(key uint64, v any) bool {
				fmt.Printf("%d\t%v\n", key, v)
				return more()
			}
			if byValue {
				return t.AscendValues(show)
			}
			return t.AscendKeys(show)
		}
		return nil
	},
}

var exportCmd = &cobra.Command{
	Use:   "export <name> <file>",
	Short: "Write a snapshot of a table to a file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		f, err := os.Create(args[1])
		if err != nil {
			return err
		}
		if err := db.Export(cmd.Context(), args[0], f); err != nil {
			_ = f.Close()
			_ = os.Remove(args[1])
			return fmt.Errorf("failed to export %s: %w", args[0], err)
		}
		if err := f.Close(); err != nil {
			return err
		}
		fmt.Printf("Table '%s' exported to %s\n", args[0], args[1])
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import <name> <file>",
	Short: "Replace a table with a snapshot file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		f, err := os.Open(args[1])
		if err != nil {
			return err
		}
		defer f.Close()

		if err := db.Import(cmd.Context(), args[0], f); err != nil {
			return fmt.Errorf("failed to import %s: %w", args[0], err)
		}
		fmt.Printf("Table '%s' imported from %s\n", args[0], args[1])
		return nil
	},
}

var backupCmd = &cobra.Command{
	Use:   "backup <target> [name...]",
	Short: "Back up tables to a directory, s3://bucket/prefix or minio://host/bucket/prefix",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.Backup(cmd.Context(), store, args[1:]...); err != nil {
			return fmt.Errorf("backup failed: %w", err)
		}
		fmt.Printf("Backup to %s completed\n", args[0])
		return nil
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore <source> [name...]",
	Short: "Restore tables from a backup",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.Restore(cmd.Context(), store, args[1:]...); err != nil {
			return fmt.Errorf("restore failed: %w", err)
		}
		fmt.Printf("Restore from %s completed\n", args[0])
		return nil
	},
}

var dropCmd = &cobra.Command{
	Use:   "drop <name>",
	Short: "Delete a table",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.Drop(args[0]); err != nil {
			return fmt.Errorf("failed to drop %s: %w", args[0], err)
		}
		fmt.Printf("Table '%s' dropped\n", args[0])
		return nil
	},
}

func runCheck(ctx context.Context, names []string, repair bool) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	names, err = tableNames(db, names)
	if err != nil {
		return err
	}
	// CheckAll covers open tables, so keep every requested one open.
	for _, name := range names {
		tbl, err := db.OpenTable(name)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", name, err)
		}
		defer tbl.Close()
	}

	results, err := db.CheckAll(ctx, repair)
	if err != nil {
		return err
	}
	failed := 0
	for _, r := range results {
		switch {
		case r.Err != nil:
			failed++
			fmt.Printf("%-32s FAILED: %v\n", r.Name, r.Err)
		case r.Repaired:
			fmt.Printf("%-32s repaired\n", r.Name)
		default:
			fmt.Printf("%-32s ok\n", r.Name)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d tables damaged", failed, len(results))
	}
	return nil
}

func tableNames(db *bmapdb.DB, names []string) ([]string, error) {
	if len(names) > 0 {
		return names, nil
	}
	infos, err := db.List()
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	for _, info := range infos {
		names = append(names, info.Name)
	}
	return names, nil
}

func openDB() (*bmapdb.DB, error) {
	if dbDir == "" {
		return nil, fmt.Errorf("database directory not specified")
	}
	level, err := parseLevel(logLevel)
	if err != nil {
		return nil, err
	}
	codec, err := bmapdb.ParseCodec(codecName)
	if err != nil {
		return nil, err
	}

	db, err := bmapdb.Open(dbDir,
		bmapdb.WithLogLevel(level),
		bmapdb.WithMemoryLimit(memoryLimit),
		bmapdb.WithIOLimit(ioLimit),
		bmapdb.WithMaxBackgroundWorkers(workers),
		bmapdb.WithSnapshotCodec(codec),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

// openStore resolves a backup target. Credentials for s3:// come from the
// default AWS chain, for minio:// from MINIO_ACCESS_KEY and
// MINIO_SECRET_KEY.
func openStore(ctx context.Context, target string) (blobstore.Store, error) {
	switch {
	case strings.HasPrefix(target, "s3://"):
		bucket, prefix, _ := strings.Cut(strings.TrimPrefix(target, "s3://"), "/")
		return bss3.New(ctx, bucket, bss3.WithPrefix(prefix))
	case strings.HasPrefix(target, "minio://"):
		parts := strings.SplitN(strings.TrimPrefix(target, "minio://"), "/", 3)
		if len(parts) < 2 {
			return nil, fmt.Errorf("minio target must be minio://host/bucket[/prefix]")
		}
		client, err := minio.New(parts[0], &minio.Options{
			Creds:  credentials.NewStaticV4(os.Getenv("MINIO_ACCESS_KEY"), os.Getenv("MINIO_SECRET_KEY"), ""),
			Secure: os.Getenv("MINIO_SECURE") == "true",
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create minio client: %w", err)
		}
		prefix := ""
		if len(parts) == 3 {
			prefix = parts[2]
		}
		return bsminio.NewStore(client, parts[1], prefix), nil
	default:
		if err := os.MkdirAll(target, 0o755); err != nil {
			return nil, err
		}
		return blobstore.NewLocalStore(target), nil
	}
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return level, fmt.Errorf("invalid log level %q", s)
	}
	return level, nil
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func mb(b int64) float64 { return float64(b) / (1024 * 1024) }

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&dbDir, "dir", "d", ".", "Database directory")
	rootCmd.PersistentFlags().Int64Var(&memoryLimit, "memory-limit", 1<<30, "Mapped memory budget in bytes (0 for unlimited)")
	rootCmd.PersistentFlags().Int64Var(&ioLimit, "io-limit", 0, "Snapshot IO limit in bytes per second (0 for unlimited)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (debug/info/warn/error)")
	rootCmd.PersistentFlags().StringVar(&codecName, "codec", "zstd", "Snapshot codec (none/lz4/zstd)")
	rootCmd.PersistentFlags().Int64Var(&workers, "workers", 4, "Background workers for check and backup")

	listCmd.Flags().Bool("json", false, "Output as JSON")
	statsCmd.Flags().Bool("json", false, "Output as JSON")
	checkCmd.Flags().Bool("repair", false, "Repair damaged tables")
	dumpCmd.Flags().Int("limit", 0, "Maximum number of rows (0 for all)")
	dumpCmd.Flags().Bool("by-value", false, "Print scalar rows in value order")

	rootCmd.AddCommand(
		listCmd,
		statsCmd,
		checkCmd,
		repairCmd,
		dumpCmd,
		exportCmd,
		importCmd,
		backupCmd,
		restoreCmd,
		dropCmd,
	)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Fatal(err)
	}
}
