// Command uicp validates, hashes and applies UI mutation batches.
//
// It is the CLI surface over the core pipeline: batches come in as JSON
// (a bare envelope array or a plan object), are validated against the
// closed operation schemas, stamped with identity keys, permission-checked
// and applied to an in-memory window tree.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"uicp/internal/config"
	"uicp/internal/engine"
	"uicp/internal/identity"
	"uicp/internal/state"
	"uicp/internal/validate"
	"uicp/internal/window"
)

var (
	cfgPath string
	verbose bool

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "uicp",
	Short: "uicp - validate and apply UI mutation batches",
	Long: `uicp is the safety boundary between planner-generated JSON and live UI
state. Batches are validated against closed per-operation schemas,
content-hashed for idempotency, permission-checked, sanitized and applied
with per-target deduplication.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgPath)
		if err != nil {
			return err
		}

		zcfg := zap.NewProductionConfig()
		if cfg.Logging.Development {
			zcfg = zap.NewDevelopmentConfig()
		}
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		} else if lvl, lerr := zapcore.ParseLevel(cfg.Logging.Level); lerr == nil {
			zcfg.Level = zap.NewAtomicLevelAt(lvl)
		}
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Validate a batch or plan without applying it",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := readInput(args)
		if err != nil {
			return err
		}
		batch, err := validate.Batch(raw)
		if err != nil {
			return err
		}
		fmt.Printf("ok: %d envelope(s)\n", len(batch))
		return nil
	},
}

var hashCmd = &cobra.Command{
	Use:   "hash [file]",
	Short: "Print the stable content hash of a batch",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := readInput(args)
		if err != nil {
			return err
		}
		batch, err := validate.Batch(raw)
		if err != nil {
			return err
		}
		fmt.Println(identity.BatchHash(batch))
		return nil
	},
}

var dumpWindows bool

var applyCmd = &cobra.Command{
	Use:   "apply [file]",
	Short: "Apply a batch to a fresh in-memory window tree",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := readInput(args)
		if err != nil {
			return err
		}

		windows := window.NewManager(logger)
		store := state.NewStore(logger)
		eng := engine.New(cfg.Engine, windows, store,
			engine.WithLogger(logger),
			engine.WithNotifier(func(ev engine.Event) {
				logger.Debug("event",
					zap.String("type", string(ev.Type)),
					zap.String("op", string(ev.Op)),
					zap.String("windowId", string(ev.WindowID)))
			}))

		result, err := eng.Run(raw)
		if err != nil {
			return err
		}

		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))

		if dumpWindows {
			for _, id := range windows.IDs() {
				rec, ok := windows.Record(id)
				if !ok {
					continue
				}
				fmt.Printf("--- window %s (%q, %dx%d)\n%s\n",
					id, rec.Title, rec.Width, rec.Height, rec.ContentHTML())
			}
		}
		if len(result.Errors) > 0 {
			return fmt.Errorf("%d envelope(s) failed", len(result.Errors))
		}
		return nil
	},
}

// readInput reads the batch JSON from the file argument or stdin.
func readInput(args []string) ([]byte, error) {
	if len(args) == 1 && args[0] != "-" {
		return os.ReadFile(args[0])
	}
	return io.ReadAll(os.Stdin)
}

func main() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to yaml config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	applyCmd.Flags().BoolVar(&dumpWindows, "dump", false, "print window contents after applying")

	rootCmd.AddCommand(validateCmd, hashCmd, applyCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
