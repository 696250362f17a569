package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"adminbot/internal/audit"
	"adminbot/internal/config"
	"adminbot/internal/redis"
	"adminbot/internal/registry"
	"adminbot/internal/storage"
)

var commandsFile string

var commandsCmd = &cobra.Command{
	Use:   "commands",
	Short: "Validate a custom commands file and list what the bot would offer",
	Long: `Loads the custom commands file the bot would load and prints every
command with the steps of the custom ones. Without --file the file comes
from the configuration (bot.commands_file or ADMINBOT_COMMANDS_FILE).`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := commandsFile
		if path == "" {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config (or pass --file): %w", err)
			}
			path = cfg.Bot.CommandsFile
		}
		composites, err := registry.Load(path)
		if err != nil {
			return err
		}
		reg := registry.New(composites, logger.Named("registry"))
		return printCommands(cmd.OutOrStdout(), path, reg)
	},
}

func printCommands(out io.Writer, path string, reg *registry.Registry) error {
	fmt.Fprintf(out, "# %s\n", path)
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "COMMAND\tTYPE\tDESCRIPTION")
	for _, info := range reg.Commands() {
		kind := "builtin"
		if info.Composite {
			kind = "custom"
		}
		fmt.Fprintf(w, "/%s\t%s\t%s\n", info.Name, kind, info.Description)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	for _, c := range reg.Composites() {
		fmt.Fprintf(out, "\n/%s\n", c.Name)
		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		for _, s := range c.Steps {
			fmt.Fprintf(w, "  %s\t%s\n", s.Label, s.Command)
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}
	return nil
}

var (
	auditLimit  int
	auditFollow bool
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Print audit records from the configured database, or follow them live over Redis",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if auditFollow {
			return followAudit(cmd.Context(), cmd.OutOrStdout(), cfg)
		}
		if cfg.Audit.Database == "" {
			return fmt.Errorf("audit.database is not configured")
		}
		db, err := storage.Open(cfg.Audit.Database, cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		records, err := audit.NewSQLSink(db).Recent(cmd.Context(), auditLimit)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tPRINCIPAL\tACTION\tOUTCOME\tDETAIL")
		for _, rec := range records {
			writeRecord(w, rec)
		}
		return w.Flush()
	},
}

// followAudit prints records published on the audit channel until
// interrupted.
func followAudit(parent context.Context, out io.Writer, cfg *config.Config) error {
	if !cfg.Redis.Enabled {
		return fmt.Errorf("--follow needs redis.enabled")
	}
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb, err := redis.NewRedisClient(cfg.Redis)
	if err != nil {
		return err
	}
	defer rdb.Close()

	sub, err := rdb.Subscribe(ctx, cfg.Audit.RedisChannel)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", cfg.Audit.RedisChannel, err)
	}
	defer sub.Close()

	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			var rec audit.Record
			if err := json.Unmarshal([]byte(msg.Payload), &rec); err != nil {
				logger.Warn("skipping malformed audit message", zap.Error(err))
				continue
			}
			writeRecord(out, rec)
		}
	}
}

func writeRecord(w io.Writer, rec audit.Record) {
	fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\n",
		rec.CreatedAt.Local().Format(time.DateTime), rec.Principal, rec.Action, rec.Outcome, rec.Detail)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "adminbot %s (%s %s/%s)\n", version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
	},
}

func init() {
	commandsCmd.Flags().StringVarP(&commandsFile, "file", "f", "", "commands file (JSON with comments or YAML); defaults to the configured one")
	auditCmd.Flags().IntVarP(&auditLimit, "limit", "n", 50, "number of records to show")
	auditCmd.Flags().BoolVarP(&auditFollow, "follow", "F", false, "stream new records from the Redis audit channel")
}
