// Package reportcmder provides the report command merging capture logs
// into conversations.
package reportcmder

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/papercomputeco/splice/pkg/config"
	"github.com/papercomputeco/splice/pkg/conversation"
	"github.com/papercomputeco/splice/pkg/dotdir"
	"github.com/papercomputeco/splice/pkg/logger"
	"github.com/papercomputeco/splice/pkg/sink"
)

const reportLongDesc string = `Merge a JSONL capture log into conversations.

Reads the capture log, folds correlated pairs into conversations using
history continuation, and writes the result as JSON to stdout. Logger
output goes to stderr, so stdout can be piped.

Examples:
  splice report
  splice report --jsonl capture.jsonl --equality structural
  splice report --watch`

const reportShortDesc string = "Merge a capture log into conversations"

type ReportCommander struct {
	jsonlPath string
	equality  string
	watch     bool

	debug     bool
	configDir string
	v         *viper.Viper
	logger    *zap.Logger
}

var reportFlags = []string{
	config.FlagJSONLPath,
	config.FlagEquality,
}

func NewReportCmd() *cobra.Command {
	cmder := &ReportCommander{}

	cmd := &cobra.Command{
		Use:   "report",
		Short: reportShortDesc,
		Long:  reportLongDesc,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}
			cmder.configDir, err = cmd.Flags().GetString("config-dir")
			if err != nil {
				return fmt.Errorf("could not get config-dir flag: %w", err)
			}

			cmder.v, err = config.InitViper(cmder.configDir)
			if err != nil {
				return err
			}
			config.BindRegisteredFlags(cmder.v, cmd, config.Flags, reportFlags)

			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd.OutOrStdout())
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagJSONLPath, &cmder.jsonlPath)
	config.AddStringFlag(cmd, config.Flags, config.FlagEquality, &cmder.equality)
	cmd.Flags().BoolVarP(&cmder.watch, "watch", "w", false, "Re-merge whenever the capture log changes")

	return cmd
}

func (c *ReportCommander) run(out io.Writer) error {
	c.logger = logger.NewLogger(c.debug)
	defer c.logger.Sync()

	path := c.v.GetString("sink.jsonl_path")
	if !filepath.IsAbs(path) {
		target, err := dotdir.NewManager().Target(c.configDir)
		if err != nil {
			return err
		}
		path = filepath.Join(target, path)
	}

	eq := conversation.Equality(c.v.GetString("merge.equality"))

	if !c.watch {
		return c.merge(out, path, eq)
	}

	return c.watchAndMerge(out, path, eq)
}

// merge reads the capture log and writes merged conversations as JSON.
func (c *ReportCommander) merge(out io.Writer, path string, eq conversation.Equality) error {
	entries, err := sink.ReadJSONL(path)
	if err != nil {
		return fmt.Errorf("reading capture log: %w", err)
	}

	merger := conversation.NewMerger(
		conversation.WithEquality(eq),
		conversation.WithLogger(c.logger),
	)
	conversations := merger.Merge(entries)

	c.logger.Info("merged capture log",
		zap.String("path", path),
		zap.Int("entries", len(entries)),
		zap.Int("conversations", len(conversations)),
	)

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(conversations)
}

// watchAndMerge re-runs the merge whenever the capture log is written to.
func (c *ReportCommander) watchAndMerge(out io.Writer, path string, eq conversation.Equality) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory: the log file may not exist yet, and some sinks
	// replace rather than append.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watching %s: %w", filepath.Dir(path), err)
	}

	if err := c.merge(out, path, eq); err != nil {
		c.logger.Warn("initial merge failed", zap.Error(err))
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Name != path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if err := c.merge(out, path, eq); err != nil {
				c.logger.Warn("merge failed", zap.Error(err))
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			c.logger.Error("watch error", zap.Error(err))

		case sig := <-sigChan:
			c.logger.Info("received signal, stopping watch", zap.String("signal", sig.String()))
			return nil
		}
	}
}
