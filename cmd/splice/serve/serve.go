// Package servecmder provides the serve command running the capture proxy.
package servecmder

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/papercomputeco/splice/pkg/config"
	"github.com/papercomputeco/splice/pkg/correlate"
	"github.com/papercomputeco/splice/pkg/dotdir"
	"github.com/papercomputeco/splice/pkg/eventstream"
	"github.com/papercomputeco/splice/pkg/eventstream/kafka"
	"github.com/papercomputeco/splice/pkg/logger"
	"github.com/papercomputeco/splice/pkg/sink"
	"github.com/papercomputeco/splice/pkg/sink/postgres"
	"github.com/papercomputeco/splice/pkg/sink/sqlite"
	"github.com/papercomputeco/splice/proxy"
)

const serveLongDesc string = `Run the splice capture proxy.

The proxy fronts the upstream API, forwards traffic verbatim, and logs
correlated request/response pairs to the configured sink. Point an agent
CLI at the proxy (for claude, set ANTHROPIC_BASE_URL) and use it normally.

Examples:
  splice serve
  splice serve --listen :8484 --sink sqlite --sqlite capture.db
  SPLICE_SINK_DRIVER=postgres splice serve`

const serveShortDesc string = "Run the capture proxy"

type ServeCommander struct {
	listen      string
	upstream    string
	sinkDriver  string
	jsonlPath   string
	sqlitePath  string
	postgresDSN string

	debug     bool
	configDir string
	v         *viper.Viper
	logger    *zap.Logger
}

var serveFlags = []string{
	config.FlagListen,
	config.FlagUpstream,
	config.FlagSinkDriver,
	config.FlagJSONLPath,
	config.FlagSQLitePath,
	config.FlagPostgresDSN,
}

func NewServeCmd() *cobra.Command {
	cmder := &ServeCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
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
			config.BindRegisteredFlags(cmder.v, cmd, config.Flags, serveFlags)

			return nil
		},
		RunE: func(_ *cobra.Command, _ []string) error {
			return cmder.run()
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagListen, &cmder.listen)
	config.AddStringFlag(cmd, config.Flags, config.FlagUpstream, &cmder.upstream)
	config.AddStringFlag(cmd, config.Flags, config.FlagSinkDriver, &cmder.sinkDriver)
	config.AddStringFlag(cmd, config.Flags, config.FlagJSONLPath, &cmder.jsonlPath)
	config.AddStringFlag(cmd, config.Flags, config.FlagSQLitePath, &cmder.sqlitePath)
	config.AddStringFlag(cmd, config.Flags, config.FlagPostgresDSN, &cmder.postgresDSN)

	return cmd
}

func (c *ServeCommander) run() error {
	c.logger = logger.NewLogger(c.debug)
	defer c.logger.Sync()

	base, err := c.createSink()
	if err != nil {
		return err
	}

	out := sink.NewAsync(sink.AsyncConfig{
		Next:       base,
		NumWorkers: c.v.GetUint("sink.workers"),
		QueueSize:  c.v.GetUint("sink.queue_size"),
		Logger:     c.logger,
	})

	engine := correlate.NewEngine(out,
		correlate.WithLogger(c.logger),
		correlate.WithTargetPaths(c.v.GetStringSlice("capture.target_paths")...),
		correlate.WithEchoHeader(c.v.GetString("capture.echo_header")),
		correlate.WithAuditCap(c.v.GetInt("capture.audit_cap")),
	)

	p, err := proxy.New(proxy.Config{
		ListenAddr:  c.v.GetString("proxy.listen"),
		UpstreamURL: c.v.GetString("proxy.upstream"),
	}, engine, c.logger)
	if err != nil {
		return fmt.Errorf("creating proxy: %w", err)
	}

	errChan := make(chan error, 1)
	go func() {
		if err := p.Run(); err != nil {
			errChan <- fmt.Errorf("proxy error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		// Drain pending requests and flush the sink before reporting.
		engine.Drain()
		_ = out.Close()
		return err
	case sig := <-sigChan:
		c.logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
	}

	// Close order matters: the proxy drains the engine via OnShutdown,
	// then the async sink flushes its queue into the backend.
	if err := p.Close(); err != nil {
		c.logger.Error("proxy shutdown failed", zap.Error(err))
	}
	return out.Close()
}

// createSink builds the configured sink backend, optionally wrapped with
// pair event publishing.
func (c *ServeCommander) createSink() (sink.Sink, error) {
	var base sink.Sink

	switch driver := c.v.GetString("sink.driver"); driver {
	case "jsonl":
		path, err := c.resolvePath(c.v.GetString("sink.jsonl_path"))
		if err != nil {
			return nil, err
		}
		base, err = sink.NewJSONL(path)
		if err != nil {
			return nil, fmt.Errorf("creating jsonl sink: %w", err)
		}
		c.logger.Info("logging captures to jsonl", zap.String("path", path))

	case "sqlite":
		path, err := c.resolvePath(c.v.GetString("sink.sqlite_path"))
		if err != nil {
			return nil, err
		}
		base, err = sqlite.New(path)
		if err != nil {
			return nil, fmt.Errorf("creating sqlite sink: %w", err)
		}
		c.logger.Info("logging captures to sqlite", zap.String("path", path))

	case "postgres":
		s, err := postgres.New(context.Background(), c.v.GetString("sink.postgres_dsn"))
		if err != nil {
			return nil, fmt.Errorf("creating postgres sink: %w", err)
		}
		base = s
		c.logger.Info("logging captures to postgres")

	default:
		return nil, fmt.Errorf("unknown sink driver: %q", driver)
	}

	if !c.v.GetBool("eventstream.enabled") {
		return base, nil
	}

	publisher, err := kafka.NewPublisher(kafka.Config{
		Brokers: c.v.GetStringSlice("eventstream.brokers"),
		Topic:   c.v.GetString("eventstream.topic"),
	})
	if err != nil {
		return nil, fmt.Errorf("creating kafka publisher: %w", err)
	}

	c.logger.Info("publishing pair events",
		zap.Strings("brokers", c.v.GetStringSlice("eventstream.brokers")),
		zap.String("topic", c.v.GetString("eventstream.topic")),
	)

	source := eventstream.EventSource{Upstream: c.v.GetString("proxy.upstream")}
	return sink.NewPublishing(base, publisher, source, c.logger), nil
}

// resolvePath anchors relative sink paths in the .splice/ directory.
func (c *ServeCommander) resolvePath(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("sink path is required")
	}
	if filepath.IsAbs(path) {
		return path, nil
	}

	target, err := dotdir.NewManager().Target(c.configDir)
	if err != nil {
		return "", err
	}
	return filepath.Join(target, path), nil
}
