// Package tokencmder provides the token command extracting an agent's
// bearer token.
package tokencmder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/papercomputeco/splice/pkg/correlate"
	"github.com/papercomputeco/splice/pkg/credentials"
	"github.com/papercomputeco/splice/pkg/logger"
	"github.com/papercomputeco/splice/pkg/sink"
	"github.com/papercomputeco/splice/proxy"
)

const tokenLongDesc string = `Extract an agent CLI's bearer token.

Starts a capture proxy on an ephemeral port, runs the agent CLI against it
with a throwaway prompt, and waits for the first Authorization header to
pass through. The extracted token is printed to stdout and, with --save,
stored in credentials.toml.

Examples:
  splice token
  splice token claude --save
  splice token --prompt "hi" --timeout 60s`

const tokenShortDesc string = "Extract an agent's bearer token"

const agentClaude = "claude"

type TokenCommander struct {
	prompt  string
	timeout time.Duration
	save    bool

	debug     bool
	configDir string
	logger    *zap.Logger
}

func NewTokenCmd() *cobra.Command {
	cmder := &TokenCommander{}

	cmd := &cobra.Command{
		Use:   "token [agent]",
		Short: tokenShortDesc,
		Long:  tokenLongDesc,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}
			cmder.configDir, err = cmd.Flags().GetString("config-dir")
			if err != nil {
				return fmt.Errorf("could not get config-dir flag: %w", err)
			}

			agent := agentClaude
			if len(args) == 1 {
				agent = strings.ToLower(strings.TrimSpace(args[0]))
			}

			return cmder.run(cmd.Context(), agent, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&cmder.prompt, "prompt", "hello", "Throwaway prompt sent through the agent")
	cmd.Flags().DurationVar(&cmder.timeout, "timeout", 30*time.Second, "How long to wait for a token")
	cmd.Flags().BoolVar(&cmder.save, "save", false, "Store the extracted token in credentials.toml")

	return cmd
}

func (c *TokenCommander) run(ctx context.Context, agent string, out io.Writer) error {
	if agent != agentClaude {
		return fmt.Errorf("unsupported agent: %s", agent)
	}

	c.logger = logger.NewLogger(c.debug)
	defer c.logger.Sync()

	// First token wins; later requests carry the same one.
	tokenChan := make(chan string, 1)

	engine := correlate.NewEngine(sink.NewMemory(), correlate.WithLogger(c.logger))
	p, err := proxy.New(proxy.Config{
		OnBearerToken: func(token string) {
			select {
			case tokenChan <- token:
			default:
			}
		},
	}, engine, c.logger)
	if err != nil {
		return fmt.Errorf("creating proxy: %w", err)
	}
	defer p.Close()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("binding ephemeral port: %w", err)
	}

	go func() {
		if err := p.RunWithListener(listener); err != nil {
			c.logger.Error("proxy stopped", zap.Error(err))
		}
	}()

	baseURL := "http://" + listener.Addr().String()
	c.logger.Info("running agent through capture proxy",
		zap.String("agent", agent),
		zap.String("base_url", baseURL),
	)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// #nosec G204 -- agent commands are restricted to known binaries.
	agentCmd := exec.CommandContext(runCtx, agent, "-p", c.prompt)
	agentCmd.Env = append(os.Environ(), "ANTHROPIC_BASE_URL="+baseURL)

	if err := agentCmd.Start(); err != nil {
		return fmt.Errorf("starting %s: %w", agent, err)
	}
	defer func() {
		cancel()
		_ = agentCmd.Wait()
	}()

	select {
	case token := <-tokenChan:
		fmt.Fprintln(out, token)

		if c.save {
			mgr, err := credentials.NewManager(c.configDir)
			if err != nil {
				return fmt.Errorf("opening credentials: %w", err)
			}
			if err := mgr.SetToken(agent, token); err != nil {
				return fmt.Errorf("saving token: %w", err)
			}
			c.logger.Info("token saved", zap.String("path", mgr.GetTarget()))
		}
		return nil

	case <-time.After(c.timeout):
		return errors.New("timed out waiting for a bearer token")

	case <-ctx.Done():
		return ctx.Err()
	}
}
