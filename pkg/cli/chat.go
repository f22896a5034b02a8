package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"github.com/urfave/cli/v3"

	"github.com/m-mizutani/burrow/pkg/model"
	"github.com/m-mizutani/burrow/pkg/utils/logging"
)

func chatCommand() *cli.Command {
	var (
		cfg       config
		sessionID string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "session",
			Aliases:     []string{"s"},
			Usage:       "Session to continue (a new one is created when empty)",
			Destination: &sessionID,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, agentFlags(&cfg)...)

	return &cli.Command{
		Name:  "chat",
		Usage: "Interactive session with the agent",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setupLogging(ctx)

			comps, err := cfg.newComponents(ctx)
			if err != nil {
				return err
			}
			defer comps.Close()

			sid, err := resolveSession(ctx, comps, sessionID)
			if err != nil {
				return err
			}

			out := c.Root().Writer
			fmt.Fprintf(out, "session: %s (type 'exit' to quit)\n", sid)

			rl, err := readline.New("burrow> ")
			if err != nil {
				return err
			}
			defer rl.Close()

			return chatLoop(ctx, comps, rl, out, sid)
		},
	}
}

func chatLoop(ctx context.Context, comps *components, rl *readline.Instance, out io.Writer, sessionID model.SessionID) error {
	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		task := strings.TrimSpace(line)
		switch task {
		case "":
			continue
		case "exit", "quit":
			return nil
		}

		result, err := executeTask(ctx, comps, out, sessionID, task)
		if err != nil {
			logging.From(ctx).Error("task failed", "error", err)
			fmt.Fprintf(out, "error: %s\n", err)
			continue
		}

		if err := printResult(out, result); err != nil {
			return err
		}
	}
}
