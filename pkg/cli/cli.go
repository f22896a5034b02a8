// Package cli wires the storage, memory, risk and agent components into
// the burrow command line tool.
package cli

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/m-mizutani/burrow/pkg/utils/logging"
)

type Error struct {
	Code    int
	Message string
}

func Run(ctx context.Context, argv []string) *Error {
	cmd := &cli.Command{
		Name:  "burrow",
		Usage: "Durable agent memory with risk-gated execution",
		Commands: []*cli.Command{
			sessionCommand(),
			messageCommand(),
			historyCommand(),
			rememberCommand(),
			recallCommand(),
			timelineCommand(),
			healthCommand(),
			approvalsCommand(),
			runCommand(),
			chatCommand(),
		},
	}

	if err := cmd.Run(ctx, argv); err != nil {
		logging.Default().Error("command failed", "error", err)
		return &Error{
			Code:    1,
			Message: err.Error(),
		}
	}

	return nil
}
