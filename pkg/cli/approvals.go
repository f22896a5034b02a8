package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/m-mizutani/burrow/pkg/model"
)

func approvalsCommand() *cli.Command {
	return &cli.Command{
		Name:  "approvals",
		Usage: "Inspect and resolve pending approvals",
		Commands: []*cli.Command{
			approvalsListCommand(),
			approvalsResolveCommand("approve", model.ApprovalApproved),
			approvalsResolveCommand("reject", model.ApprovalRejected),
		},
	}
}

func approvalsListCommand() *cli.Command {
	var cfg config

	return &cli.Command{
		Name:  "list",
		Usage: "List approvals still awaiting a decision",
		Flags: globalFlags(&cfg),
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setupLogging(ctx)

			repo, err := cfg.newRepository(ctx)
			if err != nil {
				return err
			}
			defer repo.Close()

			records, err := repo.ListPendingApprovals(ctx)
			if err != nil {
				return err
			}

			if len(records) == 0 {
				fmt.Fprintln(c.Root().Writer, "no pending approvals")
				return nil
			}
			for _, r := range records {
				fmt.Fprintf(c.Root().Writer, "%s  [%s] %s (%s, confidence %.2f, requested %s)\n",
					r.ID, r.Risk, r.Description, r.ToolName, r.Confidence,
					r.RequestedAt.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}
}

func approvalsResolveCommand(name string, state model.ApprovalState) *cli.Command {
	var (
		cfg      config
		resolver string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "resolver",
			Usage:       "Identity recorded as the resolver",
			Value:       defaultResolver(),
			Destination: &resolver,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:      name,
		Usage:     name + " a pending approval",
		ArgsUsage: "<approval-id>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setupLogging(ctx)

			if c.Args().Len() != 1 {
				return goerr.New("approval ID is required")
			}
			id := model.ApprovalID(c.Args().First())

			repo, err := cfg.newRepository(ctx)
			if err != nil {
				return err
			}
			defer repo.Close()

			gate, err := cfg.newGate(ctx, repo)
			if err != nil {
				return err
			}

			record, err := gate.Resolve(ctx, id, state, resolver)
			if err != nil {
				return err
			}

			fmt.Fprintf(c.Root().Writer, "%s: %s by %s\n", record.ID, record.State, record.Resolver)
			return nil
		},
	}
}

func defaultResolver() string {
	if user := os.Getenv("USER"); user != "" {
		return user
	}
	return "operator"
}
