package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/m-mizutani/burrow/pkg/agent"
	"github.com/m-mizutani/burrow/pkg/model"
	"github.com/m-mizutani/burrow/pkg/utils/logging"
)

func runCommand() *cli.Command {
	var (
		cfg       config
		sessionID string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "session",
			Aliases:     []string{"s"},
			Usage:       "Session to run in (a new one is created when empty)",
			Destination: &sessionID,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, agentFlags(&cfg)...)

	return &cli.Command{
		Name:      "run",
		Usage:     "Run a single task through the agent",
		ArgsUsage: "<task>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setupLogging(ctx)

			task := strings.Join(c.Args().Slice(), " ")
			if strings.TrimSpace(task) == "" {
				return goerr.New("task is required")
			}

			comps, err := cfg.newComponents(ctx)
			if err != nil {
				return err
			}
			defer comps.Close()

			sid, err := resolveSession(ctx, comps, sessionID)
			if err != nil {
				return err
			}

			result, err := executeTask(ctx, comps, c.Root().Writer, sid, task)
			if err != nil {
				return err
			}

			return printResult(c.Root().Writer, result)
		},
	}
}

// resolveSession reuses the given session or provisions a fresh one
func resolveSession(ctx context.Context, comps *components, sessionID string) (model.SessionID, error) {
	if sessionID != "" {
		return model.SessionID(sessionID), nil
	}
	return comps.memory.CreateSession(ctx, defaultResolver(), nil)
}

// executeTask runs the agent in the background while watching the gate for
// pending approvals. Each new pending record stops the spinner and asks the
// operator on the terminal; unanswered prompts reject.
func executeTask(ctx context.Context, comps *components, out io.Writer, sessionID model.SessionID, task string) (*agent.Result, error) {
	sp := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
	sp.Suffix = " working..."
	sp.Start()
	defer sp.Stop()

	type outcome struct {
		result *agent.Result
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := comps.executor.Run(ctx, agent.RunInput{
			SessionID: sessionID,
			Task:      task,
		})
		done <- outcome{result: result, err: err}
	}()

	stdin := bufio.NewReader(os.Stdin)
	seen := map[model.ApprovalID]struct{}{}
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case o := <-done:
			return o.result, o.err

		case <-ticker.C:
			records, err := comps.gate.Pending(ctx)
			if err != nil {
				logging.From(ctx).Warn("failed to list pending approvals", "error", err)
				continue
			}
			for _, record := range records {
				if _, ok := seen[record.ID]; ok {
					continue
				}
				seen[record.ID] = struct{}{}

				sp.Stop()
				promptApproval(ctx, comps, stdin, out, record)
				sp.Start()
			}
		}
	}
}

func promptApproval(ctx context.Context, comps *components, stdin *bufio.Reader, out io.Writer, record *model.ApprovalRecord) {
	params, _ := json.Marshal(record.Parameters)

	fmt.Fprintf(out, "\napproval required: %s\n", record.Description)
	fmt.Fprintf(out, "  tool: %s\n", record.ToolName)
	fmt.Fprintf(out, "  risk: %s\n", record.Risk)
	fmt.Fprintf(out, "  parameters: %s\n", string(params))
	fmt.Fprint(out, "approve? [y/N]: ")

	state := model.ApprovalRejected
	if line, err := stdin.ReadString('\n'); err == nil {
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			state = model.ApprovalApproved
		}
	}

	if _, err := comps.gate.Resolve(ctx, record.ID, state, defaultResolver()); err != nil {
		// The gate may have timed out the record while the operator was typing
		if model.IsConflict(err) {
			fmt.Fprintln(out, "already resolved")
			return
		}
		logging.From(ctx).Warn("failed to resolve approval", "id", record.ID, "error", err)
	}
}

func printResult(out io.Writer, result *agent.Result) error {
	if result.GapReport != nil {
		raw, err := json.MarshalIndent(result.GapReport, "", "  ")
		if err != nil {
			return goerr.Wrap(err, "failed to encode gap report")
		}
		fmt.Fprintln(out, "cannot execute this task with the available tools:")
		fmt.Fprintln(out, string(raw))
		return nil
	}

	for _, call := range result.ToolCalls {
		fmt.Fprintf(out, "[%s] %s (%s, %s)\n", call.CalledAt.Format("15:04:05"), call.ToolName, call.Risk, call.Status)
	}
	fmt.Fprintln(out, result.Answer)
	return nil
}
