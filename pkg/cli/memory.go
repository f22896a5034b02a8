package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/m-mizutani/burrow/pkg/model"
)

func sessionCommand() *cli.Command {
	var (
		cfg      config
		owner    string
		metadata string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "owner",
			Aliases:     []string{"o"},
			Usage:       "Owner of the session",
			Required:    true,
			Destination: &owner,
		},
		&cli.StringFlag{
			Name:        "metadata",
			Aliases:     []string{"m"},
			Usage:       "Session metadata as a JSON object",
			Destination: &metadata,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:  "session",
		Usage: "Session management",
		Commands: []*cli.Command{
			{
				Name:  "new",
				Usage: "Create a new session",
				Flags: flags,
				Action: func(ctx context.Context, c *cli.Command) error {
					ctx = cfg.setupLogging(ctx)

					meta, err := parseMetadata(metadata)
					if err != nil {
						return err
					}

					repo, err := cfg.newRepository(ctx)
					if err != nil {
						return err
					}
					defer repo.Close()

					mgr, err := cfg.newMemory(repo)
					if err != nil {
						return err
					}

					id, err := mgr.CreateSession(ctx, owner, meta)
					if err != nil {
						return err
					}

					fmt.Fprintf(c.Root().Writer, "%s\n", id)
					return nil
				},
			},
		},
	}
}

func messageCommand() *cli.Command {
	var (
		cfg       config
		sessionID string
		role      string
		content   string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "session",
			Aliases:     []string{"s"},
			Usage:       "Session ID (a fresh one is provisioned if unknown)",
			Required:    true,
			Destination: &sessionID,
		},
		&cli.StringFlag{
			Name:        "role",
			Aliases:     []string{"r"},
			Usage:       "Message role (user, assistant, system)",
			Value:       string(model.RoleUser),
			Destination: &role,
		},
		&cli.StringFlag{
			Name:        "content",
			Aliases:     []string{"c"},
			Usage:       "Message content",
			Required:    true,
			Destination: &content,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:  "message",
		Usage: "Message management",
		Commands: []*cli.Command{
			{
				Name:  "post",
				Usage: "Append a message to a session",
				Flags: flags,
				Action: func(ctx context.Context, c *cli.Command) error {
					ctx = cfg.setupLogging(ctx)

					repo, err := cfg.newRepository(ctx)
					if err != nil {
						return err
					}
					defer repo.Close()

					mgr, err := cfg.newMemory(repo)
					if err != nil {
						return err
					}

					id, err := mgr.StoreMessage(ctx, model.SessionID(sessionID), model.Role(role), content, nil)
					if err != nil {
						return err
					}

					fmt.Fprintf(c.Root().Writer, "%s\n", id)
					return nil
				},
			},
		},
	}
}

func historyCommand() *cli.Command {
	var (
		cfg       config
		sessionID string
		limit     int64
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "session",
			Aliases:     []string{"s"},
			Usage:       "Session ID",
			Required:    true,
			Destination: &sessionID,
		},
		&cli.IntFlag{
			Name:        "limit",
			Aliases:     []string{"n"},
			Usage:       "Max messages to show",
			Value:       50,
			Destination: &limit,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:  "history",
		Usage: "Show conversation history, oldest first",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setupLogging(ctx)

			repo, err := cfg.newRepository(ctx)
			if err != nil {
				return err
			}
			defer repo.Close()

			mgr, err := cfg.newMemory(repo)
			if err != nil {
				return err
			}

			msgs, err := mgr.GetConversationHistory(ctx, model.SessionID(sessionID), int(limit))
			if err != nil {
				return err
			}

			for _, msg := range msgs {
				fmt.Fprintf(c.Root().Writer, "[%s] %-9s %s\n",
					msg.CreatedAt.Format("2006-01-02 15:04:05"), msg.Role, msg.Content)
			}
			return nil
		},
	}
}

func rememberCommand() *cli.Command {
	var (
		cfg      config
		content  string
		metadata string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "content",
			Aliases:     []string{"c"},
			Usage:       "The text to remember",
			Required:    true,
			Destination: &content,
		},
		&cli.StringFlag{
			Name:        "metadata",
			Aliases:     []string{"m"},
			Usage:       "Document metadata as a JSON object",
			Destination: &metadata,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, agentFlags(&cfg)...)

	return &cli.Command{
		Name:  "remember",
		Usage: "Store a document in semantic memory",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setupLogging(ctx)

			meta, err := parseMetadata(metadata)
			if err != nil {
				return err
			}

			repo, err := cfg.newRepository(ctx)
			if err != nil {
				return err
			}
			defer repo.Close()

			mgr, err := cfg.newMemory(repo)
			if err != nil {
				return err
			}

			gemini, err := cfg.newGemini(ctx)
			if err != nil {
				return err
			}

			vector, err := gemini.Embedding(ctx, content)
			if err != nil {
				return err
			}

			id, err := mgr.StoreDocument(ctx, content, meta, vector)
			if err != nil {
				return err
			}

			fmt.Fprintf(c.Root().Writer, "%s\n", id)
			return nil
		},
	}
}

func recallCommand() *cli.Command {
	var (
		cfg     config
		query   string
		topK    int64
		filters string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "query",
			Aliases:     []string{"q"},
			Usage:       "What to recall",
			Required:    true,
			Destination: &query,
		},
		&cli.IntFlag{
			Name:        "top-k",
			Aliases:     []string{"k"},
			Usage:       "Max results",
			Value:       5,
			Destination: &topK,
		},
		&cli.StringFlag{
			Name:        "filters",
			Aliases:     []string{"f"},
			Usage:       "Metadata filters as a JSON object",
			Destination: &filters,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, agentFlags(&cfg)...)

	return &cli.Command{
		Name:  "recall",
		Usage: "Search semantic memory",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setupLogging(ctx)

			filterMeta, err := parseMetadata(filters)
			if err != nil {
				return err
			}

			repo, err := cfg.newRepository(ctx)
			if err != nil {
				return err
			}
			defer repo.Close()

			mgr, err := cfg.newMemory(repo)
			if err != nil {
				return err
			}

			gemini, err := cfg.newGemini(ctx)
			if err != nil {
				return err
			}

			vector, err := gemini.Embedding(ctx, query)
			if err != nil {
				return err
			}

			results, err := mgr.SemanticSearch(ctx, vector, int(topK), filterMeta)
			if err != nil {
				return err
			}

			if len(results) == 0 {
				fmt.Fprintln(c.Root().Writer, "no matching documents")
				return nil
			}
			for i, r := range results {
				fmt.Fprintf(c.Root().Writer, "%d. [%.4f] %s\n", i+1, r.Distance, r.Document.Content)
			}
			return nil
		},
	}
}

func timelineCommand() *cli.Command {
	var (
		cfg     config
		since   string
		until   string
		filters string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "since",
			Usage:       "Range start (RFC3339)",
			Required:    true,
			Destination: &since,
		},
		&cli.StringFlag{
			Name:        "until",
			Usage:       "Range end (RFC3339, default: now)",
			Destination: &until,
		},
		&cli.StringFlag{
			Name:        "filters",
			Aliases:     []string{"f"},
			Usage:       "Metadata filters as a JSON object",
			Destination: &filters,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:  "timeline",
		Usage: "List documents created within a time range, newest first",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setupLogging(ctx)

			start, err := time.Parse(time.RFC3339, since)
			if err != nil {
				return goerr.Wrap(err, "invalid --since", goerr.V("value", since))
			}
			end := time.Now()
			if until != "" {
				end, err = time.Parse(time.RFC3339, until)
				if err != nil {
					return goerr.Wrap(err, "invalid --until", goerr.V("value", until))
				}
			}

			filterMeta, err := parseMetadata(filters)
			if err != nil {
				return err
			}

			repo, err := cfg.newRepository(ctx)
			if err != nil {
				return err
			}
			defer repo.Close()

			mgr, err := cfg.newMemory(repo)
			if err != nil {
				return err
			}

			docs, err := mgr.TemporalQuery(ctx, start, end, filterMeta)
			if err != nil {
				return err
			}

			for _, doc := range docs {
				fmt.Fprintf(c.Root().Writer, "[%s] %s\n",
					doc.CreatedAt.Format("2006-01-02 15:04:05"), doc.Content)
			}
			return nil
		},
	}
}

func healthCommand() *cli.Command {
	var cfg config

	return &cli.Command{
		Name:  "health",
		Usage: "Check storage reachability and vector index version",
		Flags: globalFlags(&cfg),
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setupLogging(ctx)

			repo, err := cfg.newRepository(ctx)
			if err != nil {
				return err
			}
			defer repo.Close()

			mgr, err := cfg.newMemory(repo)
			if err != nil {
				return err
			}

			status, err := mgr.HealthCheck(ctx)
			if err != nil {
				return err
			}

			fmt.Fprintf(c.Root().Writer, "healthy: %v\nbackend: %s\nvector index: %s\n",
				status.Healthy, status.Backend, status.VectorIndexVersion)
			return nil
		},
	}
}

func parseMetadata(raw string) (model.Metadata, error) {
	if raw == "" {
		return nil, nil
	}
	var meta model.Metadata
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		return nil, goerr.Wrap(err, "metadata is not a JSON object", goerr.V("raw", raw))
	}
	return meta, nil
}
