package cli

import (
	"context"
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel"

	"github.com/m-mizutani/burrow/pkg/adapter"
	"github.com/m-mizutani/burrow/pkg/agent"
	"github.com/m-mizutani/burrow/pkg/approval"
	"github.com/m-mizutani/burrow/pkg/gap"
	"github.com/m-mizutani/burrow/pkg/memory"
	"github.com/m-mizutani/burrow/pkg/repository"
	"github.com/m-mizutani/burrow/pkg/risk"
	"github.com/m-mizutani/burrow/pkg/service/mcp"
	"github.com/m-mizutani/burrow/pkg/telemetry"
	"github.com/m-mizutani/burrow/pkg/tool"
	"github.com/m-mizutani/burrow/pkg/tool/clock"
	"github.com/m-mizutani/burrow/pkg/tool/memtool"
	"github.com/m-mizutani/burrow/pkg/utils/logging"
)

// config holds configuration values
type config struct {
	// Storage backend: Firestore when database is set, SQLite otherwise
	sqlitePath string
	project    string
	database   string
	dimension  int64

	// Adapters
	geminiLocation string
	bucket         string
	dataset        string

	// Risk / approval
	policyDir  string
	mcpConfig  string
	confidence float64

	logLevel string
}

// setupLogging installs the default logger and returns a context carrying it
func (cfg *config) setupLogging(ctx context.Context) context.Context {
	logger := logging.New(cfg.logLevel, os.Stderr)
	logging.SetDefault(logger)
	return logging.With(ctx, logger)
}

// globalFlags returns common flags used across commands with destination config
func globalFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "sqlite-path",
			Usage:       "Path to the SQLite database file",
			Value:       "burrow.db",
			Sources:     cli.EnvVars("BURROW_SQLITE_PATH"),
			Destination: &cfg.sqlitePath,
		},
		&cli.StringFlag{
			Name:        "project",
			Aliases:     []string{"p"},
			Usage:       "Google Cloud project ID (Firestore, BigQuery, Gemini)",
			Sources:     cli.EnvVars("GOOGLE_CLOUD_PROJECT"),
			Destination: &cfg.project,
		},
		&cli.StringFlag{
			Name:        "database",
			Aliases:     []string{"d"},
			Usage:       "Firestore database ID; when set, Firestore replaces SQLite",
			Sources:     cli.EnvVars("FIRESTORE_DATABASE_ID"),
			Destination: &cfg.database,
		},
		&cli.IntFlag{
			Name:        "dimension",
			Usage:       "Embedding dimension for documents and queries",
			Value:       adapter.DefaultEmbeddingDimension,
			Sources:     cli.EnvVars("BURROW_EMBEDDING_DIMENSION"),
			Destination: &cfg.dimension,
		},
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "Log level (debug, info, warn, error)",
			Value:       "info",
			Sources:     cli.EnvVars("BURROW_LOG_LEVEL"),
			Destination: &cfg.logLevel,
		},
	}
}

// agentFlags returns flags for commands that run the agent
func agentFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "gemini-location",
			Usage:       "Google Cloud location for Gemini",
			Value:       "us-central1",
			Sources:     cli.EnvVars("GEMINI_LOCATION"),
			Destination: &cfg.geminiLocation,
		},
		&cli.StringFlag{
			Name:        "policy-dir",
			Usage:       "Directory of Rego policies extending the risk table",
			Sources:     cli.EnvVars("BURROW_POLICY_DIR"),
			Destination: &cfg.policyDir,
		},
		&cli.StringFlag{
			Name:        "mcp-config",
			Usage:       "Path to MCP server configuration YAML",
			Sources:     cli.EnvVars("BURROW_MCP_CONFIG"),
			Destination: &cfg.mcpConfig,
		},
		&cli.StringFlag{
			Name:        "bucket",
			Usage:       "Cloud Storage bucket for oversized tool results",
			Sources:     cli.EnvVars("BURROW_BUCKET"),
			Destination: &cfg.bucket,
		},
		&cli.StringFlag{
			Name:        "dataset",
			Usage:       "BigQuery dataset for the audit trail export",
			Sources:     cli.EnvVars("BURROW_BIGQUERY_DATASET"),
			Destination: &cfg.dataset,
		},
		&cli.FloatFlag{
			Name:        "confidence",
			Usage:       "Agent confidence for delayed-action auto-execution",
			Value:       agent.DefaultConfidence,
			Sources:     cli.EnvVars("BURROW_CONFIDENCE"),
			Destination: &cfg.confidence,
		},
	}
}

// newRecorder wires spans into whatever tracer provider the process has
// installed; without one this degrades to no-op spans.
func (cfg *config) newRecorder() *telemetry.Recorder {
	return telemetry.New(otel.GetTracerProvider())
}

// newRepository creates the storage backend
func (cfg *config) newRepository(ctx context.Context) (repository.Repository, error) {
	if cfg.database != "" {
		if cfg.project == "" {
			return nil, goerr.New("project is required for Firestore")
		}
		return repository.NewFirestore(ctx, cfg.project, cfg.database, int(cfg.dimension))
	}

	return repository.NewSQLite(cfg.sqlitePath, int(cfg.dimension))
}

// newMemory creates the memory manager over the given repository
func (cfg *config) newMemory(repo repository.Repository) (*memory.Manager, error) {
	return memory.New(memory.NewInput{
		Repo:      repo,
		Recorder:  cfg.newRecorder(),
		Dimension: int(cfg.dimension),
	})
}

// newGemini creates a new Gemini adapter instance
func (cfg *config) newGemini(ctx context.Context) (adapter.Gemini, error) {
	if cfg.project == "" {
		return nil, goerr.New("project is required for Gemini")
	}
	return adapter.NewGemini(ctx, cfg.project, cfg.geminiLocation,
		adapter.WithEmbeddingDimension(int(cfg.dimension)))
}

// newClassifier creates the risk classifier, extended by the policy dir
func (cfg *config) newClassifier(ctx context.Context) (*risk.Classifier, error) {
	var opts []risk.Option
	if cfg.policyDir != "" {
		policyOpts, err := risk.LoadPolicyDir(ctx, cfg.policyDir)
		if err != nil {
			return nil, err
		}
		opts = policyOpts
	}
	return risk.New(opts...), nil
}

// newGate creates the approval gate, with BigQuery export when configured
func (cfg *config) newGate(ctx context.Context, repo repository.Repository) (*approval.Gate, error) {
	input := approval.NewInput{
		Repo:     repo,
		Recorder: cfg.newRecorder(),
	}

	if cfg.dataset != "" {
		if cfg.project == "" {
			return nil, goerr.New("project is required for BigQuery export")
		}
		exporter, err := adapter.NewAuditExporter(ctx, cfg.project, cfg.dataset)
		if err != nil {
			return nil, err
		}
		input.Exporter = exporter
	}

	return approval.New(input)
}

// components bundles everything an agent command needs
type components struct {
	repo     repository.Repository
	memory   *memory.Manager
	gate     *approval.Gate
	executor *agent.Executor
}

func (c *components) Close() error {
	return c.repo.Close()
}

// newComponents assembles the full agent stack
func (cfg *config) newComponents(ctx context.Context) (*components, error) {
	repo, err := cfg.newRepository(ctx)
	if err != nil {
		return nil, err
	}

	mgr, err := cfg.newMemory(repo)
	if err != nil {
		return nil, err
	}

	gemini, err := cfg.newGemini(ctx)
	if err != nil {
		return nil, err
	}

	classifier, err := cfg.newClassifier(ctx)
	if err != nil {
		return nil, err
	}

	gate, err := cfg.newGate(ctx, repo)
	if err != nil {
		return nil, err
	}

	detector, err := gap.New(adapter.NewCapabilityExtractor(gemini), cfg.newRecorder())
	if err != nil {
		return nil, err
	}

	tools := []tool.Tool{
		memtool.NewSearch(mgr, gemini),
		memtool.NewStore(mgr, gemini),
		clock.New(),
	}

	if cfg.mcpConfig != "" {
		provider, err := mcp.LoadAndConnect(ctx, cfg.mcpConfig)
		if err != nil {
			return nil, err
		}
		if provider != nil {
			tools = append(tools, provider)
		}
	}

	input := agent.NewInput{
		Gemini:     gemini,
		Memory:     mgr,
		Registry:   tool.New(tools...),
		Classifier: classifier,
		Gate:       gate,
		Detector:   detector,
		Recorder:   cfg.newRecorder(),
		Confidence: cfg.confidence,
	}

	if cfg.bucket != "" {
		storage, err := adapter.NewStorage(ctx, cfg.bucket)
		if err != nil {
			return nil, err
		}
		input.Storage = storage
	}

	if cfg.dataset != "" && cfg.project != "" {
		exporter, err := adapter.NewAuditExporter(ctx, cfg.project, cfg.dataset)
		if err != nil {
			return nil, err
		}
		input.Audit = exporter
	}

	executor, err := agent.New(input)
	if err != nil {
		return nil, err
	}

	return &components{
		repo:     repo,
		memory:   mgr,
		gate:     gate,
		executor: executor,
	}, nil
}
