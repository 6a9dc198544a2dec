package cli

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kiranshivaraju/steelsched/internal/ai"
	"github.com/kiranshivaraju/steelsched/internal/blob"
	"github.com/kiranshivaraju/steelsched/internal/cache"
	"github.com/kiranshivaraju/steelsched/internal/config"
	"github.com/kiranshivaraju/steelsched/internal/events"
	"github.com/kiranshivaraju/steelsched/internal/extract"
	"github.com/kiranshivaraju/steelsched/internal/jobs"
	"github.com/kiranshivaraju/steelsched/internal/pages"
	"github.com/kiranshivaraju/steelsched/internal/store"
	"github.com/kiranshivaraju/steelsched/internal/tabular"
	"github.com/kiranshivaraju/steelsched/pkg/models"
)

type parseOptions struct {
	dataDir string
	aliases string
}

type parseOutput struct {
	Run    *jobs.RunResult  `json:"run"`
	Import *jobs.ImportView `json:"import,omitempty"`
}

func newParseCommand(root *rootOptions) *cobra.Command {
	opts := &parseOptions{}
	cmd := &cobra.Command{
		Use:   "parse <file>",
		Short: "Run one file through the full pipeline",
		Long: `Run one file through the full pipeline: format dispatch, page
extraction or tabular parsing, structured extraction and review flagging.

Artifacts are written under --data-dir (a temporary directory by default)
and the run summary plus any imported items are printed as JSON.

Examples:
  steelsched parse schedule.pdf
  steelsched parse members.xlsx --data-dir ./out
  steelsched parse scan.pdf --mode ocr_only -v`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runParse(cmd, root, opts, args[0])
		},
	}
	cmd.Flags().StringVar(&opts.dataDir, "data-dir", "", "directory for blobs (default: temporary)")
	cmd.Flags().StringVar(&opts.aliases, "aliases", "", "YAML file of header aliases")
	return cmd
}

func runParse(cmd *cobra.Command, root *rootOptions, opts *parseOptions, file string) error {
	cfg, logger, err := loadConfig(cmd, root)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("read %s: %w", file, err)
	}

	dataDir := opts.dataDir
	if dataDir == "" {
		if dataDir, err = os.MkdirTemp("", "steelsched-*"); err != nil {
			return fmt.Errorf("create data dir: %w", err)
		}
		defer os.RemoveAll(dataDir)
	}
	if opts.aliases != "" {
		cfg.Pipeline.AliasesFile = opts.aliases
	}

	svc, err := newLocalService(cfg, dataDir, logger)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	run, err := svc.Ingest(ctx, jobs.IngestParams{
		Filename: filepath.Base(file),
		Data:     data,
		Mode:     models.JobMode(root.mode),
	})
	if err != nil {
		return err
	}

	out := parseOutput{Run: run}
	if run.ImportID != nil {
		if out.Import, err = svc.Import(ctx, *run.ImportID); err != nil {
			return err
		}
	}
	if err := writeJSON(cmd.OutOrStdout(), out); err != nil {
		return err
	}
	if !run.Success {
		return fmt.Errorf("job %s failed: %s", run.JobID, errorCode(run))
	}
	return nil
}

func errorCode(run *jobs.RunResult) string {
	if run.ErrorCode == nil {
		return "unknown error"
	}
	return string(*run.ErrorCode)
}

// newLocalService wires the job service to in-process collaborators.
func newLocalService(cfg *config.Config, dataDir string, logger *slog.Logger) (*jobs.Service, error) {
	blobs, err := blob.NewFSStore(dataDir)
	if err != nil {
		return nil, fmt.Errorf("create blob store: %w", err)
	}

	backend, err := ai.NewBackend(cfg.AI)
	if err != nil {
		return nil, fmt.Errorf("create AI backend: %w", err)
	}

	aliases := tabular.DefaultAliases()
	if cfg.Pipeline.AliasesFile != "" {
		if aliases, err = tabular.LoadAliases(cfg.Pipeline.AliasesFile); err != nil {
			return nil, fmt.Errorf("load header aliases: %w", err)
		}
	}

	return jobs.NewService(jobs.Deps{
		Store:  store.NewMemoryStore(),
		Blobs:  blobs,
		Cache:  cache.NewMemoryCache(),
		Events: events.LogPublisher{Logger: logger},
		Pages:  pages.FromConfig(cfg.OCR, logger),
		Engine: extract.NewEngine(backend, logger,
			extract.WithTimeout(cfg.AI.InferenceTimeout),
			extract.WithPromptBudget(cfg.Pipeline.PromptBudgetChars),
			extract.WithRateLimit(cfg.AI.RequestsPerSecond),
			extract.WithLogger(logger),
		),
		Parser: tabular.NewParser(aliases),
	}, jobs.Config{
		ArtifactBucket: cfg.Blob.ArtifactBucket,
		ChunkBudget:    cfg.Pipeline.ChunkBudgetChars,
		MaxAttempts:    cfg.Pipeline.MaxAttempts,
		Logger:         logger,
	}), nil
}
