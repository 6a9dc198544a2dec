package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kiranshivaraju/steelsched/internal/pages"
	"github.com/kiranshivaraju/steelsched/pkg/models"
)

type pagesOutput struct {
	PageCount          int                    `json:"page_count"`
	SplitStrategy      models.SplitStrategy   `json:"split_strategy"`
	LowConfidencePages []int                  `json:"low_confidence_pages"`
	Pages              []models.PageRecord    `json:"pages"`
	Errors             []models.PipelineError `json:"errors"`
}

func newPagesCommand(root *rootOptions) *cobra.Command {
	var expected int
	cmd := &cobra.Command{
		Use:   "pages <file>",
		Short: "Show the per-page text, method and confidence of a PDF or text file",
		Long: `Show the per-page text, method and confidence of a PDF or text file.

Nothing is stored and no extraction backend is called.

Examples:
  steelsched pages schedule.pdf
  steelsched pages export.txt --expected-pages 4`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(cmd, root)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}

			format := pages.FormatText
			if strings.EqualFold(filepath.Ext(args[0]), ".pdf") {
				format = pages.FormatPDF
			}
			mode := models.JobMode(root.mode)
			if !mode.Valid() {
				return fmt.Errorf("invalid mode %q", root.mode)
			}

			res := pages.FromConfig(cfg.OCR, logger).Extract(cmd.Context(), pages.Request{
				Data:          data,
				Format:        format,
				Mode:          mode,
				ExpectedPages: expected,
			})
			errs := res.Errors
			if errs == nil {
				errs = []models.PipelineError{}
			}
			return writeJSON(cmd.OutOrStdout(), pagesOutput{
				PageCount:          res.PageCount,
				SplitStrategy:      res.SplitStrategy,
				LowConfidencePages: models.ComputeLowConfidencePages(res.Pages),
				Pages:              res.Pages,
				Errors:             errs,
			})
		},
	}
	cmd.Flags().IntVar(&expected, "expected-pages", 0, "page count for text without form feeds")
	return cmd
}
