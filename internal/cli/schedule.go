package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kiranshivaraju/steelsched/internal/blob"
	"github.com/kiranshivaraju/steelsched/internal/jobs"
	"github.com/kiranshivaraju/steelsched/internal/tabular"
	"github.com/kiranshivaraju/steelsched/pkg/models"
)

type scheduleOutput struct {
	Format    string                `json:"format"`
	Items     []models.ScheduleItem `json:"items"`
	RowErrors []models.RowError     `json:"row_errors"`
}

func newScheduleCommand() *cobra.Command {
	var aliasesFile string
	cmd := &cobra.Command{
		Use:   "schedule <file>",
		Short: "Parse a CSV, TSV or XLSX schedule into items",
		Long: `Parse a CSV, TSV or XLSX schedule into items without running a job.

Headers are matched through the alias table; pass --aliases to extend it.

Examples:
  steelsched schedule members.csv
  steelsched schedule project.xlsx --aliases aliases.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}

			aliases := tabular.DefaultAliases()
			if aliasesFile != "" {
				if aliases, err = tabular.LoadAliases(aliasesFile); err != nil {
					return fmt.Errorf("load header aliases: %w", err)
				}
			}
			parser := tabular.NewParser(aliases)

			format, route, err := jobs.Dispatch(filepath.Base(args[0]), &blob.Object{Data: data}, parser)
			if err != nil {
				return err
			}
			if route != jobs.RouteTabular {
				return fmt.Errorf("%s is not a tabular schedule; use parse instead", args[0])
			}

			var res *tabular.Result
			if format == jobs.FormatXLSX {
				res, err = parser.ReadWorkbook(data)
			} else {
				res, err = parser.ReadDelimited(data)
			}
			if err != nil {
				return fmt.Errorf("parse %s: %w", args[0], err)
			}

			out := scheduleOutput{Format: format, Items: res.Items, RowErrors: res.RowErrors}
			if out.Items == nil {
				out.Items = []models.ScheduleItem{}
			}
			if out.RowErrors == nil {
				out.RowErrors = []models.RowError{}
			}
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().StringVar(&aliasesFile, "aliases", "", "YAML file of header aliases")
	return cmd
}
