package pipablectl

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pipable/pipable/internal/prompt"
	"github.com/pipable/pipable/internal/schema"
)

func (r *runner) schemaCommand() *cobra.Command {
	var tables []string
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the CREATE TABLE context sent to the model",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			executor, err := r.newExecutor()
			if err != nil {
				return err
			}
			if err := executor.Connect(ctx); err != nil {
				return fmt.Errorf("connect: %w", err)
			}
			defer func() { _ = executor.Disconnect(ctx) }()

			extractor := schema.NewExtractor(executor, r.cfg.Database.Namespace, r.logger)
			statements, err := extractor.Statements(ctx, tables)
			if err != nil {
				return err
			}
			for _, statement := range statements {
				_, _ = fmt.Fprintln(r.stdout, statement)
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&tables, "table", "t", nil, "table to describe (repeatable)")
	return cmd
}

func (r *runner) promptCommand() *cobra.Command {
	var schemaContext string
	cmd := &cobra.Command{
		Use:   "prompt <question>",
		Short: "Print the prompt the server would send for a context and question",
		Args:  questionArg,
		RunE: func(_ *cobra.Command, args []string) error {
			formatted, stats := prompt.FormatWithStats(strings.TrimSpace(schemaContext), strings.TrimSpace(args[0]))
			if stats.Skipped > 0 {
				r.logger.Warn("skipped context fragments that are not CREATE TABLE statements", slog.Int("skipped", stats.Skipped))
			}
			_, _ = fmt.Fprintln(r.stdout, formatted)
			return nil
		},
	}
	cmd.Flags().StringVar(&schemaContext, "context", "", "CREATE TABLE statements separated by semicolons")
	return cmd
}

func (r *runner) askCommand() *cobra.Command {
	var tables []string
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Generate SQL for a question",
		Args:  questionArg,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			p, err := r.openPipable(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = p.Disconnect(ctx) }()

			sql, err := p.Ask(ctx, args[0], tables...)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(r.stdout, sql)
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&tables, "table", "t", nil, "restrict the context to a table (repeatable)")
	return cmd
}

func (r *runner) execCommand() *cobra.Command {
	var (
		tables      []string
		asJSON      bool
		parquetPath string
	)
	cmd := &cobra.Command{
		Use:   "exec <question>",
		Short: "Generate SQL for a question and run it",
		Args:  questionArg,
		RunE: func(cmd *cobra.Command, args []string) error {
			if asJSON && parquetPath != "" {
				return usageError{fmt.Errorf("--json and --parquet are mutually exclusive")}
			}
			ctx := cmd.Context()
			p, err := r.openPipable(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = p.Disconnect(ctx) }()

			result, err := p.AskAndExecute(ctx, args[0], tables...)
			if err != nil {
				return err
			}
			switch {
			case parquetPath != "":
				rows, err := writeResultParquet(parquetPath, result)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(r.stdout, "wrote %d cells to %s\n", rows, parquetPath)
				return nil
			case asJSON:
				encoder := json.NewEncoder(r.stdout)
				encoder.SetIndent("", "  ")
				return encoder.Encode(resultJSON{Columns: result.Columns, Rows: result.Rows})
			default:
				rendered, err := renderTable(result)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintln(r.stdout, rendered)
				return nil
			}
		},
	}
	cmd.Flags().StringSliceVarP(&tables, "table", "t", nil, "restrict the context to a table (repeatable)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")
	cmd.Flags().StringVar(&parquetPath, "parquet", "", "write the result to a parquet file (row, column, value)")
	return cmd
}

func (r *runner) trainCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "train <dataset_path>",
		Short: "Fine-tune the served model on a JSON lines dataset",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 || strings.TrimSpace(args[0]) == "" {
				return usageError{fmt.Errorf("%s takes exactly one dataset path", cmd.Name())}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := r.client()
			if err != nil {
				return err
			}
			resp, err := client.Train(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if resp.Status != "success" {
				return fmt.Errorf("training failed: %s", resp.Message)
			}
			_, _ = fmt.Fprintln(r.stdout, resp.Message)
			return nil
		},
	}
}

func (r *runner) healthCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the pipable server is up",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := r.client()
			if err != nil {
				return err
			}
			body, err := client.Health(cmd.Context())
			if err != nil {
				return err
			}
			encoder := json.NewEncoder(r.stdout)
			encoder.SetIndent("", "  ")
			return encoder.Encode(body)
		},
	}
}

func noArgs(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		return usageError{fmt.Errorf("%s takes no arguments", cmd.Name())}
	}
	return nil
}
