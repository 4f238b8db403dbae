package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/dvloznov/statement-categorizer/internal/app"
	"github.com/dvloznov/statement-categorizer/internal/config"
	"github.com/dvloznov/statement-categorizer/internal/domain"
	"github.com/dvloznov/statement-categorizer/internal/gcsuploader"
	"github.com/dvloznov/statement-categorizer/internal/logger"
	"github.com/dvloznov/statement-categorizer/internal/notionsync"
	"github.com/dvloznov/statement-categorizer/internal/pipeline"
	"github.com/spf13/cobra"
)

// withApp loads configuration, wires the application and runs fn with it.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	a, err := app.New(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := logger.WithContext(cmd.Context(), a.Log)
	return fn(ctx, a)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func uploadCmd() *cobra.Command {
	var (
		bank    string
		process bool
	)
	cmd := &cobra.Command{
		Use:   "upload FILE|gs://BUCKET/OBJECT",
		Short: "Upload a CSV export or a JSON array of rows",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				st, err := upload(ctx, a, bank, args[0])
				if err != nil {
					return err
				}
				if !process {
					return printJSON(cmd.OutOrStdout(), st)
				}
				state, err := a.Service.Process(ctx, st.StatementID)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), state)
			})
		},
	}
	cmd.Flags().StringVar(&bank, "bank", "", "issuing bank (HDFC, KOTAK, SBI, ICICI); detected when empty")
	cmd.Flags().BoolVar(&process, "process", false, "import and categorize right after the upload")
	return cmd
}

// upload reads a local file or a gs:// object and uploads it. Files ending in
// .json hold an array of rows; anything else is read as CSV.
func upload(ctx context.Context, a *app.App, bank, source string) (*domain.Statement, error) {
	var (
		name string
		data []byte
		err  error
	)
	if strings.HasPrefix(source, "gs://") {
		if a.Archiver == nil {
			return nil, errors.New("a GCS bucket must be configured to upload from gs://")
		}
		name = gcsuploader.ExtractFilenameFromGCSURI(source)
		data, err = a.Archiver.Fetch(ctx, source)
	} else {
		name = filepath.Base(source)
		data, err = os.ReadFile(source)
	}
	if err != nil {
		return nil, fmt.Errorf("upload: %w", err)
	}
	return uploadBytes(ctx, a.Service, bank, name, data)
}

func uploadBytes(ctx context.Context, svc *pipeline.Service, bank, name string, data []byte) (*domain.Statement, error) {
	if !strings.EqualFold(filepath.Ext(name), ".json") {
		return svc.UploadCSV(ctx, bank, name, bytes.NewReader(data))
	}

	var rows []domain.RawRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("uploadBytes: decoding rows: %w", err)
	}
	return svc.Upload(ctx, pipeline.Upload{Bank: bank, Filename: name, Rows: rows, Raw: data})
}

func previewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "preview STATEMENT_ID",
		Short: "Validate a statement without importing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				p, err := a.Service.Preview(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), p)
			})
		},
	}
}

func importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import STATEMENT_ID",
		Short: "Import the valid rows of a statement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				res, err := a.Service.Import(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}
}

func categorizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "categorize STATEMENT_ID",
		Short: "Categorize the imported transactions of a statement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				res, err := a.Service.Categorize(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}
}

func processCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "process STATEMENT_ID",
		Short: "Import and categorize a statement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				state, err := a.Service.Process(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), state)
			})
		},
	}
}

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List statements",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				stmts, err := a.Service.Statements(ctx)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tBANK\tROWS\tSTATUS\tFILE\tCREATED")
				for _, st := range stmts {
					fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\n",
						st.StatementID, st.Bank, st.RowCount, st.Status, st.SourceFilename,
						st.CreatedAt.Format("2006-01-02 15:04"))
				}
				return tw.Flush()
			})
		},
	}
}

func summaryCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "summary STATEMENT_ID",
		Short: "Show debit totals of a statement per category and month",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				sum, err := a.Service.Summary(ctx, args[0])
				if err != nil {
					return err
				}
				if asJSON {
					return printJSON(cmd.OutOrStdout(), sum)
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "MONTH\tCATEGORY\tCOUNT\tDEBIT")
				for _, m := range sum.Months {
					for _, c := range m.Categories {
						fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", m.Month, c.Category, c.Count, c.Debit)
					}
				}
				for _, c := range sum.Categories {
					fmt.Fprintf(tw, "all\t%s\t%d\t%s\n", c.Category, c.Count, c.Debit)
				}
				fmt.Fprintf(tw, "all\ttotal\t%d\t%s\n", sum.Count, sum.Debit)
				return tw.Flush()
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

func transactionsCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "transactions STATEMENT_ID",
		Short: "Show the transactions of a statement with their categories",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				txns, err := a.Service.Transactions(ctx, args[0])
				if err != nil {
					return err
				}
				if asJSON {
					return printJSON(cmd.OutOrStdout(), txns)
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ROW\tDATE\tDESCRIPTION\tNET\tCATEGORY\tMETHOD\tCONF")
				for _, t := range txns {
					fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%.2f\n",
						t.RowNumber, t.Date, t.Description,
						domain.FormatAmount(domain.Net(t.Debit, t.Credit)),
						t.Category, t.Method, t.Confidence)
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

func overrideCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "override TRANSACTION_ID CATEGORY",
		Short: "Pin a transaction to a category",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				t, err := a.Service.Override(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s\n", t.TransactionID, t.Category)
				return nil
			})
		},
	}
}

func syncNotionCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "sync-notion STATEMENT_ID",
		Short: "Mirror a statement's transactions into the Notion database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				if a.Config.Notion.Token == "" || a.Config.Notion.DatabaseID == "" {
					return errors.New("notion token and database id must be configured")
				}
				syncer := notionsync.NewSyncer(
					notionsync.NewNotionClient(a.Config.Notion.Token),
					a.Config.Notion.DatabaseID,
					dryRun,
				)
				res, err := syncer.SyncStatement(ctx, notionsync.ListerFunc(a.Service.Transactions), args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report changes without writing to Notion")
	return cmd
}

func categoriesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "categories",
		Short: "List the supported categories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "# category set %s\n", domain.CategorySetVersion)
			for _, c := range domain.CategoryNames() {
				fmt.Fprintln(cmd.OutOrStdout(), c)
			}
			return nil
		},
	}
}
