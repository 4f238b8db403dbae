package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var configPath string

var rootCmd = &cobra.Command{
	Use:   "categorizer",
	Short: "Normalize and categorize bank statements",
	Long: `categorizer uploads bank statement exports, validates and imports their rows,
and labels every transaction with a category from rules or the ML predictor.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a TOML config file")

	rootCmd.AddCommand(
		uploadCmd(),
		previewCmd(),
		importCmd(),
		categorizeCmd(),
		processCmd(),
		listCmd(),
		transactionsCmd(),
		summaryCmd(),
		overrideCmd(),
		syncNotionCmd(),
		categoriesCmd(),
	)
}
