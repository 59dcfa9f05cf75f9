package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	dataDir        string
	defaultCfgPath string
	version        = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "engine",
	Short: "Job application tracker engine",
	Long: `engine watches a mailbox for hiring-pipeline emails, infers each
application's status and keeps the local job tracker up to date.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	def := os.Getenv("JOBTRACK_DATA_DIR")
	if def == "" {
		def = "."
	}
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", def, "directory holding config.yml and the database")
	rootCmd.PersistentFlags().StringVar(&defaultCfgPath, "default-config", "config/config.yml", "config copied into the data dir on first run")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(pollCmd)
	rootCmd.AddCommand(cipherCmd)
}
