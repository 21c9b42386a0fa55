package cmd

import (
	"errors"
	"io/fs"
	"log"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Version is set at build time with -ldflags "-X github.com/ca-srg/halalfinder/cmd.Version=..."
var Version = "dev"

var envFile string

var rootCmd = &cobra.Command{
	Use:   "halalfinder",
	Short: "Find alcohol-free restaurants near an address or your location",
	Long: `halalfinder searches the Google Places API for restaurants that do not
serve alcohol (halal, alcohol-free, non-alcoholic), filters out bars, pubs
and chains known to serve alcohol, and lists the rest by distance.

It runs as a one-shot CLI search, a local web UI, or an MCP server.
Configuration is read from environment variables and an optional .env file.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadDotEnv(envFile)
	},
}

func Execute() error {
	return rootCmd.Execute()
}

// loadDotEnv loads environment overrides from path. A missing file is not an error.
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		log.Printf("Warning: Error loading %s file: %v", path, err)
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to a .env file with configuration overrides")

	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(webuiCmd)
	rootCmd.AddCommand(mcpServerCmd)
	rootCmd.AddCommand(statsCmd)
}
