package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var envFiles []string

var rootCmd = &cobra.Command{
	Use:   "typerace",
	Short: "TypeRace - multiplayer typing race",
	Long: `TypeRace runs the race server by default.
Subcommands apply database migrations and race from the terminal.`,
	SilenceUsage: true,
	Run: func(cmd *cobra.Command, args []string) {
		runApp()
	},
}

func init() {
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "dotenv files to load instead of .env")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
