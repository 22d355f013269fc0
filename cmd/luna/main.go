package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "luna",
	Short: "Offline personal assistant core",
	Long: `luna — offline personal assistant core.

Run without arguments for the interactive REPL. Each line is one utterance:
luna either answers conversationally or routes it through the safety
validator to a shell command, speaking the response when speech is enabled.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runREPL,
}

func main() {
	// Local overrides (OLLAMA_HOST, LUNA_MODEL) may live in a .env next to
	// the binary during development.
	_ = godotenv.Load(".env")

	rootCmd.AddCommand(getAskCommand(), getDoctorCommand(), getVersionCommand())
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func getVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the luna version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("luna %s\n", version)
		},
	}
}
