package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

const version = "1.0.0"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  `Display the current version of the llmtrader CLI.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("llmtrader version %s\n", version)
		fmt.Println("An automated trading executor driven by LLM-generated signals")
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
