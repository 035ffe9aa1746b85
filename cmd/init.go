package cmd

import (
	"github.com/spf13/cobra"

	"github.com/ziadkadry99/lanne/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize lanne configuration with an interactive wizard",
	Long:  `Runs an interactive wizard to choose the model provider, agent, knowledge base and web search settings, and writes them to the config file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := config.RunWizard(cfgFile)
		return err
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
