package cmd

import (
	"github.com/spf13/cobra"
	"vet-transcribe/config"
)

func Root(config *config.Config) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "vet-transcribe",
		Short:         "veterinary visit transcription service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(server(config))
	rootCmd.AddCommand(worker(config))
	rootCmd.AddCommand(migrate(config))
	rootCmd.AddCommand(transcribe(config))
	return rootCmd
}
