// Package cli implements the recorder command line.
package cli

import (
	"chorewalk/internal/config"
	"chorewalk/internal/speech/providers"
	"chorewalk/internal/tasks"
	"chorewalk/internal/transcription"
	"chorewalk/internal/walkthrough"

	"github.com/spf13/cobra"
)

type Dependencies struct {
	Config *config.Config
}

func NewRootCmd(deps *Dependencies) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "chorewalk",
		Short:         "Record a walkthrough of your home and turn it into chores",
		Long:          "Records speech from the microphone (or a WAV file), sends it to the transcription endpoint and extracts room-scoped tasks from the transcript.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(NewRecordCmd(deps))
	rootCmd.AddCommand(NewTranscribeCmd(deps))

	return rootCmd
}

func newPipeline(cfg *config.Config, withTasks bool) *walkthrough.Pipeline {
	client := transcription.NewClient(transcription.Options{
		EndpointURL: cfg.Client.EndpointURL,
		FallbackURL: cfg.Client.FallbackURL,
		APIKey:      cfg.Client.APIKey,
		Timeout:     cfg.Client.Timeout,
		MinBytes:    cfg.Recorder.MinBytes,
	})

	var extractor tasks.Extractor
	if withTasks {
		extractor = providers.NewExtractor(cfg)
	}
	return walkthrough.NewPipeline(client, extractor)
}
