package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"chorewalk/pkg/audio"
	"chorewalk/pkg/model"

	"github.com/spf13/cobra"
)

var extensionTypes = map[string]string{
	".webm": "audio/webm",
	".ogg":  "audio/ogg",
	".opus": "audio/ogg",
	".mp3":  "audio/mpeg",
	".m4a":  "audio/mp4",
	".pcm":  "audio/L16;rate=16000;channels=1",
}

func NewTranscribeCmd(deps *Dependencies) *cobra.Command {
	var mimeType string
	var noTasks bool

	cmd := &cobra.Command{
		Use:   "transcribe <file>",
		Short: "Transcribe an existing recording",
		Long:  "Send an audio file to the transcription endpoint.\nWAV files are sent as raw PCM; other types are sent as-is.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := loadRecording(args[0], mimeType)
			if err != nil {
				return err
			}

			out, err := newPipeline(deps.Config, !noTasks).Process(cmd.Context(), rec)
			if err != nil {
				return describe(err)
			}

			printOutcome(cmd.OutOrStdout(), out)
			return nil
		},
	}

	cmd.Flags().StringVar(&mimeType, "mime", "", "MIME type of the file (guessed from the extension)")
	cmd.Flags().BoolVar(&noTasks, "no-tasks", false, "Only print the transcript")

	return cmd
}

func loadRecording(path, mimeType string) (model.FinalizedRecording, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.FinalizedRecording{}, fmt.Errorf("failed to read %s: %w", path, err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	if mimeType == "" && ext == ".wav" {
		pcm, format, err := audio.DecodeWAVBytes(data)
		if err != nil {
			return model.FinalizedRecording{}, fmt.Errorf("failed to decode %s: %w", path, err)
		}
		return model.FinalizedRecording{
			Data:       pcm,
			MIMEType:   format.MIMEType(),
			Size:       len(pcm),
			Duration:   time.Duration(len(pcm)) * time.Second / time.Duration(format.BytesPerSecond()),
			StopReason: model.StopReasonManual,
		}, nil
	}

	if mimeType == "" {
		mimeType = extensionTypes[ext]
	}
	if mimeType == "" {
		return model.FinalizedRecording{}, fmt.Errorf("cannot guess the audio type of %s, pass --mime", path)
	}

	return model.FinalizedRecording{
		Data:       data,
		MIMEType:   mimeType,
		Size:       len(data),
		StopReason: model.StopReasonManual,
	}, nil
}
