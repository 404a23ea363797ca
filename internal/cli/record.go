package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"chorewalk/internal/capture"
	"chorewalk/internal/recorder"
	"chorewalk/pkg/audio"

	"github.com/spf13/cobra"
)

// microphoneDevice selects live capture; any other recorder.device value is a WAV path
const microphoneDevice = "portaudio"

func NewRecordCmd(deps *Dependencies) *cobra.Command {
	var input string
	var maxSeconds int
	var noTasks bool

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record a walkthrough and extract tasks",
		Long:  "Record from the microphone until Ctrl+C or the time limit.\nUse --input to replay a 16-bit PCM WAV file instead of the microphone.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := deps.Config
			if maxSeconds <= 0 {
				maxSeconds = cfg.Recorder.MaxSeconds
			}

			if input == "" && cfg.Recorder.Device != microphoneDevice {
				input = cfg.Recorder.Device
			}

			device, replay, err := openDevice(input)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			stop := make(chan struct{})
			var once sync.Once
			stopOnce := func() { once.Do(func() { close(stop) }) }

			sigCh := make(chan os.Signal, 2)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigCh)
			go func() {
				// First signal finalizes the recording, second abandons it.
				select {
				case <-sigCh:
				case <-ctx.Done():
					return
				}
				stopOnce()
				select {
				case <-sigCh:
					cancel()
				case <-ctx.Done():
				}
			}()

			if replay > 0 {
				timer := time.AfterFunc(replay, stopOnce)
				defer timer.Stop()
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Recording (max %ds). Press Ctrl+C to stop.\n", maxSeconds)

			opts := recorder.Options{
				MaxSeconds:  maxSeconds,
				MinBytes:    cfg.Recorder.MinBytes,
				Constraints: constraints(deps),
			}
			factory := recorder.DeviceFactory(device, cfg.Recorder.ChunkInterval)

			result, err := newPipeline(cfg, !noTasks).Record(ctx, factory, opts, stop, func(elapsed int) {
				printTick(out, elapsed, maxSeconds)
			})
			if err != nil {
				return describe(err)
			}

			printOutcome(out, result)
			return nil
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "", "Replay a WAV file instead of the microphone")
	cmd.Flags().IntVar(&maxSeconds, "max-seconds", 0, "Recording time limit (defaults to recorder.max_seconds)")
	cmd.Flags().BoolVar(&noTasks, "no-tasks", false, "Only print the transcript")

	return cmd
}

// openDevice picks the microphone or a realtime WAV replay. For a replay the
// returned duration is when the file runs out.
func openDevice(input string) (capture.Device, time.Duration, error) {
	if input == "" {
		return capture.NewMicrophone(), 0, nil
	}

	data, err := os.ReadFile(input)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read input: %w", err)
	}
	pcm, format, err := audio.DecodeWAVBytes(data)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to decode input: %w", err)
	}

	length := time.Duration(len(pcm)) * time.Second / time.Duration(format.BytesPerSecond())
	return capture.NewFileDevice(input, true), length + 250*time.Millisecond, nil
}

func constraints(deps *Dependencies) capture.Constraints {
	rc := deps.Config.Recorder
	return capture.Constraints{
		EchoCancellation: rc.EchoCancellation,
		NoiseSuppression: rc.NoiseSuppression,
		AutoGainControl:  rc.AutoGainControl,
		SampleRate:       rc.SampleRate,
		Channels:         rc.Channels,
	}
}
