package cli

import (
	"errors"
	"fmt"
	"io"

	"chorewalk/internal/recorder"
	"chorewalk/internal/walkthrough"
	"chorewalk/pkg/apperr"
)

func printTick(w io.Writer, elapsed, maxSeconds int) {
	remaining := maxSeconds - elapsed
	if remaining <= recorder.EndingSoonSeconds {
		fmt.Fprintf(w, "\rRecording %02d:%02d (ending in %ds) ", elapsed/60, elapsed%60, remaining)
		return
	}
	fmt.Fprintf(w, "\rRecording %02d:%02d ", elapsed/60, elapsed%60)
}

func printOutcome(w io.Writer, out *walkthrough.Outcome) {
	fmt.Fprintf(w, "\nTranscript: %s\n", out.Text)
	if out.Confidence != nil {
		fmt.Fprintf(w, "Confidence: %.2f\n", *out.Confidence)
	}
	if len(out.Tasks) == 0 {
		return
	}
	fmt.Fprintln(w, "Tasks:")
	for _, t := range out.Tasks {
		fmt.Fprintf(w, "  [%s] %s\n", t.RoomName, t.Text)
	}
}

// describe renders err with the user-facing text for its kind
func describe(err error) error {
	var ae *apperr.Error
	if !errors.As(err, &ae) {
		return err
	}
	return fmt.Errorf("%s (%s)", apperr.UserMessage(ae.Kind), ae.Message)
}
