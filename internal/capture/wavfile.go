package capture

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"sync"
	"time"

	"chorewalk/pkg/apperr"
	"chorewalk/pkg/audio"
)

const defaultReplayFrame = 100 * time.Millisecond

// FileDevice replays a 16-bit PCM WAV file as if it were a microphone.
// With Realtime set, frames are paced at the file's own rate.
type FileDevice struct {
	Path     string
	Realtime bool
	Frame    time.Duration
}

func NewFileDevice(path string, realtime bool) *FileDevice {
	return &FileDevice{Path: path, Realtime: realtime, Frame: defaultReplayFrame}
}

// Open decodes the whole file. Constraints are ignored; the file dictates the format.
func (d *FileDevice) Open(ctx context.Context, _ Constraints) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(d.Path)
	if err != nil {
		switch {
		case errors.Is(err, fs.ErrNotExist):
			return nil, apperr.Wrap(apperr.KindDeviceUnavailable, "audio input file not found", err)
		case errors.Is(err, fs.ErrPermission):
			return nil, apperr.Wrap(apperr.KindPermissionDenied, "audio input file is not readable", err)
		default:
			return nil, apperr.Wrap(apperr.KindDeviceBusy, "cannot open audio input file", err)
		}
	}
	defer f.Close()

	pcm, format, err := audio.DecodeWAV(f)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindDeviceError, "cannot decode audio input file", err)
	}

	frame := d.Frame
	if frame <= 0 {
		frame = defaultReplayFrame
	}

	return &fileStream{
		pcm:      pcm,
		format:   format,
		frame:    frame,
		realtime: d.Realtime,
		done:     make(chan struct{}),
	}, nil
}

type fileStream struct {
	pcm      []byte
	format   audio.Format
	frame    time.Duration
	realtime bool

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func (s *fileStream) Format() audio.Format {
	return s.format
}

func (s *fileStream) Start(onData func([]byte), _ func(error)) error {
	frameBytes := int(int64(s.format.BytesPerSecond()) * int64(s.frame) / int64(time.Second))
	align := 2 * s.format.Channels
	frameBytes -= frameBytes % align
	if frameBytes <= 0 {
		frameBytes = align
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		var ticker *time.Ticker
		if s.realtime {
			ticker = time.NewTicker(s.frame)
			defer ticker.Stop()
		}

		for off := 0; off < len(s.pcm); off += frameBytes {
			if ticker != nil {
				select {
				case <-s.done:
					return
				case <-ticker.C:
				}
			} else {
				select {
				case <-s.done:
					return
				default:
				}
			}

			end := off + frameBytes
			if end > len(s.pcm) {
				end = len(s.pcm)
			}
			onData(s.pcm[off:end])
		}
	}()

	return nil
}

func (s *fileStream) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
	})
	s.wg.Wait()
	return nil
}
