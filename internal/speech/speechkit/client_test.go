package speechkit

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"chorewalk/internal/speech"
	"chorewalk/pkg/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockUploader struct {
	mock.Mock
}

func (m *MockUploader) UploadFile(ctx context.Context, key string, body io.Reader, contentType string) (string, error) {
	data, _ := io.ReadAll(body)
	args := m.Called(key, string(data), contentType)
	return args.String(0), args.Error(1)
}

func (m *MockUploader) GenerateKey(id, extension string) string {
	return "audio/" + id + extension
}

type fakeYandex struct {
	mu              sync.Mutex
	pollsBeforeDone int32
	polls           atomic.Int32
	lastSpec        specification
	lastURI         string
	finalBody       string
}

func (f *fakeYandex) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/recognize", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Api-Key secret", r.Header.Get("Authorization"))
		assert.Equal(t, "folder", r.Header.Get("x-folder-id"))
		var req recognitionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		f.mu.Lock()
		f.lastSpec = req.Config.Specification
		f.lastURI = req.Audio.URI
		f.mu.Unlock()
		_, _ = w.Write([]byte(`{"id":"op-1","done":false}`))
	})
	mux.HandleFunc("/operations/op-1", func(w http.ResponseWriter, r *http.Request) {
		if f.polls.Add(1) <= f.pollsBeforeDone {
			_, _ = w.Write([]byte(`{"id":"op-1","done":false}`))
			return
		}
		_, _ = w.Write([]byte(f.finalBody))
	})
	return mux
}

func (f *fakeYandex) submitted() (specification, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastSpec, f.lastURI
}

func newTestClient(srv *httptest.Server, uploader Uploader) *Client {
	return NewClient(Options{
		APIKey:       "secret",
		FolderID:     "folder",
		Language:     "ru-RU",
		PollInterval: 5 * time.Millisecond,
		RecognizeURL: srv.URL + "/recognize",
		OperationURL: srv.URL + "/operations",
	}, uploader)
}

func TestClient_Transcribe(t *testing.T) {
	fy := &fakeYandex{
		pollsBeforeDone: 2,
		finalBody: `{"id":"op-1","done":true,"response":{"chunks":[
			{"alternatives":[{"text":"помыть посуду","confidence":0.9}]},
			{"alternatives":[]},
			{"alternatives":[{"text":" вынести мусор ","confidence":0.7}]}
		]}}`,
	}
	srv := httptest.NewServer(fy.handler(t))
	defer srv.Close()

	up := new(MockUploader)
	up.On("UploadFile", mock.MatchedBy(func(key string) bool { return strings.HasSuffix(key, ".pcm") }), "pcm", "audio/l16").
		Return("https://storage.example/audio/x.pcm", nil)

	c := newTestClient(srv, up)
	res, err := c.Transcribe(context.Background(), speech.Request{
		Audio:    []byte("pcm"),
		MIMEType: "audio/L16;rate=16000;channels=1",
	})

	require.NoError(t, err)
	assert.Equal(t, "помыть посуду вынести мусор", res.Text)
	require.NotNil(t, res.Confidence)
	assert.InDelta(t, 0.8, *res.Confidence, 1e-9)
	assert.Equal(t, Name, res.Provider)

	spec, uri := fy.submitted()
	assert.Equal(t, "LINEAR16_PCM", spec.AudioEncoding)
	assert.Equal(t, 16000, spec.SampleRateHertz)
	assert.Equal(t, "ru-RU", spec.LanguageCode)
	assert.Equal(t, "general", spec.Model)
	assert.Equal(t, "https://storage.example/audio/x.pcm", uri)
	assert.Equal(t, int32(3), fy.polls.Load())
	up.AssertExpectations(t)
}

func TestClient_RecognitionFailed(t *testing.T) {
	fy := &fakeYandex{finalBody: `{"id":"op-1","done":true,"error":{"code":3,"message":"bad audio"}}`}
	srv := httptest.NewServer(fy.handler(t))
	defer srv.Close()

	up := new(MockUploader)
	up.On("UploadFile", mock.Anything, mock.Anything, "audio/ogg").Return("uri", nil)

	_, err := newTestClient(srv, up).Transcribe(context.Background(), speech.Request{Audio: []byte("ogg"), MIMEType: "audio/ogg"})

	require.Error(t, err)
	assert.Equal(t, apperr.KindProviderUnavailable, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "bad audio")
	spec, _ := fy.submitted()
	assert.Equal(t, "OGG_OPUS", spec.AudioEncoding)
}

func TestClient_UnsupportedFormatSkipsUpload(t *testing.T) {
	up := new(MockUploader)
	c := NewClient(Options{}, up)

	_, err := c.Transcribe(context.Background(), speech.Request{Audio: []byte("webm"), MIMEType: "audio/webm"})

	assert.Equal(t, apperr.KindInvalidInput, apperr.KindOf(err))
	up.AssertNotCalled(t, "UploadFile", mock.Anything, mock.Anything, mock.Anything)
}

func TestClient_UploadFailure(t *testing.T) {
	up := new(MockUploader)
	up.On("UploadFile", mock.Anything, mock.Anything, mock.Anything).Return("", assert.AnError)

	_, err := NewClient(Options{}, up).Transcribe(context.Background(), speech.Request{Audio: []byte("mp3"), MIMEType: "audio/mpeg"})

	assert.Equal(t, apperr.KindProviderUnavailable, apperr.KindOf(err))
	assert.ErrorIs(t, err, assert.AnError)
}

func TestClient_StartRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`quota`))
	}))
	defer srv.Close()

	up := new(MockUploader)
	up.On("UploadFile", mock.Anything, mock.Anything, mock.Anything).Return("uri", nil)

	_, err := newTestClient(srv, up).Transcribe(context.Background(), speech.Request{Audio: []byte("ogg"), MIMEType: "audio/ogg"})

	assert.Equal(t, apperr.KindRateLimited, apperr.KindOf(err))
}

func TestClient_WaitHonoursContext(t *testing.T) {
	fy := &fakeYandex{pollsBeforeDone: 1 << 30}
	srv := httptest.NewServer(fy.handler(t))
	defer srv.Close()

	up := new(MockUploader)
	up.On("UploadFile", mock.Anything, mock.Anything, mock.Anything).Return("uri", nil)

	ctx, cancel := context.WithTimeout(context.Background(), 40*time.Millisecond)
	defer cancel()

	_, err := newTestClient(srv, up).Transcribe(ctx, speech.Request{Audio: []byte("ogg"), MIMEType: "audio/ogg"})

	require.Error(t, err)
	assert.Equal(t, apperr.KindProviderUnavailable, apperr.KindOf(err))
}
