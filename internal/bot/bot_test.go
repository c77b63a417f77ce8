package bot

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Brownie44l1/butterfly-api/internal/labels"
	"github.com/Brownie44l1/butterfly-api/internal/model"
	"github.com/Brownie44l1/butterfly-api/internal/pipeline"
	"github.com/Brownie44l1/butterfly-api/internal/postprocess"
	"github.com/Brownie44l1/butterfly-api/internal/species"
	"github.com/Brownie44l1/butterfly-api/internal/store"
)

type fakeRuntime struct{ output []float32 }

func (f *fakeRuntime) Infer(context.Context, []float32) ([]float32, error) { return f.output, nil }
func (f *fakeRuntime) Info() model.Info                                    { return model.Info{Backend: "fake", Classes: labels.Count} }
func (f *fakeRuntime) Close() error                                        { return nil }

type fakeAPI struct {
	mu      sync.Mutex
	fileURL string
	sent    []string
	updates [][]tgbotapi.Update
	offsets []int
}

func (f *fakeAPI) GetUpdates(cfg tgbotapi.UpdateConfig) ([]tgbotapi.Update, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offsets = append(f.offsets, cfg.Offset)
	if len(f.updates) == 0 {
		return nil, errors.New("no more updates")
	}
	next := f.updates[0]
	f.updates = f.updates[1:]
	return next, nil
}

func (f *fakeAPI) GetFileDirectURL(string) (string, error) { return f.fileURL, nil }

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, m.Text)
	}
	return tgbotapi.Message{}, nil
}

type recorder struct{ rows []store.Prediction }

func (r *recorder) RecordPrediction(_ context.Context, p *store.Prediction) error {
	r.rows = append(r.rows, *p)
	return nil
}

func imageServer(t *testing.T) *httptest.Server {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 20, 30))))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write(buf.Bytes())
	}))
	t.Cleanup(srv.Close)
	return srv
}

func viceroy() []float32 {
	out := make([]float32, labels.Count)
	i, _ := labels.Index("VICEROY")
	out[i] = 6
	return out
}

func photoUpdate(id int) tgbotapi.Update {
	return tgbotapi.Update{
		UpdateID: id,
		Message: &tgbotapi.Message{
			Chat:  &tgbotapi.Chat{ID: 42},
			From:  &tgbotapi.User{UserName: "lepidoptera"},
			Photo: []tgbotapi.PhotoSize{{FileID: "small"}, {FileID: "large"}},
		},
	}
}

func TestPhotoIsClassified(t *testing.T) {
	api := &fakeAPI{fileURL: imageServer(t).URL}
	hist := &recorder{}
	b := New(api, pipeline.New(&fakeRuntime{output: viceroy()}, nil), Options{History: hist})

	b.HandleUpdate(context.Background(), photoUpdate(1))

	require.Len(t, api.sent, 1)
	assert.Contains(t, api.sent[0], "Viceroy (")
	assert.Contains(t, api.sent[0], species.Default().Lookup("VICEROY").ScientificName)

	require.Len(t, hist.rows, 1)
	assert.Equal(t, store.SourceTelegram, hist.rows[0].Source)
	assert.Equal(t, "lepidoptera", hist.rows[0].Username)
	assert.Equal(t, "VICEROY", hist.rows[0].Label)
}

func TestCommandsAndText(t *testing.T) {
	api := &fakeAPI{}
	b := New(api, pipeline.New(&fakeRuntime{}, nil), Options{})

	start := &tgbotapi.Message{
		Chat:     &tgbotapi.Chat{ID: 7},
		Text:     "/start",
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: 6}},
	}
	b.HandleUpdate(context.Background(), tgbotapi.Update{Message: start})

	health := &tgbotapi.Message{
		Chat:     &tgbotapi.Chat{ID: 7},
		Text:     "/health",
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: 7}},
	}
	b.HandleUpdate(context.Background(), tgbotapi.Update{Message: health})

	b.HandleUpdate(context.Background(), tgbotapi.Update{Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 7}, Text: "hello"}})
	b.HandleUpdate(context.Background(), tgbotapi.Update{})

	require.Len(t, api.sent, 3)
	assert.Equal(t, helpText, api.sent[0])
	assert.Equal(t, "OK: fake model, 75 classes", api.sent[1])
	assert.Equal(t, helpText, api.sent[2])
}

func TestBadDownload(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	api := &fakeAPI{fileURL: srv.URL}
	b := New(api, pipeline.New(&fakeRuntime{output: viceroy()}, nil), Options{})
	b.HandleUpdate(context.Background(), photoUpdate(1))

	require.Len(t, api.sent, 1)
	assert.Contains(t, api.sent[0], "Could not read that image")
}

func TestRunAdvancesOffsetAndStops(t *testing.T) {
	api := &fakeAPI{
		fileURL: imageServer(t).URL,
		updates: [][]tgbotapi.Update{{photoUpdate(10), photoUpdate(11)}},
	}
	b := New(api, pipeline.New(&fakeRuntime{output: viceroy()}, nil), Options{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	require.Eventually(t, func() bool {
		api.mu.Lock()
		defer api.mu.Unlock()
		return len(api.offsets) >= 2
	}, 5*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}

	api.mu.Lock()
	defer api.mu.Unlock()
	assert.Equal(t, 0, api.offsets[0])
	assert.Equal(t, 12, api.offsets[1])
	assert.Len(t, api.sent, 2)
}

type stuckAPI struct {
	fakeAPI
	release chan struct{}
}

func (s *stuckAPI) GetUpdates(tgbotapi.UpdateConfig) ([]tgbotapi.Update, error) {
	<-s.release
	return nil, nil
}

func TestRunStopsDuringLongPoll(t *testing.T) {
	api := &stuckAPI{release: make(chan struct{})}
	defer close(api.release)
	b := New(api, pipeline.New(&fakeRuntime{output: viceroy()}, nil), Options{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run waited for the long poll")
	}
}

func TestReply(t *testing.T) {
	got := Reply(postprocess.Prediction{Label: "RED ADMIRAL", Confidence: 0.5}, species.Placeholder)
	assert.Equal(t, "Red Admiral (50.0%)\nScientific name: Unknown Species\nHabitat: Unknown\nCommon in: Unknown\n\nNo description available for this species yet.", got)
}

func TestRetryDelay(t *testing.T) {
	assert.Equal(t, 7*time.Second, retryDelay(errors.New("Too Many Requests: retry after 7")))
	assert.Equal(t, 3*time.Second, retryDelay(errors.New("too many requests")))
	assert.Equal(t, time.Second, retryDelay(errors.New("bad gateway")))
}
