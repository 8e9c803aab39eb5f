package app

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/whalewatch/internal/config"
	"github.com/alanyoungcy/whalewatch/internal/domain"
	"github.com/alanyoungcy/whalewatch/internal/emitter"
	"github.com/alanyoungcy/whalewatch/internal/metrics"
	"github.com/alanyoungcy/whalewatch/internal/notify"
	"github.com/alanyoungcy/whalewatch/internal/pipeline"
	"github.com/alanyoungcy/whalewatch/internal/server/handler"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type nopBus struct{}

func (nopBus) Publish(context.Context, string, []byte) error { return nil }
func (nopBus) Subscribe(ctx context.Context, _ string) (<-chan []byte, error) {
	ch := make(chan []byte)
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}
func (nopBus) StreamAppend(context.Context, string, []byte) error { return nil }
func (nopBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}
func (nopBus) StreamLastID(context.Context, string) (string, error) { return "0-0", nil }

type nopSender struct{}

func (nopSender) Send(context.Context, string, string) error { return nil }
func (nopSender) Name() string                                { return "nop" }

func testConfig(mode string) *config.Config {
	cfg := config.Defaults()
	cfg.Mode = mode
	cfg.Feed.Symbols = []string{"AAPL", "TSLA"}
	return &cfg
}

func nopHandle(context.Context, domain.Quote) error { return nil }

func sourceNames(sources []pipeline.Source) []string {
	names := make([]string, 0, len(sources))
	for _, s := range sources {
		names = append(names, s.Name())
	}
	return names
}

func sinkNames(sinks []emitter.Sink) []string {
	names := make([]string, 0, len(sinks))
	for _, s := range sinks {
		names = append(names, s.Name())
	}
	return names
}

func TestBuildSources(t *testing.T) {
	tests := []struct {
		name    string
		mode    string
		bus     domain.SignalBus
		want    []string
		wantErr bool
	}{
		{name: "stream", mode: ModeStream, want: []string{"ws"}},
		{name: "bus", mode: ModeBus, bus: nopBus{}, want: []string{"stream"}},
		{name: "full", mode: ModeFull, bus: nopBus{}, want: []string{"ws", "stream"}},
		{name: "mode is case-insensitive", mode: "STREAM", want: []string{"ws"}},
		{name: "bus without redis", mode: ModeBus, wantErr: true},
		{name: "unknown mode", mode: "replay", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := &Dependencies{SignalBus: tt.bus}
			sources, err := buildSources(testConfig(tt.mode), deps, nopHandle, metrics.NewRegistry(), discardLogger())
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, sourceNames(sources))
		})
	}
}

func TestBuildSinks(t *testing.T) {
	cfg := testConfig(ModeStream)

	t.Run("falls back to log sink", func(t *testing.T) {
		sinks := buildSinks(cfg, &Dependencies{}, discardLogger())
		assert.Equal(t, []string{"log"}, sinkNames(sinks))
	})

	t.Run("notifier without senders is skipped", func(t *testing.T) {
		deps := &Dependencies{
			SignalBus: nopBus{},
			Notifier:  notify.NewNotifier(nil, nil, 0, discardLogger()),
		}
		assert.Equal(t, []string{"bus"}, sinkNames(buildSinks(cfg, deps, discardLogger())))
	})

	t.Run("bus and alerts", func(t *testing.T) {
		deps := &Dependencies{
			SignalBus: nopBus{},
			Notifier:  notify.NewNotifier([]notify.Sender{nopSender{}}, nil, 0, discardLogger()),
		}
		assert.Equal(t, []string{"bus", "alert"}, sinkNames(buildSinks(cfg, deps, discardLogger())))
	})
}

func TestBuild(t *testing.T) {
	t.Run("no backends", func(t *testing.T) {
		a := New(testConfig(ModeStream), discardLogger())
		p, err := a.build(&Dependencies{Checks: map[string]handler.Pinger{}})
		require.NoError(t, err)
		assert.Nil(t, p.hub)
		require.NotNil(t, p.server)

		rec := httptest.NewRecorder()
		p.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "ok", body["status"])

		rec = httptest.NewRecorder()
		p.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/detections", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("bus enables hub", func(t *testing.T) {
		a := New(testConfig(ModeFull), discardLogger())
		p, err := a.build(&Dependencies{SignalBus: nopBus{}})
		require.NoError(t, err)
		assert.NotNil(t, p.hub)
	})

	t.Run("server disabled", func(t *testing.T) {
		cfg := testConfig(ModeStream)
		cfg.Server.Enabled = false
		p, err := New(cfg, discardLogger()).build(&Dependencies{})
		require.NoError(t, err)
		assert.Nil(t, p.server)
	})

	t.Run("bad mode", func(t *testing.T) {
		_, err := New(testConfig(ModeBus), discardLogger()).build(&Dependencies{})
		assert.Error(t, err)
	})
}
