package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ganz677/wb/internal/config"
	"github.com/ganz677/wb/internal/domain"
	"github.com/ganz677/wb/internal/usecase"
)

func testConfig() config.Config {
	return config.Config{
		Database: config.DatabaseConfig{Driver: "sqlite", DSN: ":memory:"},
		Marketplace: config.MarketplaceConfig{
			BaseURL:        "http://127.0.0.1:1",
			Timeout:        time.Second,
			MaxAttempts:    1,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     time.Millisecond,
		},
		Ingest: config.IngestConfig{
			Strategies:    []string{"live"},
			Kinds:         []string{"feedback"},
			PageSize:      100,
			ArchiveOrder:  "dateDesc",
			ArchiveWindow: time.Hour,
		},
		Generator: config.GeneratorConfig{Provider: "openai", Model: "gpt-4o-mini", Brand: "Armoule"},
		Rotation:  config.RotationConfig{Policy: "rotate", MaxSleep: time.Second},
		Catalog:   config.CatalogConfig{Similar: 3},
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestApp(t *testing.T, cfg config.Config) *Application {
	t.Helper()
	application, err := New(context.Background(), cfg, quietLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = application.Close() })
	return application
}

func TestNewRejectsUnknownKind(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Ingest.Kinds = []string{"reviews"}
	_, err := New(context.Background(), cfg, quietLogger())
	require.Error(t, err)
}

func TestRequeueOnEmptyStore(t *testing.T) {
	t.Parallel()

	application := newTestApp(t, testConfig())
	n, err := application.Requeue(context.Background(), usecase.RequeueResend, nil)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = application.Requeue(context.Background(), usecase.RequeueRegen, []string{"bogus"})
	assert.Error(t, err)
}

func TestStatusCountsEveryKind(t *testing.T) {
	t.Parallel()

	application := newTestApp(t, testConfig())
	counts, err := application.Status(context.Background())
	require.NoError(t, err)
	assert.Len(t, counts, len(domain.Kinds()))
}

func TestServeRequiresSlots(t *testing.T) {
	t.Parallel()

	application := newTestApp(t, testConfig())
	var cfgErr *domain.ConfigurationError
	require.True(t, errors.As(application.Serve(context.Background()), &cfgErr))
}

func TestServeRejectsBadCron(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Scheduler.Slots = []config.SlotConfig{{Cron: "every morning"}}
	application := newTestApp(t, cfg)

	var cfgErr *domain.ConfigurationError
	require.True(t, errors.As(application.Serve(context.Background()), &cfgErr))
}

func TestServeStopsOnCancel(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Scheduler.Slots = []config.SlotConfig{{Cron: "0 9 * * *"}}
	application := newTestApp(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- application.Serve(ctx) }()
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatalf("serve did not return after cancel")
	}
}

func TestGeneratorFactoryWithoutTokens(t *testing.T) {
	t.Parallel()

	factory := generatorFactory(config.GeneratorConfig{Provider: "gemini", Model: "gemini-2.5-flash"}, quietLogger())
	_, err := factory(context.Background(), 0)
	var cfgErr *domain.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
}

func TestGeneratorFactoryOpenAI(t *testing.T) {
	t.Parallel()

	factory := generatorFactory(config.GeneratorConfig{Provider: "openai", Model: "gpt-4o-mini", Tokens: []string{"a", "b"}}, quietLogger())
	gen, err := factory(context.Background(), 3)
	require.NoError(t, err)
	assert.NotNil(t, gen)
}

func TestLazyCatalog(t *testing.T) {
	t.Parallel()

	_, err := lazyCatalog("")()
	var cfgErr *domain.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))

	path := filepath.Join(t.TempDir(), "catalog.csv")
	require.NoError(t, os.WriteFile(path, []byte("nm_id,Название,Описание\n100001,Rose Noir 50ml,роза и пачули\n"), 0o600))

	source := lazyCatalog(path)
	first, err := source()
	require.NoError(t, err)
	require.NoError(t, os.Remove(path))
	second, err := source()
	require.NoError(t, err)
	assert.Same(t, first, second, "catalog is read once")
}
