package app

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/alanyoungcy/barreplay/internal/config"
	"github.com/alanyoungcy/barreplay/internal/feed"
)

const esBars = `time,open,high,low,close,volume
2024-06-03T14:00:00Z,100,101,99,100.5,10
2024-06-03T15:00:00Z,100.5,102,100,101.5,12
2024-06-03T16:00:00Z,101.5,105,101,104,9
`

const appSchedule = `
[[orders]]
symbol = "ES"
submit_at = 2024-06-03T14:00:00Z
side = "buy"
type = "market"
market_on_price = "open_price"
quantity = 1
strategy = "trend"

[[orders]]
symbol = "ES"
submit_at = 2024-06-03T15:00:00Z
side = "sell"
type = "limit"
price = 104
quantity = 1
strategy = "trend"
`

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func csvConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "ES.csv"), []byte(esBars), 0o644); err != nil {
		t.Fatal(err)
	}
	schedule := filepath.Join(dir, "schedule.toml")
	if err := os.WriteFile(schedule, []byte(appSchedule), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := config.Defaults()
	cfg.Mode = "replay"
	cfg.Replay.BarSource = "csv"
	cfg.Replay.CSVDir = dir
	cfg.Replay.SchedulePath = schedule
	cfg.Replay.PointValues = map[string]float64{"ES": 50}
	return &cfg
}

func TestReplayModeFromCSV(t *testing.T) {
	cfg := csvConfig(t)
	if err := cfg.Validate(); err != nil {
		t.Fatalf("config invalid: %v", err)
	}

	a := New(cfg, discard())
	defer a.Close()
	if err := a.Run(t.Context()); err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestReplayModeUnknownSymbol(t *testing.T) {
	cfg := csvConfig(t)
	cfg.Replay.Symbols = []string{"NQ"}

	a := New(cfg, discard())
	defer a.Close()
	if err := a.Run(t.Context()); err == nil {
		t.Fatal("expected error for symbol without a bar file")
	}
}

func TestWireCSVSkipsRemoteStores(t *testing.T) {
	cfg := csvConfig(t)

	deps, cleanup, err := Wire(t.Context(), cfg, discard())
	if err != nil {
		t.Fatalf("wire: %v", err)
	}
	defer cleanup()

	if deps.BarStore != nil || deps.Events != nil || deps.BlobReader != nil {
		t.Fatalf("unexpected remote deps: %+v", deps)
	}
	if _, ok := deps.Bars.(feed.DirSource); !ok {
		t.Fatalf("bars = %T, want feed.DirSource", deps.Bars)
	}
	if deps.Registry == nil {
		t.Fatal("registry not built")
	}
	if deps.Notifier != nil || deps.Limiter != nil {
		t.Fatal("notifier and limiter must stay unset without config and redis")
	}
}

func TestNewNotifier(t *testing.T) {
	if n := newNotifier(config.NotifyConfig{TelegramToken: "t"}, discard()); n != nil {
		t.Fatal("telegram without chat id must not build a notifier")
	}
	n := newNotifier(config.NotifyConfig{DiscordWebhook: "https://discord.example/hook"}, discard())
	if !n.Enabled() {
		t.Fatal("discord webhook should enable the notifier")
	}
}

func TestBarSourceSelection(t *testing.T) {
	cfg := config.Defaults()
	cfg.Mode = "import"
	got, err := barSource(&cfg, &Dependencies{})
	if err != nil || got != nil {
		t.Fatalf("import mode source = %v, %v", got, err)
	}

	cfg.Mode = "serve"
	cfg.Replay.BarSource = "s3"
	got, err = barSource(&cfg, &Dependencies{})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := got.(*feed.BlobSource); !ok {
		t.Fatalf("s3 source = %T", got)
	}

	cfg.Replay.BarSource = "ftp"
	if _, err := barSource(&cfg, &Dependencies{}); err == nil {
		t.Fatal("expected error for unknown bar source")
	}
}
