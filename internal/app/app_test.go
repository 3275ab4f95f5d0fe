package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"hwbot/internal/config"
	"hwbot/internal/homework"
	"hwbot/internal/poller"
)

const verdictApproved = "У вас проверили работу \"hw_bot\"!\n\nРевьюеру всё понравилось, работа зачтена!"

type fakeAPI struct {
	mu    sync.Mutex
	froms []string
	auth  []string
	body  string
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.froms = append(f.froms, r.URL.Query().Get("from_date"))
	f.auth = append(f.auth, r.Header.Get("Authorization"))
	body := f.body
	f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, body)
}

func (f *fakeAPI) requests() ([]string, []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.froms...), append([]string(nil), f.auth...)
}

type fakeBot struct {
	mu    sync.Mutex
	texts []string
}

func (b *fakeBot) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var params map[string]any
	_ = json.NewDecoder(r.Body).Decode(&params)
	b.mu.Lock()
	if s, ok := params["text"].(string); ok {
		b.texts = append(b.texts, s)
	}
	n := len(b.texts)
	b.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"ok":true,"result":{"message_id":%d,"chat":{"id":42,"type":"private"},"date":0}}`, n)
}

func (b *fakeBot) sent() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.texts...)
}

type sdRecorder struct {
	mu     sync.Mutex
	states []string
}

func (r *sdRecorder) notify(_ bool, state string) (bool, error) {
	r.mu.Lock()
	r.states = append(r.states, state)
	r.mu.Unlock()
	return true, nil
}

func (r *sdRecorder) has(state string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.states {
		if s == state {
			return true
		}
	}
	return false
}

type fixture struct {
	api  *fakeAPI
	bot  *fakeBot
	sd   *sdRecorder
	path string
	now  time.Time
}

func newFixture(t *testing.T, extraYAML string) *fixture {
	t.Helper()
	f := &fixture{
		api: &fakeAPI{body: `{"homeworks":[{"homework_name":"hw_bot","status":"approved"}],"current_date":1700000100}`},
		bot: &fakeBot{},
		sd:  &sdRecorder{},
		now: time.Unix(1700000000, 0),
	}
	apiSrv := httptest.NewServer(f.api)
	t.Cleanup(apiSrv.Close)
	botSrv := httptest.NewServer(f.bot)
	t.Cleanup(botSrv.Close)

	yaml := fmt.Sprintf(`
practicum:
  endpoint: %s/api/user_api/homework_statuses/
telegram:
  api_url: %s
poll:
  interval: 30m
  start_from: zero
logging:
  level: error
  console: false
  file:
    enabled: false
%s`, apiSrv.URL, botSrv.URL, extraYAML)
	f.path = filepath.Join(t.TempDir(), "hwbot.yaml")
	if err := os.WriteFile(f.path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	return f
}

func (f *fixture) newApp(t *testing.T) *App {
	t.Helper()
	env := map[string]string{
		config.EnvPracticumToken: "p-secret",
		config.EnvTelegramToken:  "123:abc",
		config.EnvTelegramChatID: "42",
	}
	a, err := NewApp(f.path,
		WithLookup(func(k string) (string, bool) { v, ok := env[k]; return v, ok }),
		WithOfflineTelegram(),
		WithClock(func() time.Time { return f.now }),
		WithSdNotify(f.sd.notify),
	)
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	return a
}

func TestRunSendsStartupMessageAndVerdict(t *testing.T) {
	f := newFixture(t, "systemd:\n  notify: true\n")
	// startup_message lives under telegram; patch it in through a second file write
	b, _ := os.ReadFile(f.path)
	patched := strings.Replace(string(b), "telegram:\n", "telegram:\n  startup_message: че\n", 1)
	if err := os.WriteFile(f.path, []byte(patched), 0o600); err != nil {
		t.Fatal(err)
	}
	a := f.newApp(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) && len(f.bot.sent()) < 2 {
		time.Sleep(10 * time.Millisecond)
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer stopCancel()
	if err := a.Stop(stopCtx, StopAppStop); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	sent := f.bot.sent()
	if len(sent) != 2 || sent[0] != "че" || sent[1] != verdictApproved {
		t.Fatalf("sent = %q", sent)
	}
	froms, auth := f.api.requests()
	if len(froms) != 1 || froms[0] != "0" {
		t.Fatalf("from_date = %v", froms)
	}
	if auth[0] != "OAuth p-secret" {
		t.Fatalf("Authorization = %q", auth[0])
	}
	if got := a.Loop().Watermark(); got != f.now.Unix() {
		t.Fatalf("watermark = %d, want %d", got, f.now.Unix())
	}
	if !f.sd.has("READY=1") || !f.sd.has("STOPPING=1") {
		t.Fatalf("sd states = %v", f.sd.states)
	}
	if len(a.Notifier().History()) != 2 {
		t.Fatalf("history = %+v", a.Notifier().History())
	}
}

func TestAdapterAndShutdownLogReachFileSink(t *testing.T) {
	f := newFixture(t, "")
	logPath := filepath.Join(t.TempDir(), "logs", "hwbot.log")
	b, _ := os.ReadFile(f.path)
	patched := strings.Replace(string(b), "  level: error\n", "  level: debug\n", 1)
	patched = strings.Replace(patched, "    enabled: false\n", "    enabled: true\n    path: "+logPath+"\n", 1)
	if err := os.WriteFile(f.path, []byte(patched), 0o600); err != nil {
		t.Fatal(err)
	}
	a := f.newApp(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer stopCancel()
	if err := a.Stop(stopCtx, StopAppStop); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	logs := string(data)
	if !strings.Contains(logs, `"message":"telegram adapter stopped"`) || !strings.Contains(logs, `"comp":"telegram"`) {
		t.Fatalf("adapter records missing from file sink:\n%s", logs)
	}
	if !strings.Contains(logs, `"goroutines":5`) {
		t.Fatalf("shutdown summary missing:\n%s", logs)
	}
}

func TestCheckDoesNotSendWithoutFlag(t *testing.T) {
	f := newFixture(t, "")
	a := f.newApp(t)
	defer a.Stop(context.Background(), StopAppStop)

	res, err := a.Check(context.Background(), CheckOptions{From: 5})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if res.Outcome != poller.OutcomeNotified || res.Message != verdictApproved {
		t.Fatalf("result = %+v", res)
	}
	if len(f.bot.sent()) != 0 {
		t.Fatalf("dry run sent %q", f.bot.sent())
	}
	froms, _ := f.api.requests()
	if froms[0] != "5" {
		t.Fatalf("from_date = %v", froms)
	}
	if a.Loop().Watermark() != 0 {
		t.Fatal("check must not move the loop watermark")
	}

	res, err = a.Check(context.Background(), CheckOptions{From: -1, Send: true})
	if err != nil || !res.OK() {
		t.Fatalf("Check send: %+v %v", res, err)
	}
	if sent := f.bot.sent(); len(sent) != 1 || sent[0] != verdictApproved {
		t.Fatalf("sent = %q", sent)
	}
}

func TestCheckReportsUnknownStatus(t *testing.T) {
	f := newFixture(t, "")
	f.api.body = `{"homeworks":[{"homework_name":"hw_bot","status":"lost"}]}`
	a := f.newApp(t)
	defer a.Stop(context.Background(), StopAppStop)

	res, err := a.Check(context.Background(), CheckOptions{From: 0})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if res.OK() || res.Kind != homework.KindUnknownStatus {
		t.Fatalf("result = %+v", res)
	}
}

func TestNewAppRejectsBadSchedule(t *testing.T) {
	f := newFixture(t, "")
	b, _ := os.ReadFile(f.path)
	patched := strings.Replace(string(b), "interval: 30m", "interval: every-so-often", 1)
	if err := os.WriteFile(f.path, []byte(patched), 0o600); err != nil {
		t.Fatal(err)
	}
	env := map[string]string{
		config.EnvPracticumToken: "p",
		config.EnvTelegramToken:  "123:abc",
		config.EnvTelegramChatID: "42",
	}
	_, err := NewApp(f.path, WithOfflineTelegram(), WithLookup(func(k string) (string, bool) { v, ok := env[k]; return v, ok }))
	if err == nil || !strings.Contains(err.Error(), "poll.interval") {
		t.Fatalf("err = %v", err)
	}
}

func TestNewAppRequiresCredentials(t *testing.T) {
	f := newFixture(t, "")
	_, err := NewApp(f.path, WithOfflineTelegram(), WithLookup(func(string) (string, bool) { return "", false }))
	if err == nil || !strings.Contains(err.Error(), "practicum.token") {
		t.Fatalf("err = %v", err)
	}
}

func TestValidateReload(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	if err := validateReload(context.Background(), cfg); err != nil {
		t.Fatalf("default config rejected: %v", err)
	}
	cfg.Poll.Interval = "61 * * * *"
	if err := validateReload(context.Background(), cfg); err == nil {
		t.Fatal("expected invalid cron to be rejected")
	}
}

func TestMapLoopSettings(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.Poll.Interval = "@every 10m"
	cfg.Poll.RetryDelay = ""
	ls, err := mapLoopSettings(cfg)
	if err != nil {
		t.Fatalf("mapLoopSettings: %v", err)
	}
	if ls.retryDelay != poller.DefaultRetryDelay {
		t.Fatalf("retry = %v", ls.retryDelay)
	}
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	if next := ls.schedule.Next(now); next.Sub(now) != 10*time.Minute {
		t.Fatalf("next = %v", next)
	}
	if mapCursor(cfg) != poller.CursorNow {
		t.Fatal("default cursor should be now")
	}
	cfg.Poll.Cursor = "SERVER"
	if mapCursor(cfg) != poller.CursorServer {
		t.Fatal("cursor server not mapped")
	}
}
