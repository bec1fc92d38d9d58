package slackbot

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/slack-go/slack"

	"vargento/internal/config"
	"vargento/internal/domain"
)

type fakePoster struct {
	channels []string
	err      error
}

func (f *fakePoster) PostMessageContext(_ context.Context, channelID string, _ ...slack.MsgOption) (string, string, error) {
	f.channels = append(f.channels, channelID)
	return channelID, "1700000000.000100", f.err
}

func TestFormatVerdict(t *testing.T) {
	rec := domain.PredictionRecord{
		ID:           "abc",
		Description:  "mano   del defensor\nen el área <clara>",
		Label:        "Penal",
		DisplayLabel: "Penal (11 m)",
		Confidence:   0.724,
		VideoURL:     "https://example.com/v.mp4",
		KeyFrame:     12,
	}
	got := FormatVerdict("VARGENTO", rec, "https://var.example.com/reports/abc")
	want := "*VARGENTO*: _mano del defensor en el área &lt;clara&gt;_ → *Penal (11 m)* (72%) | <https://example.com/v.mp4|video> | frame 12 | <https://var.example.com/reports/abc|PDF>"
	if got != want {
		t.Fatalf("got %q\nwant %q", got, want)
	}
}

func TestNilNotifierIsNoop(t *testing.T) {
	n := NewNotifier(config.Config{}, "", nil)
	if n.Enabled() {
		t.Fatal("expected notifier to be disabled without credentials")
	}
	if err := n.NotifyVerdict(context.Background(), domain.PredictionRecord{}); err != nil {
		t.Fatalf("nil notifier returned error: %v", err)
	}
	if err := n.PostDigest(context.Background(), "x"); err != nil {
		t.Fatalf("nil notifier returned error: %v", err)
	}
}

func TestNotifyVerdictUsesChannel(t *testing.T) {
	fake := &fakePoster{}
	n := newNotifier(fake, "C123", "VARGENTO", "http://localhost:8501/", nil)
	if err := n.NotifyVerdict(context.Background(), domain.PredictionRecord{ID: "p1", Label: "Roja", Confidence: 0.9}); err != nil {
		t.Fatalf("NotifyVerdict failed: %v", err)
	}
	if len(fake.channels) != 1 || fake.channels[0] != "C123" {
		t.Fatalf("unexpected channels %v", fake.channels)
	}

	fake.err = errors.New("channel_not_found")
	if err := n.PostDigest(context.Background(), "digest"); err == nil {
		t.Fatal("expected digest error to propagate")
	}
}

func TestNotifierAgainstSlackAPI(t *testing.T) {
	var form url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat.postMessage") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		form, _ = url.ParseQuery(string(body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"ok":true,"channel":"C999","ts":"1700000000.000200"}`)
	}))
	defer srv.Close()

	cfg := config.Config{SlackBotToken: "xoxb-test", SlackChannelID: "C999", BrandName: "VAR"}
	n := NewNotifier(cfg, "", nil, slack.OptionAPIURL(srv.URL+"/"))
	if err := n.NotifyVerdict(context.Background(), domain.PredictionRecord{Label: "No gol", Description: "remate desviado", Confidence: 0.5}); err != nil {
		t.Fatalf("NotifyVerdict failed: %v", err)
	}
	if form.Get("channel") != "C999" {
		t.Fatalf("unexpected channel %q", form.Get("channel"))
	}
	if !strings.Contains(form.Get("text"), "*No gol* (50%)") {
		t.Fatalf("unexpected text %q", form.Get("text"))
	}
}
