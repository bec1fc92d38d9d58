// Package slackbot posts verdicts and digests to a Slack channel.
package slackbot

import (
	"context"
	"fmt"
	"strings"

	"github.com/slack-go/slack"
	"go.uber.org/zap"

	"vargento/internal/config"
	"vargento/internal/domain"
	"vargento/internal/httpx"
)

// Poster is the subset of *slack.Client the notifier uses.
type Poster interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

type Notifier struct {
	api     Poster
	channel string
	brand   string
	baseURL string
	log     *zap.SugaredLogger
}

// NewNotifier returns nil when Slack is not configured; a nil *Notifier is
// safe to call and does nothing.
func NewNotifier(cfg config.Config, baseURL string, logger *zap.Logger, opts ...slack.Option) *Notifier {
	if !cfg.SlackConfigured() {
		return nil
	}
	opts = append([]slack.Option{slack.OptionHTTPClient(httpx.Client())}, opts...)
	return newNotifier(slack.New(cfg.SlackBotToken, opts...), cfg.SlackChannelID, cfg.BrandName, baseURL, logger)
}

func newNotifier(api Poster, channel, brand, baseURL string, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{
		api:     api,
		channel: channel,
		brand:   brand,
		baseURL: strings.TrimRight(baseURL, "/"),
		log:     logger.Sugar().Named("slack"),
	}
}

func (n *Notifier) Enabled() bool { return n != nil }

// NotifyVerdict posts a one-line summary of an answered query.
func (n *Notifier) NotifyVerdict(ctx context.Context, rec domain.PredictionRecord) error {
	if n == nil {
		return nil
	}
	reportURL := ""
	if n.baseURL != "" && rec.ID != "" {
		reportURL = n.baseURL + "/reports/" + rec.ID
	}
	msg := FormatVerdict(n.brand, rec, reportURL)
	if _, _, err := n.api.PostMessageContext(ctx, n.channel, slack.MsgOptionText(msg, false)); err != nil {
		n.log.Warnf("verdict post error channel=%s id=%s: %v", n.channel, rec.ID, err)
		return fmt.Errorf("post verdict: %w", err)
	}
	n.log.Debugf("verdict posted channel=%s id=%s", n.channel, rec.ID)
	return nil
}

// PostDigest posts an already formatted mrkdwn digest.
func (n *Notifier) PostDigest(ctx context.Context, mrkdwn string) error {
	if n == nil {
		return nil
	}
	if _, _, err := n.api.PostMessageContext(ctx, n.channel, slack.MsgOptionText(mrkdwn, false)); err != nil {
		n.log.Warnf("digest post error channel=%s: %v", n.channel, err)
		return fmt.Errorf("post digest: %w", err)
	}
	n.log.Infof("digest posted channel=%s", n.channel)
	return nil
}

func FormatVerdict(brand string, rec domain.PredictionRecord, reportURL string) string {
	if brand == "" {
		brand = "VARGENTO"
	}
	label := rec.DisplayLabel
	if label == "" {
		label = rec.Label
	}
	desc := strings.Join(strings.Fields(rec.Description), " ")
	if r := []rune(desc); len(r) > 140 {
		desc = string(r[:140]) + "..."
	}
	msg := fmt.Sprintf("*%s*: _%s_ → *%s* (%.0f%%)", brand, escapeText(desc), escapeText(label), rec.Confidence*100)
	if rec.VideoURL != "" {
		msg += fmt.Sprintf(" | <%s|video>", rec.VideoURL)
	}
	if rec.KeyFrame > 0 {
		msg += fmt.Sprintf(" | frame %d", rec.KeyFrame)
	}
	if reportURL != "" {
		msg += fmt.Sprintf(" | <%s|PDF>", reportURL)
	}
	return msg
}

// escapeText applies Slack's control character escaping.
func escapeText(s string) string {
	return strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;").Replace(s)
}
