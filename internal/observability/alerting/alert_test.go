package alerting

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	xerrors "LiquiSafe-Chain/internal/errors"
)

type recordingDingTalk struct {
	contents []string
	fail     bool
}

func (s *recordingDingTalk) Send(_ context.Context, content string) error {
	if s.fail {
		return errors.New("dingtalk down")
	}
	s.contents = append(s.contents, content)
	return nil
}

type recordingSlack struct {
	channels []string
	contents []string
}

func (s *recordingSlack) Send(_ context.Context, channel, content string) error {
	s.channels = append(s.channels, channel)
	s.contents = append(s.contents, content)
	return nil
}

func sampleEvent() Event {
	return Event{
		Code:       xerrors.CodeBroadcastFailure,
		Message:    "广播返回空交易哈希",
		Severity:   xerrors.SeverityCritical,
		PeriodID:   "0-deadbeef",
		Round:      "enter_pool_send",
		Keeper:     "0x0000000000000000000000000000000000000001",
		Attempts:   2,
		MaxRetries: 5,
		OccurredAt: time.Now(),
	}
}

func TestFanoutDeliversToAllChannels(t *testing.T) {
	ding := &recordingDingTalk{}
	slack := &recordingSlack{}
	dispatcher := NewFanout(
		&DingTalkNotifier{Sender: ding},
		&SlackNotifier{Sender: slack, ChannelID: "ops"},
	)

	if err := dispatcher.Notify(context.Background(), sampleEvent()); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if len(ding.contents) != 1 {
		t.Fatalf("dingtalk channel did not receive the event")
	}
	if len(slack.contents) != 1 || slack.channels[0] != "ops" {
		t.Fatalf("slack channel did not receive the event: %v", slack.channels)
	}
	if !strings.Contains(ding.contents[0], "enter_pool_send") {
		t.Fatalf("alert text missing the round: %s", ding.contents[0])
	}
}

func TestFanoutReportsFailedChannelsButKeepsGoing(t *testing.T) {
	ding := &recordingDingTalk{fail: true}
	slack := &recordingSlack{}
	dispatcher := NewFanout(
		&DingTalkNotifier{Sender: ding},
		&SlackNotifier{Sender: slack, ChannelID: "ops"},
	)

	err := dispatcher.Notify(context.Background(), sampleEvent())
	if err == nil {
		t.Fatalf("expected error from the failing channel")
	}
	if len(slack.contents) != 1 {
		t.Fatalf("healthy channel must still receive the event")
	}
}

func TestUnconfiguredNotifiersAreNoOps(t *testing.T) {
	dispatcher := NewFanout(
		&DingTalkNotifier{},
		&SlackNotifier{},
		&EmailNotifier{},
	)
	if err := dispatcher.Notify(context.Background(), sampleEvent()); err != nil {
		t.Fatalf("unconfigured notifiers must not fail: %v", err)
	}
}

func TestDingTalkWebhookSend(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode webhook body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sender, err := NewDingTalkWebhook(server.URL)
	if err != nil {
		t.Fatalf("new webhook: %v", err)
	}
	if err := sender.Send(context.Background(), "测试告警"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if got["msgtype"] != "text" {
		t.Fatalf("unexpected payload: %v", got)
	}
	text, ok := got["text"].(map[string]any)
	if !ok || text["content"] != "测试告警" {
		t.Fatalf("content not carried: %v", got)
	}
}

func TestSlackWebhookRejectsErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "invalid_payload", http.StatusBadRequest)
	}))
	defer server.Close()

	sender, err := NewSlackWebhook(server.URL)
	if err != nil {
		t.Fatalf("new webhook: %v", err)
	}
	if err := sender.Send(context.Background(), "ops", "text"); err == nil {
		t.Fatalf("expected error for 400 response")
	}
}

func TestWebhookConstructorsRejectEmptyURL(t *testing.T) {
	if _, err := NewDingTalkWebhook("  "); err == nil {
		t.Fatalf("expected error for empty dingtalk url")
	}
	if _, err := NewSlackWebhook(""); err == nil {
		t.Fatalf("expected error for empty slack url")
	}
}
