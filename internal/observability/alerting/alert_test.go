package alerting

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	xerrors "github.com/pvtclawn/swarm-verifier/internal/errors"
)

type captureDingTalk struct {
	content string
	err     error
}

func (c *captureDingTalk) Send(_ context.Context, content string) error {
	c.content = content
	return c.err
}

type captureSlack struct {
	channel string
	content string
}

func (c *captureSlack) Send(_ context.Context, channel, content string) error {
	c.channel = channel
	c.content = content
	return nil
}

func sampleEvent() Event {
	return Event{
		Code:          xerrors.CodeDispatchFailure,
		Message:       "智能体全部超时",
		Severity:      xerrors.SeverityWarning,
		JobID:         "job-42",
		AgentCount:    5,
		ChallengeType: "parallel",
		Attempts:      2,
		MaxRetries:    3,
		OccurredAt:    time.Now(),
	}
}

func TestDingTalkNotifyCarriesSwarmContext(t *testing.T) {
	sender := &captureDingTalk{}
	notifier := &DingTalkNotifier{Sender: sender}

	if err := notifier.Notify(context.Background(), sampleEvent()); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if !strings.Contains(sender.content, "job-42") {
		t.Fatalf("missing job id: %s", sender.content)
	}
	if !strings.Contains(sender.content, "5 个智能体") || !strings.Contains(sender.content, "parallel") {
		t.Fatalf("missing swarm context: %s", sender.content)
	}
}

func TestSlackNotifyCarriesSwarmContext(t *testing.T) {
	sender := &captureSlack{}
	notifier := &SlackNotifier{Sender: sender, ChannelID: "alerts"}

	if err := notifier.Notify(context.Background(), sampleEvent()); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if sender.channel != "alerts" {
		t.Fatalf("unexpected channel: %s", sender.channel)
	}
	if !strings.Contains(sender.content, "5 个智能体") {
		t.Fatalf("missing swarm context: %s", sender.content)
	}
}

func TestNotifyWithoutSwarmContextOmitsIt(t *testing.T) {
	sender := &captureDingTalk{}
	notifier := &DingTalkNotifier{Sender: sender}

	event := sampleEvent()
	event.AgentCount = 0
	event.ChallengeType = ""
	if err := notifier.Notify(context.Background(), event); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if strings.Contains(sender.content, "集群") {
		t.Fatalf("unexpected swarm line: %s", sender.content)
	}
}

func TestFanoutJoinsChannelErrors(t *testing.T) {
	failing := &captureDingTalk{err: errors.New("webhook down")}
	ok := &captureSlack{}
	fanout := NewFanout(&DingTalkNotifier{Sender: failing}, &SlackNotifier{Sender: ok, ChannelID: "alerts"})

	err := fanout.Notify(context.Background(), sampleEvent())
	if err == nil {
		t.Fatal("expected joined error")
	}
	if !strings.Contains(err.Error(), "dingtalk") {
		t.Fatalf("error should name the failing channel: %v", err)
	}
	if ok.content == "" {
		t.Fatal("healthy channel must still receive the event")
	}
}
