// Package notify announces finished builds on NATS.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"git.home.luguber.info/inful/sitebuilder/internal/events"
	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
)

// Notifier publishes build results.
type Notifier interface {
	NotifyBuild(ctx context.Context, evt events.BuildFinished) error
	Close()
}

// Noop drops every notification.
type Noop struct{}

func (Noop) NotifyBuild(context.Context, events.BuildFinished) error { return nil }
func (Noop) Close()                                                  {}

// Message is the JSON body published for each build.
type Message struct {
	BuildID    string    `json:"build_id"`
	Mode       string    `json:"mode"`
	Revision   string    `json:"revision,omitempty"`
	Success    bool      `json:"success"`
	Error      string    `json:"error,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	Steps      []Step    `json:"steps"`
	FinishedAt time.Time `json:"finished_at"`
}

// Step summarizes one step of the build.
type Step struct {
	Name    string `json:"name"`
	Written int    `json:"written"`
	Removed int    `json:"removed"`
	Error   string `json:"error,omitempty"`
}

// NewMessage converts a build event into its wire form.
func NewMessage(evt events.BuildFinished) Message {
	m := Message{
		BuildID:    evt.BuildID,
		Mode:       string(evt.Mode),
		Revision:   evt.Revision,
		Success:    evt.Succeeded(),
		Error:      evt.Err,
		DurationMS: evt.Duration.Milliseconds(),
		Steps:      make([]Step, 0, len(evt.Steps)),
		FinishedAt: evt.At.UTC(),
	}
	for _, s := range evt.Steps {
		m.Steps = append(m.Steps, Step{
			Name:    s.Category.Step(),
			Written: s.Report.Written,
			Removed: s.Report.Removed,
			Error:   s.Err,
		})
	}
	return m
}

// NATSNotifier publishes to a core NATS subject.
type NATSNotifier struct {
	conn    *nats.Conn
	subject string
}

// NewNATSNotifier connects to url.
func NewNATSNotifier(url, subject string) (*NATSNotifier, error) {
	conn, err := nats.Connect(url,
		nats.Name("sitebuilder"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return &NATSNotifier{conn: conn, subject: subject}, nil
}

// NotifyBuild publishes evt and waits for the server to acknowledge the flush.
func (n *NATSNotifier) NotifyBuild(ctx context.Context, evt events.BuildFinished) error {
	data, err := json.Marshal(NewMessage(evt))
	if err != nil {
		return fmt.Errorf("marshal build message: %w", err)
	}
	if err := n.conn.Publish(n.subject, data); err != nil {
		return fmt.Errorf("publish build message: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := n.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flush build message: %w", err)
	}
	return nil
}

func (n *NATSNotifier) Close() { n.conn.Close() }

// Forward sends every build from ch through n until ch is closed.
// Failures are logged; notification never fails a build.
func Forward(ctx context.Context, n Notifier, ch <-chan events.BuildFinished, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	for evt := range ch {
		if err := n.NotifyBuild(ctx, evt); err != nil {
			logger.Warn("Failed to publish build notification",
				logfields.BuildID(evt.BuildID),
				logfields.Error(err))
		}
	}
}
