package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

type countingSink struct {
	count atomic.Int64
}

func (s *countingSink) Emit(context.Context, Event) {
	s.count.Add(1)
}

type gateSink struct {
	gate chan struct{}
}

func (s *gateSink) Emit(context.Context, Event) {
	<-s.gate
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []amqp.Publishing
	keys []string
	err  error
}

func (p *fakePublisher) PublishWithContext(_ context.Context, _, key string, _, _ bool, msg amqp.Publishing) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, msg)
	p.keys = append(p.keys, key)
	return nil
}

func TestDispatcherDisabledIsNil(t *testing.T) {
	d := NewDispatcher(Config{Enabled: false}, &countingSink{})
	if d != nil {
		t.Fatal("expected nil dispatcher when disabled")
	}
	d.Emit(context.Background(), Event{Type: "login_success"})
	d.Close()
	if d.Dropped() != 0 {
		t.Fatal("nil dispatcher must report zero drops")
	}
}

func TestDispatcherDeliversAndStamps(t *testing.T) {
	sink := NewChannelSink(4)
	d := NewDispatcher(Config{Enabled: true, BufferSize: 4}, sink)
	defer d.Close()

	d.Emit(context.Background(), Event{Type: "login_success", AccountID: "acct-1", Success: true})

	select {
	case ev := <-sink.Events():
		if ev.ID == "" || ev.Timestamp.IsZero() {
			t.Fatalf("event not stamped: %+v", ev)
		}
		if ev.Type != "login_success" || ev.AccountID != "acct-1" {
			t.Fatalf("unexpected event: %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestDispatcherDropIfFull(t *testing.T) {
	sink := &gateSink{gate: make(chan struct{})}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)

	// The worker blocks on the first event; the buffer then holds one more.
	for i := 0; i < 10; i++ {
		d.Emit(context.Background(), Event{Type: "login_failure"})
	}
	if d.Dropped() == 0 {
		t.Fatal("expected drops with a blocked sink")
	}

	close(sink.gate)
	d.Close()
}

func TestDispatcherCloseDrains(t *testing.T) {
	sink := &countingSink{}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 64}, sink)

	for i := 0; i < 50; i++ {
		d.Emit(context.Background(), Event{Type: "logout"})
	}
	d.Close()

	if got := sink.count.Load(); got != 50 {
		t.Fatalf("delivered %d events, want 50", got)
	}

	d.Emit(context.Background(), Event{Type: "late"})
	if got := sink.count.Load(); got != 50 {
		t.Fatal("emit after close must be ignored")
	}
}

func TestEventIDsAreSortable(t *testing.T) {
	base := time.Now()
	a := NewID(base)
	b := NewID(base.Add(time.Millisecond))
	if !(a < b) {
		t.Fatalf("expected %s < %s", a, b)
	}
	if len(a) != 26 {
		t.Fatalf("unexpected ULID length %d", len(a))
	}
}

func TestJSONWriterSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)

	sink.Emit(context.Background(), Event{ID: "01", Type: "mfa_enabled", AccountID: "acct-1", Success: true})
	sink.Emit(context.Background(), Event{ID: "02", Type: "mfa_verify_failure", Reason: "invalid_code"})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	var ev Event
	if err := json.Unmarshal([]byte(lines[1]), &ev); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ev.Type != "mfa_verify_failure" || ev.Reason != "invalid_code" || ev.Success {
		t.Fatalf("unexpected decoded event: %+v", ev)
	}
}

func TestSlogSinkLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	sink := NewSlogSink(logger)

	sink.Emit(context.Background(), Event{Type: "login_failure", Reason: "invalid_credentials", IP: "10.0.0.1"})

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if rec["level"] != "WARN" || rec["event_type"] != "login_failure" || rec["reason"] != "invalid_credentials" {
		t.Fatalf("unexpected record: %v", rec)
	}
}

func TestAMQPSinkPublishesJSON(t *testing.T) {
	pub := &fakePublisher{}
	sink := NewAMQPSink(pub, "", DefaultQueue, nil)

	ev := Event{ID: "01ABC", Type: "password_changed", AccountID: "acct-1", Success: true, Timestamp: time.Now().UTC()}
	sink.Emit(context.Background(), ev)

	if len(pub.msgs) != 1 {
		t.Fatalf("published %d messages, want 1", len(pub.msgs))
	}
	msg := pub.msgs[0]
	if pub.keys[0] != DefaultQueue || msg.MessageId != "01ABC" || msg.DeliveryMode != amqp.Persistent {
		t.Fatalf("unexpected publishing: %+v", msg)
	}
	var decoded Event
	if err := json.Unmarshal(msg.Body, &decoded); err != nil || decoded.AccountID != "acct-1" {
		t.Fatalf("bad body: %v %+v", err, decoded)
	}

	pub.err = errors.New("broker down")
	sink.Emit(context.Background(), ev)
	if err := sink.Close(); err != nil {
		t.Fatalf("Close on undialed sink: %v", err)
	}
}

func TestMultiSinkFansOut(t *testing.T) {
	a, b := &countingSink{}, &countingSink{}
	m := MultiSink{a, nil, b}
	m.Emit(context.Background(), Event{Type: "logout"})
	if a.count.Load() != 1 || b.count.Load() != 1 {
		t.Fatal("expected both sinks to receive the event")
	}
}
