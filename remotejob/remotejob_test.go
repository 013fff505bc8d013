package remotejob

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"attendserver/attendance"
)

type fakeTopic struct {
	mu   sync.Mutex
	fail bool
	sent [][]byte
}

func (ft *fakeTopic) send(ctx context.Context, data []byte) error {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	if ft.fail {
		return errors.New("pubsub unavailable")
	}
	ft.sent = append(ft.sent, data)
	return nil
}

func newTestOutbox(t *testing.T) *Outbox {
	t.Helper()
	outbox, err := OpenOutbox(filepath.Join(t.TempDir(), "outbox.db"))
	if err != nil {
		t.Fatalf("OpenOutbox: %v", err)
	}
	t.Cleanup(func() { outbox.Close() })
	return outbox
}

var event = attendance.Event{Type: attendance.EventMarked, EmployeeID: "emp1", Date: "2024-03-10", PresentOrNot: true}

func TestPublish(t *testing.T) {
	topic := &fakeTopic{}
	p := newPublisher(topic.send, newTestOutbox(t))
	if err := p.Publish(context.Background(), event); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(topic.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(topic.sent))
	}
	var got attendance.Event
	if err := json.Unmarshal(topic.sent[0], &got); err != nil {
		t.Fatal(err)
	}
	if got != event {
		t.Errorf("payload = %+v, want %+v", got, event)
	}
}

func TestOutboxDrain(t *testing.T) {
	ctx := context.Background()
	topic := &fakeTopic{fail: true}
	outbox := newTestOutbox(t)
	p := newPublisher(topic.send, outbox)

	for i := 0; i < 3; i++ {
		if err := p.Publish(ctx, event); err != nil {
			t.Fatalf("Publish with outbox should not lose the event: %v", err)
		}
	}
	if n, _ := outbox.Len(); n != 3 {
		t.Fatalf("outbox holds %d messages, want 3", n)
	}

	sent, err := p.Drain(ctx)
	if err != nil || sent != 0 {
		t.Fatalf("Drain while failing = %d, %v", sent, err)
	}
	pending, _ := outbox.Pending(10)
	if len(pending) != 3 || pending[0].Attempts != 2 || pending[0].LastError == "" {
		t.Errorf("pending = %+v", pending)
	}

	topic.mu.Lock()
	topic.fail = false
	topic.mu.Unlock()
	sent, err = p.Drain(ctx)
	if err != nil || sent != 3 {
		t.Fatalf("Drain = %d, %v; want 3", sent, err)
	}
	if n, _ := outbox.Len(); n != 0 {
		t.Errorf("outbox still holds %d messages", n)
	}
}

func TestPublishWithoutOutbox(t *testing.T) {
	p := newPublisher((&fakeTopic{fail: true}).send, nil)
	if err := p.Publish(context.Background(), event); err == nil {
		t.Error("Publish without an outbox should report the lost event")
	}
	if sent, err := p.Drain(context.Background()); sent != 0 || err != nil {
		t.Errorf("Drain without outbox = %d, %v", sent, err)
	}
}

func TestNotifyIsAsync(t *testing.T) {
	topic := &fakeTopic{}
	p := newPublisher(topic.send, nil)
	p.Notify(context.Background(), event)
	p.Close()
	if len(topic.sent) != 1 {
		t.Errorf("sent %d messages after Close, want 1", len(topic.sent))
	}
}
