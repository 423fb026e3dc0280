package redisfeed

import (
	"errors"
	"sync"
	"testing"

	"notigate/internal/notify"
	logx "notigate/pkg/logx"
)

type captureSink struct {
	mu   sync.Mutex
	seen []notify.Notification
}

func (c *captureSink) Show(n notify.Notification) {
	c.mu.Lock()
	c.seen = append(c.seen, n)
	c.mu.Unlock()
}

func (c *captureSink) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

func TestHandleDeliversKnownKinds(t *testing.T) {
	t.Parallel()
	sink := &captureSink{}
	f := New(Config{Enabled: true}, sink, logx.Nop())

	f.handle(`{"type":"invoice_paid","data":{"invoiceId":"inv-1","amount":"10 USDT"}}`)
	if sink.count() != 1 {
		t.Fatalf("seen = %d, want 1", sink.count())
	}
	if got := sink.seen[0]; got.Category != "merchant" || got.Kind != notify.KindSuccess {
		t.Fatalf("notification = %+v", got)
	}
}

func TestHandleDropsJunk(t *testing.T) {
	t.Parallel()
	sink := &captureSink{}
	f := New(Config{Enabled: true}, sink, logx.Nop())

	f.handle(`not json`)
	f.handle(`{"type":"mystery","data":{}}`)
	f.handle(`{"type":"balance_update","data":"nope"}`)
	if sink.count() != 0 {
		t.Fatalf("seen = %d, want 0 for junk input", sink.count())
	}
}

func TestConnectionTransitions(t *testing.T) {
	t.Parallel()
	sink := &captureSink{}
	f := New(Config{Enabled: true}, sink, logx.Nop())

	// First connect is silent.
	f.noteConnected()
	if sink.count() != 0 {
		t.Fatalf("first connect should not notify, got %d", sink.count())
	}

	// Drop then recover: one warning, one recovery.
	f.noteDisconnected(errTest)
	f.noteDisconnected(errTest) // repeated drops collapse
	f.noteConnected()
	if sink.count() != 2 {
		t.Fatalf("seen = %d, want 2 (lost + restored)", sink.count())
	}
	if sink.seen[0].Kind != notify.KindWarning || sink.seen[1].Kind != notify.KindSuccess {
		t.Fatalf("transition kinds = %s, %s", sink.seen[0].Kind, sink.seen[1].Kind)
	}
	if f.Connected() != true {
		t.Fatal("feed should report connected")
	}
}

func TestConfigDefaults(t *testing.T) {
	t.Parallel()
	c := Config{}.withDefaults()
	if c.Addr != "127.0.0.1:6379" || c.Channel != "notifications" {
		t.Fatalf("defaults = %+v", c)
	}
}

var errTest = errors.New("dial refused")
