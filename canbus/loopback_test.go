package canbus

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"
)

func TestLoopbackBus_SendReceive_MultiEndpoint(t *testing.T) {
	bus := NewLoopbackBus()
	defer bus.Close()

	a := bus.Open()
	b := bus.Open()
	c := bus.Open()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	send := MustFrame(0x321, []byte("hello"))
	if err := a.Send(ctx, send); err != nil {
		t.Fatalf("send: %v", err)
	}

	for name, ep := range map[string]*Endpoint{"b": b, "c": c} {
		got, err := ep.Receive(ctx)
		if err != nil {
			t.Fatalf("receive %s: %v", name, err)
		}
		if got.ID != send.ID || !bytes.Equal(got.Payload(), send.Payload()) {
			t.Fatalf("%s mismatch: got %+v want %+v", name, got, send)
		}
	}

	// The sender never hears its own frame.
	short, cancelShort := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancelShort()
	if _, err := a.Receive(short); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("sender received its own frame: %v", err)
	}
}

func TestLoopbackBus_CloseBehavior(t *testing.T) {
	bus := NewLoopbackBus()
	a := bus.Open()
	b := bus.Open()
	ctx := context.Background()

	_ = a.Close()
	if _, err := a.Receive(ctx); err != ErrClosed {
		t.Fatalf("closed endpoint should error on Receive, got %v", err)
	}
	if err := a.Send(ctx, MustFrame(0x1, nil)); err != ErrClosed {
		t.Fatalf("closed endpoint should error on Send, got %v", err)
	}

	_ = bus.Close()
	if _, err := b.Receive(ctx); err != ErrClosed {
		t.Fatalf("endpoint should error after bus close, got %v", err)
	}
	if err := b.Send(ctx, MustFrame(0x1, nil)); err != ErrClosed {
		t.Fatalf("endpoint should error on Send after bus close, got %v", err)
	}
	if ep := bus.Open(); ep.Send(ctx, MustFrame(0x1, nil)) != ErrClosed {
		t.Fatalf("endpoint opened on closed bus should be dead")
	}
}

func TestEndpoint_DriverHooks(t *testing.T) {
	bus := NewLoopbackBus()
	defer bus.Close()
	ep := bus.Open()
	ctx := context.Background()

	if err := ep.Init(500000); err != nil {
		t.Fatalf("init: %v", err)
	}
	if ep.Bitrate() != 500000 {
		t.Fatalf("bitrate = %d", ep.Bitrate())
	}
	boom := errors.New("no transceiver")
	ep.FailInit(boom)
	if err := ep.Init(1000000); err != boom {
		t.Fatalf("init error = %v, want %v", err, boom)
	}

	ep.FailSends(2)
	for i := 0; i < 2; i++ {
		if err := ep.Send(ctx, MustFrame(0x10, nil)); err != ErrTransmit {
			t.Fatalf("send %d: got %v, want ErrTransmit", i, err)
		}
	}
	if err := ep.Send(ctx, MustFrame(0x10, nil)); err != nil {
		t.Fatalf("third send: %v", err)
	}
	if got := ep.ErrorCount(); got != 2 {
		t.Fatalf("ErrorCount = %d, want 2", got)
	}
}
