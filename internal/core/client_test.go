package core

import (
	"context"
	"testing"
	"time"
)

func TestClientSendDropsWhenFull(t *testing.T) {
	c := NewClient("c1", 1)

	if !c.Send(NewEvent(EventChatMessage, nil)) {
		t.Fatalf("first send should be queued")
	}
	if c.Send(NewEvent(EventChatMessage, nil)) {
		t.Fatalf("second send should be dropped on a full buffer")
	}
}

func TestClientSendAfterClose(t *testing.T) {
	c := NewClient("c1", 4)
	c.Close()
	c.Close()

	if c.Send(NewEvent(EventChatMessage, nil)) {
		t.Fatalf("send on closed client should report false")
	}
	select {
	case <-c.Done():
	default:
		t.Fatalf("done channel should be closed")
	}
}

func TestAsCoreError(t *testing.T) {
	wrapped := errorsJoin(ErrUserNotFound)
	ce, ok := AsCoreError(wrapped)
	if !ok || ce.Kind != KindNotFound || ce.Code != ErrCodeUserNotFound {
		t.Fatalf("unexpected core error: %+v ok=%v", ce, ok)
	}
}

func TestClientSendWaitUnblocksOnClose(t *testing.T) {
	c := NewClient("c1", 1)
	if !c.SendWait(context.Background(), NewEvent(EventChatMessage, nil)) {
		t.Fatalf("first send should be queued")
	}

	done := make(chan bool, 1)
	go func() {
		done <- c.SendWait(context.Background(), NewEvent(EventChatMessage, nil))
	}()
	c.Close()

	select {
	case ok := <-done:
		if ok {
			t.Fatalf("send after close should report false")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("SendWait did not return after close")
	}
}
