// Package coretest provides helpers for asserting on events queued to core clients.
package coretest

import (
	"testing"
	"time"

	"github.com/vovakirdan/wirechat-relay/internal/core"
)

// MustEvent waits for an event with the given name, skipping others.
func MustEvent(t *testing.T, c *core.Client, name string) *core.Event {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-c.Events:
			if ev != nil && ev.Name == name {
				return ev
			}
		case <-deadline:
			t.Fatalf("expected event %q not received", name)
			return nil
		}
	}
}

// NoEvent fails if any event with the given name arrives within wait.
func NoEvent(t *testing.T, c *core.Client, name string, wait time.Duration) {
	t.Helper()

	deadline := time.After(wait)
	for {
		select {
		case ev := <-c.Events:
			if ev != nil && ev.Name == name {
				t.Fatalf("unexpected event %q: %+v", name, ev.Payload)
			}
		case <-deadline:
			return
		}
	}
}

// Drain returns every event currently queued on the client.
func Drain(c *core.Client) []*core.Event {
	var out []*core.Event
	for {
		select {
		case ev := <-c.Events:
			out = append(out, ev)
		default:
			return out
		}
	}
}
