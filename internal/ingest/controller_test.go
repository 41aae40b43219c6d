package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"waveplot/internal/platform/metrics"
	"waveplot/internal/waveform"
)

func newTestController(t *testing.T, client Client) (*Controller, *waveform.Manager) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	mgr := waveform.NewManager(time.Minute, testLogger())
	cfg := LoopConfig{PollInterval: 2 * time.Millisecond}
	return NewController(ctx, client, mgr, cfg, testLogger(), metrics.New()), mgr
}

func TestController_Start_Stop_Status(t *testing.T) {
	c, _ := newTestController(t, newFakeClient())

	if c.Status() {
		t.Error("new controller should not be running")
	}
	if c.State() != StateStopped {
		t.Errorf("State: got %v", c.State())
	}

	if err := c.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !c.Status() {
		t.Error("Status should be true after Start")
	}
	if err := c.Start(); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Start: expected ErrAlreadyRunning, got %v", err)
	}

	c.Stop()
	waitFor(t, "loop stopped", func() bool { return !c.Status() && c.State() == StateStopped })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := c.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if c.LastError() != nil {
		t.Errorf("LastError after requested stop: %v", c.LastError())
	}
}

func TestController_restart(t *testing.T) {
	client := newFakeClient()
	c, _ := newTestController(t, client)

	for i := 0; i < 2; i++ {
		if err := c.Start(); err != nil {
			t.Fatalf("Start #%d: %v", i+1, err)
		}
		c.Stop()
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		if err := c.Wait(ctx); err != nil {
			cancel()
			t.Fatalf("Wait #%d: %v", i+1, err)
		}
		cancel()
	}
	if client.opens.Load() != 2 || client.goodbyes.Load() != 2 {
		t.Errorf("opens=%d goodbyes=%d, want 2/2", client.opens.Load(), client.goodbyes.Load())
	}
}

func TestController_transport_failure_clears_status(t *testing.T) {
	client := newFakeClient()
	c, _ := newTestController(t, client)
	if err := c.Start(); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "running", func() bool { return c.State() == StateRunning })

	client.alive.Store(false)
	waitFor(t, "status false", func() bool { return !c.Status() })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = c.Wait(ctx)
	if !errors.Is(c.LastError(), ErrTransportFailure) {
		t.Errorf("LastError: expected ErrTransportFailure, got %v", c.LastError())
	}
}

func TestController_Menu(t *testing.T) {
	q := NewQueueClient(8)
	c, _ := newTestController(t, q)
	if err := c.Start(); err != nil {
		t.Fatal(err)
	}
	defer c.Stop()

	waitFor(t, "queue open", q.Alive)
	if err := q.Push(testPacket(0, 1, 2)); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "menu", func() bool { return len(c.Menu()) == 1 })
	if c.Menu()[0] != testKey {
		t.Errorf("Menu: got %v", c.Menu())
	}
}
