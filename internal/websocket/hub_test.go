package websocket

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/pixelpress/api/internal/logger"
	"github.com/pixelpress/api/internal/model"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	h := NewHub(logger.Discard())
	go h.Run()
	t.Cleanup(h.Stop)
	return h
}

func subscribe(t *testing.T, h *Hub, jobID string) *Client {
	t.Helper()
	c := &Client{JobID: jobID, Send: make(chan []byte, 8)}
	h.Register(c)
	return c
}

func receive(t *testing.T, c *Client) []byte {
	t.Helper()
	select {
	case msg, ok := <-c.Send:
		if !ok {
			t.Fatal("send channel closed")
		}
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
	return nil
}

func TestHub_BroadcastState(t *testing.T) {
	h := startHub(t)
	c := subscribe(t, h, "job-1")

	h.BroadcastState("job-1", model.JobStateGenerating, "rendering")

	var msg model.WSStateMessage
	if err := json.Unmarshal(receive(t, c), &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.Type != model.WSMessageTypeState || msg.Status != model.JobStateGenerating || msg.Phase != "rendering" {
		t.Errorf("message = %+v", msg)
	}
}

func TestHub_BroadcastError(t *testing.T) {
	h := startHub(t)
	c := subscribe(t, h, "job-1")

	h.BroadcastError("job-1", string(model.KindRender), "render failed", model.StageRender)

	var msg model.WSErrorMessage
	if err := json.Unmarshal(receive(t, c), &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.Error.Code != "RenderFailure" || msg.Error.Stage != model.StageRender {
		t.Errorf("error = %+v", msg.Error)
	}
}

func TestHub_OnlyJobSubscribersReceive(t *testing.T) {
	h := startHub(t)
	a := subscribe(t, h, "job-a")
	b := subscribe(t, h, "job-b")

	h.BroadcastComplete("job-b", map[string]string{"download_url": "/api/download/job-b"})

	var msg model.WSCompleteMessage
	if err := json.Unmarshal(receive(t, b), &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.JobID != "job-b" {
		t.Errorf("JobID = %q", msg.JobID)
	}

	select {
	case m := <-a.Send:
		t.Errorf("job-a received %s", m)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_UnregisterClosesSend(t *testing.T) {
	h := startHub(t)
	c := subscribe(t, h, "job-1")

	h.Unregister(c)

	select {
	case _, ok := <-c.Send:
		if ok {
			t.Error("expected closed channel")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("send channel not closed")
	}

	deadline := time.Now().Add(2 * time.Second)
	for h.Subscribers("job-1") != 0 {
		if time.Now().After(deadline) {
			t.Fatal("client still subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHub_BroadcastWithoutRunDoesNotBlock(t *testing.T) {
	h := NewHub(logger.Discard())

	done := make(chan struct{})
	go func() {
		for i := 0; i < sendBuffer+10; i++ {
			h.BroadcastState("job-1", model.JobStateGenerating, "")
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast blocked")
	}
}
