package notify

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestPublishTargetsOwner(t *testing.T) {
	r := NewRegistry(4, nil)
	asha := r.Subscribe("asha@example.org")
	ravi := r.Subscribe("ravi@example.org")
	defer asha.Close()
	defer ravi.Close()

	r.Publish("asha@example.org", Error("Translation failed", "try again"))

	select {
	case n := <-asha.C:
		if n.Level != LevelError || n.ID == "" || n.Time.IsZero() {
			t.Fatalf("unexpected notification %+v", n)
		}
	default:
		t.Fatalf("expected notification for owner")
	}
	select {
	case n := <-ravi.C:
		t.Fatalf("unexpected notification for other owner: %+v", n)
	default:
	}
}

func TestBroadcastReachesEveryone(t *testing.T) {
	r := NewRegistry(4, nil)
	a, b := r.Subscribe("a"), r.Subscribe("")
	defer a.Close()
	defer b.Close()

	r.Broadcast(Success("Report saved", "thanks"))
	for _, sub := range []*Subscription{a, b} {
		select {
		case <-sub.C:
		default:
			t.Fatalf("expected broadcast delivery")
		}
	}
}

func TestFullBufferDropsWithoutBlocking(t *testing.T) {
	r := NewRegistry(1, nil)
	sub := r.Subscribe("x")
	defer sub.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			r.Publish("x", Error("e", "m"))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("publish blocked on a full subscriber")
	}
	if len(sub.C) != 1 {
		t.Fatalf("expected one buffered notification, got %d", len(sub.C))
	}
}

func TestCloseUnsubscribesOnce(t *testing.T) {
	r := NewRegistry(1, nil)
	sub := r.Subscribe("x")
	sub.Close()
	sub.Close()
	if r.Len() != 0 {
		t.Fatalf("expected no subscribers, got %d", r.Len())
	}
	if _, ok := <-sub.C; ok {
		t.Fatalf("expected closed channel")
	}
	r.Publish("x", Error("e", "m"))
}

func TestStreamWritesEvents(t *testing.T) {
	r := NewRegistry(4, nil)
	h := NewHandler(r, func(*http.Request) string { return "asha@example.org" })
	server := httptest.NewServer(http.HandlerFunc(h.Stream))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("stream request error = %v", err)
	}
	defer resp.Body.Close()
	if resp.Header.Get("Content-Type") != "text/event-stream" {
		t.Fatalf("unexpected content type %q", resp.Header.Get("Content-Type"))
	}

	reader := bufio.NewReader(resp.Body)
	if line, _ := reader.ReadString('\n'); !strings.HasPrefix(line, ": connected") {
		t.Fatalf("expected connected comment, got %q", line)
	}

	deadline := time.Now().Add(time.Second)
	for r.Len() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	r.Publish("asha@example.org", Success("Registered", "welcome"))

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("read stream: %v", err)
		}
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}
		var n Notification
		if err := json.Unmarshal([]byte(strings.TrimSpace(data)), &n); err != nil {
			t.Fatalf("decode event: %v", err)
		}
		if n.Title != "Registered" || n.Level != LevelSuccess {
			t.Fatalf("unexpected event %+v", n)
		}
		return
	}
}
