package session

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func pollUntilDone(t *testing.T, m *Manager, jobID string) map[string]any {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		res := m.PollJob(jobID)
		if res["status"] == "done" {
			return res["result"].(map[string]any)
		}
		select {
		case <-deadline:
			t.Fatal("job never finished")
		case <-time.After(time.Millisecond):
		}
	}
}

func TestManagerSingleInflight(t *testing.T) {
	m := NewManager(nil)
	release := make(chan struct{})
	m.Register(JobTurn, func(context.Context, map[string]any) (map[string]any, error) {
		<-release
		return map[string]any{"ok": true, "n": 1}, nil
	})

	first := m.StartJob(context.Background(), JobTurn, nil)
	if first["ok"] != true {
		t.Fatalf("first = %v", first)
	}
	second := m.StartJob(context.Background(), JobTurn, nil)
	if second["ok"] != false || second["error"] != "busy" {
		t.Fatalf("second = %v", second)
	}

	jobID := first["job_id"].(string)
	if res := m.PollJob(jobID); res["status"] != "pending" {
		t.Fatalf("poll = %v", res)
	}
	close(release)

	result := pollUntilDone(t, m, jobID)
	if result["n"] != 1 {
		t.Fatalf("result = %v", result)
	}
	// A done job is removed on read.
	if res := m.PollJob(jobID); res["error"] != "unknown job" {
		t.Fatalf("second poll = %v", res)
	}
	m.Wait()
}

func TestManagerInvalidInputs(t *testing.T) {
	m := NewManager(nil)
	if res := m.StartJob(context.Background(), "bogus", nil); res["error"] != "invalid job kind" {
		t.Fatalf("res = %v", res)
	}
	if res := m.PollJob(""); res["error"] != "job_id required" {
		t.Fatalf("res = %v", res)
	}
	if res := m.PollJob("nope"); res["error"] != "unknown job" {
		t.Fatalf("res = %v", res)
	}
}

func TestManagerQueuesEventsWhileBusy(t *testing.T) {
	m := NewManager(nil)
	var delivered []string
	m.SetEventSink(func(payload map[string]any) error {
		delivered = append(delivered, payload["event_type"].(string))
		return nil
	})

	release := make(chan struct{})
	started := make(chan struct{})
	m.Register(JobTurn, func(context.Context, map[string]any) (map[string]any, error) {
		close(started)
		<-release
		return nil, nil
	})
	var flushedBefore int
	m.Register(JobTranslate, func(context.Context, map[string]any) (map[string]any, error) {
		flushedBefore = len(delivered)
		return nil, nil
	})

	m.StartJob(context.Background(), JobTurn, nil)
	<-started
	res := m.SubmitEvent(map[string]any{"event_type": "dont_know"})
	if res["queued"] != true {
		t.Fatalf("res = %v", res)
	}
	res = m.SubmitEvent(map[string]any{"event_type": "lookup"})
	if res["queued"] != true {
		t.Fatalf("res = %v", res)
	}
	if len(delivered) != 0 {
		t.Fatalf("events delivered mid-job: %v", delivered)
	}
	close(release)
	m.Wait()

	// Queued events land before the next handler, in submit order.
	second := m.StartJob(context.Background(), JobTranslate, nil)
	m.Wait()
	if flushedBefore != 2 {
		t.Fatalf("flushed before handler = %d", flushedBefore)
	}
	if delivered[0] != "dont_know" || delivered[1] != "lookup" {
		t.Fatalf("delivered = %v", delivered)
	}
	pollUntilDone(t, m, second["job_id"].(string))
}

func TestManagerErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"timeout", context.DeadlineExceeded, "request timed out"},
		{"url timeout", &url.Error{Op: "Post", URL: "http://x", Err: timeoutErr{}}, "request timed out"},
		{"network", &url.Error{Op: "Post", URL: "http://x", Err: errors.New("connection refused")}, "network error: Post \"http://x\": connection refused"},
		{"plain", errors.New("boom"), "boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager(nil)
			m.Register(JobTurn, func(context.Context, map[string]any) (map[string]any, error) {
				return nil, tt.err
			})
			res := m.StartJob(context.Background(), JobTurn, nil)
			result := pollUntilDone(t, m, res["job_id"].(string))
			if result["ok"] != false || result["error"] != tt.want {
				t.Fatalf("result = %v, want error %q", result, tt.want)
			}
			m.Wait()
		})
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }
