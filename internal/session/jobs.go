package session

import (
	"context"
	"errors"
	"net"
	"net/url"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// JobKind names the background operations a session can run.
type JobKind string

const (
	JobTurn      JobKind = "turn"
	JobTranslate JobKind = "translate"
	JobPlanReply JobKind = "plan_reply"
)

// Handler executes one job and returns a JSON-shaped result.
type Handler func(ctx context.Context, payload map[string]any) (map[string]any, error)

type job struct {
	done   bool
	result map[string]any
}

// Manager runs at most one LLM job at a time. Events submitted while a
// job is in flight queue up and are flushed before the next handler runs,
// keeping per-turn counter updates ordered.
type Manager struct {
	mu       sync.Mutex
	busy     bool
	jobs     map[string]*job
	queued   []map[string]any
	handlers map[JobKind]Handler
	sink     func(payload map[string]any) error
	wg       sync.WaitGroup
	log      *zap.Logger
}

func NewManager(log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		jobs:     map[string]*job{},
		handlers: map[JobKind]Handler{},
		log:      log,
	}
}

// Register installs the handler for a job kind.
func (m *Manager) Register(kind JobKind, h Handler) {
	m.handlers[kind] = h
}

// SetEventSink installs the destination queued events flush into.
func (m *Manager) SetEventSink(sink func(payload map[string]any) error) {
	m.sink = sink
}

// StartJob tries to acquire the busy flag and launch the kind's handler
// in the background. Returns {ok, job_id} on success, {ok:false, error}
// when busy or the kind is unknown.
func (m *Manager) StartJob(ctx context.Context, kind JobKind, payload map[string]any) map[string]any {
	h, ok := m.handlers[kind]
	if !ok {
		return map[string]any{"ok": false, "error": "invalid job kind"}
	}

	m.mu.Lock()
	if m.busy {
		m.mu.Unlock()
		return map[string]any{"ok": false, "error": "busy"}
	}
	m.busy = true
	jobID := uuid.NewString()
	m.jobs[jobID] = &job{}
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		result := m.runJob(ctx, h, payload)
		m.mu.Lock()
		if j := m.jobs[jobID]; j != nil {
			j.done = true
			j.result = result
		}
		m.busy = false
		m.mu.Unlock()
	}()
	return map[string]any{"ok": true, "job_id": jobID}
}

func (m *Manager) runJob(ctx context.Context, h Handler, payload map[string]any) map[string]any {
	m.flushQueued()
	result, err := h(ctx, payload)
	if err != nil {
		m.log.Warn("job failed", zap.Error(err))
		return errorResult(err)
	}
	if result == nil {
		result = map[string]any{"ok": true}
	}
	return result
}

// PollJob reports a job's status. A done job is removed on read.
func (m *Manager) PollJob(jobID string) map[string]any {
	if jobID == "" {
		return map[string]any{"ok": false, "error": "job_id required"}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[jobID]
	if !ok {
		return map[string]any{"ok": false, "error": "unknown job"}
	}
	if !j.done {
		return map[string]any{"ok": true, "status": "pending"}
	}
	delete(m.jobs, jobID)
	return map[string]any{"ok": true, "status": "done", "result": j.result}
}

// SubmitEvent delivers an event now, or queues it when a job is in
// flight so it lands before the next handler.
func (m *Manager) SubmitEvent(payload map[string]any) map[string]any {
	m.mu.Lock()
	if m.busy {
		m.queued = append(m.queued, payload)
		m.mu.Unlock()
		return map[string]any{"ok": true, "queued": true}
	}
	m.mu.Unlock()

	m.flushQueued()
	if m.sink != nil {
		if err := m.sink(payload); err != nil {
			return map[string]any{"ok": false, "error": err.Error()}
		}
	}
	return map[string]any{"ok": true}
}

func (m *Manager) flushQueued() {
	for {
		m.mu.Lock()
		if len(m.queued) == 0 {
			m.mu.Unlock()
			return
		}
		payload := m.queued[0]
		m.queued = m.queued[1:]
		m.mu.Unlock()
		if m.sink == nil {
			continue
		}
		if err := m.sink(payload); err != nil {
			// bad queued events are dropped
			m.log.Warn("queued event failed", zap.Error(err))
		}
	}
}

// Wait blocks until any in-flight job finishes.
func (m *Manager) Wait() {
	m.wg.Wait()
}

func errorResult(err error) map[string]any {
	var nerr net.Error
	if errors.Is(err, context.DeadlineExceeded) ||
		(errors.As(err, &nerr) && nerr.Timeout()) {
		return map[string]any{"ok": false, "error": "request timed out"}
	}
	var uerr *url.Error
	if errors.As(err, &uerr) || errors.As(err, &nerr) {
		return map[string]any{"ok": false, "error": "network error: " + err.Error()}
	}
	return map[string]any{"ok": false, "error": err.Error()}
}
