// Package reporter posts task progress events to a TaskPulse server. Sends
// are throttled and best-effort: a background worker coalesces pending
// updates to the latest state and an unreachable server never breaks the
// caller's work loop.
package reporter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

type Config struct {
	// ServerURL is the progress ingestion endpoint, e.g.
	// http://localhost:8000/api/v1/progress.
	ServerURL string

	// TaskID identifies the task; generated from hostname and time when empty.
	TaskID string

	Desc  string
	Total float64
	Unit  string
	Meta  map[string]interface{}

	// APIToken is sent as an Authorization bearer header when set.
	APIToken string

	// PushInterval throttles how often the worker posts. Default 250ms.
	PushInterval time.Duration

	// RequestTimeout bounds each HTTP post. Default 2s.
	RequestTimeout time.Duration

	Logger *zap.Logger
}

type event struct {
	TaskID    string                 `json:"task_id"`
	Desc      string                 `json:"desc,omitempty"`
	Total     *float64               `json:"total,omitempty"`
	N         *float64               `json:"n,omitempty"`
	Unit      string                 `json:"unit,omitempty"`
	Status    string                 `json:"status,omitempty"`
	Timestamp float64                `json:"timestamp"`
	Meta      map[string]interface{} `json:"meta,omitempty"`
}

type Reporter struct {
	cfg        Config
	httpClient *http.Client
	queue      chan event
	stop       chan struct{}
	done       chan struct{}

	mu     sync.Mutex
	n      float64
	desc   string
	closed bool
}

func New(cfg Config) *Reporter {
	if cfg.PushInterval <= 0 {
		cfg.PushInterval = 250 * time.Millisecond
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 2 * time.Second
	}
	if cfg.TaskID == "" {
		cfg.TaskID = defaultTaskID()
	}

	r := &Reporter{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		queue:      make(chan event, 64),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
		desc:       cfg.Desc,
	}
	go r.worker()

	n := 0.0
	r.emit("start", &n)
	return r
}

func defaultTaskID() string {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return fmt.Sprintf("%s:%d:%04d", hostname, time.Now().Unix(), rand.Intn(10000))
}

// Add records delta more units of completed work.
func (r *Reporter) Add(delta float64) {
	r.mu.Lock()
	r.n += delta
	n := r.n
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return
	}
	r.emit("update", &n)
}

// SetDescription updates the human readable description.
func (r *Reporter) SetDescription(desc string) {
	r.mu.Lock()
	r.desc = desc
	n := r.n
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return
	}
	r.emit("update", &n)
}

// Close sends the final close event and stops the worker, draining anything
// still queued. Safe to call more than once.
func (r *Reporter) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	n := r.n
	r.mu.Unlock()

	r.emit("close", &n)
	close(r.stop)
	<-r.done
}

func (r *Reporter) emit(status string, n *float64) {
	ev := event{
		TaskID:    r.cfg.TaskID,
		Status:    status,
		N:         n,
		Timestamp: float64(time.Now().UnixNano()) / float64(time.Second),
		Unit:      r.cfg.Unit,
		Meta:      r.cfg.Meta,
	}
	r.mu.Lock()
	ev.Desc = r.desc
	r.mu.Unlock()
	if r.cfg.Total > 0 {
		total := r.cfg.Total
		ev.Total = &total
	}

	select {
	case r.queue <- ev:
	default:
		// Queue full; the worker coalesces to latest state anyway.
	}
}

func (r *Reporter) worker() {
	defer close(r.done)

	poll := r.cfg.PushInterval / 4
	if poll < time.Millisecond {
		poll = time.Millisecond
	}
	if poll > 100*time.Millisecond {
		poll = 100 * time.Millisecond
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	var buffered *event
	var lastPush time.Time
	for {
		select {
		case ev := <-r.queue:
			buffered = &ev
		case <-ticker.C:
		case <-r.stop:
			if buffered != nil {
				r.post(*buffered)
			}
			for {
				select {
				case ev := <-r.queue:
					r.post(ev)
				default:
					return
				}
			}
		}

		if buffered != nil && time.Since(lastPush) >= r.cfg.PushInterval {
			r.post(*buffered)
			lastPush = time.Now()
			buffered = nil
		}
	}
}

func (r *Reporter) post(ev event) {
	body, err := json.Marshal(ev)
	if err != nil {
		return
	}

	req, err := http.NewRequest(http.MethodPost, r.cfg.ServerURL, bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if r.cfg.APIToken != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", r.cfg.APIToken))
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		if r.cfg.Logger != nil {
			r.cfg.Logger.Debug("progress_post_failed", zap.Error(err))
		}
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && r.cfg.Logger != nil {
		r.cfg.Logger.Debug("progress_post_bad_status", zap.Int("status", resp.StatusCode))
	}
}
