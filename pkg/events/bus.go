package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ragshield/ragshield/pkg/models"
)

var (
	// ErrIO is returned by Publish while the durable sink is unwritable.
	// The event is still delivered to live subscribers.
	ErrIO = errors.New("event sink unwritable")

	// ErrClosed is returned by Publish after Close.
	ErrClosed = errors.New("event bus closed")
)

// Bus is the event bus and logger. Publish enqueues and returns; a single
// appender goroutine serializes all durable writes, so the log is totally
// ordered per process and subscribers observe events in exactly the order
// they were appended.
type Bus struct {
	path       string
	queue      chan models.Event
	nextID     atomic.Int64
	sinkBroken atomic.Bool

	// closeMu serializes Publish against Close so the queue is never
	// written after it is closed.
	closeMu sync.RWMutex
	closed  bool

	mu     sync.Mutex
	subs   map[int64]*subscriber
	nextSub int64
	subBuf  int

	wg sync.WaitGroup
}

// subscriber is a single live consumer with a bounded buffer.
type subscriber struct {
	id int64
	ch chan models.Event
}

// NewBus creates the bus and starts the appender. The log file's parent
// directory is created if needed; the file is opened append-only.
func NewBus(path string, queueSize, subscriberBuffer int) (*Bus, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create event log directory: %w", err)
	}

	b := &Bus{
		path:   path,
		queue:  make(chan models.Event, queueSize),
		subs:   make(map[int64]*subscriber),
		subBuf: subscriberBuffer,
	}
	b.nextID.Store(countLines(path))

	b.wg.Add(1)
	go b.run()
	return b, nil
}

// Publish validates the code, assigns a monotonic event ID, enqueues the
// event, and returns. It does not wait for the durable write. While the
// sink is known to be unwritable it returns ErrIO; the event still reaches
// live subscribers.
func (b *Bus) Publish(code string, level models.EventLevel, category, message, correlationID string, payload map[string]any) (int64, error) {
	if !ValidCode(code) {
		return 0, fmt.Errorf("%w: %q", ErrUnknownCode, code)
	}

	b.closeMu.RLock()
	defer b.closeMu.RUnlock()
	if b.closed {
		return 0, ErrClosed
	}

	ev := models.Event{
		EventID:       b.nextID.Add(1),
		Code:          code,
		Level:         level,
		Category:      category,
		Message:       message,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Payload:       payload,
	}

	b.queue <- ev

	if b.sinkBroken.Load() {
		return ev.EventID, ErrIO
	}
	return ev.EventID, nil
}

// Subscribe registers a live consumer and returns its event channel plus
// an unsubscribe function. The stream carries future events only; callers
// wanting history use Recent. The channel is closed on unsubscribe, on
// bus shutdown, or when the consumer falls too far behind.
func (b *Bus) Subscribe() (<-chan models.Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextSub++
	sub := &subscriber{id: b.nextSub, ch: make(chan models.Event, b.subBuf)}
	b.subs[sub.id] = sub

	return sub.ch, func() { b.removeSubscriber(sub.id) }
}

// Recent returns up to limit events from the durable log in
// reverse-chronological order. level == "" means no level filter.
func (b *Bus) Recent(limit int, level models.EventLevel) ([]models.Event, error) {
	data, err := os.ReadFile(b.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read event log: %w", err)
	}

	lines := splitLines(data)
	out := make([]models.Event, 0, limit)
	for i := len(lines) - 1; i >= 0 && len(out) < limit; i-- {
		var ev models.Event
		if err := json.Unmarshal(lines[i], &ev); err != nil {
			// Skip malformed lines (e.g. a torn tail after a crash).
			continue
		}
		if level != "" && ev.Level != level {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

// Count returns the number of events in the durable log.
func (b *Bus) Count() int64 {
	return countLines(b.path)
}

// Reset removes the durable log. Event IDs keep ascending, so records
// published after a reset are still uniquely identified. Gated demo
// reset only.
func (b *Bus) Reset() error {
	if err := os.Remove(b.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove event log: %w", err)
	}
	return nil
}

// Close drains the queue, persists pending events, and closes every
// subscriber channel. Publish calls after Close fail with ErrClosed.
func (b *Bus) Close() {
	b.closeMu.Lock()
	if b.closed {
		b.closeMu.Unlock()
		return
	}
	b.closed = true
	close(b.queue)
	b.closeMu.Unlock()

	b.wg.Wait()

	b.mu.Lock()
	defer b.mu.Unlock()
	for id, sub := range b.subs {
		close(sub.ch)
		delete(b.subs, id)
	}
}

// run is the single appender goroutine: durable write first, then fan-out.
func (b *Bus) run() {
	defer b.wg.Done()

	for ev := range b.queue {
		if err := b.append(ev); err != nil {
			if !b.sinkBroken.Swap(true) {
				slog.Error("Event sink unwritable, events reach live subscribers only",
					"path", b.path, "error", err)
			}
			// Surface the failure in-memory so live observers see it.
			b.fanOut(models.Event{
				EventID:   ev.EventID,
				Code:      ev.Code,
				Level:     models.LevelCritical,
				Category:  CategorySystem,
				Message:   fmt.Sprintf("event log write failed: %v", err),
				Timestamp: time.Now().UTC(),
			})
		} else if b.sinkBroken.Swap(false) {
			slog.Info("Event sink recovered", "path", b.path)
		}
		b.fanOut(ev)
	}
}

// append writes one JSON line and syncs it. Open-per-write keeps the sink
// resilient to the log file being rotated or removed underneath us.
func (b *Bus) append(ev models.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	f, err := os.OpenFile(b.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return err
	}
	return f.Sync()
}

// fanOut delivers to every subscriber without blocking. A subscriber with
// a full buffer is dropped: its channel is closed and a warning logged.
func (b *Bus) fanOut(ev models.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, sub := range b.subs {
		select {
		case sub.ch <- ev:
		default:
			slog.Warn("Dropping slow event subscriber", "subscriber_id", id)
			close(sub.ch)
			delete(b.subs, id)
		}
	}
}

func (b *Bus) removeSubscriber(id int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sub, ok := b.subs[id]; ok {
		close(sub.ch)
		delete(b.subs, id)
	}
}

// countLines counts non-empty lines so event IDs keep ascending across
// restarts of the same installation.
func countLines(path string) int64 {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	return int64(len(splitLines(data)))
}

// splitLines splits a JSONL payload into its non-empty lines.
func splitLines(data []byte) [][]byte {
	var lines [][]byte
	start := 0
	for i, c := range data {
		if c == '\n' {
			if i > start {
				lines = append(lines, data[start:i])
			}
			start = i + 1
		}
	}
	if start < len(data) {
		lines = append(lines, data[start:])
	}
	return lines
}
