package rebuild

import (
	"log/slog"
	"time"

	"github.com/Benny93/pyxis-go/internal/config"
)

// Signal is emitted by the debounce worker to the goroutine that owns
// the graph.
type Signal int

const (
	// SignalFlush asks the owner to drain the rebuild queue.
	SignalFlush Signal = iota
	// SignalRestart asks the owner to rebuild the workspace from
	// scratch instead of reconciling an oversized invalidation set.
	SignalRestart
)

type messageKind int

const (
	msgProcess messageKind = iota
	msgUpdateDelay
	msgRestart
	msgExit
)

type message struct {
	kind  messageKind
	at    time.Time
	delay time.Duration
}

// Debouncer coalesces bursts of change notifications into single flush
// signals after a quiet period. It runs on its own goroutine and never
// touches the graph; the owner selects on Signals.
type Debouncer struct {
	log  *slog.Logger
	in   chan message
	out  chan Signal
	done chan struct{}
}

// NewDebouncer starts the worker with the given quiet period, clamped
// to [config.MinRefreshDelay, config.MaxRefreshDelay].
func NewDebouncer(log *slog.Logger, delay time.Duration) *Debouncer {
	d := &Debouncer{
		log:  log,
		in:   make(chan message, 64),
		out:  make(chan Signal, 4),
		done: make(chan struct{}),
	}
	go d.run(clampDelay(delay))
	return d
}

// Notify records a change observed at the given instant. A flush fires
// once the quiet period has passed since the newest notification.
func (d *Debouncer) Notify(at time.Time) {
	d.send(message{kind: msgProcess, at: at})
}

// SetDelay changes the quiet period for subsequent notifications,
// clamped like the constructor's.
func (d *Debouncer) SetDelay(delay time.Duration) {
	d.send(message{kind: msgUpdateDelay, delay: delay})
}

// RequestRestart switches the worker into restart mode: it emits
// SignalRestart once and suppresses further flushes.
func (d *Debouncer) RequestRestart() {
	d.send(message{kind: msgRestart})
}

// Close stops the worker. Signals already emitted stay readable.
func (d *Debouncer) Close() {
	d.send(message{kind: msgExit})
}

// Signals is the channel flush and restart signals arrive on.
func (d *Debouncer) Signals() <-chan Signal {
	return d.out
}

func (d *Debouncer) send(m message) {
	select {
	case d.in <- m:
	case <-d.done:
	}
}

func (d *Debouncer) run(delay time.Duration) {
	defer close(d.done)

	timer := time.NewTimer(delay)
	defer timer.Stop()

	var pendingFlush bool
	var restartAsked, restartSent bool
	for {
		select {
		case msg := <-d.in:
			switch msg.kind {
			case msgProcess:
				pendingFlush = true
				resetTimer(timer, time.Until(msg.at.Add(delay)))
			case msgUpdateDelay:
				delay = clampDelay(msg.delay)
				resetTimer(timer, delay)
			case msgRestart:
				restartAsked = true
				resetTimer(timer, 0)
			case msgExit:
				return
			}
		case <-timer.C:
			if restartAsked {
				if !restartSent && d.emit(SignalRestart) {
					restartSent = true
					d.log.Warn("too many pending changes, requesting workspace restart")
				}
				if !restartSent {
					resetTimer(timer, delay)
				}
				continue
			}
			if pendingFlush {
				if d.emit(SignalFlush) {
					pendingFlush = false
				} else {
					resetTimer(timer, delay)
				}
			}
		}
	}
}

// emit never blocks: when the owner is behind, a signal is already
// waiting and the queue drains wholesale, so dropping a flush loses
// nothing. Restarts are retried by the caller until delivered.
func (d *Debouncer) emit(s Signal) bool {
	select {
	case d.out <- s:
		return true
	default:
		return false
	}
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	if d < 0 {
		d = 0
	}
	t.Reset(d)
}

func clampDelay(d time.Duration) time.Duration {
	if d < config.MinRefreshDelay {
		return config.MinRefreshDelay
	}
	if d > config.MaxRefreshDelay {
		return config.MaxRefreshDelay
	}
	return d
}
