// Package bus implements the event bus rscls's router reads from: every
// message arriving from the editor or from rust-analyzer, plus server log
// lines and reload-debounce signals, are funneled through one channel so
// the router can process them strictly in arrival order. Mirrors the
// original rscls's src/event.rs.
package bus

import (
	"sync/atomic"

	"github.com/walteh/rscls/pkg/message"
)

// Version is a monotonically increasing reload generation number. The
// router compares a NeedReload event's Version against the current one to
// drop stale reload signals superseded by a newer edit.
type Version uint64

// Kind tags which variant an Event carries.
type Kind int

const (
	KindClientToServer Kind = iota
	KindServerToClient
	KindServerLog
	KindNeedReload
)

// Event is the single union type flowing through the bus.
type Event struct {
	Kind       Kind
	Message    message.Message // set for KindClientToServer / KindServerToClient
	LogLine    string          // set for KindServerLog
	ReloadedAt Version         // set for KindNeedReload
}

// Bus is a single-producer-many/single-consumer channel of Events plus the
// shared reload-version counter. The channel is bounded, matching the
// original's bounded sync_channel(256): a slow consumer applies backpressure
// to producers rather than growing memory without bound.
type Bus struct {
	events  chan Event
	version *atomic.Uint64
}

const channelCapacity = 256

// New creates an empty bus.
func New() *Bus {
	return &Bus{
		events:  make(chan Event, channelCapacity),
		version: &atomic.Uint64{},
	}
}

// Events returns the channel the router ranges over. Only the router should
// receive from it.
func (b *Bus) Events() <-chan Event {
	return b.events
}

// Close closes the underlying channel; callers must ensure no further Send
// calls are in flight.
func (b *Bus) Close() {
	close(b.events)
}

// SendClientToServer enqueues a message received from the editor, bound for
// rust-analyzer.
func (b *Bus) SendClientToServer(msg message.Message) {
	b.events <- Event{Kind: KindClientToServer, Message: msg}
}

// SendServerToClient enqueues a message received from rust-analyzer, bound
// for the editor.
func (b *Bus) SendServerToClient(msg message.Message) {
	b.events <- Event{Kind: KindServerToClient, Message: msg}
}

// SendServerLog enqueues a line rust-analyzer wrote to its stderr.
func (b *Bus) SendServerLog(line string) {
	b.events <- Event{Kind: KindServerLog, LogLine: line}
}

// CurrentVersion returns the reload version without mutating it.
func (b *Bus) CurrentVersion() Version {
	return Version(b.version.Load())
}

// StartReload bumps the reload version and returns the new value. The
// router calls this each time it hands rust-analyzer a fresh project set
// (the initialize request and each rewritten workspace/configuration
// answer); the cache signals its own changes through MarkNeedReload.
func (b *Bus) StartReload() Version {
	return Version(b.version.Add(1))
}

// MarkNeedReload enqueues a NeedReload event carrying the version at the
// time the need was detected. It is a non-blocking best-effort send: if the
// bus is full, the signal is simply dropped (like the other Send methods,
// it panics if the bus has been closed), matching the
// original's `.ok()` discard — a dropped debounce signal is harmless because
// the next edit will mark again.
func (b *Bus) MarkNeedReload() {
	select {
	case b.events <- Event{Kind: KindNeedReload, ReloadedAt: b.CurrentVersion()}:
	default:
	}
}
