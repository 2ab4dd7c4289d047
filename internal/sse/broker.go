// Package sse streams graph changes to browser clients as Server-Sent Events.
//
// Every committed transition is sent as document.<kind> with the affected
// path. A graph.updated event follows, at most once per throttle interval,
// to tell clients that a full graph refetch is worthwhile.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"
)

// EventGraphUpdated is the coalesced "refetch the graph" event type.
const EventGraphUpdated = "graph.updated"

const (
	defaultGraphThrottle = 2 * time.Second
	clientBuffer         = 64
	queueSize            = 256
)

// Event is one SSE frame: Type becomes the event line, Data is sent as JSON.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// documentKinds lists the transitions that reach clients.
var documentKinds = map[string]bool{
	"created":  true,
	"modified": true,
	"deleted":  true,
	"demoted":  true,
	"moved":    true,
}

// DocumentEvent builds the document.<kind> event for a transition. dest is
// only included for moves.
func DocumentEvent(kind, path, dest string) Event {
	data := map[string]string{"path": path}
	if dest != "" {
		data["dest_path"] = dest
	}
	return Event{Type: "document." + kind, Data: data}
}

type change struct {
	kind, path, dest string
}

// Broker fans graph change events out to connected clients.
//
// The client set and the time of the last graph.updated event belong to the
// run goroutine; the exported methods only send requests to it.
type Broker struct {
	graphThrottle time.Duration

	joins   chan chan []byte
	leaves  chan chan []byte
	events  chan Event
	changes chan change
	counts  chan chan int

	quit   chan struct{}
	done   chan struct{}
	closed atomic.Bool
}

// NewBroker starts a broker. graph.updated is sent at most once per
// graphThrottle; a non-positive value selects two seconds.
func NewBroker(graphThrottle time.Duration) *Broker {
	if graphThrottle <= 0 {
		graphThrottle = defaultGraphThrottle
	}
	b := &Broker{
		graphThrottle: graphThrottle,
		joins:         make(chan chan []byte),
		leaves:        make(chan chan []byte),
		events:        make(chan Event, queueSize),
		changes:       make(chan change, queueSize),
		counts:        make(chan chan int),
		quit:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	go b.run()
	return b
}

// frame encodes ev in the text/event-stream wire format.
func frame(ev Event) ([]byte, error) {
	payload, err := json.Marshal(ev.Data)
	if err != nil {
		return nil, err
	}
	return []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", ev.Type, payload)), nil
}

func (b *Broker) run() {
	defer close(b.done)

	clients := make(map[chan []byte]struct{})
	var graphSentAt time.Time

	send := func(ev Event) {
		msg, err := frame(ev)
		if err != nil {
			return
		}
		for ch := range clients {
			select {
			case ch <- msg:
			default:
				// Slow client; it misses this frame and catches up on the
				// next graph.updated.
			}
		}
	}

	for {
		select {
		case <-b.quit:
			for ch := range clients {
				close(ch)
			}
			return

		case ch := <-b.joins:
			clients[ch] = struct{}{}

		case ch := <-b.leaves:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case ev := <-b.events:
			send(ev)

		case c := <-b.changes:
			if !documentKinds[c.kind] {
				continue
			}
			send(DocumentEvent(c.kind, c.path, c.dest))
			if now := time.Now(); now.Sub(graphSentAt) >= b.graphThrottle {
				graphSentAt = now
				send(Event{Type: EventGraphUpdated, Data: map[string]string{}})
			}

		case reply := <-b.counts:
			reply <- len(clients)
		}
	}
}

// Close stops the broker and closes every client channel. It is safe to
// call more than once.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.quit)
	}
	<-b.done
}

// Subscribe registers a client. The returned channel is closed when the
// client unsubscribes or the broker stops.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, clientBuffer)
	if b.closed.Load() {
		close(ch)
		return ch
	}
	select {
	case b.joins <- ch:
	case <-b.done:
		close(ch)
	}
	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.leaves <- ch:
	case <-b.done:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}
	reply := make(chan int, 1)
	select {
	case b.counts <- reply:
	case <-b.done:
		return 0
	}
	select {
	case n := <-reply:
		return n
	case <-b.done:
		return 0
	}
}

// Publish sends ev to every client as is.
func (b *Broker) Publish(ev Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.events <- ev:
	case <-b.done:
	}
}

// PublishChange reports a committed graph transition. Kinds other than
// created, modified, deleted, demoted and moved are ignored.
func (b *Broker) PublishChange(kind, path, dest string) {
	if b.closed.Load() {
		return
	}
	select {
	case b.changes <- change{kind: kind, path: path, dest: dest}:
	case <-b.done:
	}
}

// ServeHTTP streams events to one client until it disconnects
// (GET /api/events).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
