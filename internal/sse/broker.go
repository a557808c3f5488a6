// Package sse streams watch activity to browsers as Server-Sent Events.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/starford/nbhugo/internal/watch"
)

// Event represents an SSE event to broadcast. A non-empty ID is sent as the
// event id.
type Event struct {
	ID   string      `json:"-"`
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// keepAlive is how often an idle stream gets a comment line so proxies keep
// the connection open.
const keepAlive = 30 * time.Second

// ActionData is the payload of notebook.* events.
type ActionData struct {
	ID      string   `json:"id"`
	Path    string   `json:"path"`
	Outputs []string `json:"outputs,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// Broker manages SSE client connections and broadcasts events.
//
// A single goroutine owns the client set and the site.updated throttle
// timestamp; public methods talk to it over channels.
type Broker struct {
	siteMin time.Duration

	subscribeCh   chan chan []byte
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	reportCh      chan watch.Report
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

var _ watch.Observer = (*Broker)(nil)

// NewBroker creates a broker that emits at most one site.updated event per
// siteThrottle.
func NewBroker(siteThrottle time.Duration) *Broker {
	if siteThrottle <= 0 {
		siteThrottle = 2 * time.Second
	}

	b := &Broker{
		siteMin:       siteThrottle,
		subscribeCh:   make(chan chan []byte),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		reportCh:      make(chan watch.Report, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]struct{})
	var lastSite time.Time

	broadcast := func(event Event) {
		payload, err := json.Marshal(event.Data)
		if err != nil {
			return
		}
		var msg strings.Builder
		if event.ID != "" {
			fmt.Fprintf(&msg, "id: %s\n", event.ID)
		}
		fmt.Fprintf(&msg, "event: %s\ndata: %s\n\n", event.Type, payload)
		raw := []byte(msg.String())

		for ch := range clients {
			select {
			case ch <- raw:
			default:
				// Client buffer full; skip to avoid blocking broker loop.
			}
		}
	}

	for {
		select {
		case <-b.stopCh:
			for ch := range clients {
				close(ch)
			}
			return

		case ch := <-b.subscribeCh:
			clients[ch] = struct{}{}

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case event := <-b.publishCh:
			broadcast(event)

		case rep := <-b.reportCh:
			data := ActionData{ID: rep.ID, Path: rep.Path, Outputs: rep.Outputs}
			if rep.Err != nil {
				data.Error = rep.Err.Error()
				broadcast(Event{ID: rep.ID, Type: "notebook.failed", Data: data})
				continue
			}
			broadcast(Event{ID: rep.ID, Type: EventType(rep.Action), Data: data})

			if rep.Action != watch.ActionRender && rep.Action != watch.ActionDelete {
				continue
			}
			now := time.Now()
			if now.Sub(lastSite) >= b.siteMin {
				lastSite = now
				broadcast(Event{Type: "site.updated", Data: map[string]string{}})
			}

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close gracefully stops broker loop and closes all client channels.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a new client and returns its channel.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- ch:
	case <-b.stopped:
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
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}

	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish sends an event to all connected clients.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	}
}

// Observe publishes a coordinator report as a notebook.* event. Renders and
// deletions are followed by a throttled site.updated event.
func (b *Broker) Observe(rep watch.Report) {
	if b.closed.Load() {
		return
	}
	select {
	case b.reportCh <- rep:
	case <-b.stopped:
	}
}

// EventType returns the SSE event name for a coordinator action.
func EventType(a watch.Action) string {
	switch a {
	case watch.ActionStamp:
		return "notebook.stamped"
	case watch.ActionRename:
		return "notebook.renamed"
	case watch.ActionRender:
		return "notebook.rendered"
	case watch.ActionDelete:
		return "notebook.deleted"
	}
	return "notebook." + string(a)
}

// ServeHTTP is the SSE endpoint handler (GET /api/events). Idle streams get a
// comment line every keepAlive.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("retry: 3000\n\n"))
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	ping := time.NewTicker(keepAlive)
	defer ping.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ping.C:
			_, _ = w.Write([]byte(": ping\n\n"))
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
