// Package broker implements a typed, request/response,
// broadcast-capable message bus between the host process and one or
// more UI surfaces ("panels"), with deduplicating panel identity and
// per-request correlation ids.
package broker

import (
	"context"
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/gitsocial-org/gitsocial/internal/giterr"
	"github.com/gitsocial-org/gitsocial/internal/gitref"
)

// Inbound is one request arriving from a panel.
type Inbound struct {
	Type string
	ID   string // request correlation id, optional
	Data map[string]any
}

// Outbound is one message delivered to a panel.
type Outbound struct {
	Type      string
	Data      any
	RequestID string // omitted (zero value) when the inbound carried none
}

// Panel is a single UI surface the broker can address.
type Panel struct {
	ID   string
	Kind string
	Send func(Outbound)
}

// Handler processes one inbound message type and returns the data for
// its response, or an error that the broker turns into a {type:
// "error", data: {message, code}} reply.
type Handler func(ctx context.Context, panel *Panel, msg Inbound) (any, error)

// Response names a reply explicitly for operations whose response type
// differs from the request type (social.getPosts → posts,
// social.createPost → postCreated). A Handler returning a Response has
// its Type used verbatim; any other return value falls back to the
// request type with a "Result" suffix.
type Response struct {
	Type string
	Data any
}

// specialTypes are handled by the broker itself and never dispatched
// to a registered Handler.
var specialTypes = map[string]bool{
	"ready":            true,
	"openView":         true,
	"updatePanelIcon":  true,
	"updatePanelTitle": true,
	"closePanel":       true,
}

// Broker is a process-wide handler registry plus panel map. Every
// field is protected by mu: handlers can be dispatched from multiple
// goroutines, so the broker itself stays safe for concurrent access.
type Broker struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	panels   map[string]*Panel
	sidebar  *Panel
	active   string
	Logger   *log.Logger
}

// New returns an empty Broker.
func New(logger *log.Logger) *Broker {
	if logger == nil {
		logger = log.Default()
	}
	return &Broker{
		handlers: make(map[string]Handler),
		panels:   make(map[string]*Panel),
		Logger:   logger,
	}
}

// RegisterHandler installs h for msgType. Re-registration replaces the
// previous handler; registration order is immaterial.
func (b *Broker) RegisterHandler(msgType string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[msgType] = h
}

// RegisterSidebar records the singleton sidebar panel, included in
// every PostToAll broadcast alongside the active panel set.
func (b *Broker) RegisterSidebar(p *Panel) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sidebar = p
}

// PanelID derives the deduplicating panel id for a view kind and its
// normalized params: viewPost/viewList/repository panels key on the
// normalized URL or list id so re-opening the same target reuses the
// existing panel; every other kind keys on the kind name alone.
func PanelID(kind, param string) string {
	switch kind {
	case "viewPost", "repository":
		return kind + ":" + gitref.NormalizeURL(param)
	case "viewList":
		return kind + ":" + param // list ids are already stable, no URL normalization needed
	default:
		return kind
	}
}

// AddPanel registers an externally-constructed panel (e.g. a remote
// WebSocket surface) under its own id, making it a broadcast target
// until DisposePanel removes it.
func (b *Broker) AddPanel(p *Panel) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.panels[p.ID] = p
}

// OpenView registers (or reuses) the panel for kind/param and returns
// it, creating it via newPanel only on first open.
func (b *Broker) OpenView(kind, param string, newPanel func(id string) *Panel) *Panel {
	id := PanelID(kind, param)
	b.mu.Lock()
	defer b.mu.Unlock()
	if existing, ok := b.panels[id]; ok {
		return existing
	}
	p := newPanel(id)
	b.panels[id] = p
	return p
}

// SingletonPanel allocates a uuid-identified panel for kinds that are
// not keyed by a normalized URL or list id (e.g. "sidebar",
// "settings").
func SingletonPanel(kind string, newPanel func(id string) *Panel) *Panel {
	return newPanel(kind + ":" + uuid.NewString())
}

// Dispatch routes one inbound message. Special message types are
// handled by the broker itself and never reach a registered Handler.
func (b *Broker) Dispatch(ctx context.Context, panel *Panel, msg Inbound) {
	if specialTypes[msg.Type] {
		b.handleSpecial(panel, msg)
		return
	}

	b.mu.RLock()
	h, ok := b.handlers[msg.Type]
	b.mu.RUnlock()
	if !ok {
		b.Logger.Printf("broker: no handler registered for message type %q", msg.Type)
		b.PostMessage(panel, "error", map[string]any{"message": "unknown message type: " + msg.Type}, msg.ID)
		return
	}

	data, err := h(ctx, panel, msg)
	if err != nil {
		b.PostMessage(panel, "error", errorPayload(err), msg.ID)
		return
	}
	if resp, ok := data.(Response); ok {
		b.PostMessage(panel, resp.Type, resp.Data, msg.ID)
		return
	}
	b.PostMessage(panel, responseType(msg.Type), data, msg.ID)
}

func (b *Broker) handleSpecial(panel *Panel, msg Inbound) {
	switch msg.Type {
	case "ready":
		// No-op acknowledgment; like every special type, "ready" is
		// never passed to a handler registered via RegisterHandler.
	case "updatePanelIcon", "updatePanelTitle":
		// Purely a UI-layer concern outside this package's scope; the
		// broker only guarantees the message type is never routed to a
		// domain Handler.
	case "closePanel":
		if id, ok := msg.Data["id"].(string); ok {
			b.DisposePanel(id)
		}
	case "openView":
		// Concrete panel construction is caller-supplied (OpenView);
		// the broker-level special-case here only suppresses dispatch
		// to a registered domain Handler.
	}
}

// DisposePanel removes panel id and broadcasts setActivePanel with an
// empty id.
func (b *Broker) DisposePanel(id string) {
	b.mu.Lock()
	delete(b.panels, id)
	if b.active == id {
		b.active = ""
	}
	b.mu.Unlock()
	b.PostToAll("setActivePanel", map[string]any{"id": ""})
}

// SetActivePanel records id as the active panel and broadcasts the
// change.
func (b *Broker) SetActivePanel(id string) {
	b.mu.Lock()
	b.active = id
	b.mu.Unlock()
	b.PostToAll("setActivePanel", map[string]any{"id": id})
}

// PostMessage delivers one outbound message to panel, attaching
// requestID when non-empty.
func (b *Broker) PostMessage(panel *Panel, msgType string, data any, requestID string) {
	if panel == nil || panel.Send == nil {
		return
	}
	panel.Send(Outbound{Type: msgType, Data: data, RequestID: requestID})
}

// PostToAll delivers msg to every active panel and the sidebar, if
// registered.
func (b *Broker) PostToAll(msgType string, data any) {
	b.mu.RLock()
	panels := make([]*Panel, 0, len(b.panels)+1)
	for _, p := range b.panels {
		panels = append(panels, p)
	}
	if b.sidebar != nil {
		panels = append(panels, b.sidebar)
	}
	b.mu.RUnlock()

	for _, p := range panels {
		b.PostMessage(p, msgType, data, "")
	}
}

func responseType(requestType string) string {
	// Fallback for handlers that don't name their response via
	// Response; callers rely on RequestID correlation, not this name.
	return requestType + "Result"
}

func errorPayload(err error) map[string]any {
	payload := map[string]any{"message": err.Error()}
	if ge, ok := err.(*giterr.Error); ok {
		payload["message"] = ge.Message
		payload["code"] = string(ge.Code)
	}
	return payload
}
