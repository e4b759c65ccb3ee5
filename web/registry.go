package web

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nasermirzaei89/commentbox/dom"
	"github.com/nasermirzaei89/commentbox/widget"
	"golang.org/x/net/html"
)

const (
	DefaultIdleTimeout = 30 * time.Minute
	DefaultMaxWidgets  = 10_000
)

// mountedWidget is a widget instance living in its own document, owned by
// one subject.
type mountedWidget struct {
	// mu serializes requests against the same widget.
	mu        sync.Mutex
	id        string
	subject   string
	objectID  string
	doc       *dom.Document
	container *html.Node
	instance  *widget.Instance
	lastSeen  time.Time
}

func (mw *mountedWidget) markup() (string, error) {
	markup, err := mw.doc.InnerHTML(mw.container)
	if err != nil {
		return "", fmt.Errorf("failed to render widget %s: %w", mw.id, err)
	}

	return markup, nil
}

type WidgetNotFoundError struct {
	ID string
}

func (err WidgetNotFoundError) Error() string {
	return fmt.Sprintf("widget with id %q not found", err.ID)
}

// Registry keeps the server-side widgets of open pages and destroys the ones
// nobody touched for IdleTimeout.
type Registry struct {
	mu          sync.Mutex
	widgets     map[string]*mountedWidget
	idleTimeout time.Duration
	maxWidgets  int
	now         func() time.Time
}

func NewRegistry(idleTimeout time.Duration, maxWidgets int) *Registry {
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}

	if maxWidgets <= 0 {
		maxWidgets = DefaultMaxWidgets
	}

	return &Registry{
		widgets:     make(map[string]*mountedWidget),
		idleTimeout: idleTimeout,
		maxWidgets:  maxWidgets,
		now:         time.Now,
	}
}

// Mount creates a document and a widget inside it. build receives the
// document and container and fills in the rest of the options.
func (reg *Registry) Mount(
	ctx context.Context,
	subject, objectID string,
	build func(doc *dom.Document, container *html.Node) widget.Options,
) (*mountedWidget, error) {
	doc := dom.NewDocument()

	container, err := doc.Mount(doc.Root(), `<div class="commentbox"></div>`)
	if err != nil {
		return nil, fmt.Errorf("failed to mount container: %w", err)
	}

	instance, err := widget.New(ctx, build(doc, container))
	if err != nil {
		return nil, fmt.Errorf("failed to create widget: %w", err)
	}

	mw := &mountedWidget{
		id:        uuid.NewString(),
		subject:   subject,
		objectID:  objectID,
		doc:       doc,
		container: container,
		instance:  instance,
		lastSeen:  reg.now(),
	}

	reg.mu.Lock()
	reg.widgets[mw.id] = mw
	evicted := reg.evictOverflowLocked()
	reg.mu.Unlock()

	for _, old := range evicted {
		old.instance.Destroy()
	}

	return mw, nil
}

// evictOverflowLocked removes the least recently used widgets above maxWidgets.
func (reg *Registry) evictOverflowLocked() []*mountedWidget {
	evicted := make([]*mountedWidget, 0)

	for len(reg.widgets) > reg.maxWidgets {
		var oldest *mountedWidget

		for _, mw := range reg.widgets {
			if oldest == nil || mw.lastSeen.Before(oldest.lastSeen) {
				oldest = mw
			}
		}

		delete(reg.widgets, oldest.id)
		evicted = append(evicted, oldest)
	}

	return evicted
}

// Get returns the widget and marks it as used.
func (reg *Registry) Get(id string) (*mountedWidget, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	mw, ok := reg.widgets[id]
	if !ok {
		return nil, &WidgetNotFoundError{ID: id}
	}

	mw.lastSeen = reg.now()

	return mw, nil
}

func (reg *Registry) Len() int {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	return len(reg.widgets)
}

// Sweep destroys every widget idle for longer than the idle timeout.
func (reg *Registry) Sweep(ctx context.Context) int {
	deadline := reg.now().Add(-reg.idleTimeout)

	reg.mu.Lock()

	idle := make([]*mountedWidget, 0)

	for id, mw := range reg.widgets {
		if mw.lastSeen.Before(deadline) {
			delete(reg.widgets, id)
			idle = append(idle, mw)
		}
	}

	reg.mu.Unlock()

	for _, mw := range idle {
		mw.instance.Destroy()
	}

	if len(idle) > 0 {
		slog.DebugContext(ctx, "destroyed idle widgets", "count", len(idle))
	}

	return len(idle)
}

// RunJanitor sweeps every interval until ctx is done.
func (reg *Registry) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reg.Sweep(ctx)
		}
	}
}

// Close destroys every widget.
func (reg *Registry) Close() {
	reg.mu.Lock()
	widgets := reg.widgets
	reg.widgets = make(map[string]*mountedWidget)
	reg.mu.Unlock()

	for _, mw := range widgets {
		mw.instance.Destroy()
	}
}
