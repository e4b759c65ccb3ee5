// Package dom is a minimal server-side element tree with scoped event
// delegation, built on golang.org/x/net/html.
package dom

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// NodeAttr names the attribute that carries the document-unique id of every element.
const NodeAttr = "data-node"

// Selector matches an element by class and/or attribute. Empty fields match anything.
// An Attr with an empty Value only requires the attribute to be present.
type Selector struct {
	Class string
	Attr  string
	Value string
}

func ByClass(class string) Selector {
	return Selector{Class: class}
}

func (s Selector) With(attr, value string) Selector {
	s.Attr = attr
	s.Value = value

	return s
}

// String renders s as a CSS selector. The empty selector is "*".
func (s Selector) String() string {
	var sb strings.Builder

	if s.Class != "" {
		sb.WriteString("." + cssIdent(s.Class))
	}

	if s.Attr != "" {
		if s.Value == "" {
			fmt.Fprintf(&sb, "[%s]", cssIdent(s.Attr))
		} else {
			fmt.Fprintf(&sb, "[%s=%s]", cssIdent(s.Attr), cssString(s.Value))
		}
	}

	if sb.Len() == 0 {
		return "*"
	}

	return sb.String()
}

func cssIdent(name string) string {
	var sb strings.Builder

	for i, r := range name {
		switch {
		case r == '-' || r == '_' || r >= 0x80,
			r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
			sb.WriteRune(r)
		case r >= '0' && r <= '9' && i > 0:
			sb.WriteRune(r)
		default:
			fmt.Fprintf(&sb, "\\%x ", r)
		}
	}

	return sb.String()
}

func cssString(value string) string {
	var sb strings.Builder

	sb.WriteByte('"')

	for _, r := range value {
		switch {
		case r == '"' || r == '\\':
			sb.WriteByte('\\')
			sb.WriteRune(r)
		case r < 0x20 || r == 0x7f:
			fmt.Fprintf(&sb, "\\%x ", r)
		default:
			sb.WriteRune(r)
		}
	}

	sb.WriteByte('"')

	return sb.String()
}

type matchNothing struct{}

func (matchNothing) Match(*html.Node) bool { return false }

var compiledSelectors sync.Map // string -> cascadia.Matcher

// compile returns the matcher for s. A selector that does not parse matches nothing.
func (s Selector) compile() cascadia.Matcher {
	key := s.String()

	if m, ok := compiledSelectors.Load(key); ok {
		return m.(cascadia.Matcher)
	}

	var m cascadia.Matcher = matchNothing{}

	sel, err := cascadia.Parse(key)
	if err != nil {
		slog.Warn("invalid selector", "selector", key, "error", err)
	} else {
		m = sel
	}

	compiledSelectors.Store(key, m)

	return m
}

// Event is a user interaction on Target. Values carries form field values
// submitted along with it, such as the text of a composer.
type Event struct {
	Type   string
	Target *html.Node
	Values map[string]string
}

func (e Event) Value(name string) string {
	return e.Values[name]
}

// Handler receives the event and the element that matched the delegated selector.
type Handler func(ctx context.Context, ev Event, matched *html.Node)

type listener struct {
	id        uint64
	scope     *html.Node
	eventType string
	selector  Selector
	handler   Handler
}

// Document owns an element tree. All methods are safe for concurrent use;
// handlers run without the document lock held so they may mutate the tree.
type Document struct {
	mu         sync.Mutex
	root       *html.Node
	nextNodeID uint64
	nextListen uint64
	listeners  []listener
	scrolled   *html.Node
}

func NewDocument() *Document {
	d := &Document{}

	d.root = &html.Node{
		Type:     html.ElementNode,
		Data:     "body",
		DataAtom: atom.Body,
	}
	d.assignIDs(d.root)

	return d
}

func (d *Document) Root() *html.Node {
	return d.root
}

// assignIDs must be called with mu held.
func (d *Document) assignIDs(n *html.Node) {
	if n.Type == html.ElementNode {
		if _, ok := getAttr(n, NodeAttr); !ok {
			d.nextNodeID++
			setAttr(n, NodeAttr, "n"+strconv.FormatUint(d.nextNodeID, 10))
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		d.assignIDs(c)
	}
}

func parse(markup string) ([]*html.Node, error) {
	body := &html.Node{
		Type:     html.ElementNode,
		Data:     "body",
		DataAtom: atom.Body,
	}

	nodes, err := html.ParseFragment(strings.NewReader(markup), body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse markup: %w", err)
	}

	return nodes, nil
}

// Mount parses markup, appends it to parent and returns the first element created.
func (d *Document) Mount(parent *html.Node, markup string) (*html.Node, error) {
	nodes, err := parse(markup)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	var first *html.Node

	for _, n := range nodes {
		d.assignIDs(n)
		parent.AppendChild(n)

		if first == nil && n.Type == html.ElementNode {
			first = n
		}
	}

	if first == nil {
		return nil, ErrNoElement
	}

	return first, nil
}

// SetInnerHTML replaces the children of el with the parsed markup.
func (d *Document) SetInnerHTML(el *html.Node, markup string) error {
	nodes, err := parse(markup)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	removeChildren(el)

	for _, n := range nodes {
		d.assignIDs(n)
		el.AppendChild(n)
	}

	return nil
}

// SetText replaces the children of el with a single text node.
func (d *Document) SetText(el *html.Node, text string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	removeChildren(el)
	el.AppendChild(&html.Node{Type: html.TextNode, Data: text})
}

// Empty removes every child of el.
func (d *Document) Empty(el *html.Node) {
	d.mu.Lock()
	defer d.mu.Unlock()

	removeChildren(el)
}

func removeChildren(el *html.Node) {
	for c := el.FirstChild; c != nil; c = el.FirstChild {
		el.RemoveChild(c)
	}
}

func (d *Document) Show(el *html.Node) {
	d.mu.Lock()
	defer d.mu.Unlock()

	removeAttr(el, "hidden")
}

func (d *Document) Hide(el *html.Node) {
	d.mu.Lock()
	defer d.mu.Unlock()

	setAttr(el, "hidden", "")
}

func (d *Document) IsHidden(el *html.Node) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, ok := getAttr(el, "hidden")

	return ok
}

func (d *Document) AddClass(el *html.Node, class string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if hasClass(el, class) {
		return
	}

	current, _ := getAttr(el, "class")
	setAttr(el, "class", strings.TrimSpace(current+" "+class))
}

func (d *Document) HasClass(el *html.Node, class string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	return hasClass(el, class)
}

func (d *Document) Attr(el *html.Node, name string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	return getAttr(el, name)
}

func (d *Document) SetAttr(el *html.Node, name, value string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	setAttr(el, name, value)
}

// ID returns the data-node id of el.
func (d *Document) ID(el *html.Node) string {
	id, _ := d.Attr(el, NodeAttr)

	return id
}

// ScrollIntoView records el as the element the viewer should scroll to.
func (d *Document) ScrollIntoView(el *html.Node) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.scrolled = el
}

// TakeScroll returns the element recorded by ScrollIntoView and clears it.
func (d *Document) TakeScroll() *html.Node {
	d.mu.Lock()
	defer d.mu.Unlock()

	el := d.scrolled
	d.scrolled = nil

	return el
}

// Query returns the first element under scope, scope excluded, matching sel.
func (d *Document) Query(scope *html.Node, sel Selector) *html.Node {
	d.mu.Lock()
	defer d.mu.Unlock()

	var found *html.Node

	walk(scope, func(n *html.Node) bool {
		if n != scope && matches(n, sel) {
			found = n

			return false
		}

		return true
	})

	return found
}

// QueryAll returns every element under scope, scope excluded, matching sel in document order.
func (d *Document) QueryAll(scope *html.Node, sel Selector) []*html.Node {
	d.mu.Lock()
	defer d.mu.Unlock()

	found := make([]*html.Node, 0)

	walk(scope, func(n *html.Node) bool {
		if n != scope && matches(n, sel) {
			found = append(found, n)
		}

		return true
	})

	return found
}

// NodeByID finds the element carrying the given data-node id.
func (d *Document) NodeByID(id string) *html.Node {
	return d.Query(d.root, Selector{Attr: NodeAttr, Value: id})
}

// Closest returns el or its nearest ancestor matching sel, or nil.
func (d *Document) Closest(el *html.Node, sel Selector) *html.Node {
	d.mu.Lock()
	defer d.mu.Unlock()

	return closest(el, sel, nil)
}

// Text returns the concatenated text content of el.
func (d *Document) Text(el *html.Node) string {
	d.mu.Lock()
	defer d.mu.Unlock()

	var sb strings.Builder

	walk(el, func(n *html.Node) bool {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}

		return true
	})

	return sb.String()
}

// Render writes el and its subtree as HTML.
func (d *Document) Render(w io.Writer, el *html.Node) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	err := html.Render(w, el)
	if err != nil {
		return fmt.Errorf("failed to render node: %w", err)
	}

	return nil
}

// InnerHTML renders the children of el.
func (d *Document) InnerHTML(el *html.Node) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var buf bytes.Buffer

	for c := el.FirstChild; c != nil; c = c.NextSibling {
		err := html.Render(&buf, c)
		if err != nil {
			return "", fmt.Errorf("failed to render node: %w", err)
		}
	}

	return buf.String(), nil
}

// Delegate registers handler for events of eventType whose target lies inside
// scope and has an ancestor-or-self, still inside scope, matching sel. The
// returned function removes the registration.
func (d *Document) Delegate(scope *html.Node, eventType string, sel Selector, handler Handler) func() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.nextListen++
	id := d.nextListen

	d.listeners = append(d.listeners, listener{
		id:        id,
		scope:     scope,
		eventType: eventType,
		selector:  sel,
		handler:   handler,
	})

	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()

		d.listeners = slices.DeleteFunc(d.listeners, func(l listener) bool {
			return l.id == id
		})
	}
}

// ListenerCount reports how many delegated listeners are registered.
func (d *Document) ListenerCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return len(d.listeners)
}

// Dispatch delivers ev to every matching delegated listener in registration
// order and reports how many handled it.
func (d *Document) Dispatch(ctx context.Context, ev Event) (int, error) {
	if ev.Target == nil {
		return 0, ErrNoTarget
	}

	type call struct {
		handler Handler
		matched *html.Node
	}

	d.mu.Lock()

	calls := make([]call, 0)

	for _, l := range d.listeners {
		if l.eventType != ev.Type || !contains(l.scope, ev.Target) {
			continue
		}

		matched := closest(ev.Target, l.selector, l.scope)
		if matched == nil {
			continue
		}

		calls = append(calls, call{handler: l.handler, matched: matched})
	}

	d.mu.Unlock()

	for _, c := range calls {
		c.handler(ctx, ev, c.matched)
	}

	return len(calls), nil
}

func walk(n *html.Node, visit func(*html.Node) bool) bool {
	if n.Type == html.ElementNode || n.Type == html.TextNode {
		if !visit(n) {
			return false
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if !walk(c, visit) {
			return false
		}
	}

	return true
}

func contains(scope, n *html.Node) bool {
	for p := n; p != nil; p = p.Parent {
		if p == scope {
			return true
		}
	}

	return false
}

// closest walks from n up to stop, inclusive. A nil stop walks to the top.
func closest(n *html.Node, sel Selector, stop *html.Node) *html.Node {
	for p := n; p != nil; p = p.Parent {
		if matches(p, sel) {
			return p
		}

		if p == stop {
			break
		}
	}

	return nil
}

func matches(n *html.Node, sel Selector) bool {
	if n.Type != html.ElementNode {
		return false
	}

	return sel.compile().Match(n)
}

func hasClass(n *html.Node, class string) bool {
	value, ok := getAttr(n, "class")
	if !ok {
		return false
	}

	return slices.Contains(strings.Fields(value), class)
}

func getAttr(n *html.Node, name string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == name {
			return a.Val, true
		}
	}

	return "", false
}

func setAttr(n *html.Node, name, value string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == name {
			n.Attr[i].Val = value

			return
		}
	}

	n.Attr = append(n.Attr, html.Attribute{Key: name, Val: value})
}

func removeAttr(n *html.Node, name string) {
	n.Attr = slices.DeleteFunc(n.Attr, func(a html.Attribute) bool {
		return a.Namespace == "" && a.Key == name
	})
}
