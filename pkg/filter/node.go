// Package filter is the pull-based processing chain. A consumer asks
// the last node for an image; each node asks its previous node, does
// its thing, and hands back a response. Changes flow the other way: a
// node whose output would differ tells its listeners, which drop
// whatever they had cached and tell their own listeners.
package filter

import(
	"fmt"
	"strings"
	"sync"

	"github.com/abworrall/rawpipe/pkg/ecolor"
)

// NoSize is what Width and Height report when there is no image
const NoSize = -1

// A Node is one stage of the chain. Embed Base to get pass-through
// behaviour for everything you don't override.
type Node interface {
	Listener

	Name() string
	Image(req *Request) *Response
	Width() int
	Height() int
	OutputProfile() *ecolor.Space

	Previous() Node
	SetPrevious(prev Node)
	AddListener(l Listener)
	RemoveListener(l Listener)
}

// Base forwards every call to the previous node. Concrete nodes embed
// it, and call Init from their constructor so that events carry the
// outer node as their source.
type Base struct {
	self      Node
	name      string

	mu        sync.RWMutex
	previous  Node
	listeners []Listener
}

func (b *Base)Init(self Node, name string, prev Node) {
	b.self = self
	b.name = name
	if prev != nil {
		b.SetPrevious(prev)
	}
}

func (b *Base)Name() string { return b.name }

func (b *Base)Previous() Node {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.previous
}

// SetPrevious re-links the chain. The node stops listening to the old
// previous, starts listening to the new one, and tells its own
// listeners that everything may have changed.
func (b *Base)SetPrevious(prev Node) {
	b.mu.Lock()
	old := b.previous
	b.previous = prev
	b.mu.Unlock()

	if old != nil {
		old.RemoveListener(b.self)
	}
	if prev != nil {
		prev.AddListener(b.self)
	}
	b.Changed(ChangeAll)
}

func (b *Base)AddListener(l Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, existing := range b.listeners {
		if existing == l {
			return
		}
	}
	b.listeners = append(b.listeners, l)
}

func (b *Base)RemoveListener(l Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, existing := range b.listeners {
		if existing == l {
			b.listeners = append(b.listeners[:i], b.listeners[i+1:]...)
			return
		}
	}
}

// Changed emits an event to every listener. Listeners are called
// synchronously, in no particular order.
func (b *Base)Changed(reason ChangeReason) {
	if reason == ChangeNothing {
		return
	}
	b.mu.RLock()
	listeners := append([]Listener{}, b.listeners...)
	b.mu.RUnlock()

	ev := ChangeEvent{Source: b.self, Reason: reason}
	for _, l := range listeners {
		l.PreviousChanged(ev)
	}
}

// PreviousChanged is the default reaction to upstream changes: nothing
// cached, so just pass the news along.
func (b *Base)PreviousChanged(ev ChangeEvent) {
	b.Changed(ev.Reason)
}

func (b *Base)Image(req *Request) *Response {
	if prev := b.Previous(); prev != nil {
		return prev.Image(req)
	}
	return EmptyResponse(req)
}

func (b *Base)Width() int {
	if prev := b.Previous(); prev != nil {
		return prev.Width()
	}
	return NoSize
}

func (b *Base)Height() int {
	if prev := b.Previous(); prev != nil {
		return prev.Height()
	}
	return NoSize
}

func (b *Base)OutputProfile() *ecolor.Space {
	if prev := b.Previous(); prev != nil {
		return prev.OutputProfile()
	}
	return nil
}

// Describe lists the chain that ends at n, first node first
func Describe(n Node) string {
	names := []string{}
	for ; n != nil; n = n.Previous() {
		names = append([]string{fmt.Sprintf("%s(%dx%d)", n.Name(), n.Width(), n.Height())}, names...)
	}
	return strings.Join(names, " -> ")
}

// Passthrough is a node with no overrides at all; useful as a join
// point in a chain, and in tests.
type Passthrough struct {
	Base
}

func NewPassthrough(prev Node) *Passthrough {
	p := &Passthrough{}
	p.Init(p, "passthrough", prev)
	return p
}
