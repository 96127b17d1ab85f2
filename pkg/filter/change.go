package filter

import "strings"

// A ChangeReason says what about a node's output has changed
type ChangeReason uint

const(
	ChangePixeldata  ChangeReason = 1 << iota // pixel values differ
	ChangeDimensions                          // width/height (and so geometry) differ
	ChangeMetadata                            // output profile or other metadata differ

	ChangeNothing ChangeReason = 0
	ChangeAll     = ChangePixeldata | ChangeDimensions | ChangeMetadata
)

func (r ChangeReason)Has(other ChangeReason) bool { return r & other != 0 }

func (r ChangeReason)String() string {
	if r == ChangeNothing {
		return "nothing"
	}
	parts := []string{}
	if r.Has(ChangePixeldata)  { parts = append(parts, "pixeldata") }
	if r.Has(ChangeDimensions) { parts = append(parts, "dimensions") }
	if r.Has(ChangeMetadata)   { parts = append(parts, "metadata") }
	return strings.Join(parts, "|")
}

// A ChangeEvent is what a node emits to its downstream listeners
type ChangeEvent struct {
	Source Node
	Reason ChangeReason
}

// A Listener hears about changes in the node it is attached to. Every
// Node is a Listener of its previous node; other things (caches, UIs,
// tests) can listen too.
type Listener interface {
	PreviousChanged(ev ChangeEvent)
}
