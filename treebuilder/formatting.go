package treebuilder

import (
	"sort"
	"strings"

	"github.com/jbowes-oss/htmltree/dom"
	"github.com/jbowes-oss/htmltree/tokenizer"
)

// formattingEntry is one slot in the list of active formatting elements:
// either a scope Marker (inserted at the boundary of a button/cell/caption/
// object so reconstruction never crosses it) or a live Element entry
// pointing at an open inline element plus the token it was created from,
// so the adoption agency can recreate it verbatim.
type formattingEntry struct {
	marker    bool
	name      string
	attrs     []tokenizer.Attr
	node      *dom.Element
	signature string
}

// formattingList is the list of active formatting elements (WHATWG HTML
// §13.2.4.3). It is a named slice type, rather than a bare []formattingEntry
// field, so the Noah's Ark / marker / bookmark operations below read as
// methods on a cohesive component instead of free functions poking at
// TreeBuilder's internals.
type formattingList []formattingEntry

// pushMarker inserts a scope marker at the end of the list.
func (l *formattingList) pushMarker() {
	*l = append(*l, formattingEntry{marker: true})
}

// pushElement appends a live entry for node, deriving its Noah's Ark
// signature from attrs.
func (l *formattingList) pushElement(name string, attrs []tokenizer.Attr, node *dom.Element) {
	a := cloneTokenAttrs(attrs)
	*l = append(*l, formattingEntry{
		name:      name,
		attrs:     a,
		node:      node,
		signature: attrsSignature(a),
	})
}

// clearToLastMarker discards entries from the end of the list up to and
// including the nearest marker (or the whole list, if there is no marker).
func (l *formattingList) clearToLastMarker() {
	s := *l
	for len(s) > 0 {
		entry := s[len(s)-1]
		s = s[:len(s)-1]
		if entry.marker {
			break
		}
	}
	*l = s
}

// lastIndexByName scans back from the end of the list toward the nearest
// marker for an Element entry with the given tag name.
func (l formattingList) lastIndexByName(name string) (int, bool) {
	for i := len(l) - 1; i >= 0; i-- {
		entry := l[i]
		if entry.marker {
			return -1, false
		}
		if entry.name == name {
			return i, true
		}
	}
	return -1, false
}

// lastIndexByNode scans back from the end of the list for the entry
// referencing node, crossing markers (used while walking the open-element
// stack during adoption, where the search must not stop at a marker).
func (l formattingList) lastIndexByNode(node *dom.Element) (int, bool) {
	for i := len(l) - 1; i >= 0; i-- {
		entry := l[i]
		if !entry.marker && entry.node == node {
			return i, true
		}
	}
	return -1, false
}

// noahsArkDuplicate applies the Noah's Ark condition: among entries since
// the nearest marker that share name and attribute signature with a
// candidate about to be pushed, once three or more exist the oldest is
// reported so the caller can drop it before inserting the new one.
func (l formattingList) noahsArkDuplicate(name, signature string) (int, bool) {
	var sameKind []int
	for i, entry := range l {
		if entry.marker {
			sameKind = sameKind[:0]
			continue
		}
		if entry.name == name && entry.signature == signature {
			sameKind = append(sameKind, i)
		}
	}
	if len(sameKind) >= 3 {
		return sameKind[0], true
	}
	return -1, false
}

// removeAt deletes the entry at index, preserving order.
func (l *formattingList) removeAt(index int) {
	s := *l
	if index < 0 || index >= len(s) {
		return
	}
	*l = append(s[:index], s[index+1:]...)
}

// insertAt splices entry into the list at index, clamping to bounds.
func (l *formattingList) insertAt(index int, entry formattingEntry) {
	s := *l
	switch {
	case index < 0:
		index = 0
	case index > len(s):
		index = len(s)
	}
	s = append(s, formattingEntry{})
	copy(s[index+1:], s[index:])
	s[index] = entry
	*l = s
}

func (tb *TreeBuilder) pushFormattingMarker() {
	tb.activeFormatting.pushMarker()
}

func (tb *TreeBuilder) clearActiveFormattingUpToMarker() {
	tb.activeFormatting.clearToLastMarker()
}

func (tb *TreeBuilder) appendActiveFormattingEntry(name string, attrs []tokenizer.Attr, node *dom.Element) {
	tb.activeFormatting.pushElement(name, attrs, node)
}

func (tb *TreeBuilder) findActiveFormattingIndex(name string) (int, bool) {
	return tb.activeFormatting.lastIndexByName(name)
}

func (tb *TreeBuilder) findActiveFormattingIndexByNode(node *dom.Element) (int, bool) {
	return tb.activeFormatting.lastIndexByNode(node)
}

func (tb *TreeBuilder) findActiveFormattingDuplicate(name string, attrs []tokenizer.Attr) (int, bool) {
	return tb.activeFormatting.noahsArkDuplicate(name, attrsSignature(attrs))
}

func (tb *TreeBuilder) hasActiveFormattingEntry(name string) bool {
	_, ok := tb.activeFormatting.lastIndexByName(name)
	return ok
}

func (tb *TreeBuilder) removeFormattingEntry(index int) {
	tb.activeFormatting.removeAt(index)
}

func (tb *TreeBuilder) removeLastActiveFormattingByName(name string) {
	if i, ok := tb.activeFormatting.lastIndexByName(name); ok {
		tb.activeFormatting.removeAt(i)
	}
}

func (tb *TreeBuilder) removeLastOpenElementByName(name string) {
	for i := len(tb.openElements) - 1; i >= 0; i-- {
		if tb.openElements[i].TagName == name {
			tb.openElements = append(tb.openElements[:i], tb.openElements[i+1:]...)
			return
		}
	}
}

// reconstructActiveFormattingElements implements WHATWG HTML §13.2.5.2.1: if
// inline markup from before a block boundary is still pending, re-open it
// (in original order, with original attributes) onto the insertion point.
func (tb *TreeBuilder) reconstructActiveFormattingElements() {
	if len(tb.activeFormatting) == 0 {
		return
	}

	last := tb.activeFormatting[len(tb.activeFormatting)-1]
	if last.marker || tb.elementInOpenElements(last.node) {
		return
	}

	// Walk backward to the entry just after the nearest marker (or entry 0)
	// that is already open; everything from there forward needs reopening.
	start := len(tb.activeFormatting) - 1
	for start > 0 {
		start--
		entry := tb.activeFormatting[start]
		if entry.marker || tb.elementInOpenElements(entry.node) {
			start++
			break
		}
	}

	for i := start; i < len(tb.activeFormatting); i++ {
		entry := tb.activeFormatting[i]
		reopened := tb.insertElement(entry.name, cloneTokenAttrs(entry.attrs))
		tb.activeFormatting[i].node = reopened
	}
}

func (tb *TreeBuilder) elementInOpenElements(node *dom.Element) bool {
	for _, el := range tb.openElements {
		if el == node {
			return true
		}
	}
	return false
}

func cloneTokenAttrs(attrs []tokenizer.Attr) []tokenizer.Attr {
	if len(attrs) == 0 {
		return nil
	}
	out := make([]tokenizer.Attr, len(attrs))
	copy(out, attrs)
	return out
}

// attrsSignature builds the canonical "name=value\0..." string the Noah's
// Ark condition compares by value: namespaced attributes (xlink:href and
// friends) are excluded, matching the plain-name comparison the algorithm
// specifies, and names are sorted so insertion order doesn't matter.
func attrsSignature(attrs []tokenizer.Attr) string {
	if len(attrs) == 0 {
		return ""
	}
	byName := make(map[string]string, len(attrs))
	names := make([]string, 0, len(attrs))
	for _, attr := range attrs {
		if attr.Namespace != "" {
			continue
		}
		names = append(names, attr.Name)
		byName[attr.Name] = attr.Value
	}
	sort.Strings(names)

	var sig strings.Builder
	for _, name := range names {
		sig.WriteString(name)
		sig.WriteByte('=')
		sig.WriteString(byName[name])
		sig.WriteByte(0)
	}
	return sig.String()
}
