package treebuilder

import (
	"github.com/jbowes-oss/htmltree/dom"
	"github.com/jbowes-oss/htmltree/internal/constants"
)

// adoptionAgency runs the adoption agency algorithm (WHATWG HTML
// §13.2.5.2.5) for the inline end tag named subject. This is the piece of
// the tree builder that repairs misnested formatting markup like
// `<b>1<i>2</b>3</i>` by reopening formatting elements around whatever
// "special" block content got in the way.
//
// The outer loop runs at most 8 times; each outer iteration's inner loop
// (walking from the furthest block back up to the formatting element) runs
// at most 3 times before it starts discarding entries outright. Both caps
// come directly from the spec and bound the algorithm's cost on adversarial
// input.
func (tb *TreeBuilder) adoptionAgency(subject string) {
	if tb.currentElementIsUnlistedSubject(subject) {
		tb.popUntil(subject)
		return
	}

	for outer := 0; outer < 8; outer++ {
		step, done := tb.adoptionFindFormattingElement(subject)
		if done {
			return
		}

		furthestBlock, ok := step.findFurthestBlock()
		if !ok {
			tb.collapseToFormattingElement(step)
			return
		}

		bookmark := step.formattingIndex + 1
		lastNode := tb.adoptionInnerLoop(step, furthestBlock, &bookmark)

		tb.reparentLastNode(lastNode, step.commonAncestor())
		tb.replaceFormattingElement(step, furthestBlock, bookmark)
	}
	tb.logger.Warn("adoption agency gave up after iteration limit", "subject", subject)
}

// currentElementIsUnlistedSubject is adoption agency step 1: if the current
// node already matches subject but was never tracked in the active
// formatting list (so there is nothing to reconstruct), the whole algorithm
// degenerates to a plain pop.
func (tb *TreeBuilder) currentElementIsUnlistedSubject(subject string) bool {
	current := tb.currentElement()
	return current != nil && current.TagName == subject && !tb.hasActiveFormattingEntry(subject)
}

// adoptionStep carries the formatting-element lookup shared by one outer
// iteration's later steps.
type adoptionStep struct {
	tb              *TreeBuilder
	formattingIndex int
	openIndex       int
	element         *dom.Element
}

// adoptionFindFormattingElement implements steps 3-6: locate subject's
// newest active-formatting entry, and bail out (done=true) the moment the
// spec says this invocation has nothing left to do — no entry, an entry
// whose element fell off the open stack, or one that is out of scope.
func (tb *TreeBuilder) adoptionFindFormattingElement(subject string) (adoptionStep, bool) {
	formattingIndex, ok := tb.findActiveFormattingIndex(subject)
	if !ok {
		return adoptionStep{}, true
	}
	element := tb.activeFormatting[formattingIndex].node
	if element == nil {
		tb.removeFormattingEntry(formattingIndex)
		return adoptionStep{}, true
	}

	openIndex, onStack := tb.indexOfOpenElement(element)
	if !onStack {
		tb.removeFormattingEntry(formattingIndex)
		return adoptionStep{}, true
	}
	if !tb.hasElementInScope(element.TagName, constants.DefaultScope) {
		return adoptionStep{}, true
	}

	return adoptionStep{tb: tb, formattingIndex: formattingIndex, openIndex: openIndex, element: element}, false
}

// findFurthestBlock is step 7: the first "special" element above the
// formatting element on the open-element stack, scanning outward from it.
func (s adoptionStep) findFurthestBlock() (*dom.Element, bool) {
	for i := s.openIndex + 1; i < len(s.tb.openElements); i++ {
		if isSpecialElement(s.tb.openElements[i]) {
			return s.tb.openElements[i], true
		}
	}
	return nil, false
}

func (s adoptionStep) commonAncestor() *dom.Element {
	return s.tb.openElements[s.openIndex-1]
}

// collapseToFormattingElement implements the no-furthest-block branch of
// step 7: everything from the top of the stack down through the formatting
// element is simply popped, since there is no misnested block to repair.
func (tb *TreeBuilder) collapseToFormattingElement(s adoptionStep) {
	for len(tb.openElements) > 0 {
		if tb.popCurrent() == s.element {
			break
		}
	}
	tb.removeFormattingEntry(s.formattingIndex)
}

// adoptionInnerLoop runs steps 9-10: walking up from just above the
// furthest block to (not including) the formatting element, cloning each
// still-tracked formatting ancestor and relocating the accumulated subtree
// under it. It returns the final "last node" that step 11 reparents into
// the common ancestor.
func (tb *TreeBuilder) adoptionInnerLoop(s adoptionStep, furthestBlock *dom.Element, bookmark *int) *dom.Element {
	node := furthestBlock
	lastNode := furthestBlock

	for round := 0; ; round++ {
		nodeIndex, ok := tb.indexOfOpenElement(node)
		if !ok || nodeIndex == 0 {
			return lastNode
		}
		node = tb.openElements[nodeIndex-1]
		if node == s.element {
			return lastNode
		}

		entryIndex, tracked := tb.findActiveFormattingIndexByNode(node)
		if round >= 3 && tracked {
			tb.removeFormattingEntry(entryIndex)
			if entryIndex < *bookmark {
				*bookmark--
			}
			tracked = false
		}

		if !tracked {
			idx, ok := tb.indexOfOpenElement(node)
			if !ok {
				return lastNode
			}
			tb.removeOpenElementAt(idx)
			if idx < len(tb.openElements) {
				node = tb.openElements[idx]
			}
			continue
		}

		clone := tb.cloneFormattingEntry(entryIndex)
		tb.openElements[tb.mustIndexOfOpenElement(node)] = clone
		node = clone

		if lastNode == furthestBlock {
			*bookmark = entryIndex + 1
		}

		detachFromParent(lastNode)
		node.AppendChild(lastNode)
		lastNode = node
	}
}

// cloneFormattingEntry recreates an element from its active-formatting
// entry's stored token (same tag and attributes) and updates the entry to
// track the replacement, per step 10.4.
func (tb *TreeBuilder) cloneFormattingEntry(entryIndex int) *dom.Element {
	entry := tb.activeFormatting[entryIndex]
	clone := dom.NewElement(entry.name)
	for _, a := range entry.attrs {
		clone.SetAttr(a.Name, a.Value)
	}
	tb.activeFormatting[entryIndex].node = clone
	return clone
}

// reparentLastNode is step 11: detach the inner loop's accumulated last
// node and insert it under the common ancestor, foster-parenting if that
// ancestor is table structure.
func (tb *TreeBuilder) reparentLastNode(lastNode, commonAncestor *dom.Element) {
	detachFromParent(lastNode)
	if shouldFosterParent(commonAncestor) {
		tb.insertFosterNode(lastNode)
		return
	}
	commonAncestor.AppendChild(lastNode)
}

// replaceFormattingElement runs steps 12-15: build a fresh copy of the
// formatting element, migrate furthestBlock's children under it, splice it
// into furthestBlock, and swap the bookkeeping (active-formatting entry and
// open-element stack slot) from the old element to the new one.
func (tb *TreeBuilder) replaceFormattingElement(s adoptionStep, furthestBlock *dom.Element, bookmark int) {
	replacement := tb.cloneFormattingEntry(s.formattingIndex)

	for {
		children := furthestBlock.Children()
		if len(children) == 0 {
			break
		}
		child := children[0]
		furthestBlock.RemoveChild(child)
		replacement.AppendChild(child)
	}
	furthestBlock.AppendChild(replacement)

	movedEntry := tb.activeFormatting[s.formattingIndex]
	tb.removeFormattingEntry(s.formattingIndex)
	bookmark = clampIndex(bookmark-1, len(tb.activeFormatting))
	tb.activeFormatting = append(tb.activeFormatting, formattingEntry{})
	copy(tb.activeFormatting[bookmark+1:], tb.activeFormatting[bookmark:])
	tb.activeFormatting[bookmark] = movedEntry

	if idx, ok := tb.indexOfOpenElement(s.element); ok {
		tb.removeOpenElementAt(idx)
	}
	furthestIdx := tb.mustIndexOfOpenElement(furthestBlock)
	tb.insertOpenElementAt(furthestIdx+1, replacement)
}

func clampIndex(i, max int) int {
	if i < 0 {
		return 0
	}
	if i > max {
		return max
	}
	return i
}

func detachFromParent(node *dom.Element) {
	if p := node.Parent(); p != nil {
		p.RemoveChild(node)
	}
}

func isSpecialElement(el *dom.Element) bool {
	return el != nil && el.Namespace == dom.NamespaceHTML && constants.SpecialElements[el.TagName]
}

func shouldFosterParent(commonAncestor *dom.Element) bool {
	if commonAncestor == nil {
		return false
	}
	switch commonAncestor.TagName {
	case "table", "tbody", "tfoot", "thead", "tr":
		return true
	default:
		return false
	}
}

// insertFosterNode places node at the foster-parenting location: just
// before the nearest open <table> element (or as a child of whatever is
// below it, if the table has no parent yet), falling back to the current
// insertion point when no table is open at all.
func (tb *TreeBuilder) insertFosterNode(node dom.Node) {
	if el, ok := node.(*dom.Element); ok {
		tb.logger.Debug("foster parenting misnested element", "tag", el.TagName)
	}
	var table *dom.Element
	tableIndex := -1
	for i := len(tb.openElements) - 1; i >= 0; i-- {
		if el := tb.openElements[i]; el.TagName == "table" && el.Namespace == dom.NamespaceHTML {
			table = el
			tableIndex = i
			break
		}
	}
	if table == nil {
		tb.currentNode().AppendChild(node)
		return
	}
	parent := table.Parent()
	if parent == nil {
		if tableIndex > 0 {
			tb.openElements[tableIndex-1].AppendChild(node)
			return
		}
		tb.document.AppendChild(node)
		return
	}
	parent.InsertBefore(node, table)
}

func (tb *TreeBuilder) indexOfOpenElement(target *dom.Element) (int, bool) {
	for i, el := range tb.openElements {
		if el == target {
			return i, true
		}
	}
	return -1, false
}

func (tb *TreeBuilder) mustIndexOfOpenElement(target *dom.Element) int {
	idx, ok := tb.indexOfOpenElement(target)
	if !ok {
		panic("treebuilder: expected element on open element stack")
	}
	return idx
}

func (tb *TreeBuilder) removeOpenElementAt(index int) {
	if index < 0 || index >= len(tb.openElements) {
		return
	}
	tb.openElements = append(tb.openElements[:index], tb.openElements[index+1:]...)
}

func (tb *TreeBuilder) insertOpenElementAt(index int, el *dom.Element) {
	index = clampIndex(index, len(tb.openElements))
	tb.openElements = append(tb.openElements, nil)
	copy(tb.openElements[index+1:], tb.openElements[index:])
	tb.openElements[index] = el
}
