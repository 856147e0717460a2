package treebuilder

import (
	"strings"

	"github.com/jbowes-oss/htmltree/dom"
	"github.com/jbowes-oss/htmltree/internal/constants"
)

// This file collects the stack-of-open-elements operations named by the
// tree-construction algorithm that aren't already covered by builder.go
// (push/pop/popUntil/currentElement) or utils.go (scope queries,
// generateImpliedEndTags, clearStackUntil). Kept as methods on TreeBuilder
// rather than split into a separate type; see DESIGN.md.

// onPush/onPop are invoked by push/popCurrent so that location bookkeeping
// (treebuilder/location.go) can attach start/end spans without threading a
// callback through every call site.
func (tb *TreeBuilder) fireOnPush(el *dom.Element) {
	if tb.onPush != nil {
		tb.onPush(el)
	}
}

func (tb *TreeBuilder) fireOnPop(el *dom.Element) {
	if tb.onPop != nil {
		tb.onPop(el)
	}
}

// fireOnText is onPush/onPop's counterpart for text node insertion.
func (tb *TreeBuilder) fireOnText(t *dom.Text) {
	if tb.onText != nil {
		tb.onText(t)
	}
}

// popUntilTagNamePopped pops elements until one with the given tag name has
// been popped (inclusive), matching case-insensitively.
func (tb *TreeBuilder) popUntilTagNamePopped(name string) {
	tb.popUntilCaseInsensitive(name)
}

// popUntilCaseInsensitive pops elements until one matching name
// case-insensitively has been popped (inclusive).
func (tb *TreeBuilder) popUntilCaseInsensitive(name string) {
	target := strings.ToLower(name)
	for len(tb.openElements) > 0 {
		el := tb.popCurrent()
		if strings.ToLower(el.TagName) == target {
			return
		}
	}
}

// popUntilNumberedHeaderPopped pops until an h1-h6 element has been popped.
func (tb *TreeBuilder) popUntilNumberedHeaderPopped() {
	for len(tb.openElements) > 0 {
		el := tb.popCurrent()
		if isHeadingElement(el.TagName) {
			return
		}
	}
}

// popAllUpToHtmlElement pops everything down to (excluding) the root <html>.
func (tb *TreeBuilder) popAllUpToHtmlElement() {
	for len(tb.openElements) > 1 {
		tb.popCurrent()
	}
}

// generateImpliedEndTagsThoroughly additionally treats table-structure
// elements as implied, per §13.2.5.3's "thoroughly" variant (used by the
// </template> closure procedure, §4.5).
func (tb *TreeBuilder) generateImpliedEndTagsThoroughly() {
	for len(tb.openElements) > 0 {
		node := tb.currentElement()
		if node == nil || node.Namespace != dom.NamespaceHTML {
			return
		}
		if constants.ThoroughlyImpliedEndTagElements[node.TagName] {
			tb.popCurrent()
			continue
		}
		return
	}
}

// clearBackToTableContext pops until the current node is table, template, or html.
func (tb *TreeBuilder) clearBackToTableContext() {
	tb.clearStackUntil(map[string]bool{"table": true, "template": true, "html": true})
}

// clearBackToTableBodyContext pops until the current node is tbody, tfoot,
// thead, template, or html.
func (tb *TreeBuilder) clearBackToTableBodyContext() {
	tb.clearStackUntil(map[string]bool{
		"tbody": true, "tfoot": true, "thead": true, "template": true, "html": true,
	})
}

// clearBackToTableRowContext pops until the current node is tr, template, or html.
func (tb *TreeBuilder) clearBackToTableRowContext() {
	tb.clearStackUntil(map[string]bool{"tr": true, "template": true, "html": true})
}

// insertFosterText inserts character data using the foster-parenting
// insertion location (WHATWG HTML §13.2.6.1 "foster parenting"), used by
// "in table text" when buffered text contained a non-whitespace character.
func (tb *TreeBuilder) insertFosterText(data string) {
	tb.logger.Debug("foster parenting table text", "len", len(data))
	tb.withFosterParenting(func() bool {
		tb.insertText(data)
		return false
	})
}

// hasNumberedHeaderInScope reports whether any h1-h6 element is in scope.
func (tb *TreeBuilder) hasNumberedHeaderInScope() bool {
	return tb.hasAnyElementInScope(headingElements, constants.DefaultScope)
}
