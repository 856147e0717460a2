package treebuilder

import (
	"strings"

	"github.com/jbowes-oss/htmltree/dom"
	htmlerrors "github.com/jbowes-oss/htmltree/errors"
	"github.com/jbowes-oss/htmltree/internal/constants"
	"github.com/jbowes-oss/htmltree/tokenizer"
)

// --- scope queries (WHATWG HTML §13.2.4.2) ---
//
// Each query walks the open-element stack from the top down, stopping the
// first time it hits a "scope barrier" tag for the scope in question. The
// boolean knob on hasElementInScopeInternal controls whether foreign
// integration points also count as barriers, which is true for every scope
// except the table-specific one (§13.2.4.2's "has an element in table
// scope" deliberately does not stop at integration points).

func (tb *TreeBuilder) hasElementInScope(tagName string, barriers map[string]bool) bool {
	return tb.hasElementInScopeInternal(tagName, barriers, true)
}

func (tb *TreeBuilder) hasElementInScopeInternal(tagName string, barriers map[string]bool, stopAtIntegrationPoints bool) bool {
	for i := len(tb.openElements) - 1; i >= 0; i-- {
		node := tb.openElements[i]
		if node.Namespace == dom.NamespaceHTML && node.TagName == tagName {
			return true
		}
		if node.Namespace == dom.NamespaceHTML {
			if barriers[node.TagName] {
				return false
			}
			continue
		}
		if stopAtIntegrationPoints && (tb.isHTMLIntegrationPoint(node) || tb.isMathMLTextIntegrationPoint(node)) {
			return false
		}
	}
	return false
}

// hasAnyElementInScope is hasElementInScope generalized over a set of
// candidate tag names instead of one (used for "has a numbered header
// element in scope").
func (tb *TreeBuilder) hasAnyElementInScope(candidates map[string]bool, barriers map[string]bool) bool {
	for i := len(tb.openElements) - 1; i >= 0; i-- {
		node := tb.openElements[i]
		if node.Namespace == dom.NamespaceHTML && candidates[node.TagName] {
			return true
		}
		if node.Namespace == dom.NamespaceHTML {
			if barriers[node.TagName] {
				return false
			}
			continue
		}
		if tb.isHTMLIntegrationPoint(node) || tb.isMathMLTextIntegrationPoint(node) {
			return false
		}
	}
	return false
}

func (tb *TreeBuilder) hasPElementInButtonScope() bool {
	return tb.hasElementInScope("p", constants.ButtonScope)
}

func (tb *TreeBuilder) hasElementInTableScope(tagName string) bool {
	return tb.hasElementInScopeInternal(tagName, constants.TableScope, false)
}

func (tb *TreeBuilder) hasElementInListItemScope(tagName string) bool {
	return tb.hasElementInScope(tagName, constants.ListItemScope)
}

func (tb *TreeBuilder) hasElementInDefinitionScope(tagName string) bool {
	return tb.hasElementInScope(tagName, constants.DefinitionScope)
}

// hasElementInSelectScope is the inverted scope query select uses: the walk
// fails as soon as it crosses anything other than optgroup/option.
func (tb *TreeBuilder) hasElementInSelectScope(tagName string) bool {
	for i := len(tb.openElements) - 1; i >= 0; i-- {
		node := tb.openElements[i]
		if node.Namespace != dom.NamespaceHTML {
			return false
		}
		if node.TagName == tagName {
			return true
		}
		if !constants.SelectScope[node.TagName] {
			return false
		}
	}
	return false
}

func (tb *TreeBuilder) hasTableBodyContextInTableScope() bool {
	return tb.hasElementInTableScope("tbody") ||
		tb.hasElementInTableScope("thead") ||
		tb.hasElementInTableScope("tfoot")
}

func (tb *TreeBuilder) hasForeignElementOnStack() bool {
	for _, node := range tb.openElements {
		if node.Namespace != dom.NamespaceHTML {
			return true
		}
	}
	return false
}

// h1..h6 form their own mini-scope group: closing one header implicitly
// targets any of the six, and "has a numbered header in scope" asks about
// the group rather than a single tag name.
var headingElements = map[string]bool{
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
}

func isHeadingElement(tag string) bool {
	return headingElements[tag]
}

// --- implied end tags & stack clearing (WHATWG HTML §13.2.5.3, §13.2.6.4.9) ---

func (tb *TreeBuilder) generateImpliedEndTags(except string) {
	for {
		node := tb.currentElement()
		if node == nil || node.Namespace != dom.NamespaceHTML {
			return
		}
		if !constants.ImpliedEndTagElements[node.TagName] || node.TagName == except {
			return
		}
		tb.popCurrent()
	}
}

// clearStackUntil pops elements until the current node's tag name is in
// keep; it implements the family of "clear the stack back to a _ context"
// steps (table/table-body/table-row), parameterized by which tags stop it.
func (tb *TreeBuilder) clearStackUntil(keep map[string]bool) {
	for {
		node := tb.currentElement()
		if node == nil {
			return
		}
		if node.Namespace == dom.NamespaceHTML && keep[node.TagName] {
			return
		}
		tb.popCurrent()
	}
}

// closePElement implements the "close a p element" steps: generate implied
// end tags except p, then pop through the p element.
func (tb *TreeBuilder) closePElement() {
	tb.generateImpliedEndTags("p")
	if cur := tb.currentElement(); cur != nil && cur.TagName != "p" {
		tb.reportError(htmlerrors.ClosingOfElementWithOpenChildElements)
	}
	tb.popUntil("p")
}

func (tb *TreeBuilder) closePIfInButtonScope() {
	if tb.hasPElementInButtonScope() {
		tb.closePElement()
	}
}

func (tb *TreeBuilder) closeCaptionElement() bool {
	if !tb.hasElementInTableScope("caption") {
		return false
	}
	tb.generateImpliedEndTags("")
	if cur := tb.currentElement(); cur != nil && cur.TagName != "caption" {
		tb.reportError(htmlerrors.ClosingOfElementWithOpenChildElements)
	}
	tb.popUntil("caption")
	tb.clearActiveFormattingUpToMarker()
	tb.mode = InTable
	return true
}

// closeTableCell closes the open td/th cell and returns the parser to the
// row context, discarding formatting entries back to the cell's marker.
func (tb *TreeBuilder) closeTableCell() bool {
	if !tb.hasElementInTableScope("td") && !tb.hasElementInTableScope("th") {
		return false
	}
	tb.generateImpliedEndTags("")
	tb.popUntilAnyCell()
	tb.clearActiveFormattingUpToMarker()
	tb.mode = InRow
	return true
}

// --- template insertion-mode stack (§13.2.4.1's "stack of template insertion modes") ---

func (tb *TreeBuilder) pushTemplateMode(mode InsertionMode) {
	tb.templateModes = append(tb.templateModes, mode)
}

func (tb *TreeBuilder) popTemplateMode() {
	if len(tb.templateModes) > 0 {
		tb.templateModes = tb.templateModes[:len(tb.templateModes)-1]
	}
}

// setTemplateMode replaces the current template insertion mode with mode and
// switches to it, the way IN_TEMPLATE's category-based rewrite prescribes.
func (tb *TreeBuilder) setTemplateMode(mode InsertionMode) {
	tb.popTemplateMode()
	tb.pushTemplateMode(mode)
	tb.mode = mode
}

// closeTemplate implements the </template> closure procedure: thorough
// implied end tags, pop through the template, drop formatting entries back
// to the template's marker, pop the template-mode stack, and re-derive the
// insertion mode from what remains open.
func (tb *TreeBuilder) closeTemplate() {
	if !tb.elementInStack("template") {
		tb.reportError(htmlerrors.EndTagWithoutMatchingOpenElement)
		return
	}
	tb.generateImpliedEndTagsThoroughly()
	if cur := tb.currentElement(); cur != nil && cur.TagName != "template" {
		tb.reportError(htmlerrors.ClosingOfElementWithOpenChildElements)
	}
	tb.popUntil("template")
	tb.clearActiveFormattingUpToMarker()
	tb.popTemplateMode()
	tb.resetInsertionModeAppropriately()
}

// resetInsertionModeAppropriately implements WHATWG HTML §13.2.5.2.4: after
// popping out of table/select/template structure, figure out which
// insertion mode the surrounding context implies by walking the stack from
// the top down. Foreign (SVG/MathML) elements never participate, so e.g. an
// SVG <tr> on the stack must not switch the parser into InRow.
func (tb *TreeBuilder) resetInsertionModeAppropriately() {
	for i := len(tb.openElements) - 1; i >= 0; i-- {
		node := tb.openElements[i]
		if node.Namespace != dom.NamespaceHTML {
			continue
		}
		tag := strings.ToLower(node.TagName)
		if tag == "html" && tb.fragmentContext == nil {
			if tb.headElement != nil {
				tb.mode = AfterHead
			} else {
				tb.mode = BeforeHead
			}
			return
		}
		if mode, handled := modeForContextTag(tag); handled {
			if mode == InTemplate && len(tb.templateModes) > 0 {
				tb.mode = tb.templateModes[len(tb.templateModes)-1]
				return
			}
			tb.mode = mode
			return
		}
	}
	tb.mode = InBody
}

// modeForContextTag maps one stack entry's tag name to the insertion mode it
// implies, per the numbered list in §13.2.5.2.4. "template" reports InTemplate
// as a sentinel telling the caller to consult the template insertion-mode
// stack instead of using the mode literally.
func modeForContextTag(tagName string) (InsertionMode, bool) {
	switch tagName {
	case "select":
		return InSelect, true
	case "td", "th":
		return InCell, true
	case "tr":
		return InRow, true
	case "tbody", "tfoot", "thead":
		return InTableBody, true
	case "caption":
		return InCaption, true
	case "colgroup":
		return InColumnGroup, true
	case "table":
		return InTable, true
	case "template":
		return InTemplate, true
	case "head":
		return InHead, true
	case "body", "html":
		return InBody, true
	default:
		return 0, false
	}
}

func (tb *TreeBuilder) clearActiveFormattingElements() {
	tb.clearActiveFormattingUpToMarker()
}

func (tb *TreeBuilder) pushActiveFormattingMarker() {
	tb.pushFormattingMarker()
}

// --- doctype / quirks classification (WHATWG HTML §13.2.4.1's "quirks mode" tables) ---

// doctypeConformance pairs a DOCTYPE's (name, publicId, systemId) triple
// with whether it is the one combination HTML5 still calls conforming.
// Anything else is a parse error, independent of which quirks bucket it
// lands in.
type doctypeConformance struct {
	name, publicID, systemID string
}

var conformingDoctypes = map[doctypeConformance]bool{
	{"html", "", ""}:                     true,
	{"html", "", "about:legacy-compat"}:  true,
	{"html", "-//W3C//DTD HTML 4.0//EN", ""}: true,
	{"html", "-//W3C//DTD HTML 4.0//EN", "http://www.w3.org/TR/REC-html40/strict.dtd"}:                true,
	{"html", "-//W3C//DTD HTML 4.01//EN", ""}:                                                         true,
	{"html", "-//W3C//DTD HTML 4.01//EN", "http://www.w3.org/TR/html4/strict.dtd"}:                    true,
	{"html", "-//W3C//DTD XHTML 1.0 Strict//EN", "http://www.w3.org/TR/xhtml1/DTD/xhtml1-strict.dtd"}: true,
	{"html", "-//W3C//DTD XHTML 1.1//EN", "http://www.w3.org/TR/xhtml11/DTD/xhtml11.dtd"}:             true,
}

func doctypeErrorAndQuirks(name string, publicID, systemID *string, forceQuirks, iframeSrcdoc bool) (bool, dom.QuirksMode) {
	nameLower := strings.ToLower(name)
	public := ptrToString(publicID)
	system := ptrToString(systemID)

	parseError := !conformingDoctypes[doctypeConformance{nameLower, public, system}]
	publicLower := strings.ToLower(public)
	systemLower := strings.ToLower(system)

	switch {
	case forceQuirks:
		return parseError, dom.Quirks
	case iframeSrcdoc:
		return parseError, dom.NoQuirks
	case nameLower != "html":
		return parseError, dom.Quirks
	case constants.QuirkyPublicMatches[publicLower]:
		return parseError, dom.Quirks
	case constants.QuirkySystemMatches[systemLower]:
		return parseError, dom.Quirks
	case publicLower != "" && hasAnyPrefix(publicLower, constants.QuirkyPublicPrefixes):
		return parseError, dom.Quirks
	case publicLower != "" && hasAnyPrefix(publicLower, constants.LimitedQuirkyPublicPrefixes):
		return parseError, dom.LimitedQuirks
	case publicLower != "" && hasAnyPrefix(publicLower, constants.HTML4PublicPrefixes):
		if systemID == nil {
			return parseError, dom.Quirks
		}
		return parseError, dom.LimitedQuirks
	default:
		return parseError, dom.NoQuirks
	}
}

func hasAnyPrefix(needle string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(needle, prefix) {
			return true
		}
	}
	return false
}

// --- misc stack/attribute helpers ---

func (tb *TreeBuilder) anyOtherEndTag(name string) {
	target := strings.ToLower(name)
	for i := len(tb.openElements) - 1; i >= 0; i-- {
		node := tb.openElements[i]
		if strings.ToLower(node.TagName) == target && node.Namespace == dom.NamespaceHTML {
			tb.generateImpliedEndTags(name)
			for len(tb.openElements) > i {
				tb.popCurrent()
			}
			return
		}
		if isSpecialElement(node) {
			tb.reportError(htmlerrors.EndTagWithoutMatchingOpenElement)
			return
		}
	}
}

func (tb *TreeBuilder) removeFromOpenElements(target *dom.Element) bool {
	for i, el := range tb.openElements {
		if el == target {
			tb.openElements = append(tb.openElements[:i], tb.openElements[i+1:]...)
			return true
		}
	}
	return false
}

// filterWhitespace keeps only the five ASCII whitespace characters HTML5
// treats as whitespace, discarding everything else from data.
func filterWhitespace(data string) string {
	if data == "" {
		return ""
	}
	var kept strings.Builder
	for _, r := range data {
		switch r {
		case '\t', '\n', '\f', '\r', ' ':
			kept.WriteRune(r)
		}
	}
	return kept.String()
}

func isHiddenInput(attrs []tokenizer.Attr) bool {
	for _, attr := range attrs {
		if attr.Namespace == "" && strings.EqualFold(attr.Name, "type") && strings.EqualFold(attr.Value, "hidden") {
			return true
		}
	}
	return false
}
