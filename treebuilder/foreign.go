package treebuilder

import (
	"strings"

	"github.com/jbowes-oss/htmltree/dom"
	"github.com/jbowes-oss/htmltree/internal/constants"
	"github.com/jbowes-oss/htmltree/tokenizer"
)

// shouldUseForeignContent implements the "appropriate place… tree
// construction dispatcher" test from WHATWG HTML §13.2.6: once the current
// node is a foreign (MathML/SVG) element, most tokens are processed by
// processForeignContent instead of the active insertion mode — except at
// the handful of integration points enumerated below, where the foreign
// subtree hands control back to ordinary HTML rules.
func (tb *TreeBuilder) shouldUseForeignContent(tok tokenizer.Token) bool {
	current := tb.currentElement()
	if current == nil || current.Namespace == dom.NamespaceHTML || tok.Type == tokenizer.EOF {
		return false
	}

	if tb.isMathMLTextIntegrationPoint(current) && mathMLIntegrationPointExits(tok) {
		return false
	}
	if isAnnotationXMLWithSVGChild(current, tok) {
		return false
	}
	if tb.isHTMLIntegrationPoint(current) && htmlIntegrationPointExits(tok) {
		return false
	}
	return true
}

// mathMLIntegrationPointExits reports whether tok is one of the token kinds
// that a MathML text integration point (mi/mo/mn/ms/mtext) hands off to
// regular HTML rules for: any character, or a start tag other than
// mglyph/malignmark.
func mathMLIntegrationPointExits(tok tokenizer.Token) bool {
	switch tok.Type {
	case tokenizer.Character:
		return true
	case tokenizer.StartTag:
		return tok.Name != "mglyph" && tok.Name != "malignmark"
	default:
		return false
	}
}

// htmlIntegrationPointExits reports whether tok exits an HTML integration
// point (annotation-xml[encoding=text/html|application/xhtml+xml], svg
// foreignObject/desc/title) back to regular HTML rules: any character or
// start tag does.
func htmlIntegrationPointExits(tok tokenizer.Token) bool {
	return tok.Type == tokenizer.Character || tok.Type == tokenizer.StartTag
}

func isAnnotationXMLWithSVGChild(current *dom.Element, tok tokenizer.Token) bool {
	if current.Namespace != dom.NamespaceMathML || !strings.EqualFold(current.TagName, "annotation-xml") {
		return false
	}
	return tok.Type == tokenizer.StartTag && tok.Name == "svg"
}

// processForeignContent implements WHATWG HTML §13.2.6.5 ("parsing tokens
// in foreign content") for the current token. It returns true when the
// caller should reprocess tok under the ordinary insertion-mode dispatcher
// instead (a breakout, or an end tag that closed back into HTML content).
func (tb *TreeBuilder) processForeignContent(tok tokenizer.Token) bool {
	if tb.currentElement() == nil {
		return false
	}

	switch tok.Type {
	case tokenizer.Character:
		return tb.foreignCharacter(tok)
	case tokenizer.Comment:
		tb.insertComment(tok.Data)
		return false
	case tokenizer.StartTag:
		return tb.foreignStartTag(tok)
	case tokenizer.EndTag:
		return tb.foreignEndTag(tok)
	default:
		return false
	}
}

func (tb *TreeBuilder) foreignCharacter(tok tokenizer.Token) bool {
	if tok.Data == "" {
		return false
	}
	data := strings.ReplaceAll(tok.Data, "\x00", "\uFFFD")
	if !isAllWhitespace(data) {
		tb.framesetOK = false
	}
	tb.insertText(data)
	return false
}

func (tb *TreeBuilder) foreignStartTag(tok tokenizer.Token) bool {
	if causesForeignBreakout(tok) {
		tb.popUntilHTMLOrIntegrationPoint()
		tb.resetInsertionModeAppropriately()
		tb.forceHTMLMode = true
		return true
	}

	namespace := tb.currentElement().Namespace
	name := tok.Name
	if namespace == dom.NamespaceSVG {
		name = adjustSVGTagName(tok.Name)
	}
	tb.insertForeignElement(name, namespace, adjustForeignAttributes(namespace, tok.Attrs), tok.SelfClosing)
	return false
}

// causesForeignBreakout reports whether a start tag is one of the HTML5
// spec's fixed "breakout" tag names, or a <font> carrying a presentational
// attribute — both force an exit from foreign content even mid-subtree.
func causesForeignBreakout(tok tokenizer.Token) bool {
	if constants.ForeignBreakoutElements[tok.Name] {
		return true
	}
	return tok.Name == "font" && fontHasBreakoutAttr(tok.Attrs)
}

func fontHasBreakoutAttr(attrs []tokenizer.Attr) bool {
	for _, attr := range attrs {
		switch strings.ToLower(attr.Name) {
		case "color", "face", "size":
			return true
		}
	}
	return false
}

// foreignEndTag walks the open-element stack from the top looking for a
// case-insensitive tag-name match. Per WHATWG HTML §13.2.6.5: hitting an
// HTML-namespace element before (or at) a match hands the token back to
// normal processing; a foreign-namespace match pops the stack down to and
// including it.
func (tb *TreeBuilder) foreignEndTag(tok tokenizer.Token) bool {
	if tok.Name == "br" || tok.Name == "p" {
		tb.popUntilHTMLOrIntegrationPoint()
		tb.resetInsertionModeAppropriately()
		tb.forceHTMLMode = true
		return true
	}

	for i := len(tb.openElements) - 1; i >= 0; i-- {
		node := tb.openElements[i]
		if !strings.EqualFold(node.TagName, tok.Name) {
			if node.Namespace == dom.NamespaceHTML {
				tb.forceHTMLMode = true
				return true
			}
			continue
		}
		if tb.fragmentElement != nil && node == tb.fragmentElement {
			return false
		}
		if node.Namespace == dom.NamespaceHTML {
			tb.forceHTMLMode = true
			return true
		}
		for len(tb.openElements) > i {
			tb.popCurrent()
		}
		return false
	}
	return false
}

func (tb *TreeBuilder) popUntilHTMLOrIntegrationPoint() {
	for {
		node := tb.currentElement()
		if node == nil || node.Namespace == dom.NamespaceHTML || tb.isHTMLIntegrationPoint(node) {
			return
		}
		tb.popCurrent()
	}
}

func (tb *TreeBuilder) isHTMLIntegrationPoint(node *dom.Element) bool {
	if node == nil {
		return false
	}
	if node.Namespace == dom.NamespaceMathML && node.TagName == "annotation-xml" {
		enc, ok := node.Attributes.Get("encoding")
		if !ok {
			return false
		}
		switch strings.ToLower(enc) {
		case "text/html", "application/xhtml+xml":
			return true
		default:
			return false
		}
	}
	point := constants.IntegrationPoint{Namespace: node.Namespace, LocalName: node.TagName}
	return constants.HTMLIntegrationPoints[point]
}

func (tb *TreeBuilder) isMathMLTextIntegrationPoint(node *dom.Element) bool {
	if node == nil {
		return false
	}
	point := constants.IntegrationPoint{Namespace: node.Namespace, LocalName: node.TagName}
	return constants.MathMLTextIntegrationPoints[point]
}

func adjustSVGTagName(name string) string {
	if adjusted, ok := constants.SVGTagNameAdjustments[strings.ToLower(name)]; ok {
		return adjusted
	}
	return name
}

// adjustForeignAttributes applies the foreign-content attribute adjustment
// tables (MathML/SVG casing fixes, then the shared xlink/xml/xmlns
// namespace table) in the order WHATWG HTML §13.2.6.1–.3 specifies, walking
// attrs as a slice so output order matches source order.
func adjustForeignAttributes(namespace string, attrs []tokenizer.Attr) []dom.Attribute {
	if len(attrs) == 0 {
		return nil
	}
	out := make([]dom.Attribute, 0, len(attrs))
	for _, attr := range attrs {
		name := attr.Name
		lower := strings.ToLower(name)

		switch namespace {
		case dom.NamespaceMathML:
			if adjusted, ok := constants.MathMLAttributeAdjustments[lower]; ok {
				name = adjusted
				lower = strings.ToLower(name)
			}
		case dom.NamespaceSVG:
			if adjusted, ok := constants.SVGAttributeAdjustments[lower]; ok {
				name = adjusted
				lower = strings.ToLower(name)
			}
		}

		if foreign, ok := constants.ForeignAttributeAdjustments[lower]; ok {
			qualified := foreign.LocalName
			if foreign.Prefix != "" {
				qualified = foreign.Prefix + ":" + foreign.LocalName
			}
			out = append(out, dom.Attribute{Namespace: foreign.NamespaceURL, Name: qualified, Value: attr.Value})
			continue
		}

		out = append(out, dom.Attribute{Name: name, Value: attr.Value})
	}
	return out
}

func (tb *TreeBuilder) insertForeignElement(name, namespace string, attrs []dom.Attribute, selfClosing bool) *dom.Element {
	el := dom.NewElementNS(name, namespace)
	for _, attr := range attrs {
		el.Attributes.SetNS(attr.Namespace, attr.Name, attr.Value)
	}
	tb.insertNode(el, nil)
	if !selfClosing {
		tb.openElements = append(tb.openElements, el)
		tb.fireOnPush(el)
	}
	return el
}
