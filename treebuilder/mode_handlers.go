package treebuilder

import (
	"strings"

	"github.com/jbowes-oss/htmltree/dom"
	htmlerrors "github.com/jbowes-oss/htmltree/errors"
	"github.com/jbowes-oss/htmltree/internal/constants"
	"github.com/jbowes-oss/htmltree/tokenizer"
)

// One function per insertion mode, dispatched from ProcessToken. Each
// returns true when the token must be reprocessed under the (possibly
// changed) current mode.

// inBodyBlockStartTags are the block-level start tags whose only special
// behavior in IN_BODY is closing an open <p> in button scope first.
var inBodyBlockStartTags = map[string]bool{
	"address": true, "article": true, "aside": true, "blockquote": true,
	"center": true, "details": true, "dialog": true, "dir": true,
	"div": true, "dl": true, "fieldset": true, "figcaption": true,
	"figure": true, "footer": true, "header": true, "hgroup": true,
	"main": true, "menu": true, "nav": true, "ol": true, "p": true,
	"search": true, "section": true, "summary": true, "ul": true,
}

// inBodyBlockEndTags close via the scope-checked generic block procedure.
var inBodyBlockEndTags = map[string]bool{
	"address": true, "article": true, "aside": true, "blockquote": true,
	"button": true, "center": true, "details": true, "dialog": true,
	"dir": true, "div": true, "dl": true, "fieldset": true,
	"figcaption": true, "figure": true, "footer": true, "header": true,
	"hgroup": true, "listing": true, "main": true, "menu": true,
	"nav": true, "ol": true, "pre": true, "search": true,
	"section": true, "summary": true, "ul": true,
}

func (tb *TreeBuilder) processInitial(tok tokenizer.Token) bool {
	switch tok.Type {
	case tokenizer.Character:
		if isAllWhitespace(tok.Data) {
			return false
		}
		tb.reportError(htmlerrors.MissingDoctype)
		tb.document.QuirksMode = dom.Quirks
		tb.mode = BeforeHTML
		return true
	case tokenizer.Comment:
		tb.document.AppendChild(dom.NewComment(tok.Data))
		return false
	case tokenizer.DOCTYPE:
		tb.document.Doctype = dom.NewDocumentType(tok.Name, ptrToString(tok.PublicID), ptrToString(tok.SystemID))
		parseErr, mode := doctypeErrorAndQuirks(tok.Name, tok.PublicID, tok.SystemID, tok.ForceQuirks, tb.iframeSrcdoc)
		if parseErr {
			tb.reportError(htmlerrors.NonConformingDoctype)
		}
		tb.document.QuirksMode = mode
		tb.mode = BeforeHTML
		return false
	default:
		tb.reportError(htmlerrors.MissingDoctype)
		tb.document.QuirksMode = dom.Quirks
		tb.mode = BeforeHTML
		return true
	}
}

func (tb *TreeBuilder) processBeforeHTML(tok tokenizer.Token) bool {
	switch tok.Type {
	case tokenizer.DOCTYPE:
		tb.reportError(htmlerrors.MisplacedDoctype)
		return false
	case tokenizer.Character:
		if isAllWhitespace(tok.Data) {
			return false
		}
		// Strip leading whitespace so that implicit root creation behaves
		// like the spec, then re-dispatch the shortened run ourselves (a
		// plain reprocess would see the original token again).
		tok.Data = strings.TrimLeft(tok.Data, "\t\n\f\r ")
		tb.insertElement("html", nil)
		tb.mode = BeforeHead
		if tok.Data != "" {
			tb.dispatch(tok)
		}
		return false
	case tokenizer.Comment:
		tb.document.AppendChild(dom.NewComment(tok.Data))
		return false
	case tokenizer.StartTag:
		if tok.Name == "html" {
			tb.insertElement("html", tok.Attrs)
			tb.mode = BeforeHead
			return false
		}
	case tokenizer.EndTag:
		// "head", "body", "html", "br" trigger implicit root creation and reprocess.
		if tok.Name == "head" || tok.Name == "body" || tok.Name == "html" || tok.Name == "br" {
			tb.insertElement("html", nil)
			tb.mode = BeforeHead
			return true
		}
		tb.reportError(htmlerrors.EndTagWithoutMatchingOpenElement)
		return false
	case tokenizer.EOF:
		tb.insertElement("html", nil)
		tb.mode = BeforeHead
		return true
	}

	// Create implicit <html> element.
	tb.insertElement("html", nil)
	tb.mode = BeforeHead
	return true
}

func (tb *TreeBuilder) processBeforeHead(tok tokenizer.Token) bool {
	switch tok.Type {
	case tokenizer.Character:
		if isAllWhitespace(tok.Data) {
			return false
		}
	case tokenizer.Comment:
		tb.insertComment(tok.Data)
		return false
	case tokenizer.DOCTYPE:
		tb.reportError(htmlerrors.MisplacedDoctype)
		return false
	case tokenizer.StartTag:
		switch tok.Name {
		case "html":
			// Duplicate <html>: merge attributes into the existing root.
			if len(tb.openElements) > 0 && tb.openElements[0].TagName == "html" {
				tb.addMissingAttributes(tb.openElements[0], tok.Attrs)
			}
			return false
		case "head":
			tb.headElement = tb.insertElement("head", tok.Attrs)
			tb.mode = InHead
			return false
		}
	case tokenizer.EndTag:
		switch tok.Name {
		case "head", "body", "html", "br":
			// Implicit <head>, reprocess below.
		default:
			tb.reportError(htmlerrors.EndTagWithoutMatchingOpenElement)
			return false
		}
	}

	// Implicit <head>.
	tb.headElement = tb.insertElement("head", nil)
	tb.mode = InHead
	return true
}

func (tb *TreeBuilder) processInHead(tok tokenizer.Token) bool {
	switch tok.Type {
	case tokenizer.Character:
		if isAllWhitespace(tok.Data) {
			tb.insertText(tok.Data)
			return false
		}
	case tokenizer.Comment:
		tb.insertComment(tok.Data)
		return false
	case tokenizer.DOCTYPE:
		tb.reportError(htmlerrors.MisplacedDoctype)
		return false
	case tokenizer.StartTag:
		switch tok.Name {
		case "html":
			return tb.processInBody(tok)
		case "title":
			tb.parseGenericRCDATA(tok)
			return false
		case "script", "style", "noframes":
			tb.parseGenericRawText(tok)
			return false
		case "noscript":
			if tb.scriptingEnabled {
				tb.parseGenericRawText(tok)
				return false
			}
			tb.insertElement(tok.Name, tok.Attrs)
			tb.mode = InHeadNoscript
			return false
		case "base", "basefont", "bgsound", "link", "meta":
			// Void-ish head elements; do not stay on stack.
			tb.insertElement(tok.Name, tok.Attrs)
			tb.popCurrent()
			return false
		case "template":
			tb.insertElement("template", tok.Attrs)
			tb.pushFormattingMarker()
			tb.framesetOK = false
			tb.mode = InTemplate
			tb.pushTemplateMode(InTemplate)
			return false
		case "head":
			tb.reportError(htmlerrors.MisplacedStartTagForHeadElement)
			return false
		}
	case tokenizer.EndTag:
		switch tok.Name {
		case "head":
			tb.popUntil("head")
			tb.mode = AfterHead
			return false
		case "template":
			tb.closeTemplate()
			return false
		case "body", "html", "br":
			// Close head implicitly, reprocess below.
		default:
			tb.reportError(htmlerrors.EndTagWithoutMatchingOpenElement)
			return false
		}
	case tokenizer.EOF:
		tb.popUntil("head")
		tb.mode = AfterHead
		return true
	}

	// Anything else: close head and reprocess in after head.
	tb.popUntil("head")
	tb.mode = AfterHead
	return true
}

func (tb *TreeBuilder) processInHeadNoscript(tok tokenizer.Token) bool {
	switch tok.Type {
	case tokenizer.DOCTYPE:
		tb.reportError(htmlerrors.MisplacedDoctype)
		return false
	case tokenizer.Character:
		if isAllWhitespace(tok.Data) {
			return tb.processInHead(tok)
		}
		tb.reportError(htmlerrors.DisallowedContentInNoscriptInHead)
		tb.popUntil("noscript")
		tb.mode = InHead
		return true
	case tokenizer.Comment:
		return tb.processInHead(tok)
	case tokenizer.StartTag:
		switch tok.Name {
		case "html":
			return tb.processInBody(tok)
		case "basefont", "bgsound", "link", "meta", "noframes", "style":
			return tb.processInHead(tok)
		case "noscript":
			tb.reportError(htmlerrors.NestedNoscriptInHead)
			return false
		case "head":
			return false
		default:
			tb.reportError(htmlerrors.DisallowedContentInNoscriptInHead)
			tb.popUntil("noscript")
			tb.mode = InHead
			return true
		}
	case tokenizer.EndTag:
		switch tok.Name {
		case "noscript":
			tb.popUntil("noscript")
			tb.mode = InHead
			return false
		case "br":
			tb.reportError(htmlerrors.DisallowedContentInNoscriptInHead)
			tb.popUntil("noscript")
			tb.mode = InHead
			return true
		default:
			tb.reportError(htmlerrors.EndTagWithoutMatchingOpenElement)
			return false
		}
	case tokenizer.EOF:
		tb.popUntil("noscript")
		tb.mode = InHead
		return true
	default:
		return false
	}
}

func (tb *TreeBuilder) processAfterHead(tok tokenizer.Token) bool {
	switch tok.Type {
	case tokenizer.Character:
		if isAllWhitespace(tok.Data) {
			tb.insertText(tok.Data)
			return false
		}
	case tokenizer.Comment:
		tb.insertComment(tok.Data)
		return false
	case tokenizer.DOCTYPE:
		tb.reportError(htmlerrors.MisplacedDoctype)
		return false
	case tokenizer.StartTag:
		switch tok.Name {
		case "html":
			return tb.processInBody(tok)
		case "body":
			tb.insertElement("body", tok.Attrs)
			tb.framesetOK = false
			tb.mode = InBody
			return false
		case "frameset":
			tb.insertElement("frameset", tok.Attrs)
			tb.mode = InFrameset
			return false
		case "base", "basefont", "bgsound", "link", "meta", "noframes", "script", "style", "template", "title":
			// The abandoned head child is reinserted by re-pushing the head
			// element, delegating to the in-head rules, and removing it again.
			tb.reportError(htmlerrors.AbandonedHeadElementChild)
			if tb.headElement == nil {
				break
			}
			tb.openElements = append(tb.openElements, tb.headElement)
			tb.processInHead(tok)
			tb.removeFromOpenElements(tb.headElement)
			return false
		case "head":
			tb.reportError(htmlerrors.MisplacedStartTagForHeadElement)
			return false
		}
	case tokenizer.EndTag:
		switch tok.Name {
		case "template":
			return tb.processInHead(tok)
		case "body", "html", "br":
			// Implicit <body>, reprocess below.
		default:
			tb.reportError(htmlerrors.EndTagWithoutMatchingOpenElement)
			return false
		}
	case tokenizer.EOF:
		tb.insertElement("body", nil)
		tb.mode = InBody
		return true
	}

	// Implicit <body>.
	tb.insertElement("body", nil)
	tb.framesetOK = false
	tb.mode = InBody
	return true
}

func (tb *TreeBuilder) processText(tok tokenizer.Token) bool {
	switch tok.Type {
	case tokenizer.Character:
		tb.insertText(tok.Data)
		return false
	case tokenizer.EndTag:
		el := tb.currentElement()
		tb.popCurrent()
		tb.mode = tb.originalMode
		tb.tokenizer.SetState(tokenizer.DataState)
		if tok.Name == "script" && el != nil && el.TagName == "script" {
			tb.pendingScript = el
			tb.logger.Debug("script element ready for host execution")
		}
		return false
	case tokenizer.EOF:
		tb.reportError(htmlerrors.EOFInElementThatCanContainOnlyText)
		tb.popCurrent()
		tb.mode = tb.originalMode
		tb.tokenizer.SetState(tokenizer.DataState)
		return true
	default:
		return false
	}
}

// parseGenericRawText switches the tokenizer to RAWTEXT (or script data)
// for the element just inserted and parks the mode machine in Text.
func (tb *TreeBuilder) parseGenericRawText(tok tokenizer.Token) {
	tb.insertElement(tok.Name, tok.Attrs)
	tb.originalMode = tb.mode
	tb.mode = Text
	tb.tokenizer.SetLastStartTag(tok.Name)
	if tok.Name == "script" {
		tb.tokenizer.SetState(tokenizer.ScriptDataState)
	} else {
		tb.tokenizer.SetState(tokenizer.RAWTEXTState)
	}
}

func (tb *TreeBuilder) parseGenericRCDATA(tok tokenizer.Token) {
	tb.insertElement(tok.Name, tok.Attrs)
	tb.originalMode = tb.mode
	tb.mode = Text
	tb.tokenizer.SetLastStartTag(tok.Name)
	tb.tokenizer.SetState(tokenizer.RCDATAState)
}

func (tb *TreeBuilder) processInBody(tok tokenizer.Token) bool {
	switch tok.Type {
	case tokenizer.Character:
		data := tok.Data
		if strings.ContainsRune(data, 0) {
			data = strings.ReplaceAll(data, "\x00", "")
		}
		if data == "" {
			return false
		}
		tb.reconstructActiveFormattingElements()
		if !isAllWhitespace(data) {
			tb.framesetOK = false
		}
		tb.insertText(data)
		return false
	case tokenizer.Comment:
		tb.insertComment(tok.Data)
		return false
	case tokenizer.DOCTYPE:
		tb.reportError(htmlerrors.MisplacedDoctype)
		return false
	case tokenizer.StartTag:
		return tb.inBodyStartTag(tok)
	case tokenizer.EndTag:
		return tb.inBodyEndTag(tok)
	case tokenizer.EOF:
		if len(tb.templateModes) > 0 {
			return tb.processInTemplate(tok)
		}
		if tb.hasUnexpectedOpenElements() {
			tb.reportError(htmlerrors.OpenElementsLeftAfterEOF)
			tb.logger.Warn("input ended with elements still open", "depth", len(tb.openElements))
		}
		return false
	default:
		return false
	}
}

// elementsAllowedOpenAtEOF may be open when the input ends without that
// being a parse error.
var elementsAllowedOpenAtEOF = map[string]bool{
	"dd": true, "dt": true, "li": true, "optgroup": true, "option": true,
	"p": true, "rb": true, "rp": true, "rt": true, "rtc": true,
	"tbody": true, "td": true, "tfoot": true, "th": true, "thead": true,
	"tr": true, "body": true, "html": true,
}

func (tb *TreeBuilder) hasUnexpectedOpenElements() bool {
	for _, el := range tb.openElements {
		if !elementsAllowedOpenAtEOF[el.TagName] {
			return true
		}
	}
	return false
}

func (tb *TreeBuilder) inBodyStartTag(tok tokenizer.Token) bool {
	// The misnomer <image> tag is treated as <img> rather than being
	// inserted under its literal name.
	if tok.Name == "image" {
		tok.Name = "img"
	}

	if inBodyBlockStartTags[tok.Name] {
		tb.closePIfInButtonScope()
		tb.insertElement(tok.Name, tok.Attrs)
		return false
	}

	switch tok.Name {
	case "html":
		if len(tb.openElements) > 0 && tb.openElements[0].TagName == "html" && len(tb.templateModes) == 0 {
			tb.addMissingAttributes(tb.openElements[0], tok.Attrs)
		}
		return false
	case "base", "basefont", "bgsound", "link", "meta":
		tb.insertElement(tok.Name, tok.Attrs)
		tb.popCurrent()
		return false
	case "title":
		tb.parseGenericRCDATA(tok)
		return false
	case "script", "style":
		tb.parseGenericRawText(tok)
		return false
	case "template":
		return tb.processInHead(tok)
	case "body":
		// If a body element already exists, merge attrs.
		if body := tb.document.Body(); body != nil && len(tb.templateModes) == 0 {
			tb.addMissingAttributes(body, tok.Attrs)
			tb.framesetOK = false
			return false
		}
		return false
	case "frameset":
		if !tb.framesetOK || len(tb.openElements) < 2 {
			return false
		}
		body := tb.document.Body()
		if body == nil {
			return false
		}
		if p := body.Parent(); p != nil {
			p.RemoveChild(body)
		}
		tb.popAllUpToHtmlElement()
		tb.insertElement("frameset", tok.Attrs)
		tb.mode = InFrameset
		return false
	case "h1", "h2", "h3", "h4", "h5", "h6":
		tb.closePIfInButtonScope()
		if cur := tb.currentElement(); cur != nil && isHeadingElement(cur.TagName) {
			tb.popCurrent()
		}
		tb.insertElement(tok.Name, tok.Attrs)
		return false
	case "pre", "listing":
		tb.closePIfInButtonScope()
		tb.insertElement(tok.Name, tok.Attrs)
		tb.skipNextNewLine = true
		tb.framesetOK = false
		return false
	case "form":
		if tb.formElement != nil && !tb.elementInStack("template") {
			return false
		}
		tb.closePIfInButtonScope()
		el := tb.insertElement("form", tok.Attrs)
		if !tb.elementInStack("template") {
			tb.formElement = el
		}
		return false
	case "li":
		tb.framesetOK = false
		for i := len(tb.openElements) - 1; i >= 0; i-- {
			node := tb.openElements[i]
			if node.Namespace == dom.NamespaceHTML && node.TagName == "li" {
				tb.generateImpliedEndTags("li")
				tb.popUntil("li")
				break
			}
			if isSpecialElement(node) && node.TagName != "address" && node.TagName != "div" && node.TagName != "p" {
				break
			}
		}
		tb.closePIfInButtonScope()
		tb.insertElement("li", tok.Attrs)
		return false
	case "dd", "dt":
		tb.framesetOK = false
		for i := len(tb.openElements) - 1; i >= 0; i-- {
			node := tb.openElements[i]
			if node.Namespace == dom.NamespaceHTML && (node.TagName == "dd" || node.TagName == "dt") {
				tb.generateImpliedEndTags(node.TagName)
				tb.popUntil(node.TagName)
				break
			}
			if isSpecialElement(node) && node.TagName != "address" && node.TagName != "div" && node.TagName != "p" {
				break
			}
		}
		tb.closePIfInButtonScope()
		tb.insertElement(tok.Name, tok.Attrs)
		return false
	case "plaintext":
		tb.closePIfInButtonScope()
		tb.insertElement("plaintext", tok.Attrs)
		tb.tokenizer.SetState(tokenizer.PLAINTEXTState)
		return false
	case "button":
		if tb.hasElementInScope("button", constants.DefaultScope) {
			tb.generateImpliedEndTags("")
			tb.popUntil("button")
		}
		tb.reconstructActiveFormattingElements()
		tb.insertElement("button", tok.Attrs)
		tb.framesetOK = false
		return false
	case "a":
		if tb.hasActiveFormattingEntry("a") {
			tb.adoptionAgency("a")
			tb.removeLastActiveFormattingByName("a")
			tb.removeLastOpenElementByName("a")
		}
		tb.reconstructActiveFormattingElements()
		node := tb.insertElement("a", tok.Attrs)
		tb.appendActiveFormattingEntry("a", tok.Attrs, node)
		return false
	case "applet", "marquee", "object":
		tb.reconstructActiveFormattingElements()
		tb.insertElement(tok.Name, tok.Attrs)
		tb.pushFormattingMarker()
		tb.framesetOK = false
		return false
	case "table":
		if tb.document.QuirksMode != dom.Quirks {
			tb.closePIfInButtonScope()
		}
		tb.insertElement("table", tok.Attrs)
		tb.framesetOK = false
		tb.mode = InTable
		return false
	case "area", "br", "embed", "img", "keygen", "wbr":
		tb.reconstructActiveFormattingElements()
		tb.insertElement(tok.Name, tok.Attrs)
		tb.popCurrent()
		tb.framesetOK = false
		return false
	case "input":
		tb.reconstructActiveFormattingElements()
		tb.insertElement("input", tok.Attrs)
		tb.popCurrent()
		if !isHiddenInput(tok.Attrs) {
			tb.framesetOK = false
		}
		return false
	case "param", "source", "track":
		tb.insertElement(tok.Name, tok.Attrs)
		tb.popCurrent()
		return false
	case "hr":
		tb.closePIfInButtonScope()
		tb.insertElement("hr", tok.Attrs)
		tb.popCurrent()
		tb.framesetOK = false
		return false
	case "textarea":
		tb.insertElement("textarea", tok.Attrs)
		tb.skipNextNewLine = true
		tb.originalMode = tb.mode
		tb.mode = Text
		tb.framesetOK = false
		tb.tokenizer.SetLastStartTag("textarea")
		tb.tokenizer.SetState(tokenizer.RCDATAState)
		return false
	case "xmp":
		tb.closePIfInButtonScope()
		tb.reconstructActiveFormattingElements()
		tb.framesetOK = false
		tb.parseGenericRawText(tok)
		return false
	case "iframe":
		tb.framesetOK = false
		tb.parseGenericRawText(tok)
		return false
	case "noembed":
		tb.parseGenericRawText(tok)
		return false
	case "noscript":
		if tb.scriptingEnabled {
			tb.parseGenericRawText(tok)
			return false
		}
		// Scripting disabled: parsed as ordinary markup below.
	case "select":
		tb.reconstructActiveFormattingElements()
		tb.insertElement("select", tok.Attrs)
		tb.framesetOK = false
		switch tb.mode {
		case InTable, InCaption, InTableBody, InRow, InCell:
			tb.mode = InSelectInTable
		default:
			tb.mode = InSelect
		}
		return false
	case "optgroup", "option":
		if cur := tb.currentElement(); cur != nil && cur.TagName == "option" {
			tb.popCurrent()
		}
		tb.reconstructActiveFormattingElements()
		tb.insertElement(tok.Name, tok.Attrs)
		return false
	case "rb", "rtc":
		if tb.hasElementInScope("ruby", constants.DefaultScope) {
			tb.generateImpliedEndTags("")
		}
		tb.insertElement(tok.Name, tok.Attrs)
		return false
	case "rt", "rp":
		if tb.hasElementInScope("ruby", constants.DefaultScope) {
			tb.generateImpliedEndTags("rtc")
		}
		tb.insertElement(tok.Name, tok.Attrs)
		return false
	case "svg":
		tb.reconstructActiveFormattingElements()
		tb.insertForeignElement("svg", dom.NamespaceSVG, adjustForeignAttributes(dom.NamespaceSVG, tok.Attrs), tok.SelfClosing)
		tb.framesetOK = false
		return false
	case "math":
		tb.reconstructActiveFormattingElements()
		tb.insertForeignElement("math", dom.NamespaceMathML, adjustForeignAttributes(dom.NamespaceMathML, tok.Attrs), tok.SelfClosing)
		tb.framesetOK = false
		return false
	case "caption", "col", "colgroup", "frame", "head", "tbody", "td", "tfoot", "th", "thead", "tr":
		tb.reportError(htmlerrors.MisplacedStartTagForTableElement)
		return false
	}

	if constants.FormattingElements[tok.Name] {
		if tok.Name == "nobr" && tb.hasElementInScope("nobr", constants.DefaultScope) {
			tb.adoptionAgency("nobr")
			tb.removeLastActiveFormattingByName("nobr")
			tb.removeLastOpenElementByName("nobr")
		}
		tb.reconstructActiveFormattingElements()
		if dup, ok := tb.findActiveFormattingDuplicate(tok.Name, tok.Attrs); ok {
			tb.removeFormattingEntry(dup)
		}
		node := tb.insertElement(tok.Name, tok.Attrs)
		tb.appendActiveFormattingEntry(tok.Name, tok.Attrs, node)
		return false
	}

	tb.reconstructActiveFormattingElements()
	tb.insertElement(tok.Name, tok.Attrs)
	if tok.SelfClosing || constants.VoidElements[tok.Name] {
		tb.popCurrent()
	}
	return false
}

func (tb *TreeBuilder) inBodyEndTag(tok tokenizer.Token) bool {
	if inBodyBlockEndTags[tok.Name] {
		if !tb.hasElementInScope(tok.Name, constants.DefaultScope) {
			tb.reportError(htmlerrors.EndTagWithoutMatchingOpenElement)
			return false
		}
		tb.generateImpliedEndTags("")
		if cur := tb.currentElement(); cur != nil && cur.TagName != tok.Name {
			tb.reportError(htmlerrors.ClosingOfElementWithOpenChildElements)
		}
		tb.popUntil(tok.Name)
		return false
	}

	switch tok.Name {
	case "body":
		if !tb.hasElementInScope("body", constants.DefaultScope) {
			tb.reportError(htmlerrors.EndTagWithoutMatchingOpenElement)
			return false
		}
		if tb.hasUnexpectedOpenElements() {
			tb.reportError(htmlerrors.ClosingOfElementWithOpenChildElements)
		}
		tb.patchBodyHTMLEnd()
		tb.mode = AfterBody
		return false
	case "html":
		if !tb.hasElementInScope("body", constants.DefaultScope) {
			tb.reportError(htmlerrors.EndTagWithoutMatchingOpenElement)
			return false
		}
		tb.patchBodyHTMLEnd()
		tb.mode = AfterBody
		return true
	case "p":
		if !tb.hasPElementInButtonScope() {
			tb.reportError(htmlerrors.EndTagWithoutMatchingOpenElement)
			tb.insertElement("p", nil)
		}
		tb.closePElement()
		return false
	case "li":
		if !tb.hasElementInListItemScope("li") {
			tb.reportError(htmlerrors.EndTagWithoutMatchingOpenElement)
			return false
		}
		tb.generateImpliedEndTags("li")
		tb.popUntil("li")
		return false
	case "dd", "dt":
		if !tb.hasElementInScope(tok.Name, constants.DefaultScope) {
			tb.reportError(htmlerrors.EndTagWithoutMatchingOpenElement)
			return false
		}
		tb.generateImpliedEndTags(tok.Name)
		tb.popUntil(tok.Name)
		return false
	case "h1", "h2", "h3", "h4", "h5", "h6":
		if !tb.hasNumberedHeaderInScope() {
			tb.reportError(htmlerrors.EndTagWithoutMatchingOpenElement)
			return false
		}
		tb.generateImpliedEndTags("")
		tb.popUntilNumberedHeaderPopped()
		return false
	case "form":
		if !tb.elementInStack("template") {
			node := tb.formElement
			tb.formElement = nil
			if node == nil || !tb.elementInOpenElements(node) {
				tb.reportError(htmlerrors.EndTagWithoutMatchingOpenElement)
				return false
			}
			tb.generateImpliedEndTags("")
			if tb.currentElement() != node {
				tb.reportError(htmlerrors.ClosingOfElementWithOpenChildElements)
			}
			tb.removeFromOpenElements(node)
			return false
		}
		if !tb.hasElementInScope("form", constants.DefaultScope) {
			tb.reportError(htmlerrors.EndTagWithoutMatchingOpenElement)
			return false
		}
		tb.generateImpliedEndTags("")
		tb.popUntil("form")
		return false
	case "br":
		// </br> acts as a <br> start tag.
		tb.reconstructActiveFormattingElements()
		tb.insertElement("br", nil)
		tb.popCurrent()
		tb.framesetOK = false
		return false
	case "applet", "marquee", "object":
		if !tb.hasElementInScope(tok.Name, constants.DefaultScope) {
			tb.reportError(htmlerrors.EndTagWithoutMatchingOpenElement)
			return false
		}
		tb.generateImpliedEndTags("")
		tb.popUntil(tok.Name)
		tb.clearActiveFormattingUpToMarker()
		return false
	case "template":
		return tb.processInHead(tok)
	}

	if constants.FormattingElements[tok.Name] {
		tb.adoptionAgency(tok.Name)
		return false
	}
	tb.anyOtherEndTag(tok.Name)
	return false
}

func (tb *TreeBuilder) processInTable(tok tokenizer.Token) bool {
	switch tok.Type {
	case tokenizer.Character:
		cur := tb.currentElement()
		if cur != nil && cur.Namespace == dom.NamespaceHTML && constants.TableFosterTargets[cur.TagName] {
			mode := tb.mode
			tb.tableTextOriginalMode = &mode
			tb.pendingTableText = tb.pendingTableText[:0]
			tb.mode = InTableText
			return true
		}
	case tokenizer.Comment:
		tb.insertComment(tok.Data)
		return false
	case tokenizer.DOCTYPE:
		tb.reportError(htmlerrors.MisplacedDoctype)
		return false
	case tokenizer.StartTag:
		switch tok.Name {
		case "caption":
			tb.clearBackToTableContext()
			tb.pushFormattingMarker()
			tb.insertElement("caption", tok.Attrs)
			tb.mode = InCaption
			return false
		case "colgroup":
			tb.clearBackToTableContext()
			tb.insertElement("colgroup", tok.Attrs)
			tb.mode = InColumnGroup
			return false
		case "col":
			tb.clearBackToTableContext()
			tb.insertElement("colgroup", nil)
			tb.mode = InColumnGroup
			return true
		case "tbody", "thead", "tfoot":
			tb.clearBackToTableContext()
			tb.insertElement(tok.Name, tok.Attrs)
			tb.mode = InTableBody
			return false
		case "td", "th", "tr":
			tb.clearBackToTableContext()
			tb.insertElement("tbody", nil)
			tb.mode = InTableBody
			return true
		case "table":
			if !tb.hasElementInTableScope("table") {
				return false
			}
			tb.popUntil("table")
			tb.resetInsertionModeAppropriately()
			return true
		case "style", "script", "template":
			return tb.processInHead(tok)
		case "input":
			if isHiddenInput(tok.Attrs) {
				tb.insertElement("input", tok.Attrs)
				tb.popCurrent()
				return false
			}
		case "form":
			if !tb.elementInStack("template") && tb.formElement == nil {
				el := tb.insertElement("form", tok.Attrs)
				tb.popCurrent()
				tb.formElement = el
			}
			return false
		}
		tb.reportError(htmlerrors.UnexpectedStartTagImpliesTableVoodoo)
		tb.withFosterParenting(func() bool {
			tb.processInBody(tok)
			return false
		})
		return false
	case tokenizer.EndTag:
		switch tok.Name {
		case "table":
			if !tb.hasElementInTableScope("table") {
				tb.reportError(htmlerrors.EndTagWithoutMatchingOpenElement)
				return false
			}
			tb.popUntil("table")
			tb.resetInsertionModeAppropriately()
			return false
		case "template":
			return tb.processInHead(tok)
		case "body", "caption", "col", "colgroup", "html", "tbody", "tfoot", "thead", "tr", "td", "th":
			tb.reportError(htmlerrors.EndTagWithoutMatchingOpenElement)
			return false
		}
		tb.reportError(htmlerrors.UnexpectedEndTagImpliesTableVoodoo)
		tb.withFosterParenting(func() bool {
			tb.processInBody(tok)
			return false
		})
		return false
	case tokenizer.EOF:
		return tb.processInBody(tok)
	}

	// Anything else: process using "in body" rules with foster parenting
	// enabled, without leaving "in table" as the insertion mode.
	tb.withFosterParenting(func() bool {
		tb.processInBody(tok)
		return false
	})
	return false
}

func (tb *TreeBuilder) processInTableText(tok tokenizer.Token) bool {
	switch tok.Type {
	case tokenizer.Character:
		data := tok.Data
		if strings.ContainsRune(data, 0) {
			data = strings.ReplaceAll(data, "\x00", "")
		}
		if data != "" {
			tb.pendingTableText = append(tb.pendingTableText, data)
		}
		return false
	default:
		// Flush pending table text.
		for _, s := range tb.pendingTableText {
			if isAllWhitespace(s) {
				tb.insertText(s)
			} else {
				tb.reportError(htmlerrors.NonSpaceCharacterInTableText)
				tb.framesetOK = false
				tb.insertFosterText(s)
			}
		}
		tb.pendingTableText = tb.pendingTableText[:0]
		if tb.tableTextOriginalMode != nil {
			tb.mode = *tb.tableTextOriginalMode
			tb.tableTextOriginalMode = nil
		} else {
			tb.mode = InTable
		}
		return true
	}
}

func (tb *TreeBuilder) processInCaption(tok tokenizer.Token) bool {
	switch tok.Type {
	case tokenizer.EndTag:
		switch tok.Name {
		case "caption":
			tb.closeCaptionElement()
			return false
		case "table":
			if !tb.hasElementInTableScope("caption") {
				return false
			}
			tb.closeCaptionElement()
			return true
		case "body", "col", "colgroup", "html", "tbody", "td", "tfoot", "th", "thead", "tr":
			tb.reportError(htmlerrors.EndTagWithoutMatchingOpenElement)
			return false
		}
	case tokenizer.StartTag:
		switch tok.Name {
		case "caption", "col", "colgroup", "tbody", "td", "tfoot", "th", "thead", "tr":
			if !tb.hasElementInTableScope("caption") {
				return false
			}
			tb.closeCaptionElement()
			return true
		}
	}
	return tb.processInBody(tok)
}

func (tb *TreeBuilder) processInColumnGroup(tok tokenizer.Token) bool {
	switch tok.Type {
	case tokenizer.Character:
		if isAllWhitespace(tok.Data) {
			tb.insertText(tok.Data)
			return false
		}
	case tokenizer.Comment:
		tb.insertComment(tok.Data)
		return false
	case tokenizer.DOCTYPE:
		tb.reportError(htmlerrors.MisplacedDoctype)
		return false
	case tokenizer.StartTag:
		switch tok.Name {
		case "html":
			return tb.processInBody(tok)
		case "col":
			tb.insertElement("col", tok.Attrs)
			tb.popCurrent()
			return false
		case "template":
			return tb.processInHead(tok)
		}
	case tokenizer.EndTag:
		switch tok.Name {
		case "colgroup":
			if cur := tb.currentElement(); cur == nil || cur.TagName != "colgroup" {
				tb.reportError(htmlerrors.EndTagWithoutMatchingOpenElement)
				return false
			}
			tb.popCurrent()
			tb.mode = InTable
			return false
		case "col":
			tb.reportError(htmlerrors.EndTagWithoutMatchingOpenElement)
			return false
		case "template":
			return tb.processInHead(tok)
		}
	case tokenizer.EOF:
		return tb.processInBody(tok)
	}

	// Close colgroup and reprocess in table.
	if cur := tb.currentElement(); cur == nil || cur.TagName != "colgroup" {
		return false
	}
	tb.popCurrent()
	tb.mode = InTable
	return true
}

func (tb *TreeBuilder) processInTableBody(tok tokenizer.Token) bool {
	switch tok.Type {
	case tokenizer.StartTag:
		switch tok.Name {
		case "tr":
			tb.clearBackToTableBodyContext()
			tb.insertElement("tr", tok.Attrs)
			tb.mode = InRow
			return false
		case "td", "th":
			tb.clearBackToTableBodyContext()
			tb.insertElement("tr", nil)
			tb.mode = InRow
			return true
		case "caption", "col", "colgroup", "tbody", "tfoot", "thead":
			if !tb.hasTableBodyContextInTableScope() {
				return false
			}
			tb.clearBackToTableBodyContext()
			tb.popCurrent()
			tb.mode = InTable
			return true
		}
	case tokenizer.EndTag:
		switch tok.Name {
		case "tbody", "thead", "tfoot":
			if !tb.hasElementInTableScope(tok.Name) {
				tb.reportError(htmlerrors.EndTagWithoutMatchingOpenElement)
				return false
			}
			tb.clearBackToTableBodyContext()
			tb.popCurrent()
			tb.mode = InTable
			return false
		case "table":
			if !tb.hasTableBodyContextInTableScope() {
				return false
			}
			tb.clearBackToTableBodyContext()
			tb.popCurrent()
			tb.mode = InTable
			return true
		case "body", "caption", "col", "colgroup", "html", "td", "th", "tr":
			tb.reportError(htmlerrors.EndTagWithoutMatchingOpenElement)
			return false
		}
	}
	return tb.processInTable(tok)
}

func (tb *TreeBuilder) processInRow(tok tokenizer.Token) bool {
	switch tok.Type {
	case tokenizer.StartTag:
		switch tok.Name {
		case "td", "th":
			tb.clearBackToTableRowContext()
			tb.insertElement(tok.Name, tok.Attrs)
			tb.mode = InCell
			tb.pushFormattingMarker()
			return false
		case "caption", "col", "colgroup", "tbody", "tfoot", "thead", "tr":
			if !tb.hasElementInTableScope("tr") {
				return false
			}
			tb.clearBackToTableRowContext()
			tb.popCurrent()
			tb.mode = InTableBody
			return true
		}
	case tokenizer.EndTag:
		switch tok.Name {
		case "tr":
			if !tb.hasElementInTableScope("tr") {
				tb.reportError(htmlerrors.EndTagWithoutMatchingOpenElement)
				return false
			}
			tb.clearBackToTableRowContext()
			tb.popCurrent()
			tb.mode = InTableBody
			return false
		case "table":
			if !tb.hasElementInTableScope("tr") {
				return false
			}
			tb.clearBackToTableRowContext()
			tb.popCurrent()
			tb.mode = InTableBody
			return true
		case "tbody", "thead", "tfoot":
			if !tb.hasElementInTableScope(tok.Name) || !tb.hasElementInTableScope("tr") {
				return false
			}
			tb.clearBackToTableRowContext()
			tb.popCurrent()
			tb.mode = InTableBody
			return true
		case "body", "caption", "col", "colgroup", "html", "td", "th":
			tb.reportError(htmlerrors.EndTagWithoutMatchingOpenElement)
			return false
		}
	}
	return tb.processInTable(tok)
}

func (tb *TreeBuilder) processInCell(tok tokenizer.Token) bool {
	switch tok.Type {
	case tokenizer.EndTag:
		switch tok.Name {
		case "td", "th":
			if !tb.hasElementInTableScope(tok.Name) {
				tb.reportError(htmlerrors.EndTagWithoutMatchingOpenElement)
				return false
			}
			tb.generateImpliedEndTags("")
			if cur := tb.currentElement(); cur != nil && cur.TagName != tok.Name {
				tb.reportError(htmlerrors.ClosingOfElementWithOpenChildElements)
			}
			tb.popUntil(tok.Name)
			tb.clearActiveFormattingUpToMarker()
			tb.mode = InRow
			return false
		case "body", "caption", "col", "colgroup", "html":
			tb.reportError(htmlerrors.EndTagWithoutMatchingOpenElement)
			return false
		case "table", "tbody", "tfoot", "thead", "tr":
			if !tb.hasElementInTableScope(tok.Name) {
				return false
			}
			if !tb.closeTableCell() {
				return false
			}
			return true
		}
	case tokenizer.StartTag:
		switch tok.Name {
		case "caption", "col", "colgroup", "tbody", "td", "tfoot", "th", "thead", "tr":
			if !tb.closeTableCell() {
				return false
			}
			return true
		}
	}
	return tb.processInBody(tok)
}

func (tb *TreeBuilder) popUntilAnyCell() {
	for len(tb.openElements) > 0 {
		name := tb.currentElement().TagName
		tb.popCurrent()
		if name == "td" || name == "th" {
			return
		}
	}
}

func (tb *TreeBuilder) processInSelect(tok tokenizer.Token) bool {
	switch tok.Type {
	case tokenizer.Character:
		data := tok.Data
		if strings.ContainsRune(data, 0) {
			data = strings.ReplaceAll(data, "\x00", "")
		}
		tb.insertText(data)
		return false
	case tokenizer.Comment:
		tb.insertComment(tok.Data)
		return false
	case tokenizer.DOCTYPE:
		tb.reportError(htmlerrors.MisplacedDoctype)
		return false
	case tokenizer.StartTag:
		switch tok.Name {
		case "html":
			return tb.processInBody(tok)
		case "option":
			// If current node is option, pop it.
			if tb.currentElement() != nil && tb.currentElement().TagName == "option" {
				tb.popCurrent()
			}
			tb.insertElement("option", tok.Attrs)
			return false
		case "optgroup":
			if tb.currentElement() != nil && tb.currentElement().TagName == "option" {
				tb.popCurrent()
			}
			if tb.currentElement() != nil && tb.currentElement().TagName == "optgroup" {
				tb.popCurrent()
			}
			tb.insertElement("optgroup", tok.Attrs)
			return false
		case "hr":
			if tb.currentElement() != nil && tb.currentElement().TagName == "option" {
				tb.popCurrent()
			}
			if tb.currentElement() != nil && tb.currentElement().TagName == "optgroup" {
				tb.popCurrent()
			}
			tb.insertElement("hr", tok.Attrs)
			tb.popCurrent()
			return false
		case "select":
			// A nested <select> acts as an end tag for the open one; the
			// token itself is dropped.
			tb.reportError(htmlerrors.UnexpectedTokenInSelect)
			if !tb.hasElementInSelectScope("select") {
				return false
			}
			tb.popUntil("select")
			tb.resetInsertionModeAppropriately()
			return false
		case "input", "keygen", "textarea":
			tb.reportError(htmlerrors.UnexpectedTokenInSelect)
			if !tb.hasElementInSelectScope("select") {
				return false
			}
			tb.popUntil("select")
			tb.resetInsertionModeAppropriately()
			return true
		case "script", "template":
			return tb.processInHead(tok)
		}
	case tokenizer.EndTag:
		switch tok.Name {
		case "option":
			if tb.currentElement() != nil && tb.currentElement().TagName == "option" {
				tb.popCurrent()
			} else {
				tb.reportError(htmlerrors.EndTagWithoutMatchingOpenElement)
			}
			return false
		case "optgroup":
			if cur := tb.currentElement(); cur != nil && cur.TagName == "option" && len(tb.openElements) > 1 &&
				tb.openElements[len(tb.openElements)-2].TagName == "optgroup" {
				tb.popCurrent()
			}
			if cur := tb.currentElement(); cur != nil && cur.TagName == "optgroup" {
				tb.popCurrent()
			} else {
				tb.reportError(htmlerrors.EndTagWithoutMatchingOpenElement)
			}
			return false
		case "select":
			if !tb.hasElementInSelectScope("select") {
				tb.reportError(htmlerrors.EndTagWithoutMatchingOpenElement)
				return false
			}
			tb.popUntil("select")
			tb.resetInsertionModeAppropriately()
			return false
		case "template":
			return tb.processInHead(tok)
		}
	case tokenizer.EOF:
		return tb.processInBody(tok)
	}
	return false
}

func (tb *TreeBuilder) processInSelectInTable(tok tokenizer.Token) bool {
	switch tok.Type {
	case tokenizer.StartTag:
		switch tok.Name {
		case "caption", "table", "tbody", "tfoot", "thead", "tr", "td", "th":
			tb.reportError(htmlerrors.UnexpectedTokenInSelect)
			tb.popUntil("select")
			tb.resetInsertionModeAppropriately()
			return true
		}
	case tokenizer.EndTag:
		switch tok.Name {
		case "caption", "table", "tbody", "tfoot", "thead", "tr", "td", "th":
			tb.reportError(htmlerrors.UnexpectedTokenInSelect)
			if !tb.hasElementInTableScope(tok.Name) {
				return false
			}
			tb.popUntil("select")
			tb.resetInsertionModeAppropriately()
			return true
		}
	}
	return tb.processInSelect(tok)
}

func (tb *TreeBuilder) processInTemplate(tok tokenizer.Token) bool {
	switch tok.Type {
	case tokenizer.Character, tokenizer.Comment, tokenizer.DOCTYPE:
		return tb.processInBody(tok)
	case tokenizer.StartTag:
		switch tok.Name {
		case "base", "basefont", "bgsound", "link", "meta", "noframes", "script", "style", "template", "title":
			return tb.processInHead(tok)
		case "caption", "colgroup", "tbody", "tfoot", "thead":
			tb.setTemplateMode(InTable)
			return true
		case "col":
			tb.setTemplateMode(InColumnGroup)
			return true
		case "tr":
			tb.setTemplateMode(InTableBody)
			return true
		case "td", "th":
			tb.setTemplateMode(InRow)
			return true
		default:
			tb.setTemplateMode(InBody)
			return true
		}
	case tokenizer.EndTag:
		if tok.Name == "template" {
			return tb.processInHead(tok)
		}
		tb.reportError(htmlerrors.EndTagWithoutMatchingOpenElement)
		return false
	case tokenizer.EOF:
		if !tb.elementInStack("template") {
			return false
		}
		tb.reportError(htmlerrors.OpenElementsLeftAfterEOF)
		tb.popUntil("template")
		tb.clearActiveFormattingUpToMarker()
		tb.popTemplateMode()
		tb.resetInsertionModeAppropriately()
		return true
	}
	return false
}

func (tb *TreeBuilder) processAfterBody(tok tokenizer.Token) bool {
	switch tok.Type {
	case tokenizer.Character:
		if isAllWhitespace(tok.Data) {
			return tb.processInBody(tok)
		}
	case tokenizer.Comment:
		// Comments after body attach to the <html> element.
		if len(tb.openElements) > 0 {
			tb.openElements[0].AppendChild(dom.NewComment(tok.Data))
		} else {
			tb.document.AppendChild(dom.NewComment(tok.Data))
		}
		return false
	case tokenizer.DOCTYPE:
		tb.reportError(htmlerrors.MisplacedDoctype)
		return false
	case tokenizer.StartTag:
		if tok.Name == "html" {
			return tb.processInBody(tok)
		}
	case tokenizer.EndTag:
		if tok.Name == "html" {
			if tb.fragmentContext != nil {
				tb.reportError(htmlerrors.EndTagWithoutMatchingOpenElement)
				return false
			}
			tb.mode = AfterAfterBody
			return false
		}
	case tokenizer.EOF:
		return false
	}
	tb.mode = InBody
	return true
}

func (tb *TreeBuilder) processInFrameset(tok tokenizer.Token) bool {
	switch tok.Type {
	case tokenizer.Character:
		if data := filterWhitespace(tok.Data); data != "" {
			tb.insertText(data)
		}
		return false
	case tokenizer.Comment:
		tb.insertComment(tok.Data)
		return false
	case tokenizer.DOCTYPE:
		tb.reportError(htmlerrors.MisplacedDoctype)
		return false
	case tokenizer.StartTag:
		switch tok.Name {
		case "html":
			return tb.processInBody(tok)
		case "frameset":
			tb.insertElement("frameset", tok.Attrs)
			return false
		case "frame":
			tb.insertElement("frame", tok.Attrs)
			tb.popCurrent()
			return false
		case "noframes":
			return tb.processInHead(tok)
		}
		return false
	case tokenizer.EndTag:
		if tok.Name == "frameset" {
			if cur := tb.currentElement(); cur != nil && cur.TagName == "html" {
				tb.reportError(htmlerrors.EndTagWithoutMatchingOpenElement)
				return false
			}
			tb.popCurrent()
			if cur := tb.currentElement(); cur != nil && cur.TagName != "frameset" {
				tb.mode = AfterFrameset
			}
			return false
		}
		return false
	case tokenizer.EOF:
		if cur := tb.currentElement(); cur != nil && cur.TagName != "html" {
			tb.reportError(htmlerrors.OpenElementsLeftAfterEOF)
		}
		return false
	}
	return false
}

func (tb *TreeBuilder) processAfterFrameset(tok tokenizer.Token) bool {
	switch tok.Type {
	case tokenizer.Character:
		if data := filterWhitespace(tok.Data); data != "" {
			tb.insertText(data)
		}
		return false
	case tokenizer.Comment:
		tb.insertComment(tok.Data)
		return false
	case tokenizer.StartTag:
		switch tok.Name {
		case "html":
			return tb.processInBody(tok)
		case "noframes":
			return tb.processInHead(tok)
		}
		return false
	case tokenizer.EndTag:
		if tok.Name == "html" {
			tb.mode = AfterAfterFrameset
			return false
		}
		return false
	case tokenizer.EOF:
		return false
	}
	return false
}

func (tb *TreeBuilder) processAfterAfterBody(tok tokenizer.Token) bool {
	switch tok.Type {
	case tokenizer.Comment:
		tb.document.AppendChild(dom.NewComment(tok.Data))
		return false
	case tokenizer.DOCTYPE:
		return tb.processInBody(tok)
	case tokenizer.Character:
		if isAllWhitespace(tok.Data) {
			return tb.processInBody(tok)
		}
	case tokenizer.StartTag:
		if tok.Name == "html" {
			return tb.processInBody(tok)
		}
	case tokenizer.EOF:
		return false
	}
	tb.mode = InBody
	return true
}

func (tb *TreeBuilder) processAfterAfterFrameset(tok tokenizer.Token) bool {
	switch tok.Type {
	case tokenizer.Comment:
		tb.document.AppendChild(dom.NewComment(tok.Data))
		return false
	case tokenizer.DOCTYPE:
		return tb.processInBody(tok)
	case tokenizer.Character:
		if data := filterWhitespace(tok.Data); data != "" {
			return tb.processInBody(tokenizer.Token{Type: tokenizer.Character, Data: data})
		}
		return false
	case tokenizer.StartTag:
		switch tok.Name {
		case "html":
			return tb.processInBody(tok)
		case "noframes":
			return tb.processInHead(tok)
		}
		return false
	case tokenizer.EOF:
		return false
	}
	return false
}
