package treebuilder

import (
	"strings"

	"github.com/jbowes-oss/htmltree/dom"
	"github.com/jbowes-oss/htmltree/internal/constants"
	"github.com/jbowes-oss/htmltree/tokenizer"
)

// TreeBuilder drives the WHATWG HTML5 tree construction stage: it consumes
// tokens from the tokenizer and mutates a dom.Document one insertion mode at
// a time, maintaining the stack of open elements and the list of active
// formatting elements as it goes.
type TreeBuilder struct {
	document *dom.Document

	openElements []*dom.Element

	mode         InsertionMode
	originalMode InsertionMode

	headElement *dom.Element

	activeFormatting formattingList

	// Template insertion modes stack.
	templateModes []InsertionMode

	// Table parsing support.
	pendingTableText      []string
	tableTextOriginalMode *InsertionMode
	framesetOK            bool
	fosterParenting       bool

	// skipNextNewLine suppresses a single leading U+000A after <pre>,
	// <listing>, and <textarea>, per the tree construction algorithm.
	skipNextNewLine bool

	// formElement is the form element pointer (§13.2.4.4): the last open
	// <form> outside any template, consulted by <form>/</form> handling.
	formElement *dom.Element

	// pendingScript is set when a </script> end tag pops a script element
	// off the stack, so a host script handler can run it before parsing
	// continues. Cleared by TakePendingScript.
	pendingScript *dom.Element

	fragmentContext *FragmentContext
	fragmentRoot    *dom.Element
	fragmentElement *dom.Element

	tokenizer *tokenizer.Tokenizer

	// forceHTMLMode is set by processForeignContent when it encounters a token
	// that should be reprocessed using normal HTML insertion mode rules rather
	// than foreign content rules. This prevents infinite loops when foreign
	// content contains tokens that trigger breakout to HTML mode.
	forceHTMLMode bool

	iframeSrcdoc bool

	// onPush/onPop are optional observer hooks fired whenever an element is
	// pushed onto or popped from openElements (the stack's "observer
	// hooks"). Installed by SetLocationTracking; nil by default.
	onPush func(*dom.Element)
	onPop  func(*dom.Element)

	// onText is an optional observer hook fired whenever a text node is
	// inserted, used by location tracking (see location.go).
	onText func(*dom.Text)

	// currentToken is the token ProcessToken is currently dispatching,
	// including across re-dispatch within the same call (foreign-content
	// breakout, insertion-mode reprocessing). Location tracking consults it
	// to tell a matching end tag from an implied close.
	currentToken tokenizer.Token

	// locationTracking enables source-location bookkeeping (see location.go).
	locationTracking bool
	loc              *locationTracker

	scriptingEnabled bool
	errorSink        func(code string, line, col int)
	logger           Logger
}

// Logger is the diagnostic logging interface used for recovery-path
// messages (foster parenting, adoption agency giving up after its
// iteration limit). Satisfied by github.com/hashicorp/go-hclog.Logger.
type Logger interface {
	Debug(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
}

type noopLogger struct{}

func (noopLogger) Debug(msg string, args ...interface{}) {}
func (noopLogger) Warn(msg string, args ...interface{})  {}

// SetLogger installs a diagnostic logger. Passing nil restores the
// default no-op logger.
func (tb *TreeBuilder) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	tb.logger = logger
}

// New creates a new tree builder for full document parsing.
func New(tok *tokenizer.Tokenizer) *TreeBuilder {
	return &TreeBuilder{
		document:         dom.NewDocument(),
		mode:             Initial,
		originalMode:     Initial,
		openElements:     nil,
		activeFormatting: nil,
		templateModes:    nil,
		pendingTableText: nil,
		framesetOK:       true,
		fragmentRoot:     nil,
		fragmentContext:  nil,
		tokenizer:        tok,
		scriptingEnabled: true,
		logger:           noopLogger{},
	}
}

// NewFragment creates a new tree builder for fragment parsing.
func NewFragment(tok *tokenizer.Tokenizer, ctx *FragmentContext) *TreeBuilder {
	tb := &TreeBuilder{
		document:         dom.NewDocument(),
		mode:             Initial,
		originalMode:     Initial,
		openElements:     nil,
		activeFormatting: nil,
		templateModes:    nil,
		pendingTableText: nil,
		framesetOK:       false,
		fragmentContext:  ctx,
		tokenizer:        tok,
		scriptingEnabled: true,
		logger:           noopLogger{},
	}

	// Minimal fragment setup: create an <html> root and a context element.
	html := dom.NewElement("html")
	tb.document.AppendChild(html)
	tb.openElements = append(tb.openElements, html)
	tb.fragmentRoot = html

	if ctx != nil && ctx.TagName != "" {
		contextEl := dom.NewElement(ctx.TagName)
		switch ctx.Namespace {
		case "svg":
			contextEl = dom.NewElementNS(ctx.TagName, dom.NamespaceSVG)
		case "mathml":
			contextEl = dom.NewElementNS(ctx.TagName, dom.NamespaceMathML)
		}
		html.AppendChild(contextEl)
		tb.openElements = append(tb.openElements, contextEl)
		tb.fragmentElement = contextEl

		// Set the initial insertion mode based on the context element, per HTML5 fragment parsing.
		tag := contextEl.TagName
		if ctx.Namespace != "" && ctx.Namespace != "html" {
			tb.mode = InBody
		} else {
			switch tag {
			case "html":
				tb.mode = BeforeHead
			case "tbody", "thead", "tfoot":
				tb.mode = InTableBody
			case "tr":
				tb.mode = InRow
			case "td", "th":
				tb.mode = InCell
			case "caption":
				tb.mode = InCaption
			case "colgroup":
				tb.mode = InColumnGroup
			case "table":
				tb.mode = InTable
			case "select":
				tb.mode = InSelect
			case "template":
				tb.mode = InTemplate
				tb.templateModes = []InsertionMode{InTemplate}
			default:
				tb.mode = InBody
			}
		}
		tb.originalMode = tb.mode

		// Adjust tokenizer state based on the fragment context element, per HTML5 fragment parsing.
		// This is necessary because the fragment setup does not emit the context start tag token.
		if ctx.Namespace == "" || ctx.Namespace == "html" {
			switch tag {
			case "title", "textarea":
				tb.tokenizer.SetLastStartTag(tag)
				tb.tokenizer.SetState(tokenizer.RCDATAState)
			case "style", "xmp", "iframe", "noembed", "noframes":
				tb.tokenizer.SetLastStartTag(tag)
				tb.tokenizer.SetState(tokenizer.RAWTEXTState)
			case "script":
				tb.tokenizer.SetLastStartTag(tag)
				tb.tokenizer.SetState(tokenizer.ScriptDataState)
			case "plaintext":
				tb.tokenizer.SetLastStartTag(tag)
				tb.tokenizer.SetState(tokenizer.PLAINTEXTState)
			}
		}
	}

	return tb
}

// SetIframeSrcdoc toggles iframe srcdoc parsing behavior (affects quirks mode decisions).
func (tb *TreeBuilder) SetIframeSrcdoc(enabled bool) {
	tb.iframeSrcdoc = enabled
}

// SetScriptingEnabled toggles the scripting flag, which affects only
// <noscript> handling in IN_HEAD/IN_BODY.
func (tb *TreeBuilder) SetScriptingEnabled(enabled bool) {
	tb.scriptingEnabled = enabled
}

// SetLocationTracking enables source-location bookkeeping.
func (tb *TreeBuilder) SetLocationTracking(enabled bool) {
	tb.locationTracking = enabled
	if enabled && tb.loc == nil {
		tb.loc = newLocationTracker()
		tb.loc.tb = tb
		tb.onPush = tb.loc.onPush
		tb.onPop = tb.loc.onPop
		tb.onText = tb.loc.onText
	}
}

// SetErrorSink installs a callback invoked for every parse error the tree
// construction stage itself reports (as opposed to tokenizer-level errors,
// which are collected separately and merged by the top-level Parse/ParseBytes
// entry points). Installing a sink implicitly enables location tracking so
// error positions are reportable.
func (tb *TreeBuilder) SetErrorSink(sink func(code string, line, col int)) {
	tb.errorSink = sink
	if sink != nil {
		tb.SetLocationTracking(true)
	}
}

// reportError forwards a tree-construction parse error to the configured
// sink, if any. The position reported is the parser's best-effort current
// position: a single line/column, with no end position.
func (tb *TreeBuilder) reportError(code string) {
	if tb.errorSink == nil {
		return
	}
	line, col := 0, 0
	if tb.tokenizer != nil {
		line, col = tb.tokenizer.Position()
	}
	tb.errorSink(code, line, col)
}

// Document returns the constructed document.
func (tb *TreeBuilder) Document() *dom.Document {
	return tb.document
}

// AllowCDATA reports whether the tokenizer should honor CDATA sections at
// the current tree-construction position: only inside foreign (SVG/MathML)
// content that is not an integration point handing parsing back to HTML.
func (tb *TreeBuilder) AllowCDATA() bool {
	current := tb.currentElement()
	if current == nil || current.Namespace == dom.NamespaceHTML {
		return false
	}
	if tb.isHTMLIntegrationPoint(current) || tb.isMathMLTextIntegrationPoint(current) {
		return false
	}
	return true
}

// PendingScript returns the script element awaiting host execution, or nil.
func (tb *TreeBuilder) PendingScript() *dom.Element {
	return tb.pendingScript
}

// TakePendingScript returns the script element awaiting host execution and
// clears the pending pointer so the parsing loop can resume.
func (tb *TreeBuilder) TakePendingScript() *dom.Element {
	el := tb.pendingScript
	tb.pendingScript = nil
	return el
}

// FragmentNodes returns the fragment's top-level element children.
func (tb *TreeBuilder) FragmentNodes() []*dom.Element {
	root := tb.fragmentElement
	if root == nil {
		root = tb.fragmentRoot
	}
	if root == nil {
		return nil
	}
	children := root.Children()
	if root.TagName == "template" && root.Namespace == dom.NamespaceHTML && root.TemplateContent != nil {
		children = root.TemplateContent.Children()
	}
	var out []*dom.Element
	for _, child := range children {
		if el, ok := child.(*dom.Element); ok {
			out = append(out, el)
		}
	}
	return out
}

// ProcessToken consumes a tokenizer token and updates the DOM tree.
func (tb *TreeBuilder) ProcessToken(tok tokenizer.Token) {
	tb.currentToken = tok
	if tok.Type == tokenizer.EOF && tb.loc != nil {
		tb.loc.onEOF(tok)
	}
	// A <pre>, <listing>, or <textarea> start tag suppresses one immediately
	// following U+000A.
	if tb.skipNextNewLine {
		tb.skipNextNewLine = false
		if tok.Type == tokenizer.Character && strings.HasPrefix(tok.Data, "\n") {
			tok.Data = tok.Data[1:]
			if tok.Data == "" {
				return
			}
		}
	}
	tb.dispatch(tok)
	if tok.Type == tokenizer.EOF {
		tb.populateSelectedContent(tb.document)
	}
}

// dispatch routes tok to foreign-content rules or the current insertion
// mode's handler, looping while handlers request reprocessing. Handlers
// that need to reprocess a modified token call dispatch directly.
func (tb *TreeBuilder) dispatch(tok tokenizer.Token) {
	for {
		// Check if we should use foreign content rules.
		// forceHTMLMode bypasses this check when reprocessing a token that
		// triggered breakout from foreign content.
		if !tb.forceHTMLMode && tb.shouldUseForeignContent(tok) {
			reprocess := tb.processForeignContent(tok)
			if !reprocess {
				return
			}
			continue
		}
		tb.forceHTMLMode = false
		var reprocess bool
		switch tb.mode {
		case Initial:
			reprocess = tb.processInitial(tok)
		case BeforeHTML:
			reprocess = tb.processBeforeHTML(tok)
		case BeforeHead:
			reprocess = tb.processBeforeHead(tok)
		case InHead:
			reprocess = tb.processInHead(tok)
		case InHeadNoscript:
			reprocess = tb.processInHeadNoscript(tok)
		case AfterHead:
			reprocess = tb.processAfterHead(tok)
		case Text:
			reprocess = tb.processText(tok)
		case InBody:
			reprocess = tb.processInBody(tok)
		case InTable:
			reprocess = tb.processInTable(tok)
		case InTableText:
			reprocess = tb.processInTableText(tok)
		case InCaption:
			reprocess = tb.processInCaption(tok)
		case InColumnGroup:
			reprocess = tb.processInColumnGroup(tok)
		case InTableBody:
			reprocess = tb.processInTableBody(tok)
		case InRow:
			reprocess = tb.processInRow(tok)
		case InCell:
			reprocess = tb.processInCell(tok)
		case InSelect:
			reprocess = tb.processInSelect(tok)
		case InSelectInTable:
			reprocess = tb.processInSelectInTable(tok)
		case InTemplate:
			reprocess = tb.processInTemplate(tok)
		case AfterBody:
			reprocess = tb.processAfterBody(tok)
		case InFrameset:
			reprocess = tb.processInFrameset(tok)
		case AfterFrameset:
			reprocess = tb.processAfterFrameset(tok)
		case AfterAfterBody:
			reprocess = tb.processAfterAfterBody(tok)
		case AfterAfterFrameset:
			reprocess = tb.processAfterAfterFrameset(tok)
		default:
			// Fallback: treat as InBody for now.
			reprocess = tb.processInBody(tok)
		}
		if !reprocess {
			return
		}
	}
}

func (tb *TreeBuilder) currentNode() dom.Node {
	if len(tb.openElements) == 0 {
		return tb.document
	}
	return tb.openElements[len(tb.openElements)-1]
}

func (tb *TreeBuilder) currentElement() *dom.Element {
	if len(tb.openElements) == 0 {
		return nil
	}
	return tb.openElements[len(tb.openElements)-1]
}

func (tb *TreeBuilder) insertComment(data string) {
	tb.insertNode(dom.NewComment(data), nil)
}

func (tb *TreeBuilder) insertText(data string) {
	if data == "" {
		return
	}
	parent, before := tb.appropriateInsertionLocation()
	text := dom.NewText(data)
	tb.insertNode(text, &insertionLocation{parent: parent, before: before})
	tb.fireOnText(text)
}

func (tb *TreeBuilder) insertElement(name string, attrs []tokenizer.Attr) *dom.Element {
	el := dom.NewElement(name)
	if el.TagName == "template" && el.Namespace == dom.NamespaceHTML && el.TemplateContent == nil {
		el.TemplateContent = dom.NewDocumentFragment()
	}
	for _, a := range attrs {
		if a.Namespace != "" {
			// HTML namespace attributes are handled later (foreign content).
			el.Attributes.SetNS(a.Namespace, a.Name, a.Value)
			continue
		}
		el.SetAttr(a.Name, a.Value)
		if tb.locationTracking {
			el.Attributes.SetPosition("", a.Name, a.Line, a.Column, a.EndLine, a.EndColumn)
		}
	}
	tb.insertNode(el, nil)
	tb.openElements = append(tb.openElements, el)
	tb.fireOnPush(el)
	return el
}

func (tb *TreeBuilder) addMissingAttributes(el *dom.Element, attrs []tokenizer.Attr) {
	if el == nil {
		return
	}
	if len(tb.templateModes) > 0 {
		return
	}
	for _, a := range attrs {
		if a.Namespace != "" {
			if !el.Attributes.HasNS(a.Namespace, a.Name) {
				el.Attributes.SetNS(a.Namespace, a.Name, a.Value)
			}
			continue
		}
		if !el.HasAttr(a.Name) {
			el.SetAttr(a.Name, a.Value)
		}
	}
}

func (tb *TreeBuilder) popCurrent() *dom.Element {
	if len(tb.openElements) == 0 {
		return nil
	}
	el := tb.openElements[len(tb.openElements)-1]
	tb.openElements = tb.openElements[:len(tb.openElements)-1]
	tb.fireOnPop(el)
	return el
}

func (tb *TreeBuilder) popUntil(name string) {
	for len(tb.openElements) > 0 {
		el := tb.openElements[len(tb.openElements)-1]
		tb.openElements = tb.openElements[:len(tb.openElements)-1]
		tb.fireOnPop(el)
		if el.TagName == name {
			return
		}
	}
}

func (tb *TreeBuilder) elementInStack(name string) bool {
	for i := len(tb.openElements) - 1; i >= 0; i-- {
		if tb.openElements[i].TagName == name {
			return true
		}
	}
	return false
}

func isAllWhitespace(s string) bool {
	for _, r := range s {
		switch r {
		case '\t', '\n', '\f', '\r', ' ':
			continue
		default:
			return false
		}
	}
	return true
}

func ptrToString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

type insertionLocation struct {
	parent dom.Node
	before dom.Node
}

func (tb *TreeBuilder) withFosterParenting(fn func() bool) bool {
	prev := tb.fosterParenting
	tb.fosterParenting = true
	defer func() { tb.fosterParenting = prev }()
	return fn()
}

func (tb *TreeBuilder) appropriateInsertionLocation() (dom.Node, dom.Node) {
	if current := tb.currentElement(); current != nil && current.Namespace == dom.NamespaceHTML && current.TagName == "template" {
		if current.TemplateContent == nil {
			current.TemplateContent = dom.NewDocumentFragment()
		}
		return current.TemplateContent, nil
	}
	if !tb.fosterParenting || !shouldFosterForNode(tb.currentElement()) {
		return tb.currentNode(), nil
	}
	return tb.fosterInsertionLocation()
}

func shouldFosterForNode(el *dom.Element) bool {
	if el == nil || el.Namespace != dom.NamespaceHTML {
		return false
	}
	return constants.TableFosterTargets[el.TagName]
}

func (tb *TreeBuilder) shouldFosterParenting(target *dom.Element, forTag string, isText bool) bool {
	if !tb.fosterParenting {
		return false
	}
	if target == nil || target.Namespace != dom.NamespaceHTML {
		return false
	}
	if !constants.TableFosterTargets[target.TagName] {
		return false
	}
	if isText {
		return true
	}
	if forTag != "" && constants.TableAllowedChildren[forTag] {
		return false
	}
	return true
}

func (tb *TreeBuilder) fosterInsertionLocation() (dom.Node, dom.Node) {
	tableEl, tableIndex := tb.lastTableElement()
	templateEl, templateIndex := tb.lastTemplateElement()
	if templateEl != nil && (tableEl == nil || templateIndex > tableIndex) {
		if templateEl.TemplateContent == nil {
			templateEl.TemplateContent = dom.NewDocumentFragment()
		}
		return templateEl.TemplateContent, nil
	}
	if tableEl == nil {
		return tb.currentNode(), nil
	}
	if p := tableEl.Parent(); p != nil {
		return p, tableEl
	}

	// If the table element has no parent, insert into the element immediately above it in the stack.
	if tableIndex > 0 {
		return tb.openElements[tableIndex-1], nil
	}
	return tb.document, nil
}

func (tb *TreeBuilder) lastTableElement() (*dom.Element, int) {
	for i := len(tb.openElements) - 1; i >= 0; i-- {
		el := tb.openElements[i]
		if el != nil && el.Namespace == dom.NamespaceHTML && el.TagName == "table" {
			return el, i
		}
	}
	return nil, -1
}

func (tb *TreeBuilder) lastTemplateElement() (*dom.Element, int) {
	for i := len(tb.openElements) - 1; i >= 0; i-- {
		el := tb.openElements[i]
		if el != nil && el.Namespace == dom.NamespaceHTML && el.TagName == "template" {
			return el, i
		}
	}
	return nil, -1
}

func (tb *TreeBuilder) insertNode(node dom.Node, loc *insertionLocation) {
	var parent dom.Node
	var before dom.Node
	if loc != nil && loc.parent != nil {
		parent = loc.parent
		before = loc.before
	} else {
		parent, before = tb.appropriateInsertionLocation()
	}

	if before == nil {
		// Append with text-node coalescing.
		children := parent.Children()
		if txt, ok := node.(*dom.Text); ok && len(children) > 0 {
			if last, ok := children[len(children)-1].(*dom.Text); ok {
				last.Data += txt.Data
				return
			}
		}
		parent.AppendChild(node)
		return
	}

	// InsertBefore with basic text-node coalescing around the insertion point.
	if txt, ok := node.(*dom.Text); ok {
		if mergeTarget := siblingTextBefore(parent, before); mergeTarget != nil {
			mergeTarget.Data += txt.Data
			return
		}
		if beforeText, ok := before.(*dom.Text); ok {
			beforeText.Data = txt.Data + beforeText.Data
			return
		}
	}
	parent.InsertBefore(node, before)
}

func siblingTextBefore(parent dom.Node, ref dom.Node) *dom.Text {
	children := parent.Children()
	for i := range children {
		if children[i] == ref {
			if i > 0 {
				if t, ok := children[i-1].(*dom.Text); ok {
					return t
				}
			}
			return nil
		}
	}
	return nil
}
