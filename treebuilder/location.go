package treebuilder

import (
	"github.com/jbowes-oss/htmltree/dom"
	"github.com/jbowes-oss/htmltree/tokenizer"
)

// locationTracker implements the parser's source-location
// bookkeeping: element and text-node spans, the matching end tag's own span
// (kept distinct from the element's overall span), and end-location
// patching for whatever is still open at EOF — including <body> and the
// root <html>, which HTML5's "stop parsing" never pops. Installed by
// TreeBuilder.SetLocationTracking; see builder.go.
//
// Per-attribute ranges are stamped directly from tokenizer.Attr into
// dom.Attribute by insertElement (builder.go), not here; onPush only copies
// the element's own start position.
type locationTracker struct {
	tb *TreeBuilder
}

func newLocationTracker() *locationTracker {
	return &locationTracker{}
}

// onPush stamps the element's start position from the token that opened it.
func (lt *locationTracker) onPush(el *dom.Element) {
	loc := el.Location()
	loc.Start = lt.tokenStart()
	el.SetLocation(loc)
}

// onPop stamps the element's end position. When the popping token is the
// element's own matching end tag, the end tag's full span is additionally
// recorded in EndTag; an implied close (omitted end tag, auto-close, parse
// error recovery, or the adoption agency's reshuffling) only gets the
// zero-length position of whatever triggered the pop.
func (lt *locationTracker) onPop(el *dom.Element) {
	loc := el.Location()
	pos := lt.position()
	loc.End = pos

	if lt.tb != nil {
		tok := lt.tb.currentToken
		if tok.Type == tokenizer.EndTag && tok.Name == el.TagName {
			loc.EndTag = &dom.SourceLocation{
				Start: dom.Position{Line: tok.Line, Column: tok.Column},
				End:   pos,
			}
		}
	}
	el.SetLocation(loc)
}

// onText stamps a text node's span from the Character token that produced
// it. Buffered-and-later-flushed text (pending table text, foster-parented
// text) loses precision here since tb.currentToken may have moved on by the
// time the buffer flushes; this is a deliberate, documented approximation
// rather than threading the originating token through every insertText call
// site.
func (lt *locationTracker) onText(t *dom.Text) {
	loc := t.Location()
	loc.Start = lt.tokenStart()
	loc.End = lt.position()
	t.SetLocation(loc)
}

// onEOF patches the end location of every element still open when parsing
// stops, without popping them — <html>, <body>, and any element left open
// by a truncated document are never popped by the tree construction
// algorithm itself, so onPop never runs for them.
func (lt *locationTracker) onEOF(tok tokenizer.Token) {
	if lt.tb == nil {
		return
	}
	pos := dom.Position{Line: tok.Line, Column: tok.Column}
	for _, el := range lt.tb.openElements {
		loc := el.Location()
		loc.End = pos
		el.SetLocation(loc)
	}
}

// patchBodyHTMLEnd stamps end positions onto <body> and the root <html>
// when the parser transitions to "after body": neither element is ever
// popped, so onPop would otherwise never see them, and waiting for EOF
// would blame trailing comments and whitespace on them.
func (tb *TreeBuilder) patchBodyHTMLEnd() {
	if tb.loc == nil {
		return
	}
	pos := tb.loc.position()
	for _, el := range tb.openElements {
		if el.Namespace != dom.NamespaceHTML {
			continue
		}
		if el.TagName == "body" || el.TagName == "html" {
			loc := el.Location()
			loc.End = pos
			el.SetLocation(loc)
		}
	}
}

// tokenStart returns the position the current token began at, falling back
// to the tokenizer's running position if no token start was recorded.
func (lt *locationTracker) tokenStart() dom.Position {
	if lt.tb == nil {
		return dom.Position{}
	}
	if tok := lt.tb.currentToken; tok.Line != 0 || tok.Column != 0 {
		return dom.Position{Line: tok.Line, Column: tok.Column}
	}
	return lt.position()
}

func (lt *locationTracker) position() dom.Position {
	if lt.tb == nil || lt.tb.tokenizer == nil {
		return dom.Position{}
	}
	line, col := lt.tb.tokenizer.Position()
	return dom.Position{Line: line, Column: col}
}
