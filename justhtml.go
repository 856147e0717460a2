// Package htmltree provides a pure Go HTML5 parser implementing the tree
// construction stage of the WHATWG HTML5 specification.
//
// htmltree handles malformed HTML the way browsers do: every token the
// tokenizer produces is fed through the insertion-mode state machine,
// including foster parenting, the adoption agency algorithm, and foreign
// content (MathML/SVG) handling.
//
// # Basic Usage
//
//	doc, err := htmltree.Parse("<html><body><p>Hello!</p></body></html>")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	// Query with CSS selectors
//	for _, p := range doc.Query("p") {
//		fmt.Println(p.Text())
//	}
//
// # Features
//
//   - WHATWG tree-construction stage (23 insertion modes)
//   - CSS selector support
//   - Streaming API for memory-efficient processing
//   - Encoding detection per HTML5 spec
//   - Fragment parsing for innerHTML-style use cases
//   - Optional source-location bookkeeping and parse-error reporting
//
// For more information, see https://github.com/jbowes-oss/htmltree
package htmltree

import (
	"github.com/jbowes-oss/htmltree/dom"
	"github.com/jbowes-oss/htmltree/encoding"
	htmlerrors "github.com/jbowes-oss/htmltree/errors"
	"github.com/jbowes-oss/htmltree/tokenizer"
	"github.com/jbowes-oss/htmltree/treebuilder"
)

// Version is the current version of htmltree.
const Version = "0.1.0-dev"

// Parse parses an HTML string and returns a Document.
//
// The parser handles malformed HTML according to the WHATWG HTML5 specification,
// ensuring the same behavior as web browsers.
//
// Example:
//
//	doc, err := htmltree.Parse("<html><body><p>Hello!</p></body></html>")
//	if err != nil {
//		// err contains parse errors if WithCollectErrors() was used
//	}
func Parse(html string, opts ...Option) (*dom.Document, error) {
	cfg := newConfig(opts...)
	return parse(html, cfg)
}

// ParseBytes parses HTML from a byte slice with automatic encoding detection.
//
// The encoding is chosen in this order:
//  1. The encoding given via WithEncoding, if it names a known encoding
//     (it takes precedence over a BOM)
//  2. BOM (Byte Order Mark)
//  3. <meta charset> or <meta http-equiv="Content-Type">
//  4. Fallback to windows-1252
//
// Example:
//
//	data, _ := os.ReadFile("page.html")
//	doc, err := htmltree.ParseBytes(data)
func ParseBytes(html []byte, opts ...Option) (*dom.Document, error) {
	cfg := newConfig(opts...)

	// Detect and decode encoding
	decoded, enc, err := encoding.Decode(html, cfg.encoding)
	if err != nil {
		return nil, err
	}

	doc, err := parse(decoded, cfg)
	if doc != nil && enc != nil {
		doc.Encoding = enc.Name
	}
	return doc, err
}

// ParseFragment parses an HTML fragment in a specific context element.
//
// This is equivalent to setting element.innerHTML in browsers. The context
// determines how the fragment is parsed (e.g., parsing "<td>" in a "tr" context
// vs. in a "div" context produces different results).
//
// Example:
//
//	nodes, err := htmltree.ParseFragment("<td>Cell</td>", "tr")
func ParseFragment(html string, context string, opts ...Option) ([]*dom.Element, error) {
	cfg := newConfig(opts...)
	if context == "" {
		// Forgiving mode: with no context element, parse as template content.
		context = "template"
	}
	cfg.fragmentContext = &treebuilder.FragmentContext{
		TagName:   context,
		Namespace: "html",
	}
	return parseFragment(html, cfg)
}

// parse is the internal parsing implementation.
func parse(html string, cfg *config) (*dom.Document, error) {
	tok := tokenizer.New(html)
	if cfg.xmlCoercion {
		tok.SetXMLCoercion(true)
	}
	tb := treebuilder.New(tok)
	applyTreeBuilderConfig(tb, cfg)
	runParsingLoop(tok, tb, cfg)

	if cfg.strict || cfg.collectErrors {
		parseErrs := convertTokenizerErrors(tok.Errors())
		if len(parseErrs) > 0 && cfg.strict {
			return nil, parseErrs[0]
		}
		if len(parseErrs) > 0 && cfg.collectErrors {
			return tb.Document(), htmlerrors.ParseErrors(parseErrs)
		}
	}

	return tb.Document(), nil
}

// runParsingLoop drains the tokenizer into the tree builder. When a script
// handler is configured, the loop pauses after each </script> and hands the
// just-closed script element to the handler, so the host can mutate the
// document before the next token is consumed. Once the input is drained,
// tokenizer-level errors are passed to a WithParseErrorHandler callback.
func runParsingLoop(tok *tokenizer.Tokenizer, tb *treebuilder.TreeBuilder, cfg *config) {
	for {
		tok.SetAllowCDATA(tb.AllowCDATA())
		tt := tok.Next()
		tb.ProcessToken(tt)
		if cfg.scriptHandler != nil {
			if script := tb.TakePendingScript(); script != nil {
				cfg.scriptHandler(script)
			}
		}
		if tt.Type == tokenizer.EOF {
			break
		}
	}
	if cfg.onParseError != nil {
		for _, e := range tok.Errors() {
			cfg.onParseError(e.Code, e.Line, e.Column)
		}
	}
}

// applyTreeBuilderConfig threads the ambient config options (scripting,
// location tracking, error reporting, logging) onto a freshly constructed
// TreeBuilder, shared by parse and parseFragment.
func applyTreeBuilderConfig(tb *treebuilder.TreeBuilder, cfg *config) {
	if cfg.iframeSrcdoc {
		tb.SetIframeSrcdoc(true)
	}
	tb.SetScriptingEnabled(cfg.scriptingEnabled)
	if cfg.trackLocations {
		tb.SetLocationTracking(true)
	}
	if cfg.onParseError != nil {
		tb.SetErrorSink(cfg.onParseError)
	}
	if cfg.logger != nil {
		tb.SetLogger(cfg.logger)
	}
}

// parseFragment is the internal fragment parsing implementation.
func parseFragment(html string, cfg *config) ([]*dom.Element, error) {
	tok := tokenizer.New(html)
	if cfg.xmlCoercion {
		tok.SetXMLCoercion(true)
	}
	tb := treebuilder.NewFragment(tok, cfg.fragmentContext)
	applyTreeBuilderConfig(tb, cfg)
	runParsingLoop(tok, tb, cfg)

	if cfg.strict || cfg.collectErrors {
		parseErrs := convertTokenizerErrors(tok.Errors())
		if len(parseErrs) > 0 && cfg.strict {
			return nil, parseErrs[0]
		}
		if len(parseErrs) > 0 && cfg.collectErrors {
			return tb.FragmentNodes(), htmlerrors.ParseErrors(parseErrs)
		}
	}

	return tb.FragmentNodes(), nil
}

func convertTokenizerErrors(errs []tokenizer.ParseError) []*htmlerrors.ParseError {
	if len(errs) == 0 {
		return nil
	}
	out := make([]*htmlerrors.ParseError, 0, len(errs))
	for _, e := range errs {
		out = append(out, &htmlerrors.ParseError{
			Code:    e.Code,
			Message: htmlerrors.Message(e.Code),
			Line:    e.Line,
			Column:  e.Column,
		})
	}
	return out
}
