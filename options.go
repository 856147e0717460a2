package htmltree

import (
	"github.com/jbowes-oss/htmltree/dom"
	"github.com/jbowes-oss/htmltree/treebuilder"
)

// config holds parser configuration.
type config struct {
	encoding         string
	fragmentContext  *treebuilder.FragmentContext
	iframeSrcdoc     bool
	strict           bool
	collectErrors    bool
	xmlCoercion      bool
	scriptingEnabled bool
	trackLocations   bool
	onParseError     func(code string, line, col int)
	scriptHandler    func(*dom.Element)
	logger           Logger
}

// newConfig creates a new config with defaults and applies options.
func newConfig(opts ...Option) *config {
	cfg := &config{scriptingEnabled: true, logger: noopLogger{}}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Option configures the parser behavior.
type Option func(*config)

// WithEncoding sets the character encoding to use for parsing.
// This overrides automatic encoding detection.
//
// Common values: "utf-8", "windows-1252", "iso-8859-1"
func WithEncoding(enc string) Option {
	return func(c *config) {
		c.encoding = enc
	}
}

// WithFragment sets the parsing context for fragment parsing.
// This is typically used internally by ParseFragment.
func WithFragment(tagName string) Option {
	return func(c *config) {
		c.fragmentContext = &treebuilder.FragmentContext{
			TagName:   tagName,
			Namespace: "html",
		}
	}
}

// WithFragmentNS sets the parsing context with a specific namespace.
// Use this for parsing SVG or MathML fragments.
func WithFragmentNS(tagName, namespace string) Option {
	return func(c *config) {
		c.fragmentContext = &treebuilder.FragmentContext{
			TagName:   tagName,
			Namespace: namespace,
		}
	}
}

// WithIframeSrcdoc enables iframe srcdoc parsing mode.
// In this mode, the parser treats the input as the srcdoc attribute value.
func WithIframeSrcdoc() Option {
	return func(c *config) {
		c.iframeSrcdoc = true
	}
}

// WithStrictMode enables strict parsing mode.
// In this mode, the first parse error causes Parse to return an error.
// By default, parse errors are handled according to the HTML5 spec
// and parsing continues.
func WithStrictMode() Option {
	return func(c *config) {
		c.strict = true
	}
}

// WithCollectErrors enables error collection mode.
// Parse errors are collected and returned as a ParseErrors error
// (which can be unwrapped to get individual errors).
// Without this option, parse errors are silently recovered from.
func WithCollectErrors() Option {
	return func(c *config) {
		c.collectErrors = true
	}
}

// WithXMLCoercion enables the XML-coercion tokenizer mode, which rewrites
// text and comment output so it is representable in XML: form feeds become
// spaces, non-XML characters become U+FFFD, and "--" inside a comment
// becomes "- -". It does not change which parse errors are reported.
func WithXMLCoercion() Option {
	return func(c *config) {
		c.xmlCoercion = true
	}
}

// WithScriptingDisabled disables the scripting flag. This only changes how
// <noscript> is handled in IN_HEAD and IN_BODY: with scripting disabled,
// <noscript> content is parsed as regular markup instead of raw text, as if
// the user agent does not support scripting. Scripting is enabled by default.
func WithScriptingDisabled() Option {
	return func(c *config) {
		c.scriptingEnabled = false
	}
}

// WithSourceLocations enables source-location bookkeeping: every element and
// text node built by the parser carries a start/end Position recorded from
// the tokenizer's line/column tracking, element attributes carry their own
// per-attribute range, and an element closed by an explicit matching end tag
// additionally records that end tag's own span. A plain "</name>" that
// closes a raw-text or RCDATA element (script, style, title, textarea and
// the like) gets an end-tag span whose Start is zero. Comment nodes are not
// covered.
func WithSourceLocations() Option {
	return func(c *config) {
		c.trackLocations = true
	}
}

// WithParseErrorHandler installs a callback invoked for every parse error
// the tokenizer and tree-construction stage report, in addition to (not
// instead of) WithStrictMode/WithCollectErrors. Installing a handler
// implicitly enables source-location bookkeeping, since error positions
// require it.
func WithParseErrorHandler(fn func(code string, line, col int)) Option {
	return func(c *config) {
		c.onParseError = fn
		c.trackLocations = true
	}
}

// WithScriptHandler installs a callback invoked each time a </script> end
// tag closes a script element. The parsing loop pauses at that point: the
// handler may inspect or mutate the document (simulating script execution)
// before parsing resumes with the next token. Without a handler, script
// elements are built into the tree and parsing never pauses.
func WithScriptHandler(fn func(script *dom.Element)) Option {
	return func(c *config) {
		c.scriptHandler = fn
	}
}

// WithLogger installs a structured logger the parser uses for diagnostic
// messages (e.g. foster-parenting decisions, adoption agency iteration
// limits reached). By default, parsing is silent.
func WithLogger(logger Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}
