package htmltree

import (
	"bytes"
	"strings"
	"testing"
)

type recordingLogger struct {
	debugs []string
	warns  []string
}

func (l *recordingLogger) Debug(msg string, args ...interface{}) { l.debugs = append(l.debugs, msg) }
func (l *recordingLogger) Warn(msg string, args ...interface{})  { l.warns = append(l.warns, msg) }

func TestWithLogger_FosterParentingIsReported(t *testing.T) {
	rl := &recordingLogger{}
	_, err := Parse("<table>a<tr><td>b</td></tr></table>", WithLogger(rl))
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	found := false
	for _, msg := range rl.debugs {
		if strings.Contains(msg, "foster parenting") {
			found = true
			break
		}
	}
	if !found {
		t.Fatalf("debug messages = %#v, want a foster-parenting diagnostic", rl.debugs)
	}
}

func TestWithLogger_OpenElementsAtEOFWarn(t *testing.T) {
	rl := &recordingLogger{}
	_, err := Parse("<div><span>unterminated", WithLogger(rl))
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if len(rl.warns) == 0 {
		t.Fatalf("want a warning for elements left open at end of input, got none")
	}
}

func TestNewLoggerWritesStructuredOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("test", &buf)
	logger.Debug("hello", "k", "v")
	if buf.Len() == 0 {
		t.Fatal("NewLogger should write debug output to the given writer")
	}
	if !strings.Contains(buf.String(), "hello") {
		t.Fatalf("output = %q, want it to contain the message", buf.String())
	}
}
