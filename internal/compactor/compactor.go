package compactor

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/crimson-sun/sluice/internal/model"
)

// Verbosity controls how much of each row message is sent to inference.
type Verbosity int

const (
	Minimal  Verbosity = iota // short messages, noisy fields stripped
	Standard                  // messages up to 2000 runes, traces folded
	Full                      // messages unchanged apart from normalization
)

// ParseVerbosity maps "minimal", "standard", "full" to a Verbosity.
func ParseVerbosity(s string) (Verbosity, error) {
	switch strings.ToLower(s) {
	case "minimal":
		return Minimal, nil
	case "standard", "":
		return Standard, nil
	case "full":
		return Full, nil
	default:
		return Standard, fmt.Errorf("unknown verbosity %q", s)
	}
}

func (v Verbosity) String() string {
	switch v {
	case Minimal:
		return "minimal"
	case Full:
		return "full"
	default:
		return "standard"
	}
}

// defaultStripFields are correlation fields that cost tokens and carry no
// meaning for the model.
var defaultStripFields = []string{
	"trace_id", "span_id", "request_id", "correlation_id",
	"dd.trace_id", "dd.span_id", "x_request_id",
}

const minBudgetRunes = 16

// Option configures a Compactor.
type Option func(*Compactor)

// WithStripFields replaces the list of JSON fields removed below Full verbosity.
func WithStripFields(fields []string) Option {
	return func(c *Compactor) { c.stripFields = fields }
}

// WithTokenBudget caps the estimated tokens of a compacted batch. Messages are
// shortened until the batch fits; rows are never dropped. 0 disables the cap.
func WithTokenBudget(tokens int) Option {
	return func(c *Compactor) { c.tokenBudget = tokens }
}

// Compactor shapes row messages before they are sent to inference.
type Compactor struct {
	Verbosity   Verbosity
	stripFields []string
	tokenBudget int
}

// New creates a Compactor with the given verbosity level.
func New(v Verbosity, opts ...Option) *Compactor {
	c := &Compactor{Verbosity: v, stripFields: defaultStripFields}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compact normalizes and shortens one message for its verbosity.
// Error-level messages keep more stack frames.
func (c *Compactor) Compact(raw, severity string) string {
	return c.compact(norm.NFC.String(raw), severity, c.maxLen())
}

func (c *Compactor) compact(raw, severity string, maxLen int) string {
	if c.Verbosity == Full && maxLen <= 0 {
		return raw
	}
	s := raw
	if c.Verbosity != Full {
		s = stripFields(s, c.stripFields)
		s = truncateStackTrace(s, c.maxFrames(severity))
	}
	if maxLen > 0 {
		s = truncate(s, maxLen)
	}
	return s
}

func (c *Compactor) maxLen() int {
	switch c.Verbosity {
	case Minimal:
		return 200
	case Standard:
		return 2000
	default:
		return 0
	}
}

func (c *Compactor) maxFrames(severity string) int {
	frames := 5
	switch strings.ToLower(severity) {
	case "error", "fatal", "critical", "panic":
		frames = 10
	}
	if c.Verbosity == Minimal {
		frames /= 2
	}
	return frames
}

// Rows returns compacted copies of rows. The input slice is not modified.
func (c *Compactor) Rows(rows []model.Row) []model.Row {
	out := make([]model.Row, len(rows))
	for i, r := range rows {
		r.Message = c.Compact(r.Message, r.Severity)
		out[i] = r
	}
	if c.tokenBudget <= 0 || EstimateRows(out) <= c.tokenBudget {
		return out
	}

	limit := c.maxLen()
	if limit <= 0 {
		limit = longestMessage(out)
	}
	for limit > minBudgetRunes && EstimateRows(out) > c.tokenBudget {
		limit /= 2
		if limit < minBudgetRunes {
			limit = minBudgetRunes
		}
		for i := range out {
			out[i].Message = truncate(out[i].Message, limit)
		}
	}
	return out
}

func longestMessage(rows []model.Row) int {
	n := 0
	for _, r := range rows {
		if l := utf8.RuneCountInString(r.Message); l > n {
			n = l
		}
	}
	return n
}

// truncate cuts s to maxLen runes and appends "...".
func truncate(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxLen]) + "..."
}

// Summarize returns the first line of raw, cut at a word boundary near 120 runes.
func Summarize(raw string) string {
	line, _, _ := strings.Cut(raw, "\n")
	line = strings.TrimSpace(line)
	if utf8.RuneCountInString(line) <= 120 {
		return line
	}
	runes := []rune(line)[:120]
	cut := string(runes)
	if i := strings.LastIndexByte(cut, ' '); i > 60 {
		cut = cut[:i]
	}
	return cut + "..."
}

func isFrame(line string) bool {
	return strings.HasPrefix(line, "\t") || strings.HasPrefix(line, "    ")
}

// truncateStackTrace keeps the first maxFrames frames and the last two,
// replacing the middle with an omission line. Non-trace text is unchanged.
func truncateStackTrace(s string, maxFrames int) string {
	lines := strings.Split(s, "\n")
	var frames []int
	for i, l := range lines {
		if isFrame(l) {
			frames = append(frames, i)
		}
	}
	const tail = 2
	if len(frames) <= maxFrames+tail {
		return s
	}

	firstOmitted := frames[maxFrames]
	lastOmitted := frames[len(frames)-tail-1]
	omitted := len(frames) - maxFrames - tail

	out := make([]string, 0, firstOmitted+tail+4)
	out = append(out, lines[:firstOmitted]...)
	out = append(out, fmt.Sprintf("\t... (%d frames omitted)", omitted))
	out = append(out, lines[lastOmitted+1:]...)
	return strings.Join(out, "\n")
}

// stripFields removes fields from a JSON object message. Other text is unchanged.
func stripFields(s string, fields []string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "{") {
		return s
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(trimmed), &m); err != nil {
		return s
	}
	removed := false
	for _, f := range fields {
		if _, ok := m[f]; ok {
			delete(m, f)
			removed = true
		}
	}
	if !removed {
		return s
	}
	data, err := json.Marshal(m)
	if err != nil {
		return s
	}
	return string(data)
}
