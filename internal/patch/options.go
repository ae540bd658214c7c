package patch

import "github.com/SokyranTheDragon/Multiplayer-Compatibility/internal/il"

// Expected replacement counts with special meaning.
const (
	// ExpectUnchecked disables the coverage check.
	ExpectUnchecked = -1
	// ExpectAtLeastOne requires one or more replacements, count unspecified.
	ExpectAtLeastOne = -2
)

// Matcher decides whether an instruction is an anchor.
type Matcher func(in il.Instruction) bool

// Emitter produces instructions to splice next to a matched site. It
// receives the site after any symbol substitution.
type Emitter func(match il.Instruction) []il.Instruction

// Option configures a Replace call.
type Option func(*config)

type config struct {
	to       *il.Method
	before   Emitter
	after    Emitter
	expected int
	sites    []il.OpCode

	targetText  *string
	targetMatch Matcher

	excludeText  *string
	excludeMatch Matcher

	origin   *il.Method
	reporter Reporter
}

func newConfig(opts []Option) *config {
	c := &config{expected: ExpectUnchecked}
	for _, opt := range opts {
		opt(c)
	}
	if c.reporter == nil {
		c.reporter = LogReporter{}
	}
	return c
}

// To substitutes every replaced site with m. Constructors become newobj
// sites, anything else becomes a call site.
func To(m *il.Method) Option {
	return func(c *config) { c.to = m }
}

// Before emits extra instructions immediately ahead of each replaced site.
func Before(fn Emitter) Option {
	return func(c *config) { c.before = fn }
}

// After emits extra instructions immediately behind each replaced site.
func After(fn Emitter) Option {
	return func(c *config) { c.after = fn }
}

// Expect sets the expected number of replacements. Use ExpectUnchecked or
// ExpectAtLeastOne for the special cases.
func Expect(n int) Option {
	return func(c *config) { c.expected = n }
}

// Sites restricts which opcodes count as sites. By default any instruction
// whose operand is the searched symbol is a site.
func Sites(ops ...il.OpCode) Option {
	return func(c *config) { c.sites = ops }
}

// TargetText arms replacement only after "ldstr s" has been seen. The anchor
// is consumed by the next replacement.
func TargetText(s string) Option {
	return func(c *config) { c.targetText = &s }
}

// TargetMatch is TargetText with an arbitrary predicate.
func TargetMatch(m Matcher) Option {
	return func(c *config) { c.targetMatch = m }
}

// ExcludeText makes the next occurrence after "ldstr s" pass through
// untouched.
func ExcludeText(s string) Option {
	return func(c *config) { c.excludeText = &s }
}

// ExcludeMatch is ExcludeText with an arbitrary predicate.
func ExcludeMatch(m Matcher) Option {
	return func(c *config) { c.excludeMatch = m }
}

// Origin names the method whose body is being rewritten, for diagnostics.
func Origin(m *il.Method) Option {
	return func(c *config) { c.origin = m }
}

// WithReporter routes diagnostics somewhere other than the default slog
// reporter.
func WithReporter(r Reporter) Option {
	return func(c *config) { c.reporter = r }
}

func (c *config) isSite(in il.Instruction, from *il.Method) bool {
	if !in.References(from) {
		return false
	}
	if len(c.sites) == 0 {
		return true
	}
	for _, op := range c.sites {
		if in.Op == op {
			return true
		}
	}
	return false
}
