// Package rxengine adapts the standard library's regexp package to the
// narrow compile/describe surface the cache core needs. It stands in
// for the pluggable regex engine the cache is designed against: call
// sites hold the opaque *Artifact this package returns, never a
// *regexp.Regexp directly. Option field names and semantics mirror
// RE2's own Options struct, since Go's regexp package is itself an RE2
// implementation; every field is load-bearing for compilation or
// matching, not decorative.
package rxengine

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
)

// Encoding selects how pattern and input text is interpreted.
type Encoding int

const (
	// EncodingUTF8 is the default: pattern and input are UTF-8.
	EncodingUTF8 Encoding = iota
	// EncodingLatin1 restricts pattern text to code points 0-255.
	EncodingLatin1
)

// Options controls how a pattern is compiled. It is a plain comparable
// struct so callers can derive a cache key from it without reflection.
// Several fields are named as the negation of their RE2 counterpart
// (CaseInsensitive instead of case_sensitive, SuppressErrorLog instead
// of log_errors) specifically so the Go zero value reproduces RE2's
// own non-zero defaults (case-sensitive, logging enabled) without a
// constructor.
type Options struct {
	// MaxMem caps the approximate compiled program size in bytes.
	// Zero means unlimited.
	MaxMem int64
	// Encoding restricts pattern/input to a character set.
	Encoding Encoding
	// PosixSyntax compiles with POSIX ERE semantics (leftmost-longest,
	// no Perl extensions) unless PerlClasses, WordBoundary, or OneLine
	// asks for one of those extensions back.
	PosixSyntax bool
	// Longest requests leftmost-longest match semantics outside
	// PosixSyntax, where it's already the default.
	Longest bool
	// SuppressErrorLog, when true, skips the slog.Error call Compile
	// otherwise makes on a compile failure.
	SuppressErrorLog bool
	// Literal compiles pattern as literal text, ignoring metacharacters.
	Literal bool
	// NeverNewline discards any match that spans a newline character.
	NeverNewline bool
	// DotMatchesNewline lets '.' match '\n' (the (?s) flag).
	DotMatchesNewline bool
	// NeverCapture rewrites every capturing group to non-capturing
	// before compiling.
	NeverCapture bool
	// CaseInsensitive folds case during matching (the (?i) flag).
	CaseInsensitive bool
	// Multiline lets '^' and '$' match at line boundaries (the (?m)
	// flag), independent of PosixSyntax's OneLine.
	Multiline bool
	// PerlClasses re-enables \d, \s, \w and friends under PosixSyntax.
	// Ignored outside PosixSyntax, where Perl classes are always on.
	PerlClasses bool
	// WordBoundary re-enables \b/\B under PosixSyntax. Ignored outside
	// PosixSyntax, where word boundaries are always available.
	WordBoundary bool
	// OneLine re-enables Perl-style ^/$ anchoring under PosixSyntax.
	// Ignored outside PosixSyntax, where it's already the default.
	OneLine bool
}

// optionFields renders Options as stable strings for rxhash.Pattern,
// one per field so flipping any single bit changes the hash.
func (o Options) optionFields() []string {
	return []string{
		fmt.Sprintf("max_mem=%d", o.MaxMem),
		fmt.Sprintf("encoding=%d", o.Encoding),
		fmt.Sprintf("posix_syntax=%t", o.PosixSyntax),
		fmt.Sprintf("longest=%t", o.Longest),
		fmt.Sprintf("suppress_error_log=%t", o.SuppressErrorLog),
		fmt.Sprintf("literal=%t", o.Literal),
		fmt.Sprintf("never_newline=%t", o.NeverNewline),
		fmt.Sprintf("dot_matches_newline=%t", o.DotMatchesNewline),
		fmt.Sprintf("never_capture=%t", o.NeverCapture),
		fmt.Sprintf("case_insensitive=%t", o.CaseInsensitive),
		fmt.Sprintf("multiline=%t", o.Multiline),
		fmt.Sprintf("perl_classes=%t", o.PerlClasses),
		fmt.Sprintf("word_boundary=%t", o.WordBoundary),
		fmt.Sprintf("one_line=%t", o.OneLine),
	}
}

// OptionFields exposes optionFields to other internal packages that
// need to derive a hash key without importing regexp themselves.
func (o Options) OptionFields() []string { return o.optionFields() }

// Artifact is a compiled pattern. It is opaque outside this package;
// callers reach it only through MatchString/FindString/etc.
type Artifact struct {
	re           *regexp.Regexp
	src          string
	neverNewline bool
}

// CompileError describes why a pattern failed to compile, with enough
// structure for callers to render a useful message without parsing
// regexp's own error text.
type CompileError struct {
	Pattern string
	Kind    string
	Message string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("compile pattern %q: %s: %s", e.Pattern, e.Kind, e.Message)
}

// Compile builds an Artifact from pattern text and Options.
func Compile(pattern string, opts Options) (*Artifact, error) {
	if err := checkEncoding(pattern, opts.Encoding); err != nil {
		return nil, logIfWanted(&CompileError{Pattern: pattern, Kind: "encoding_error", Message: err.Error()}, opts)
	}

	src := pattern
	if opts.Literal {
		src = regexp.QuoteMeta(src)
	}
	if opts.NeverCapture {
		src = stripCapturingGroups(src)
	}

	expr := src
	if !opts.PosixSyntax || opts.PerlClasses || opts.WordBoundary || opts.OneLine {
		// Inline (?i)/(?m)/(?s) flags are a Perl syntax extension: strict
		// POSIX ERE (the CompilePOSIX branch below) rejects them outright,
		// so they're only added on paths that ultimately go through
		// regexp.Compile.
		expr = applyOptionFlags(src, opts)
	}

	re, err := compileWithSyntax(expr, opts)
	if err != nil {
		return nil, logIfWanted(&CompileError{
			Pattern: pattern,
			Kind:    classifyCompileError(err),
			Message: err.Error(),
		}, opts)
	}
	if opts.Longest {
		re.Longest()
	}

	if opts.MaxMem > 0 && int64(ProgramSize(&Artifact{re: re})) > opts.MaxMem {
		return nil, logIfWanted(&CompileError{
			Pattern: pattern,
			Kind:    "program_too_large",
			Message: fmt.Sprintf("compiled program exceeds max_mem of %d bytes", opts.MaxMem),
		}, opts)
	}

	return &Artifact{re: re, src: pattern, neverNewline: opts.NeverNewline}, nil
}

// compileWithSyntax picks POSIX or Perl-flavored compilation. Go's
// regexp.CompilePOSIX already matches RE2's posix_syntax with
// perl_classes/word_boundary/one_line all false: strict ERE syntax,
// leftmost-longest. Re-enabling any one of those three Perl extensions
// under PosixSyntax has no direct stdlib equivalent, so that case
// falls back to regular compilation with Longest() forced, to at least
// preserve POSIX's leftmost-longest matching behavior.
func compileWithSyntax(expr string, opts Options) (*regexp.Regexp, error) {
	if !opts.PosixSyntax {
		return regexp.Compile(expr)
	}
	if opts.PerlClasses || opts.WordBoundary || opts.OneLine {
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, err
		}
		re.Longest()
		return re, nil
	}
	return regexp.CompilePOSIX(expr)
}

// checkEncoding rejects pattern text outside Latin-1's range when
// Encoding demands it.
func checkEncoding(pattern string, enc Encoding) error {
	if enc != EncodingLatin1 {
		return nil
	}
	for _, r := range pattern {
		if r > 0xFF {
			return fmt.Errorf("pattern contains rune %q outside Latin-1", r)
		}
	}
	return nil
}

// stripCapturingGroups rewrites every capturing "(" to non-capturing
// "(?:", leaving escaped "\(" and already-non-capturing "(?" groups
// untouched. A small hand-rolled scan rather than a regex substitution,
// since the thing being rewritten is itself regex syntax and naively
// regexing over it would mishandle escapes.
func stripCapturingGroups(pattern string) string {
	var b strings.Builder
	b.Grow(len(pattern) + 8)
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		if c == '\\' && i+1 < len(pattern) {
			b.WriteByte(c)
			b.WriteByte(pattern[i+1])
			i++
			continue
		}
		if c == '(' && (i+1 >= len(pattern) || pattern[i+1] != '?') {
			b.WriteString("(?:")
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

// logIfWanted emits a structured log for a compile failure unless the
// caller asked for it to be suppressed, mirroring RE2's log_errors
// option (default on).
func logIfWanted(err *CompileError, opts Options) *CompileError {
	if !opts.SuppressErrorLog {
		slog.Error("rxengine: compile failed", "pattern", err.Pattern, "kind", err.Kind, "error", err.Message)
	}
	return err
}

// applyOptionFlags folds boolean options into regexp's inline flag
// syntax, since the standard library exposes case-insensitivity,
// multiline, and dot-all only as pattern prefixes.
func applyOptionFlags(pattern string, opts Options) string {
	var flags strings.Builder
	if opts.CaseInsensitive {
		flags.WriteByte('i')
	}
	if opts.Multiline {
		flags.WriteByte('m')
	}
	if opts.DotMatchesNewline {
		flags.WriteByte('s')
	}
	if flags.Len() == 0 {
		return pattern
	}
	return "(?" + flags.String() + ")" + pattern
}

func classifyCompileError(err error) string {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "missing closing )"), strings.Contains(msg, "unexpected )"):
		return "unbalanced_parens"
	case strings.Contains(msg, "invalid character class"):
		return "invalid_character_class"
	case strings.Contains(msg, "invalid escape sequence"):
		return "invalid_escape"
	case strings.Contains(msg, "invalid repeat"):
		return "invalid_repeat"
	default:
		return "syntax_error"
	}
}

// ProgramSize approximates the memory an Artifact occupies, used to
// charge the pattern tier's capacity accounting. regexp doesn't expose
// program size directly, so this estimates it as two bytes per
// character of the compiled expression's String form plus a fixed
// 256-byte overhead.
func ProgramSize(a *Artifact) int {
	if a == nil || a.re == nil {
		return 0
	}
	return len(a.re.String())*2 + 256
}

// MatchString reports whether input matches the compiled pattern.
func (a *Artifact) MatchString(input string) bool {
	if a.neverNewline {
		_, ok := a.FindStringMatch(input)
		return ok
	}
	return a.re.MatchString(input)
}

// FindString returns the leftmost match, or "" if none.
func (a *Artifact) FindString(input string) string {
	s, _ := a.FindStringMatch(input)
	return s
}

// FindStringMatch is FindString plus whether a match was actually
// found, since an empty-string match and no match both render as "".
// When NeverNewline is set, a match spanning a newline is treated as
// no match at all.
func (a *Artifact) FindStringMatch(input string) (string, bool) {
	loc := a.re.FindStringIndex(input)
	if loc == nil {
		return "", false
	}
	match := input[loc[0]:loc[1]]
	if a.neverNewline && strings.Contains(match, "\n") {
		return "", false
	}
	return match, true
}

// ReplaceAllString replaces every match of the pattern with repl.
// NeverNewline is not applied here: filtering individual matches out
// of a global replace would require re-deriving repl's backreference
// expansion by hand, which this adapter doesn't attempt.
func (a *Artifact) ReplaceAllString(input, repl string) string {
	return a.re.ReplaceAllString(input, repl)
}

// String returns the original, unflagged pattern text.
func (a *Artifact) String() string {
	return a.src
}
