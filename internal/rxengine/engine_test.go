package rxengine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileAndMatch(t *testing.T) {
	a, err := Compile(`^\d+$`, Options{})
	require.NoError(t, err)
	assert.True(t, a.MatchString("12345"))
	assert.False(t, a.MatchString("12a45"))
}

func TestCompileCaseInsensitive(t *testing.T) {
	a, err := Compile(`hello`, Options{CaseInsensitive: true})
	require.NoError(t, err)
	assert.True(t, a.MatchString("HELLO world"))
}

func TestCompileMultilineAndDotAll(t *testing.T) {
	a, err := Compile(`^b`, Options{Multiline: true})
	require.NoError(t, err)
	assert.True(t, a.MatchString("a\nb"))

	dotAll, err := Compile(`a.b`, Options{DotMatchesNewline: true})
	require.NoError(t, err)
	assert.True(t, dotAll.MatchString("a\nb"))
}

func TestCompileLiteralIgnoresMetacharacters(t *testing.T) {
	a, err := Compile(`a.b*`, Options{Literal: true})
	require.NoError(t, err)
	assert.False(t, a.MatchString("aXbYYY"))
	assert.True(t, a.MatchString("a.b*"))
}

func TestCompileNeverCaptureStripsGroups(t *testing.T) {
	a, err := Compile(`(foo)(bar)`, Options{NeverCapture: true})
	require.NoError(t, err)
	assert.Equal(t, 0, a.re.NumSubexp())
	assert.True(t, a.MatchString("foobar"))
}

func TestCompileNeverNewlineRejectsSpanningMatch(t *testing.T) {
	a, err := Compile(`a.b`, Options{DotMatchesNewline: true, NeverNewline: true})
	require.NoError(t, err)
	assert.False(t, a.MatchString("a\nb"))
	assert.True(t, a.MatchString("axb"))
}

func TestCompileEncodingLatin1RejectsWideRunes(t *testing.T) {
	_, err := Compile(`日本語`, Options{Encoding: EncodingLatin1})
	require.Error(t, err)
	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "encoding_error", ce.Kind)
}

func TestCompilePosixSyntaxRejectsPerlEscapes(t *testing.T) {
	_, err := Compile(`\d+`, Options{PosixSyntax: true})
	require.Error(t, err)
}

func TestCompilePosixSyntaxWithPerlClassesFallsBack(t *testing.T) {
	a, err := Compile(`\d+`, Options{PosixSyntax: true, PerlClasses: true})
	require.NoError(t, err)
	assert.True(t, a.MatchString("123"))
}

func TestCompileMaxMemRejectsOversizedProgram(t *testing.T) {
	_, err := Compile(`\d+`, Options{MaxMem: 1})
	require.Error(t, err)
	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "program_too_large", ce.Kind)
}

func TestCompileSuppressErrorLogStillReturnsError(t *testing.T) {
	_, err := Compile(`(unterminated`, Options{SuppressErrorLog: true})
	require.Error(t, err)
}

func TestCompileInvalidPatternReturnsStructuredError(t *testing.T) {
	_, err := Compile(`(unterminated`, Options{})
	require.Error(t, err)

	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, `(unterminated`, ce.Pattern)
	assert.NotEmpty(t, ce.Kind)
}

func TestFindStringAndReplaceAllString(t *testing.T) {
	a, err := Compile(`\d+`, Options{})
	require.NoError(t, err)
	assert.Equal(t, "123", a.FindString("abc123def456"))
	assert.Equal(t, "abc#def#", a.ReplaceAllString("abc123def456", "#"))
}

func TestFindStringMatchDistinguishesEmptyFromNoMatch(t *testing.T) {
	a, err := Compile(`z*`, Options{})
	require.NoError(t, err)
	match, ok := a.FindStringMatch("abc")
	assert.True(t, ok)
	assert.Equal(t, "", match)

	a, err = Compile(`z+`, Options{})
	require.NoError(t, err)
	_, ok = a.FindStringMatch("abc")
	assert.False(t, ok)
}

func TestProgramSizePositiveForValidArtifact(t *testing.T) {
	a, err := Compile(`\d+`, Options{})
	require.NoError(t, err)
	assert.Greater(t, ProgramSize(a), 0)
}

func TestProgramSizeZeroForNil(t *testing.T) {
	assert.Equal(t, 0, ProgramSize(nil))
}

func TestOptionFieldsChangePerField(t *testing.T) {
	base := Options{}.OptionFields()
	ci := Options{CaseInsensitive: true}.OptionFields()
	assert.NotEqual(t, base, ci)
}
