// Package sanitizer normalizes untrusted text before it is embedded in a
// model prompt.
package sanitizer

import (
	"html"
	"regexp"
	"strings"
)

const (
	// CodeStart and CodeEnd delimit student code inside every prompt.
	CodeStart = "<STUDENT_CODE>"
	CodeEnd   = "</STUDENT_CODE>"

	// CodeBlockPlaceholder replaces fenced blocks in problem and rubric text.
	CodeBlockPlaceholder = "[CODE BLOCK]"

	removedMarker = "/* REMOVED */"
)

// Language labels returned by DetectLanguage.
const (
	LanguageJava       = "java"
	LanguagePython     = "python"
	LanguageCPP        = "cpp"
	LanguageJavaScript = "javascript"
	LanguageUnknown    = "unknown"
)

var (
	fencedBlock = regexp.MustCompile("(?s)```.*?```")
	backtickRun = regexp.MustCompile("`{3,}")

	blockComment  = regexp.MustCompile(`(?s)/\*.*?\*/`)
	lineComment   = regexp.MustCompile(`(?m)//.*$`)
	hashComment   = regexp.MustCompile(`(?m)(^|\s)#.*$`)
	extraBlank    = regexp.MustCompile(`\n\s*\n+`)
	javaMarkers   = regexp.MustCompile(`public\s+class|public\s+interface|import\s+java\.`)
	pythonMarkers = regexp.MustCompile(`import\s+numpy|import\s+pandas|def\s+\w+\s*\(.*\):`)
	cppMarkers    = regexp.MustCompile(`#include\s+<\w+(?:\.h)?>|using\s+namespace\s+std`)
	jsMarkers     = regexp.MustCompile(`function\s+\w+\s*\(.*\)|let\s+\w+\s*=|const\s+\w+\s*=`)

	// Applied to already escaped code, so role tags appear as entities.
	neutralized = []*regexp.Regexp{
		regexp.MustCompile(`(?i)&lt;/?(?:system|user|assistant|instruction|prompt)&gt;`),
		regexp.MustCompile(`(?i)ignore\s+previous\s+instructions`),
		regexp.MustCompile(`(?i)disregard\s+the\s+above`),
	}
)

// Options tunes code sanitization.
type Options struct {
	StripComments bool
}

// Result carries the three sanitized inputs of one evaluation.
type Result struct {
	Problem  string
	Rubric   string
	Code     string
	Language string
}

// Sanitize cleans the problem statement and rubric and secures the code.
func Sanitize(problem, rubric, code string, opts Options) Result {
	return Result{
		Problem:  Text(problem),
		Rubric:   Text(rubric),
		Code:     SecureCode(code, opts),
		Language: DetectLanguage(code),
	}
}

// Text HTML-escapes free text and collapses fenced code blocks.
func Text(value string) string {
	escaped := html.EscapeString(value)
	return fencedBlock.ReplaceAllString(escaped, CodeBlockPlaceholder)
}

// SecureCode escapes code, neutralizes fences and known role markers, and
// wraps the result in CodeStart/CodeEnd.
func SecureCode(code string, opts Options) string {
	if opts.StripComments {
		code = RemoveComments(code, DetectLanguage(code))
	}

	secured := html.EscapeString(code)
	secured = backtickRun.ReplaceAllStringFunc(secured, func(run string) string {
		return strings.Repeat("\\`", len(run))
	})
	for _, pattern := range neutralized {
		secured = pattern.ReplaceAllString(secured, removedMarker)
	}

	return CodeStart + "\n" + secured + "\n" + CodeEnd
}

// RemoveComments strips comments for the given language. Unknown languages
// are returned unchanged.
func RemoveComments(code, language string) string {
	switch language {
	case LanguageJava, LanguageCPP, LanguageJavaScript:
		code = blockComment.ReplaceAllString(code, "")
		code = lineComment.ReplaceAllString(code, "")
	case LanguagePython:
		code = hashComment.ReplaceAllString(code, "$1")
	default:
		return code
	}
	return extraBlank.ReplaceAllString(code, "\n\n")
}

// DetectLanguage guesses the source language from a few syntax markers.
func DetectLanguage(code string) string {
	switch {
	case javaMarkers.MatchString(code):
		return LanguageJava
	case pythonMarkers.MatchString(code):
		return LanguagePython
	case cppMarkers.MatchString(code):
		return LanguageCPP
	case jsMarkers.MatchString(code):
		return LanguageJavaScript
	default:
		return LanguageUnknown
	}
}
