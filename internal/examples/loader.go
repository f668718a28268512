// Package examples loads per-problem reference material used to calibrate
// grading guidance.
//
// A problem directory may contain:
//
//	editorial.txt
//	submissions/<Name>/Solution.<ext>   (names starting with "Correct" are correct examples)
//	feedbacks/feedback_<Name>.txt
package examples

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"
)

// ErrInvalidDirectory indicates the requested directory escapes the examples root.
var ErrInvalidDirectory = errors.New("invalid examples directory")

const maxFileBytes = 256 * 1024

// Solution is one example submission.
type Solution struct {
	Name string `json:"name"`
	Code string `json:"code"`
}

// Examples is the reference material for one problem. Incorrect solutions
// keep their directory order so prompts stay deterministic.
type Examples struct {
	Editorial string            `json:"editorial,omitempty"`
	Correct   []Solution        `json:"correct"`
	Incorrect []Solution        `json:"incorrect"`
	Feedback  map[string]string `json:"feedback"`
}

// Empty reports whether nothing was loaded.
func (e Examples) Empty() bool {
	return e.Editorial == "" && len(e.Correct) == 0 && len(e.Incorrect) == 0
}

// Loader resolves problem example directories.
type Loader interface {
	Load(ctx context.Context, dir string) (Examples, error)
}

type fileLoader struct {
	root   string
	logger zerolog.Logger
}

// NewLoader returns a Loader reading directories relative to root. An empty
// root accepts absolute or working-directory relative paths.
func NewLoader(root string, logger zerolog.Logger) Loader {
	return &fileLoader{
		root:   root,
		logger: logger.With().Str("component", "examples_loader").Logger(),
	}
}

func (l *fileLoader) Load(ctx context.Context, dir string) (Examples, error) {
	result := Examples{Correct: []Solution{}, Incorrect: []Solution{}, Feedback: map[string]string{}}
	if strings.TrimSpace(dir) == "" {
		return result, nil
	}

	base, err := l.resolve(dir)
	if err != nil {
		return result, err
	}
	if info, err := os.Stat(base); err != nil || !info.IsDir() {
		return result, fmt.Errorf("%w: %s", ErrInvalidDirectory, dir)
	}

	if editorial, ok := readText(filepath.Join(base, "editorial.txt")); ok {
		result.Editorial = editorial
	}

	if err := ctx.Err(); err != nil {
		return result, err
	}

	submissions, _ := os.ReadDir(filepath.Join(base, "submissions"))
	sort.Slice(submissions, func(i, j int) bool { return submissions[i].Name() < submissions[j].Name() })
	for _, entry := range submissions {
		if !entry.IsDir() {
			continue
		}
		code, ok := readSolution(filepath.Join(base, "submissions", entry.Name()))
		if !ok {
			continue
		}
		solution := Solution{Name: entry.Name(), Code: code}
		if strings.HasPrefix(entry.Name(), "Correct") {
			result.Correct = append(result.Correct, solution)
		} else {
			result.Incorrect = append(result.Incorrect, solution)
		}
	}

	feedbacks, _ := os.ReadDir(filepath.Join(base, "feedbacks"))
	for _, entry := range feedbacks {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".txt") {
			continue
		}
		text, ok := readText(filepath.Join(base, "feedbacks", name))
		if !ok {
			continue
		}
		key := strings.TrimSuffix(strings.TrimPrefix(name, "feedback_"), ".txt")
		result.Feedback[key] = text
	}

	l.logger.Debug().
		Str("dir", dir).
		Int("correct", len(result.Correct)).
		Int("incorrect", len(result.Incorrect)).
		Int("feedback", len(result.Feedback)).
		Msg("loaded problem examples")

	return result, nil
}

func (l *fileLoader) resolve(dir string) (string, error) {
	if l.root == "" {
		return filepath.Clean(dir), nil
	}
	if filepath.IsAbs(dir) {
		return "", fmt.Errorf("%w: %s", ErrInvalidDirectory, dir)
	}

	joined := filepath.Join(l.root, dir)
	rel, err := filepath.Rel(l.root, joined)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrInvalidDirectory, dir)
	}
	return joined, nil
}

// readSolution returns the first text file named Solution.* in dir.
func readSolution(dir string) (string, bool) {
	matches, _ := filepath.Glob(filepath.Join(dir, "Solution.*"))
	sort.Strings(matches)
	for _, match := range matches {
		if code, ok := readText(match); ok {
			return code, true
		}
	}
	return "", false
}

func readText(path string) (string, bool) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() || info.Size() > maxFileBytes {
		return "", false
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}

	if !isText(data) {
		return "", false
	}
	return string(data), true
}

func isText(data []byte) bool {
	if len(data) == 0 {
		return true
	}
	for mime := mimetype.Detect(data); mime != nil; mime = mime.Parent() {
		if mime.Is("text/plain") {
			return true
		}
	}
	return false
}
