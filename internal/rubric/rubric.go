// Package rubric parses instructor-written multi-approach rubrics.
//
// The accepted text format is line oriented:
//
//	Binary Search Problem
//	Solution 1: Binary Search
//	1. Correct loop invariant maintained [2 marks]
//	2. Handles not-found case [1 mark]
//
// The first non-empty line is the title. "Solution <N>: <name>" opens an
// approach and numbered lines ending in "[<M> mark(s)]" add points to it.
// Anything else is ignored.
package rubric

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	approachHeader = regexp.MustCompile(`^Solution\s+(\d+):\s+(.*)$`)
	pointLine      = regexp.MustCompile(`^(\d+)\.\s+(.*)\s+\[(\d+)\s+marks?\]`)
)

// Point is one scored criterion.
type Point struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Marks       int    `json:"marks"`
}

// Approach is one independently gradable strategy. Point order maps to the
// criterion index used in grading responses.
type Approach struct {
	Name   string  `json:"name"`
	Points []Point `json:"points"`
}

// MaxScore sums the marks of every point.
func (a Approach) MaxScore() int {
	total := 0
	for _, point := range a.Points {
		total += point.Marks
	}
	return total
}

// MarksByIndex maps the 1-based criterion index to its mark value.
func (a Approach) MarksByIndex() map[string]int {
	out := make(map[string]int, len(a.Points))
	for i, point := range a.Points {
		out[strconv.Itoa(i+1)] = point.Marks
	}
	return out
}

// Parsed is a structured rubric. Approach keys ("Solution 1", ...) keep
// their insertion order.
type Parsed struct {
	Title      string
	approaches map[string]Approach
	order      []string
}

// New builds an empty rubric with the given title.
func New(title string) *Parsed {
	return &Parsed{Title: title, approaches: map[string]Approach{}}
}

// Add inserts or replaces an approach. A new key is appended to the order.
func (p *Parsed) Add(key string, approach Approach) {
	if p.approaches == nil {
		p.approaches = map[string]Approach{}
	}
	if _, exists := p.approaches[key]; !exists {
		p.order = append(p.order, key)
	}
	p.approaches[key] = approach
}

// Keys returns the approach keys in insertion order.
func (p *Parsed) Keys() []string {
	out := make([]string, len(p.order))
	copy(out, p.order)
	return out
}

// Approach looks up an approach by key.
func (p *Parsed) Approach(key string) (Approach, bool) {
	approach, ok := p.approaches[key]
	return approach, ok
}

// Len returns the number of approaches.
func (p *Parsed) Len() int {
	return len(p.order)
}

// Parse turns rubric text into a Parsed rubric. It never fails: malformed
// input yields a rubric with zero approaches.
func Parse(text string) *Parsed {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	parsed := New("")

	titleSeen := false
	current := ""
	for _, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		if !titleSeen {
			parsed.Title = line
			titleSeen = true
			continue
		}

		if match := approachHeader.FindStringSubmatch(line); match != nil {
			current = "Solution " + match[1]
			parsed.Add(current, Approach{Name: strings.TrimSpace(match[2]), Points: []Point{}})
			continue
		}

		match := pointLine.FindStringSubmatch(line)
		if match == nil || current == "" {
			continue
		}
		marks, err := strconv.Atoi(match[3])
		if err != nil {
			continue
		}

		approach := parsed.approaches[current]
		approach.Points = append(approach.Points, Point{
			ID:          match[1],
			Description: strings.TrimSpace(match[2]),
			Marks:       marks,
		})
		parsed.approaches[current] = approach
	}

	return parsed
}

// TotalMarks sums marks across every approach and point.
func TotalMarks(p *Parsed) int {
	total := 0
	for _, key := range p.order {
		total += p.approaches[key].MaxScore()
	}
	return total
}

// MarksFor sums the marks of one approach; unknown keys yield 0.
func MarksFor(p *Parsed, key string) int {
	approach, ok := p.approaches[key]
	if !ok {
		return 0
	}
	return approach.MaxScore()
}

// BestByMarks returns the approach with the highest mark total. Ties keep
// the first approach seen; an empty rubric returns "".
func BestByMarks(p *Parsed) string {
	best := ""
	bestMarks := -1
	for _, key := range p.order {
		if marks := p.approaches[key].MaxScore(); marks > bestMarks {
			best = key
			bestMarks = marks
		}
	}
	return best
}

// Format renders the rubric back into the instructor text format. Point
// IDs are written as parsed, so parsing the output yields an equal rubric.
func Format(p *Parsed) string {
	var builder strings.Builder
	builder.WriteString(p.Title)
	for _, key := range p.order {
		approach := p.approaches[key]
		fmt.Fprintf(&builder, "\n%s: %s", key, approach.Name)
		for i, point := range approach.Points {
			id := point.ID
			if id == "" {
				id = strconv.Itoa(i + 1)
			}
			fmt.Fprintf(&builder, "\n%s. %s [%d marks]", id, point.Description, point.Marks)
		}
	}
	return builder.String()
}

// FormatForLLM renders the rubric as markdown. When key is non-empty only
// that approach is included.
func FormatForLLM(p *Parsed, key string) string {
	lines := []string{"# " + p.Title}
	keys := p.order
	if key != "" {
		keys = []string{key}
	}
	for _, k := range keys {
		approach, ok := p.approaches[k]
		if !ok {
			continue
		}
		lines = append(lines, fmt.Sprintf("\n## %s: %s", k, approach.Name))
		lines = append(lines, FormatPoints(approach)...)
	}
	return strings.Join(lines, "\n")
}

// FormatApproach renders one approach as an enumerated list under a heading.
func FormatApproach(key string, approach Approach) string {
	lines := []string{fmt.Sprintf("# %s: %s", key, approach.Name)}
	lines = append(lines, FormatPoints(approach)...)
	return strings.Join(lines, "\n")
}

// FormatPoints renders each point as "<i>. <description> [<marks> marks]".
func FormatPoints(approach Approach) []string {
	lines := make([]string, 0, len(approach.Points))
	for i, point := range approach.Points {
		lines = append(lines, fmt.Sprintf("%d. %s [%d marks]", i+1, point.Description, point.Marks))
	}
	return lines
}

type orderedApproach struct {
	Key string `json:"key"`
	Approach
	MaxScore int `json:"max_score"`
}

// MarshalJSON keeps approach order stable on the wire.
func (p *Parsed) MarshalJSON() ([]byte, error) {
	approaches := make([]orderedApproach, 0, len(p.order))
	for _, key := range p.order {
		approach := p.approaches[key]
		approaches = append(approaches, orderedApproach{Key: key, Approach: approach, MaxScore: approach.MaxScore()})
	}
	return json.Marshal(struct {
		Title      string            `json:"title"`
		Approaches []orderedApproach `json:"approaches"`
	}{Title: p.Title, Approaches: approaches})
}
