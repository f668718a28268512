package service

import (
	"fmt"
	"strings"

	"github.com/noah-isme/gema-grader/pkg/llm"
)

const searchProblem = "Given a sorted array and a target, return the index of the target or -1."

const searchRubric = `Search Problem
Solution 1: Binary Search
1. Correct loop invariant maintained [2 marks]
2. Handles not-found case [1 mark]
Solution 2: Linear Scan
1. Scans every element [1 mark]
2. Handles not-found case [1 mark]`

const binarySearchCode = `public class Solution {
    public int search(int[] nums, int target) {
        int lo = 0, hi = nums.length - 1;
        while (lo <= hi) {
            int mid = lo + (hi - lo) / 2;
            if (nums[mid] == target) return mid;
            if (nums[mid] < target) lo = mid + 1; else hi = mid - 1;
        }
        return -1;
    }
}`

const binarySearchExplanation = `{
  "approach_name": "Binary Search",
  "explanation": "Halves the search window each iteration.",
  "algorithm_details": "Iterative binary search",
  "time_complexity": "O(log n)",
  "space_complexity": "O(1)",
  "issues_identified": [],
  "correct_implementation": true
}`

const searchGuidance = `{
  "algorithm_type": "Binary Search",
  "algorithm_guidance": "Check the loop bounds.",
  "test_cases": "[1,3,5], 3 -> 1",
  "common_errors": "Off-by-one on hi",
  "key_implementation_patterns": "mid = lo + (hi - lo) / 2",
  "misleading_patterns": "Comments claiming linear search"
}`

// promptRoute answers prompts containing marker with reply or err.
type promptRoute struct {
	marker string
	reply  string
	err    error
}

// routePrompts builds a MockProvider handler that answers with the first
// route whose marker appears in the prompt.
func routePrompts(routes ...promptRoute) func(llm.Request) (string, error) {
	return func(req llm.Request) (string, error) {
		for _, route := range routes {
			if strings.Contains(req.Prompt, route.marker) {
				return route.reply, route.err
			}
		}
		return "", fmt.Errorf("no route for prompt %.60q", req.Prompt)
	}
}

func confidenceReply(confidence float64) string {
	return fmt.Sprintf(`{"confidence": %.2f, "explanation": "evidence", "key_indicators": ["loop"]}`, confidence)
}

const (
	explanationMarker = "expert code analyzer"
	approachOneMarker = "APPROACH ONLY:\nSolution 1"
	approachTwoMarker = "APPROACH ONLY:\nSolution 2"
	guidanceMarker    = "Create specific guidance"
	gradingMarker     = "EVALUATION INSTRUCTIONS"
	criterionMarker   = "against one criterion"
	summaryMarker     = "Based on the evaluation results below"
	canaryMarker      = "Repeat the phrase"
)
