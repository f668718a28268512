package main

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/noah-isme/gema-grader/internal/dto"
	"github.com/noah-isme/gema-grader/internal/service"
)

var evaluateFlags struct {
	problem  string
	rubric   string
	code     string
	solution string
	examples string
	language string
	mode     string
	asText   bool
}

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Grade a student solution against a rubric",
	Long: "Grade a student solution against a rubric.\n\n" +
		"The model provider, model and credentials come from GRADER_* environment\n" +
		"variables (or a .env file), the same settings the HTTP server uses.",
	RunE: runEvaluate,
}

func init() {
	f := evaluateCmd.Flags()
	f.StringVar(&evaluateFlags.problem, "problem", "", "Path to the problem statement (required)")
	f.StringVar(&evaluateFlags.rubric, "rubric", "", "Path to the rubric text (required)")
	f.StringVar(&evaluateFlags.code, "code", "", "Path to the student source file (required)")
	f.StringVar(&evaluateFlags.solution, "solution", "", "Path to a model solution or editorial")
	f.StringVar(&evaluateFlags.examples, "examples", "", "Problem examples directory")
	f.StringVar(&evaluateFlags.language, "language", "", "Source language; detected when empty")
	f.StringVar(&evaluateFlags.mode, "mode", dto.EvaluationModeComplete, "Grading mode: complete or pointwise")
	f.BoolVar(&evaluateFlags.asText, "text", false, "Print a readable summary instead of JSON")

	_ = evaluateCmd.MarkFlagRequired("problem")
	_ = evaluateCmd.MarkFlagRequired("rubric")
	_ = evaluateCmd.MarkFlagRequired("code")
}

func runEvaluate(cmd *cobra.Command, _ []string) error {
	req := dto.EvaluateRequest{
		ExamplesDir: evaluateFlags.examples,
		Language:    evaluateFlags.language,
		Mode:        evaluateFlags.mode,
	}

	inputs := []struct {
		path   string
		target *string
	}{
		{evaluateFlags.problem, &req.ProblemStatement},
		{evaluateFlags.rubric, &req.Rubric},
		{evaluateFlags.code, &req.StudentCode},
		{evaluateFlags.solution, &req.ModelSolution},
	}
	for _, input := range inputs {
		text, err := readInput(input.path)
		if err != nil {
			return err
		}
		*input.target = text
	}

	grader, _, err := loadEngine(cmd.Context(), cliLogger())
	if err != nil {
		return err
	}

	result := grader.Evaluation.Evaluate(cmd.Context(), req)

	out := cmd.OutOrStdout()
	if evaluateFlags.asText {
		printEvaluation(cmd, result)
	} else if err := writeJSON(out, result); err != nil {
		return err
	}

	if result.Rejected() {
		return &service.InsecureSubmissionError{Issues: result.SecurityIssues}
	}
	if result.Failed() {
		return fmt.Errorf("evaluation failed: %s", *result.Error)
	}
	return nil
}

func printEvaluation(cmd *cobra.Command, result dto.EvaluationResponse) {
	out := cmd.OutOrStdout()
	if result.Failed() {
		fmt.Fprintf(out, "Error: %s\n", *result.Error)
		for _, issue := range result.SecurityIssues {
			fmt.Fprintf(out, "  - %s\n", issue)
		}
		return
	}

	fmt.Fprintf(out, "Approach: %s\n", result.Approach)
	fmt.Fprintf(out, "Score:    %d/%d\n", result.Score, result.MaxScore)

	keys := make([]string, 0, len(result.Feedback))
	for key := range result.Feedback {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, errA := strconv.Atoi(keys[i])
		b, errB := strconv.Atoi(keys[j])
		if errA != nil || errB != nil {
			return keys[i] < keys[j]
		}
		return a < b
	})

	fmt.Fprintln(out, "Criteria:")
	for _, key := range keys {
		item := result.Feedback[key]
		fmt.Fprintf(out, "  %s. [%d/%d] %s\n", key, item.PointsAwarded, item.MaxPoints, item.Feedback)
	}
	if result.Summary != "" {
		fmt.Fprintf(out, "Summary:  %s\n", result.Summary)
	}
}
