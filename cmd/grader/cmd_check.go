package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/noah-isme/gema-grader/internal/dto"
	"github.com/noah-isme/gema-grader/internal/security"
)

var errCheckFailed = errors.New("submission failed the security check")

var checkFlags struct {
	code       string
	staticOnly bool
	asJSON     bool
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Screen a source file for prompt-injection attempts",
	RunE:  runCheck,
}

func init() {
	f := checkCmd.Flags()
	f.StringVar(&checkFlags.code, "code", "", "Path to the student source file (required)")
	f.BoolVar(&checkFlags.staticOnly, "static-only", false, "Skip the model-based detection check")
	f.BoolVar(&checkFlags.asJSON, "json", false, "Print the report as JSON")

	_ = checkCmd.MarkFlagRequired("code")
}

func runCheck(cmd *cobra.Command, _ []string) error {
	code, err := readInput(checkFlags.code)
	if err != nil {
		return err
	}

	var result dto.SecurityCheckResponse
	if checkFlags.staticOnly {
		report := security.Scan(code)
		result = dto.SecurityCheckResponse{Passed: report.Passed, Issues: report.Issues}
	} else {
		grader, _, err := loadEngine(cmd.Context(), cliLogger())
		if err != nil {
			return err
		}
		result = grader.Evaluation.SecurityCheck(cmd.Context(), code)
	}
	if result.Issues == nil {
		result.Issues = []string{}
	}

	out := cmd.OutOrStdout()
	if checkFlags.asJSON {
		if err := writeJSON(out, result); err != nil {
			return err
		}
	} else if result.Passed {
		fmt.Fprintln(out, "PASSED: no injection patterns found")
	} else {
		fmt.Fprintln(out, "FAILED:")
		for _, issue := range result.Issues {
			fmt.Fprintf(out, "  - %s\n", issue)
		}
	}

	if !result.Passed {
		return errCheckFailed
	}
	return nil
}
