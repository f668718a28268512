package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/noah-isme/gema-grader/internal/dto"
	"github.com/noah-isme/gema-grader/internal/rubric"
)

var rubricFlags struct {
	path       string
	asJSON     bool
	asMarkdown bool
	approach   string
}

var rubricCmd = &cobra.Command{
	Use:   "rubric",
	Short: "Parse a rubric file and show its approaches",
	RunE:  runRubric,
}

func init() {
	f := rubricCmd.Flags()
	f.StringVar(&rubricFlags.path, "rubric", "", "Path to the rubric text (required)")
	f.BoolVar(&rubricFlags.asJSON, "json", false, "Print the parsed rubric as JSON")
	f.BoolVar(&rubricFlags.asMarkdown, "markdown", false, "Print the rubric as markdown, as shown to the model")
	f.StringVar(&rubricFlags.approach, "approach", "", "Limit markdown output to one approach, e.g. \"Solution 2\"")

	_ = rubricCmd.MarkFlagRequired("rubric")
}

func runRubric(cmd *cobra.Command, _ []string) error {
	text, err := readInput(rubricFlags.path)
	if err != nil {
		return err
	}

	parsed := rubric.Parse(text)
	if parsed.Len() == 0 {
		return fmt.Errorf("no approaches found in %s", rubricFlags.path)
	}

	out := cmd.OutOrStdout()
	if rubricFlags.asJSON {
		return writeJSON(out, dto.NewRubricParseResponse(parsed))
	}
	if rubricFlags.asMarkdown {
		if rubricFlags.approach != "" {
			if _, ok := parsed.Approach(rubricFlags.approach); !ok {
				return fmt.Errorf("approach %q not found; have %v", rubricFlags.approach, parsed.Keys())
			}
		}
		fmt.Fprintln(out, rubric.FormatForLLM(parsed, rubricFlags.approach))
		return nil
	}

	fmt.Fprint(out, rubric.Format(parsed))
	fmt.Fprintf(out, "\nTotal marks:   %d\n", rubric.TotalMarks(parsed))
	fmt.Fprintf(out, "Best approach: %s\n", rubric.BestByMarks(parsed))
	return nil
}
