package checks

import (
	"fmt"
	"unicode/utf8"

	"github.com/mattjoyce/smoked-tofu/internal/command"
)

// Started builds the initial run posted when work on a commit begins.
func Started(name, headSHA string) CheckRun {
	return CheckRun{
		Name:    name,
		HeadSHA: headSHA,
		Status:  StatusInProgress,
		Output: &Output{
			Title:   "Running command",
			Summary: "Executing configured command for this commit",
		},
	}
}

// Finished builds the completed run from a command result.
func Finished(name, headSHA string, res *command.Result) CheckRun {
	conclusion := ConclusionFailure
	title := "Command failed"
	if res.Success {
		conclusion = ConclusionSuccess
		title = "Command succeeded"
	}

	text := truncateText(fmt.Sprintf("Exit code: %s\n\nSTDOUT:\n%s\n\nSTDERR:\n%s", res.ExitCodeString(), res.Stdout, res.Stderr))
	return CheckRun{
		Name:       name,
		HeadSHA:    headSHA,
		Status:     StatusCompleted,
		Conclusion: &conclusion,
		Output: &Output{
			Title:   title,
			Summary: res.Summary(),
			Text:    &text,
		},
	}
}

// MaxOutputText is the longest output text GitHub accepts on a check run, in characters.
const MaxOutputText = 65535

const truncatedSuffix = "\n\n[output truncated]"

// truncateText cuts s to MaxOutputText characters on a rune boundary.
func truncateText(s string) string {
	if utf8.RuneCountInString(s) <= MaxOutputText {
		return s
	}
	keep := MaxOutputText - utf8.RuneCountInString(truncatedSuffix)
	n := 0
	for i := range s {
		if n == keep {
			return s[:i] + truncatedSuffix
		}
		n++
	}
	return s
}
