package commands

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/sergi/go-diff/diffmatchpatch"
)

// renderDiff builds a line diff between the rendered document before
// and after the operations. Unchanged runs collapse to a count so
// large documents stay readable.
func renderDiff(path, before, after string) string {
	if before == after {
		return fmt.Sprintf("%s: no changes", path)
	}

	dmp := diffmatchpatch.New()
	a, b, lineArray := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffMain(a, b, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)

	var sb strings.Builder
	fmt.Fprintf(&sb, "--- %s\n+++ %s\n", path, path)
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			writeDiffLines(&sb, "+", d.Text, color.New(color.FgGreen))
		case diffmatchpatch.DiffDelete:
			writeDiffLines(&sb, "-", d.Text, color.New(color.FgRed))
		case diffmatchpatch.DiffEqual:
			if n := diffLineCount(d.Text); n > 0 {
				fmt.Fprintln(&sb, color.New(color.FgHiBlack).Sprintf("@@ %d unchanged line(s)", n))
			}
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func writeDiffLines(sb *strings.Builder, prefix, text string, c *color.Color) {
	for _, line := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
		fmt.Fprintln(sb, c.Sprintf("%s %s", prefix, line))
	}
}

func diffLineCount(text string) int {
	if text == "" {
		return 0
	}
	n := strings.Count(text, "\n")
	if !strings.HasSuffix(text, "\n") {
		n++
	}
	return n
}
