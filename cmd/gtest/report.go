package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
)

const (
	cRed     = "\x1b[91m"
	cYellow  = "\x1b[93m"
	cGreen   = "\x1b[92m"
	cCyan    = "\x1b[96m"
	cMagenta = "\x1b[95m"
	cBold    = "\x1b[1m"
	cNone    = "\x1b[0m"
)

var useColor = isatty.IsTerminal(os.Stdout.Fd())

func paint(code, s string) string {
	if !useColor {
		return s
	}
	return code + s + cNone
}

var statusColor = map[Status]string{
	StatusPass:  cGreen,
	StatusFail:  cRed,
	StatusSkip:  cYellow,
	StatusError: cRed,
}

const rule = "----------------------------------------------------------------------"

func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%6dµs", d.Microseconds())
	}
	return fmt.Sprintf("%6dms", d.Milliseconds())
}

func printSummary(w io.Writer, results []*FileTestResult) {
	counts := make(map[Status]int)
	var compileTime, runTime time.Duration

	for _, r := range results {
		counts[r.Status]++
		fmt.Fprintln(w, rule)
		fmt.Fprintf(w, "Testing %s...\n", paint(cCyan, r.File))
		fmt.Fprintf(w, "  [%s] %s\n", paint(statusColor[r.Status], string(r.Status)), r.Message)
		if r.Status == StatusFail {
			fmt.Fprintln(w, formatDiff(r.Diff))
		}
		if r.Target == nil {
			continue
		}

		compileTime += r.Target.Compile.Duration
		var fileRun time.Duration
		for _, run := range r.Target.Runs {
			fileRun += run.Result.Duration
			if *verbose {
				fmt.Fprintf(w, "  [%s] %-12s %s  %s step(s)\n", paint(cMagenta, "RUN"), run.Name,
					formatDuration(run.Result.Duration), humanize.Comma(int64(run.Result.Steps)))
			}
		}
		runTime += fileRun
		if *verbose {
			fmt.Fprintf(w, "  [compile: %s | run: %s]\n", formatDuration(r.Target.Compile.Duration), formatDuration(fileRun))
		}
	}

	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "%s %s, %s, %s, %s, %d Total\n",
		paint(cBold, "Test Summary:"),
		paint(cGreen, fmt.Sprintf("%d Passed", counts[StatusPass])),
		paint(cRed, fmt.Sprintf("%d Failed", counts[StatusFail])),
		paint(cYellow, fmt.Sprintf("%d Skipped", counts[StatusSkip])),
		paint(cRed, fmt.Sprintf("%d Errored", counts[StatusError])),
		len(results))
	fmt.Fprintf(w, "Total compile time %s, total run time %s\n",
		strings.TrimSpace(formatDuration(compileTime)), strings.TrimSpace(formatDuration(runTime)))
}

// formatDiff indents a cmp diff and colours its removed and added lines.
func formatDiff(diff string) string {
	if diff == "" {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("    --- Diff ---\n")
	for _, line := range strings.Split(diff, "\n") {
		switch trimmed := strings.TrimSpace(line); {
		case strings.HasPrefix(trimmed, "-"):
			line = paint(cRed, line)
		case strings.HasPrefix(trimmed, "+"):
			line = paint(cGreen, line)
		}
		sb.WriteString("    " + line + "\n")
	}
	return sb.String()
}

func writeJSONReport(results []*FileTestResult) TestSuiteResults {
	byFile := make(TestSuiteResults, len(results))
	for _, r := range results {
		byFile[r.File] = r
	}

	data, err := json.MarshalIndent(byFile, "", "  ")
	if err != nil {
		log.Printf("%s failed to marshal results: %v", paint(cRed, "[ERROR]"), err)
		return byFile
	}
	path := *outputJSON
	if *jsonDir != "" {
		path = filepath.Join(*jsonDir, *outputJSON)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		log.Printf("%s failed to write report %s: %v", paint(cRed, "[ERROR]"), path, err)
	} else {
		fmt.Printf("Full test report saved to %s (%s)\n", path, humanize.Bytes(uint64(len(data))))
	}
	return byFile
}
