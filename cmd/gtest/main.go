// gtest compiles every test program in-process, interprets its entry
// function and compares what it printed, its diagnostics and a hash of the
// emitted QBE IL against a golden .<name>.json file next to the source.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

type Execution struct {
	Stdout         string        `json:"stdout"`
	Stderr         string        `json:"stderr"`
	ExitCode       int           `json:"exitCode"`
	Duration       time.Duration `json:"duration"`
	TimedOut       bool          `json:"timed_out"`
	UnstableOutput bool          `json:"unstable_output,omitempty"`
	Steps          int           `json:"steps,omitempty"`
}

type TestRun struct {
	Name   string    `json:"name"`
	Result Execution `json:"result"`
}

type TargetResult struct {
	Compile Execution `json:"compile"`
	// QBEHash is the xxhash of the QBE IL emitted for the file.
	QBEHash string    `json:"qbe_hash,omitempty"`
	Runs    []TestRun `json:"runs"`
}

type Status string

const (
	StatusPass  Status = "PASS"
	StatusFail  Status = "FAIL"
	StatusSkip  Status = "SKIP"
	StatusError Status = "ERROR"
)

type FileTestResult struct {
	File      string        `json:"file"`
	Status    Status        `json:"status"`
	Message   string        `json:"message,omitempty"`
	Diff      string        `json:"diff,omitempty"`
	Reference *TargetResult `json:"reference,omitempty"`
	Target    *TargetResult `json:"target,omitempty"`
}

type TestSuiteResults map[string]*FileTestResult

var (
	generateGolden = flag.String("generate-golden", "", "Write golden .json files for the given source globs (space-separated) and exit.")
	testFiles      = flag.String("test-files", "tests/*.anc", "Glob pattern(s) of programs to test (space-separated).")
	skipFiles      = flag.String("skip-files", "", "Files to skip (space-separated).")
	outputJSON     = flag.String("output", ".test_results.json", "Where to write the JSON report.")
	timeout        = flag.Duration("timeout", 5*time.Second, "Deadline for each interpreted run.")
	jobs           = flag.Int("j", 4, "Number of files tested in parallel.")
	runs           = flag.Int("runs", 3, "Interpret each program this many times and keep the fastest run.")
	verbose        = flag.Bool("v", false, "Print per-run timings and step counts.")
	jsonDir        = flag.String("dir", "", "Directory holding the golden files (defaults to each source's directory).")
	checkHash      = flag.Bool("check-ir", true, "Fail when the emitted QBE IL differs from the golden hash.")
)

func main() {
	flag.Parse()
	log.SetFlags(0)
	if *runs < 1 {
		*runs = 1
	}

	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt)
	go func() {
		<-interrupts
		fmt.Printf("\n%s Test run cancelled.\n", paint(cYellow, "[INTERRUPT]"))
		os.Exit(1)
	}()

	if *generateGolden != "" {
		if err := writeGoldens(*generateGolden); err != nil {
			log.Fatalf("%s %v", paint(cRed, "[ERROR]"), err)
		}
		return
	}

	files, err := expandGlobPatterns(*testFiles)
	if err != nil {
		log.Fatalf("%s invalid glob pattern(s): %v", paint(cRed, "[ERROR]"), err)
	}
	if len(files) == 0 {
		log.Println("No test files found matching the pattern(s).")
		return
	}

	results := runSuite(files, strings.Fields(*skipFiles))
	printSummary(os.Stdout, results)
	if hasFailures(writeJSONReport(results)) {
		os.Exit(1)
	}
}

func getJSONPath(sourceFile string) string {
	name := "." + filepath.Base(sourceFile) + ".json"
	if *jsonDir != "" {
		return filepath.Join(*jsonDir, name)
	}
	return filepath.Join(filepath.Dir(sourceFile), name)
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := xxhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", h.Sum64()), nil
}

func hashString(s string) string { return fmt.Sprintf("%x", xxhash.Sum64String(s)) }

func writeGoldens(patterns string) error {
	files, err := expandGlobPatterns(patterns)
	if err != nil {
		return fmt.Errorf("invalid glob pattern(s): %w", err)
	}
	if *jsonDir != "" {
		if err := os.MkdirAll(*jsonDir, 0o755); err != nil {
			return err
		}
	}
	for _, file := range files {
		result, err := compileAndRun(file)
		if err != nil {
			return fmt.Errorf("could not generate golden file for %s: %w", file, err)
		}
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		golden := getJSONPath(file)
		if err := os.WriteFile(golden, data, 0o644); err != nil {
			return err
		}
		log.Printf("%s %s", paint(cGreen, "[GOLDEN]"), golden)
	}
	return nil
}

// runSuite tests files on *jobs workers and returns one result per file, in
// the order given. Skipped names and files whose content repeats an earlier
// file are not run.
func runSuite(files, skip []string) []*FileTestResult {
	skipped := make(map[string]bool, len(skip))
	for _, f := range skip {
		if abs, err := filepath.Abs(f); err == nil {
			skipped[abs] = true
		}
	}

	results := make([]*FileTestResult, len(files))
	pending := make(chan int)
	var wg sync.WaitGroup
	for range max(*jobs, 1) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range pending {
				results[i] = testFile(files[i])
			}
		}()
	}

	firstWithHash := make(map[string]string)
	for i, file := range files {
		if skipped[file] {
			results[i] = &FileTestResult{File: file, Status: StatusSkip, Message: "Explicitly skipped"}
			continue
		}
		sum, err := hashFile(file)
		if err != nil {
			results[i] = &FileTestResult{File: file, Status: StatusError, Message: fmt.Sprintf("Failed to read file for hashing: %v", err)}
			continue
		}
		if orig, dup := firstWithHash[sum]; dup {
			results[i] = &FileTestResult{File: file, Status: StatusSkip, Message: "Content is identical to " + orig}
			continue
		}
		firstWithHash[sum] = file
		pending <- i
	}
	close(pending)
	wg.Wait()
	return results
}

func testFile(file string) *FileTestResult {
	goldenFile := getJSONPath(file)
	data, err := os.ReadFile(goldenFile)
	if os.IsNotExist(err) {
		return &FileTestResult{File: file, Status: StatusSkip, Message: "Cannot test without a corresponding .json golden file"}
	}
	if err != nil {
		return &FileTestResult{File: file, Status: StatusError, Message: fmt.Sprintf("Could not read golden file %s: %v", goldenFile, err)}
	}
	var golden TargetResult
	if err := json.Unmarshal(data, &golden); err != nil {
		return &FileTestResult{File: file, Status: StatusError, Message: fmt.Sprintf("Could not parse golden file %s: %v", goldenFile, err)}
	}

	got, err := compileAndRun(file)
	if err != nil {
		return &FileTestResult{File: file, Status: StatusError, Message: err.Error(), Reference: &golden}
	}
	return compareResults(file, &golden, got)
}

var compareOpts = []cmp.Option{
	cmpopts.IgnoreFields(Execution{}, "Duration", "UnstableOutput", "Steps"),
	cmpopts.EquateEmpty(),
	cmpopts.SortSlices(func(a, b TestRun) bool { return a.Name < b.Name }),
}

// compareResults diffs everything except timings.
func compareResults(file string, golden, got *TargetResult) *FileTestResult {
	var diffs strings.Builder
	if d := cmp.Diff(golden.Compile, got.Compile, compareOpts...); d != "" {
		fmt.Fprintf(&diffs, "Compile result mismatch (-golden +got):\n%s", d)
	}
	// A golden file without a hash only pins behaviour.
	if *checkHash && golden.QBEHash != "" && golden.QBEHash != got.QBEHash {
		fmt.Fprintf(&diffs, "QBE IL hash mismatch:\n- %s\n+ %s\n", golden.QBEHash, got.QBEHash)
	}
	if d := cmp.Diff(golden.Runs, got.Runs, compareOpts...); d != "" {
		fmt.Fprintf(&diffs, "Runtime mismatch (-golden +got):\n%s", d)
	}
	for _, run := range got.Runs {
		if run.Result.UnstableOutput {
			fmt.Fprintf(&diffs, "Run '%s' produced different output across runs.\n", run.Name)
		}
	}

	res := &FileTestResult{File: file, Reference: golden, Target: got}
	if diffs.Len() > 0 {
		res.Status, res.Message, res.Diff = StatusFail, "Output, diagnostics or IR differ from the golden file", diffs.String()
	} else {
		res.Status, res.Message = StatusPass, "All test cases passed"
	}
	return res
}

func hasFailures(results TestSuiteResults) bool {
	for _, r := range results {
		if r.Status == StatusFail || r.Status == StatusError {
			return true
		}
	}
	return false
}

// expandGlobPatterns returns the regular files matched by the space-separated
// patterns as absolute paths, without duplicates.
func expandGlobPatterns(patterns string) ([]string, error) {
	var out []string
	seen := make(map[string]bool)
	for _, pattern := range strings.Fields(patterns) {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %s: %w", pattern, err)
		}
		for _, m := range matches {
			abs, err := filepath.Abs(m)
			if err != nil || seen[abs] {
				continue
			}
			if info, err := os.Stat(abs); err == nil && info.Mode().IsRegular() {
				out = append(out, abs)
				seen[abs] = true
			}
		}
	}
	return out, nil
}
