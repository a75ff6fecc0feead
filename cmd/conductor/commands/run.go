package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fatih/color"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/conductor-html/conductor/internal/config"
	"github.com/conductor-html/conductor/internal/dispatch"
	"github.com/conductor-html/conductor/internal/dom"
	"github.com/conductor-html/conductor/internal/engine"
	"github.com/conductor-html/conductor/internal/watch"
	"github.com/conductor-html/conductor/pkg/types"
)

var (
	runDispatch []string
	runEvent    []string
	runActivate []string
	runOutput   string
	runDiff     bool
	runExtract  string
	runWatch    bool
	runDir      string
)

// runFS is the filesystem documents are read from and written to.
// Tests swap in an in-memory fs.
var runFS afero.Fs = afero.NewOsFs()

var runCmd = &cobra.Command{
	Use:   "run [files or globs...]",
	Short: "Process HTML documents in batch",
	Long: `Load one or more HTML documents, apply dispatch operations, and emit
the resulting markup. Inputs may be literal paths or doublestar globs
(quote them so the shell does not expand first).

Operations apply in flag order: every --dispatch, then every --event,
then every --activate. Dispatch and event values take an optional
target selector after " @ ".

Examples:
  conductor run page.html
  conductor run --dispatch "--class:add:ready @ body" page.html
  conductor run --event "click @ #save" --diff page.html
  conductor run --extract markdown "docs/**/*.html" -o out/
  conductor run --activate "#refresh" --watch dashboard.html`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDocuments,
}

func init() {
	runCmd.Flags().StringArrayVarP(&runDispatch, "dispatch", "d", nil, "Dispatch a command, optionally targeted: \"--toggle @ #panel\"")
	runCmd.Flags().StringArrayVar(&runEvent, "event", nil, "Fire an event, optionally targeted: \"click @ #save\"")
	runCmd.Flags().StringArrayVar(&runActivate, "activate", nil, "Activate the element matching a selector")
	runCmd.Flags().StringVarP(&runOutput, "output", "o", "", "Output file (single input) or directory (multiple inputs)")
	runCmd.Flags().BoolVar(&runDiff, "diff", false, "Emit a diff of the document before and after the operations")
	runCmd.Flags().StringVar(&runExtract, "extract", "", "Emit extracted content instead of markup (text|markdown)")
	runCmd.Flags().BoolVar(&runWatch, "watch", false, "Keep running and reprocess documents when they change on disk")
	runCmd.Flags().StringVar(&runDir, "directory", "", "Working directory")
}

// opKind discriminates the operation flags.
type opKind int

const (
	opDispatch opKind = iota
	opEvent
	opActivate
)

// docOperation is one parsed --dispatch/--event/--activate value.
type docOperation struct {
	kind     opKind
	value    string // command string, event type, or selector
	selector string // target selector for dispatch and event ops
}

// docReport is the outcome of processing a single document.
type docReport struct {
	path     string
	output   string
	failures int
}

func runDocuments(cmd *cobra.Command, args []string) error {
	workDir, err := GetWorkDir(runDir)
	if err != nil {
		return err
	}
	if err := config.GetPaths().EnsurePaths(); err != nil {
		return err
	}
	appConfig, err := config.Load(workDir)
	if err != nil {
		return err
	}

	if runExtract != "" && runExtract != "text" && runExtract != "markdown" {
		return fmt.Errorf("extract format must be 'text' or 'markdown'")
	}
	if runDiff && runExtract != "" {
		return fmt.Errorf("cannot combine --diff with --extract")
	}
	if runOutput != "" {
		// Color codes would land in the output files.
		color.NoColor = true
	}

	ops, err := collectOperations()
	if err != nil {
		return err
	}

	paths, err := expandInputs(runFS, args)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	labeled := len(paths) > 1

	failures := 0
	for _, path := range paths {
		report, err := processDocument(ctx, appConfig, path, ops)
		if err != nil {
			return err
		}
		failures += report.failures
		if err := writeReport(report, labeled); err != nil {
			return err
		}
	}

	if runWatch {
		return watchDocuments(ctx, appConfig, paths, ops, labeled)
	}

	if failures > 0 {
		return fmt.Errorf("%d command(s) failed", failures)
	}
	return nil
}

// collectOperations parses the operation flags in their listed order.
func collectOperations() ([]docOperation, error) {
	var ops []docOperation
	for _, raw := range runDispatch {
		value, selector := splitTarget(raw)
		if value == "" {
			return nil, fmt.Errorf("empty --dispatch value")
		}
		ops = append(ops, docOperation{kind: opDispatch, value: value, selector: selector})
	}
	for _, raw := range runEvent {
		value, selector := splitTarget(raw)
		if value == "" {
			return nil, fmt.Errorf("empty --event value")
		}
		ops = append(ops, docOperation{kind: opEvent, value: value, selector: selector})
	}
	for _, raw := range runActivate {
		selector := strings.TrimSpace(raw)
		if selector == "" {
			return nil, fmt.Errorf("empty --activate selector")
		}
		ops = append(ops, docOperation{kind: opActivate, value: selector})
	}
	return ops, nil
}

// splitTarget separates "value @ selector" at the last space-delimited
// @, so command parameters containing @ stay intact.
func splitTarget(raw string) (string, string) {
	if i := strings.LastIndex(raw, " @ "); i >= 0 {
		return strings.TrimSpace(raw[:i]), strings.TrimSpace(raw[i+3:])
	}
	return strings.TrimSpace(raw), ""
}

// expandInputs resolves the input arguments to concrete document
// paths, preserving argument order and dropping duplicates.
func expandInputs(fsys afero.Fs, args []string) ([]string, error) {
	var paths []string
	seen := make(map[string]bool)
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			paths = append(paths, p)
		}
	}

	for _, arg := range args {
		if !strings.ContainsAny(arg, "*?[{") {
			ok, err := afero.Exists(fsys, arg)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, fmt.Errorf("no such document: %s", arg)
			}
			add(arg)
			continue
		}

		base, pattern := doublestar.SplitPattern(filepath.ToSlash(arg))
		matches, err := doublestar.Glob(afero.NewIOFS(afero.NewBasePathFs(fsys, base)), pattern)
		if err != nil {
			return nil, fmt.Errorf("bad glob %q: %w", arg, err)
		}
		sort.Strings(matches)
		for _, m := range matches {
			full := filepath.Join(base, m)
			if isDir, err := afero.IsDir(fsys, full); err == nil && isDir {
				continue
			}
			add(full)
		}
	}

	if len(paths) == 0 {
		return nil, fmt.Errorf("no documents matched")
	}
	return paths, nil
}

// processDocument loads one document, applies the operations, and
// renders the requested output form.
func processDocument(ctx context.Context, appConfig *types.Config, path string, ops []docOperation) (*docReport, error) {
	markup, err := afero.ReadFile(runFS, path)
	if err != nil {
		return nil, err
	}

	eng, err := engine.New(appConfig)
	if err != nil {
		return nil, err
	}
	defer eng.Close()

	if err := eng.LoadDocument(string(markup), path); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	// Diff against the rendered form rather than the raw bytes; the
	// parser normalizes markup even when no operation touches it.
	before, err := eng.HTML()
	if err != nil {
		return nil, err
	}

	report := &docReport{path: path}
	for _, op := range ops {
		if err := applyOperation(ctx, eng, op, report); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}

	after, err := eng.HTML()
	if err != nil {
		return nil, err
	}

	switch {
	case runDiff:
		report.output = renderDiff(path, before, after)
	case runExtract != "":
		report.output, err = extractContent(after, runExtract)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	default:
		report.output = after
	}
	return report, nil
}

// applyOperation runs one operation against a loaded engine. Command
// failures are recorded on the report rather than aborting the file;
// unknown commands and selector misses abort because the flag itself
// is wrong.
func applyOperation(ctx context.Context, eng *engine.Engine, op docOperation, report *docReport) error {
	switch op.kind {
	case opDispatch:
		// Dispatch drops unknown commands on the floor by contract,
		// so pre-flight the lookup to fail loudly.
		if _, ok := eng.Commands().Resolve(op.value); !ok {
			return fmt.Errorf("unknown command %q: %s", op.value, eng.Commands().RecoveryHint(op.value))
		}
		res, err := eng.Dispatch(ctx, dispatch.Request{
			Raw:            op.value,
			TargetSelector: op.selector,
			Source:         types.SourceAPI,
		})
		if err != nil {
			return err
		}
		if res == nil {
			return fmt.Errorf("dispatch rate limit exceeded")
		}
		if !res.Success {
			report.failures++
			printFailure(op.value, res)
		}

	case opEvent:
		doc := eng.Document()
		target := doc.Body()
		if op.selector != "" {
			if target = doc.First(op.selector); target == nil {
				return fmt.Errorf("no element matches %q", op.selector)
			}
		}
		if _, err := eng.FireEvent(ctx, dom.NewEvent(op.value, target)); err != nil {
			return err
		}

	case opActivate:
		res, err := eng.Activate(ctx, op.value)
		if err != nil {
			return err
		}
		if res != nil && !res.Success {
			report.failures++
			printFailure("activate "+op.value, res)
		}
	}
	return nil
}

func printFailure(op string, res *dispatch.Result) {
	msg := "command reported failure"
	if res.Err != nil {
		msg = res.Err.Error()
	}
	fmt.Fprintln(os.Stderr, color.New(color.FgRed).Sprintf("  error: %s: %s", op, msg))
}

// writeReport emits one document's output. Multi-input runs label each
// document on stderr so concatenated stdout stays parseable.
func writeReport(report *docReport, labeled bool) error {
	if runOutput == "" {
		if labeled {
			fmt.Fprintln(os.Stderr, color.New(color.FgHiBlack).Sprintf("── %s", report.path))
		}
		fmt.Println(report.output)
		return nil
	}

	dest := runOutput
	if labeled {
		if err := runFS.MkdirAll(runOutput, 0755); err != nil {
			return err
		}
		dest = filepath.Join(runOutput, filepath.Base(report.path))
	}
	return afero.WriteFile(runFS, dest, []byte(report.output), 0644)
}

// watchDocuments blocks reprocessing files as they change, until
// interrupted.
func watchDocuments(ctx context.Context, appConfig *types.Config, paths []string, ops []docOperation, labeled bool) error {
	reload := func(path string) error {
		report, err := processDocument(ctx, appConfig, path, ops)
		if err != nil {
			return err
		}
		return writeReport(report, labeled)
	}

	w, err := watch.New(appConfig.Watcher, reload, paths...)
	if err != nil {
		return err
	}
	w.Start()
	defer w.Stop()

	fmt.Fprintln(os.Stderr, color.New(color.FgHiBlack).Sprintf("watching %d document(s), ctrl-c to stop", len(paths)))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}
	return nil
}
