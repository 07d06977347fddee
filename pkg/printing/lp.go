// Package printing submits spooled documents to CUPS through the lp command.
package printing

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Request describes one document submission.
type Request struct {
	FilePath string
	Printer  string
	Copies   int
	Title    string
	Options  map[string]string
}

// Result is what the print system reported for an accepted submission.
type Result struct {
	ExternalJobID string
	Printer       string
	Output        string
}

// SubmitError is a failed submission. Output holds whatever lp printed.
type SubmitError struct {
	Reason string
	Output string
	Err    error
}

func (e *SubmitError) Error() string {
	if e.Output != "" {
		return fmt.Sprintf("%s: %s", e.Reason, e.Output)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason
}

func (e *SubmitError) Unwrap() error { return e.Err }

// LPConfig configures the lp invocation.
type LPConfig struct {
	Command string
	Printer string
	Timeout time.Duration
}

// LPSubmitter runs lp with a bounded timeout.
type LPSubmitter struct {
	command string
	printer string
	timeout time.Duration
	run     runFunc
}

type runFunc func(ctx context.Context, name string, args []string) (string, int, error)

// NewLPSubmitter builds a submitter; an empty command defaults to "lp".
func NewLPSubmitter(cfg LPConfig) *LPSubmitter {
	if cfg.Command == "" {
		cfg.Command = "lp"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &LPSubmitter{
		command: cfg.Command,
		printer: strings.TrimSpace(cfg.Printer),
		timeout: cfg.Timeout,
		run:     execRun,
	}
}

// DefaultPrinter is the configured destination, empty for the CUPS default.
func (s *LPSubmitter) DefaultPrinter() string {
	return s.printer
}

// Submit sends the request to lp and parses the job handle from its output.
func (s *LPSubmitter) Submit(ctx context.Context, req Request) (*Result, error) {
	printer := strings.TrimSpace(req.Printer)
	if printer == "" {
		printer = s.printer
	}

	args := BuildArgs(printer, req)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	output, code, err := s.run(ctx, s.command, args)
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return nil, &SubmitError{Reason: fmt.Sprintf("lp timed out after %s", s.timeout), Err: ctx.Err()}
	case errors.Is(err, exec.ErrNotFound):
		return nil, &SubmitError{Reason: fmt.Sprintf("print command %q not found", s.command), Err: err}
	case err != nil && code == 0:
		return nil, &SubmitError{Reason: "failed to run lp", Err: err}
	case code != 0:
		if output == "" {
			return nil, &SubmitError{Reason: fmt.Sprintf("exit %d", code)}
		}
		return nil, &SubmitError{Reason: fmt.Sprintf("lp exited with %d", code), Output: output}
	}

	jobID, parsedPrinter := ParseJobHandle(output)
	if jobID == "" {
		return nil, &SubmitError{Reason: "could not parse job id from lp output", Output: output}
	}

	resolved := printer
	if resolved == "" {
		resolved = parsedPrinter
	}
	return &Result{ExternalJobID: jobID, Printer: resolved, Output: output}, nil
}

// BuildArgs renders the lp argument list. Options are emitted in key order, empty
// values are skipped, and the file path comes last.
func BuildArgs(printer string, req Request) []string {
	copies := req.Copies
	if copies < 1 {
		copies = 1
	}
	title := req.Title
	if title == "" {
		title = "print-job"
	}

	var args []string
	if printer != "" {
		args = append(args, "-d", printer)
	}
	args = append(args, "-n", strconv.Itoa(copies), "-t", title)

	keys := make([]string, 0, len(req.Options))
	for k := range req.Options {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := strings.TrimSpace(req.Options[k])
		if v == "" {
			continue
		}
		args = append(args, "-o", k+"="+v)
	}

	return append(args, req.FilePath)
}

var (
	requestIDPattern = regexp.MustCompile(`request id is\s+([^\s]+)-(\d+)`)
	handlePattern    = regexp.MustCompile(`([A-Za-z0-9_.-]+)-(\d+)`)
)

// ParseJobHandle extracts "<printer>-<n>" from lp output and returns the full handle and
// the printer part.
func ParseJobHandle(output string) (jobID, printer string) {
	if m := requestIDPattern.FindStringSubmatch(output); m != nil {
		return m[1] + "-" + m[2], m[1]
	}
	if m := handlePattern.FindStringSubmatch(output); m != nil {
		return m[1] + "-" + m[2], m[1]
	}
	return "", ""
}

func execRun(ctx context.Context, name string, args []string) (string, int, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	output := strings.TrimSpace(strings.Join(nonEmpty(stdout.String(), stderr.String()), "\n"))

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return output, exitErr.ExitCode(), nil
	}
	return output, 0, err
}

func nonEmpty(parts ...string) []string {
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
