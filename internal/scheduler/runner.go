package scheduler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"Cortexa/internal/model"
	"Cortexa/internal/trainer"
)

// Runner performs one symbol's incremental update with data through the given day.
type Runner interface {
	Name() string
	Update(ctx context.Context, symbol string, through time.Time) (*trainer.Result, error)
}

// InProcessRunner calls the trainer directly.
type InProcessRunner struct {
	Trainer *trainer.Trainer
	Params  trainer.Params
}

func (r *InProcessRunner) Name() string { return "inprocess" }

func (r *InProcessRunner) Update(ctx context.Context, symbol string, through time.Time) (*trainer.Result, error) {
	return r.Trainer.Update(ctx, symbol, r.Params, through)
}

// ExecRunner runs the trainer binary once per symbol. Its stdout and stderr are
// appended to <LogDir>/<symbol>.log and its exit code is mapped back to a
// trainer error kind.
type ExecRunner struct {
	Bin    string
	Params trainer.Params
	// Extra is appended to every invocation, e.g. -artifacts or -source flags.
	Extra  []string
	LogDir string
}

func (r *ExecRunner) Name() string { return "exec" }

func (r *ExecRunner) args(symbol string, through time.Time) []string {
	args := []string{
		"-mode", trainer.ModeUpdate,
		"-symbol", symbol,
		"-end", through.Format(model.DateLayout),
		"-interval", r.Params.Interval,
		"-horizon", strconv.Itoa(r.Params.Horizon),
		"-threshold", formatFloat(r.Params.Threshold),
	}
	if rule := r.Params.Rule; rule != nil {
		args = append(args,
			"-signal-threshold", formatFloat(rule.SignalThreshold),
			"-cost", formatFloat(rule.Cost),
			"-cap", formatFloat(rule.Cap),
		)
	}
	return append(args, r.Extra...)
}

func (r *ExecRunner) Update(ctx context.Context, symbol string, through time.Time) (*trainer.Result, error) {
	args := r.args(symbol, through)
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, r.Bin, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	runErr := cmd.Run()

	logPath, logErr := r.appendLog(symbol, args, stdout.Bytes(), stderr.Bytes())

	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			code := exitErr.ExitCode()
			return nil, fmt.Errorf("%w: trainer exited with code %d (log: %s)", trainer.FromExitCode(code), code, logPath)
		}
		return nil, fmt.Errorf("run %s: %w", r.Bin, runErr)
	}
	if logErr != nil {
		return nil, fmt.Errorf("write trainer log: %w", logErr)
	}
	return parseResult(symbol, stdout.Bytes()), nil
}

func (r *ExecRunner) appendLog(symbol string, args []string, stdout, stderr []byte) (string, error) {
	dir := r.LogDir
	if dir == "" {
		dir = "logs"
	}
	path := filepath.Join(dir, strings.ReplaceAll(symbol, "-", "_")+".log")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return path, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return path, err
	}
	defer f.Close()

	var b bytes.Buffer
	b.WriteString("\n" + strings.Repeat("=", 60) + "\n")
	b.WriteString("CMD: " + r.Bin + " " + strings.Join(args, " ") + "\n")
	b.Write(stdout)
	if len(stderr) > 0 {
		b.WriteString("\n[stderr]\n")
		b.Write(stderr)
	}
	_, err = f.Write(b.Bytes())
	return path, err
}

// parseResult decodes the JSON result the trainer prints as its last stdout line.
func parseResult(symbol string, stdout []byte) *trainer.Result {
	lines := strings.Split(strings.TrimSpace(string(stdout)), "\n")
	var res trainer.Result
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &res); err != nil || res.Symbol == "" {
		return &trainer.Result{Symbol: symbol, Mode: trainer.ModeUpdate}
	}
	return &res
}

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
