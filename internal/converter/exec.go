package converter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
)

// ExecConverter bridges to the external conversion tool as a subprocess. The
// tool receives the input path and option flags and prints the Result JSON on
// stdout. Which tool runs is deployment configuration, not code.
type ExecConverter struct {
	// Command is the program plus fixed leading arguments,
	// e.g. ["docmark-convert"] or ["node", "converter/cli.js"].
	Command []string
}

func NewExecConverter(command []string) (*ExecConverter, error) {
	if len(command) == 0 || strings.TrimSpace(command[0]) == "" {
		return nil, fmt.Errorf("converter command is required")
	}
	return &ExecConverter{Command: command}, nil
}

func (c *ExecConverter) Convert(ctx context.Context, inputPath string, opts Options) (*Result, error) {
	args := append([]string(nil), c.Command[1:]...)
	args = append(args, inputPath, "--json")
	if opts.ImageDir != "" {
		args = append(args, "--image-dir", opts.ImageDir)
	}
	if opts.OutputDir != "" {
		args = append(args, "--output-dir", opts.OutputDir)
	}
	if opts.PreserveLayout {
		args = append(args, "--preserve-layout")
	}
	if opts.ExtractImages {
		args = append(args, "--extract-images")
	}
	if opts.ExtractCharts {
		args = append(args, "--extract-charts")
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.Command[0], args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return nil, fmt.Errorf("converter failed: %s", msg)
	}

	var res Result
	if err := json.Unmarshal(stdout.Bytes(), &res); err != nil {
		return nil, fmt.Errorf("decode converter output: %w", err)
	}
	return &res, nil
}
