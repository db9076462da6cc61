package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// ClaudeCLI is a Backend over the Claude Code CLI, one subprocess per call.
type ClaudeCLI struct {
	model   string
	workDir string
	procMgr *ProcessManager
}

// claudeOutput is the JSON envelope printed by `claude -p --output-format json`.
type claudeOutput struct {
	SessionID string `json:"session_id"`
	Result    struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"result"`
}

// NewClaudeCLI creates a Claude CLI backend adapter. The ProcessManager is
// optional; without it subprocesses are not tracked for shutdown.
func NewClaudeCLI(cfg Config, procMgr *ProcessManager) (*ClaudeCLI, error) {
	workDir := cfg.WorkDir
	if workDir == "" {
		var err error
		workDir, err = os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("getting working directory: %w", err)
		}
	}
	return &ClaudeCLI{model: cfg.Model, workDir: workDir, procMgr: procMgr}, nil
}

// Name identifies the adapter.
func (a *ClaudeCLI) Name() string {
	if a.model == "" {
		return "claude"
	}
	return "claude:" + a.model
}

// Close is a no-op in the subprocess-per-call model.
func (a *ClaudeCLI) Close() error { return nil }

// Generate invokes the CLI and parses its JSON output.
func (a *ClaudeCLI) Generate(ctx context.Context, req Request) (Response, error) {
	cmd := newCommand(ctx, "claude", a.buildArgs(req)...)
	cmd.Dir = a.workDir

	stdout, stderr, err := runCommand(cmd, a.procMgr)
	if err != nil {
		if ctx.Err() != nil {
			return Response{}, ctx.Err()
		}
		return Response{}, classifyCLIError(err, stderr)
	}

	content, err := parseClaudeOutput(stdout)
	if err != nil {
		return Response{}, fatal(ClassUnknown, fmt.Errorf("parsing claude output: %w (stderr: %s)", err, string(stderr)))
	}
	return Response{Content: content, Model: a.model}, nil
}

// buildArgs constructs the CLI invocation for a one-shot generation.
func (a *ClaudeCLI) buildArgs(req Request) []string {
	args := []string{"-p", req.Prompt, "--output-format", "json"}
	if a.model != "" {
		args = append(args, "--model", a.model)
	}
	if req.System != "" {
		args = append(args, "--system-prompt", req.System)
	}
	return args
}

// parseClaudeOutput extracts the text content from the CLI's JSON envelope.
func parseClaudeOutput(data []byte) (string, error) {
	var out claudeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("unmarshaling JSON: %w", err)
	}

	var b strings.Builder
	for _, item := range out.Result.Content {
		if item.Type == "text" {
			b.WriteString(item.Text)
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("no text content in response")
	}
	return b.String(), nil
}

// classifyCLIError maps a CLI failure onto the retry taxonomy using the
// subprocess's stderr.
func classifyCLIError(err error, stderr []byte) error {
	msg := strings.ToLower(string(stderr))
	switch {
	case strings.Contains(msg, "rate limit"), strings.Contains(msg, "429"):
		return transient(ClassRateLimited, err)
	case strings.Contains(msg, "overloaded"), strings.Contains(msg, "529"), strings.Contains(msg, "503"):
		return transient(ClassOverloaded, err)
	case strings.Contains(msg, "invalid request"), strings.Contains(msg, "bad request"):
		return fatal(ClassBadRequest, err)
	case strings.Contains(msg, "unauthorized"), strings.Contains(msg, "authentication"), strings.Contains(msg, "api key"):
		return fatal(ClassAuth, err)
	default:
		return fatal(ClassUnknown, err)
	}
}
