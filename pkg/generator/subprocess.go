package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/lokutor-ai/voice-echo/pkg/providers/clienterr"
)

// SubprocessGenerator invokes a local CLI agent binary once per turn,
// passing the prior turn's conversation id (if any) so the agent can
// resume its own session. The Session Store, not this type, is the
// source of truth for which conversation id belongs to which call.
type SubprocessGenerator struct {
	agentBinary          string
	dangerouslySkipPerms bool
	soulPath             string
}

func NewSubprocessGenerator(agentBinary string, dangerouslySkipPerms bool, soulPath string) *SubprocessGenerator {
	if agentBinary == "" {
		agentBinary = "claude"
	}
	return &SubprocessGenerator{
		agentBinary:          agentBinary,
		dangerouslySkipPerms: dangerouslySkipPerms,
		soulPath:             soulPath,
	}
}

type cliJSONOutput struct {
	Result    string `json:"result"`
	SessionID string `json:"session_id"`
}

func (g *SubprocessGenerator) Send(ctx context.Context, callID, prompt, conversationID string) (string, string, error) {
	args := []string{"-p", prompt, "--output-format", "json"}
	if g.dangerouslySkipPerms {
		args = append(args, "--dangerously-skip-permissions")
	}
	if g.soulPath != "" {
		if contents, err := os.ReadFile(g.soulPath); err == nil {
			args = append(args, "--append-system-prompt", string(contents))
		}
	}
	if conversationID != "" {
		args = append(args, "-r", conversationID)
	}

	cmd := exec.CommandContext(ctx, g.agentBinary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if _, ok := err.(*exec.ExitError); ok {
			return "", "", clienterr.API(g.Name(), 0, strings.TrimSpace(stderr.String()))
		}
		return "", "", clienterr.Request(g.Name(), err)
	}

	var parsed cliJSONOutput
	if err := json.Unmarshal(stdout.Bytes(), &parsed); err != nil {
		return "", "", clienterr.Parse(g.Name(), err)
	}
	if parsed.SessionID == "" {
		return "", "", clienterr.Parse(g.Name(), fmt.Errorf("missing session_id in agent output"))
	}
	return parsed.Result, parsed.SessionID, nil
}

func (g *SubprocessGenerator) Name() string { return "subprocess-generator" }
