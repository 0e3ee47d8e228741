package responder

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/MrWong99/tapvox/pkg/provider/llm"
)

// DefaultWarmupPrompt asks the model for a trivial reply so the first real
// request does not pay the model load time.
const DefaultWarmupPrompt = "Responde con un Ok simple."

// Warmup sends a single non-streaming request and waits up to timeout for the
// reply. It does not touch the conversation history. The reply text is
// returned for logging.
func Warmup(ctx context.Context, p llm.Provider, prompt string, timeout time.Duration) (string, error) {
	if prompt == "" {
		prompt = DefaultWarmupPrompt
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	resp, err := p.Complete(ctx, llm.CompletionRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("responder: warm-up: %w", err)
	}
	if resp == nil {
		return "", nil
	}
	return strings.TrimSpace(resp.Content), nil
}
