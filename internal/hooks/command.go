package hooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// DefaultCommandTimeout bounds a command hook that sets no timeout.
const DefaultCommandTimeout = 10 * time.Second

// Command returns a handler that runs command through sh -c with the
// JSON-encoded payload on stdin and CHATKIT_HOOK_EVENT set. A non-zero
// exit or a timeout is returned as an error carrying the command output.
func Command(command string, timeout time.Duration) Handler {
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	return func(ctx context.Context, p Payload) error {
		input, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("encoding payload: %w", err)
		}

		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		cmd := exec.CommandContext(ctx, "sh", "-c", command)
		cmd.Stdin = bytes.NewReader(input)
		cmd.Env = append(os.Environ(), "CHATKIT_HOOK_EVENT="+p.Event)
		cmd.WaitDelay = time.Second

		out, err := cmd.CombinedOutput()
		if ctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("hook %q timed out after %s", command, timeout)
		}
		if err != nil {
			return fmt.Errorf("hook %q: %w: %s", command, err, strings.TrimSpace(string(out)))
		}
		return nil
	}
}
