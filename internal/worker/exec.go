package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/vmatresu/claimd/internal/backlog"
)

// ExecHandler runs an external command per item. The item is passed through
// the environment:
//
//	CLAIMD_ITEM_ID        item id
//	CLAIMD_ITEM_KIND      item kind
//	CLAIMD_ITEM_TITLE     item title
//	CLAIMD_ITEM_PRIORITY  decimal priority
//	CLAIMD_ITEM_HEADERS   headers as a JSON object
//
// A non-zero exit is a handler failure, which releases the item.
type ExecHandler struct {
	// Argv is the command and its arguments. Argv[0] is resolved via PATH.
	Argv []string
	// Stdout/Stderr default to the worker process's own streams.
	Stdout io.Writer
	Stderr io.Writer
}

// Handle implements Handler.
func (h *ExecHandler) Handle(ctx context.Context, it *backlog.Item) (string, error) {
	if len(h.Argv) == 0 {
		return "", fmt.Errorf("exec handler: empty command")
	}
	cmd := exec.CommandContext(ctx, h.Argv[0], h.Argv[1:]...)
	cmd.Stdout = h.Stdout
	cmd.Stderr = h.Stderr
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}
	cmd.Env = append(os.Environ(), itemEnv(it)...)
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("exec %s: %w", h.Argv[0], err)
	}
	return "", nil
}

func itemEnv(it *backlog.Item) []string {
	headers := "{}"
	if len(it.Headers) > 0 {
		if b, err := json.Marshal(it.Headers); err == nil {
			headers = string(b)
		}
	}
	return []string{
		"CLAIMD_ITEM_ID=" + it.ID,
		"CLAIMD_ITEM_KIND=" + it.Kind,
		"CLAIMD_ITEM_TITLE=" + it.Title,
		fmt.Sprintf("CLAIMD_ITEM_PRIORITY=%d", it.Priority),
		"CLAIMD_ITEM_HEADERS=" + headers,
	}
}
