package hooks

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
)

// Handle reads HookInput from stdin, dispatches on event and writes any
// output to stdout. Failures are reported on stderr only.
func Handle(event string, stdin io.Reader) {
	if err := Run(NewClient(), event, stdin, os.Stdout); err != nil {
		ReportError(err)
	}
}

// Run is Handle with an explicit client and output.
func Run(client *Client, event string, stdin io.Reader, stdout io.Writer) error {
	var input HookInput
	if err := json.NewDecoder(stdin).Decode(&input); err != nil && !errors.Is(err, io.EOF) {
		// Context still answers on bad stdin, with nothing retained
		if event == "context" {
			WriteContextOutput(stdout, emptyContext(nil))
		}
		return fmt.Errorf("decode stdin: %w", err)
	}

	// Check server health, degrade gracefully if down
	if !client.Healthy() {
		if event == "context" {
			return WriteContextOutput(stdout, emptyContext(input.History))
		}
		return nil // silent exit for other events
	}

	switch event {
	case "message":
		return handleMessage(client, &input)
	case "context":
		return handleContext(client, &input, stdout)
	default:
		return fmt.Errorf("unknown hook event: %s", event)
	}
}
