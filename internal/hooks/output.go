package hooks

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
)

// ContextOutput is what the context hook prints: the memory context, ready to
// be placed in front of the conversation.
type ContextOutput struct {
	LTM []string `json:"ltm"`
	MTM []string `json:"mtm"`
	STM []string `json:"stm"`
}

// emptyContext is the degraded output when the server cannot help: no
// retained memories, only the history the frontend already has.
func emptyContext(history []string) ContextOutput {
	out := ContextOutput{LTM: []string{}, MTM: []string{}, STM: []string{}}
	out.STM = append(out.STM, history...)
	return out
}

// WriteContextOutput writes the context hook response.
func WriteContextOutput(w io.Writer, out ContextOutput) error {
	return json.NewEncoder(w).Encode(out)
}

// ReportError logs to stderr. Hooks exit 0 regardless so they never break
// the frontend.
func ReportError(err error) {
	fmt.Fprintf(os.Stderr, "kura hook: %v\n", err)
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
