package hooks

import (
	"encoding/json"
	"errors"
	"io"
)

func handleContext(client *Client, input *HookInput, stdout io.Writer) error {
	if input.OwnerID <= 0 {
		WriteContextOutput(stdout, emptyContext(input.History))
		return errors.New("context hook needs owner_id")
	}

	body, err := json.Marshal(map[string][]string{"history": input.History})
	if err != nil {
		return err
	}

	data, err := client.Post(input.ownerPath()+"/memories/context", body)
	if err != nil {
		// Degrade gracefully: return the history alone
		WriteContextOutput(stdout, emptyContext(input.History))
		return err
	}

	var out ContextOutput
	if err := json.Unmarshal(data, &out); err != nil {
		WriteContextOutput(stdout, emptyContext(input.History))
		return err
	}
	return WriteContextOutput(stdout, out)
}
