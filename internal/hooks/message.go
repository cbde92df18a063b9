package hooks

import (
	"encoding/json"
	"errors"
	"strings"
)

// signalTriggers are phrases that indicate the user wants something remembered.
var signalTriggers = []string{
	"remember this", "remember that", "don't forget",
	"always use", "never use", "always do", "never do",
	"my name is", "i prefer", "we decided",
}

// hasSignal returns true if the content contains any signal trigger phrase.
func hasSignal(content string) bool {
	lower := strings.ToLower(content)
	for _, trigger := range signalTriggers {
		if strings.Contains(lower, trigger) {
			return true
		}
	}
	return false
}

func handleMessage(client *Client, input *HookInput) error {
	if input.OwnerID <= 0 || input.RoomID <= 0 {
		return errors.New("message hook needs owner_id and room_id")
	}
	role := input.Role
	if role == "" {
		role = "user"
	}
	room := input.ownerPath() + "/rooms/" + itoa(input.RoomID)

	body, err := json.Marshal(map[string]string{
		"role":    role,
		"content": input.Content,
	})
	if err != nil {
		return err
	}
	if _, err := client.Post(room+"/messages", body); err != nil {
		return err
	}

	// Only the user's own words become long-term memories
	if role == "user" && hasSignal(input.Content) {
		mem, err := json.Marshal(map[string]string{
			"tier":       "long",
			"content":    input.Content,
			"importance": "high",
			"category":   "signal",
		})
		if err != nil {
			return err
		}
		// A full or disabled tier is not an error; the server says saved=false
		if _, err := client.Post(input.ownerPath()+"/memories", mem); err != nil {
			return err
		}
	}

	_, err = client.Post(room+"/reclassify", nil)
	return err
}
