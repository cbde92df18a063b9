package hooks

// HookInput is the JSON a chat frontend sends on stdin to hook handlers.
// Different events populate different subsets.
type HookInput struct {
	OwnerID int64 `json:"owner_id"`

	// message
	RoomID  int64  `json:"room_id,omitempty"`
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`

	// context
	History []string `json:"history,omitempty"`
}

// ownerPath is the API prefix for the input's owner.
func (h *HookInput) ownerPath() string {
	return "/api/owners/" + itoa(h.OwnerID)
}
