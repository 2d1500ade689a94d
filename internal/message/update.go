package message

import (
	"encoding/json"
	"fmt"
	"strings"
)

// UpdateType is the kind of change an update applies to a module's input.
type UpdateType string

const (
	// UpdateAdd appends a unit to the current input.
	UpdateAdd UpdateType = "add"

	// UpdateRevoke withdraws a previously added unit.
	UpdateRevoke UpdateType = "revoke"

	// UpdateCommit marks the current input as final.
	UpdateCommit UpdateType = "commit"
)

// UnmarshalJSON accepts the update type case-insensitively.
func (t *UpdateType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch ut := UpdateType(strings.ToLower(s)); ut {
	case UpdateAdd, UpdateRevoke, UpdateCommit:
		*t = ut
		return nil
	default:
		return fmt.Errorf("unknown update type %q", s)
	}
}

// Update pairs a text unit with the change it applies.
type Update struct {
	Type UpdateType `json:"type"`
	IU   TextIU     `json:"iu"`
}

// UpdateMessage is an ordered batch of updates delivered to a module.
type UpdateMessage []Update

// Add returns an update message adding each unit in order.
func Add(ius ...TextIU) UpdateMessage {
	um := make(UpdateMessage, 0, len(ius))
	for _, iu := range ius {
		um = append(um, Update{Type: UpdateAdd, IU: iu})
	}
	return um
}
