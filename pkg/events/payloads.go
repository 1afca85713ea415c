package events

import (
	"fmt"
	"time"

	"ally/pkg/errors"
)

const (
	TypeMessageCreated = "message.created"
	TypeMessageUpdated = "message.updated"
	TypeReactionAdded  = "reaction.added"
)

// Payload is one typed event body. IdentityKey returns a deterministic string
// built only from immutable identity fields, feeding the envelope's
// idempotency key.
type Payload interface {
	EventType() string
	IdentityKey() string
	Validate() error
}

type MessageCreated struct {
	ExternalID  string    `json:"external_id"`
	AuthorID    string    `json:"author_id"`
	AuthorIsBot bool      `json:"author_is_bot,omitempty"`
	Content     string    `json:"content"`
	CreatedAt   time.Time `json:"created_at"`
}

func (p MessageCreated) EventType() string { return TypeMessageCreated }

func (p MessageCreated) IdentityKey() string {
	return "msg:" + p.ExternalID
}

func (p MessageCreated) Validate() error {
	if p.ExternalID == "" {
		return errors.Validation("message external id is required")
	}
	if p.AuthorID == "" {
		return errors.Validation("message author id is required")
	}
	return nil
}

type MessageUpdated struct {
	ExternalID  string    `json:"external_id"`
	AuthorID    string    `json:"author_id"`
	AuthorIsBot bool      `json:"author_is_bot,omitempty"`
	Content     string    `json:"content"`
	EditedAt    time.Time `json:"edited_at"`
}

func (p MessageUpdated) EventType() string { return TypeMessageUpdated }

// An edit is a distinct logical event from the original message, so the edit
// timestamp is part of the identity.
func (p MessageUpdated) IdentityKey() string {
	return fmt.Sprintf("msg:%s:edit:%d", p.ExternalID, p.EditedAt.UTC().UnixNano())
}

func (p MessageUpdated) Validate() error {
	if p.ExternalID == "" {
		return errors.Validation("message external id is required")
	}
	if p.AuthorID == "" {
		return errors.Validation("message author id is required")
	}
	if p.EditedAt.IsZero() {
		return errors.Validation("edit timestamp is required")
	}
	return nil
}

type ReactionAdded struct {
	MessageExternalID string `json:"message_external_id"`
	AuthorID          string `json:"author_id"`
	AuthorIsBot       bool   `json:"author_is_bot,omitempty"`
	Emoji             string `json:"emoji"`
}

func (p ReactionAdded) EventType() string { return TypeReactionAdded }

func (p ReactionAdded) IdentityKey() string {
	return "react:" + p.MessageExternalID + ":" + p.AuthorID + ":" + p.Emoji
}

func (p ReactionAdded) Validate() error {
	if p.MessageExternalID == "" {
		return errors.Validation("reaction message external id is required")
	}
	if p.AuthorID == "" {
		return errors.Validation("reaction author id is required")
	}
	if p.Emoji == "" {
		return errors.Validation("reaction emoji is required")
	}
	return nil
}
