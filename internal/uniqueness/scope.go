package uniqueness

import (
	"fmt"

	"ally/pkg/errors"
)

// Scope defines the comparison neighborhood for near-duplicate search. A
// message is only ever compared against other messages sharing the same
// scope key within the trailing window. Empty ChannelID/AuthorID wildcard
// that coordinate, broadening the comparison set.
type Scope struct {
	TenantID   string
	Platform   string
	ChannelID  string
	AuthorID   string
	WindowDays int
	TopK       int
}

const wildcard = "*"

func (s Scope) Validate() error {
	if s.TenantID == "" {
		return errors.Validation("uniqueness scope requires a tenant id")
	}
	if s.Platform == "" {
		return errors.Validation("uniqueness scope requires a platform")
	}
	if s.WindowDays <= 0 {
		return errors.Validation("uniqueness scope requires a positive window")
	}
	return nil
}

func (s Scope) channelKey() string {
	if s.ChannelID == "" {
		return wildcard
	}
	return s.ChannelID
}

func (s Scope) authorKey() string {
	if s.AuthorID == "" {
		return wildcard
	}
	return s.AuthorID
}

// Key is the deterministic scope identity used by every backend.
func (s Scope) Key() string {
	return fmt.Sprintf("%s|%s|%s|%s|%d", s.TenantID, s.Platform, s.channelKey(), s.authorKey(), s.WindowDays)
}
