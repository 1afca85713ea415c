package events

import (
	"encoding/json"
	"fmt"
	"sync"

	"ally/pkg/errors"
)

// Catalog maps event type tags to payload prototypes so consumers can decode
// an envelope body into its concrete type.
type Catalog struct {
	mu         sync.RWMutex
	prototypes map[string]func() Payload
}

func NewCatalog() *Catalog {
	c := &Catalog{prototypes: make(map[string]func() Payload)}
	c.Register(TypeMessageCreated, func() Payload { return &MessageCreated{} })
	c.Register(TypeMessageUpdated, func() Payload { return &MessageUpdated{} })
	c.Register(TypeReactionAdded, func() Payload { return &ReactionAdded{} })
	return c
}

func (c *Catalog) Register(eventType string, prototype func() Payload) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prototypes[eventType] = prototype
}

func (c *Catalog) Known(eventType string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.prototypes[eventType]
	return ok
}

// Decode parses the envelope payload into the registered concrete type and
// validates it. Unknown types and malformed bodies surface as validation
// errors so the pipeline routes them to dead-letter without retrying.
func (c *Catalog) Decode(env *EventEnvelope) (Payload, error) {
	c.mu.RLock()
	prototype, ok := c.prototypes[env.Type]
	c.mu.RUnlock()
	if !ok {
		return nil, errors.Validation(fmt.Sprintf("unknown event type %q", env.Type))
	}

	p := prototype()
	if err := json.Unmarshal(env.Payload, p); err != nil {
		return nil, errors.Wrap(err, errors.KindValidation, fmt.Sprintf("malformed %s payload", env.Type))
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}
