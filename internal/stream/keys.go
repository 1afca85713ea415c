package stream

import (
	"fmt"
	"strings"

	"ally/pkg/errors"
)

// Stream keys follow "<namespace>:<logical-stream>:<version>:<tenantId>[:<platform>]".
// The format is part of the external contract and must not change without a
// version bump.
const (
	Namespace = "ally"
	Version   = "v1"

	LogicalIngest     = "ingest"
	LogicalScored     = "scored"
	LogicalDeadLetter = "dlq"
)

type Key string

func (k Key) String() string { return string(k) }

// IngestKey is the per-tenant, per-platform append target for normalized
// platform events.
func IngestKey(tenantID, platform string) Key {
	return Key(fmt.Sprintf("%s:%s:%s:%s:%s", Namespace, LogicalIngest, Version, tenantID, platform))
}

// ScoredKey holds compact scored records for downstream consumers.
func ScoredKey(tenantID string) Key {
	return Key(fmt.Sprintf("%s:%s:%s:%s", Namespace, LogicalScored, Version, tenantID))
}

// DeadLetterKey holds entries that failed processing, per tenant.
func DeadLetterKey(tenantID string) Key {
	return Key(fmt.Sprintf("%s:%s:%s:%s", Namespace, LogicalDeadLetter, Version, tenantID))
}

type KeyParts struct {
	Namespace string
	Logical   string
	Version   string
	TenantID  string
	Platform  string
}

func ParseKey(raw string) (KeyParts, error) {
	parts := strings.Split(raw, ":")
	if len(parts) < 4 || len(parts) > 5 {
		return KeyParts{}, errors.Validation(fmt.Sprintf("malformed stream key %q", raw))
	}
	for _, p := range parts {
		if p == "" {
			return KeyParts{}, errors.Validation(fmt.Sprintf("malformed stream key %q", raw))
		}
	}

	kp := KeyParts{
		Namespace: parts[0],
		Logical:   parts[1],
		Version:   parts[2],
		TenantID:  parts[3],
	}
	if len(parts) == 5 {
		kp.Platform = parts[4]
	}
	return kp, nil
}
