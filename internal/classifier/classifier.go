// Package classifier decides whether a change record is a TTL expiry deletion.
package classifier

import (
	"strings"

	json "github.com/goccy/go-json"

	"github.com/telhawk-systems/ttl-archiver/internal/stream"
)

const (
	// DefaultServicePrincipal is the identity DynamoDB uses for TTL deletes.
	DefaultServicePrincipal = "dynamodb.amazonaws.com"

	// ServicePrincipalType is the principal type of managed-service actors.
	ServicePrincipalType = "Service"
)

// Classifier is a pure predicate over change records.
type Classifier struct {
	servicePrincipal string
}

// New returns a Classifier matching deletes performed by servicePrincipal.
// An empty principal falls back to DefaultServicePrincipal.
func New(servicePrincipal string) *Classifier {
	if servicePrincipal == "" {
		servicePrincipal = DefaultServicePrincipal
	}
	return &Classifier{servicePrincipal: servicePrincipal}
}

// ServicePrincipal returns the principal ID the classifier matches.
func (c *Classifier) ServicePrincipal() string {
	return c.servicePrincipal
}

// IsTTLExpiry reports whether rec is a REMOVE performed by the storage engine itself.
// User-initiated deletes carry no identity or a different principal and are rejected.
func (c *Classifier) IsTTLExpiry(rec *stream.ChangeRecord) bool {
	if rec == nil || rec.EventName != stream.EventRemove {
		return false
	}
	id := rec.UserIdentity
	if id == nil {
		return false
	}
	return strings.EqualFold(id.PrincipalType, ServicePrincipalType) &&
		id.PrincipalID == c.servicePrincipal
}

// FilterPattern renders the event source mapping filter that mirrors IsTTLExpiry.
// Upstream filtering only reduces invocations; IsTTLExpiry stays authoritative.
func (c *Classifier) FilterPattern() (string, error) {
	pattern := map[string]any{
		"eventName": []string{string(stream.EventRemove)},
		"userIdentity": map[string]any{
			"type":        []string{ServicePrincipalType},
			"principalId": []string{c.servicePrincipal},
		},
	}
	data, err := json.Marshal(pattern)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
