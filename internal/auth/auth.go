package auth

import (
	"context"
	"fmt"
	"slices"
	"strings"
)

const (
	RoleGenerator = "generator"
	RoleTrainer   = "trainer"
)

// Identity is the caller behind an API key. Owner is informational and only
// shows up in logs.
type Identity struct {
	Owner string
	Roles []string
}

func (i Identity) HasRole(role string) bool {
	return slices.Contains(i.Roles, role)
}

// APIKeyValidator resolves an API key to an identity.
type APIKeyValidator interface {
	Validate(ctx context.Context, apiKey string) (Identity, bool)
}

type StaticAPIKeyValidator struct {
	keys map[string]Identity
}

// NewStaticAPIKeyValidator parses comma separated key:owner:role|role entries.
func NewStaticAPIKeyValidator(spec string) (*StaticAPIKeyValidator, error) {
	validator := &StaticAPIKeyValidator{keys: map[string]Identity{}}
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return validator, nil
	}

	entries := strings.Split(spec, ",")
	for _, entry := range entries {
		parts := strings.Split(strings.TrimSpace(entry), ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("invalid static key entry %q: expected key:owner:role|role", entry)
		}
		key := strings.TrimSpace(parts[0])
		owner := strings.TrimSpace(parts[1])
		if key == "" || owner == "" {
			return nil, fmt.Errorf("invalid static key entry %q: empty key/owner", entry)
		}
		roleParts := strings.Split(strings.TrimSpace(parts[2]), "|")
		roles := make([]string, 0, len(roleParts))
		for _, role := range roleParts {
			role = strings.TrimSpace(role)
			if role == "" {
				continue
			}
			roles = append(roles, role)
		}
		if len(roles) == 0 {
			return nil, fmt.Errorf("invalid static key entry %q: at least one role is required", entry)
		}
		slices.Sort(roles)
		validator.keys[key] = Identity{Owner: owner, Roles: roles}
	}

	return validator, nil
}

func (v *StaticAPIKeyValidator) Validate(_ context.Context, apiKey string) (Identity, bool) {
	identity, ok := v.keys[apiKey]
	return identity, ok
}
