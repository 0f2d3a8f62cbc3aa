package rbac

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// RoleMap is the static email-to-role assignment loaded from deployment
// configuration. It is read once at boot; a session's role is resolved from it
// at login time and never re-checked afterwards.
type RoleMap struct {
	roles map[string]Role
}

type roleMapFile struct {
	Roles map[string]string `yaml:"roles"`
}

func LoadRoleMap(path string) (*RoleMap, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read roles file: %w", err)
	}
	var parsed roleMapFile
	if err := yaml.Unmarshal(contents, &parsed); err != nil {
		return nil, fmt.Errorf("parse roles file: %w", err)
	}
	roles := make(map[string]Role, len(parsed.Roles))
	for email, role := range parsed.Roles {
		roles[normalizeEmail(email)] = Normalize(role)
	}
	return &RoleMap{roles: roles}, nil
}

func NewRoleMap(roles map[string]Role) *RoleMap {
	normalized := make(map[string]Role, len(roles))
	for email, role := range roles {
		normalized[normalizeEmail(email)] = role
	}
	return &RoleMap{roles: normalized}
}

// Resolve returns the configured role for an identity, defaulting to readonly
// for anyone absent from the map.
func (m *RoleMap) Resolve(email string) Role {
	if m == nil {
		return RoleReadonly
	}
	if role, ok := m.roles[normalizeEmail(email)]; ok {
		return role
	}
	return RoleReadonly
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
