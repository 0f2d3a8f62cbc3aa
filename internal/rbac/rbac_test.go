package rbac

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCan(t *testing.T) {
	cases := []struct {
		role   Role
		action Action
		want   bool
	}{
		{RoleEditor, ActionRead, true},
		{RoleEditor, ActionWrite, true},
		{RoleReadonly, ActionRead, true},
		{RoleReadonly, ActionWrite, false},
		{Role("admin"), ActionWrite, false},
		{Role(""), ActionRead, false},
	}
	for _, tc := range cases {
		if got := Can(tc.role, tc.action); got != tc.want {
			t.Errorf("Can(%q, %q) = %v, want %v", tc.role, tc.action, got, tc.want)
		}
	}
}

func TestNormalizeDefaultsToReadonly(t *testing.T) {
	if got := Normalize("editor"); got != RoleEditor {
		t.Fatalf("Normalize(editor) = %q", got)
	}
	if got := Normalize("owner"); got != RoleReadonly {
		t.Fatalf("Normalize(owner) = %q, want readonly", got)
	}
	if got := Normalize(""); got != RoleReadonly {
		t.Fatalf("Normalize(\"\") = %q, want readonly", got)
	}
}

func TestLoadRoleMap(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "roles.yaml")
	contents := "roles:\n  Lead@Example.com: editor\n  viewer@example.com: readonly\n  weird@example.com: superuser\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write roles file: %v", err)
	}

	roleMap, err := LoadRoleMap(path)
	if err != nil {
		t.Fatalf("LoadRoleMap() error = %v", err)
	}

	if got := roleMap.Resolve("lead@example.com"); got != RoleEditor {
		t.Errorf("expected case-insensitive editor match, got %q", got)
	}
	if got := roleMap.Resolve("viewer@example.com"); got != RoleReadonly {
		t.Errorf("expected readonly, got %q", got)
	}
	if got := roleMap.Resolve("weird@example.com"); got != RoleReadonly {
		t.Errorf("expected unknown role string to normalize to readonly, got %q", got)
	}
	if got := roleMap.Resolve("stranger@example.com"); got != RoleReadonly {
		t.Errorf("expected unmapped identity to default to readonly, got %q", got)
	}
}

func TestLoadRoleMapMissingFile(t *testing.T) {
	if _, err := LoadRoleMap(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing roles file")
	}
}
