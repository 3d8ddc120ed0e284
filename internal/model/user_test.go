package model

import (
	"strings"
	"testing"
)

// What each operator role may do at the desk, phrased as the minimum role the
// router demands for it.
func TestDeskPermissions(t *testing.T) {
	const (
		lend        = RoleUser    // create and return loans, scan
		editCatalog = RoleManager // items, variants, people
		manageStaff = RoleAdmin   // operator accounts
	)

	tests := []struct {
		role                          string
		lend, editCatalog, manageStaff bool
	}{
		{RoleUser, true, false, false},
		{RoleManager, true, true, false},
		{RoleAdmin, true, true, true},
		{"", false, false, false},
		{"borrower", false, false, false},
		{"ADMIN", false, false, false},
	}

	for _, tt := range tests {
		name := tt.role
		if name == "" {
			name = "empty"
		}
		t.Run(name, func(t *testing.T) {
			if got := RoleAtLeast(tt.role, lend); got != tt.lend {
				t.Errorf("lend = %v, want %v", got, tt.lend)
			}
			if got := RoleAtLeast(tt.role, editCatalog); got != tt.editCatalog {
				t.Errorf("edit catalog = %v, want %v", got, tt.editCatalog)
			}
			if got := RoleAtLeast(tt.role, manageStaff); got != tt.manageStaff {
				t.Errorf("manage staff = %v, want %v", got, tt.manageStaff)
			}
		})
	}
}

func TestRoleAtLeastUnknownMinimum(t *testing.T) {
	for _, role := range []string{RoleAdmin, RoleManager, RoleUser} {
		if RoleAtLeast(role, "superuser") {
			t.Errorf("RoleAtLeast(%q, unknown) = true", role)
		}
	}
}

func TestValidRole(t *testing.T) {
	for _, role := range []string{RoleAdmin, RoleManager, RoleUser} {
		if !ValidRole(role) {
			t.Errorf("ValidRole(%q) = false, want true", role)
		}
	}
	for _, role := range []string{"", "owner", "Admin", "user "} {
		if ValidRole(role) {
			t.Errorf("ValidRole(%q) = true, want false", role)
		}
	}
}

func TestValidatePasswordLength(t *testing.T) {
	tooShort := strings.Repeat("x", MinPasswordLength-1)
	exact := strings.Repeat("x", MinPasswordLength)

	if err := ValidatePassword(""); err == nil {
		t.Error("empty password accepted")
	}
	if err := ValidatePassword(tooShort); err == nil {
		t.Errorf("%d character password accepted", len(tooShort))
	}
	if err := ValidatePassword(exact); err != nil {
		t.Errorf("%d character password rejected: %v", len(exact), err)
	}
	// Length counts bytes, so eight accented letters pass.
	if err := ValidatePassword("čšžčšžčš"); err != nil {
		t.Errorf("accented password rejected: %v", err)
	}
}
