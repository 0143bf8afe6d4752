package model

import (
	"strings"
)

// Role is the capacity in which a participant signs off a document
type Role string

// Constants for Role
const (
	RoleCoordinator Role = "COORDINATOR"
	RoleAdvisor     Role = "ADVISOR"
	RoleStudent     Role = "STUDENT"
	// RoleBoard is an exam board member; board members are notified but do
	// not sign off documents
	RoleBoard Role = "BOARD"
)

// RequiredRoles returns the roles whose approval is needed before a document
// can be anchored, in canonical order.
func RequiredRoles() []Role {
	return []Role{RoleCoordinator, RoleAdvisor, RoleStudent}
}

// RequiredRoleNames returns RequiredRoles as strings
func RequiredRoleNames() []string {
	roles := RequiredRoles()
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	return names
}

// Signing reports whether the role is one of the RequiredRoles
func (r Role) Signing() bool {
	switch r {
	case RoleCoordinator, RoleAdvisor, RoleStudent:
		return true
	default:
		return false
	}
}

// ParseRole converts a (case-insensitive) string to a Role
func ParseRole(v string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(v)))
	switch r {
	case RoleCoordinator, RoleAdvisor, RoleStudent, RoleBoard:
		return r, nil
	}
	return "", ValidationErrorFmt("invalid role: %s", v)
}

// Organizations maps each signing role to the ledger organization that signs
// on its behalf
type Organizations struct {
	Coordinator string `yaml:"coordinator"`
	Advisor     string `yaml:"advisor"`
	Student     string `yaml:"student"`
}

// DefaultOrganizations returns the default role to organization mapping
func DefaultOrganizations() Organizations {
	return Organizations{
		Coordinator: "coordination",
		Advisor:     "advisors",
		Student:     "students",
	}
}

// Of returns the organization for the passed role
func (o Organizations) Of(role Role) (string, error) {
	var org string
	switch role {
	case RoleCoordinator:
		org = o.Coordinator
	case RoleAdvisor:
		org = o.Advisor
	case RoleStudent:
		org = o.Student
	default:
		return "", ValidationErrorFmt("role %s does not sign documents", role)
	}
	if org == "" {
		return "", ValidationErrorFmt("no organization configured for role %s", role)
	}
	return org, nil
}

// All returns the organizations of all RequiredRoles
func (o Organizations) All() []string {
	return []string{o.Coordinator, o.Advisor, o.Student}
}

// Actor identifies the user performing a workflow operation. Authentication
// happens outside of this module; the caller vouches for the fields.
type Actor struct {
	ID    string
	Email string
	Role  Role
}
