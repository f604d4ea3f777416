package models

import (
	"fmt"
	"strings"
	"time"
)

// Audit carries the attribution every mutable table stores.
type Audit struct {
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
	UpdatedByID *int64    `json:"updated_by_id" db:"updated_by_id"`
}

// Member represents a person known to the association
type Member struct {
	ID              int64            `json:"id" db:"id"`
	Handle          *string          `json:"handle" db:"handle"`
	Credential      *Credential      `json:"credential,omitempty"`
	Emails          []Email          `json:"emails,omitempty"`
	Phones          []Phone          `json:"phones,omitempty"`
	Addresses       []Address        `json:"addresses,omitempty"`
	Memberships     []Membership     `json:"memberships,omitempty"`
	Attendances     []Attendance     `json:"attendances,omitempty"`
	RoleAssignments []RoleAssignment `json:"role_assignments,omitempty"`
	Audit
}

// Code returns the zero-padded display identifier of the member
func (m *Member) Code() string {
	return fmt.Sprintf("#%04d", m.ID)
}

// FullName returns "first last" from the credential, or an empty string
func (m *Member) FullName() string {
	if m.Credential == nil {
		return ""
	}
	return m.Credential.FullName()
}

// HandleValue returns the stored external handle or an empty string
func (m *Member) HandleValue() string {
	if m.Handle == nil {
		return ""
	}
	return *m.Handle
}

// DisplayName returns the best display name for the member
func (m *Member) DisplayName() string {
	if name := m.FullName(); name != "" {
		return name
	}
	if h := m.HandleValue(); h != "" {
		return "@" + h
	}
	return m.Code()
}

// Credential holds the civil identity of a member.
// (FirstName, LastName, Birthdate) is unique.
type Credential struct {
	ID        int64      `json:"id" db:"id"`
	MemberID  int64      `json:"member_id" db:"member_id"`
	FirstName string     `json:"first_name" db:"first_name"`
	LastName  string     `json:"last_name" db:"last_name"`
	Birthdate *time.Time `json:"birthdate" db:"birthdate"`
	Audit
}

// FullName returns the "first last" string used for fuzzy matching
func (c *Credential) FullName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

// Email is an e-mail address of a member
type Email struct {
	ID        int64  `json:"id" db:"id"`
	MemberID  int64  `json:"member_id" db:"member_id"`
	Address   string `json:"address" db:"address"`
	Principal bool   `json:"principal" db:"principal"`
	Audit
}

// Phone is a phone number of a member
type Phone struct {
	ID        int64  `json:"id" db:"id"`
	MemberID  int64  `json:"member_id" db:"member_id"`
	Number    string `json:"number" db:"number"`
	Principal bool   `json:"principal" db:"principal"`
	Audit
}

// Address is a postal address of a member
type Address struct {
	ID         int64  `json:"id" db:"id"`
	MemberID   int64  `json:"member_id" db:"member_id"`
	Street     string `json:"street" db:"street"`
	PostalCode string `json:"postal_code" db:"postal_code"`
	City       string `json:"city" db:"city"`
	Principal  bool   `json:"principal" db:"principal"`
	Audit
}

// PrincipalEmail returns the principal e-mail, if any
func (m *Member) PrincipalEmail() *Email {
	for i := range m.Emails {
		if m.Emails[i].Principal {
			return &m.Emails[i]
		}
	}
	return nil
}

// PrincipalPhone returns the principal phone number, if any
func (m *Member) PrincipalPhone() *Phone {
	for i := range m.Phones {
		if m.Phones[i].Principal {
			return &m.Phones[i]
		}
	}
	return nil
}

// PrincipalAddress returns the principal postal address, if any
func (m *Member) PrincipalAddress() *Address {
	for i := range m.Addresses {
		if m.Addresses[i].Principal {
			return &m.Addresses[i]
		}
	}
	return nil
}
