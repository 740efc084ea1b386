// Package client derives a normalized client record from a consolidated
// clearing-house field set.
package client

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Status is the lifecycle state of a client row.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusLead     Status = "lead"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusInactive, StatusLead:
		return true
	}
	return false
}

// Record is the normalized client row handed to persistence.
type Record struct {
	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
	IDNumber      string `json:"id_number"`
	Email         string `json:"email"`
	Phone         string `json:"phone"`
	AddressStreet string `json:"address_street"`
	AddressCity   string `json:"address_city"`
	Status        Status `json:"status"`
}

const hashSeparator = "\x1f"

// Hash returns a deterministic lowercase hex SHA-256 over every field.
//
// Field names are part of the canonical form, so moving a value from one
// field to another changes the hash. Storage compares it to skip rewriting
// unchanged rows.
func (r Record) Hash() string {
	parts := [...]struct{ name, value string }{
		{"first_name", r.FirstName},
		{"last_name", r.LastName},
		{"id_number", r.IDNumber},
		{"email", r.Email},
		{"phone", r.Phone},
		{"address_street", r.AddressStreet},
		{"address_city", r.AddressCity},
		{"status", string(r.Status)},
	}

	var b strings.Builder
	b.Grow(len(parts) * 24)
	for i, p := range parts {
		if i > 0 {
			b.WriteString(hashSeparator)
		}
		b.WriteString(p.name)
		b.WriteByte('=')
		b.WriteString(p.value)
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
