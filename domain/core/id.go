package core

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ID represents a domain identifier
type ID string

// NewID creates a new unique identifier using UUID v7 for time-ordered generation
func NewID() ID {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return ID(id.String())
}

// String returns the string representation
func (id ID) String() string {
	return string(id)
}

// IsEmpty checks if the ID is empty
func (id ID) IsEmpty() bool {
	return id == ""
}

// Domain-specific ID types
type (
	// RunID identifies one scan over a set of model points.
	RunID ID
	// PointID identifies one model point (one SLHA file / mass point).
	PointID ID
)

func (id RunID) String() string   { return ID(id).String() }
func (id PointID) String() string { return ID(id).String() }

// NewRunID creates a fresh time-ordered run identifier
func NewRunID() RunID {
	return RunID(NewID())
}

// ParseRunID parses a string into RunID
func ParseRunID(s string) (RunID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("run ID cannot be empty")
	}
	if _, err := uuid.Parse(s); err != nil {
		return "", fmt.Errorf("run ID %q is not a UUID: %w", s, err)
	}
	return RunID(s), nil
}

// ParsePointID parses a string into PointID
func ParsePointID(s string) (PointID, error) {
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("point ID cannot be empty")
	}
	return PointID(s), nil
}
