package model

import (
	"errors"
	"fmt"
)

// Predefined errors
var (
	// Lookup errors
	ErrNotFound = errors.New("not found")

	// Relationship errors
	ErrDuplicateRelationship = errors.New("relationship already exists")
	ErrNoRelationship        = errors.New("no relationship between citizens")
	ErrInvalidRelationship   = errors.New("invalid relationship")

	// Simulation errors
	ErrInsufficientPopulation = errors.New("insufficient population")

	// Generation errors
	ErrGenerationParse = errors.New("malformed generation response")
)

// PersistenceError reports that the storage medium is unavailable or corrupt.
type PersistenceError struct {
	Op   string // operation name
	Path string // backing file or database, if any
	Err  error  // underlying error
}

func (e *PersistenceError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("persistence error [%s] path=%s: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("persistence error [%s]: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// NewPersistenceError creates a persistence error.
func NewPersistenceError(op, path string, err error) *PersistenceError {
	return &PersistenceError{Op: op, Path: path, Err: err}
}

// DuplicateRelationshipError is returned when connect would create a second edge
// of the same type between a pair.
type DuplicateRelationshipError struct {
	SourceID string
	TargetID string
	Type     RelationType
}

func (e *DuplicateRelationshipError) Error() string {
	return fmt.Sprintf("duplicate %s relationship between %s and %s", e.Type, e.SourceID, e.TargetID)
}

func (e *DuplicateRelationshipError) Is(target error) bool {
	return target == ErrDuplicateRelationship
}

// GenerationParseError reports a text-generation response that could not be parsed.
type GenerationParseError struct {
	Op  string // generation operation
	Raw string // raw response, truncated
	Err error
}

func (e *GenerationParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("generation parse error [%s]: %v (raw=%q)", e.Op, e.Err, e.Raw)
	}
	return fmt.Sprintf("generation parse error [%s] (raw=%q)", e.Op, e.Raw)
}

func (e *GenerationParseError) Unwrap() error {
	return e.Err
}

func (e *GenerationParseError) Is(target error) bool {
	return target == ErrGenerationParse
}

// NewGenerationParseError truncates raw to keep log lines readable.
func NewGenerationParseError(op, raw string, err error) *GenerationParseError {
	if len(raw) > 200 {
		raw = raw[:200] + "..."
	}
	return &GenerationParseError{Op: op, Raw: raw, Err: err}
}

// IsNotFound checks whether err is a lookup miss.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsPersistence checks whether err originates from the storage layer.
func IsPersistence(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}
