// Package validation checks records supplied by the UI layer before they
// reach the database. Remote changesets are not validated here; the server
// already enforced its own rules when it accepted them.
package validation

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/walletbase/walletsync/internal/sync"
)

// maxIDLength bounds record ids. ULIDs are 26 characters; imported data may
// carry longer foreign ids, but nothing sane exceeds this.
const maxIDLength = 64

// FieldError represents a single field validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Collector accumulates validation errors without failing on the first.
type Collector struct {
	errors []FieldError
}

// Add appends a validation error to the collector if non-nil.
func (c *Collector) Add(err *FieldError) {
	if err != nil {
		c.errors = append(c.errors, *err)
	}
}

// Err returns an aggregate error, or nil when everything passed.
func (c *Collector) Err() error {
	if len(c.errors) == 0 {
		return nil
	}
	msgs := make([]string, len(c.errors))
	for i, e := range c.errors {
		msgs[i] = e.Error()
	}
	return fmt.Errorf("invalid record: %s", strings.Join(msgs, "; "))
}

// ValidateRecord checks a UI-supplied record before insert or update. The id
// is optional on create; when present it must be well-formed. Field names
// must not collide with the store's bookkeeping columns.
func ValidateRecord(record sync.Record) error {
	var c Collector

	if id, ok := record.ID(); ok {
		c.Add(validateID(id))
	}
	for name, value := range record {
		c.Add(validateFieldName(name))
		if s, ok := value.(string); ok {
			c.Add(validateText(name, s))
		}
	}
	return c.Err()
}

func validateID(id string) *FieldError {
	if strings.TrimSpace(id) == "" {
		return &FieldError{Field: "id", Message: "must not be blank"}
	}
	if utf8.RuneCountInString(id) > maxIDLength {
		return &FieldError{Field: "id", Message: fmt.Sprintf("exceeds maximum length of %d characters", maxIDLength)}
	}
	if err := validateText("id", id); err != nil {
		return err
	}
	return nil
}

func validateFieldName(name string) *FieldError {
	if name == "" {
		return &FieldError{Field: name, Message: "field name must not be empty"}
	}
	// Underscore-prefixed columns are the store's change-tracking state;
	// clients never set them directly.
	if strings.HasPrefix(name, "_") {
		return &FieldError{Field: name, Message: "field name is reserved"}
	}
	if !utf8.ValidString(name) {
		return &FieldError{Field: name, Message: "field name must be valid UTF-8"}
	}
	return nil
}

func validateText(field, value string) *FieldError {
	if !utf8.ValidString(value) {
		return &FieldError{Field: field, Message: "must be valid UTF-8"}
	}
	if strings.Contains(value, "\x00") {
		return &FieldError{Field: field, Message: "must not contain null bytes"}
	}
	return nil
}
