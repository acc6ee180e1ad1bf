// Package ident validates table and column names before they are placed into SQL text.
//
// Every identifier that ends up concatenated into a statement (table names, column
// names, ORDER BY columns) must come out of [Validate] or [Validator.Validate].
// Values never pass through here; they are always bound parameters.
package ident

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// MaxLength is the longest identifier accepted (PostgreSQL NAMEDATALEN - 1).
const MaxLength = 63

// ErrInvalidIdentifier is returned for names that fail the safe-identifier grammar.
var ErrInvalidIdentifier = errors.New("invalid identifier")

// ErrInvalidTypeSpec is returned for column type declarations that fail the type grammar.
// It wraps ErrInvalidIdentifier so callers can treat both the same way.
var ErrInvalidTypeSpec = fmt.Errorf("%w: invalid column type", ErrInvalidIdentifier)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Identifier is a name that has passed validation.
type Identifier string

// String returns the raw name.
func (id Identifier) String() string { return string(id) }

// Quoted returns the double-quoted form used in statements.
func (id Identifier) Quoted() string {
	return `"` + strings.ReplaceAll(string(id), `"`, `""`) + `"`
}

// Validator checks names against the identifier grammar and a reserved-word set.
type Validator struct {
	reserved map[string]struct{}
}

// NewValidator creates a validator with the built-in reserved words plus extra.
// Extra words are matched case-insensitively; blanks are ignored.
func NewValidator(extra ...string) *Validator {
	v := &Validator{reserved: make(map[string]struct{}, len(defaultReserved)+len(extra))}
	for _, w := range defaultReserved {
		v.reserved[w] = struct{}{}
	}
	for _, w := range extra {
		w = strings.ToLower(strings.TrimSpace(w))
		if w != "" {
			v.reserved[w] = struct{}{}
		}
	}
	return v
}

// Validate returns name as an Identifier or an error wrapping ErrInvalidIdentifier.
func (v *Validator) Validate(name string) (Identifier, error) {
	if name == "" {
		return "", fmt.Errorf("%w: empty name", ErrInvalidIdentifier)
	}
	if len(name) > MaxLength {
		return "", fmt.Errorf("%w: %q exceeds %d characters", ErrInvalidIdentifier, name, MaxLength)
	}
	if !identPattern.MatchString(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidIdentifier, name)
	}
	if v.IsReserved(name) {
		return "", fmt.Errorf("%w: %q is a reserved word", ErrInvalidIdentifier, name)
	}
	return Identifier(name), nil
}

// ValidateTable is Validate for table names. It also refuses the service's own
// tables and the stores' catalog prefixes, so generic CRUD and DDL cannot reach them.
func (v *Validator) ValidateTable(name string) (Identifier, error) {
	id, err := v.Validate(name)
	if err != nil {
		return "", err
	}
	if IsInternalTable(name) {
		return "", fmt.Errorf("%w: %q is reserved for internal use", ErrInvalidIdentifier, name)
	}
	return id, nil
}

// IsInternalTable reports whether name is one of the service's tables or starts
// with a store catalog prefix. The comparison is case-insensitive.
func IsInternalTable(name string) bool {
	lower := strings.ToLower(name)
	for _, t := range internalTables {
		if lower == t {
			return true
		}
	}
	for _, p := range internalPrefixes {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	return false
}

// ValidateAll validates every name, stopping at the first failure.
func (v *Validator) ValidateAll(names []string) ([]Identifier, error) {
	out := make([]Identifier, len(names))
	for i, n := range names {
		id, err := v.Validate(n)
		if err != nil {
			return nil, err
		}
		out[i] = id
	}
	return out, nil
}

// IsReserved reports whether name is in the reserved-word set.
func (v *Validator) IsReserved(name string) bool {
	_, ok := v.reserved[strings.ToLower(name)]
	return ok
}

var defaultValidator = NewValidator()

// Default returns the package-level validator used by Validate.
func Default() *Validator { return defaultValidator }

// Validate checks name with the default validator.
func Validate(name string) (Identifier, error) {
	return defaultValidator.Validate(name)
}

// ValidateTable checks a table name with the default validator.
func ValidateTable(name string) (Identifier, error) {
	return defaultValidator.ValidateTable(name)
}

// MustValidate is Validate for compile-time constant names. It panics on failure.
func MustValidate(name string) Identifier {
	id, err := Validate(name)
	if err != nil {
		panic(err)
	}
	return id
}

// typeSpecPattern accepts declarations such as "TEXT", "TEXT UNIQUE", "NUMERIC(10,2) NOT NULL",
// "VARCHAR(255)". Quotes, semicolons, comment markers and expressions are rejected.
var typeSpecPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*(\s*\(\s*\d+\s*(,\s*\d+\s*)?\))?(\s+[A-Za-z0-9_]+)*$`)

// ValidateTypeSpec checks a column type declaration and returns it trimmed.
func ValidateTypeSpec(spec string) (string, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return "", fmt.Errorf("%w: empty type", ErrInvalidTypeSpec)
	}
	if len(spec) > 128 || !typeSpecPattern.MatchString(spec) {
		return "", fmt.Errorf("%w: %q", ErrInvalidTypeSpec, spec)
	}
	return spec, nil
}
