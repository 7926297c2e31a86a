package rules

import "errors"

// Domain errors for the rules package.
//
// Loading is the only operation that fails; Evaluate and Apply never
// return errors.
//
//	if errors.Is(err, rules.ErrInvalidRule) {
//	    // the rule file is malformed
//	}
var (
	// ErrInvalidRule is returned when a rule definition is malformed.
	ErrInvalidRule = errors.New("rules: invalid rule")

	// ErrUnknownOperator is returned when a condition uses an unsupported comparison.
	ErrUnknownOperator = errors.New("rules: unknown operator")

	// ErrUnsupportedFormat is returned for rule files that are neither JSON nor YAML.
	ErrUnsupportedFormat = errors.New("rules: unsupported file format")
)
