// Package validator provides struct validation for reactoruq.
//
// This package wraps go-playground/validator to provide:
//   - Validation of configuration, model files and API input
//   - Human-readable error messages keyed by the field's external name
//
// Field names come from the mapstructure, yaml or json tag, in that order,
// so errors point at the key a user actually wrote.
//
// # Usage
//
//	if err := validator.Validate(cfg); err != nil {
//	    // err is a validator.ValidationErrors
//	}
//
// # Custom Validations
//
//   - finite: float is neither NaN nor infinite
package validator
