// Package coreerr defines the two error categories the core surfaces
// across a public boundary rather than handling locally: bad
// configuration handed in at startup, and a violated calling contract
// between the core and a plugin (wrong argument shape, registering
// against an unknown owner, double-unregistering). Everything else is a
// recoverable fault logged in place by its owning subsystem.
package coreerr

import "fmt"

// ConfigError reports a problem with startup configuration (CLI flags,
// viper-bound environment, or the base directory's metadata file).
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// NewConfigError wraps err as a ConfigError attributed to field.
func NewConfigError(field string, err error) *ConfigError {
	return &ConfigError{Field: field, Err: err}
}

// ContractError reports a plugin or caller violating the core's calling
// contract — e.g. an unregistered owner passed to an unload sweep, or a
// capability call with a malformed argument list.
type ContractError struct {
	Who string
	Err error
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("contract: %s: %v", e.Who, e.Err)
}

func (e *ContractError) Unwrap() error { return e.Err }

// NewContractError wraps err as a ContractError attributed to who.
func NewContractError(who string, err error) *ContractError {
	return &ContractError{Who: who, Err: err}
}
