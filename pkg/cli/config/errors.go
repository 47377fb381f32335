package config

import "github.com/m-mizutani/goerr/v2"

// Sentinel errors for configuration validation
var (
	ErrConfigNotFound     = goerr.New("configuration file not found")
	ErrInvalidConfig      = goerr.New("invalid configuration")
	ErrMissingName        = goerr.New("name is required")
	ErrDuplicateStatus    = goerr.New("duplicate status")
	ErrInvalidRequirement = goerr.New("invalid required field")
	ErrLabelConflict      = goerr.New("label is mapped to more than one key")
)

// Context keys for error values
const (
	ConfigPathKey  = "config_path"
	StatusKey      = "status"
	FieldKeyKey    = "field_key"
	FieldLabelKey  = "field_label"
	StatusIndexKey = "status_index"
)
