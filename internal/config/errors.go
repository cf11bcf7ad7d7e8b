// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import "errors"

var (
	// ErrUnknownConfigField classifies strict YAML parse failures caused by unknown keys.
	ErrUnknownConfigField = errors.New("unknown config field")

	// ErrUnsupportedFormat is returned for config files that are not .yaml or .yml.
	ErrUnsupportedFormat = errors.New("unsupported config format")

	// ErrTrailingContent is returned when the file holds more than one YAML document.
	ErrTrailingContent = errors.New("config file contains multiple documents or trailing content")
)
