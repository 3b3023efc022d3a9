package config

import "errors"

var (
	// ErrParsingConfig is returned when environment variables cannot be parsed into the config struct
	ErrParsingConfig = errors.New("failed to parse environment variables into config")

	// ErrDotenv is returned when a dotenv file exists but cannot be read
	ErrDotenv = errors.New("failed to load dotenv file")

	// ErrInvalidConfig is returned when a loaded value is out of range
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrInvalidScenario is returned when a scenario file is malformed
	ErrInvalidScenario = errors.New("invalid scenario")
)
