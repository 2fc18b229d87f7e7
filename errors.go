package masfro

import (
	"errors"
	"fmt"
)

// Error taxonomy. These are kinds, not exhaustive class hierarchies:
// callers match with errors.Is against the sentinel, and wrap with the
// constructor to attach detail.
var (
	ErrAgentCommunication = errors.New("agent communication error")
	ErrDataCollection     = errors.New("data collection error")
	ErrRouteCalculation   = errors.New("route calculation error")
	ErrGraphEnvironment   = errors.New("graph environment error")
	ErrGeoSpatial         = errors.New("geospatial error")
	ErrConfiguration      = errors.New("configuration error")
	ErrDatabase           = errors.New("database error")
)

// RouteCalculation sub-kinds (spec.md §7).
var (
	ErrNoPathFound     = fmt.Errorf("%w: no path found", ErrRouteCalculation)
	ErrInvalidLocation = fmt.Errorf("%w: invalid location", ErrRouteCalculation)
)

// GraphEnvironment sub-kinds.
var (
	ErrGraphNotLoaded = fmt.Errorf("%w: not loaded", ErrGraphEnvironment)
)

// NewAgentCommunicationError wraps a bus/ACL misuse with detail.
func NewAgentCommunicationError(detail string) error {
	return fmt.Errorf("%w: %s", ErrAgentCommunication, detail)
}

// NewDataCollectionError wraps a source-fetch failure with its origin.
func NewDataCollectionError(source string, cause error) error {
	return fmt.Errorf("%w: %s: %w", ErrDataCollection, source, cause)
}

// NewGraphUpdateFailedError reports a failed edge write.
func NewGraphUpdateFailedError(u, v int64, key int) error {
	return fmt.Errorf("%w: update failed for edge (%d,%d,%d)", ErrGraphEnvironment, u, v, key)
}

// NewGeoSpatialError wraps a raster/coordinate-transform failure.
func NewGeoSpatialError(detail string, cause error) error {
	if cause != nil {
		return fmt.Errorf("%w: %s: %w", ErrGeoSpatial, detail, cause)
	}
	return fmt.Errorf("%w: %s", ErrGeoSpatial, detail)
}

// NewConfigurationError reports an invalid config key.
func NewConfigurationError(key string) error {
	return fmt.Errorf("%w: invalid config %q", ErrConfiguration, key)
}

// NewMissingCredentialError reports an unset required secret.
func NewMissingCredentialError(name string) error {
	return fmt.Errorf("%w: missing credential %q", ErrConfiguration, name)
}

// NewDatabaseError wraps a persistence-layer failure.
func NewDatabaseError(op string, cause error) error {
	return fmt.Errorf("%w: %s: %w", ErrDatabase, op, cause)
}
