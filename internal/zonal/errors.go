package zonal

import (
	"errors"
	"fmt"
	"strings"
)

// GeometryError reports a feature whose geometry could not be rasterized.
// Under the lenient policy the feature is skipped and the error recorded.
type GeometryError struct {
	Feature int
	Err     error
}

func (e *GeometryError) Error() string {
	return fmt.Sprintf("zonal: feature %d: geometry: %v", e.Feature, e.Err)
}

func (e *GeometryError) Unwrap() error {
	return e.Err
}

// OperationError reports a user-supplied operation that failed for one feature.
type OperationError struct {
	Feature   int
	Operation string
	Err       error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("zonal: feature %d: operation %s: %v", e.Feature, e.Operation, e.Err)
}

func (e *OperationError) Unwrap() error {
	return e.Err
}

// GridMismatchError reports a secondary raster that does not share the
// primary raster's grid. It is always fatal.
type GridMismatchError struct {
	Layer string
	Err   error
}

func (e *GridMismatchError) Error() string {
	return fmt.Sprintf("zonal: %s raster does not align with primary raster: %v", e.Layer, e.Err)
}

func (e *GridMismatchError) Unwrap() error {
	return e.Err
}

// SchemaMismatchError reports a table-valued operation whose columns differ
// between features. It is always fatal.
type SchemaMismatchError struct {
	Feature int
	Want    []string
	Got     []string
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("zonal: feature %d returned columns [%s], want [%s]",
		e.Feature, strings.Join(e.Got, ", "), strings.Join(e.Want, ", "))
}

// IsGeometryError returns true if err (or any error in its chain) is a
// GeometryError.
func IsGeometryError(err error) bool {
	var ge *GeometryError
	return errors.As(err, &ge)
}

// IsGridMismatch returns true if err (or any error in its chain) is a
// GridMismatchError.
func IsGridMismatch(err error) bool {
	var gm *GridMismatchError
	return errors.As(err, &gm)
}

// IsSchemaMismatch returns true if err (or any error in its chain) is a
// SchemaMismatchError.
func IsSchemaMismatch(err error) bool {
	var sm *SchemaMismatchError
	return errors.As(err, &sm)
}

// isFeatureError reports whether err is confined to a single feature and may
// be skipped under the lenient policy.
func isFeatureError(err error) bool {
	var oe *OperationError
	return IsGeometryError(err) || errors.As(err, &oe)
}
