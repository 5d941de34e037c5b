package service

import (
	"errors"

	dErrors "appeals/pkg/domain-errors"
	"appeals/pkg/platform/sentinel"
)

// wrapStoreErr translates store sentinels into coded domain errors. Errors
// that already carry a code pass through unchanged.
func wrapStoreErr(err error, resource string) error {
	if err == nil {
		return nil
	}
	var domainErr *dErrors.Error
	if errors.As(err, &domainErr) {
		return err
	}
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, resource+" not found")
	case errors.Is(err, sentinel.ErrAlreadyUsed), errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict, resource+" already exists")
	case errors.Is(err, sentinel.ErrInvalidState):
		return dErrors.Wrap(err, dErrors.CodeConflict, resource+" is in an unexpected state")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to access "+resource)
	}
}

// asValidation converts model invariant failures raised while building a
// value from caller input into validation errors.
func asValidation(err error) error {
	if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
		return dErrors.New(dErrors.CodeValidation, err.Error())
	}
	return err
}

// optional returns nil instead of a not-found error.
func optional[T any](v T, err error) (T, error) {
	if errors.Is(err, sentinel.ErrNotFound) {
		var zero T
		return zero, nil
	}
	return v, err
}
