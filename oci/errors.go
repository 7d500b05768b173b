package oci

import (
	"errors"
	"fmt"
	"net/http"

	"oras.land/oras-go/v2/errdef"
	"oras.land/oras-go/v2/registry/remote/errcode"
)

var (
	// ErrNotFound is returned when a reference or blob does not exist.
	ErrNotFound = errors.New("oci: not found")

	// ErrUnauthorized is returned when the registry rejects the credentials.
	ErrUnauthorized = errors.New("oci: unauthorized")

	// ErrForbidden is returned when the credentials lack access.
	ErrForbidden = errors.New("oci: forbidden")

	// ErrInvalidArtifact is returned when a manifest is not a package set.
	ErrInvalidArtifact = errors.New("oci: not a package set")

	// ErrInvalidFile is returned when a file cannot be pushed.
	ErrInvalidFile = errors.New("oci: invalid file")
)

// mapError maps ORAS errors to the sentinels above.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, errdef.ErrNotFound) {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	var errResp *errcode.ErrorResponse
	if errors.As(err, &errResp) {
		switch errResp.StatusCode {
		case http.StatusNotFound:
			return fmt.Errorf("%w: %v", ErrNotFound, err)
		case http.StatusUnauthorized:
			return fmt.Errorf("%w: %v", ErrUnauthorized, err)
		case http.StatusForbidden:
			return fmt.Errorf("%w: %v", ErrForbidden, err)
		}
	}
	return err
}
