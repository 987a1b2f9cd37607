package registry

import (
	"errors"
	"fmt"

	"github.com/meigma/dicomblob/registry/oras"
)

// mapOCIError translates low-level ORAS errors to client-level sentinel errors.
func mapOCIError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound):
		return err
	case errors.Is(err, oras.ErrNotFound):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case errors.Is(err, oras.ErrInvalidReference):
		return fmt.Errorf("%w: %v", ErrInvalidReference, err)
	case errors.Is(err, oras.ErrManifestInvalid):
		return fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}
	return err
}
