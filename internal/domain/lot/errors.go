package lot

import "loteo/internal/pkg/errs"

var (
	ErrLotNotFound   = errs.Kind(errs.ErrNotFound, "lot not found")
	ErrInvalidFilter = errs.Kind(errs.ErrValidation, "invalid lot filter")
)
