package reservation

import "loteo/internal/pkg/errs"

var (
	ErrLotSold             = errs.Kind(errs.ErrConflict, "lot already sold")
	ErrLotReserved         = errs.Kind(errs.ErrConflict, "lot is reserved by another buyer")
	ErrInvalidBuyer        = errs.Kind(errs.ErrValidation, "invalid buyer details")
	ErrInvalidSession      = errs.Kind(errs.ErrValidation, "invalid session id")
	ErrReservationNotFound = errs.Kind(errs.ErrNotFound, "reservation not found")
	ErrDoubleSale          = errs.Kind(errs.ErrInconsistency, "lot already sold under another buy order")
	ErrCommitAfterCancel   = errs.Kind(errs.ErrInconsistency, "payment authorized for a canceled reservation")

	ErrInvalidPipelineStage = errs.Kind(errs.ErrValidation, "invalid pipeline stage")
	ErrInvalidFilter        = errs.Kind(errs.ErrValidation, "invalid reservation filter")
	ErrSellerNotFound       = errs.Kind(errs.ErrValidation, "seller not found")
	ErrMalformedReturn      = errs.Kind(errs.ErrValidation, "webpay return without token or buy order")
	ErrEmptyUpdate          = errs.Kind(errs.ErrValidation, "nothing to update")
	ErrNotAssigned          = errs.Kind(errs.ErrForbidden, "reservation is not assigned to you")
	ErrAssignForbidden      = errs.Kind(errs.ErrForbidden, "only admins can assign sellers")
)
