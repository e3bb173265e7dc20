package payment

import "loteo/internal/pkg/errs"

var (
	ErrGateway             = errs.Kind(errs.ErrUpstream, "payment gateway error")
	ErrInvalidRequest      = errs.Kind(errs.ErrValidation, "invalid payment request")
	ErrTransactionNotFound = errs.Kind(errs.ErrInconsistency, "payment transaction not found")
)
