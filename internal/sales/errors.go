package sales

import "errors"

// Domain validation errors. Handlers map them to 4xx responses.
var (
	ErrEmptyCart          = errors.New("cart has no valid lines")
	ErrNoValidPayment     = errors.New("at least one payment with a positive amount and a method is required")
	ErrNegativeAmount     = errors.New("discount and tax must not be negative")
	ErrSaleNotFound       = errors.New("sale not found")
	ErrProductNotFound    = errors.New("product not found")
	ErrNothingToReturn    = errors.New("no requested line has a returnable quantity")
	ErrInvalidAdjustment  = errors.New("stock adjustment must change the quantity")
	ErrNegativeStock      = errors.New("opening stock must not be negative")
	ErrDuplicateReference = errors.New("payment reference already used by another sale")
	ErrNumberExhausted    = errors.New("could not generate a unique document number")
)
