package orders

import "errors"

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrProductNotFound   = errors.New("product not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrNotAuthorized     = errors.New("not authorized")
	ErrInvalidOrder      = errors.New("invalid order")
)
