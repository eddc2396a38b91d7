package domain

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrAlreadyExists      = errors.New("already exists")
	ErrInvalidExpression  = errors.New("invalid order expression")
	ErrOrderNotFilled     = errors.New("order not filled")
	ErrOrderAlreadyFilled = errors.New("order already filled")
	ErrContainerMismatch  = errors.New("position containers differ")
	ErrIndexInconsistent  = errors.New("position index inconsistent")
	ErrLockHeld           = errors.New("lock held elsewhere")
)
