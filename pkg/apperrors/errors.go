package apperrors

import "errors"

var (
	ErrNotFound             = errors.New("not found")
	ErrConflict             = errors.New("conflict")
	ErrInvalidCastePairing  = errors.New("breeding requires exactly one princess and one drone")
	ErrInvalidCaste         = errors.New("invalid caste for this operation")
	ErrAlreadyHoused        = errors.New("bee is already in a hive")
	ErrSlotOccupied         = errors.New("hive already holds a queen")
	ErrDuplicateName        = errors.New("bee name already in use")
	ErrInvalidName          = errors.New("invalid bee name")
	ErrHiveLimitReached     = errors.New("hive limit reached")
	ErrInsufficientQuantity = errors.New("insufficient quantity")
	ErrNotSellable          = errors.New("item cannot be sold")
)
