package service

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Error kinds.  Every typed error below matches exactly one of these with
// errors.Is, so callers can branch on the kind and still errors.As for the
// payload.
var (
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrSeatUnavailable = errors.New("seat unavailable")
	ErrInvalidState    = errors.New("invalid state")
	ErrInternal        = errors.New("internal error")
	ErrValidation      = errors.New("validation failed")
	ErrStaleHold       = errors.New("stale hold")
)

// NotFoundError reports a missing or inactive entity.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return e.Entity + " not found"
	}
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

func notFound(entity string, id uint64) error {
	return &NotFoundError{Entity: entity, ID: strconv.FormatUint(id, 10)}
}

// ConflictError names the showtimes whose occupancy windows a scheduling
// request would overlap.
type ConflictError struct {
	RoomID      uint64
	ShowtimeIDs []uint64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("room %d is occupied by showtime(s) %s", e.RoomID, joinIDs(e.ShowtimeIDs))
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// SeatUnavailableError lists every requested seat that could not be taken.
type SeatUnavailableError struct {
	ShowtimeID uint64
	SeatIDs    []uint64
}

func (e *SeatUnavailableError) Error() string {
	return fmt.Sprintf("seats %s are unavailable for showtime %d", joinIDs(e.SeatIDs), e.ShowtimeID)
}

func (e *SeatUnavailableError) Is(target error) bool { return target == ErrSeatUnavailable }

// StaleHoldError is returned by PromoteToReserved when some seats are no
// longer held by the caller.  The orchestrator reports it to clients as a
// SeatUnavailableError.
type StaleHoldError struct {
	ShowtimeID uint64
	SeatIDs    []uint64
}

func (e *StaleHoldError) Error() string {
	return fmt.Sprintf("holds on seats %s for showtime %d are missing or expired", joinIDs(e.SeatIDs), e.ShowtimeID)
}

func (e *StaleHoldError) Is(target error) bool { return target == ErrStaleHold }

// InvalidStateError reports an operation the reservation's status forbids.
type InvalidStateError struct {
	ReservationID uint64
	Status        string
	Op            string
	Detail        string
}

func (e *InvalidStateError) Error() string {
	msg := fmt.Sprintf("cannot %s reservation %d in status %s", e.Op, e.ReservationID, e.Status)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *InvalidStateError) Is(target error) bool { return target == ErrInvalidState }

// InternalError wraps an unexpected failure.  Storage errors surface as
// InternalError so that transport layers never leak driver messages.
type InternalError struct {
	Op  string
	Err error
}

func (e *InternalError) Error() string {
	if e.Err == nil {
		return e.Op + ": internal error"
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *InternalError) Unwrap() error { return e.Err }

func (e *InternalError) Is(target error) bool { return target == ErrInternal }

// ValidationError rejects malformed input before any state is touched.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string { return e.Field + ": " + e.Msg }

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func invalid(field, msg string) error { return &ValidationError{Field: field, Msg: msg} }

// internal passes typed engine errors through and wraps anything else.
func internal(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, kind := range []error{ErrNotFound, ErrConflict, ErrSeatUnavailable, ErrInvalidState, ErrInternal, ErrValidation, ErrStaleHold, ErrPaymentDeclined} {
		if errors.Is(err, kind) {
			return err
		}
	}
	return &InternalError{Op: op, Err: err}
}

func joinIDs(ids []uint64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatUint(id, 10)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// ErrPaymentDeclined is the kind of PaymentDeclinedError.
var ErrPaymentDeclined = errors.New("payment declined")

// PaymentDeclinedError reports that the processor refused the charge.  The
// reservation has been cancelled by the time it is returned.
type PaymentDeclinedError struct {
	ReservationID uint64
	Reason        string
}

func (e *PaymentDeclinedError) Error() string {
	return fmt.Sprintf("payment for reservation %d declined: %s", e.ReservationID, e.Reason)
}

func (e *PaymentDeclinedError) Is(target error) bool { return target == ErrPaymentDeclined }
