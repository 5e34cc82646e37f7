package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/Shivanand-hulikatti/enjoycity/internal/service"
	"github.com/Shivanand-hulikatti/enjoycity/internal/upload"
	"github.com/Shivanand-hulikatti/enjoycity/internal/validate"
)

// bookingFailure maps a booking error to a status and a user-facing message.
func bookingFailure(be *service.BookingError) (int, string) {
	switch be.Kind {
	case service.KindUnauthenticated:
		return http.StatusUnauthorized, "Please log in to continue."
	case service.KindUserBlocked:
		if be.Until != nil {
			return http.StatusForbidden, "Your account is blocked until " + be.Until.Format("2 Jan 2006 15:04 MST") + "."
		}
		return http.StatusForbidden, "Your account is blocked."
	case service.KindInvalidQuantity:
		return http.StatusBadRequest, "Choose between 1 and 10 seats."
	case service.KindEventUnavailable:
		return http.StatusNotFound, "This event is not available."
	case service.KindNotBookable:
		return http.StatusConflict, "This event does not take bookings."
	case service.KindAlreadyBooked:
		return http.StatusConflict, "You have already booked this event."
	case service.KindInsufficientCapacity:
		if be.Available == 1 {
			return http.StatusConflict, "Only 1 seat is left."
		}
		return http.StatusConflict, fmt.Sprintf("Only %d seats are left.", be.Available)
	case service.KindBookingNotFound:
		return http.StatusNotFound, "Booking not found."
	default:
		return http.StatusInternalServerError, "Something went wrong. Please try again."
	}
}

// failure maps any service error to a status and a user-facing message.
func failure(err error) (int, string) {
	var (
		be *service.BookingError
		ve *validate.Error
	)
	if fe, ok := asFormError(err); ok {
		return http.StatusBadRequest, fe.Error()
	}
	switch {
	case errors.As(err, &be):
		return bookingFailure(be)
	case errors.As(err, &ve):
		return http.StatusBadRequest, ve.Error()
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, "Not found."
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden, "You are not allowed to do that."
	case errors.Is(err, service.ErrInvalidTransition),
		errors.Is(err, service.ErrCapacityBelowBooked),
		errors.Is(err, service.ErrCategoryInUse),
		errors.Is(err, service.ErrDuplicateName),
		errors.Is(err, service.ErrEmailTaken):
		return http.StatusConflict, capitalize(err.Error()) + "."
	case errors.Is(err, service.ErrUnknownCategory),
		errors.Is(err, service.ErrSelfBlock):
		return http.StatusBadRequest, capitalize(err.Error()) + "."
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized, "Invalid email or password."
	case errors.Is(err, upload.ErrTooLarge):
		return http.StatusRequestEntityTooLarge, "The image is larger than 5 MiB."
	case errors.Is(err, upload.ErrUnsupportedType), errors.Is(err, upload.ErrUndecodable):
		return http.StatusUnsupportedMediaType, "The image must be a JPEG, PNG or GIF file."
	default:
		return http.StatusInternalServerError, "Something went wrong. Please try again."
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	if c := s[0]; c >= 'a' && c <= 'z' {
		return string(c-'a'+'A') + s[1:]
	}
	return s
}
