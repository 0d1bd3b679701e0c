package controller

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/benbeisheim/unionchess-backend/internal/model"
	"github.com/benbeisheim/unionchess-backend/internal/rules"
	"github.com/benbeisheim/unionchess-backend/internal/service"
)

var errBadRequestBody = errors.New("request body is not valid JSON")

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, rules.ErrIllegalAction):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, rules.ErrMalformedNotation),
		errors.Is(err, service.ErrInvalidRequest),
		errors.Is(err, model.ErrInvalidTimerConfig),
		errors.Is(err, errBadRequestBody):
		return fiber.StatusBadRequest
	case errors.Is(err, model.ErrOutOfDate),
		errors.Is(err, model.ErrNothingToRollBack),
		errors.Is(err, service.ErrMatchExists):
		return fiber.StatusConflict
	case errors.Is(err, model.ErrTimeExpired), errors.Is(err, model.ErrMatchOver):
		return fiber.StatusGone
	case errors.Is(err, model.ErrSideLocked):
		return fiber.StatusForbidden
	case errors.Is(err, service.ErrMatchNotFound):
		return fiber.StatusNotFound
	}
	return fiber.StatusInternalServerError
}

func errorBody(err error) fiber.Map {
	body := fiber.Map{"error": err.Error()}
	var illegal *rules.IllegalActionError
	if errors.As(err, &illegal) {
		body["reason"] = illegal.Reason
	}
	return body
}
