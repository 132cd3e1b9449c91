package model

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// BookingRequest is the structured request handed to the booking subsystem.
type BookingRequest struct {
	Name           string    `json:"name" validate:"required"`
	Email          string    `json:"email" validate:"required,email"`
	Date           string    `json:"date" validate:"required"`
	Time           string    `json:"time" validate:"required"`
	ConversationID uuid.UUID `json:"conversation_id"`
}

// Validate returns a field -> reason map, nil if the request is valid.
func (r *BookingRequest) Validate() map[string]string {
	validate := validator.New()
	if err := validate.Struct(r); err != nil {
		errs := err.(validator.ValidationErrors)
		reasons := make(map[string]string)
		for _, e := range errs {
			reasons[e.Field()] = fmt.Sprintf("failed on '%s' tag", e.Tag())
		}
		return reasons
	}
	return nil
}

// MissingFields lists the empty fields in a stable order, used to prompt the
// user for the remaining details.
func (r *BookingRequest) MissingFields() []string {
	var missing []string
	if r.Name == "" {
		missing = append(missing, "name")
	}
	if r.Email == "" {
		missing = append(missing, "email")
	}
	if r.Date == "" {
		missing = append(missing, "date")
	}
	if r.Time == "" {
		missing = append(missing, "time")
	}
	return missing
}
