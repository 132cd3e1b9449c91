package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBookingRequestValidate(t *testing.T) {
	t.Run("Valid request", func(t *testing.T) {
		req := &BookingRequest{
			Name:  "Ada Lovelace",
			Email: "ada@example.com",
			Date:  "2026-09-01",
			Time:  "10:30 am",
		}

		assert.Nil(t, req.Validate())
	})

	t.Run("Invalid email", func(t *testing.T) {
		req := &BookingRequest{
			Name:  "Ada Lovelace",
			Email: "not-an-email",
			Date:  "2026-09-01",
			Time:  "10:30 am",
		}

		reasons := req.Validate()

		assert.NotNil(t, reasons)
		assert.Contains(t, reasons, "Email")
	})

	t.Run("Missing fields reported", func(t *testing.T) {
		req := &BookingRequest{Email: "ada@example.com"}

		missing := req.MissingFields()

		assert.Equal(t, []string{"name", "date", "time"}, missing)
		assert.NotNil(t, req.Validate())
	})

	t.Run("No missing fields on complete request", func(t *testing.T) {
		req := &BookingRequest{Name: "a", Email: "b", Date: "c", Time: "d"}

		assert.Empty(t, req.MissingFields())
	})
}
