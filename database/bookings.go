package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/converse/helper"
	"github.com/siherrmann/converse/model"
	loadSql "github.com/siherrmann/converse/sql"
)

// Booking is a persisted interview booking.
type Booking struct {
	ID             int64     `json:"id"`
	RID            uuid.UUID `json:"rid"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	Date           string    `json:"date"`
	Time           string    `json:"time"`
	ConversationID uuid.UUID `json:"conversation_id"`
	CreatedAt      time.Time `json:"created_at"`
}

// BookingsDBHandlerFunctions defines the interface for Bookings database operations.
type BookingsDBHandlerFunctions interface {
	InsertBooking(request *model.BookingRequest) (*Booking, error)
	SelectBooking(rid uuid.UUID) (*Booking, error)
	SelectBookingsByConversation(conversationID uuid.UUID) ([]*Booking, error)
}

// BookingsDBHandler handles booking-related database operations
type BookingsDBHandler struct {
	db *helper.Database
}

// NewBookingsDBHandler creates a new bookings database handler.
// It initializes the database connection and loads booking-related SQL functions.
// If force is true, it will reload the SQL functions even if they already exist.
func NewBookingsDBHandler(db *helper.Database, force bool) (*BookingsDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	bookingsDbHandler := &BookingsDBHandler{
		db: db,
	}

	err := loadSql.LoadBookingsSql(bookingsDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load bookings sql", err)
	}

	err = bookingsDbHandler.CreateTable()
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized BookingsDBHandler")

	return bookingsDbHandler, nil
}

// CreateTable creates the 'bookings' table in the database.
// If the table already exists, it does not create it again.
func (h *BookingsDBHandler) CreateTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_bookings();`)
	if err != nil {
		log.Panicf("error initializing bookings table: %#v", err)
	}

	h.db.Logger.Info("Checked/created table bookings")

	return nil
}

// InsertBooking persists a complete booking request. Incomplete requests are
// rejected before touching the database.
func (h *BookingsDBHandler) InsertBooking(request *model.BookingRequest) (*Booking, error) {
	if reasons := request.Validate(); reasons != nil {
		return nil, helper.NewError("validate booking", fmt.Errorf("%w: invalid booking request: %v", model.ErrInvalidConfig, reasons))
	}

	booking := &Booking{}
	row := h.db.Instance.QueryRow(
		`SELECT * FROM insert_booking($1, $2, $3, $4, $5)`,
		request.Name,
		request.Email,
		request.Date,
		request.Time,
		request.ConversationID,
	)

	err := row.Scan(
		&booking.ID,
		&booking.RID,
		&booking.Name,
		&booking.Email,
		&booking.Date,
		&booking.Time,
		&booking.ConversationID,
		&booking.CreatedAt,
	)
	if err != nil {
		return nil, helper.NewError("scan", err)
	}

	return booking, nil
}

// SelectBooking retrieves a booking by RID
func (h *BookingsDBHandler) SelectBooking(rid uuid.UUID) (*Booking, error) {
	booking := &Booking{}
	row := h.db.Instance.QueryRow(
		`SELECT * FROM select_booking($1)`,
		rid,
	)

	err := row.Scan(
		&booking.ID,
		&booking.RID,
		&booking.Name,
		&booking.Email,
		&booking.Date,
		&booking.Time,
		&booking.ConversationID,
		&booking.CreatedAt,
	)
	if err != nil {
		return nil, helper.NewError("scan", err)
	}

	return booking, nil
}

// SelectBookingsByConversation retrieves all bookings recorded for a
// conversation in creation order.
func (h *BookingsDBHandler) SelectBookingsByConversation(conversationID uuid.UUID) ([]*Booking, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_bookings_by_conversation($1)`,
		conversationID,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var bookings []*Booking
	for rows.Next() {
		booking := &Booking{}
		err := rows.Scan(
			&booking.ID,
			&booking.RID,
			&booking.Name,
			&booking.Email,
			&booking.Date,
			&booking.Time,
			&booking.ConversationID,
			&booking.CreatedAt,
		)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}
		bookings = append(bookings, booking)
	}

	return bookings, nil
}
