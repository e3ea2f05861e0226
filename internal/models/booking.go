package models

import (
	"time"

	"github.com/jinzhu/gorm"
)

// Booking represents a private dining event
type Booking struct {
	ID         string `gorm:"primary_key"`
	ChefID     string `gorm:"index"`
	ClientID   string `gorm:"index"`
	EventDate  time.Time
	Occasion   string
	GuestCount int
	Status     BookingStatus
	MenuItems  []MenuItem `gorm:"foreignkey:BookingID"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// BookingStatus represents the possible states of a booking
type BookingStatus string

const (
	BookingStatusInquiry   BookingStatus = "inquiry"
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCompleted BookingStatus = "completed"
	BookingStatusCancelled BookingStatus = "cancelled"
)

// Upcoming reports whether the booking still lies ahead and is not cancelled.
func (b Booking) Upcoming(now time.Time) bool {
	return !b.EventDate.Before(now) && b.Status != BookingStatusCancelled
}

// OutboundMessage is a client message waiting for the messaging integration
// to deliver it.
type OutboundMessage struct {
	gorm.Model
	ChefID   string `gorm:"index"`
	ClientID string `gorm:"index"`
	Body     string `gorm:"type:text"`
	Status   MessageStatus
	SentAt   *time.Time
}

// MessageStatus represents the delivery state of an outbound message
type MessageStatus string

const (
	MessageStatusQueued MessageStatus = "queued"
	MessageStatusSent   MessageStatus = "sent"
	MessageStatusFailed MessageStatus = "failed"
)

// All lists every model for migration.
func All() []interface{} {
	return []interface{}{
		&Chef{},
		&Client{},
		&HouseholdMember{},
		&DietaryRestriction{},
		&Booking{},
		&MenuItem{},
		&OutboundMessage{},
	}
}
