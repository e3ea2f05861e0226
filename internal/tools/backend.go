package tools

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by a Backend when a record does not exist or does not
// belong to the requesting chef.
var ErrNotFound = errors.New("record not found")

// Backend is the business data the chef tools read and write. The gorm-backed
// business.Directory is the production implementation.
type Backend interface {
	UpcomingEvents(ctx context.Context, chefID string, limit int) ([]Event, error)
	ClientOverview(ctx context.Context, chefID, clientID string) (ClientOverview, error)
	MenuSummary(ctx context.Context, chefID, bookingID string) (MenuSummary, error)
	DietarySummary(ctx context.Context, chefID, clientID string) (DietarySummary, error)
	AllergenCheck(ctx context.Context, chefID, bookingID string) (AllergenCheck, error)
	QueueMessage(ctx context.Context, chefID, clientID, body string) (QueuedMessage, error)
}

type Event struct {
	BookingID  string    `json:"booking_id"`
	ClientID   string    `json:"client_id"`
	Date       time.Time `json:"date"`
	Occasion   string    `json:"occasion"`
	GuestCount int       `json:"guest_count"`
	Status     string    `json:"status"`
}

type ClientOverview struct {
	ClientID      string     `json:"client_id"`
	DisplayName   string     `json:"display_name"`
	BookingCount  int        `json:"booking_count"`
	LastEvent     *time.Time `json:"last_event,omitempty"`
	HouseholdSize int        `json:"household_size"`
}

type MenuLine struct {
	Name   string `json:"name"`
	Course string `json:"course"`
}

type MenuSummary struct {
	BookingID string     `json:"booking_id"`
	Occasion  string     `json:"occasion"`
	Items     []MenuLine `json:"items"`
}

// MemberDiet is one household member's restrictions.
type MemberDiet struct {
	Name         string   `json:"name"`
	Allergies    []string `json:"allergies,omitempty"`
	Intolerances []string `json:"intolerances,omitempty"`
	Diets        []string `json:"diets,omitempty"`
}

type DietarySummary struct {
	ClientID   string       `json:"client_id"`
	ClientName string       `json:"client_name"`
	Members    []MemberDiet `json:"members"`
}

// Conflict is one menu item that violates one member's restriction.
type Conflict struct {
	Member      string `json:"member"`
	Item        string `json:"item"`
	Restriction string `json:"restriction"`
}

type AllergenCheck struct {
	BookingID    string     `json:"booking_id"`
	ClientName   string     `json:"client_name"`
	MemberNames  []string   `json:"member_names"`
	ItemsChecked int        `json:"items_checked"`
	Conflicts    []Conflict `json:"conflicts"`
}

type QueuedMessage struct {
	MessageID string `json:"message_id"`
	ClientID  string `json:"client_id"`
	Status    string `json:"status"`
}

type chefKey struct{}

// WithChef scopes a context to the authenticated chef. Tool executors read the
// chef from the context, never from model-supplied arguments.
func WithChef(ctx context.Context, chefID string) context.Context {
	return context.WithValue(ctx, chefKey{}, chefID)
}

// ChefFrom returns the chef a context was scoped to.
func ChefFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(chefKey{}).(string)
	return id, ok && id != ""
}
