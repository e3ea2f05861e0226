package business

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jinzhu/gorm"

	"chefassist/internal/models"
	"chefassist/internal/prompt"
	"chefassist/internal/tools"
)

// Directory is the gorm-backed business data source for the chef tools and the
// prompt. Every query is scoped to the chef passed in; a record owned by another
// chef is indistinguishable from a missing one.
type Directory struct {
	db    *gorm.DB
	clock func() time.Time
}

type Option func(*Directory)

func WithClock(clock func() time.Time) Option {
	return func(d *Directory) { d.clock = clock }
}

// NewDirectory serves every tool backend query from db.
func NewDirectory(db *gorm.DB, opts ...Option) *Directory {
	d := &Directory{db: db, clock: time.Now}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// UpcomingEvents lists bookings from now on, soonest first.
func (d *Directory) UpcomingEvents(ctx context.Context, chefID string, limit int) ([]tools.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var bookings []models.Booking
	err := d.db.
		Where("chef_id = ? AND event_date >= ? AND status <> ?", chefID, d.clock().UTC(), models.BookingStatusCancelled).
		Order("event_date").
		Limit(limit).
		Find(&bookings).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list upcoming events: %w", err)
	}

	events := make([]tools.Event, 0, len(bookings))
	for _, b := range bookings {
		events = append(events, tools.Event{
			BookingID:  b.ID,
			ClientID:   b.ClientID,
			Date:       b.EventDate,
			Occasion:   b.Occasion,
			GuestCount: b.GuestCount,
			Status:     string(b.Status),
		})
	}
	return events, nil
}

func (d *Directory) ClientOverview(ctx context.Context, chefID, clientID string) (tools.ClientOverview, error) {
	client, err := d.client(ctx, chefID, clientID, false)
	if err != nil {
		return tools.ClientOverview{}, err
	}

	var bookings []models.Booking
	if err := d.db.Where("chef_id = ? AND client_id = ?", chefID, clientID).Order("event_date").Find(&bookings).Error; err != nil {
		return tools.ClientOverview{}, fmt.Errorf("failed to load bookings: %w", err)
	}
	var members int
	if err := d.db.Model(&models.HouseholdMember{}).Where("client_id = ?", clientID).Count(&members).Error; err != nil {
		return tools.ClientOverview{}, fmt.Errorf("failed to count household: %w", err)
	}

	overview := tools.ClientOverview{
		ClientID:      client.ID,
		DisplayName:   client.DisplayName,
		BookingCount:  len(bookings),
		HouseholdSize: members,
	}
	now := d.clock()
	for i := range bookings {
		b := bookings[i]
		if b.EventDate.Before(now) && b.Status != models.BookingStatusCancelled {
			overview.LastEvent = &b.EventDate
		}
	}
	return overview, nil
}

func (d *Directory) MenuSummary(ctx context.Context, chefID, bookingID string) (tools.MenuSummary, error) {
	booking, err := d.booking(ctx, chefID, bookingID)
	if err != nil {
		return tools.MenuSummary{}, err
	}
	summary := tools.MenuSummary{BookingID: booking.ID, Occasion: booking.Occasion, Items: []tools.MenuLine{}}
	for _, item := range booking.MenuItems {
		summary.Items = append(summary.Items, tools.MenuLine{Name: item.Name, Course: item.Course})
	}
	return summary, nil
}

func (d *Directory) DietarySummary(ctx context.Context, chefID, clientID string) (tools.DietarySummary, error) {
	client, err := d.client(ctx, chefID, clientID, true)
	if err != nil {
		return tools.DietarySummary{}, err
	}
	summary := tools.DietarySummary{ClientID: client.ID, ClientName: client.DisplayName, Members: []tools.MemberDiet{}}
	for _, m := range client.Members {
		summary.Members = append(summary.Members, tools.MemberDiet{
			Name:         m.Name,
			Allergies:    m.Values(models.RestrictionAllergy),
			Intolerances: m.Values(models.RestrictionIntolerance),
			Diets:        m.Values(models.RestrictionDiet),
		})
	}
	return summary, nil
}

// AllergenCheck compares every menu item of a booking against every
// restriction in the booking client's household.
func (d *Directory) AllergenCheck(ctx context.Context, chefID, bookingID string) (tools.AllergenCheck, error) {
	booking, err := d.booking(ctx, chefID, bookingID)
	if err != nil {
		return tools.AllergenCheck{}, err
	}
	client, err := d.client(ctx, chefID, booking.ClientID, true)
	if err != nil {
		return tools.AllergenCheck{}, err
	}

	check := tools.AllergenCheck{
		BookingID:    booking.ID,
		ClientName:   client.DisplayName,
		MemberNames:  make([]string, 0, len(client.Members)),
		ItemsChecked: len(booking.MenuItems),
	}
	for _, m := range client.Members {
		check.MemberNames = append(check.MemberNames, m.Name)
	}
	for _, item := range booking.MenuItems {
		for _, m := range client.Members {
			for _, r := range m.Restrictions {
				if conflicts(item, r) {
					check.Conflicts = append(check.Conflicts, tools.Conflict{Member: m.Name, Item: item.Name, Restriction: r.Value})
				}
			}
		}
	}
	return check, nil
}

func conflicts(item models.MenuItem, r models.DietaryRestriction) bool {
	for _, a := range r.Excludes() {
		if item.HasAllergen(a) {
			return true
		}
	}
	return false
}

// QueueMessage writes a message to the outbox. Delivery belongs to the
// messaging integration that drains it.
func (d *Directory) QueueMessage(ctx context.Context, chefID, clientID, body string) (tools.QueuedMessage, error) {
	if _, err := d.client(ctx, chefID, clientID, false); err != nil {
		return tools.QueuedMessage{}, err
	}
	if strings.TrimSpace(body) == "" {
		return tools.QueuedMessage{}, fmt.Errorf("message body is empty")
	}
	msg := models.OutboundMessage{ChefID: chefID, ClientID: clientID, Body: body, Status: models.MessageStatusQueued}
	if err := d.db.Create(&msg).Error; err != nil {
		return tools.QueuedMessage{}, fmt.Errorf("failed to queue message: %w", err)
	}
	return tools.QueuedMessage{MessageID: fmt.Sprintf("msg-%d", msg.ID), ClientID: clientID, Status: string(msg.Status)}, nil
}

// Outbox returns queued messages for a chef, oldest first.
func (d *Directory) Outbox(ctx context.Context, chefID string) ([]models.OutboundMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var msgs []models.OutboundMessage
	err := d.db.Where("chef_id = ? AND status = ?", chefID, models.MessageStatusQueued).Order("id").Find(&msgs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to read outbox: %w", err)
	}
	return msgs, nil
}

// ChefProfile implements the session's chef lookup.
func (d *Directory) ChefProfile(ctx context.Context, chefID string) (prompt.Chef, error) {
	if err := ctx.Err(); err != nil {
		return prompt.Chef{}, err
	}
	var chef models.Chef
	if err := d.db.Where("id = ?", chefID).First(&chef).Error; err != nil {
		return prompt.Chef{}, notFound(err, "chef")
	}
	return prompt.Chef{ID: chef.ID, DisplayName: chef.DisplayName, BusinessName: chef.BusinessName}, nil
}

// ContextSummary describes the record a conversation is about. It never
// includes dietary data, since the prompt is sent on every channel.
func (d *Directory) ContextSummary(ctx context.Context, chefID, contextType, contextID string) (string, error) {
	switch contextType {
	case "booking":
		b, err := d.booking(ctx, chefID, contextID)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s on %s for %d guests (%s), %d menu items.",
			b.Occasion, b.EventDate.Format("Mon 2 Jan 2006"), b.GuestCount, b.Status, len(b.MenuItems)), nil
	case "client":
		overview, err := d.ClientOverview(ctx, chefID, contextID)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Client %s (%s), %d bookings so far.", overview.DisplayName, overview.ClientID, overview.BookingCount), nil
	default:
		return "", fmt.Errorf("%w: context type %q", tools.ErrNotFound, contextType)
	}
}

func (d *Directory) client(ctx context.Context, chefID, clientID string, withMembers bool) (models.Client, error) {
	if err := ctx.Err(); err != nil {
		return models.Client{}, err
	}
	q := d.db
	if withMembers {
		q = q.Preload("Members", func(db *gorm.DB) *gorm.DB { return db.Order("name") }).
			Preload("Members.Restrictions", func(db *gorm.DB) *gorm.DB { return db.Order("id") })
	}
	var client models.Client
	if err := q.Where("id = ? AND chef_id = ?", clientID, chefID).First(&client).Error; err != nil {
		return models.Client{}, notFound(err, "client")
	}
	return client, nil
}

func (d *Directory) booking(ctx context.Context, chefID, bookingID string) (models.Booking, error) {
	if err := ctx.Err(); err != nil {
		return models.Booking{}, err
	}
	var booking models.Booking
	err := d.db.
		Preload("MenuItems", func(db *gorm.DB) *gorm.DB { return db.Order("position") }).
		Where("id = ? AND chef_id = ?", bookingID, chefID).
		First(&booking).Error
	if err != nil {
		return models.Booking{}, notFound(err, "booking")
	}
	return booking, nil
}

func notFound(err error, what string) error {
	if gorm.IsRecordNotFoundError(err) {
		return fmt.Errorf("%s: %w", what, tools.ErrNotFound)
	}
	return fmt.Errorf("failed to load %s: %w", what, err)
}
