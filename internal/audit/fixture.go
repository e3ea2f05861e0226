package audit

import (
	"context"
	"time"

	"chefassist/internal/tools"
)

// DenyList holds every personal identifier and health term the fixture data
// contains. None of them may appear in a sensitive result on an untrusted
// channel, or in any restricted or error message.
var DenyList = []string{
	"Zuri Okafor", "Zuri", "Okafor",
	"Bram Lindgren", "Bram", "Lindgren",
	"sesame", "celiac", "lactose",
}

const (
	fixtureChef    = "chef-audit"
	fixtureClient  = "client-audit"
	fixtureBooking = "booking-audit"
)

// fixtureBackend serves one household whose data is entirely deny-listed.
type fixtureBackend struct{}

func (fixtureBackend) UpcomingEvents(ctx context.Context, chefID string, limit int) ([]tools.Event, error) {
	return []tools.Event{{
		BookingID:  fixtureBooking,
		ClientID:   fixtureClient,
		Date:       time.Date(2026, 11, 2, 19, 0, 0, 0, time.UTC),
		Occasion:   "Supper club",
		GuestCount: 6,
		Status:     "confirmed",
	}}, nil
}

func (fixtureBackend) ClientOverview(ctx context.Context, chefID, clientID string) (tools.ClientOverview, error) {
	if clientID != fixtureClient {
		return tools.ClientOverview{}, tools.ErrNotFound
	}
	return tools.ClientOverview{ClientID: fixtureClient, DisplayName: "Household A", BookingCount: 3, HouseholdSize: 2}, nil
}

func (fixtureBackend) MenuSummary(ctx context.Context, chefID, bookingID string) (tools.MenuSummary, error) {
	return tools.MenuSummary{BookingID: fixtureBooking, Occasion: "Supper club", Items: []tools.MenuLine{
		{Name: "Flatbread", Course: "starter"},
		{Name: "Tahini greens", Course: "side"},
	}}, nil
}

func (fixtureBackend) DietarySummary(ctx context.Context, chefID, clientID string) (tools.DietarySummary, error) {
	return tools.DietarySummary{ClientID: fixtureClient, ClientName: "Okafor-Lindgren household", Members: []tools.MemberDiet{
		{Name: "Zuri Okafor", Allergies: []string{"sesame"}},
		{Name: "Bram Lindgren", Diets: []string{"celiac"}, Intolerances: []string{"lactose"}},
	}}, nil
}

func (fixtureBackend) AllergenCheck(ctx context.Context, chefID, bookingID string) (tools.AllergenCheck, error) {
	return tools.AllergenCheck{
		BookingID:    fixtureBooking,
		ClientName:   "Okafor-Lindgren household",
		MemberNames:  []string{"Zuri Okafor", "Bram Lindgren"},
		ItemsChecked: 2,
		Conflicts: []tools.Conflict{
			{Member: "Zuri Okafor", Item: "Tahini greens", Restriction: "sesame"},
			{Member: "Bram Lindgren", Item: "Flatbread", Restriction: "celiac"},
		},
	}, nil
}

func (fixtureBackend) QueueMessage(ctx context.Context, chefID, clientID, body string) (tools.QueuedMessage, error) {
	return tools.QueuedMessage{MessageID: "msg-audit", ClientID: clientID, Status: "queued"}, nil
}
