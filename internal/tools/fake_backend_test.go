package tools

import (
	"context"
	"sync"
	"time"
)

// denyList holds every personal identifier planted in fakeBackend.
var denyList = []string{"Maya", "Okonkwo", "Theo", "peanut", "celiac", "Adaeze"}

type fakeBackend struct {
	mu    sync.Mutex
	calls []string
	fail  error
	panic bool
	// block makes every call wait for context cancellation.
	block bool
}

func (f *fakeBackend) record(ctx context.Context, call string) error {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
	if f.panic {
		panic("backend exploded")
	}
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return f.fail
}

func (f *fakeBackend) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeBackend) UpcomingEvents(ctx context.Context, chefID string, limit int) ([]Event, error) {
	if err := f.record(ctx, "UpcomingEvents"); err != nil {
		return nil, err
	}
	return []Event{{
		BookingID:  "b-42",
		ClientID:   "c-1",
		Date:       time.Date(2026, 11, 2, 19, 0, 0, 0, time.UTC),
		Occasion:   "anniversary dinner",
		GuestCount: 4,
		Status:     "confirmed",
	}}, nil
}

func (f *fakeBackend) ClientOverview(ctx context.Context, chefID, clientID string) (ClientOverview, error) {
	if err := f.record(ctx, "ClientOverview"); err != nil {
		return ClientOverview{}, err
	}
	if clientID != "c-1" {
		return ClientOverview{}, ErrNotFound
	}
	return ClientOverview{ClientID: "c-1", DisplayName: "Okonkwo household", BookingCount: 3, HouseholdSize: 3}, nil
}

func (f *fakeBackend) MenuSummary(ctx context.Context, chefID, bookingID string) (MenuSummary, error) {
	if err := f.record(ctx, "MenuSummary"); err != nil {
		return MenuSummary{}, err
	}
	return MenuSummary{BookingID: bookingID, Occasion: "anniversary dinner", Items: []MenuLine{
		{Name: "Chicken satay", Course: "starter"},
		{Name: "Braised short rib", Course: "main"},
	}}, nil
}

func (f *fakeBackend) DietarySummary(ctx context.Context, chefID, clientID string) (DietarySummary, error) {
	if err := f.record(ctx, "DietarySummary"); err != nil {
		return DietarySummary{}, err
	}
	return DietarySummary{
		ClientID:   clientID,
		ClientName: "Okonkwo household",
		Members: []MemberDiet{
			{Name: "Maya Okonkwo", Allergies: []string{"peanut"}},
			{Name: "Theo Okonkwo", Diets: []string{"celiac"}},
			{Name: "Adaeze Okonkwo"},
		},
	}, nil
}

func (f *fakeBackend) AllergenCheck(ctx context.Context, chefID, bookingID string) (AllergenCheck, error) {
	if err := f.record(ctx, "AllergenCheck"); err != nil {
		return AllergenCheck{}, err
	}
	return AllergenCheck{
		BookingID:    bookingID,
		ClientName:   "Okonkwo household",
		MemberNames:  []string{"Maya Okonkwo", "Theo Okonkwo", "Adaeze Okonkwo"},
		ItemsChecked: 4,
		Conflicts: []Conflict{
			{Member: "Maya Okonkwo", Item: "Chicken satay", Restriction: "peanut allergy"},
		},
	}, nil
}

func (f *fakeBackend) QueueMessage(ctx context.Context, chefID, clientID, body string) (QueuedMessage, error) {
	if err := f.record(ctx, "QueueMessage"); err != nil {
		return QueuedMessage{}, err
	}
	return QueuedMessage{MessageID: "m-1", ClientID: clientID, Status: "queued"}, nil
}
