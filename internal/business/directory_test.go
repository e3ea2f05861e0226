package business

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/jinzhu/gorm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chefassist/internal/capability"
	"chefassist/internal/channel"
	"chefassist/internal/database"
	"chefassist/internal/guard"
	"chefassist/internal/models"
	"chefassist/internal/result"
	"chefassist/internal/tools"
)

var testNow = time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)

func newDirectory(t *testing.T) (*Directory, *gorm.DB) {
	t.Helper()
	db, err := database.Open("sqlite3", filepath.Join(t.TempDir(), "business.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(db))
	require.NoError(t, database.Seed(db, testNow))

	require.NoError(t, db.Create(&models.Client{ID: "client-other", ChefID: "chef-other", DisplayName: "Someone else"}).Error)
	return NewDirectory(db, WithClock(func() time.Time { return testNow })), db
}

func TestUpcomingEvents(t *testing.T) {
	dir, _ := newDirectory(t)
	ctx := context.Background()

	events, err := dir.UpcomingEvents(ctx, database.DemoChefID, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "booking-anniversary", events[0].BookingID)
	assert.Equal(t, "booking-offsite", events[1].BookingID)
	assert.Equal(t, 4, events[0].GuestCount)

	events, err = dir.UpcomingEvents(ctx, database.DemoChefID, 1)
	require.NoError(t, err)
	assert.Len(t, events, 1)

	events, err = dir.UpcomingEvents(ctx, "chef-other", 10)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestClientOverview(t *testing.T) {
	dir, _ := newDirectory(t)

	overview, err := dir.ClientOverview(context.Background(), database.DemoChefID, "client-okonkwo")
	require.NoError(t, err)
	assert.Equal(t, "The Okonkwo household", overview.DisplayName)
	assert.Equal(t, 2, overview.BookingCount)
	assert.Equal(t, 3, overview.HouseholdSize)
	require.NotNil(t, overview.LastEvent)
	assert.True(t, overview.LastEvent.Before(testNow))

	_, err = dir.ClientOverview(context.Background(), database.DemoChefID, "client-other")
	assert.ErrorIs(t, err, tools.ErrNotFound, "another chef's client looks missing")
}

func TestMenuSummary(t *testing.T) {
	dir, _ := newDirectory(t)

	menu, err := dir.MenuSummary(context.Background(), database.DemoChefID, "booking-anniversary")
	require.NoError(t, err)
	require.Len(t, menu.Items, 4)
	assert.Equal(t, tools.MenuLine{Name: "Chilled pea soup", Course: "starter"}, menu.Items[0])
	assert.Equal(t, "Lemon posset", menu.Items[3].Name)

	_, err = dir.MenuSummary(context.Background(), database.DemoChefID, "booking-missing")
	assert.ErrorIs(t, err, tools.ErrNotFound)
}

func TestDietarySummary(t *testing.T) {
	dir, _ := newDirectory(t)

	summary, err := dir.DietarySummary(context.Background(), database.DemoChefID, "client-lindqvist")
	require.NoError(t, err)
	require.Len(t, summary.Members, 1)
	sara := summary.Members[0]
	assert.Equal(t, "Sara Lindqvist", sara.Name)
	assert.Equal(t, []string{"celiac"}, sara.Diets)
	assert.Equal(t, []string{"milk"}, sara.Intolerances)
	assert.Empty(t, sara.Allergies)
}

func TestAllergenCheck(t *testing.T) {
	dir, _ := newDirectory(t)
	ctx := context.Background()

	check, err := dir.AllergenCheck(ctx, database.DemoChefID, "booking-anniversary")
	require.NoError(t, err)
	assert.Equal(t, 4, check.ItemsChecked)
	assert.Equal(t, []string{"Ife Okonkwo", "Maya Okonkwo", "Theo Okonkwo"}, check.MemberNames)
	assert.Equal(t, []tools.Conflict{
		{Member: "Maya Okonkwo", Item: "Chicken satay", Restriction: "peanuts"},
		{Member: "Theo Okonkwo", Item: "Chicken satay", Restriction: "vegetarian"},
	}, check.Conflicts)

	check, err = dir.AllergenCheck(ctx, database.DemoChefID, "booking-offsite")
	require.NoError(t, err)
	assert.Len(t, check.Conflicts, 2)
}

func TestQueueMessage(t *testing.T) {
	dir, _ := newDirectory(t)
	ctx := context.Background()

	queued, err := dir.QueueMessage(ctx, database.DemoChefID, "client-okonkwo", "See you Monday!")
	require.NoError(t, err)
	assert.Equal(t, "queued", queued.Status)
	assert.NotEmpty(t, queued.MessageID)

	outbox, err := dir.Outbox(ctx, database.DemoChefID)
	require.NoError(t, err)
	require.Len(t, outbox, 1)
	assert.Equal(t, "See you Monday!", outbox[0].Body)

	_, err = dir.QueueMessage(ctx, database.DemoChefID, "client-other", "hello")
	assert.ErrorIs(t, err, tools.ErrNotFound)
	_, err = dir.QueueMessage(ctx, database.DemoChefID, "client-okonkwo", "   ")
	assert.Error(t, err)
}

func TestPromptLookups(t *testing.T) {
	dir, _ := newDirectory(t)
	ctx := context.Background()

	chef, err := dir.ChefProfile(ctx, database.DemoChefID)
	require.NoError(t, err)
	assert.Equal(t, "Table for Eight", chef.BusinessName)

	summary, err := dir.ContextSummary(ctx, database.DemoChefID, "booking", "booking-anniversary")
	require.NoError(t, err)
	assert.Equal(t, "Anniversary dinner on Mon 19 Oct 2026 for 4 guests (confirmed), 4 menu items.", summary)
	assert.NotContains(t, summary, "peanut")

	summary, err = dir.ContextSummary(ctx, database.DemoChefID, "client", "client-okonkwo")
	require.NoError(t, err)
	assert.Contains(t, summary, "2 bookings")

	_, err = dir.ContextSummary(ctx, database.DemoChefID, "invoice", "i-1")
	assert.ErrorIs(t, err, tools.ErrNotFound)
}

func TestCancelledContext(t *testing.T) {
	dir, _ := newDirectory(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := dir.UpcomingEvents(ctx, database.DemoChefID, 5)
	assert.ErrorIs(t, err, context.Canceled)
	_, err = dir.QueueMessage(ctx, database.DemoChefID, "client-okonkwo", "hi")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAllergenCheckSanitizedOffDashboard(t *testing.T) {
	dir, _ := newDirectory(t)
	reg, err := capability.NewRegistry(capability.DefaultPolicy(), tools.ChefTools(dir)...)
	require.NoError(t, err)
	disp, err := tools.NewDispatcher(reg, guard.New(reg, guard.DefaultRules()...))
	require.NoError(t, err)

	ctx := tools.WithChef(context.Background(), database.DemoChefID)
	args := json.RawMessage(`{"booking_id":"booking-anniversary"}`)

	res, err := disp.Dispatch(ctx, "check_allergen_compliance", args, channel.BridgeA)
	require.NoError(t, err)
	assert.Equal(t, result.StatusSuccess, res.Status)
	assert.Equal(t, false, res.Payload["compliant"])
	content := res.EngineContent()
	for _, word := range []string{"Maya", "Theo", "Okonkwo", "peanut", "vegetarian"} {
		assert.NotContains(t, content, word)
	}

	res, err = disp.Dispatch(ctx, "check_allergen_compliance", args, channel.Web)
	require.NoError(t, err)
	assert.Contains(t, res.EngineContent(), "Maya Okonkwo")
}
