package database

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chefassist/internal/models"
)

func TestOpenMigrateSeed(t *testing.T) {
	db, err := Open("sqlite3", filepath.Join(t.TempDir(), "chefassist.db"))
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, Migrate(db))

	now := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)
	require.NoError(t, Seed(db, now))
	require.NoError(t, Seed(db, now), "seeding twice is a no-op")

	var chefs, bookings, items, restrictions int
	require.NoError(t, db.Model(&models.Chef{}).Count(&chefs).Error)
	require.NoError(t, db.Model(&models.Booking{}).Count(&bookings).Error)
	require.NoError(t, db.Model(&models.MenuItem{}).Count(&items).Error)
	require.NoError(t, db.Model(&models.DietaryRestriction{}).Count(&restrictions).Error)
	assert.Equal(t, 1, chefs)
	assert.Equal(t, 3, bookings)
	assert.Equal(t, 7, items)
	assert.Equal(t, 4, restrictions)

	var client models.Client
	require.NoError(t, db.Preload("Members.Restrictions").Where("id = ?", "client-okonkwo").First(&client).Error)
	require.Len(t, client.Members, 3)
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open("oracle", "whatever")
	assert.Error(t, err)
}
