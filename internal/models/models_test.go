package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMenuItemAllergens(t *testing.T) {
	item := MenuItem{Name: "Satay", BookingID: "b-1", Allergens: " Peanuts, tree nuts ,,Soy"}

	assert.Equal(t, []Allergen{AllergenPeanuts, AllergenTreeNuts, AllergenSoy}, item.AllergenList())
	assert.True(t, item.HasAllergen(AllergenTreeNuts))
	assert.False(t, item.HasAllergen(AllergenMilk))

	item.SetAllergens(AllergenMilk, AllergenEggs)
	assert.Equal(t, "milk,eggs", item.Allergens)
}

func TestValidateMenuItem(t *testing.T) {
	assert.Error(t, ValidateMenuItem(&MenuItem{BookingID: "b-1"}))
	assert.Error(t, ValidateMenuItem(&MenuItem{Name: "Tart"}))
	assert.NoError(t, ValidateMenuItem(&MenuItem{Name: "Tart", BookingID: "b-1"}))
}

func TestRestrictionExcludes(t *testing.T) {
	tests := []struct {
		restriction DietaryRestriction
		want        []Allergen
	}{
		{DietaryRestriction{Kind: RestrictionAllergy, Value: "Peanuts"}, []Allergen{AllergenPeanuts}},
		{DietaryRestriction{Kind: RestrictionIntolerance, Value: "milk"}, []Allergen{AllergenMilk}},
		{DietaryRestriction{Kind: RestrictionDiet, Value: "Celiac"}, []Allergen{AllergenWheat, AllergenGluten}},
		{DietaryRestriction{Kind: RestrictionDiet, Value: "keto"}, nil},
		{DietaryRestriction{Kind: RestrictionAllergy, Value: " "}, nil},
	}
	for _, tt := range tests {
		t.Run(string(tt.restriction.Kind)+"/"+tt.restriction.Value, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.restriction.Excludes())
		})
	}
}

func TestMemberValues(t *testing.T) {
	m := HouseholdMember{Name: "Ada", Restrictions: []DietaryRestriction{
		{Kind: RestrictionAllergy, Value: "sesame"},
		{Kind: RestrictionDiet, Value: "vegetarian"},
	}}
	assert.Equal(t, []string{"sesame"}, m.Values(RestrictionAllergy))
	assert.Equal(t, []string{}, m.Values(RestrictionIntolerance))
}

func TestBookingUpcoming(t *testing.T) {
	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	assert.True(t, Booking{EventDate: now.Add(24 * time.Hour), Status: BookingStatusConfirmed}.Upcoming(now))
	assert.False(t, Booking{EventDate: now.Add(-time.Hour), Status: BookingStatusConfirmed}.Upcoming(now))
	assert.False(t, Booking{EventDate: now.Add(time.Hour), Status: BookingStatusCancelled}.Upcoming(now))
}
