package database

import (
	"fmt"
	"time"

	"github.com/jinzhu/gorm"

	"chefassist/internal/models"
)

// DemoChefID owns the seeded demo data.
const DemoChefID = "chef-demo"

// Seed ensures demo data exists. It does nothing when a chef is already
// present, so it is safe to run at every start.
func Seed(db *gorm.DB, now time.Time) error {
	var chefCount int
	if err := db.Model(&models.Chef{}).Count(&chefCount).Error; err != nil {
		return fmt.Errorf("failed to count chefs: %w", err)
	}
	if chefCount > 0 {
		return nil
	}

	tx := db.Begin()
	if tx.Error != nil {
		return tx.Error
	}
	for _, record := range demoRecords(now) {
		if err := tx.Create(record).Error; err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to seed %T: %w", record, err)
		}
	}
	return tx.Commit().Error
}

func demoRecords(now time.Time) []interface{} {
	day := now.UTC().Truncate(24 * time.Hour)

	chef := &models.Chef{ID: DemoChefID, DisplayName: "Amara Eze", BusinessName: "Table for Eight", Email: "amara@example.com"}

	okonkwo := &models.Client{
		ID:          "client-okonkwo",
		ChefID:      DemoChefID,
		DisplayName: "The Okonkwo household",
		Email:       "hello@okonkwo.example",
		Members: []models.HouseholdMember{
			{ID: "member-maya", Name: "Maya Okonkwo", Restrictions: []models.DietaryRestriction{
				{Kind: models.RestrictionAllergy, Value: string(models.AllergenPeanuts)},
			}},
			{ID: "member-theo", Name: "Theo Okonkwo", Restrictions: []models.DietaryRestriction{
				{Kind: models.RestrictionDiet, Value: "vegetarian"},
			}},
			{ID: "member-ife", Name: "Ife Okonkwo"},
		},
	}
	lindqvist := &models.Client{
		ID:          "client-lindqvist",
		ChefID:      DemoChefID,
		DisplayName: "Lindqvist & Partners",
		Members: []models.HouseholdMember{
			{ID: "member-sara", Name: "Sara Lindqvist", Restrictions: []models.DietaryRestriction{
				{Kind: models.RestrictionDiet, Value: "celiac"},
				{Kind: models.RestrictionIntolerance, Value: string(models.AllergenMilk)},
			}},
		},
	}

	anniversary := &models.Booking{
		ID:         "booking-anniversary",
		ChefID:     DemoChefID,
		ClientID:   okonkwo.ID,
		EventDate:  day.Add(4*24*time.Hour + 19*time.Hour),
		Occasion:   "Anniversary dinner",
		GuestCount: 4,
		Status:     models.BookingStatusConfirmed,
		MenuItems: []models.MenuItem{
			menuItem(1, "Chilled pea soup", models.MenuCourseStarter),
			menuItem(2, "Chicken satay", models.MenuCourseStarter, models.AllergenPeanuts, models.AllergenSoy, models.AllergenMeat),
			menuItem(3, "Charred hispi cabbage", models.MenuCourseMain, models.AllergenMilk),
			menuItem(4, "Lemon posset", models.MenuCourseDessert, models.AllergenMilk),
		},
	}
	offsite := &models.Booking{
		ID:         "booking-offsite",
		ChefID:     DemoChefID,
		ClientID:   lindqvist.ID,
		EventDate:  day.Add(11*24*time.Hour + 12*time.Hour),
		Occasion:   "Team offsite lunch",
		GuestCount: 12,
		Status:     models.BookingStatusInquiry,
		MenuItems: []models.MenuItem{
			menuItem(1, "Heritage tomato salad", models.MenuCourseStarter),
			menuItem(2, "Roast hake, brown shrimp butter", models.MenuCourseMain, models.AllergenFish, models.AllergenShellfish, models.AllergenMilk),
			menuItem(3, "Sourdough", models.MenuCourseSide, models.AllergenWheat, models.AllergenGluten),
		},
	}
	past := &models.Booking{
		ID:         "booking-birthday",
		ChefID:     DemoChefID,
		ClientID:   okonkwo.ID,
		EventDate:  day.Add(-30 * 24 * time.Hour),
		Occasion:   "Birthday supper",
		GuestCount: 6,
		Status:     models.BookingStatusCompleted,
	}

	return []interface{}{chef, okonkwo, lindqvist, anniversary, offsite, past}
}

func menuItem(position int, name string, course models.MenuCourse, allergens ...models.Allergen) models.MenuItem {
	item := models.MenuItem{Name: name, Course: string(course), Position: position}
	item.SetAllergens(allergens...)
	return item
}
