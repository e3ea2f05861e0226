package models

import (
	"fmt"
	"strings"

	"github.com/jinzhu/gorm"
)

// MenuItem represents a dish on a booking's menu
type MenuItem struct {
	gorm.Model
	BookingID string `gorm:"index"`
	Name      string
	Course    string
	Position  int
	// Allergens is a comma-separated list of Allergen values.
	Allergens string
}

// MenuCourse represents the course a menu item is served in
type MenuCourse string

const (
	// Menu courses
	MenuCourseCanape   MenuCourse = "canape"
	MenuCourseStarter  MenuCourse = "starter"
	MenuCourseMain     MenuCourse = "main"
	MenuCourseSide     MenuCourse = "side"
	MenuCourseDessert  MenuCourse = "dessert"
	MenuCourseBeverage MenuCourse = "beverage"
)

// Allergen represents a food allergen or ingredient class
type Allergen string

const (
	// Common allergens
	AllergenMilk      Allergen = "milk"
	AllergenEggs      Allergen = "eggs"
	AllergenFish      Allergen = "fish"
	AllergenShellfish Allergen = "shellfish"
	AllergenTreeNuts  Allergen = "tree_nuts"
	AllergenPeanuts   Allergen = "peanuts"
	AllergenWheat     Allergen = "wheat"
	AllergenGluten    Allergen = "gluten"
	AllergenSoy       Allergen = "soy"
	AllergenSesame    Allergen = "sesame"

	// Ingredient classes used by diet checks
	AllergenMeat  Allergen = "meat"
	AllergenHoney Allergen = "honey"
)

// ValidateMenuItem validates a menu item
func ValidateMenuItem(item *MenuItem) error {
	if item.Name == "" {
		return fmt.Errorf("menu item name is required")
	}
	if item.BookingID == "" {
		return fmt.Errorf("menu item %q must belong to a booking", item.Name)
	}
	return nil
}

// AllergenList returns the item's allergens, normalized.
func (mi *MenuItem) AllergenList() []Allergen {
	var out []Allergen
	for _, a := range strings.Split(mi.Allergens, ",") {
		if a = NormalizeTerm(a); a != "" {
			out = append(out, Allergen(a))
		}
	}
	return out
}

// HasAllergen checks if the item contains a specific allergen
func (mi *MenuItem) HasAllergen(allergen Allergen) bool {
	for _, alg := range mi.AllergenList() {
		if alg == allergen {
			return true
		}
	}
	return false
}

// SetAllergens stores allergens in their column form.
func (mi *MenuItem) SetAllergens(allergens ...Allergen) {
	parts := make([]string, 0, len(allergens))
	for _, a := range allergens {
		parts = append(parts, string(a))
	}
	mi.Allergens = strings.Join(parts, ",")
}

// NormalizeTerm lowercases a restriction or allergen and folds spaces and
// dashes to underscores, so "Tree nuts" matches "tree_nuts".
func NormalizeTerm(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(s)
}
