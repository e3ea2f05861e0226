package models

import (
	"time"

	"github.com/jinzhu/gorm"
)

// Chef is the business owner the assistant works for.
type Chef struct {
	ID           string `gorm:"primary_key"`
	DisplayName  string
	BusinessName string
	Email        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Client represents a household that books the chef
type Client struct {
	ID          string `gorm:"primary_key"`
	ChefID      string `gorm:"index"`
	DisplayName string
	Email       string
	Phone       string
	Members     []HouseholdMember `gorm:"foreignkey:ClientID"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// HouseholdMember is one person in a client household
type HouseholdMember struct {
	ID           string `gorm:"primary_key"`
	ClientID     string `gorm:"index"`
	Name         string
	Restrictions []DietaryRestriction `gorm:"foreignkey:MemberID"`
}

// DietaryRestriction is a single allergy, intolerance or diet of a member
type DietaryRestriction struct {
	gorm.Model
	MemberID string `gorm:"index"`
	Kind     RestrictionKind
	Value    string
}

// RestrictionKind represents the kind of a dietary restriction
type RestrictionKind string

const (
	RestrictionAllergy     RestrictionKind = "allergy"
	RestrictionIntolerance RestrictionKind = "intolerance"
	RestrictionDiet        RestrictionKind = "diet"
)

// dietExclusions maps a diet to the ingredient classes it rules out.
var dietExclusions = map[string][]Allergen{
	"vegan":       {AllergenMilk, AllergenEggs, AllergenFish, AllergenShellfish, AllergenMeat, AllergenHoney},
	"vegetarian":  {AllergenFish, AllergenShellfish, AllergenMeat},
	"pescatarian": {AllergenMeat},
	"celiac":      {AllergenWheat, AllergenGluten},
	"gluten_free": {AllergenWheat, AllergenGluten},
	"dairy_free":  {AllergenMilk},
}

// Excludes lists the allergens a restriction rules out. Allergies and
// intolerances exclude themselves; diets expand through a fixed table.
func (r DietaryRestriction) Excludes() []Allergen {
	value := NormalizeTerm(r.Value)
	if r.Kind == RestrictionDiet {
		return dietExclusions[value]
	}
	if value == "" {
		return nil
	}
	return []Allergen{Allergen(value)}
}

// Values returns the member's restriction values of one kind.
func (m HouseholdMember) Values(kind RestrictionKind) []string {
	out := []string{}
	for _, r := range m.Restrictions {
		if r.Kind == kind {
			out = append(out, r.Value)
		}
	}
	return out
}
