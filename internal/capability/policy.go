package capability

import (
	"sort"

	"chefassist/internal/channel"
)

// Category tags every tool exactly once, at registration time.
type Category string

const (
	Core       Category = "core"
	Navigation Category = "navigation"
	Messaging  Category = "messaging"
	Sensitive  Category = "sensitive"
)

func (c Category) valid() bool {
	switch c {
	case Core, Navigation, Messaging, Sensitive:
		return true
	}
	return false
}

// ToolID is the closed set of tool identifiers the assistant knows about.
type ToolID string

const (
	ListUpcomingEvents      ToolID = "list_upcoming_events"
	GetClientOverview       ToolID = "get_client_overview"
	GetMenuSummary          ToolID = "get_menu_summary"
	NavigateTo              ToolID = "navigate_to"
	OpenClientProfile       ToolID = "open_client_profile"
	DraftClientMessage      ToolID = "draft_client_message"
	SendClientMessage       ToolID = "send_client_message"
	GetDietarySummary       ToolID = "get_dietary_summary"
	CheckAllergenCompliance ToolID = "check_allergen_compliance"
)

// Catalogue is every tool identifier a correctly deployed build must register.
var Catalogue = []ToolID{
	ListUpcomingEvents,
	GetClientOverview,
	GetMenuSummary,
	NavigateTo,
	OpenClientProfile,
	DraftClientMessage,
	SendClientMessage,
	GetDietarySummary,
	CheckAllergenCompliance,
}

func (id ToolID) valid() bool {
	for _, known := range Catalogue {
		if id == known {
			return true
		}
	}
	return false
}

func (id ToolID) String() string { return string(id) }

// CategorySet is an unordered set of categories.
type CategorySet map[Category]struct{}

// NewCategorySet builds a set from the given categories.
func NewCategorySet(cats ...Category) CategorySet {
	s := make(CategorySet, len(cats))
	for _, c := range cats {
		s[c] = struct{}{}
	}
	return s
}

// Has reports membership.
func (s CategorySet) Has(c Category) bool {
	_, ok := s[c]
	return ok
}

// Sorted returns the categories in lexical order.
func (s CategorySet) Sorted() []Category {
	out := make([]Category, 0, len(s))
	for c := range s {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s CategorySet) clone() CategorySet {
	out := make(CategorySet, len(s))
	for c := range s {
		out[c] = struct{}{}
	}
	return out
}

// Policy maps each channel to the categories it may invoke.
type Policy map[channel.Channel]CategorySet

// DefaultPolicy is the production capability table. Sensitive tools are
// invocable on the bridges but remain subject to the sensitivity guard.
func DefaultPolicy() Policy {
	return Policy{
		channel.Web:     NewCategorySet(Core, Navigation, Messaging, Sensitive),
		channel.BridgeA: NewCategorySet(Core, Messaging, Sensitive),
		channel.BridgeB: NewCategorySet(Core, Sensitive),
	}
}

func (p Policy) clone() Policy {
	out := make(Policy, len(p))
	for ch, set := range p {
		out[ch] = set.clone()
	}
	return out
}
