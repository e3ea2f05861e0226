package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"chefassist/internal/capability"
	"chefassist/internal/result"
)

var errNoChef = errors.New("request is not scoped to a chef")

// Dashboard routes the navigation tools may open.
var Routes = map[string]string{
	"dashboard": "/",
	"bookings":  "/bookings",
	"calendar":  "/calendar",
	"clients":   "/clients",
	"menus":     "/menus",
	"messages":  "/messages",
}

// ChefTools returns the full tool catalogue bound to a business backend.
func ChefTools(b Backend) []capability.Descriptor {
	return []capability.Descriptor{
		{
			ID:          capability.ListUpcomingEvents,
			Category:    capability.Core,
			Description: "List the chef's upcoming bookings with date, occasion, guest count and status.",
			InputSchema: object(map[string]any{
				"limit": map[string]any{"type": "integer", "minimum": 1, "maximum": 50},
			}),
			Execute: withChef(func(ctx context.Context, chefID string, args json.RawMessage) (any, error) {
				var in struct {
					Limit int `json:"limit"`
				}
				if err := decode(args, &in); err != nil {
					return nil, err
				}
				if in.Limit == 0 {
					in.Limit = 10
				}
				events, err := b.UpcomingEvents(ctx, chefID, in.Limit)
				if err != nil {
					return nil, err
				}
				return map[string]any{"events": events, "count": len(events)}, nil
			}),
		},
		{
			ID:          capability.GetClientOverview,
			Category:    capability.Core,
			Description: "Summarize a client household: name, number of bookings, last event date.",
			InputSchema: object(map[string]any{
				"client_id": map[string]any{"type": "string", "minLength": 1},
			}, "client_id"),
			Execute: withChef(func(ctx context.Context, chefID string, args json.RawMessage) (any, error) {
				var in struct {
					ClientID string `json:"client_id"`
				}
				if err := decode(args, &in); err != nil {
					return nil, err
				}
				return b.ClientOverview(ctx, chefID, in.ClientID)
			}),
		},
		{
			ID:          capability.GetMenuSummary,
			Category:    capability.Core,
			Description: "List the dishes planned for a booking, grouped by course.",
			InputSchema: object(map[string]any{
				"booking_id": map[string]any{"type": "string", "minLength": 1},
			}, "booking_id"),
			Execute: withChef(func(ctx context.Context, chefID string, args json.RawMessage) (any, error) {
				var in struct {
					BookingID string `json:"booking_id"`
				}
				if err := decode(args, &in); err != nil {
					return nil, err
				}
				return b.MenuSummary(ctx, chefID, in.BookingID)
			}),
		},
		{
			ID:          capability.NavigateTo,
			Category:    capability.Navigation,
			Description: "Open a page of the dashboard for the chef.",
			InputSchema: object(map[string]any{
				"page": map[string]any{"type": "string", "enum": routeNames()},
			}, "page"),
			Execute: func(_ context.Context, args json.RawMessage) (any, error) {
				var in struct {
					Page string `json:"page"`
				}
				if err := decode(args, &in); err != nil {
					return nil, err
				}
				path, ok := Routes[in.Page]
				if !ok {
					return map[string]any{"error": fmt.Sprintf("unknown page %q", in.Page)}, nil
				}
				return result.Action{
					Type:        "navigate",
					Key:         "path",
					AutoExecute: true,
					Payload:     map[string]any{"path": path},
				}, nil
			},
		},
		{
			ID:          capability.OpenClientProfile,
			Category:    capability.Navigation,
			Description: "Open a client's profile page on the dashboard.",
			InputSchema: object(map[string]any{
				"client_id": map[string]any{"type": "string", "minLength": 1},
			}, "client_id"),
			Execute: withChef(func(ctx context.Context, chefID string, args json.RawMessage) (any, error) {
				var in struct {
					ClientID string `json:"client_id"`
				}
				if err := decode(args, &in); err != nil {
					return nil, err
				}
				if _, err := b.ClientOverview(ctx, chefID, in.ClientID); err != nil {
					return nil, err
				}
				return result.Action{
					Type:        "navigate",
					Key:         "path",
					AutoExecute: true,
					Payload:     map[string]any{"path": "/clients/" + in.ClientID, "client_id": in.ClientID},
				}, nil
			}),
		},
		{
			ID:          capability.DraftClientMessage,
			Category:    capability.Messaging,
			Description: "Prepare a message to a client for the chef to review. Nothing is sent.",
			InputSchema: object(map[string]any{
				"client_id": map[string]any{"type": "string", "minLength": 1},
				"body":      map[string]any{"type": "string", "minLength": 1, "maxLength": 4000},
			}, "client_id", "body"),
			Execute: withChef(func(ctx context.Context, chefID string, args json.RawMessage) (any, error) {
				var in struct {
					ClientID string `json:"client_id"`
					Body     string `json:"body"`
				}
				if err := decode(args, &in); err != nil {
					return nil, err
				}
				if _, err := b.ClientOverview(ctx, chefID, in.ClientID); err != nil {
					return nil, err
				}
				return result.Action{
					Type:    "draft_message",
					Key:     "client_id",
					Payload: map[string]any{"client_id": in.ClientID, "body": strings.TrimSpace(in.Body)},
				}, nil
			}),
		},
		{
			ID:          capability.SendClientMessage,
			Category:    capability.Messaging,
			Description: "Send a message to a client through the messaging integration.",
			InputSchema: object(map[string]any{
				"client_id": map[string]any{"type": "string", "minLength": 1},
				"body":      map[string]any{"type": "string", "minLength": 1, "maxLength": 4000},
			}, "client_id", "body"),
			Execute: withChef(func(ctx context.Context, chefID string, args json.RawMessage) (any, error) {
				var in struct {
					ClientID string `json:"client_id"`
					Body     string `json:"body"`
				}
				if err := decode(args, &in); err != nil {
					return nil, err
				}
				return b.QueueMessage(ctx, chefID, in.ClientID, strings.TrimSpace(in.Body))
			}),
		},
		{
			ID:          capability.GetDietarySummary,
			Category:    capability.Sensitive,
			Description: "Allergies, intolerances and medical diets for each member of a client household.",
			InputSchema: object(map[string]any{
				"client_id": map[string]any{"type": "string", "minLength": 1},
			}, "client_id"),
			Execute: withChef(func(ctx context.Context, chefID string, args json.RawMessage) (any, error) {
				var in struct {
					ClientID string `json:"client_id"`
				}
				if err := decode(args, &in); err != nil {
					return nil, err
				}
				return b.DietarySummary(ctx, chefID, in.ClientID)
			}),
		},
		{
			ID:          capability.CheckAllergenCompliance,
			Category:    capability.Sensitive,
			Description: "Check a booking's menu against the household's dietary restrictions.",
			InputSchema: object(map[string]any{
				"booking_id": map[string]any{"type": "string", "minLength": 1},
			}, "booking_id"),
			Execute: withChef(func(ctx context.Context, chefID string, args json.RawMessage) (any, error) {
				var in struct {
					BookingID string `json:"booking_id"`
				}
				if err := decode(args, &in); err != nil {
					return nil, err
				}
				check, err := b.AllergenCheck(ctx, chefID, in.BookingID)
				if err != nil {
					return nil, err
				}
				return allergenPayload(check), nil
			}),
		},
	}
}

// allergenPayload keeps the verdict and a name-free summary apart from the
// detailed explanation so a sanitized result still answers the question.
func allergenPayload(c AllergenCheck) map[string]any {
	conflicting := map[string]bool{}
	lines := make([]string, 0, len(c.Conflicts))
	for _, cf := range c.Conflicts {
		conflicting[cf.Item] = true
		lines = append(lines, fmt.Sprintf("%s conflicts with %s (%s)", cf.Item, cf.Member, cf.Restriction))
	}
	summary := fmt.Sprintf("All %d menu items fit the household's restrictions.", c.ItemsChecked)
	if len(conflicting) > 0 {
		summary = fmt.Sprintf("%d of %d menu items conflict with the household's restrictions.", len(conflicting), c.ItemsChecked)
	}
	conflicts := c.Conflicts
	if conflicts == nil {
		conflicts = []Conflict{}
	}
	return map[string]any{
		"booking_id":    c.BookingID,
		"compliant":     len(c.Conflicts) == 0,
		"items_checked": c.ItemsChecked,
		"summary":       summary,
		"explanation":   strings.Join(lines, "; "),
		"member_names":  c.MemberNames,
		"client_name":   c.ClientName,
		"conflicts":     conflicts,
	}
}

func withChef(fn func(ctx context.Context, chefID string, args json.RawMessage) (any, error)) capability.Executor {
	return func(ctx context.Context, args json.RawMessage) (any, error) {
		chefID, ok := ChefFrom(ctx)
		if !ok {
			return nil, errNoChef
		}
		return fn(ctx, chefID, args)
	}
}

func decode(args json.RawMessage, into any) error {
	if len(args) == 0 {
		return nil
	}
	if err := json.Unmarshal(args, into); err != nil {
		return fmt.Errorf("decode arguments: %w", err)
	}
	return nil
}

func object(props map[string]any, required ...string) map[string]any {
	schema := map[string]any{
		"type":                 "object",
		"properties":           props,
		"additionalProperties": false,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func routeNames() []string {
	names := make([]string, 0, len(Routes))
	for name := range Routes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
