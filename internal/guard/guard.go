package guard

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"chefassist/internal/capability"
	"chefassist/internal/channel"
	"chefassist/internal/result"
)

// Mode is what the guard does on a channel the tool does not trust.
type Mode int

const (
	// Block never runs the executor and returns a redirect message.
	Block Mode = iota
	// Sanitize runs the executor and strips personal identifiers from the result.
	Sanitize
)

func (m Mode) String() string {
	if m == Sanitize {
		return "sanitize"
	}
	return "block"
}

const redactedMarker = "[redacted]"

// Rule classifies one tool. Rules form an allow-list: a channel is trusted with
// full fidelity only when it is listed in Trusted.
type Rule struct {
	Tool    capability.ToolID
	Trusted []channel.Channel
	Mode    Mode
	// Subject names the withheld data in redirect messages, e.g. "Dietary details".
	Subject string
	// StripFields are removed from the payload in Sanitize mode.
	StripFields []string
	// IdentifierFields hold personal identifiers (strings or lists of strings)
	// that must be scrubbed from every remaining string in Sanitize mode.
	IdentifierFields []string
}

func (r Rule) trusts(c channel.Channel) bool {
	for _, t := range r.Trusted {
		if t == c {
			return true
		}
	}
	return false
}

// CategoryLookup is the part of the capability registry the guard needs.
type CategoryLookup interface {
	CategoryOf(name string) (capability.Category, error)
}

// Guard decides data fidelity per tool and channel. It is a narrower control than
// the capability policy: a permitted tool can still be blocked or sanitized here.
type Guard struct {
	rules    map[capability.ToolID]Rule
	registry CategoryLookup
}

// New builds a guard from rules.
func New(registry CategoryLookup, rules ...Rule) *Guard {
	g := &Guard{rules: make(map[capability.ToolID]Rule, len(rules)), registry: registry}
	for _, r := range rules {
		g.rules[r.Tool] = r
	}
	return g
}

// DefaultRules is the production classification of sensitive tools.
func DefaultRules() []Rule {
	return []Rule{
		{
			Tool:    capability.GetDietarySummary,
			Trusted: []channel.Channel{channel.Web},
			Mode:    Block,
			Subject: "Dietary and health details",
		},
		{
			Tool:             capability.CheckAllergenCompliance,
			Trusted:          []channel.Channel{channel.Web},
			Mode:             Sanitize,
			Subject:          "Allergen details",
			StripFields:      []string{"member_names", "conflicts", "client_name", "explanation"},
			IdentifierFields: []string{"member_names", "client_name"},
		},
	}
}

// Wrap returns an executor with the same signature as exec. Tools that are not
// sensitive and have no rule pass through untouched; sensitive tools without a
// rule, and tools the registry does not know, are blocked on every channel.
func (g *Guard) Wrap(tool string, c channel.Channel, exec result.Executor) result.Executor {
	rule, classified := g.rules[capability.ToolID(tool)]
	if !classified {
		cat, err := g.registry.CategoryOf(tool)
		if err == nil && cat != capability.Sensitive {
			return exec
		}
		rule = Rule{Tool: capability.ToolID(tool), Mode: Block}
	}
	if rule.trusts(c) {
		return exec
	}

	switch rule.Mode {
	case Sanitize:
		return func(ctx context.Context, args json.RawMessage) (result.Result, error) {
			res, err := exec(ctx, args)
			if err != nil {
				return res, err
			}
			return sanitize(rule, c, res), nil
		}
	default:
		msg := redirectMessage(rule.Subject, c)
		return func(context.Context, json.RawMessage) (result.Result, error) {
			return result.Restricted(tool, c.String(), msg), nil
		}
	}
}

// Mode reports how a tool is treated on a channel, for audit and prompts.
func (g *Guard) Mode(tool capability.ToolID, c channel.Channel) (trusted bool, mode Mode) {
	rule, ok := g.rules[tool]
	if !ok {
		cat, err := g.registry.CategoryOf(string(tool))
		if err == nil && cat != capability.Sensitive {
			return true, Block
		}
		return false, Block
	}
	return rule.trusts(c), rule.Mode
}

// Trusted reports whether c receives every classified sensitive tool at full
// fidelity. With no rules nothing is trusted.
func (g *Guard) Trusted(c channel.Channel) bool {
	if len(g.rules) == 0 {
		return false
	}
	for _, rule := range g.rules {
		if !rule.trusts(c) {
			return false
		}
	}
	return true
}

// redirectMessage is built only from the rule and the channel profile so no part
// of the withheld payload can reach it.
func redirectMessage(subject string, c channel.Channel) string {
	if subject == "" {
		subject = "These details"
	}
	p := c.Describe()
	return fmt.Sprintf("%s aren't shared over %s for privacy. They're available on %s.", subject, p.Label, p.Surface)
}

func sanitize(rule Rule, c channel.Channel, res result.Result) result.Result {
	if res.Status != result.StatusSuccess {
		return result.Result{
			Tool:    res.Tool,
			Status:  res.Status,
			Channel: c.String(),
			Message: "The check could not be completed on this channel.",
		}
	}

	ids := collectIdentifiers(res.Payload, rule.IdentifierFields)
	scrubber := newScrubber(ids)

	clean := make(map[string]any, len(res.Payload))
	for k, v := range res.Payload {
		if contains(rule.StripFields, k) {
			continue
		}
		clean[k] = scrubber.value(v)
	}

	subject := rule.Subject
	if subject == "" {
		subject = "Personal details"
	}
	p := c.Describe()
	res.Payload = clean
	res.Channel = c.String()
	res.Message = fmt.Sprintf("%s were removed for %s. Full details are available on %s.", subject, p.Label, p.Surface)
	return res
}

func collectIdentifiers(payload map[string]any, fields []string) []string {
	var ids []string
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" {
			return
		}
		ids = append(ids, s)
		for _, tok := range strings.Fields(s) {
			if len([]rune(tok)) >= 3 && !commonWords[strings.ToLower(tok)] {
				ids = append(ids, tok)
			}
		}
	}
	for _, f := range fields {
		switch v := payload[f].(type) {
		case string:
			add(v)
		case []string:
			for _, s := range v {
				add(s)
			}
		case []any:
			for _, item := range v {
				if s, ok := item.(string); ok {
					add(s)
				}
			}
		}
	}
	return ids
}

// commonWords are never treated as identifiers on their own.
var commonWords = map[string]bool{
	"the": true, "and": true, "family": true, "household": true, "guest": true, "guests": true,
}

// scrubber replaces identifiers in one pass so a replacement marker can never be
// matched by a later identifier.
type scrubber struct {
	pattern *regexp.Regexp
}

func newScrubber(ids []string) scrubber {
	sort.SliceStable(ids, func(i, j int) bool { return len(ids[i]) > len(ids[j]) })
	seen := make(map[string]bool, len(ids))
	quoted := make([]string, 0, len(ids))
	for _, id := range ids {
		key := strings.ToLower(id)
		if seen[key] {
			continue
		}
		seen[key] = true
		quoted = append(quoted, regexp.QuoteMeta(id))
	}
	if len(quoted) == 0 {
		return scrubber{}
	}
	return scrubber{pattern: regexp.MustCompile(`(?i)(?:` + strings.Join(quoted, "|") + `)`)}
}

func (s scrubber) value(v any) any {
	switch t := v.(type) {
	case string:
		if s.pattern == nil {
			return t
		}
		return s.pattern.ReplaceAllString(t, redactedMarker)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = s.value(item)
		}
		return out
	case []string:
		out := make([]string, len(t))
		for i, item := range t {
			out[i] = s.value(item).(string)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = s.value(item)
		}
		return out
	default:
		return v
	}
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
