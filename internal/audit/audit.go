package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"chefassist/internal/capability"
	"chefassist/internal/channel"
	"chefassist/internal/guard"
	"chefassist/internal/logger"
	"chefassist/internal/result"
	"chefassist/internal/tools"
)

// UnknownChannel stands in for any channel value without a policy entry.
const UnknownChannel channel.Channel = "audit-unknown"

// Finding kinds.
const (
	KindNotFailClosed  = "not_fail_closed"
	KindSensitiveLeak  = "sensitive_leak"
	KindIdentifierLeak = "identifier_in_message"
	KindOverRestricted = "dashboard_restricted"
	KindUnexpectedTool = "unexpected_tool_on_unknown_channel"
)

// checkArgs are valid arguments for every catalogue tool against the fixture.
var checkArgs = map[capability.ToolID]string{
	capability.ListUpcomingEvents:      `{"limit":5}`,
	capability.GetClientOverview:       `{"client_id":"` + fixtureClient + `"}`,
	capability.GetMenuSummary:          `{"booking_id":"` + fixtureBooking + `"}`,
	capability.NavigateTo:              `{"page":"calendar"}`,
	capability.OpenClientProfile:       `{"client_id":"` + fixtureClient + `"}`,
	capability.DraftClientMessage:      `{"client_id":"` + fixtureClient + `","body":"Looking forward to Saturday."}`,
	capability.SendClientMessage:       `{"client_id":"` + fixtureClient + `","body":"Looking forward to Saturday."}`,
	capability.GetDietarySummary:       `{"client_id":"` + fixtureClient + `"}`,
	capability.CheckAllergenCompliance: `{"booking_id":"` + fixtureBooking + `"}`,
}

// Finding is one policy violation observed during a sweep.
type Finding struct {
	Channel string `json:"channel"`
	Tool    string `json:"tool"`
	Kind    string `json:"kind"`
	Detail  string `json:"detail"`
}

// Report is the outcome of one sweep.
type Report struct {
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Channels  []string      `json:"channels"`
	Checks    int           `json:"checks"`
	Findings  []Finding     `json:"findings,omitempty"`
}

// Passed reports whether the sweep found nothing.
func (r Report) Passed() bool { return len(r.Findings) == 0 }

// Err summarizes findings as an error, or nil when the sweep passed.
func (r Report) Err() error {
	if r.Passed() {
		return nil
	}
	lines := make([]string, 0, len(r.Findings))
	for _, f := range r.Findings {
		lines = append(lines, fmt.Sprintf("%s/%s: %s (%s)", f.Channel, f.Tool, f.Kind, f.Detail))
	}
	return fmt.Errorf("policy audit found %d violation(s): %s", len(r.Findings), strings.Join(lines, "; "))
}

// Auditor sweeps every registered tool over every known channel plus an
// unknown one, using the production policy and guard rules against fixture
// data.
type Auditor struct {
	registry   *capability.Registry
	guard      *guard.Guard
	dispatcher *tools.Dispatcher
	channels   []channel.Channel
	log        *logger.Logger
	clock      func() time.Time
}

type Option func(*Auditor)

func WithLogger(l *logger.Logger) Option {
	return func(a *Auditor) { a.log = l }
}

func WithClock(clock func() time.Time) Option {
	return func(a *Auditor) { a.clock = clock }
}

// New builds an auditor for a policy and rule set.
func New(policy capability.Policy, rules []guard.Rule, opts ...Option) (*Auditor, error) {
	reg, err := capability.NewRegistry(policy, tools.ChefTools(fixtureBackend{})...)
	if err != nil {
		return nil, err
	}
	g := guard.New(reg, rules...)
	disp, err := tools.NewDispatcher(reg, g)
	if err != nil {
		return nil, err
	}

	a := &Auditor{
		registry:   reg,
		guard:      g,
		dispatcher: disp,
		channels:   append(append([]channel.Channel(nil), channel.Known...), UnknownChannel),
		log:        logger.NewNop(),
		clock:      time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Run executes the sweep. Only cancellation makes it return an error; policy
// violations are reported as findings.
func (a *Auditor) Run(ctx context.Context) (Report, error) {
	start := a.clock()
	report := Report{StartedAt: start}
	ctx = tools.WithChef(ctx, fixtureChef)

	for _, c := range a.channels {
		report.Channels = append(report.Channels, c.String())
		if !c.IsKnown() {
			report.Findings = append(report.Findings, a.checkUnknownChannel(c)...)
		}
		for _, desc := range a.registry.All() {
			report.Checks++
			res, err := a.dispatcher.Dispatch(ctx, string(desc.ID), json.RawMessage(checkArgs[desc.ID]), c)
			if ctxErr := ctx.Err(); ctxErr != nil {
				return report, ctxErr
			}
			report.Findings = append(report.Findings, a.check(c, desc, res, err)...)
		}
	}

	sort.SliceStable(report.Findings, func(i, j int) bool {
		if report.Findings[i].Channel != report.Findings[j].Channel {
			return report.Findings[i].Channel < report.Findings[j].Channel
		}
		return report.Findings[i].Tool < report.Findings[j].Tool
	})
	report.Duration = a.clock().Sub(start)
	for _, f := range report.Findings {
		a.log.Warn("policy audit finding", "channel", f.Channel, "tool", f.Tool, "kind", f.Kind)
	}
	a.log.Info("policy audit finished", "checks", report.Checks, "findings", len(report.Findings))
	return report, nil
}

func (a *Auditor) check(c channel.Channel, desc capability.Descriptor, res result.Result, err error) []Finding {
	var findings []Finding
	add := func(kind, detail string) {
		findings = append(findings, Finding{Channel: c.String(), Tool: string(desc.ID), Kind: kind, Detail: detail})
	}

	permitted := a.registry.Permits(c, desc.Category)
	if !permitted {
		if !errors.Is(err, tools.ErrNotPermitted) || res.Status != result.StatusRestricted {
			add(KindNotFailClosed, fmt.Sprintf("%s tool returned status %q", desc.Category, res.Status))
		}
	}

	if res.Status != result.StatusSuccess {
		if token := deniedToken(res.Message); token != "" {
			add(KindIdentifierLeak, "message contains a deny-listed term")
		}
	}

	if !permitted || desc.Category != capability.Sensitive {
		return findings
	}
	if c == channel.Web && res.Status == result.StatusRestricted {
		add(KindOverRestricted, "the dashboard received a restricted result")
	}
	if trusted, _ := a.guard.Mode(desc.ID, c); trusted {
		return findings
	}
	if token := deniedToken(res.EngineContent()); token != "" {
		add(KindSensitiveLeak, "result contains a deny-listed term")
	}
	return findings
}

func (a *Auditor) checkUnknownChannel(c channel.Channel) []Finding {
	var findings []Finding
	for _, d := range a.registry.ToolsFor(c) {
		if d.Category != capability.Core {
			findings = append(findings, Finding{
				Channel: c.String(),
				Tool:    string(d.ID),
				Kind:    KindUnexpectedTool,
				Detail:  fmt.Sprintf("%s tool offered to a channel without a policy entry", d.Category),
			})
		}
	}
	return findings
}

// deniedToken returns the first deny-listed term found in s. Findings carry
// only the kind so the term itself never reaches a log.
func deniedToken(s string) string {
	lower := strings.ToLower(s)
	for _, term := range DenyList {
		if strings.Contains(lower, strings.ToLower(term)) {
			return term
		}
	}
	return ""
}
