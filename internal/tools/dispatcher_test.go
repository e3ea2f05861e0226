package tools

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chefassist/internal/capability"
	"chefassist/internal/channel"
	"chefassist/internal/guard"
	"chefassist/internal/result"
)

type recordingMetrics struct {
	statuses []string
}

func (m *recordingMetrics) ToolDispatched(tool, channel, status string, elapsed time.Duration) {
	m.statuses = append(m.statuses, tool+":"+channel+":"+status)
}

func newTestDispatcher(t *testing.T, b Backend, opts ...Option) *Dispatcher {
	t.Helper()
	reg, err := capability.NewRegistry(capability.DefaultPolicy(), ChefTools(b)...)
	require.NoError(t, err)
	d, err := NewDispatcher(reg, guard.New(reg, guard.DefaultRules()...), opts...)
	require.NoError(t, err)
	return d
}

func chefCtx() context.Context {
	return WithChef(context.Background(), "chef-1")
}

func assertNoLeak(t *testing.T, res result.Result) {
	t.Helper()
	text := strings.ToLower(res.EngineContent())
	for _, token := range denyList {
		assert.NotContains(t, text, strings.ToLower(token))
	}
}

func TestDispatch_DietarySummaryOnBridgeIsRestricted(t *testing.T) {
	backend := &fakeBackend{}
	d := newTestDispatcher(t, backend)

	res, err := d.Dispatch(chefCtx(), "get_dietary_summary", json.RawMessage(`{"client_id":"c-1"}`), channel.BridgeA)
	require.NoError(t, err)

	assert.Equal(t, result.StatusRestricted, res.Status)
	assert.Equal(t, "bridge-a", res.Channel)
	assert.NotEmpty(t, res.Message)
	assert.Contains(t, res.Message, "dashboard")
	assert.Empty(t, backend.Calls(), "sensitive data must not be fetched for an untrusted channel")
	assertNoLeak(t, res)
}

func TestDispatch_DietarySummaryOnWebReturnsData(t *testing.T) {
	backend := &fakeBackend{}
	d := newTestDispatcher(t, backend)

	res, err := d.Dispatch(chefCtx(), "get_dietary_summary", json.RawMessage(`{"client_id":"c-1"}`), channel.Web)
	require.NoError(t, err)

	assert.Equal(t, result.StatusSuccess, res.Status)
	assert.Equal(t, "Okonkwo household", res.Payload["client_name"])
	members, ok := res.Payload["members"].([]any)
	require.True(t, ok)
	assert.Len(t, members, 3)
}

func TestDispatch_SensitiveToolsNeverLeakOffWeb(t *testing.T) {
	args := map[capability.ToolID]json.RawMessage{
		capability.GetDietarySummary:       json.RawMessage(`{"client_id":"c-1"}`),
		capability.CheckAllergenCompliance: json.RawMessage(`{"booking_id":"b-42"}`),
	}
	channels := []channel.Channel{channel.BridgeA, channel.BridgeB, channel.Parse("sms")}

	for tool, raw := range args {
		for _, ch := range channels {
			d := newTestDispatcher(t, &fakeBackend{})
			res, _ := d.Dispatch(chefCtx(), string(tool), raw, ch)
			assertNoLeak(t, res)
		}
	}
}

func TestDispatch_AllergenCheckIsSanitizedOnBridge(t *testing.T) {
	d := newTestDispatcher(t, &fakeBackend{})

	res, err := d.Dispatch(chefCtx(), "check_allergen_compliance", json.RawMessage(`{"booking_id":"b-42"}`), channel.BridgeB)
	require.NoError(t, err)

	assert.Equal(t, result.StatusSuccess, res.Status)
	assert.Equal(t, false, res.Payload["compliant"])
	assert.Equal(t, "1 of 4 menu items conflict with the household's restrictions.", res.Payload["summary"])
	assert.NotContains(t, res.Payload, "member_names")
	assert.Contains(t, res.Message, "dashboard")
	assertNoLeak(t, res)
}

func TestDispatch_WithoutSensitiveBridgesLoseTheAllergenVerdict(t *testing.T) {
	args := json.RawMessage(`{"booking_id":"b-42"}`)

	backend := &fakeBackend{}
	strict := capability.Policy{
		channel.Web:     capability.NewCategorySet(capability.Core, capability.Navigation, capability.Messaging, capability.Sensitive),
		channel.BridgeA: capability.NewCategorySet(capability.Core, capability.Messaging),
	}
	reg, err := capability.NewRegistry(strict, ChefTools(backend)...)
	require.NoError(t, err)
	d, err := NewDispatcher(reg, guard.New(reg, guard.DefaultRules()...))
	require.NoError(t, err)

	res, err := d.Dispatch(chefCtx(), "check_allergen_compliance", args, channel.BridgeA)
	require.ErrorIs(t, err, ErrNotPermitted)
	assert.Equal(t, result.StatusRestricted, res.Status)
	assert.NotContains(t, res.Payload, "compliant")
	assert.Empty(t, backend.Calls())

	res, err = newTestDispatcher(t, &fakeBackend{}).Dispatch(chefCtx(), "check_allergen_compliance", args, channel.BridgeA)
	require.NoError(t, err)
	assert.Equal(t, result.StatusSuccess, res.Status)
	assert.Equal(t, false, res.Payload["compliant"])
	assertNoLeak(t, res)
}

func TestDispatch_UnknownToolNeverExecutes(t *testing.T) {
	backend := &fakeBackend{}
	metrics := &recordingMetrics{}
	d := newTestDispatcher(t, backend, WithMetrics(metrics))

	res, err := d.Dispatch(chefCtx(), "delete_all_clients", json.RawMessage(`{}`), channel.Web)

	require.ErrorIs(t, err, capability.ErrUnknownTool)
	assert.Equal(t, result.StatusError, res.Status)
	assert.Empty(t, backend.Calls())
	assert.Equal(t, []string{"delete_all_clients:web:error"}, metrics.statuses)
}

func TestDispatch_NotPermitted(t *testing.T) {
	backend := &fakeBackend{}
	d := newTestDispatcher(t, backend)

	for _, ch := range []channel.Channel{channel.BridgeA, channel.BridgeB, channel.Parse("pager")} {
		res, err := d.Dispatch(chefCtx(), "open_client_profile", json.RawMessage(`{"client_id":"c-1"}`), ch)

		require.ErrorIs(t, err, ErrNotPermitted)
		assert.Equal(t, result.StatusRestricted, res.Status)
		assert.Contains(t, res.Message, "dashboard")
		assert.NotContains(t, res.Message, "navigation")
	}
	assert.Empty(t, backend.Calls())
}

func TestDispatch_InvalidArgumentsBecomeErrorResult(t *testing.T) {
	backend := &fakeBackend{}
	d := newTestDispatcher(t, backend)

	tests := []struct {
		name string
		args json.RawMessage
	}{
		{"missing required field", json.RawMessage(`{}`)},
		{"wrong type", json.RawMessage(`{"client_id": 7}`)},
		{"unexpected field", json.RawMessage(`{"client_id":"c-1","chef_id":"someone-else"}`)},
		{"not json", json.RawMessage(`client c-1 please`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := d.Dispatch(chefCtx(), "get_client_overview", tt.args, channel.Web)
			require.NoError(t, err)
			assert.Equal(t, result.StatusError, res.Status)
			assert.NotEmpty(t, res.Message)
		})
	}
	assert.Empty(t, backend.Calls())
}

func TestDispatch_ToolFailuresAreAbsorbed(t *testing.T) {
	t.Run("backend error", func(t *testing.T) {
		d := newTestDispatcher(t, &fakeBackend{fail: errors.New("connection reset")})
		res, err := d.Dispatch(chefCtx(), "list_upcoming_events", nil, channel.Web)
		require.NoError(t, err)
		assert.Equal(t, result.StatusError, res.Status)
		assert.NotContains(t, res.Message, "connection reset")
	})

	t.Run("not found", func(t *testing.T) {
		d := newTestDispatcher(t, &fakeBackend{})
		res, err := d.Dispatch(chefCtx(), "get_client_overview", json.RawMessage(`{"client_id":"c-9"}`), channel.Web)
		require.NoError(t, err)
		assert.Equal(t, result.StatusError, res.Status)
		assert.Equal(t, "No matching record was found.", res.Message)
	})

	t.Run("panic", func(t *testing.T) {
		d := newTestDispatcher(t, &fakeBackend{panic: true})
		res, err := d.Dispatch(chefCtx(), "get_menu_summary", json.RawMessage(`{"booking_id":"b-42"}`), channel.BridgeB)
		require.NoError(t, err)
		assert.Equal(t, result.StatusError, res.Status)
	})

	t.Run("no chef scope", func(t *testing.T) {
		d := newTestDispatcher(t, &fakeBackend{})
		res, err := d.Dispatch(context.Background(), "list_upcoming_events", nil, channel.Web)
		require.NoError(t, err)
		assert.Equal(t, result.StatusError, res.Status)
	})
}

func TestDispatch_CancellationPropagates(t *testing.T) {
	d := newTestDispatcher(t, &fakeBackend{block: true})
	ctx, cancel := context.WithCancel(chefCtx())

	done := make(chan error, 1)
	go func() {
		_, err := d.Dispatch(ctx, "list_upcoming_events", nil, channel.Web)
		done <- err
	}()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch did not return after cancellation")
	}
}

func TestDispatch_NavigationBecomesAction(t *testing.T) {
	d := newTestDispatcher(t, &fakeBackend{})

	res, err := d.Dispatch(chefCtx(), "navigate_to", json.RawMessage(`{"page":"bookings"}`), channel.Web)
	require.NoError(t, err)

	assert.True(t, res.RenderAsAction)
	assert.True(t, res.AutoExecute)
	assert.Equal(t, "navigate", res.ActionType)
	assert.Equal(t, "/bookings", res.PrimaryValue())
}

func TestDispatch_DraftIsNotAutoExecuted(t *testing.T) {
	d := newTestDispatcher(t, &fakeBackend{})

	res, err := d.Dispatch(chefCtx(), "draft_client_message",
		json.RawMessage(`{"client_id":"c-1","body":"  Looking forward to Saturday!  "}`), channel.BridgeA)
	require.NoError(t, err)

	assert.True(t, res.RenderAsAction)
	assert.False(t, res.AutoExecute)
	assert.Equal(t, "draft_message", res.ActionType)
	assert.Equal(t, "Looking forward to Saturday!", res.Payload["body"])
}

func TestNewDispatcher_RejectsBrokenSchema(t *testing.T) {
	descs := ChefTools(&fakeBackend{})
	descs[0].InputSchema = map[string]any{"type": "banana"}
	reg, err := capability.NewRegistry(capability.DefaultPolicy(), descs...)
	require.NoError(t, err)

	_, err = NewDispatcher(reg, guard.New(reg, guard.DefaultRules()...))
	assert.ErrorIs(t, err, capability.ErrInvalidRegistry)
}
