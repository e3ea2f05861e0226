package prompt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"chefassist/internal/capability"
	"chefassist/internal/channel"
)

func baseInput() Input {
	return Input{
		Chef:    Chef{ID: "chef-1", DisplayName: "Amara Eze", BusinessName: "Table for Eight"},
		Context: Context{Type: "booking", ID: "b-42", Summary: "Anniversary dinner for 4 on 2 November 2026 (confirmed)."},
		Channel: channel.Web,
		Allowed: capability.DefaultPolicy()[channel.Web],
		Tools: []Tool{
			{Name: "navigate_to", Category: capability.Navigation, Description: "Open a page."},
			{Name: "get_menu_summary", Category: capability.Core, Description: "List dishes."},
		},
		SensitiveTrusted: true,
		Today:            time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC),
	}
}

func TestBuild_Deterministic(t *testing.T) {
	in := baseInput()
	first := Build(in)

	shuffled := baseInput()
	shuffled.Tools[0], shuffled.Tools[1] = shuffled.Tools[1], shuffled.Tools[0]

	assert.Equal(t, first, Build(in))
	assert.Equal(t, first, Build(shuffled))
}

func TestBuild_EmbedsChefAndContext(t *testing.T) {
	out := Build(baseInput())

	assert.Contains(t, out, "Amara Eze")
	assert.Contains(t, out, "Table for Eight")
	assert.Contains(t, out, "Anniversary dinner for 4 on 2 November 2026 (confirmed).")
	assert.Contains(t, out, "Thursday, 15 October 2026")
	assert.Contains(t, out, "- get_menu_summary (core): List dishes.")
}

func TestBuild_WebHasNoRestrictionNotices(t *testing.T) {
	out := Build(baseInput())

	assert.NotContains(t, out, "Navigation and on-screen actions are unavailable")
	assert.NotContains(t, out, "not trusted with sensitive information")
	assert.NotContains(t, out, "do not use markdown")
}

func TestBuild_BridgeNotices(t *testing.T) {
	in := baseInput()
	in.Channel = channel.BridgeA
	in.Allowed = capability.DefaultPolicy()[channel.BridgeA]
	in.Tools = in.Tools[1:]
	in.SensitiveTrusted = false

	out := Build(in)

	assert.Contains(t, out, "chat bridge A")
	assert.Contains(t, out, "Navigation and on-screen actions are unavailable here.")
	assert.Contains(t, out, "not trusted with sensitive information")
	assert.Contains(t, out, "the dashboard")
	assert.NotContains(t, out, "Drafting or sending client messages is unavailable")
	assert.NotContains(t, out, "navigate_to")
}

func TestBuild_UnknownChannel(t *testing.T) {
	in := baseInput()
	in.Channel = channel.Parse("pager")
	in.Allowed = capability.NewCategorySet(capability.Core)
	in.Tools = nil
	in.SensitiveTrusted = false

	out := Build(in)

	assert.Contains(t, out, "external channel")
	assert.Contains(t, out, "Drafting or sending client messages is unavailable here.")
	assert.Contains(t, out, "No tools are available on this channel.")
}
