package channel

import "strings"

// Channel identifies where a request came from. It is fixed for the lifetime of a
// request and always taken from the caller's credential, never from message content.
type Channel string

const (
	Web     Channel = "web"
	BridgeA Channel = "bridge-a"
	BridgeB Channel = "bridge-b"
)

// Known lists every channel with an explicit capability entry.
var Known = []Channel{Web, BridgeA, BridgeB}

// Profile describes what a channel can render.
type Profile struct {
	Label       string
	Interactive bool
	// Surface is where the chef can find data the channel is not trusted with.
	Surface string
}

var profiles = map[Channel]Profile{
	Web:     {Label: "web dashboard", Interactive: true, Surface: "the dashboard"},
	BridgeA: {Label: "chat bridge A", Interactive: false, Surface: "the dashboard"},
	BridgeB: {Label: "chat bridge B", Interactive: false, Surface: "the dashboard"},
}

// Parse normalizes a raw channel value. Unrecognized values are kept as-is so the
// capability policy can treat them fail-closed.
func Parse(raw string) Channel {
	return Channel(strings.ToLower(strings.TrimSpace(raw)))
}

// IsKnown reports whether c has an explicit policy entry.
func (c Channel) IsKnown() bool {
	_, ok := profiles[c]
	return ok
}

// Describe returns the channel profile; unknown channels are treated as a
// non-interactive bridge.
func (c Channel) Describe() Profile {
	if p, ok := profiles[c]; ok {
		return p
	}
	return Profile{Label: "external channel", Interactive: false, Surface: "the dashboard"}
}

func (c Channel) String() string { return string(c) }
