package domain

import "strings"

// State is a packed bitset of the flags a Resource can carry
// simultaneously. It replaces the ad-hoc EnumSet<Status> the teacher's
// upstream design used with a single comparable integer so the whole
// state machine can be driven by one TryTransition primitive.
type State uint16

const (
	PreConnect State = 1 << iota
	Connecting
	Connected
	PreDownload
	Downloading
	Downloaded
	Error
	Processing
)

var stateNames = []struct {
	bit  State
	name string
}{
	{PreConnect, "PRECONNECT"},
	{Connecting, "CONNECTING"},
	{Connected, "CONNECTED"},
	{PreDownload, "PREDOWNLOAD"},
	{Downloading, "DOWNLOADING"},
	{Downloaded, "DOWNLOADED"},
	{Error, "ERROR"},
	{Processing, "PROCESSING"},
}

// Has reports whether all bits in want are set.
func (s State) Has(want State) bool { return s&want == want }

// HasAny reports whether any bit in want is set.
func (s State) HasAny(want State) bool { return s&want != 0 }

// IsTerminal reports whether no further work by this engine will
// change the resource's state.
func (s State) IsTerminal() bool { return s.HasAny(Downloaded | Error) }

// Initialized reports whether any flag at all has been set. A
// freshly-interned Resource starts uninitialized.
func (s State) Initialized() bool { return s != 0 }

func (s State) String() string {
	if s == 0 {
		return "NONE"
	}
	var parts []string
	for _, sn := range stateNames {
		if s.HasAny(sn.bit) {
			parts = append(parts, sn.name)
		}
	}
	return strings.Join(parts, "|")
}
