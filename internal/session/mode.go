package session

// Mode is the interface screen the sentinel is on.
type Mode int

const (
	WindowSelect Mode = iota // scanning for the target window
	RegionSelect             // regions detected, awaiting a choice
	Main                     // reference chosen, watcher may run
)

func (m Mode) String() string {
	switch m {
	case WindowSelect:
		return "window_select"
	case RegionSelect:
		return "region_select"
	case Main:
		return "main"
	default:
		return "unknown"
	}
}

// Event drives a mode transition.
type Event int

const (
	WindowFound Event = iota
	ReferenceChosen
	OperatorReset
	WindowLost
)

func (e Event) String() string {
	return [...]string{"window_found", "reference_chosen", "operator_reset", "window_lost"}[e]
}

type edge struct {
	from Mode
	on   Event
}

var transitions = map[edge]Mode{
	{WindowSelect, WindowFound}:     RegionSelect,
	{RegionSelect, ReferenceChosen}: Main,
	{Main, OperatorReset}:           WindowSelect,
	{RegionSelect, WindowLost}:      WindowSelect,
	{Main, WindowLost}:              WindowSelect,
	{WindowSelect, WindowLost}:      WindowSelect,
}

// Next returns the mode reached from m on e, and false when no such edge exists.
func Next(m Mode, e Event) (Mode, bool) {
	to, ok := transitions[edge{m, e}]
	return to, ok
}
