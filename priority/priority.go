// Package priority defines the closed priority enum shared by the
// scheduler, its task signals, and the host-callback layer.
package priority

// Priority is one of the three levels a task or signal can carry.
// Lower values rank higher: UserBlocking runs before UserVisible runs
// before Background whenever all three are runnable.
type Priority int

const (
	// Unset is the zero value of Priority and means "no priority
	// supplied": options structs can leave Priority unset and rely on
	// the scheduler to resolve it dynamically instead of accidentally
	// pinning to the first real priority level.
	Unset Priority = iota

	UserBlocking
	UserVisible
	Background
)

// Valid reports whether p is one of the three defined priorities.
func Valid(p Priority) bool {
	switch p {
	case UserBlocking, UserVisible, Background:
		return true
	default:
		return false
	}
}

// Default is the priority assumed when none is supplied.
const Default = UserVisible

func (p Priority) String() string {
	switch p {
	case UserBlocking:
		return "user-blocking"
	case UserVisible:
		return "user-visible"
	case Background:
		return "background"
	case Unset:
		return "unset"
	default:
		return "invalid"
	}
}

// Less reports whether p ranks strictly higher than other (runs first).
func (p Priority) Less(other Priority) bool {
	return p < other
}
