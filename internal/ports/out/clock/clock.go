package clock

import "time"

// Clock is the evaluation time for derived trip state such as "upcoming".
// Tests substitute a manual clock to pin it.
type Clock interface {
	Now() time.Time
}
