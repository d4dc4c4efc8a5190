package memory

import "time"

// Turn is one accepted voice interaction as written to the turn log. It is
// the atomic unit of assistant history.
type Turn struct {
	// ID is assigned by the store on write. Zero before the turn is written.
	ID int64

	// Transcript is the text that passed the wake-word gate.
	Transcript string

	// Kind is the directive kind the classifier chose (e.g. "AnswerQuestion").
	Kind string

	// Ack is the acknowledgement message spoken before dispatch.
	Ack string

	// Result is the text produced by the action handler, or the apology for
	// NoAction turns.
	Result string

	// Failed reports whether dispatch or playback failed for this turn.
	Failed bool

	// At is when the transcript was produced.
	At time.Time

	// Duration is the wall time from transcript to the end of playback.
	Duration time.Duration
}

// Recalled is a past turn returned by a similarity search together with its
// cosine distance to the query (lower is more similar).
type Recalled struct {
	Turn     Turn
	Distance float64
}
