package queue

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Decision is the outcome of a recurrence evaluation: the single next run
// time to reschedule to, and whether the respawn counter advances with it.
type Decision struct {
	NextRun      time.Time
	CountRespawn bool
}

// NextRun computes whether a successfully executed message recurs, and when.
//
// The interval branch is evaluated first: when an interval is set and the
// respawn cap allows another run, the candidate is now + interval and the
// respawn counter is advanced. A cron pattern, when present, then overwrites
// the candidate with the next matching instant strictly after now. Cron is
// the last writer and wins when both recurrence modes are set; exactly one
// reschedule results either way.
//
// The boolean result is false when the message does not recur and stays in
// its terminal state. A malformed cron pattern is a configuration error
// surfaced to the caller, not a normal execution failure.
func NextRun(msg *Message, now time.Time) (Decision, bool, error) {
	var (
		decision Decision
		recurs   bool
	)

	if msg.IsInterval() && (msg.MaxRespawns == UnboundedRespawns || msg.RespawnCount < msg.MaxRespawns) {
		decision.NextRun = now.Add(*msg.Interval)
		decision.CountRespawn = true
		recurs = true
	}

	if msg.IsCron() {
		schedule, err := cron.ParseStandard(msg.CronPattern)
		if err != nil {
			return Decision{}, false, fmt.Errorf("%w: %q: %v", ErrInvalidCronPattern, msg.CronPattern, err)
		}
		// cron.Schedule.Next is strictly after its argument, preserving
		// monotonic forward progress.
		decision.NextRun = schedule.Next(now)
		recurs = true
	}

	if !recurs {
		return Decision{}, false, nil
	}
	return decision, true, nil
}
