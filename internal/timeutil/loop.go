package timeutil

import (
	"context"
	"time"
)

// StepFunc runs one fixed-timestep update. dt is the measured time since
// the previous step (the nominal interval for the first one).
type StepFunc func(step int, dt time.Duration) error

// RunFixed calls fn once per tick of a clock ticker with period interval
// until steps updates have run (steps <= 0 means no limit), ctx is done or
// fn returns an error. It returns the number of completed steps.
func RunFixed(ctx context.Context, clock Clock, interval time.Duration, steps int, fn StepFunc) (int, error) {
	ticker := clock.NewTicker(interval)
	defer ticker.Stop()

	last := clock.Now()
	done := 0
	for steps <= 0 || done < steps {
		select {
		case <-ctx.Done():
			return done, ctx.Err()
		case now := <-ticker.C():
			dt := now.Sub(last)
			if done == 0 || dt <= 0 {
				dt = interval
			}
			last = now
			if err := fn(done, dt); err != nil {
				return done, err
			}
			done++
		}
	}
	return done, nil
}
