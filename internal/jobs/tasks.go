package jobs

import "context"

// TokenSweeper deletes long-expired session tokens.
type TokenSweeper interface {
	Sweep(ctx context.Context) (int64, error)
}

// StateSweeper deletes expired entries of an in-memory store.
type StateSweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// IdleSweeper ends idle transport sessions.
type IdleSweeper interface {
	SweepIdle() int
}

// NewTokenSweep builds the twelve-hourly session token job.
func NewTokenSweep(tokens TokenSweeper) *Job {
	return NewJob("token-sweep", TokenSweepInterval, map[string]Task{
		"session_tokens": tokens.Sweep,
	})
}

// NewAuxSweep builds the hourly job for short-lived state.
func NewAuxSweep(codes, links StateSweeper, tools IdleSweeper) *Job {
	return NewJob("aux-sweep", AuxSweepInterval, map[string]Task{
		"auth_codes":    widen(codes.Sweep),
		"link_sessions": widen(links.Sweep),
		"mcp_sessions": func(context.Context) (int64, error) {
			return int64(tools.SweepIdle()), nil
		},
	})
}

func widen(f func(context.Context) (int, error)) Task {
	return func(ctx context.Context) (int64, error) {
		n, err := f(ctx)
		return int64(n), err
	}
}
