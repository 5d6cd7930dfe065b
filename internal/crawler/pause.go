package crawler

import (
	"context"
	"crypto/rand"
	"math/big"
	"time"
)

// pauseController abstracts how the crawler waits between page loads.
type pauseController interface {
	Pause(ctx context.Context, delay time.Duration)
}

type timerPauseController struct{}

func (p *timerPauseController) Pause(ctx context.Context, delay time.Duration) {
	if delay <= 0 {
		return
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// randomDelay returns a duration uniformly drawn from [minDelay, maxDelay].
func randomDelay(minDelay, maxDelay time.Duration) time.Duration {
	spread := maxDelay - minDelay
	if spread <= 0 {
		return minDelay
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(spread)+1))
	if err != nil {
		return minDelay + spread/2
	}
	return minDelay + time.Duration(n.Int64())
}
