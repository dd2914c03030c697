package services

import (
	"context"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// StartRefreshScheduler runs the reconciliation sweep on an interval. It
// repairs derived match state after manual fixes and retries submission
// promotions that failed inline.
func (s *MatchService) StartRefreshScheduler(interval time.Duration) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			if _, err := s.RefreshAllMatches(context.Background()); err != nil {
				log.Printf("[Scheduler] Match refresh failed: %v", err)
			}
		}),
	)
	if err != nil {
		return nil, err
	}

	sched.Start()
	return sched, nil
}
