package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler は基準タイムゾーンで SweepJob を定期実行します。
type Scheduler struct {
	cron     *cron.Cron
	schedule cron.Schedule
	loc      *time.Location
}

// New は 5 フィールドの cron 式 spec で job を登録した Scheduler を生成します。
// 前回の実行が終わっていない場合、その回はスキップされます。
func New(spec string, loc *time.Location, job cron.Job, logger *log.Logger) (*Scheduler, error) {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = log.Default()
	}

	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("scheduler: parse schedule %q: %w", spec, err)
	}

	cl := cron.VerbosePrintfLogger(logger)
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	c.Schedule(schedule, job)

	return &Scheduler{cron: c, schedule: schedule, loc: loc}, nil
}

// Start はバックグラウンドでスケジューラを開始します。
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop は新規の実行を止め、実行中のジョブが終わるか ctx が終了するまで待ちます。
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Next は after より後の次回実行時刻を基準タイムゾーンで返します。
func (s *Scheduler) Next(after time.Time) time.Time {
	return s.schedule.Next(after.In(s.loc))
}
