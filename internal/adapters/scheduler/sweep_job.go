package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/ogurasousui/attendance-grpc/internal/core/attendance"
	"github.com/ogurasousui/attendance-grpc/internal/core/identity"
	"github.com/robfig/cron/v3"
)

const defaultRunTimeout = 10 * time.Minute

// schedulerIdentity はプロセス内ジョブが名乗る呼び出し元です。
var schedulerIdentity = identity.Identity{Subject: "scheduler", Role: identity.RoleAdmin}

// SweepJob は前日分のオープンセッションを閉じる cron ジョブです。
type SweepJob struct {
	sweeper attendance.SweepUseCase
	token   string
	timeout time.Duration
	now     func() time.Time
	logger  *log.Logger
}

var _ cron.Job = (*SweepJob)(nil)

// NewSweepJob は SweepJob を生成します。logger が nil の場合は log.Default を使用します。
func NewSweepJob(sweeper attendance.SweepUseCase, token string, logger *log.Logger) *SweepJob {
	if logger == nil {
		logger = log.Default()
	}
	return &SweepJob{
		sweeper: sweeper,
		token:   token,
		timeout: defaultRunTimeout,
		now:     time.Now,
		logger:  logger,
	}
}

// Run は cron から呼ばれます。
func (j *SweepJob) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	if _, err := j.RunOnce(ctx); err != nil {
		j.logger.Printf("sweep: %v", err)
	}
}

// RunOnce は実行時刻の前日を対象に Sweep を 1 回実行し、結果をログに残します。
func (j *SweepJob) RunOnce(ctx context.Context) (*attendance.SweepReport, error) {
	day := attendance.PreviousWorkDay(j.now(), j.sweeper.Location())

	report, err := j.sweeper.Sweep(ctx, attendance.SweepInput{
		Caller: schedulerIdentity,
		Token:  j.token,
		Day:    day,
	})
	if err != nil {
		return nil, fmt.Errorf("sweep %s: %w", day, err)
	}

	j.logger.Printf("sweep %s: scanned=%d closed=%d failed=%d", report.Day, report.Scanned, report.Closed, len(report.Errors))
	for _, f := range report.Errors {
		j.logger.Printf("sweep %s: employee=%s record=%s: %s", report.Day, f.EmployeeID, f.RecordID, f.Reason)
	}
	return report, nil
}
