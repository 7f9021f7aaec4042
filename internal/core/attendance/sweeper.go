package attendance

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/ogurasousui/attendance-grpc/internal/core/identity"
	"golang.org/x/sync/errgroup"
)

const (
	defaultSweepConcurrency = 4
	defaultSweepCutoff      = 24*time.Hour - time.Second
)

// SweepConfig は自動ログアウトの設定です。
type SweepConfig struct {
	// Token はスケジューラとの共有トークンです。空の場合 Sweep は常に拒否されます。
	Token string
	// Cutoff は強制ログアウトする壁時計の時刻で、勤務日 0 時からのオフセットで表します。
	Cutoff      time.Duration
	Concurrency int
	Location    *time.Location
	Logger      *log.Logger
}

// SweepInput は Sweep の入力です。
type SweepInput struct {
	Caller identity.Identity
	Token  string
	Day    any
}

// SweepFailure は個別レコードの失敗です。
type SweepFailure struct {
	EmployeeID string
	RecordID   string
	Reason     string
	Err        error
}

// SweepReport は 1 回の Sweep の結果です。
type SweepReport struct {
	Day               WorkDay
	Cutoff            int64
	Scanned           int
	Closed            int
	ClosedEmployeeIDs []string
	Errors            []SweepFailure
}

// PartialFailure は一部のレコードが閉じられなかったかを返します。
func (r *SweepReport) PartialFailure() bool {
	return r != nil && len(r.Errors) > 0
}

// SweepUseCase は自動ログアウトの公開インターフェースです。
type SweepUseCase interface {
	Sweep(ctx context.Context, in SweepInput) (*SweepReport, error)
	Location() *time.Location
}

// Sweeper はログアウトされずに残ったセッションを強制終了します。
type Sweeper struct {
	repo        Repository
	tx          TransactionManager
	clock       Clock
	token       string
	cutoff      time.Duration
	concurrency int
	loc         *time.Location
	logger      *log.Logger
}

// NewSweeper は Sweeper を生成します。
func NewSweeper(repo Repository, clock Clock, tx TransactionManager, cfg SweepConfig) *Sweeper {
	if clock == nil {
		clock = realClock{}
	}
	if tx == nil {
		tx = noopTransactionManager{}
	}
	cutoff := cfg.Cutoff
	if cutoff <= 0 || cutoff >= 24*time.Hour {
		cutoff = defaultSweepCutoff
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = defaultSweepConcurrency
	}
	return &Sweeper{
		repo:        repo,
		tx:          tx,
		clock:       clock,
		token:       cfg.Token,
		cutoff:      cutoff,
		concurrency: concurrency,
		loc:         locationOrUTC(cfg.Location),
		logger:      cfg.Logger,
	}
}

// Location は基準タイムゾーンを返します。
func (s *Sweeper) Location() *time.Location {
	return s.loc
}

// Sweep は指定日のオープンセッションをすべて forced_closed にします。
// 個々のレコードの失敗はレポートに積み、処理は継続します。
func (s *Sweeper) Sweep(ctx context.Context, in SweepInput) (*SweepReport, error) {
	if !s.authorized(in) {
		return nil, ErrForbidden
	}

	day, err := CanonicalWorkDay(in.Day, s.loc)
	if err != nil {
		return nil, err
	}

	cutoffAt, err := day.Cutoff(s.cutoff, s.loc)
	if err != nil {
		return nil, err
	}
	cutoff := cutoffAt.UnixMilli()

	var open []*Record
	if err := s.tx.WithinReadOnly(ctx, func(txCtx context.Context) error {
		records, err := s.repo.ListOpenSessions(txCtx, day)
		if err != nil {
			return err
		}
		open = records
		return nil
	}); err != nil {
		return nil, fmt.Errorf("list open sessions for %s: %w", day, err)
	}

	report := &SweepReport{Day: day, Cutoff: cutoff, Scanned: len(open)}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for _, rec := range open {
		g.Go(func() error {
			closed, err := s.closeSession(gctx, rec.ID, cutoff)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				report.Errors = append(report.Errors, SweepFailure{
					EmployeeID: rec.EmployeeID,
					RecordID:   rec.ID,
					Reason:     err.Error(),
					Err:        err,
				})
				s.logf("sweep %s: employee %s: %v", day, rec.EmployeeID, err)
			case closed:
				report.Closed++
				report.ClosedEmployeeIDs = append(report.ClosedEmployeeIDs, rec.EmployeeID)
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Strings(report.ClosedEmployeeIDs)
	sort.Slice(report.Errors, func(i, j int) bool {
		return report.Errors[i].EmployeeID < report.Errors[j].EmployeeID
	})

	return report, nil
}

// closeSession は 1 レコードを独立したトランザクションで閉じます。
// 既に閉じられていた場合は false を返します。
func (s *Sweeper) closeSession(ctx context.Context, id string, cutoff int64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	var closed bool
	err := retryOnConflict(func() error {
		closed = false
		return s.tx.WithinReadWrite(ctx, func(txCtx context.Context) error {
			rec, err := s.repo.FindByID(txCtx, id)
			if err != nil {
				return err
			}
			if !rec.IsOpen() {
				return nil
			}

			if cutoff <= rec.LoginTime {
				return ErrInvalidLogoutTime
			}

			if rec.Status == StatusOnBreak && rec.BreakStartTime != nil {
				duration := cutoff - *rec.BreakStartTime
				if duration <= 0 {
					return ErrInvalidDuration
				}
				breakEnd := cutoff
				rec.BreakEndTime = &breakEnd
				rec.BreakDuration += duration
			}

			logout := cutoff
			rec.LogoutTime = &logout
			rec.WorkingHoursCompleted = false
			rec.Status = StatusForcedClosed
			rec.UpdatedAt = s.clock.Now()

			if _, err := s.repo.Save(txCtx, rec); err != nil {
				return err
			}
			closed = true
			return nil
		})
	})
	if err != nil && errors.Is(err, ErrRecordNotFound) {
		return false, fmt.Errorf("record %s vanished: %w", id, err)
	}
	return closed, err
}

func (s *Sweeper) authorized(in SweepInput) bool {
	if !in.Caller.IsAdmin() || s.token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(in.Token), []byte(s.token)) == 1
}

func (s *Sweeper) logf(format string, args ...any) {
	if s.logger == nil {
		return
	}
	s.logger.Printf(format, args...)
}
