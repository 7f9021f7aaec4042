package attendance

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ogurasousui/attendance-grpc/internal/core/identity"
)

const testSweepToken = "sweep-secret"

var schedulerCaller = identity.Identity{Subject: "scheduler", Role: identity.RoleAdmin}

func newTestSweeper(repo *fakeRepo) *Sweeper {
	return NewSweeper(repo, &stubClock{now: time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)}, nil, SweepConfig{
		Token:       testSweepToken,
		Concurrency: 2,
		Location:    time.UTC,
		Logger:      log.New(io.Discard, "", 0),
	})
}

func openRecord(employeeID string, status Status) *Record {
	return &Record{
		ID:         uuid.NewString(),
		EmployeeID: employeeID,
		WorkDay:    day1,
		DayOfWeek:  "Wednesday",
		LoginTime:  login1,
		Status:     status,
		Version:    1,
	}
}

func TestSweeper_ClosesOpenSessions(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	active := openRecord("7", StatusActive)
	repo.put(active)

	closedAt := logout1
	done := openRecord("8", StatusPresent)
	done.LogoutTime = &closedAt
	repo.put(done)

	report, err := newTestSweeper(repo).Sweep(context.Background(), SweepInput{Caller: schedulerCaller, Token: testSweepToken, Day: day1})
	if err != nil {
		t.Fatalf("Sweep returned error: %v", err)
	}

	wantCutoff := int64(1714607999000)
	if report.Cutoff != wantCutoff {
		t.Fatalf("expected cutoff %d, got %d", wantCutoff, report.Cutoff)
	}
	if report.Scanned != 1 || report.Closed != 1 || report.PartialFailure() {
		t.Fatalf("unexpected report %+v", report)
	}
	if len(report.ClosedEmployeeIDs) != 1 || report.ClosedEmployeeIDs[0] != "7" {
		t.Fatalf("unexpected closed ids %v", report.ClosedEmployeeIDs)
	}

	got := repo.get(active.ID)
	if got.Status != StatusForcedClosed || got.WorkingHoursCompleted {
		t.Fatalf("expected forced_closed and incomplete, got %+v", got)
	}
	if got.LogoutTime == nil || *got.LogoutTime != wantCutoff {
		t.Fatalf("expected logout at cutoff")
	}

	untouched := repo.get(done.ID)
	if untouched.Status != StatusPresent || untouched.Version != 1 {
		t.Fatalf("closed record must not change, got %+v", untouched)
	}
}

func TestSweeper_Idempotent(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	repo.put(openRecord("7", StatusActive))
	sweeper := newTestSweeper(repo)
	in := SweepInput{Caller: schedulerCaller, Token: testSweepToken, Day: day1}

	if _, err := sweeper.Sweep(context.Background(), in); err != nil {
		t.Fatalf("first Sweep returned error: %v", err)
	}
	report, err := sweeper.Sweep(context.Background(), in)
	if err != nil {
		t.Fatalf("second Sweep returned error: %v", err)
	}
	if report.Scanned != 0 || report.Closed != 0 {
		t.Fatalf("expected second run to close nothing, got %+v", report)
	}
}

func TestSweeper_ClosesOpenBreakAtCutoff(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	rec := openRecord("7", StatusOnBreak)
	start := breakStart
	rec.BreakStartTime = &start
	rec.BreakDuration = 60_000
	repo.put(rec)

	report, err := newTestSweeper(repo).Sweep(context.Background(), SweepInput{Caller: schedulerCaller, Token: testSweepToken, Day: day1})
	if err != nil {
		t.Fatalf("Sweep returned error: %v", err)
	}

	got := repo.get(rec.ID)
	if got.BreakEndTime == nil || *got.BreakEndTime != report.Cutoff {
		t.Fatalf("expected break closed at cutoff")
	}
	if want := 60_000 + report.Cutoff - breakStart; got.BreakDuration != want {
		t.Fatalf("expected break duration %d, got %d", want, got.BreakDuration)
	}
	if got.Status != StatusForcedClosed {
		t.Fatalf("expected forced_closed, got %s", got.Status)
	}
}

func TestSweeper_PartialFailure(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	ok := openRecord("1", StatusActive)
	broken := openRecord("2", StatusActive)
	repo.put(ok)
	repo.put(broken)

	storeErr := errors.New("disk full")
	repo.saveErr[broken.ID] = storeErr

	report, err := newTestSweeper(repo).Sweep(context.Background(), SweepInput{Caller: schedulerCaller, Token: testSweepToken, Day: day1})
	if err != nil {
		t.Fatalf("Sweep returned error: %v", err)
	}
	if !report.PartialFailure() || len(report.Errors) != 1 {
		t.Fatalf("expected one failure, got %+v", report.Errors)
	}
	failure := report.Errors[0]
	if failure.EmployeeID != "2" || failure.RecordID != broken.ID || !errors.Is(failure.Err, storeErr) {
		t.Fatalf("unexpected failure %+v", failure)
	}
	if report.Closed != 1 || repo.get(ok.ID).Status != StatusForcedClosed {
		t.Fatalf("healthy record should still be closed")
	}
	if repo.get(broken.ID).Status != StatusActive {
		t.Fatalf("failed record must stay open")
	}
}

func TestSweeper_RetriesConcurrentModification(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	rec := openRecord("7", StatusActive)
	repo.put(rec)
	repo.saveErr[rec.ID] = ErrConcurrentModification

	report, err := newTestSweeper(repo).Sweep(context.Background(), SweepInput{Caller: schedulerCaller, Token: testSweepToken, Day: day1})
	if err != nil {
		t.Fatalf("Sweep returned error: %v", err)
	}
	if report.Closed != 1 || report.PartialFailure() {
		t.Fatalf("expected retry to close the record, got %+v", report)
	}
}

func TestSweeper_Authorization(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	sweeper := newTestSweeper(repo)

	cases := []struct {
		name string
		in   SweepInput
	}{
		{"employee caller", SweepInput{Caller: employee7, Token: testSweepToken, Day: day1}},
		{"wrong token", SweepInput{Caller: schedulerCaller, Token: "nope", Day: day1}},
		{"missing token", SweepInput{Caller: schedulerCaller, Day: day1}},
	}

	for _, tc := range cases {
		if _, err := sweeper.Sweep(context.Background(), tc.in); !errors.Is(err, ErrForbidden) {
			t.Errorf("%s: expected ErrForbidden, got %v", tc.name, err)
		}
	}

	unconfigured := NewSweeper(repo, nil, nil, SweepConfig{})
	if _, err := unconfigured.Sweep(context.Background(), SweepInput{Caller: schedulerCaller, Day: day1}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected sweeper without token to reject, got %v", err)
	}
}

func TestSweeper_ListErrorIsReturned(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	repo.listOpenErr = ErrStoreUnavailable

	_, err := newTestSweeper(repo).Sweep(context.Background(), SweepInput{Caller: schedulerCaller, Token: testSweepToken, Day: day1})
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestSweeper_InvalidDay(t *testing.T) {
	t.Parallel()

	_, err := newTestSweeper(newFakeRepo()).Sweep(context.Background(), SweepInput{Caller: schedulerCaller, Token: testSweepToken, Day: "someday"})
	if !errors.Is(err, ErrInvalidWorkDay) {
		t.Fatalf("expected ErrInvalidWorkDay, got %v", err)
	}
}

func TestNewSweeper_CutoffDefaults(t *testing.T) {
	t.Parallel()

	s := NewSweeper(newFakeRepo(), nil, nil, SweepConfig{Cutoff: 25 * time.Hour})
	if s.cutoff != defaultSweepCutoff {
		t.Fatalf("expected default cutoff, got %v", s.cutoff)
	}
	s = NewSweeper(newFakeRepo(), nil, nil, SweepConfig{Cutoff: 18 * time.Hour})
	if s.cutoff != 18*time.Hour {
		t.Fatalf("expected configured cutoff, got %v", s.cutoff)
	}
	if s.Location() != time.UTC {
		t.Fatalf("expected UTC fallback")
	}
}

func TestSweeper_CutoffOnDSTDay(t *testing.T) {
	t.Parallel()

	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("timezone unavailable: %v", err)
	}

	repo := newFakeRepo()
	rec := openRecord("7", StatusActive)
	rec.WorkDay = "2024-03-10"
	rec.LoginTime = time.Date(2024, 3, 10, 9, 0, 0, 0, ny).UnixMilli()
	repo.put(rec)

	trigger := time.Date(2024, 3, 11, 0, 0, 0, 0, ny)
	sweeper := NewSweeper(repo, &stubClock{now: trigger}, nil, SweepConfig{
		Token:    testSweepToken,
		Location: ny,
		Logger:   log.New(io.Discard, "", 0),
	})

	report, err := sweeper.Sweep(context.Background(), SweepInput{Caller: schedulerCaller, Token: testSweepToken, Day: "2024-03-10"})
	if err != nil {
		t.Fatalf("Sweep returned error: %v", err)
	}

	want := time.Date(2024, 3, 10, 23, 59, 59, 0, ny).UnixMilli()
	if report.Cutoff != want {
		t.Fatalf("expected cutoff %v, got %v", time.UnixMilli(want).In(ny), time.UnixMilli(report.Cutoff).In(ny))
	}
	if report.Cutoff >= trigger.UnixMilli() {
		t.Fatalf("cutoff must precede the midnight trigger")
	}
	if got := repo.get(rec.ID); got.LogoutTime == nil || *got.LogoutTime != want {
		t.Fatalf("expected logout at %d, got %+v", want, got.LogoutTime)
	}
}
