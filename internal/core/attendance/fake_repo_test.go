package attendance

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/ogurasousui/attendance-grpc/internal/core/employee"
)

type stubClock struct {
	now time.Time
}

func (s *stubClock) Now() time.Time {
	return s.now
}

type recordKey struct {
	employeeID string
	day        WorkDay
}

// fakeRepo は Repository のインメモリ実装です。Save はバージョンを検査します。
type fakeRepo struct {
	mu      sync.Mutex
	records map[string]*Record
	byKey   map[recordKey]string

	saveErr     map[string]error
	saveCalls   int
	listOpenErr error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		records: make(map[string]*Record),
		byKey:   make(map[recordKey]string),
		saveErr: make(map[string]error),
	}
}

func (r *fakeRepo) Create(_ context.Context, rec *Record) (*Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := recordKey{rec.EmployeeID, rec.WorkDay}
	if _, ok := r.byKey[key]; ok {
		return nil, ErrDuplicateRecord
	}
	clone := rec.Clone()
	r.records[clone.ID] = clone
	r.byKey[key] = clone.ID
	return clone.Clone(), nil
}

func (r *fakeRepo) Save(_ context.Context, rec *Record) (*Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.saveCalls++
	if err, ok := r.saveErr[rec.ID]; ok {
		delete(r.saveErr, rec.ID)
		return nil, err
	}

	existing, ok := r.records[rec.ID]
	if !ok {
		return nil, ErrRecordNotFound
	}
	if existing.Version != rec.Version {
		return nil, ErrConcurrentModification
	}
	clone := rec.Clone()
	clone.Version++
	r.records[clone.ID] = clone
	return clone.Clone(), nil
}

func (r *fakeRepo) FindByID(_ context.Context, id string) (*Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return rec.Clone(), nil
}

func (r *fakeRepo) FindByEmployeeAndDay(_ context.Context, employeeID string, day WorkDay) (*Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byKey[recordKey{employeeID, day}]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return r.records[id].Clone(), nil
}

func (r *fakeRepo) ListOpenSessions(_ context.Context, day WorkDay) ([]*Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.listOpenErr != nil {
		return nil, r.listOpenErr
	}

	var open []*Record
	for _, rec := range r.records {
		if rec.WorkDay == day && rec.LogoutTime == nil {
			open = append(open, rec.Clone())
		}
	}
	sort.Slice(open, func(i, j int) bool { return open[i].EmployeeID < open[j].EmployeeID })
	return open, nil
}

func (r *fakeRepo) List(_ context.Context, filter ListFilter) ([]*Record, string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var filtered []*Record
	for _, rec := range r.records {
		if filter.WorkDay != nil && rec.WorkDay != *filter.WorkDay {
			continue
		}
		if filter.EmployeeID != "" && rec.EmployeeID != filter.EmployeeID {
			continue
		}
		if filter.Status != nil && rec.Status != *filter.Status {
			continue
		}
		filtered = append(filtered, rec.Clone())
	}
	sort.Slice(filtered, func(i, j int) bool { return filtered[i].EmployeeID < filtered[j].EmployeeID })

	if filter.Offset > len(filtered) {
		return []*Record{}, "", nil
	}
	end := filter.Offset + filter.Limit
	if end > len(filtered) {
		end = len(filtered)
	}

	nextToken := ""
	if end < len(filtered) {
		nextToken = strconv.Itoa(end)
	}
	return filtered[filter.Offset:end], nextToken, nil
}

// put は状態を直接書き込みます。
func (r *fakeRepo) put(rec *Record) {
	r.mu.Lock()
	defer r.mu.Unlock()

	clone := rec.Clone()
	r.records[clone.ID] = clone
	r.byKey[recordKey{clone.EmployeeID, clone.WorkDay}] = clone.ID
}

func (r *fakeRepo) get(id string) *Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.records[id].Clone()
}

type fakeDirectory struct {
	employees map[string]*employee.Employee
	err       error

	mu            sync.Mutex
	expectedCalls int
}

func (d *fakeDirectory) GetEmployee(_ context.Context, id string) (*employee.Employee, error) {
	if d.err != nil {
		return nil, d.err
	}
	emp, ok := d.employees[id]
	if !ok {
		return nil, employee.ErrEmployeeNotFound
	}
	copy := *emp
	return &copy, nil
}

func expectedHours(v float64) *float64 {
	return &v
}

func (d *fakeDirectory) GetExpectedWorkingHours(ctx context.Context, id string) (time.Duration, bool, error) {
	d.mu.Lock()
	d.expectedCalls++
	d.mu.Unlock()

	emp, err := d.GetEmployee(ctx, id)
	if err != nil {
		return 0, false, err
	}
	expected, ok := emp.ExpectedWorkingDuration()
	return expected, ok, nil
}
