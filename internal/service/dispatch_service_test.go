package service

import (
	"context"
	"errors"
	"testing"

	"github.com/jpcardenas/sms-dispatch/internal/domain"
	"github.com/jpcardenas/sms-dispatch/internal/ratelimit"
)

// fakeJobStore is an in-memory test double for jobStore.
type fakeJobStore struct {
	jobs   map[int64]*domain.Job
	nextID int64

	enrolled []string // numbers passed to Enroll
	attempts []recordedAttempt

	enrollErr error
	claimErr  error
}

type recordedAttempt struct {
	JobID    int64
	Operator string
	Success  bool
	ErrText  string
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{jobs: make(map[int64]*domain.Job)}
}

func (f *fakeJobStore) addJob(number, content, campaignID string, metadata domain.Metadata) *domain.Job {
	f.nextID++
	job := &domain.Job{
		ID:          f.nextID,
		PhoneNumber: number,
		Content:     content,
		CampaignID:  campaignID,
		Metadata:    metadata,
		Status:      domain.StatusPending,
		MaxAttempts: domain.DefaultMaxAttempts,
	}
	f.jobs[job.ID] = job
	return job
}

func (f *fakeJobStore) Enroll(ctx context.Context, number, content, campaignID string, metadata domain.Metadata) (int64, error) {
	if f.enrollErr != nil {
		return 0, f.enrollErr
	}
	for _, j := range f.jobs {
		if j.PhoneNumber == number && j.Content == content && j.CampaignID == campaignID {
			return 0, domain.ErrDuplicateJob
		}
	}
	f.enrolled = append(f.enrolled, number)
	return f.addJob(number, content, campaignID, metadata).ID, nil
}

func (f *fakeJobStore) ClaimEligible(ctx context.Context, limit int) ([]domain.Job, error) {
	if f.claimErr != nil {
		return nil, f.claimErr
	}
	var out []domain.Job
	for _, j := range f.jobs {
		if len(out) == limit {
			break
		}
		eligible := j.Status == domain.StatusPending || j.Status == domain.StatusRetrying
		if eligible && j.Attempts < j.MaxAttempts {
			out = append(out, *j)
		}
	}
	return out, nil
}

func (f *fakeJobStore) ClaimCampaign(ctx context.Context, campaignID string, limit int) ([]domain.Job, error) {
	all, err := f.ClaimEligible(ctx, limit)
	if err != nil {
		return nil, err
	}
	var out []domain.Job
	for _, j := range all {
		if j.CampaignID == campaignID {
			out = append(out, j)
		}
	}
	return out, nil
}

func (f *fakeJobStore) RecordAttempt(ctx context.Context, jobID int64, operator string, success bool, response, errText *string, latencyMs *int64) (bool, error) {
	job, ok := f.jobs[jobID]
	if !ok {
		return false, nil
	}

	rec := recordedAttempt{JobID: jobID, Operator: operator, Success: success}
	if errText != nil {
		rec.ErrText = *errText
	}
	f.attempts = append(f.attempts, rec)

	job.Attempts++
	job.Operator = &operator
	if success {
		job.Status = domain.StatusSent
	} else if job.Attempts >= job.MaxAttempts {
		job.Status = domain.StatusFailed
	} else {
		job.Status = domain.StatusRetrying
	}
	return true, nil
}

func (f *fakeJobStore) ConfirmDelivery(ctx context.Context, number string) (bool, error) {
	for _, j := range f.jobs {
		if j.PhoneNumber == number && j.Status != domain.StatusDelivered {
			j.Status = domain.StatusDelivered
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeJobStore) AggregateState(ctx context.Context) (*domain.AggregateState, error) {
	state := &domain.AggregateState{}
	for _, j := range f.jobs {
		state.Total++
		switch j.Status {
		case domain.StatusPending:
			state.Pending++
		case domain.StatusRetrying:
			state.Retrying++
		case domain.StatusSent:
			state.Sent++
		case domain.StatusDelivered:
			state.Delivered++
		case domain.StatusFailed:
			state.Failed++
		}
	}
	return state, nil
}

func (f *fakeJobStore) GetByID(ctx context.Context, id int64) (*domain.Job, error) {
	job, ok := f.jobs[id]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	copied := *job
	return &copied, nil
}

func (f *fakeJobStore) GetAll(ctx context.Context, status *domain.JobStatus, page, pageSize int) ([]domain.Job, int64, error) {
	var out []domain.Job
	for _, j := range f.jobs {
		if status == nil || j.Status == *status {
			out = append(out, *j)
		}
	}
	return out, int64(len(out)), nil
}

func (f *fakeJobStore) AttemptHistory(ctx context.Context, jobID int64) ([]domain.AttemptLogEntry, error) {
	return nil, nil
}

// fakeRouter always returns the same operator.
type fakeRouter struct {
	op  *domain.OperatorProfile
	err error
}

func (f *fakeRouter) NextOperator(attemptIndex int, previous string) (*domain.OperatorProfile, error) {
	return f.op, f.err
}

// fakeTransport records sends and returns scripted outcomes in order.
type fakeTransport struct {
	sends    []fakeSend
	failures []error // consumed per call; nil entry means success
	calls    int
}

type fakeSend struct {
	Recipient string
	Content   string
}

func (f *fakeTransport) Send(ctx context.Context, op *domain.OperatorProfile, recipient, content, queueRef string) (*domain.TransportReceipt, error) {
	f.sends = append(f.sends, fakeSend{Recipient: recipient, Content: content})
	idx := f.calls
	f.calls++
	if idx < len(f.failures) && f.failures[idx] != nil {
		return nil, f.failures[idx]
	}
	return &domain.TransportReceipt{TrackingID: "trk-1", RawResponse: `{"status":"1"}`, LatencyMs: 12}, nil
}

// fakeTracking is an in-memory tracking-id cache.
type fakeTracking struct {
	entries map[string]string
}

func (f *fakeTracking) CacheTracking(ctx context.Context, trackingID, number string) error {
	if f.entries == nil {
		f.entries = make(map[string]string)
	}
	f.entries[trackingID] = number
	return nil
}

func (f *fakeTracking) LookupTracking(ctx context.Context, trackingID string) (string, error) {
	return f.entries[trackingID], nil
}

func testOperator() *domain.OperatorProfile {
	return &domain.OperatorProfile{Name: "primary", MaxPerMinute: 6000, Enabled: true}
}

func newTestService(store *fakeJobStore, router operatorRouter, gw transport, tracking trackingCache) *DispatchService {
	return NewDispatchService(
		store, router, gw,
		ratelimit.NewRegistry(true),
		ratelimit.NewGlobalLimiter(1000),
		tracking, nil,
	)
}

func TestEnrollBatch_CountsRows(t *testing.T) {
	store := newFakeJobStore()
	svc := newTestService(store, &fakeRouter{op: testOperator()}, &fakeTransport{}, nil)

	report, err := svc.EnrollBatch(context.Background(), "camp-1", "Hola {nombre}", []EnrollRow{
		{Number: "3001234567", Metadata: domain.Metadata{"nombre": "Ana"}},
		{Number: "3001234567", Metadata: domain.Metadata{"nombre": "Ana"}}, // duplicate
		{Number: "6011234567"}, // landline, invalid
		{Number: "573009876543"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if report.Enrolled != 2 {
		t.Errorf("expected 2 enrolled, got %d", report.Enrolled)
	}
	if report.Duplicates != 1 {
		t.Errorf("expected 1 duplicate, got %d", report.Duplicates)
	}
	if report.Invalid != 1 {
		t.Errorf("expected 1 invalid, got %d", report.Invalid)
	}
	if len(report.JobIDs) != 2 {
		t.Errorf("expected 2 job ids, got %d", len(report.JobIDs))
	}
}

func TestEnrollBatch_EmptyMessageRejected(t *testing.T) {
	store := newFakeJobStore()
	svc := newTestService(store, &fakeRouter{op: testOperator()}, &fakeTransport{}, nil)

	_, err := svc.EnrollBatch(context.Background(), "", "   ", []EnrollRow{{Number: "3001234567"}})
	var ve *domain.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestProcessBatch_AllSent(t *testing.T) {
	store := newFakeJobStore()
	store.addJob("3001111111", "Hola {nombre}", "camp-1", domain.Metadata{"nombre": "Ana"})
	store.addJob("3002222222", "Hola {nombre}", "camp-1", domain.Metadata{"nombre": "Luis"})
	store.addJob("3003333333", "Hola {nombre}", "camp-1", domain.Metadata{"nombre": "Eva"})

	gw := &fakeTransport{}
	svc := newTestService(store, &fakeRouter{op: testOperator()}, gw, &fakeTracking{})

	result, err := svc.ProcessBatch(context.Background(), 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Claimed != 3 || result.Sent != 3 || result.Failed != 0 {
		t.Fatalf("expected 3 claimed/3 sent, got claimed=%d sent=%d failed=%d",
			result.Claimed, result.Sent, result.Failed)
	}

	for _, send := range gw.sends {
		if send.Recipient[:2] != "57" {
			t.Errorf("expected international recipient, got %s", send.Recipient)
		}
		if send.Content[:5] != "Hola " || send.Content == "Hola {nombre}" {
			t.Errorf("expected rendered content, got %q", send.Content)
		}
	}

	if len(store.attempts) != 3 {
		t.Fatalf("expected 3 recorded attempts, got %d", len(store.attempts))
	}
	for _, a := range store.attempts {
		if !a.Success {
			t.Errorf("expected successful attempt for job %d", a.JobID)
		}
	}
}

func TestProcessBatch_TransportFailureRecorded(t *testing.T) {
	store := newFakeJobStore()
	job := store.addJob("3001111111", "Hola", "", nil)

	gw := &fakeTransport{failures: []error{
		&domain.TransportError{Operator: "primary", Timeout: true, Err: context.DeadlineExceeded},
	}}
	svc := newTestService(store, &fakeRouter{op: testOperator()}, gw, nil)

	result, err := svc.ProcessBatch(context.Background(), 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Sent != 0 || result.Failed != 1 {
		t.Fatalf("expected 1 failed, got sent=%d failed=%d", result.Sent, result.Failed)
	}
	if store.jobs[job.ID].Status != domain.StatusRetrying {
		t.Errorf("expected job retrying after transport failure, got %s", store.jobs[job.ID].Status)
	}
	if len(store.attempts) != 1 || store.attempts[0].Success {
		t.Fatalf("expected one failed attempt recorded, got %+v", store.attempts)
	}
	if store.attempts[0].ErrText == "" {
		t.Error("expected the attempt to carry the error text")
	}
}

func TestProcessBatch_RetryThenSuccessAccumulatesAttempts(t *testing.T) {
	store := newFakeJobStore()
	job := store.addJob("3001111111", "Hola", "", nil)

	gw := &fakeTransport{failures: []error{
		&domain.TransportError{Operator: "primary", Timeout: true, Err: context.DeadlineExceeded},
		&domain.TransportError{Operator: "primary", Timeout: true, Err: context.DeadlineExceeded},
		nil,
	}}
	svc := newTestService(store, &fakeRouter{op: testOperator()}, gw, nil)

	// Three sweep passes: two timeouts, then a success.
	for i := 0; i < 3; i++ {
		if _, err := svc.ProcessBatch(context.Background(), 10); err != nil {
			t.Fatalf("pass %d: unexpected error: %v", i, err)
		}
	}

	if len(store.attempts) != 3 {
		t.Fatalf("expected 3 attempt records, got %d", len(store.attempts))
	}
	if store.attempts[0].Success || store.attempts[1].Success || !store.attempts[2].Success {
		t.Errorf("expected fail, fail, success; got %+v", store.attempts)
	}
	if store.jobs[job.ID].Status != domain.StatusSent {
		t.Errorf("expected job sent after third attempt, got %s", store.jobs[job.ID].Status)
	}
	if store.jobs[job.ID].Attempts != 3 {
		t.Errorf("expected 3 attempts consumed, got %d", store.jobs[job.ID].Attempts)
	}
}

func TestDeliver_EmptyRenderedMessageFailsLocally(t *testing.T) {
	store := newFakeJobStore()
	job := store.addJob("3001111111", "{vacio}", "", domain.Metadata{"vacio": "  "})

	gw := &fakeTransport{}
	svc := newTestService(store, &fakeRouter{op: testOperator()}, gw, nil)

	outcome := svc.Deliver(context.Background(), job, testOperator())

	if outcome.Success {
		t.Fatal("expected local failure for empty rendered message")
	}
	if !errors.Is(outcome.Error, domain.ErrEmptyMessage) {
		t.Errorf("expected ErrEmptyMessage, got %v", outcome.Error)
	}
	if gw.calls != 0 {
		t.Errorf("expected no transport call, got %d", gw.calls)
	}
	if len(store.attempts) != 1 || store.attempts[0].Success {
		t.Fatalf("expected one failed attempt recorded, got %+v", store.attempts)
	}
}

func TestProcessBatch_NoOperatorHaltsBatch(t *testing.T) {
	store := newFakeJobStore()
	store.addJob("3001111111", "Hola", "", nil)

	svc := newTestService(store, &fakeRouter{err: domain.ErrNoOperator}, &fakeTransport{}, nil)

	_, err := svc.ProcessBatch(context.Background(), 10)
	if !errors.Is(err, domain.ErrNoOperator) {
		t.Fatalf("expected ErrNoOperator, got %v", err)
	}
	if len(store.attempts) != 0 {
		t.Errorf("expected no attempts consumed, got %d", len(store.attempts))
	}
}

func TestDeliver_CachesTrackingID(t *testing.T) {
	store := newFakeJobStore()
	job := store.addJob("3001111111", "Hola", "", nil)

	tracking := &fakeTracking{}
	svc := newTestService(store, &fakeRouter{op: testOperator()}, &fakeTransport{}, tracking)

	outcome := svc.Deliver(context.Background(), job, testOperator())
	if !outcome.Success {
		t.Fatalf("expected success, got error %v", outcome.Error)
	}
	if tracking.entries["trk-1"] != "3001111111" {
		t.Errorf("expected tracking id mapped to number, got %q", tracking.entries["trk-1"])
	}
}

func TestConfirmDeliveryByTracking(t *testing.T) {
	store := newFakeJobStore()
	job := store.addJob("3001111111", "Hola", "", nil)
	job.Status = domain.StatusSent

	tracking := &fakeTracking{entries: map[string]string{"trk-9": "3001111111"}}
	svc := newTestService(store, &fakeRouter{op: testOperator()}, &fakeTransport{}, tracking)

	confirmed, err := svc.ConfirmDeliveryByTracking(context.Background(), "trk-9")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !confirmed {
		t.Fatal("expected confirmation")
	}
	if store.jobs[job.ID].Status != domain.StatusDelivered {
		t.Errorf("expected delivered, got %s", store.jobs[job.ID].Status)
	}

	// Idempotent: a second report is acknowledged without effect.
	confirmed, err = svc.ConfirmDeliveryByTracking(context.Background(), "trk-9")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if confirmed {
		t.Error("expected second confirmation to be a no-op")
	}
}

func TestConfirmDeliveryByTracking_UnknownID(t *testing.T) {
	svc := newTestService(newFakeJobStore(), &fakeRouter{op: testOperator()}, &fakeTransport{}, &fakeTracking{})

	confirmed, err := svc.ConfirmDeliveryByTracking(context.Background(), "missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if confirmed {
		t.Error("expected no confirmation for unknown tracking id")
	}
}

func TestSendImmediate(t *testing.T) {
	store := newFakeJobStore()
	gw := &fakeTransport{}
	svc := newTestService(store, &fakeRouter{op: testOperator()}, gw, nil)

	outcome, err := svc.SendImmediate(context.Background(), "300 111 1111", "Hola", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !outcome.Success {
		t.Fatalf("expected success, got %v", outcome.Error)
	}
	if gw.calls != 1 {
		t.Errorf("expected one transport call, got %d", gw.calls)
	}
	if len(store.enrolled) != 1 || store.enrolled[0] != "3001111111" {
		t.Errorf("expected normalized number enrolled, got %v", store.enrolled)
	}
}
