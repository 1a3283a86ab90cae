package tests

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"campusride/internal/domain"
	"campusride/internal/repository"
	"campusride/internal/service"
)

// ──────────────────────────────────────────────
// IN-MEMORY STORE
// ──────────────────────────────────────────────

// MemStore is an in-memory database shared by the mock repositories.
// WithinTx holds the store lock for the whole transaction and restores a
// snapshot when fn fails, so it behaves like a serializable transaction.
type MemStore struct {
	mu       sync.Mutex
	rides    map[string]*domain.Ride
	requests map[string]*domain.RideRequest
	order    []string
	users    map[string]*domain.User
	payments *MockPaymentRepository

	TxCount int32
}

// NewMemStore creates an empty store.
func NewMemStore() *MemStore {
	return &MemStore{
		rides:    make(map[string]*domain.Ride),
		requests: make(map[string]*domain.RideRequest),
		users:    make(map[string]*domain.User),
		payments: NewMockPaymentRepository(),
	}
}

// Repositories returns repositories that lock the store per call.
func (s *MemStore) Repositories() repository.Repositories {
	return s.repos(false)
}

// Payments returns the payment record repository.
func (s *MemStore) Payments() *MockPaymentRepository {
	return s.payments
}

func (s *MemStore) repos(held bool) repository.Repositories {
	return repository.Repositories{
		Rides:    &memRideRepository{s: s, held: held},
		Requests: &memRideRequestRepository{s: s, held: held},
		Users:    &memUserRepository{s: s, held: held},
	}
}

// WithinTx implements repository.Transactor.
func (s *MemStore) WithinTx(ctx context.Context, fn func(ctx context.Context, repos repository.Repositories) error) error {
	atomic.AddInt32(&s.TxCount, 1)
	s.mu.Lock()
	defer s.mu.Unlock()

	rides, requests, users, order := s.snapshot()
	if err := fn(ctx, s.repos(true)); err != nil {
		s.rides, s.requests, s.users, s.order = rides, requests, users, order
		return err
	}
	return nil
}

func (s *MemStore) snapshot() (map[string]*domain.Ride, map[string]*domain.RideRequest, map[string]*domain.User, []string) {
	rides := make(map[string]*domain.Ride, len(s.rides))
	for k, v := range s.rides {
		c := *v
		rides[k] = &c
	}
	requests := make(map[string]*domain.RideRequest, len(s.requests))
	for k, v := range s.requests {
		c := *v
		requests[k] = &c
	}
	users := make(map[string]*domain.User, len(s.users))
	for k, v := range s.users {
		c := *v
		users[k] = &c
	}
	return rides, requests, users, append([]string(nil), s.order...)
}

func (s *MemStore) lock(held bool) func() {
	if held {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// AddUser adds a user to the store.
func (s *MemStore) AddUser(u *domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *u
	s.users[u.ID] = &c
}

// AddRide adds a ride to the store.
func (s *MemStore) AddRide(r *domain.Ride) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *r
	s.rides[r.ID] = &c
}

// MutateRide changes a stored ride in place.
func (s *MemStore) MutateRide(id string, fn func(r *domain.Ride)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.rides[id])
}

// MutateRequest changes a stored request in place.
func (s *MemStore) MutateRequest(id string, fn func(r *domain.RideRequest)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.requests[id])
}

// Ride returns a copy of a stored ride.
func (s *MemStore) Ride(id string) domain.Ride {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.rides[id]
}

// Request returns a copy of a stored request.
func (s *MemStore) Request(id string) domain.RideRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.requests[id]
}

// User returns a copy of a stored user.
func (s *MemStore) User(id string) domain.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.users[id]
}

// RequestCount returns the number of stored requests.
func (s *MemStore) RequestCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

// CountByStatus counts the requests of a ride in the given status.
func (s *MemStore) CountByStatus(rideID string, status domain.RequestStatus) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.requests {
		if r.RideID == rideID && r.Status == status {
			n++
		}
	}
	return n
}

// ──────────────────────────────────────────────
// MOCK RIDE REPOSITORY
// ──────────────────────────────────────────────

type memRideRepository struct {
	s    *MemStore
	held bool
}

func (m *memRideRepository) Create(ctx context.Context, ride *domain.Ride) error {
	defer m.s.lock(m.held)()
	c := *ride
	m.s.rides[ride.ID] = &c
	return nil
}

func (m *memRideRepository) GetByID(ctx context.Context, id string) (*domain.Ride, error) {
	defer m.s.lock(m.held)()
	r, ok := m.s.rides[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *r
	return &c, nil
}

// GetForUpdate relies on WithinTx holding the store lock.
func (m *memRideRepository) GetForUpdate(ctx context.Context, id string) (*domain.Ride, error) {
	return m.GetByID(ctx, id)
}

func (m *memRideRepository) GetAll(ctx context.Context) ([]*domain.Ride, error) {
	defer m.s.lock(m.held)()
	out := make([]*domain.Ride, 0, len(m.s.rides))
	for _, r := range m.s.rides {
		c := *r
		out = append(out, &c)
	}
	return out, nil
}

func (m *memRideRepository) ReserveCapacity(ctx context.Context, rideID string, b domain.Baggage) (int, error) {
	defer m.s.lock(m.held)()
	r, ok := m.s.rides[rideID]
	if !ok {
		return 0, repository.ErrNotFound
	}
	if !r.IsOpen() {
		return 0, repository.ErrConflict
	}
	if err := r.Reserve(b); err != nil {
		return 0, err
	}
	r.Version++
	return r.SeatsLeft, nil
}

func (m *memRideRepository) ReleaseCapacity(ctx context.Context, rideID string, b domain.Baggage) error {
	defer m.s.lock(m.held)()
	r, ok := m.s.rides[rideID]
	if !ok {
		return repository.ErrConflict
	}
	r.Release(b)
	r.Version++
	return nil
}

func (m *memRideRepository) SetStartCode(ctx context.Context, rideID, code string) error {
	defer m.s.lock(m.held)()
	r, ok := m.s.rides[rideID]
	if !ok || !r.IsOpen() {
		return repository.ErrConflict
	}
	r.StartVerificationCode = code
	return nil
}

func (m *memRideRepository) SetCompletionCode(ctx context.Context, rideID, code string) error {
	defer m.s.lock(m.held)()
	r, ok := m.s.rides[rideID]
	if !ok || r.State() != domain.RideStateStarted {
		return repository.ErrConflict
	}
	r.VerificationCode = code
	return nil
}

func (m *memRideRepository) ConsumeStartCode(ctx context.Context, rideID, code string, at time.Time) (bool, error) {
	defer m.s.lock(m.held)()
	r, ok := m.s.rides[rideID]
	if !ok || !r.IsOpen() || r.StartVerificationCode == "" || r.StartVerificationCode != code {
		return false, nil
	}
	r.IsStarted = true
	r.StartedAt = at
	r.StartVerificationCode = ""
	return true, nil
}

func (m *memRideRepository) ConsumeCompletionCode(ctx context.Context, rideID, code string, at time.Time) (bool, error) {
	defer m.s.lock(m.held)()
	r, ok := m.s.rides[rideID]
	if !ok || r.State() != domain.RideStateStarted || r.VerificationCode == "" || r.VerificationCode != code {
		return false, nil
	}
	r.IsCompleted = true
	r.CompletedAt = at
	r.VerificationCode = ""
	return true, nil
}

func (m *memRideRepository) MarkCancelled(ctx context.Context, rideID string, by domain.ActorRole, reason string, at time.Time) (bool, error) {
	defer m.s.lock(m.held)()
	r, ok := m.s.rides[rideID]
	if !ok || !r.CanCancel() {
		return false, nil
	}
	r.IsCancelled = true
	r.CancelledBy = by
	r.CancellationReason = reason
	r.CancelledAt = at
	r.StartVerificationCode = ""
	r.VerificationCode = ""
	return true, nil
}

// ──────────────────────────────────────────────
// MOCK RIDE REQUEST REPOSITORY
// ──────────────────────────────────────────────

type memRideRequestRepository struct {
	s    *MemStore
	held bool
}

func (m *memRideRequestRepository) approvedExists(rideID, passengerID, exceptID string) bool {
	for _, r := range m.s.requests {
		if r.ID != exceptID && r.RideID == rideID && r.PassengerID == passengerID && r.Status == domain.RequestStatusApproved {
			return true
		}
	}
	return false
}

func (m *memRideRequestRepository) Create(ctx context.Context, req *domain.RideRequest) error {
	defer m.s.lock(m.held)()
	if _, ok := m.s.requests[req.ID]; ok {
		return repository.ErrConflict
	}
	if req.Status == domain.RequestStatusApproved && m.approvedExists(req.RideID, req.PassengerID, req.ID) {
		return repository.ErrConflict
	}
	c := *req
	m.s.requests[req.ID] = &c
	m.s.order = append(m.s.order, req.ID)
	return nil
}

func (m *memRideRequestRepository) GetByID(ctx context.Context, id string) (*domain.RideRequest, error) {
	defer m.s.lock(m.held)()
	r, ok := m.s.requests[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *r
	return &c, nil
}

func (m *memRideRequestRepository) ListByRide(ctx context.Context, rideID string, statuses ...domain.RequestStatus) ([]*domain.RideRequest, error) {
	defer m.s.lock(m.held)()
	var out []*domain.RideRequest
	for _, id := range m.s.order {
		r := m.s.requests[id]
		if r.RideID != rideID || !statusIn(r.Status, statuses) {
			continue
		}
		c := *r
		out = append(out, &c)
	}
	return out, nil
}

func (m *memRideRequestRepository) FindLive(ctx context.Context, rideID, passengerID string) (*domain.RideRequest, error) {
	defer m.s.lock(m.held)()
	for _, id := range m.s.order {
		r := m.s.requests[id]
		live := r.Status == domain.RequestStatusPending || r.Status == domain.RequestStatusApproved
		if live && r.RideID == rideID && r.PassengerID == passengerID {
			c := *r
			return &c, nil
		}
	}
	return nil, nil
}

func (m *memRideRequestRepository) ListStaleAuthorized(ctx context.Context, cutoff time.Time) ([]*domain.RideRequest, error) {
	defer m.s.lock(m.held)()
	var out []*domain.RideRequest
	for _, id := range m.s.order {
		r := m.s.requests[id]
		if r.PaymentStatus == domain.PaymentStatusAuthorized && r.AuthorizedAt.Before(cutoff) {
			c := *r
			out = append(out, &c)
		}
	}
	return out, nil
}

func (m *memRideRequestRepository) TransitionStatus(ctx context.Context, id string, from, to domain.RequestStatus) (bool, error) {
	defer m.s.lock(m.held)()
	r, ok := m.s.requests[id]
	if !ok || r.Status != from {
		return false, nil
	}
	if to == domain.RequestStatusApproved && m.approvedExists(r.RideID, r.PassengerID, r.ID) {
		return false, repository.ErrConflict
	}
	r.Status = to
	return true, nil
}

func (m *memRideRequestRepository) SetPaymentStatus(ctx context.Context, id string, status domain.PaymentStatus) error {
	defer m.s.lock(m.held)()
	r, ok := m.s.requests[id]
	if !ok {
		return repository.ErrNotFound
	}
	r.PaymentStatus = status
	return nil
}

func statusIn(s domain.RequestStatus, statuses []domain.RequestStatus) bool {
	if len(statuses) == 0 {
		return true
	}
	for _, want := range statuses {
		if s == want {
			return true
		}
	}
	return false
}

// ──────────────────────────────────────────────
// MOCK USER REPOSITORY
// ──────────────────────────────────────────────

type memUserRepository struct {
	s    *MemStore
	held bool
}

func (m *memUserRepository) Upsert(ctx context.Context, user *domain.User) error {
	defer m.s.lock(m.held)()
	existing, ok := m.s.users[user.ID]
	if !ok {
		c := *user
		m.s.users[user.ID] = &c
		return nil
	}
	existing.Email = user.Email
	existing.Name = user.Name
	if user.StripeCustomerID != "" {
		existing.StripeCustomerID = user.StripeCustomerID
	}
	if user.DefaultPaymentMethodID != "" {
		existing.DefaultPaymentMethodID = user.DefaultPaymentMethodID
	}
	if user.ConnectAccountID != "" {
		existing.ConnectAccountID = user.ConnectAccountID
	}
	return nil
}

func (m *memUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	defer m.s.lock(m.held)()
	u, ok := m.s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *u
	return &c, nil
}

func (m *memUserRepository) SetPhone(ctx context.Context, id, phone string) error {
	defer m.s.lock(m.held)()
	u, ok := m.s.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.Phone = phone
	u.PhoneVerified = true
	return nil
}

func (m *memUserRepository) RecordStrike(ctx context.Context, id string, now, nextReset time.Time) (int, error) {
	defer m.s.lock(m.held)()
	u, ok := m.s.users[id]
	if !ok {
		return 0, repository.ErrNotFound
	}
	expired := !u.StrikeResetDate.IsZero() && !u.StrikeResetDate.After(now)
	if expired {
		u.CancellationStrikeCount = 1
	} else {
		u.CancellationStrikeCount++
	}
	if !nextReset.IsZero() && (u.StrikeResetDate.IsZero() || expired) {
		u.StrikeResetDate = nextReset
	}
	return u.CancellationStrikeCount, nil
}

func (m *memUserRepository) IncrementRidesCompleted(ctx context.Context, id string) error {
	defer m.s.lock(m.held)()
	u, ok := m.s.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.RidesCompleted++
	return nil
}

// ──────────────────────────────────────────────
// MOCK PAYMENT REPOSITORY
// ──────────────────────────────────────────────

// MockPaymentRepository is a mock implementation of PaymentRepository.
type MockPaymentRepository struct {
	mu      sync.Mutex
	records []*domain.PaymentRecord
}

// NewMockPaymentRepository creates a new mock payment repository.
func NewMockPaymentRepository() *MockPaymentRepository {
	return &MockPaymentRepository{}
}

func (m *MockPaymentRepository) Create(ctx context.Context, record *domain.PaymentRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if record.Succeeded && record.IdempotencyKey != "" {
		for _, r := range m.records {
			if r.Succeeded && r.IdempotencyKey == record.IdempotencyKey {
				return repository.ErrConflict
			}
		}
	}
	c := *record
	m.records = append(m.records, &c)
	return nil
}

func (m *MockPaymentRepository) GetByIdempotencyKey(ctx context.Context, key string) (*domain.PaymentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records {
		if r.Succeeded && r.IdempotencyKey == key {
			c := *r
			return &c, nil
		}
	}
	return nil, nil
}

func (m *MockPaymentRepository) ListByRideRequest(ctx context.Context, rideRequestID string) ([]*domain.PaymentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.PaymentRecord
	for _, r := range m.records {
		if r.RideRequestID == rideRequestID {
			c := *r
			out = append(out, &c)
		}
	}
	return out, nil
}

// Records returns all records of the given kind.
func (m *MockPaymentRepository) Records(kind domain.PaymentKind) []domain.PaymentRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.PaymentRecord
	for _, r := range m.records {
		if r.Kind == kind {
			out = append(out, *r)
		}
	}
	return out
}

// ──────────────────────────────────────────────
// MOCK PAYMENT PROCESSOR
// ──────────────────────────────────────────────

// MockProcessor is an in-memory payment processor with failure injection.
type MockProcessor struct {
	mu      sync.Mutex
	intents map[string]string
	seq     int

	Authorizations []service.AuthorizeParams
	Penalties      []service.PenaltyParams

	// Error injection
	AuthorizeError error
	CancelError    error
	PenaltyError   error
	FailCapture    map[string]error

	// OnAuthorize runs after a successful authorization.
	OnAuthorize func(params service.AuthorizeParams)
}

// NewMockProcessor creates a new mock processor.
func NewMockProcessor() *MockProcessor {
	return &MockProcessor{
		intents:     make(map[string]string),
		FailCapture: make(map[string]error),
	}
}

func (p *MockProcessor) Authorize(ctx context.Context, params service.AuthorizeParams) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Authorizations = append(p.Authorizations, params)
	if p.AuthorizeError != nil {
		return "", p.AuthorizeError
	}
	p.seq++
	ref := fmt.Sprintf("pi_%d", p.seq)
	p.intents[ref] = "authorized"
	if p.OnAuthorize != nil {
		p.OnAuthorize(params)
	}
	return ref, nil
}

func (p *MockProcessor) Capture(ctx context.Context, intentRef, idempotencyKey string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.FailCapture[intentRef]; err != nil {
		return err
	}
	if p.intents[intentRef] != "authorized" {
		return service.ErrIntentFinal
	}
	p.intents[intentRef] = "captured"
	return nil
}

func (p *MockProcessor) Cancel(ctx context.Context, intentRef, idempotencyKey string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.CancelError != nil {
		return p.CancelError
	}
	if p.intents[intentRef] != "authorized" {
		return service.ErrIntentFinal
	}
	p.intents[intentRef] = "canceled"
	return nil
}

func (p *MockProcessor) Refund(ctx context.Context, intentRef, idempotencyKey string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.intents[intentRef] != "captured" {
		return service.ErrIntentFinal
	}
	p.intents[intentRef] = "refunded"
	return nil
}

func (p *MockProcessor) ChargePenalty(ctx context.Context, params service.PenaltyParams) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Penalties = append(p.Penalties, params)
	if p.PenaltyError != nil {
		return "", p.PenaltyError
	}
	p.seq++
	ref := fmt.Sprintf("pi_penalty_%d", p.seq)
	p.intents[ref] = "captured"
	return ref, nil
}

func (p *MockProcessor) IntentStatus(ctx context.Context, intentRef string) (service.IntentStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	state, ok := p.intents[intentRef]
	if !ok {
		return "", fmt.Errorf("unknown payment intent %s", intentRef)
	}
	return service.IntentStatus(state), nil
}

// IntentState returns the processor-side state of an intent.
func (p *MockProcessor) IntentState(ref string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.intents[ref]
}

// SetIntentState forces the processor-side state of an intent.
func (p *MockProcessor) SetIntentState(ref, state string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.intents[ref] = state
}

// AuthorizeCount returns the number of authorization attempts.
func (p *MockProcessor) AuthorizeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Authorizations)
}

// PenaltyCount returns the number of penalty attempts.
func (p *MockProcessor) PenaltyCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Penalties)
}

// ──────────────────────────────────────────────
// MOCK SMS SENDER
// ──────────────────────────────────────────────

// SentSMS is a message captured by MockSender.
type SentSMS struct {
	Phone   string
	Message string
}

// MockSender records outgoing SMS.
type MockSender struct {
	mu       sync.Mutex
	messages []SentSMS

	SendError error
}

func (m *MockSender) SendSMS(ctx context.Context, phone, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SendError != nil {
		return m.SendError
	}
	m.messages = append(m.messages, SentSMS{Phone: phone, Message: message})
	return nil
}

// SentTo returns the messages sent to phone.
func (m *MockSender) SentTo(phone string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, s := range m.messages {
		if s.Phone == phone {
			out = append(out, s.Message)
		}
	}
	return out
}

// ──────────────────────────────────────────────
// MOCK LOCKER AND CODE STORE
// ──────────────────────────────────────────────

// MockLocker is an in-process Locker.
type MockLocker struct {
	mu   sync.Mutex
	held map[string]string
	seq  int
}

// NewMockLocker creates a new mock locker.
func NewMockLocker() *MockLocker {
	return &MockLocker{held: make(map[string]string)}
}

func (l *MockLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return "", false, nil
	}
	l.seq++
	token := fmt.Sprintf("token-%d", l.seq)
	l.held[key] = token
	return token, true, nil
}

func (l *MockLocker) Release(ctx context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] == token {
		delete(l.held, key)
	}
	return nil
}

// MockCodeStore is an in-memory CodeStore without expiry.
type MockCodeStore struct {
	mu    sync.Mutex
	codes map[string]string
}

// NewMockCodeStore creates a new mock code store.
func NewMockCodeStore() *MockCodeStore {
	return &MockCodeStore{codes: make(map[string]string)}
}

func (m *MockCodeStore) Put(ctx context.Context, key, code string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.codes[key] = code
	return nil
}

func (m *MockCodeStore) Take(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	code := m.codes[key]
	delete(m.codes, key)
	return code, nil
}

// ──────────────────────────────────────────────
// TEST CLOCK
// ──────────────────────────────────────────────

// Clock is a settable time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock creates a clock fixed at t.
func NewClock(t time.Time) *Clock {
	return &Clock{now: t}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Ensure mocks implement interfaces.
var (
	_ repository.Transactor        = (*MemStore)(nil)
	_ repository.PaymentRepository = (*MockPaymentRepository)(nil)
	_ service.PaymentProcessor     = (*MockProcessor)(nil)
	_ service.Sender               = (*MockSender)(nil)
	_ service.Locker               = (*MockLocker)(nil)
	_ service.CodeStore            = (*MockCodeStore)(nil)
)
