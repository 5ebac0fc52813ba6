package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"pdfdesk/mail"
	"pdfdesk/models"
	"pdfdesk/payment"
	"pdfdesk/processing"
	"pdfdesk/repository"
	"pdfdesk/storage"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func copyCounters(m map[models.Category]int64) map[models.Category]int64 {
	out := make(map[models.Category]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// fakePlans

type fakePlans struct {
	plans []models.Plan
}

func (f *fakePlans) ListActive(_ context.Context) ([]models.Plan, error) {
	var out []models.Plan
	for _, p := range f.plans {
		if p.IsActive {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SortOrder < out[j].SortOrder })
	return out, nil
}

func (f *fakePlans) GetByID(_ context.Context, id primitive.ObjectID) (*models.Plan, error) {
	for i := range f.plans {
		if f.plans[i].ID == id {
			p := f.plans[i]
			return &p, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakePlans) GetBySlug(_ context.Context, slug string) (*models.Plan, error) {
	for i := range f.plans {
		if f.plans[i].Slug == slug {
			p := f.plans[i]
			return &p, nil
		}
	}
	return nil, repository.ErrNotFound
}

// fakeUsage mirrors the conditional updates of the Mongo repository.

type fakeUsage struct {
	mu   sync.Mutex
	docs map[primitive.ObjectID]*models.Usage
}

func newFakeUsage() *fakeUsage {
	return &fakeUsage{docs: map[primitive.ObjectID]*models.Usage{}}
}

func (f *fakeUsage) snapshot(u *models.Usage) *models.Usage {
	cp := *u
	cp.Counters = copyCounters(u.Counters)
	return &cp
}

func (f *fakeUsage) Ensure(_ context.Context, userID primitive.ObjectID, period models.BillingCycle, now time.Time) (*models.Usage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.docs[userID]
	if !ok {
		start, end := models.CycleWindow(now, period)
		u = &models.Usage{
			ID:         primitive.NewObjectID(),
			UserID:     userID,
			Counters:   models.ZeroCounters(),
			Period:     period,
			CycleStart: start,
			CycleEnd:   end,
		}
		f.docs[userID] = u
	}
	return f.snapshot(u), nil
}

func (f *fakeUsage) Increment(_ context.Context, userID primitive.ObjectID, category models.Category, limit models.Limit) (*models.Usage, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !limit.Unlimited && limit.Max <= 0 {
		return nil, false, nil
	}
	u, ok := f.docs[userID]
	if !ok {
		return nil, false, nil
	}
	if !limit.Unlimited && u.Counters[category] >= limit.Max {
		return nil, false, nil
	}
	u.Counters[category]++
	return f.snapshot(u), true, nil
}

func (f *fakeUsage) ResetWindow(_ context.Context, userID primitive.ObjectID, expectedEnd time.Time, period models.BillingCycle, start, end time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.docs[userID]
	if !ok || !u.CycleEnd.Equal(expectedEnd) {
		return false, nil
	}
	u.Counters = models.ZeroCounters()
	u.Period = period
	u.CycleStart = start
	u.CycleEnd = end
	u.ResetCount++
	return true, nil
}

func (f *fakeUsage) StartCycle(_ context.Context, userID primitive.ObjectID, period models.BillingCycle, start, end time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.docs[userID]
	if !ok {
		u = &models.Usage{ID: primitive.NewObjectID(), UserID: userID}
		f.docs[userID] = u
	}
	u.Counters = models.ZeroCounters()
	u.Period = period
	u.CycleStart = start
	u.CycleEnd = end
	return nil
}

func (f *fakeUsage) ListDue(_ context.Context, now time.Time, limit int64) ([]models.Usage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var due []models.Usage
	for _, u := range f.docs {
		if !now.Before(u.CycleEnd) && int64(len(due)) < limit {
			due = append(due, *f.snapshot(u))
		}
	}
	return due, nil
}

func (f *fakeUsage) AdjustStorage(_ context.Context, userID primitive.ObjectID, delta int64, limit models.Limit) (*models.Usage, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.docs[userID]
	if !ok {
		return nil, false, nil
	}
	next := u.StorageBytes + delta
	if next < 0 || (delta > 0 && !limit.Unlimited && next > limit.Max) {
		return nil, false, nil
	}
	u.StorageBytes = next
	return f.snapshot(u), true, nil
}

func (f *fakeUsage) set(userID primitive.ObjectID, mutate func(u *models.Usage)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	mutate(f.docs[userID])
}

func (f *fakeUsage) get(userID primitive.ObjectID) *models.Usage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshot(f.docs[userID])
}

// fakeCredits

type fakeCredits struct {
	mu       sync.Mutex
	accounts map[primitive.ObjectID]*models.CreditAccount
}

func newFakeCredits() *fakeCredits {
	return &fakeCredits{accounts: map[primitive.ObjectID]*models.CreditAccount{}}
}

func (f *fakeCredits) ensure(userID primitive.ObjectID) *models.CreditAccount {
	a, ok := f.accounts[userID]
	if !ok {
		a = &models.CreditAccount{
			ID:        primitive.NewObjectID(),
			UserID:    userID,
			Available: models.ZeroCounters(),
			Consumed:  models.ZeroCounters(),
			Priority:  models.PrioritySubscriptionFirst,
		}
		f.accounts[userID] = a
	}
	return a
}

func (f *fakeCredits) copy(a *models.CreditAccount) *models.CreditAccount {
	cp := *a
	cp.Available = copyCounters(a.Available)
	cp.Consumed = copyCounters(a.Consumed)
	cp.PurchaseHistory = append([]models.CreditPurchase(nil), a.PurchaseHistory...)
	return &cp
}

func (f *fakeCredits) Ensure(_ context.Context, userID primitive.ObjectID) (*models.CreditAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.copy(f.ensure(userID)), nil
}

func (f *fakeCredits) Debit(_ context.Context, userID primitive.ObjectID, category models.Category) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[userID]
	if !ok || a.Available[category] < 1 {
		return false, nil
	}
	a.Available[category]--
	a.Consumed[category]++
	a.TotalAvailable--
	return true, nil
}

func (f *fakeCredits) Grant(_ context.Context, userID primitive.ObjectID, purchase models.CreditPurchase) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[userID]
	if !ok {
		return false, nil
	}
	for _, p := range a.PurchaseHistory {
		if p.TransactionID == purchase.TransactionID {
			return false, nil
		}
	}
	for c, n := range purchase.Credits {
		if c.Valid() && n > 0 {
			a.Available[c] += n
			a.TotalAvailable += n
			purchase.Total += n
		}
	}
	a.PurchaseHistory = append(a.PurchaseHistory, purchase)
	return true, nil
}

func (f *fakeCredits) SetPriority(_ context.Context, userID primitive.ObjectID, priority models.CreditPriority) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ensure(userID).Priority = priority
	return nil
}

func (f *fakeCredits) give(userID primitive.ObjectID, category models.Category, n int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a := f.ensure(userID)
	a.Available[category] += n
	a.TotalAvailable += n
}

func (f *fakeCredits) get(userID primitive.ObjectID) *models.CreditAccount {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.copy(f.ensure(userID))
}

// fakeOperations

type fakeOperations struct {
	mu  sync.Mutex
	ops map[primitive.ObjectID]*models.Operation
}

func newFakeOperations() *fakeOperations {
	return &fakeOperations{ops: map[primitive.ObjectID]*models.Operation{}}
}

func (f *fakeOperations) Create(_ context.Context, op *models.Operation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if op.ID.IsZero() {
		op.ID = primitive.NewObjectID()
	}
	cp := *op
	f.ops[op.ID] = &cp
	return nil
}

func (f *fakeOperations) Finish(_ context.Context, id primitive.ObjectID, status models.OperationStatus, set bson.M) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	op, ok := f.ops[id]
	if !ok || op.Status != models.OperationProcessing {
		return false, nil
	}
	op.Status = status
	for k, v := range set {
		switch k {
		case "error":
			op.Error = v.(string)
		case "output_name":
			op.OutputName = v.(string)
		case "output_size":
			op.OutputSize = v.(int64)
		case "mime_type":
			op.MimeType = v.(string)
		case "artifact_key":
			op.ArtifactKey = v.(string)
		case "charged_from":
			op.ChargedFrom = v.(models.CreditSource)
		case "reduction_percent":
			op.ReductionPercent = v.(float64)
		case "completed_at":
			at := v.(time.Time)
			op.CompletedAt = &at
		}
	}
	return true, nil
}

func (f *fakeOperations) GetForUser(_ context.Context, userID, id primitive.ObjectID) (*models.Operation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	op, ok := f.ops[id]
	if !ok || op.UserID != userID {
		return nil, repository.ErrNotFound
	}
	cp := *op
	return &cp, nil
}

func (f *fakeOperations) ListForUser(_ context.Context, userID primitive.ObjectID, tool models.Tool, page, limit int64) ([]models.Operation, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Operation
	for _, op := range f.ops {
		if op.UserID == userID && (tool == "" || op.Tool == tool) {
			out = append(out, *op)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	total := int64(len(out))
	start := (page - 1) * limit
	if start >= total {
		return nil, total, nil
	}
	end := start + limit
	if end > total {
		end = total
	}
	return out[start:end], total, nil
}

func (f *fakeOperations) ListStaleArtifacts(_ context.Context, cutoffs map[models.Category]time.Time, limit int64) ([]models.Operation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Operation
	for _, op := range f.ops {
		before, ok := cutoffs[op.Category]
		if !ok || op.Status != models.OperationDone || op.ArtifactKey == "" || op.CompletedAt == nil {
			continue
		}
		if !op.CompletedAt.After(before) && int64(len(out)) < limit {
			out = append(out, *op)
		}
	}
	return out, nil
}

func (f *fakeOperations) ClearArtifact(_ context.Context, id primitive.ObjectID, key string, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	op, ok := f.ops[id]
	if !ok || op.ArtifactKey == "" || op.ArtifactKey != key {
		return false, nil
	}
	op.ArtifactKey = ""
	op.ArtifactRemovedAt = &at
	return true, nil
}

func (f *fakeOperations) get(id primitive.ObjectID) *models.Operation {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *f.ops[id]
	return &cp
}

func (f *fakeOperations) all() []models.Operation {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Operation
	for _, op := range f.ops {
		out = append(out, *op)
	}
	return out
}

// fakeSessions

type fakeSessions struct {
	mu       sync.Mutex
	sessions map[primitive.ObjectID]*models.EditSession
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{sessions: map[primitive.ObjectID]*models.EditSession{}}
}

func (f *fakeSessions) Create(_ context.Context, s *models.EditSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s.ID.IsZero() {
		s.ID = primitive.NewObjectID()
	}
	cp := *s
	f.sessions[s.ID] = &cp
	return nil
}

func (f *fakeSessions) GetForUser(_ context.Context, userID primitive.ObjectID, sessionID string) (*models.EditSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sessions {
		if s.SessionID == sessionID && s.UserID == userID {
			cp := *s
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeSessions) Transition(_ context.Context, id primitive.ObjectID, from, to models.EditStatus, set bson.M) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok || s.Status != from {
		return false, nil
	}
	s.Status = to
	for k, v := range set {
		switch k {
		case "page_count":
			s.PageCount = v.(int)
		case "edits":
			s.Edits = v.(models.EditSet)
		case "exported_file":
			s.ExportedFile = v.(*models.ExportedFile)
		case "operation_id":
			id := v.(primitive.ObjectID)
			s.OperationID = &id
		case "error":
			s.Error = v.(string)
		}
	}
	return true, nil
}

func (f *fakeSessions) ListStale(_ context.Context, before time.Time, limit int64) ([]models.EditSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.EditSession
	for _, s := range f.sessions {
		if s.SourceKey == "" || s.Status == models.EditProcessing || s.CreatedAt.After(before) {
			continue
		}
		if int64(len(out)) < limit {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (f *fakeSessions) Expire(_ context.Context, id primitive.ObjectID, sourceKey string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok || s.SourceKey == "" || s.SourceKey != sourceKey || s.Status == models.EditProcessing {
		return false, nil
	}
	s.Status = models.EditExpired
	s.SourceKey = ""
	return true, nil
}

// fakeUsers

type fakeUsers struct {
	mu    sync.Mutex
	users map[primitive.ObjectID]*models.User
	// updateErrs fail the next subscription updates in order
	updateErrs []error
}

func newFakeUsers(users ...*models.User) *fakeUsers {
	f := &fakeUsers{users: map[primitive.ObjectID]*models.User{}}
	for _, u := range users {
		cp := *u
		f.users[u.ID] = &cp
	}
	return f
}

func (f *fakeUsers) Create(_ context.Context, user *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	for _, u := range f.users {
		if u.Email == user.Email {
			return repository.ErrDuplicate
		}
	}
	if user.ID.IsZero() {
		user.ID = primitive.NewObjectID()
	}
	cp := *user
	f.users[user.ID] = &cp
	return nil
}

func (f *fakeUsers) GetByID(_ context.Context, id primitive.ObjectID) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range f.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeUsers) UpdateSubscription(_ context.Context, id primitive.ObjectID, sub models.Subscription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.updateErrs) > 0 {
		err := f.updateErrs[0]
		f.updateErrs = f.updateErrs[1:]
		return err
	}
	u, ok := f.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.Subscription = sub
	return nil
}

func (f *fakeUsers) TouchLogin(_ context.Context, id primitive.ObjectID, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[id]; ok {
		u.LastLoginAt = &at
	}
	return nil
}

func (f *fakeUsers) SetAutoRenewal(_ context.Context, id primitive.ObjectID, enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.Subscription.AutoRenewal = enabled
	return nil
}

func lapsed(s models.Subscription, now time.Time) bool {
	return s.Status == models.SubscriptionActive && s.ExpiresAt != nil && !s.ExpiresAt.After(now)
}

func (f *fakeUsers) ListLapsed(_ context.Context, now time.Time, limit int64) ([]models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.User
	for _, u := range f.users {
		if lapsed(u.Subscription, now) && int64(len(out)) < limit {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (f *fakeUsers) ExpireSubscription(_ context.Context, id primitive.ObjectID, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok || !lapsed(u.Subscription, now) {
		return false, nil
	}
	u.Subscription.Status = models.SubscriptionExpired
	return true, nil
}

// fakePayments

type fakePayments struct {
	mu       sync.Mutex
	payments map[primitive.ObjectID]*models.Payment
}

func newFakePayments() *fakePayments {
	return &fakePayments{payments: map[primitive.ObjectID]*models.Payment{}}
}

func (f *fakePayments) Create(_ context.Context, p *models.Payment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *p
	f.payments[p.ID] = &cp
	return nil
}

func (f *fakePayments) AttachCheckout(_ context.Context, id primitive.ObjectID, transactionID, checkoutURL string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.payments[id]
	p.TransactionID = transactionID
	p.CheckoutURL = checkoutURL
	return nil
}

func (f *fakePayments) find(match func(*models.Payment) bool) (*models.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.payments {
		if match(p) {
			cp := *p
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakePayments) GetByTransactionID(_ context.Context, transactionID string) (*models.Payment, error) {
	return f.find(func(p *models.Payment) bool { return p.TransactionID == transactionID })
}

func (f *fakePayments) GetByPaymentRef(_ context.Context, paymentRef string) (*models.Payment, error) {
	return f.find(func(p *models.Payment) bool { return p.PaymentRef == paymentRef })
}

func (f *fakePayments) GetForUser(_ context.Context, userID, id primitive.ObjectID) (*models.Payment, error) {
	return f.find(func(p *models.Payment) bool { return p.ID == id && p.UserID == userID })
}

func (f *fakePayments) ListForUser(_ context.Context, userID primitive.ObjectID, _, _ int64) ([]models.Payment, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Payment
	for _, p := range f.payments {
		if p.UserID == userID {
			out = append(out, *p)
		}
	}
	return out, int64(len(out)), nil
}

func (f *fakePayments) Transition(_ context.Context, transactionID string, from, to models.PaymentStatus, set bson.M) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.payments {
		if p.TransactionID != transactionID || p.Status != from {
			continue
		}
		p.Status = to
		if ref, ok := set["payment_ref"].(string); ok {
			p.PaymentRef = ref
		}
		if reason, ok := set["failure_reason"].(string); ok {
			p.FailureReason = reason
		}
		if at, ok := set["paid_at"].(time.Time); ok {
			p.PaidAt = &at
		}
		return true, nil
	}
	return false, nil
}

func (f *fakePayments) MarkInvoiceSent(_ context.Context, id primitive.ObjectID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payments[id].InvoiceSent = true
	return nil
}

// fakeTopups

type fakeTopups struct {
	mu       sync.Mutex
	packages []models.TopupPackage
}

func (f *fakeTopups) ListActive(_ context.Context) ([]models.TopupPackage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.TopupPackage
	for _, p := range f.packages {
		if p.IsActive {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeTopups) GetByID(_ context.Context, id primitive.ObjectID) (*models.TopupPackage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.packages {
		if f.packages[i].ID == id {
			p := f.packages[i]
			return &p, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeTopups) IncrementPurchaseCount(_ context.Context, id primitive.ObjectID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.packages {
		if f.packages[i].ID == id {
			f.packages[i].PurchaseCount++
		}
	}
	return nil
}

// memStorage

type memStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	// failPrefix makes Put fail for matching keys
	failPrefix string
}

func newMemStorage() *memStorage {
	return &memStorage{objects: map[string][]byte{}}
}

func (m *memStorage) Name() string { return "memory" }

func (m *memStorage) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failPrefix != "" && strings.HasPrefix(key, m.failPrefix) {
		return errors.New("bucket unavailable")
	}
	m.objects[key] = data
	return nil
}

func (m *memStorage) Open(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memStorage) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *memStorage) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok, nil
}

func (m *memStorage) HealthCheck(_ context.Context) error { return nil }

func (m *memStorage) failPuts(prefix string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failPrefix = prefix
}

func (m *memStorage) replace(key string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
}

func (m *memStorage) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}

// fakeGateway

type fakeGateway struct {
	mu       sync.Mutex
	sessions map[string]*payment.Checkout
	events   map[string]*payment.Event
	seq      int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{sessions: map[string]*payment.Checkout{}, events: map[string]*payment.Event{}}
}

func (g *fakeGateway) Name() string { return "fake" }

func (g *fakeGateway) CreateCheckout(_ context.Context, req payment.CheckoutRequest) (*payment.Checkout, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	id := fmt.Sprintf("cs_test_%d", g.seq)
	co := &payment.Checkout{SessionID: id, URL: "https://checkout.test/" + id}
	g.sessions[id] = co
	return co, nil
}

func (g *fakeGateway) RetrieveCheckout(_ context.Context, sessionID string) (*payment.Checkout, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	co, ok := g.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("no such session %s", sessionID)
	}
	cp := *co
	return &cp, nil
}

// ParseWebhook treats the payload as an event key and "valid" as the only
// accepted signature.
func (g *fakeGateway) ParseWebhook(payload []byte, signature string) (*payment.Event, error) {
	if signature != "valid" {
		return nil, payment.ErrInvalidSignature
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	ev, ok := g.events[string(payload)]
	if !ok {
		return &payment.Event{Type: payment.EventIgnored}, nil
	}
	return ev, nil
}

func (g *fakeGateway) pay(sessionID, paymentRef string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	co := g.sessions[sessionID]
	co.Paid = true
	co.PaymentRef = paymentRef
}

func (g *fakeGateway) addEvent(key string, ev *payment.Event) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.events[key] = ev
}

// fakeMailer

type fakeMailer struct {
	mu   sync.Mutex
	sent []mail.Message
}

func (m *fakeMailer) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

func (m *fakeMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

// fakeConverter

type fakeConverter struct {
	err error
}

func (c *fakeConverter) Convert(_ context.Context, target string, file processing.NamedFile) ([]byte, string, error) {
	if c.err != nil {
		return nil, "", c.err
	}
	return []byte("converted:" + file.Name), "", nil
}

func (c *fakeConverter) OCR(_ context.Context, file processing.NamedFile, _ string) (*processing.OCRResult, error) {
	if c.err != nil {
		return nil, c.err
	}
	return &processing.OCRResult{Success: true, Text: "hello world", Confidence: 91.5}, nil
}

// fixtures

var (
	freePlanID = primitive.NewObjectID()
	proPlanID  = primitive.NewObjectID()
	entPlanID  = primitive.NewObjectID()
)

func capped(n int64) models.Limit { return models.CappedLimit(n) }

func testPlans() []models.Plan {
	return []models.Plan{
		{
			ID:   freePlanID,
			Slug: models.FreePlanSlug,
			Name: "Free",
			Limits: map[models.Category]models.Limit{
				models.CategoryConversion: capped(10),
				models.CategoryEdit:       capped(5),
				models.CategoryOrganize:   capped(5),
				models.CategorySecurity:   capped(5),
				models.CategoryOptimize:   capped(5),
				models.CategoryAdvanced:   capped(0),
			},
			MaxFileSize: capped(10),
			Storage:     capped(1),
			IsFree:      true,
			IsDefault:   true,
			IsActive:    true,
			SortOrder:   1,
		},
		{
			ID:   proPlanID,
			Slug: "professional",
			Name: "Professional",
			Limits: map[models.Category]models.Limit{
				models.CategoryConversion: models.UnlimitedLimit(),
				models.CategoryEdit:       capped(100),
				models.CategoryOrganize:   capped(100),
				models.CategorySecurity:   capped(100),
				models.CategoryOptimize:   capped(100),
				models.CategoryAdvanced:   capped(50),
			},
			MaxFileSize: capped(100),
			Storage:     capped(50),
			Features:    models.PlanFeatures{OCR: true, BatchProcessing: true},
			Pricing:     models.PlanPricing{MonthlyUSD: 12, AnnualUSD: 120, MonthlyINR: 999, AnnualINR: 9990},
			IsActive:    true,
			SortOrder:   2,
		},
		{
			ID:   entPlanID,
			Slug: "enterprise",
			Name: "Enterprise",
			Limits: map[models.Category]models.Limit{
				models.CategoryConversion: models.UnlimitedLimit(),
				models.CategoryEdit:       models.UnlimitedLimit(),
				models.CategoryOrganize:   models.UnlimitedLimit(),
				models.CategorySecurity:   models.UnlimitedLimit(),
				models.CategoryOptimize:   models.UnlimitedLimit(),
				models.CategoryAdvanced:   models.UnlimitedLimit(),
			},
			MaxFileSize: models.UnlimitedLimit(),
			Storage:     models.UnlimitedLimit(),
			Features:    models.PlanFeatures{OCR: true, BatchProcessing: true, APIAccess: true},
			Pricing:     models.PlanPricing{MonthlyUSD: 49, AnnualUSD: 490},
			IsActive:    true,
			SortOrder:   3,
		},
	}
}

func freeUser() *models.User {
	return &models.User{
		ID:       primitive.NewObjectID(),
		Name:     "Free User",
		Email:    "free@example.com",
		IsActive: true,
		Subscription: models.Subscription{
			PlanSlug: models.FreePlanSlug,
			Status:   models.SubscriptionInactive,
		},
	}
}

func proUser() *models.User {
	expires := time.Now().Add(30 * 24 * time.Hour)
	planID := proPlanID
	return &models.User{
		ID:       primitive.NewObjectID(),
		Name:     "Pro User",
		Email:    "pro@example.com",
		IsActive: true,
		Subscription: models.Subscription{
			PlanID:       &planID,
			PlanSlug:     "professional",
			BillingCycle: models.BillingMonthly,
			Status:       models.SubscriptionActive,
			ExpiresAt:    &expires,
		},
	}
}

// env wires every service against the fakes.
type env struct {
	usage    *fakeUsage
	credits  *fakeCredits
	ops      *fakeOperations
	sessions *fakeSessions
	users    *fakeUsers
	payments *fakePayments
	topups   *fakeTopups
	store    *memStorage
	gateway  *fakeGateway
	mailer   *fakeMailer

	plans         *PlanService
	quota         *QuotaService
	creditSvc     *CreditService
	recorder      *OperationRecorder
	tools         *ToolService
	jobs          *ToolJobs
	edits         *EditSessionService
	subscriptions *SubscriptionService
	paymentsSvc   *PaymentService
}

func newEnv(t *testing.T, users ...*models.User) *env {
	t.Helper()
	logger := testLogger()

	e := &env{
		usage:    newFakeUsage(),
		credits:  newFakeCredits(),
		ops:      newFakeOperations(),
		sessions: newFakeSessions(),
		users:    newFakeUsers(users...),
		payments: newFakePayments(),
		topups:   &fakeTopups{},
		store:    newMemStorage(),
		gateway:  newFakeGateway(),
		mailer:   &fakeMailer{},
	}

	pdf := processing.NewPDF()
	e.plans = NewPlanService(&fakePlans{plans: testPlans()}, logger)
	e.quota = NewQuotaService(e.usage, e.credits, e.plans, logger)
	e.creditSvc = NewCreditService(e.credits, logger)
	e.recorder = NewOperationRecorder(e.ops, logger)
	e.tools = NewToolService(e.quota, e.recorder, e.store, logger)
	e.jobs = NewToolJobs(pdf, &fakeConverter{})
	e.edits = NewEditSessionService(e.sessions, e.tools, e.jobs, e.quota, pdf, e.store, logger)
	e.subscriptions = NewSubscriptionService(e.users, e.quota, logger)
	e.paymentsSvc = NewPaymentService(e.payments, e.topups, e.plans, e.creditSvc, e.subscriptions, e.gateway, e.mailer, logger)
	return e
}

// echoJob produces a fixed artifact without touching a real PDF.
func echoJob(tool models.Tool) Job {
	return Job{
		Tool:   tool,
		Action: "echo",
		Inputs: []processing.NamedFile{{Name: "in.pdf", Data: []byte("%PDF-input")}},
		Process: func(_ context.Context, in []processing.NamedFile) (*Output, error) {
			return &Output{Name: "out.pdf", Data: []byte("%PDF-output"), MimeType: processing.MimePDF}, nil
		},
	}
}

// samplePDF builds a minimal document with blank letter-size pages.
func samplePDF(t *testing.T, pages int) []byte {
	t.Helper()

	var buf bytes.Buffer
	var offsets []int
	obj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	buf.WriteString("%PDF-1.4\n")
	obj("<< /Type /Catalog /Pages 2 0 R >>")
	kids := make([]string, pages)
	for i := range kids {
		kids[i] = fmt.Sprintf("%d 0 R", i+3)
	}
	obj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), pages))
	for i := 0; i < pages; i++ {
		obj("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << >> >>")
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(offsets)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)
	return buf.Bytes()
}
