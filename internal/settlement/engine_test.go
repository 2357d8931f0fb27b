package settlement

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"autopay/internal/domain"
	"autopay/internal/models"
	"autopay/internal/repository"
	"autopay/pkg/ledger"

	"github.com/shopspring/decimal"
)

var today = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type fakeStore struct {
	mu       sync.Mutex
	payments map[uint]*models.Payment
	users    map[uint]models.User

	findErr     error
	claimErr    map[uint]error
	finalizeErr map[uint]error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		payments:    make(map[uint]*models.Payment),
		users:       make(map[uint]models.User),
		claimErr:    make(map[uint]error),
		finalizeErr: make(map[uint]error),
	}
}

func (s *fakeStore) add(p models.Payment, u models.User) {
	s.payments[p.ID] = &p
	s.users[u.ID] = u
}

func (s *fakeStore) FindDue(_ context.Context, now time.Time) ([]models.Payment, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []models.Payment
	for _, p := range s.payments {
		if p.Status == domain.PaymentScheduled && !p.DueDate.After(now) {
			cp := *p
			cp.User = s.users[p.UserID]
			due = append(due, cp)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ID < due[j].ID })
	return due, nil
}

func (s *fakeStore) Claim(_ context.Context, id uint) error {
	if err := s.claimErr[id]; err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.payments[id]
	if p == nil || p.Status != domain.PaymentScheduled {
		return repository.ErrStatusConflict
	}
	p.Status = domain.PaymentPending
	return nil
}

func (s *fakeStore) Finalize(_ context.Context, id uint, status string) error {
	if err := s.finalizeErr[id]; err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.payments[id]
	if p == nil || p.Status != domain.PaymentPending {
		return repository.ErrStatusConflict
	}
	p.Status = status
	return nil
}

func (s *fakeStore) status(id uint) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.payments[id].Status
}

type fakeLedger struct {
	mu        sync.Mutex
	balances  map[string]decimal.Decimal
	lookupErr map[string]error
	setErr    map[string]error
	panicOn   string

	// beforeSet runs once before the next conditional write; lets a test
	// slip a concurrent balance change between read and write.
	beforeSet func(l *fakeLedger, email string)
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		balances:  make(map[string]decimal.Decimal),
		lookupErr: make(map[string]error),
		setErr:    make(map[string]error),
	}
}

func (l *fakeLedger) Balance(_ context.Context, email string) (decimal.Decimal, error) {
	if email == l.panicOn {
		panic("malformed ledger record")
	}
	if err := l.lookupErr[email]; err != nil {
		return decimal.Zero, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.balances[email]
	if !ok {
		return decimal.Zero, ledger.ErrNotFound
	}
	return b, nil
}

func (l *fakeLedger) SetBalanceIf(_ context.Context, email string, old, balance decimal.Decimal) error {
	if err := l.setErr[email]; err != nil {
		return err
	}
	if l.beforeSet != nil {
		hook := l.beforeSet
		l.beforeSet = nil
		hook(l, email)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	cur, ok := l.balances[email]
	if !ok {
		return ledger.ErrNotFound
	}
	if !cur.Equal(old) {
		return ledger.ErrConflict
	}
	l.balances[email] = balance
	return nil
}

func (l *fakeLedger) balance(email string) decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[email]
}

type notice struct {
	paymentID uint
	balance   decimal.Decimal
	reason    string
}

type recordingNotifier struct {
	mu     sync.Mutex
	paid   []notice
	failed []notice
}

func (n *recordingNotifier) PaymentPaid(p *models.Payment, newBalance decimal.Decimal) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.paid = append(n.paid, notice{paymentID: p.ID, balance: newBalance})
}

func (n *recordingNotifier) PaymentFailed(p *models.Payment, balance decimal.Decimal, reason string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failed = append(n.failed, notice{paymentID: p.ID, balance: balance, reason: reason})
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func payment(id, userID uint, amount string, due time.Time) models.Payment {
	return models.Payment{
		ID:      id,
		UserID:  userID,
		Payee:   "Electric Co",
		Amount:  dec(amount),
		DueDate: due,
		Status:  domain.PaymentScheduled,
	}
}

func user(id uint, email string) models.User {
	return models.User{ID: id, Name: "Asha", Email: email}
}

func setup() (*fakeStore, *fakeLedger, *recordingNotifier, *Engine) {
	store := newFakeStore()
	led := newFakeLedger()
	notif := &recordingNotifier{}
	eng := NewEngine(store, led, notif, nil, nil)
	return store, led, notif, eng
}

func TestRunSufficientBalance(t *testing.T) {
	store, led, notif, eng := setup()
	store.add(payment(1, 10, "200.00", today), user(10, "asha@example.com"))
	led.balances["asha@example.com"] = dec("500.00")

	sum, err := eng.Run(context.Background(), today)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.Processed != 1 || sum.Failed != 0 {
		t.Fatalf("expected {1 0}, got %+v", sum)
	}
	if got := store.status(1); got != domain.PaymentPaid {
		t.Fatalf("expected PAID, got %s", got)
	}
	if got := led.balance("asha@example.com"); !got.Equal(dec("300.00")) {
		t.Fatalf("expected balance 300.00, got %s", got)
	}
	if len(notif.paid) != 1 || len(notif.failed) != 0 {
		t.Fatalf("expected exactly one success notification, got paid=%d failed=%d", len(notif.paid), len(notif.failed))
	}
	if !notif.paid[0].balance.Equal(dec("300.00")) {
		t.Fatalf("notification carries wrong balance: %s", notif.paid[0].balance)
	}
}

func TestRunInsufficientBalance(t *testing.T) {
	store, led, notif, eng := setup()
	store.add(payment(1, 10, "200.00", today), user(10, "asha@example.com"))
	led.balances["asha@example.com"] = dec("50.00")

	sum, err := eng.Run(context.Background(), today)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.Processed != 0 || sum.Failed != 1 {
		t.Fatalf("expected {0 1}, got %+v", sum)
	}
	if got := store.status(1); got != domain.PaymentFailed {
		t.Fatalf("expected FAILED, got %s", got)
	}
	if got := led.balance("asha@example.com"); !got.Equal(dec("50.00")) {
		t.Fatalf("balance must be unchanged, got %s", got)
	}
	if len(notif.failed) != 1 || notif.failed[0].reason != domain.FailReasonInsufficient {
		t.Fatalf("expected one insufficient-balance notification, got %+v", notif.failed)
	}
}

func TestRunTwoPaymentsPartialCover(t *testing.T) {
	store, led, notif, eng := setup()
	store.add(payment(1, 10, "200.00", today), user(10, "asha@example.com"))
	store.add(payment(2, 10, "200.00", today), user(10, "asha@example.com"))
	led.balances["asha@example.com"] = dec("250.00")

	sum, err := eng.Run(context.Background(), today)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.Processed != 1 || sum.Failed != 1 {
		t.Fatalf("expected {1 1}, got %+v", sum)
	}
	if got := store.status(1); got != domain.PaymentPaid {
		t.Fatalf("first payment should be PAID, got %s", got)
	}
	if got := store.status(2); got != domain.PaymentFailed {
		t.Fatalf("second payment should be FAILED, got %s", got)
	}
	// Debited exactly once, by exactly the PAID amount.
	if got := led.balance("asha@example.com"); !got.Equal(dec("50.00")) {
		t.Fatalf("expected balance 50.00, got %s", got)
	}
	if len(notif.paid) != 1 || len(notif.failed) != 1 {
		t.Fatalf("expected one paid + one failed notification")
	}
}

func TestRunFuturePaymentNotSelected(t *testing.T) {
	store, led, _, eng := setup()
	store.add(payment(1, 10, "200.00", today.AddDate(0, 0, 7)), user(10, "asha@example.com"))
	led.balances["asha@example.com"] = dec("500.00")

	sum, err := eng.Run(context.Background(), today)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.Processed != 0 || sum.Failed != 0 {
		t.Fatalf("expected {0 0}, got %+v", sum)
	}
	if got := store.status(1); got != domain.PaymentScheduled {
		t.Fatalf("future payment must stay SCHEDULED, got %s", got)
	}
	if got := led.balance("asha@example.com"); !got.Equal(dec("500.00")) {
		t.Fatalf("balance must be untouched, got %s", got)
	}
}

func TestRunTerminalStatesNotReprocessed(t *testing.T) {
	store, led, notif, eng := setup()
	store.add(payment(1, 10, "200.00", today), user(10, "asha@example.com"))
	led.balances["asha@example.com"] = dec("500.00")

	if _, err := eng.Run(context.Background(), today); err != nil {
		t.Fatalf("first run: %v", err)
	}
	sum, err := eng.Run(context.Background(), today)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if sum.Processed != 0 || sum.Failed != 0 {
		t.Fatalf("second run must be a no-op, got %+v", sum)
	}
	if got := led.balance("asha@example.com"); !got.Equal(dec("300.00")) {
		t.Fatalf("no double debit expected, got %s", got)
	}
	if len(notif.paid) != 1 {
		t.Fatalf("no duplicate notification expected, got %d", len(notif.paid))
	}
}

func TestRunLedgerAccountMissing(t *testing.T) {
	store, _, notif, eng := setup()
	store.add(payment(1, 10, "200.00", today), user(10, "ghost@example.com"))
	// no ledger record for ghost@example.com

	sum, err := eng.Run(context.Background(), today)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.Failed != 1 {
		t.Fatalf("expected one failed, got %+v", sum)
	}
	if got := store.status(1); got != domain.PaymentFailed {
		t.Fatalf("expected FAILED, got %s", got)
	}
	if len(notif.failed) != 1 || notif.failed[0].reason != domain.FailReasonAccountNotFound {
		t.Fatalf("expected account-not-found notification, got %+v", notif.failed)
	}
}

func TestRunLedgerLookupError(t *testing.T) {
	store, led, notif, eng := setup()
	store.add(payment(1, 10, "200.00", today), user(10, "asha@example.com"))
	led.lookupErr["asha@example.com"] = errors.New("ledger unreachable")

	sum, err := eng.Run(context.Background(), today)
	if err != nil {
		t.Fatalf("lookup failure must not abort the run: %v", err)
	}
	if sum.Failed != 1 {
		t.Fatalf("expected one failed, got %+v", sum)
	}
	if got := store.status(1); got != domain.PaymentFailed {
		t.Fatalf("expected FAILED, got %s", got)
	}
	if notif.failed[0].reason != domain.FailReasonSystem {
		t.Fatalf("expected system-error reason, got %q", notif.failed[0].reason)
	}
}

func TestRunBatchIsolation(t *testing.T) {
	store, led, notif, eng := setup()
	store.add(payment(1, 10, "100.00", today), user(10, "asha@example.com"))
	store.add(payment(2, 11, "100.00", today), user(11, "broken@example.com"))
	store.add(payment(3, 12, "100.00", today), user(12, "ravi@example.com"))
	led.balances["asha@example.com"] = dec("150.00")
	led.balances["ravi@example.com"] = dec("40.00")
	led.panicOn = "broken@example.com"

	sum, err := eng.Run(context.Background(), today)
	if err != nil {
		t.Fatalf("a panicking payment must not abort the batch: %v", err)
	}
	if sum.Processed != 1 || sum.Failed != 2 {
		t.Fatalf("expected {1 2}, got %+v", sum)
	}
	if got := store.status(1); got != domain.PaymentPaid {
		t.Fatalf("payment 1 should be PAID, got %s", got)
	}
	if got := store.status(2); got != domain.PaymentFailed {
		t.Fatalf("panicking payment should be forced FAILED, got %s", got)
	}
	if got := store.status(3); got != domain.PaymentFailed {
		t.Fatalf("payment 3 should be FAILED (insufficient), got %s", got)
	}
	if got := led.balance("asha@example.com"); !got.Equal(dec("50.00")) {
		t.Fatalf("payment 1 debit wrong: %s", got)
	}
	if got := led.balance("ravi@example.com"); !got.Equal(dec("40.00")) {
		t.Fatalf("failed payment must not debit: %s", got)
	}
	if len(notif.paid)+len(notif.failed) != 3 {
		t.Fatalf("every settled payment notifies once, got %d", len(notif.paid)+len(notif.failed))
	}
}

func TestRunClaimConflictSkipped(t *testing.T) {
	store, led, notif, eng := setup()
	store.add(payment(1, 10, "200.00", today), user(10, "asha@example.com"))
	store.add(payment(2, 10, "100.00", today), user(10, "asha@example.com"))
	led.balances["asha@example.com"] = dec("500.00")
	store.claimErr[1] = repository.ErrStatusConflict

	sum, err := eng.Run(context.Background(), today)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	// Claim conflicts are skipped, not failed.
	if sum.Processed != 1 || sum.Failed != 0 {
		t.Fatalf("expected {1 0}, got %+v", sum)
	}
	if got := store.status(1); got != domain.PaymentScheduled {
		t.Fatalf("conflicted payment stays for the next pass, got %s", got)
	}
	if got := led.balance("asha@example.com"); !got.Equal(dec("400.00")) {
		t.Fatalf("only the claimed payment debits, got %s", got)
	}
	if len(notif.failed) != 0 {
		t.Fatalf("a skipped payment must not notify failure")
	}
}

func TestRunDebitCommitError(t *testing.T) {
	store, led, notif, eng := setup()
	store.add(payment(1, 10, "200.00", today), user(10, "asha@example.com"))
	led.balances["asha@example.com"] = dec("500.00")
	led.setErr["asha@example.com"] = errors.New("write timeout")

	sum, err := eng.Run(context.Background(), today)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.Failed != 1 {
		t.Fatalf("expected one failed, got %+v", sum)
	}
	if got := store.status(1); got != domain.PaymentFailed {
		t.Fatalf("a failed debit must not leave the payment PENDING, got %s", got)
	}
	if notif.failed[0].reason != domain.FailReasonSystem {
		t.Fatalf("expected system-error reason, got %q", notif.failed[0].reason)
	}
}

func TestRunDebitRetriesAfterConcurrentDeposit(t *testing.T) {
	store, led, notif, eng := setup()
	store.add(payment(1, 10, "200.00", today), user(10, "asha@example.com"))
	led.balances["asha@example.com"] = dec("500.00")
	// A deposit lands between the engine's read and its conditional write.
	led.beforeSet = func(l *fakeLedger, email string) {
		l.balances[email] = dec("600.00")
	}

	sum, err := eng.Run(context.Background(), today)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.Processed != 1 || sum.Failed != 0 {
		t.Fatalf("expected {1 0}, got %+v", sum)
	}
	// Debited exactly once against the fresh balance; the deposit survives.
	if got := led.balance("asha@example.com"); !got.Equal(dec("400.00")) {
		t.Fatalf("expected 400.00 after deposit+debit, got %s", got)
	}
	if len(notif.paid) != 1 {
		t.Fatalf("expected one success notification, got %d", len(notif.paid))
	}
	if !notif.paid[0].balance.Equal(dec("400.00")) {
		t.Fatalf("notification carries stale balance: %s", notif.paid[0].balance)
	}
}

func TestRunDebitConflictBelowAmountFails(t *testing.T) {
	store, led, notif, eng := setup()
	store.add(payment(1, 10, "200.00", today), user(10, "asha@example.com"))
	led.balances["asha@example.com"] = dec("500.00")
	// A competing debit drains the account between read and write.
	led.beforeSet = func(l *fakeLedger, email string) {
		l.balances[email] = dec("50.00")
	}

	sum, err := eng.Run(context.Background(), today)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.Processed != 0 || sum.Failed != 1 {
		t.Fatalf("expected {0 1}, got %+v", sum)
	}
	if got := led.balance("asha@example.com"); !got.Equal(dec("50.00")) {
		t.Fatalf("failed payment must not debit, got %s", got)
	}
	if notif.failed[0].reason != domain.FailReasonInsufficient {
		t.Fatalf("expected insufficient-balance reason, got %q", notif.failed[0].reason)
	}
}

func TestRunPaidCommitErrorForcesFailed(t *testing.T) {
	store, led, notif, eng := setup()
	store.add(payment(1, 10, "200.00", today), user(10, "asha@example.com"))
	led.balances["asha@example.com"] = dec("500.00")

	// First Finalize (the PAID commit) errors, the forced FAILED succeeds.
	calls := 0
	eng.payments = finalizeOnce{store: store, failFirst: &calls}

	sum, err := eng.Run(context.Background(), today)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.Processed != 0 || sum.Failed != 1 {
		t.Fatalf("expected {0 1}, got %+v", sum)
	}
	if got := store.status(1); got != domain.PaymentFailed {
		t.Fatalf("expected forced FAILED, got %s", got)
	}
	if len(notif.failed) != 1 {
		t.Fatalf("expected one failure notification")
	}
}

// finalizeOnce wraps fakeStore to fail only the first Finalize call.
type finalizeOnce struct {
	store     *fakeStore
	failFirst *int
}

func (f finalizeOnce) FindDue(ctx context.Context, now time.Time) ([]models.Payment, error) {
	return f.store.FindDue(ctx, now)
}

func (f finalizeOnce) Claim(ctx context.Context, id uint) error {
	return f.store.Claim(ctx, id)
}

func (f finalizeOnce) Finalize(ctx context.Context, id uint, status string) error {
	if *f.failFirst == 0 {
		*f.failFirst++
		return errors.New("status commit lost")
	}
	return f.store.Finalize(ctx, id, status)
}

func TestRunStuckPendingWhenForcedFinalizeFails(t *testing.T) {
	store, led, notif, eng := setup()
	store.add(payment(1, 10, "200.00", today), user(10, "asha@example.com"))
	led.balances["asha@example.com"] = dec("500.00")
	store.finalizeErr[1] = errors.New("store down")

	sum, err := eng.Run(context.Background(), today)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.Failed != 1 {
		t.Fatalf("stuck payment still counts as failed, got %+v", sum)
	}
	if got := store.status(1); got != domain.PaymentPending {
		t.Fatalf("payment stays PENDING for manual reconciliation, got %s", got)
	}
	if len(notif.paid)+len(notif.failed) != 0 {
		t.Fatalf("no notification for an unfinalized payment")
	}
	// The next pass must not pick the PENDING row up again.
	sum2, err := eng.Run(context.Background(), today)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if sum2.Processed != 0 || sum2.Failed != 0 {
		t.Fatalf("PENDING row must not be re-selected, got %+v", sum2)
	}
}

func TestRunSelectionFailureAborts(t *testing.T) {
	store, _, _, eng := setup()
	store.findErr = errors.New("store unreachable")

	if _, err := eng.Run(context.Background(), today); err == nil {
		t.Fatal("selection failure must surface to the caller")
	}
}

func TestRunDecimalExactness(t *testing.T) {
	store, led, _, eng := setup()
	// 0.1+0.2 style amounts that drift under binary floating point.
	store.add(payment(1, 10, "0.10", today), user(10, "asha@example.com"))
	store.add(payment(2, 10, "0.20", today), user(10, "asha@example.com"))
	led.balances["asha@example.com"] = dec("0.30")

	sum, err := eng.Run(context.Background(), today)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.Processed != 2 || sum.Failed != 0 {
		t.Fatalf("expected both paid with exact decimal arithmetic, got %+v", sum)
	}
	if got := led.balance("asha@example.com"); !got.Equal(decimal.Zero) {
		t.Fatalf("expected residual 0.00 exactly, got %s", got)
	}
}
