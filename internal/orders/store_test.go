package orders

import (
	"context"
	"errors"
	"testing"
	"time"
)

func testOrder(id string) *Order {
	return &Order{
		OrderID:     id,
		MerchantID:  "m-1",
		Email:       "jo@example.com",
		Phone:       "+911234567890",
		Customer:    Customer{Name: "Jo", Pincode: "560001"},
		Amount:      499,
		Currency:    "INR",
		PaymentMode: PaymentCOD,
		Status:      StatusPending,
	}
}

func TestCreateAndGet(t *testing.T) {
	mock := newSimpleMock()
	s := NewStore(mock, "orders")
	ctx := context.Background()

	if err := s.Create(ctx, testOrder("o-1")); err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if err := s.Create(ctx, testOrder("o-1")); err == nil {
		t.Fatalf("expected duplicate create to fail")
	}

	got, err := s.Get(ctx, "o-1")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got == nil || got.Status != StatusPending {
		t.Fatalf("unexpected order: %+v", got)
	}

	missing, err := s.Get(ctx, "o-none")
	if err != nil || missing != nil {
		t.Fatalf("expected (nil, nil) for missing order, got (%v, %v)", missing, err)
	}
}

func TestTransitionStatus(t *testing.T) {
	mock := newSimpleMock()
	s := NewStore(mock, "orders")
	ctx := context.Background()

	if err := s.Create(ctx, testOrder("o-1")); err != nil {
		t.Fatalf("Create error: %v", err)
	}

	if err := s.TransitionStatus(ctx, "o-1", StatusPending, StatusCanceled); err != nil {
		t.Fatalf("pending -> canceled should succeed: %v", err)
	}

	// canceled is terminal
	err := s.TransitionStatus(ctx, "o-1", StatusCanceled, StatusConfirmed)
	if !errors.Is(err, ErrInvalidStatusTransition) {
		t.Fatalf("expected ErrInvalidStatusTransition, got %v", err)
	}

	// legal move whose expected status lost a race
	err = s.TransitionStatus(ctx, "o-1", StatusPending, StatusConfirmed)
	if !errors.Is(err, ErrStatusConflict) {
		t.Fatalf("expected ErrStatusConflict, got %v", err)
	}

	got, _ := s.Get(ctx, "o-1")
	if got.Status != StatusCanceled {
		t.Fatalf("status mutated by rejected transition: %s", got.Status)
	}
}

func TestTransitionStatusConfirmedToFulfilled(t *testing.T) {
	mock := newSimpleMock()
	s := NewStore(mock, "orders")
	ctx := context.Background()

	if err := s.Create(ctx, testOrder("o-1")); err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if err := s.TransitionStatus(ctx, "o-1", StatusPending, StatusConfirmed); err != nil {
		t.Fatalf("pending -> confirmed: %v", err)
	}
	if err := s.TransitionStatus(ctx, "o-1", StatusConfirmed, StatusFulfilled); err != nil {
		t.Fatalf("confirmed -> fulfilled: %v", err)
	}
	err := s.TransitionStatus(ctx, "o-1", StatusFulfilled, StatusCanceled)
	if !errors.Is(err, ErrInvalidStatusTransition) {
		t.Fatalf("fulfilled must be terminal, got %v", err)
	}
}

func TestAppendConfirmationsAndFindByMessageID(t *testing.T) {
	mock := newSimpleMock()
	s := NewStore(mock, "orders")
	ctx := context.Background()

	if err := s.Create(ctx, testOrder("o-1")); err != nil {
		t.Fatalf("Create error: %v", err)
	}

	now := time.Now().UTC()
	confs := []Confirmation{
		{Channel: ChannelChat, Status: DeliverySent, MessageID: "wamid.1", SentAt: &now},
		{Channel: ChannelSMS, Status: DeliveryFailed, Error: "provider not configured"},
	}
	if err := s.AppendConfirmations(ctx, "o-1", confs); err != nil {
		t.Fatalf("AppendConfirmations error: %v", err)
	}

	got, _ := s.Get(ctx, "o-1")
	if len(got.Confirmations) != 2 {
		t.Fatalf("expected 2 confirmations, got %d", len(got.Confirmations))
	}

	byMsg, err := s.FindByMessageID(ctx, "wamid.1")
	if err != nil {
		t.Fatalf("FindByMessageID error: %v", err)
	}
	if byMsg == nil || byMsg.OrderID != "o-1" {
		t.Fatalf("message index lookup failed: %+v", byMsg)
	}

	none, err := s.FindByMessageID(ctx, "wamid.unknown")
	if err != nil || none != nil {
		t.Fatalf("expected no order for unknown message id")
	}
}

func TestReplaceConfirmation(t *testing.T) {
	mock := newSimpleMock()
	s := NewStore(mock, "orders")
	ctx := context.Background()

	if err := s.Create(ctx, testOrder("o-1")); err != nil {
		t.Fatalf("Create error: %v", err)
	}
	now := time.Now().UTC()
	if err := s.AppendConfirmations(ctx, "o-1", []Confirmation{
		{Channel: ChannelChat, Status: DeliverySent, MessageID: "wamid.1", SentAt: &now},
	}); err != nil {
		t.Fatalf("AppendConfirmations error: %v", err)
	}

	updated := Confirmation{
		Channel: ChannelChat, Status: DeliveryReplied, MessageID: "wamid.1",
		Reply: "yes", SentAt: &now, RepliedAt: &now,
	}
	if err := s.ReplaceConfirmation(ctx, "o-1", 0, updated); err != nil {
		t.Fatalf("ReplaceConfirmation error: %v", err)
	}

	got, _ := s.Get(ctx, "o-1")
	if got.Confirmations[0].Status != DeliveryReplied || got.Confirmations[0].Reply != "yes" {
		t.Fatalf("confirmation not replaced: %+v", got.Confirmations[0])
	}

	// guard: message id mismatch must not overwrite
	mismatch := updated
	mismatch.MessageID = "wamid.other"
	if err := s.ReplaceConfirmation(ctx, "o-1", 0, mismatch); err == nil {
		t.Fatalf("expected guard failure on message id mismatch")
	}
}

func TestAppendAutoAction(t *testing.T) {
	mock := newSimpleMock()
	s := NewStore(mock, "orders")
	ctx := context.Background()

	if err := s.Create(ctx, testOrder("o-1")); err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if err := s.AppendAutoAction(ctx, "o-1", AutoAction{Type: ActionAutoCancel, At: time.Now().UTC()}); err != nil {
		t.Fatalf("AppendAutoAction error: %v", err)
	}
	got, _ := s.Get(ctx, "o-1")
	if len(got.AutoActions) != 1 || got.AutoActions[0].Type != ActionAutoCancel {
		t.Fatalf("auto action not recorded: %+v", got.AutoActions)
	}

	if err := s.AppendAutoAction(ctx, "o-missing", AutoAction{Type: ActionAutoCancel}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFindPendingByPhone(t *testing.T) {
	mock := newSimpleMock()
	s := NewStore(mock, "orders")
	ctx := context.Background()

	older := testOrder("o-old")
	older.CreatedAt = time.Now().UTC().Add(-2 * time.Hour)
	if err := s.Create(ctx, older); err != nil {
		t.Fatalf("Create error: %v", err)
	}
	newer := testOrder("o-new")
	if err := s.Create(ctx, newer); err != nil {
		t.Fatalf("Create error: %v", err)
	}
	resolved := testOrder("o-done")
	resolved.Status = StatusConfirmed
	if err := s.Create(ctx, resolved); err != nil {
		t.Fatalf("Create error: %v", err)
	}

	got, err := s.FindPendingByPhone(ctx, "+911234567890")
	if err != nil {
		t.Fatalf("FindPendingByPhone error: %v", err)
	}
	if got == nil || got.OrderID != "o-new" {
		t.Fatalf("expected newest pending order, got %+v", got)
	}

	none, err := s.FindPendingByPhone(ctx, "+910000000000")
	if err != nil || none != nil {
		t.Fatalf("expected (nil, nil) for unknown phone, got (%v, %v)", none, err)
	}
}

func TestListPendingOlderThan(t *testing.T) {
	mock := newSimpleMock()
	s := NewStore(mock, "orders")
	ctx := context.Background()

	old := testOrder("o-old")
	old.CreatedAt = time.Now().UTC().Add(-48 * time.Hour)
	if err := s.Create(ctx, old); err != nil {
		t.Fatalf("Create error: %v", err)
	}
	fresh := testOrder("o-fresh")
	if err := s.Create(ctx, fresh); err != nil {
		t.Fatalf("Create error: %v", err)
	}
	other := testOrder("o-other")
	other.MerchantID = "m-2"
	other.CreatedAt = time.Now().UTC().Add(-48 * time.Hour)
	if err := s.Create(ctx, other); err != nil {
		t.Fatalf("Create error: %v", err)
	}

	got, err := s.ListPendingOlderThan(ctx, "m-1", time.Now().UTC().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("ListPendingOlderThan error: %v", err)
	}
	if len(got) != 1 || got[0].OrderID != "o-old" {
		t.Fatalf("expected only o-old, got %+v", got)
	}
}
