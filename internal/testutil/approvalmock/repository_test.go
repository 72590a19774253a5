package approvalmock

import (
	"context"
	"errors"
	"testing"

	domain "p2p-credit-backend/internal/domain/approval"
)

func TestRepo_Create(t *testing.T) {
	ctx := context.Background()
	a := &domain.Approval{ApprovalID: "APR-1", LoanID: "LN-1"}

	called := false
	wantErr := errors.New("boom")
	m := &Repo{
		CreateFn: func(_ context.Context, got *domain.Approval) error {
			called = true
			if got != a {
				t.Fatalf("arg mismatch")
			}
			return wantErr
		},
	}
	if err := m.Create(ctx, a); !errors.Is(err, wantErr) {
		t.Fatalf("Create: want %v, got %v", wantErr, err)
	}
	if !called {
		t.Fatalf("CreateFn not called")
	}
	if err := (&Repo{}).Create(ctx, a); err != nil {
		t.Fatalf("Create default: %v", err)
	}
}

func TestRepo_Getters(t *testing.T) {
	ctx := context.Background()
	want := &domain.Approval{ApprovalID: "APR-2", LoanID: "LN-2"}
	m := &Repo{
		GetByLoanIDFn: func(_ context.Context, loanID string) (*domain.Approval, error) {
			if loanID != "LN-2" {
				t.Fatalf("loanID mismatch: %s", loanID)
			}
			return want, nil
		},
		GetByApprovalIDFn: func(_ context.Context, approvalID string) (*domain.Approval, error) {
			return want, nil
		},
	}
	if got, err := m.GetByLoanID(ctx, "LN-2"); err != nil || got != want {
		t.Fatalf("GetByLoanID: %+v %v", got, err)
	}
	if got, err := m.GetByApprovalID(ctx, "APR-2"); err != nil || got != want {
		t.Fatalf("GetByApprovalID: %+v %v", got, err)
	}

	m = &Repo{}
	if _, err := m.GetByLoanID(ctx, "x"); !errors.Is(err, context.Canceled) {
		t.Fatalf("GetByLoanID default: %v", err)
	}
	if _, err := m.GetByApprovalID(ctx, "x"); !errors.Is(err, context.Canceled) {
		t.Fatalf("GetByApprovalID default: %v", err)
	}
}
