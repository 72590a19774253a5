package ledger

import "context"

type Repository interface {
	Create(ctx context.Context, t *Transaction) error
	ListByAccount(ctx context.Context, accountID string, f Filter) ([]Transaction, error)
	ListByLoan(ctx context.Context, loanID string) ([]Transaction, error)
}
