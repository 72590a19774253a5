package http

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"p2p-credit-backend/internal/domain/account"
	ledgerDomain "p2p-credit-backend/internal/domain/ledger"
	"p2p-credit-backend/internal/usecase/ledger"
)

type AccountHandler struct{ ledger *ledger.Service }

func NewAccountHandler(l *ledger.Service) *AccountHandler { return &AccountHandler{ledger: l} }

type openAccountReq struct {
	OwnerID string `json:"owner_id" validate:"required,hex32"`
	Kind    string `json:"kind"     validate:"required,oneof=INVESTOR BORROWER"`
}

func (h *AccountHandler) Open(c echo.Context) error {
	var req openAccountReq
	if ok, err := decode(c, &req); !ok {
		return err
	}
	acc, err := h.ledger.OpenAccount(c.Request().Context(), req.OwnerID, account.Kind(req.Kind))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, acc)
}

type balanceResp struct {
	AccountID string          `json:"account_id"`
	Balance   decimal.Decimal `json:"balance"`
	Status    account.Status  `json:"status"`
}

func (h *AccountHandler) Balance(c echo.Context) error {
	acc, err := h.ledger.GetAccount(c.Request().Context(), c.Param("account_id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, balanceResp{AccountID: acc.ID, Balance: acc.Balance, Status: acc.Status})
}

type historyReq struct {
	AccountID string    `param:"account_id"`
	LoanID    string    `query:"loan_id"`
	TxType    string    `query:"tx_type"   validate:"omitempty,oneof=DEPOSIT WITHDRAWAL TRANSFER LOAN_DISBURSEMENT LOAN_REPAYMENT FEE REFUND"`
	Direction string    `query:"direction" validate:"omitempty,oneof=IN OUT"`
	From      time.Time `query:"from"`
	To        time.Time `query:"to"`
	Limit     int       `query:"limit"     validate:"gte=0,lte=500"`
	Offset    int       `query:"offset"    validate:"gte=0"`
}

func (h *AccountHandler) Transactions(c echo.Context) error {
	var req historyReq
	if ok, err := decode(c, &req); !ok {
		return err
	}
	f := ledgerDomain.Filter{
		LoanID:    req.LoanID,
		TxType:    ledgerDomain.TxType(req.TxType),
		Direction: ledgerDomain.Direction(req.Direction),
		From:      req.From,
		To:        req.To,
		Limit:     req.Limit,
		Offset:    req.Offset,
	}
	if f.Limit == 0 {
		f.Limit = 100
	}
	txs, err := h.ledger.GetHistory(c.Request().Context(), req.AccountID, f)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"account_id": req.AccountID, "transactions": txs})
}

type moneyReq struct {
	AccountID string          `param:"account_id"`
	Amount    decimal.Decimal `json:"amount"    validate:"money"`
	Reference string          `json:"reference" validate:"max=128"`
}

func (h *AccountHandler) Deposit(c echo.Context) error {
	var req moneyReq
	if ok, err := decode(c, &req); !ok {
		return err
	}
	tx, err := h.ledger.Deposit(c.Request().Context(), req.AccountID, req.Amount, req.Reference)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, tx)
}

func (h *AccountHandler) Withdraw(c echo.Context) error {
	var req moneyReq
	if ok, err := decode(c, &req); !ok {
		return err
	}
	tx, err := h.ledger.Withdraw(c.Request().Context(), req.AccountID, req.Amount, req.Reference)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, tx)
}
