package http

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	domain "p2p-credit-backend/internal/domain/loan"
	"p2p-credit-backend/internal/domain/offer"
	"p2p-credit-backend/internal/domain/repayment"
	"p2p-credit-backend/internal/usecase/loan"
)

type LoanHandler struct{ uc *loan.Usecase }

func NewLoanHandler(uc *loan.Usecase) *LoanHandler { return &LoanHandler{uc: uc} }

type requestLoanReq struct {
	BorrowerID  string          `json:"borrower_id"  validate:"required,hex32"`
	AccountID   string          `json:"account_id"   validate:"required"`
	Amount      decimal.Decimal `json:"amount"       validate:"money"`
	TermDays    int             `json:"term_days"    validate:"gte=0,lte=3650"`
	RiskProfile string          `json:"risk_profile" validate:"required,oneof=LOW MEDIUM HIGH"`
	CreditScore int             `json:"credit_score" validate:"gte=0,lte=1000"`
	Frequency   string          `json:"frequency"    validate:"omitempty,oneof=MONTHLY WEEKLY"`
}

func (h *LoanHandler) RequestLoan(c echo.Context) error {
	var req requestLoanReq
	if ok, err := decode(c, &req); !ok {
		return err
	}
	dto, err := h.uc.RequestLoan(c.Request().Context(), loan.RequestLoanInput{
		BorrowerID:        req.BorrowerID,
		BorrowerAccountID: req.AccountID,
		Amount:            req.Amount,
		TermDays:          req.TermDays,
		RiskProfile:       offer.RiskProfile(req.RiskProfile),
		CreditScore:       req.CreditScore,
		Frequency:         domain.Frequency(req.Frequency),
	})
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, dto)
}

func (h *LoanHandler) GetLoan(c echo.Context) error {
	dto, err := h.uc.Get(c.Request().Context(), c.Param("loan_id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, dto)
}

type repaymentReq struct {
	LoanID            string          `param:"loan_id"`
	InstallmentNumber int             `param:"installment_number" validate:"gt=0"`
	Amount            decimal.Decimal `json:"amount" validate:"money"`
	Method            string          `json:"method" validate:"omitempty,oneof=ACCOUNT EXTERNAL"`
}

func (h *LoanHandler) PostRepayment(c echo.Context) error {
	var req repaymentReq
	if ok, err := decode(c, &req); !ok {
		return err
	}
	rp, err := h.uc.PostRepayment(c.Request().Context(), loan.RepaymentInput{
		LoanID:            req.LoanID,
		InstallmentNumber: req.InstallmentNumber,
		Amount:            req.Amount,
		Method:            method(req.Method),
	})
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, rp)
}

type anticipateReq struct {
	LoanID            string `param:"loan_id"`
	InstallmentNumber int    `param:"installment_number" validate:"gt=0"`
	Method            string `json:"method" validate:"omitempty,oneof=ACCOUNT EXTERNAL"`
}

func (h *LoanHandler) Anticipate(c echo.Context) error {
	var req anticipateReq
	if ok, err := decode(c, &req); !ok {
		return err
	}
	rp, err := h.uc.Anticipate(c.Request().Context(), loan.AnticipateInput{
		LoanID:            req.LoanID,
		InstallmentNumber: req.InstallmentNumber,
		Method:            method(req.Method),
	})
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, rp)
}

type quoteReq struct {
	LoanID            string `param:"loan_id"`
	InstallmentNumber int    `param:"installment_number" validate:"gt=0"`
}

// Quote returns the discounted payoff for paying an installment today.
func (h *LoanHandler) Quote(c echo.Context) error {
	var req quoteReq
	if ok, err := decode(c, &req); !ok {
		return err
	}
	due, err := h.uc.Quote(c.Request().Context(), req.LoanID, req.InstallmentNumber)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"loan_id":            req.LoanID,
		"installment_number": req.InstallmentNumber,
		"payoff":             due,
	})
}

func method(s string) repayment.Method {
	if s == "" {
		return repayment.MethodAccount
	}
	return repayment.Method(s)
}
