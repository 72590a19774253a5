package http_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"p2p-credit-backend/internal/adapter/executor/memory"
	httpadp "p2p-credit-backend/internal/adapter/http"
	"p2p-credit-backend/internal/adapter/middleware"
	"p2p-credit-backend/internal/app"
	"p2p-credit-backend/internal/config"
	"p2p-credit-backend/internal/domain/account"
	"p2p-credit-backend/internal/domain/escrow"
	"p2p-credit-backend/internal/domain/loan"
	"p2p-credit-backend/internal/domain/repayment"
	"p2p-credit-backend/internal/logger"
	"p2p-credit-backend/internal/testutil/dbtest"
	"p2p-credit-backend/internal/usecase/approval"
	loanUC "p2p-credit-backend/internal/usecase/loan"
	"p2p-credit-backend/internal/usecase/reconciliation"
)

const webhookSecret = "whsec-test"

var (
	investorID  = strings.Repeat("1", 32)
	borrowerID  = strings.Repeat("2", 32)
	validatorID = strings.Repeat("e", 32)
	clientID    = strings.Repeat("c", 32)
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type api struct {
	t     *testing.T
	e     *echo.Echo
	clock time.Time
}

func newAPI(t *testing.T) *api {
	t.Helper()
	cfg := &config.Config{
		IdempTTLSecs:     300,
		WebhookDedupeTTL: time.Hour,
		RateLimit:        1000,
		RateLimitPeriod:  time.Minute,
		WebhookSecret:    webhookSecret,
		ExecutorTimeout:  time.Second,
		PenaltyDailyRate: d("0.001"),
		LateFeeRate:      d("0.02"),
		DefaultAfterDays: 90,
	}
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	a := &api{t: t, clock: time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)}
	svc := app.NewServices(cfg, dbtest.Open(t), memory.New(), logger.Discard(), func() time.Time { return a.clock })
	e, err := app.NewServer(cfg, svc, rdb, logger.Discard())
	require.NoError(t, err)
	a.e = e
	return a
}

func (a *api) send(method, path string, body any, hdr map[string]string) *httptest.ResponseRecorder {
	a.t.Helper()
	var r *bytes.Reader
	switch b := body.(type) {
	case nil:
		r = bytes.NewReader(nil)
	case string:
		r = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(a.t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	return rec
}

// do sends a request with fresh idempotency headers.
func (a *api) do(method, path string, body any) *httptest.ResponseRecorder {
	a.t.Helper()
	return a.send(method, path, body, headers(uuid.NewString()))
}

func headers(key string) map[string]string {
	return map[string]string{
		middleware.HeaderIdempotencyKey: key,
		middleware.HeaderRequestAt:      time.Now().UTC().Format(time.RFC3339),
		middleware.HeaderClientID:       clientID,
	}
}

func decodeAs[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (a *api) openAccount(owner, kind string, deposit string) string {
	a.t.Helper()
	rec := a.do(http.MethodPost, "/accounts", map[string]any{"owner_id": owner, "kind": kind})
	require.Equal(a.t, http.StatusCreated, rec.Code, rec.Body.String())
	acc := decodeAs[account.Account](a.t, rec)
	if deposit != "" {
		rec = a.do(http.MethodPost, "/accounts/"+acc.ID+"/deposits", map[string]any{"amount": deposit, "reference": "seed"})
		require.Equal(a.t, http.StatusCreated, rec.Code, rec.Body.String())
	}
	return acc.ID
}

func (a *api) balance(accountID string) string {
	a.t.Helper()
	rec := a.do(http.MethodGet, "/accounts/"+accountID+"/balance", nil)
	require.Equal(a.t, http.StatusOK, rec.Code, rec.Body.String())
	return decodeAs[struct {
		Balance decimal.Decimal `json:"balance"`
	}](a.t, rec).Balance.StringFixed(2)
}

type market struct {
	investor string
	borrower string
	loan     *loanUC.LoanDTO
}

// matched opens both parties, posts a 5000 @ 15% offer and requests a loan
// against it.
func (a *api) matched() market {
	a.t.Helper()
	m := market{
		investor: a.openAccount(investorID, "INVESTOR", "7000"),
		borrower: a.openAccount(borrowerID, "BORROWER", ""),
	}
	rec := a.do(http.MethodPost, "/offers", map[string]any{
		"account_id": m.investor, "amount": "5000", "rate": "0.15", "term_days": 180, "risk_profile": "LOW",
	})
	require.Equal(a.t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = a.do(http.MethodPost, "/loans", map[string]any{
		"borrower_id": borrowerID, "account_id": m.borrower, "amount": "5000",
		"term_days": 180, "risk_profile": "LOW", "credit_score": 700,
	})
	require.Equal(a.t, http.StatusCreated, rec.Code, rec.Body.String())
	dto := decodeAs[loanUC.LoanDTO](a.t, rec)
	m.loan = &dto
	return m
}

func TestHealth(t *testing.T) {
	a := newAPI(t)
	rec := a.send(http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	assert.Contains(t, rec.Body.String(), `"time":"2026-04-01T09:00:00Z"`)
}

func TestLoanLifecycleOverHTTP(t *testing.T) {
	a := newAPI(t)
	m := a.matched()

	assert.Equal(t, loan.StatusPending, m.loan.Status)
	assert.Equal(t, escrow.HoldPending, m.loan.HoldStatus)
	assert.Equal(t, "2000.00", a.balance(m.investor))

	rec := a.do(http.MethodPost, "/loans/"+m.loan.LoanID+"/approve", map[string]any{
		"evidence_url": "https://docs.example.com/visit.jpg", "validator_employee_id": validatorID,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	dec := decodeAs[approval.ApprovalDTO](t, rec)
	assert.Equal(t, loan.StatusActive, dec.LoanStatus)
	assert.Equal(t, escrow.HoldReleased, dec.HoldStatus)
	assert.Equal(t, "5000.00", a.balance(m.borrower))

	rec = a.do(http.MethodGet, "/approvals/"+dec.ApprovalID, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), m.loan.LoanID)
	rec = a.do(http.MethodGet, "/approvals/"+strings.Repeat("0", 32), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = a.do(http.MethodGet, "/loans/"+m.loan.LoanID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeAs[loanUC.LoanDTO](t, rec)
	require.Len(t, got.Schedule, 6)
	assert.Equal(t, "870.17", got.Schedule[0].AmountDue().StringFixed(2))
	assert.Equal(t, "62.50", got.Schedule[0].InterestComponent.StringFixed(2))

	// overpayment is capped to the amount due
	rec = a.do(http.MethodPost, "/loans/"+m.loan.LoanID+"/repayments/1", map[string]any{"amount": "900"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rp := decodeAs[repayment.Repayment](t, rec)
	assert.Equal(t, repayment.StatusPaid, rp.Status)
	assert.Equal(t, "870.17", rp.TotalPaid.StringFixed(2))
	assert.Equal(t, "4129.83", a.balance(m.borrower))
	assert.Equal(t, "2870.17", a.balance(m.investor))

	rec = a.do(http.MethodPost, "/loans/"+m.loan.LoanID+"/repayments/1", map[string]any{"amount": "900"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "INSTALLMENT_SETTLED")

	rec = a.do(http.MethodGet, "/reconciliation/loans/"+m.loan.LoanID, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	report := decodeAs[reconciliation.Report](t, rec)
	assert.True(t, report.Matched, "%+v", report.Discrepancies)

	rec = a.do(http.MethodGet, "/reconciliation/portfolio", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	pf := decodeAs[reconciliation.PortfolioReport](t, rec)
	assert.Equal(t, 1, pf.Total)
	assert.Equal(t, 1, pf.Reconciled)
	assert.True(t, pf.Percentage.Equal(d("100")))
}

func TestRepaymentBelowDueIsRejected(t *testing.T) {
	a := newAPI(t)
	m := a.matched()
	rec := a.do(http.MethodPost, "/loans/"+m.loan.LoanID+"/approve", map[string]any{
		"evidence_url": "https://docs.example.com/visit.jpg", "validator_employee_id": validatorID,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = a.do(http.MethodPost, "/loans/"+m.loan.LoanID+"/repayments/1", map[string]any{"amount": "100"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "PAYMENT_BELOW_DUE", decodeAs[httpadp.ErrorResponse](t, rec).Code)

	rec = a.do(http.MethodPost, "/loans/"+m.loan.LoanID+"/repayments/0", map[string]any{"amount": "100"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestRejectRefundsInvestor(t *testing.T) {
	a := newAPI(t)
	m := a.matched()

	rec := a.do(http.MethodPost, "/loans/"+m.loan.LoanID+"/reject", map[string]any{
		"validator_employee_id": validatorID, "reason": "income not verified",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	dec := decodeAs[approval.ApprovalDTO](t, rec)
	assert.Equal(t, loan.StatusCancelled, dec.LoanStatus)
	assert.Equal(t, escrow.HoldRefunded, dec.HoldStatus)
	assert.Equal(t, "7000.00", a.balance(m.investor))

	// the opposite decision is a conflict
	rec = a.do(http.MethodPost, "/loans/"+m.loan.LoanID+"/approve", map[string]any{
		"evidence_url": "https://docs.example.com/visit.jpg", "validator_employee_id": validatorID,
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestDisputeResolvedByRefund(t *testing.T) {
	a := newAPI(t)
	m := a.matched()

	rec := a.do(http.MethodPost, "/loans/"+m.loan.LoanID+"/dispute", map[string]any{"reason": "documents look forged"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, escrow.HoldDispute, decodeAs[escrow.Hold](t, rec).Status)

	rec = a.do(http.MethodPost, "/loans/"+m.loan.LoanID+"/dispute/resolve", map[string]any{"outcome": "SPLIT", "resolved_by": validatorID})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = a.do(http.MethodPost, "/loans/"+m.loan.LoanID+"/dispute/resolve", map[string]any{"outcome": "REFUND", "resolved_by": validatorID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decodeAs[struct {
		LoanStatus loan.Status `json:"loan_status"`
		Hold       escrow.Hold `json:"hold"`
	}](t, rec)
	assert.Equal(t, escrow.HoldRefunded, res.Hold.Status)
	assert.Equal(t, loan.StatusCancelled, res.LoanStatus)
	assert.Equal(t, "7000.00", a.balance(m.investor))

	rec = a.do(http.MethodGet, "/loans/"+m.loan.LoanID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, loan.StatusCancelled, decodeAs[loanUC.LoanDTO](t, rec).Status)

	rec = a.do(http.MethodGet, "/loans/"+m.loan.LoanID+"/escrow", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	events := decodeAs[struct {
		Events []escrow.Event `json:"events"`
	}](t, rec).Events
	require.NotEmpty(t, events)
	for i, ev := range events {
		assert.Equal(t, i+1, ev.Sequence)
	}
}

func TestRequestLoanErrors(t *testing.T) {
	a := newAPI(t)
	bor := a.openAccount(borrowerID, "BORROWER", "")

	rec := a.do(http.MethodPost, "/loans", "{")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(http.MethodPost, "/loans", map[string]any{"borrower_id": "nope", "amount": "0"})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	resp := decodeAs[httpadp.ErrorResponse](t, rec)
	assert.Equal(t, "validation failed", resp.Error)
	fields := map[string]bool{}
	for _, fe := range resp.Details {
		fields[fe.Field] = true
	}
	assert.True(t, fields["BorrowerID"])
	assert.True(t, fields["Amount"])
	assert.True(t, fields["RiskProfile"])

	rec = a.do(http.MethodPost, "/loans", map[string]any{
		"borrower_id": borrowerID, "account_id": bor, "amount": "5000", "risk_profile": "HIGH",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NO_MATCH_FOUND", decodeAs[httpadp.ErrorResponse](t, rec).Code)

	rec = a.do(http.MethodGet, "/loans/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "LOAN_NOT_FOUND", decodeAs[httpadp.ErrorResponse](t, rec).Code)
}

func TestOffersListAndCancel(t *testing.T) {
	a := newAPI(t)
	inv := a.openAccount(investorID, "INVESTOR", "1000")

	rec := a.do(http.MethodPost, "/offers", map[string]any{
		"account_id": inv, "amount": "5000", "rate": "0.12", "term_days": 90, "risk_profile": "MEDIUM",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, "offer above the investor balance")
	assert.Equal(t, "INSUFFICIENT_FUNDS", decodeAs[httpadp.ErrorResponse](t, rec).Code)

	rec = a.do(http.MethodPost, "/offers", map[string]any{
		"account_id": inv, "amount": "800", "rate": "1.5", "term_days": 90, "risk_profile": "MEDIUM",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = a.do(http.MethodPost, "/offers", map[string]any{
		"account_id": inv, "amount": "800", "rate": "0.12", "term_days": 90, "risk_profile": "MEDIUM",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	offerID := decodeAs[struct {
		ID string `json:"offer_id"`
	}](t, rec).ID

	rec = a.do(http.MethodGet, "/offers?risk_profile=MEDIUM", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), offerID)

	rec = a.do(http.MethodPost, "/offers/"+offerID+"/cancel", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = a.do(http.MethodPost, "/offers/"+offerID+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = a.do(http.MethodGet, "/offers?risk_profile=MEDIUM", nil)
	assert.NotContains(t, rec.Body.String(), offerID)
}

func TestDepositReplayedByIdempotencyKey(t *testing.T) {
	a := newAPI(t)
	acc := a.openAccount(investorID, "INVESTOR", "")

	key := uuid.NewString()
	body := map[string]any{"amount": "100.50"}
	first := a.send(http.MethodPost, "/accounts/"+acc+"/deposits", body, headers(key))
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())
	second := a.send(http.MethodPost, "/accounts/"+acc+"/deposits", body, headers(key))
	require.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "100.50", a.balance(acc))

	rec := a.send(http.MethodPost, "/accounts/"+acc+"/deposits", body, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "mutations need an idempotency key")

	rec = a.do(http.MethodGet, "/accounts/"+acc+"/transactions?tx_type=DEPOSIT", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	txs := decodeAs[struct {
		Transactions []map[string]any `json:"transactions"`
	}](t, rec).Transactions
	assert.Len(t, txs, 1)
}

func TestEscrowWebhook(t *testing.T) {
	a := newAPI(t)
	m := a.matched()

	post := func(body, sig string) *httptest.ResponseRecorder {
		return a.send(http.MethodPost, "/webhooks/escrow", body, map[string]string{httpadp.HeaderSignature: sig})
	}
	payload := `{"event_id":"evt-1","hold_id":"` + m.loan.HoldID + `","status":"DEPOSITED","tx_ref":"0xabc"}`

	rec := post(payload, "deadbeef")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = post(payload, httpadp.Sign([]byte(webhookSecret), []byte(payload)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"duplicate":false`)

	rec = post(payload, httpadp.Sign([]byte(webhookSecret), []byte(payload)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"duplicate":true`)

	// a failed delivery is not remembered, so the sender may retry it
	unknown := `{"event_id":"evt-2","hold_id":"` + uuid.NewString() + `","status":"RELEASED"}`
	for i := 0; i < 2; i++ {
		rec = post(unknown, httpadp.Sign([]byte(webhookSecret), []byte(unknown)))
		assert.Equal(t, http.StatusNotFound, rec.Code, rec.Body.String())
	}
}
