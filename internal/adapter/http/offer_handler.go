package http

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"p2p-credit-backend/internal/domain/offer"
	"p2p-credit-backend/internal/usecase/matching"
)

type OfferHandler struct{ engine *matching.Engine }

func NewOfferHandler(e *matching.Engine) *OfferHandler { return &OfferHandler{engine: e} }

type createOfferReq struct {
	AccountID      string          `json:"account_id"       validate:"required"`
	Amount         decimal.Decimal `json:"amount"           validate:"money"`
	Rate           decimal.Decimal `json:"rate"             validate:"rate"`
	TermDays       int             `json:"term_days"        validate:"gt=0,lte=3650"`
	RiskProfile    string          `json:"risk_profile"     validate:"required,oneof=LOW MEDIUM HIGH"`
	MinCreditScore int             `json:"min_credit_score" validate:"gte=0"`
	ExpiresAt      *time.Time      `json:"expires_at"`
}

func (h *OfferHandler) Create(c echo.Context) error {
	var req createOfferReq
	if ok, err := decode(c, &req); !ok {
		return err
	}
	o, err := h.engine.CreateOffer(c.Request().Context(), matching.CreateOfferInput{
		InvestorAccountID: req.AccountID,
		Amount:            req.Amount,
		Rate:              req.Rate,
		TermDays:          req.TermDays,
		RiskProfile:       offer.RiskProfile(req.RiskProfile),
		MinCreditScore:    req.MinCreditScore,
		ExpiresAt:         req.ExpiresAt,
	})
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, o)
}

func (h *OfferHandler) Cancel(c echo.Context) error {
	o, err := h.engine.CancelOffer(c.Request().Context(), c.Param("offer_id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, o)
}

type listOffersReq struct {
	RiskProfile string `query:"risk_profile" validate:"omitempty,oneof=LOW MEDIUM HIGH"`
	Limit       int    `query:"limit"        validate:"gte=0,lte=500"`
}

func (h *OfferHandler) List(c echo.Context) error {
	var req listOffersReq
	if ok, err := decode(c, &req); !ok {
		return err
	}
	if req.Limit == 0 {
		req.Limit = 50
	}
	offers, err := h.engine.ListOpen(c.Request().Context(), offer.RiskProfile(req.RiskProfile), req.Limit)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"offers": offers})
}

func (h *OfferHandler) Get(c echo.Context) error {
	o, err := h.engine.GetOffer(c.Request().Context(), c.Param("offer_id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, o)
}
