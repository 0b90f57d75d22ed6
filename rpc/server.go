// Package rpc exposes the ledger engine over an authenticated JSON HTTP API.
// Operation endpoints commit state and return the side-effect instructions the
// caller must execute; query endpoints are read only.
package rpc

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"redbank/decimal"
	"redbank/redbank"
)

var (
	errTooManyRequests = errors.New("rate limit exceeded")
	errMissingAuth     = errors.New("missing or invalid bearer token")
	errBadAddress      = errors.New("invalid address")
)

// Config wires the server's dependencies.
type Config struct {
	Engine    *redbank.Engine
	AuthToken string
	RateLimit rate.Limit
	RateBurst int
	Log       *slog.Logger
	Metrics   http.Handler
	// Now supplies the ledger timestamp when a request omits one.
	Now func() uint64
}

// Server serves the ledger API.
type Server struct {
	engine    *redbank.Engine
	authToken string
	log       *slog.Logger
	metrics   http.Handler
	now       func() uint64
	limiter   *visitorLimiter
	router    http.Handler
}

// New builds a server from cfg. The auth token must be non-empty; every
// endpoint except health and metrics requires it.
func New(cfg Config) (*Server, error) {
	if cfg.Engine == nil {
		return nil, errors.New("rpc: engine is required")
	}
	if strings.TrimSpace(cfg.AuthToken) == "" {
		return nil, errors.New("rpc: auth token is required")
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = rate.Limit(20)
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = 40
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = func() uint64 { return uint64(time.Now().Unix()) }
	}
	srv := &Server{
		engine:    cfg.Engine,
		authToken: strings.TrimSpace(cfg.AuthToken),
		log:       cfg.Log,
		metrics:   cfg.Metrics,
		now:       cfg.Now,
		limiter:   newVisitorLimiter(cfg.RateLimit, cfg.RateBurst),
	}
	srv.router = srv.buildRouter()
	return srv, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.authenticate)
		r.Use(s.limiter.middleware)

		r.Post("/deposits", s.handleDeposit)
		r.Post("/withdrawals", s.handleWithdraw)
		r.Post("/borrows", s.handleBorrow)
		r.Post("/repayments", s.handleRepay)
		r.Post("/liquidations", s.handleLiquidate)
		r.Post("/collateral", s.handleCollateral)
		r.Post("/transfers/finalize", s.handleFinalizeTransfer)

		r.Post("/markets", s.handleCreateMarket)
		r.Put("/markets/{asset}", s.handleUpdateMarket)
		r.Post("/markets/{asset}/share-token", s.handleRegisterShareToken)
		r.Put("/limits", s.handleUpdateLimit)
		r.Put("/config", s.handleUpdateConfig)

		r.Get("/config", s.handleConfig)
		r.Get("/markets", s.handleMarkets)
		r.Get("/markets/{asset}", s.handleMarket)
		r.Get("/accounts/{address}/position", s.handlePosition)
		r.Get("/accounts/{address}/debts", s.handleDebts)
		r.Get("/accounts/{address}/debts/{asset}", s.handleDebt)
		r.Get("/accounts/{address}/collaterals", s.handleCollaterals)
		r.Get("/accounts/{address}/limits/{asset}", s.handleLimit)
	})

	return r
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(strings.TrimSpace(token)), []byte(s.authToken)) != 1 {
			writeError(w, http.StatusUnauthorized, errMissingAuth)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) timestamp(override *uint64) uint64 {
	if override != nil {
		return *override
	}
	return s.now()
}

func decodeRequest(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return false
	}
	return true
}

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(strings.TrimSpace(s)) {
		return common.Address{}, fmt.Errorf("%w: %q", errBadAddress, s)
	}
	return common.HexToAddress(strings.TrimSpace(s)), nil
}

func optionalAddress(s *string) (*common.Address, error) {
	if s == nil {
		return nil, nil
	}
	addr, err := parseAddress(*s)
	if err != nil {
		return nil, err
	}
	return &addr, nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorPayload{Error: err.Error()})
}

var errorStatus = []struct {
	err    error
	status int
}{
	{redbank.ErrPaused, http.StatusServiceUnavailable},
	{redbank.ErrUnauthorized, http.StatusForbidden},
	{redbank.ErrMarketNotFound, http.StatusNotFound},
	{redbank.ErrMarketExists, http.StatusConflict},
	{redbank.ErrAlreadyInitialized, http.StatusConflict},
	{redbank.ErrInvalidAmount, http.StatusBadRequest},
	{redbank.ErrInvalidWithdrawAmount, http.StatusBadRequest},
	{redbank.ErrMissingParams, http.StatusBadRequest},
	{redbank.ErrParamRange, http.StatusBadRequest},
	{redbank.ErrRateOrder, http.StatusBadRequest},
	{redbank.ErrMarginBelowLTV, http.StatusBadRequest},
	{redbank.ErrStrategyVariant, http.StatusBadRequest},
	{redbank.ErrStaleTimestamp, http.StatusBadRequest},
	{redbank.ErrMarketIndexOutOfRange, http.StatusUnprocessableEntity},
	{redbank.ErrMarketInactive, http.StatusUnprocessableEntity},
	{redbank.ErrDepositDisabled, http.StatusUnprocessableEntity},
	{redbank.ErrBorrowDisabled, http.StatusUnprocessableEntity},
	{redbank.ErrPositionRequired, http.StatusUnprocessableEntity},
	{redbank.ErrUserNoBalance, http.StatusUnprocessableEntity},
	{redbank.ErrNoCollateralBalance, http.StatusUnprocessableEntity},
	{redbank.ErrNoDebt, http.StatusUnprocessableEntity},
	{redbank.ErrHealthCheckFailed, http.StatusUnprocessableEntity},
	{redbank.ErrBorrowExceedsCollateral, http.StatusUnprocessableEntity},
	{redbank.ErrBorrowExceedsUncollateralizedLimit, http.StatusUnprocessableEntity},
	{redbank.ErrHealthyPosition, http.StatusUnprocessableEntity},
	{redbank.ErrUncollateralizedNotLiquidatable, http.StatusUnprocessableEntity},
	{redbank.ErrInsufficientLiquidity, http.StatusUnprocessableEntity},
}

func (s *Server) writeEngineError(w http.ResponseWriter, op string, err error) {
	for _, entry := range errorStatus {
		if errors.Is(err, entry.err) {
			writeError(w, entry.status, err)
			return
		}
	}
	s.log.Error("operation failed", "op", op, "error", err)
	writeError(w, http.StatusInternalServerError, err)
}

func (s *Server) writeOperation(w http.ResponseWriter, op string, res *redbank.Response, err error) {
	if err != nil {
		s.writeEngineError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, encodeResponse(res))
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	onBehalfOf, err := optionalAddress(req.OnBehalfOf)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	res, err := s.engine.Deposit(caller, redbank.ParseAsset(req.Asset), req.Amount.value, onBehalfOf, s.timestamp(req.Timestamp))
	s.writeOperation(w, "deposit", res, err)
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req withdrawRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	recipient, err := optionalAddress(req.Recipient)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var amount *big.Int
	if req.Amount != nil {
		amount = req.Amount.value
	}
	res, err := s.engine.Withdraw(caller, redbank.ParseAsset(req.Asset), amount, recipient, s.timestamp(req.Timestamp))
	s.writeOperation(w, "withdraw", res, err)
}

func (s *Server) handleBorrow(w http.ResponseWriter, r *http.Request) {
	var req borrowRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	recipient, err := optionalAddress(req.Recipient)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	res, err := s.engine.Borrow(caller, redbank.ParseAsset(req.Asset), req.Amount.value, recipient, s.timestamp(req.Timestamp))
	s.writeOperation(w, "borrow", res, err)
}

func (s *Server) handleRepay(w http.ResponseWriter, r *http.Request) {
	var req repayRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	onBehalfOf, err := optionalAddress(req.OnBehalfOf)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	res, err := s.engine.Repay(caller, redbank.ParseAsset(req.Asset), req.Amount.value, onBehalfOf, s.timestamp(req.Timestamp))
	s.writeOperation(w, "repay", res, err)
}

func (s *Server) handleLiquidate(w http.ResponseWriter, r *http.Request) {
	var req liquidateRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	account, err := parseAddress(req.Account)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	res, err := s.engine.Liquidate(caller,
		redbank.ParseAsset(req.CollateralAsset), redbank.ParseAsset(req.DebtAsset),
		account, req.Amount.value, req.ReceiveShares, s.timestamp(req.Timestamp))
	s.writeOperation(w, "liquidate", res, err)
}

func (s *Server) handleCollateral(w http.ResponseWriter, r *http.Request) {
	var req collateralRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	res, err := s.engine.SetAssetCollateral(caller, redbank.ParseAsset(req.Asset), req.Enable, s.timestamp(req.Timestamp))
	s.writeOperation(w, "set_collateral", res, err)
}

func (s *Server) handleFinalizeTransfer(w http.ResponseWriter, r *http.Request) {
	var req finalizeTransferRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	from, err := parseAddress(req.From)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	to, err := parseAddress(req.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	res, err := s.engine.FinalizeTransfer(caller, from, to,
		req.FromPreviousBalance.value, req.ToPreviousBalance.value, req.AmountScaled.value,
		s.timestamp(req.Timestamp))
	s.writeOperation(w, "finalize_transfer", res, err)
}

type marketParamsRequest struct {
	Caller            string                     `json:"caller"`
	Asset             string                     `json:"asset,omitempty"`
	MaxLoanToValue    *decimal.Decimal           `json:"maxLoanToValue,omitempty"`
	MaintenanceMargin *decimal.Decimal           `json:"maintenanceMargin,omitempty"`
	LiquidationBonus  *decimal.Decimal           `json:"liquidationBonus,omitempty"`
	ReserveFactor     *decimal.Decimal           `json:"reserveFactor,omitempty"`
	Active            *bool                      `json:"active,omitempty"`
	DepositEnabled    *bool                      `json:"depositEnabled,omitempty"`
	BorrowEnabled     *bool                      `json:"borrowEnabled,omitempty"`
	Linear            *redbank.LinearRateConfig  `json:"linear,omitempty"`
	Dynamic           *redbank.DynamicRateConfig `json:"dynamic,omitempty"`
	Timestamp         *uint64                    `json:"timestamp,omitempty"`
}

func (r *marketParamsRequest) params() (redbank.MarketParams, error) {
	params := redbank.MarketParams{
		MaxLoanToValue:    r.MaxLoanToValue,
		MaintenanceMargin: r.MaintenanceMargin,
		LiquidationBonus:  r.LiquidationBonus,
		ReserveFactor:     r.ReserveFactor,
		Active:            r.Active,
		DepositEnabled:    r.DepositEnabled,
		BorrowEnabled:     r.BorrowEnabled,
	}
	if r.Linear != nil || r.Dynamic != nil {
		listing := redbank.MarketConfig{Linear: r.Linear, Dynamic: r.Dynamic}
		strategy, err := listing.Strategy()
		if err != nil {
			return redbank.MarketParams{}, err
		}
		params.InterestRateStrategy = strategy
	}
	return params, nil
}

func (s *Server) handleCreateMarket(w http.ResponseWriter, r *http.Request) {
	var req marketParamsRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	params, err := req.params()
	if err != nil {
		s.writeEngineError(w, "create_market", err)
		return
	}
	res, err := s.engine.CreateMarket(caller, redbank.ParseAsset(req.Asset), params, s.timestamp(req.Timestamp))
	s.writeOperation(w, "create_market", res, err)
}

func (s *Server) handleUpdateMarket(w http.ResponseWriter, r *http.Request) {
	var req marketParamsRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	params, err := req.params()
	if err != nil {
		s.writeEngineError(w, "update_market", err)
		return
	}
	asset := redbank.ParseAsset(chi.URLParam(r, "asset"))
	res, err := s.engine.UpdateMarket(caller, asset, params, s.timestamp(req.Timestamp))
	s.writeOperation(w, "update_market", res, err)
}

type registerShareTokenRequest struct {
	Token     string  `json:"token"`
	Timestamp *uint64 `json:"timestamp,omitempty"`
}

func (s *Server) handleRegisterShareToken(w http.ResponseWriter, r *http.Request) {
	var req registerShareTokenRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	token, err := parseAddress(req.Token)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	asset := redbank.ParseAsset(chi.URLParam(r, "asset"))
	res, err := s.engine.RegisterShareToken(asset, token, s.timestamp(req.Timestamp))
	s.writeOperation(w, "register_share_token", res, err)
}

func (s *Server) handleUpdateLimit(w http.ResponseWriter, r *http.Request) {
	var req limitRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	account, err := parseAddress(req.Account)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	res, err := s.engine.UpdateUncollateralizedLimit(caller, redbank.ParseAsset(req.Asset), account, req.Limit.value, s.timestamp(req.Timestamp))
	s.writeOperation(w, "update_uncollateralized_limit", res, err)
}

type updateConfigRequest struct {
	Caller      string          `json:"caller"`
	Owner       string          `json:"owner"`
	CloseFactor decimal.Decimal `json:"closeFactor"`
}

func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	var req updateConfigRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	owner, err := parseAddress(req.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	res, err := s.engine.UpdateConfig(caller, &redbank.Config{Owner: owner, CloseFactor: req.CloseFactor})
	s.writeOperation(w, "update_config", res, err)
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.engine.ConfigView()
	if err != nil {
		s.writeEngineError(w, "config_view", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"owner":       cfg.Owner.Hex(),
		"closeFactor": cfg.CloseFactor.String(),
	})
}

func (s *Server) handleMarkets(w http.ResponseWriter, r *http.Request) {
	snapshots, err := s.engine.MarketSnapshots()
	if err != nil {
		s.writeEngineError(w, "markets_view", err)
		return
	}
	out := make([]marketPayload, 0, len(snapshots))
	for _, snap := range snapshots {
		out = append(out, encodeMarket(snap))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleMarket(w http.ResponseWriter, r *http.Request) {
	snapshot, err := s.engine.MarketSnapshot(redbank.ParseAsset(chi.URLParam(r, "asset")))
	if err != nil {
		s.writeEngineError(w, "market_view", err)
		return
	}
	writeJSON(w, http.StatusOK, encodeMarket(snapshot))
}

func (s *Server) handlePosition(w http.ResponseWriter, r *http.Request) {
	account, err := parseAddress(chi.URLParam(r, "address"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	view, err := s.engine.UserPositionAt(account, s.now())
	if err != nil {
		s.writeEngineError(w, "position_view", err)
		return
	}
	payload := positionPayload{
		TotalCollateralValue:           view.Position.TotalCollateralValue.String(),
		TotalDebtValue:                 view.Position.TotalDebtValue.String(),
		TotalCollateralizedDebtValue:   view.Position.TotalCollateralizedDebtValue.String(),
		MaxBorrowableValue:             view.Position.MaxBorrowableValue.String(),
		WeightedMaintenanceMarginValue: view.Position.WeightedMaintenanceMarginValue.String(),
		Borrowing:                      view.Health.Borrowing,
	}
	if view.Health.Borrowing {
		payload.HealthFactor = view.Health.HealthFactor.String()
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleDebt(w http.ResponseWriter, r *http.Request) {
	account, err := parseAddress(chi.URLParam(r, "address"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	debt, err := s.engine.UserDebt(account, redbank.ParseAsset(chi.URLParam(r, "asset")), s.now())
	if err != nil {
		s.writeEngineError(w, "debt_view", err)
		return
	}
	writeJSON(w, http.StatusOK, debtPayload{
		Asset:            debt.Asset.Label(),
		Amount:           debt.Amount.String(),
		AmountScaled:     debt.AmountScaled.String(),
		Uncollateralized: debt.Uncollateralized,
	})
}

func (s *Server) handleDebts(w http.ResponseWriter, r *http.Request) {
	account, err := parseAddress(chi.URLParam(r, "address"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	debts, err := s.engine.UserDebts(account, s.now())
	if err != nil {
		s.writeEngineError(w, "debts_view", err)
		return
	}
	out := make([]debtPayload, 0, len(debts))
	for _, debt := range debts {
		out = append(out, debtPayload{
			Asset:            debt.Asset.Label(),
			Amount:           debt.Amount.String(),
			AmountScaled:     debt.AmountScaled.String(),
			Uncollateralized: debt.Uncollateralized,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCollaterals(w http.ResponseWriter, r *http.Request) {
	account, err := parseAddress(chi.URLParam(r, "address"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	collaterals, err := s.engine.UserCollaterals(account, s.now())
	if err != nil {
		s.writeEngineError(w, "collaterals_view", err)
		return
	}
	out := make([]collateralPayload, 0, len(collaterals))
	for _, col := range collaterals {
		out = append(out, collateralPayload{
			Asset:        col.Asset.Label(),
			Enabled:      col.Enabled,
			Amount:       col.Amount.String(),
			AmountScaled: col.AmountScaled.String(),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleLimit(w http.ResponseWriter, r *http.Request) {
	account, err := parseAddress(chi.URLParam(r, "address"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	limit, err := s.engine.UncollateralizedLimitOf(account, redbank.ParseAsset(chi.URLParam(r, "asset")))
	if err != nil {
		s.writeEngineError(w, "limit_view", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"limit": limit.String()})
}
