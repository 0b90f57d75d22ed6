package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"redbank/decimal"
	"redbank/redbank"
	"redbank/storage"
)

const testToken = "secret-token"

var (
	testPool  = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	testOwner = common.HexToAddress("0x00000000000000000000000000000000000000ee")
	testUser  = common.HexToAddress("0x0000000000000000000000000000000000000001")
)

type stubOracle struct{ prices map[string]*big.Int }

func (o *stubOracle) PriceOf(asset redbank.Asset) (*big.Int, error) {
	price, ok := o.prices[asset.Label()]
	if !ok {
		return nil, fmt.Errorf("no price for %s", asset.Label())
	}
	return new(big.Int).Set(price), nil
}

type stubTokens struct{ balances map[string]*big.Int }

func (t *stubTokens) key(token, account common.Address) string {
	return token.Hex() + "/" + account.Hex()
}

func (t *stubTokens) BalanceOf(token, account common.Address) (*big.Int, error) {
	if bal, ok := t.balances[t.key(token, account)]; ok {
		return new(big.Int).Set(bal), nil
	}
	return new(big.Int), nil
}

func (t *stubTokens) TotalSupply(common.Address) (*big.Int, error) {
	total := new(big.Int)
	for _, bal := range t.balances {
		total.Add(total, bal)
	}
	return total, nil
}

func (t *stubTokens) credit(token, account common.Address, amount int64) {
	key := t.key(token, account)
	if t.balances[key] == nil {
		t.balances[key] = new(big.Int)
	}
	t.balances[key].Add(t.balances[key], big.NewInt(amount))
}

type stubBank struct{ balances map[string]*big.Int }

func (b *stubBank) AssetBalance(asset redbank.Asset, _ common.Address) (*big.Int, error) {
	if bal, ok := b.balances[asset.Label()]; ok {
		return new(big.Int).Set(bal), nil
	}
	return new(big.Int), nil
}

type stubRegistry struct{ roles map[string]common.Address }

func (r *stubRegistry) Resolve(role string) (common.Address, error) {
	addr, ok := r.roles[role]
	if !ok {
		return common.Address{}, fmt.Errorf("unknown role %s", role)
	}
	return addr, nil
}

type serverEnv struct {
	srv    *Server
	tokens *stubTokens
	bank   *stubBank
}

func newServerEnv(t *testing.T, limit rate.Limit, burst int) *serverEnv {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)

	engine := redbank.NewEngine(testPool)
	engine.SetState(redbank.NewStore(db))
	engine.SetOracle(&stubOracle{prices: map[string]*big.Int{"uusd": big.NewInt(1)}})
	tokens := &stubTokens{balances: make(map[string]*big.Int)}
	engine.SetTokenSource(tokens)
	bank := &stubBank{balances: make(map[string]*big.Int)}
	engine.SetBankSource(bank)
	engine.SetRegistry(&stubRegistry{roles: map[string]common.Address{
		redbank.RoleRewardsCollector: common.HexToAddress("0x00000000000000000000000000000000000000cc"),
	}})
	require.NoError(t, engine.Bootstrap(&redbank.Config{
		Owner:       testOwner,
		CloseFactor: decimal.MustParse("0.5"),
	}))

	srv, err := New(Config{
		Engine:    engine,
		AuthToken: testToken,
		RateLimit: limit,
		RateBurst: burst,
		Now:       func() uint64 { return 100 },
	})
	require.NoError(t, err)
	return &serverEnv{srv: srv, tokens: tokens, bank: bank}
}

func (env *serverEnv) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func (env *serverEnv) listMarket(t *testing.T) {
	t.Helper()
	rec := env.do(t, http.MethodPost, "/v1/markets", map[string]any{
		"caller":            testOwner.Hex(),
		"asset":             "uusd",
		"maxLoanToValue":    "0.5",
		"maintenanceMargin": "0.6",
		"liquidationBonus":  "0.1",
		"reserveFactor":     "0.2",
		"active":            true,
		"depositEnabled":    true,
		"borrowEnabled":     true,
		"linear": map[string]string{
			"OptimalUtilization": "0.8",
			"Base":               "0",
			"Slope1":             "0.07",
			"Slope2":             "0.45",
		},
		"timestamp": 100,
	}, testToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var created operationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.Len(t, created.Instructions, 1)
	require.Equal(t, "deploy_share_token", created.Instructions[0].Type)

	rec = env.do(t, http.MethodPost, "/v1/markets/uusd/share-token", map[string]any{
		"token":     "0x00000000000000000000000000000000000000f1",
		"timestamp": 100,
	}, testToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestHealthzNeedsNoAuth(t *testing.T) {
	env := newServerEnv(t, 100, 100)
	rec := env.do(t, http.MethodGet, "/healthz", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthRequired(t *testing.T) {
	env := newServerEnv(t, 100, 100)

	rec := env.do(t, http.MethodGet, "/v1/markets", nil, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodGet, "/v1/markets", nil, "wrong-token")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodGet, "/v1/markets", nil, testToken)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestMarketLifecycleAndDeposit(t *testing.T) {
	env := newServerEnv(t, 100, 100)
	env.listMarket(t)

	rec := env.do(t, http.MethodGet, "/v1/markets/uusd", nil, testToken)
	require.Equal(t, http.StatusOK, rec.Code)
	var market marketPayload
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &market))
	require.Equal(t, "uusd", market.Asset)
	require.Equal(t, common.HexToAddress("0x00000000000000000000000000000000000000f1").Hex(), market.ShareToken)
	require.Equal(t, "1", market.LiquidityIndex)
	require.Equal(t, "0", market.CollateralTotalScaled)

	env.bank.balances["uusd"] = big.NewInt(1000)
	rec = env.do(t, http.MethodPost, "/v1/deposits", map[string]any{
		"caller":    testUser.Hex(),
		"asset":     "uusd",
		"amount":    "1000",
		"timestamp": 100,
	}, testToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res operationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.Len(t, res.Instructions, 1)
	require.Equal(t, "mint_shares", res.Instructions[0].Type)
	require.Equal(t, "1000000000", res.Instructions[0].Amount)
	require.Equal(t, testUser.Hex(), res.Instructions[0].To)

	env.tokens.credit(common.HexToAddress("0x00000000000000000000000000000000000000f1"), testUser, 1_000_000_000)
	rec = env.do(t, http.MethodGet, "/v1/markets/uusd", nil, testToken)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &market))
	require.Equal(t, "1000000000", market.CollateralTotalScaled)

	rec = env.do(t, http.MethodGet, "/v1/accounts/"+testUser.Hex()+"/position", nil, testToken)
	require.Equal(t, http.StatusOK, rec.Code)
	var position positionPayload
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &position))
	require.Equal(t, "1000", position.TotalCollateralValue)
	require.False(t, position.Borrowing)
}

func TestDepositUnknownMarketMapsNotFound(t *testing.T) {
	env := newServerEnv(t, 100, 100)
	rec := env.do(t, http.MethodPost, "/v1/deposits", map[string]any{
		"caller":    testUser.Hex(),
		"asset":     "ughost",
		"amount":    "1000",
		"timestamp": 100,
	}, testToken)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateMarketByStrangerMapsForbidden(t *testing.T) {
	env := newServerEnv(t, 100, 100)
	rec := env.do(t, http.MethodPost, "/v1/markets", map[string]any{
		"caller":            testUser.Hex(),
		"asset":             "uusd",
		"maxLoanToValue":    "0.5",
		"maintenanceMargin": "0.6",
		"liquidationBonus":  "0.1",
		"reserveFactor":     "0.2",
		"active":            true,
		"depositEnabled":    true,
		"borrowEnabled":     true,
		"linear":            map[string]string{"OptimalUtilization": "0.8"},
		"timestamp":         100,
	}, testToken)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestMalformedAmountRejected(t *testing.T) {
	env := newServerEnv(t, 100, 100)
	rec := env.do(t, http.MethodPost, "/v1/deposits", map[string]any{
		"caller":    testUser.Hex(),
		"asset":     "uusd",
		"amount":    "not-a-number",
		"timestamp": 100,
	}, testToken)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBadCallerAddressRejected(t *testing.T) {
	env := newServerEnv(t, 100, 100)
	rec := env.do(t, http.MethodPost, "/v1/deposits", map[string]any{
		"caller":    "not-an-address",
		"asset":     "uusd",
		"amount":    "1000",
		"timestamp": 100,
	}, testToken)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRateLimitExceeded(t *testing.T) {
	env := newServerEnv(t, 1, 1)

	rec := env.do(t, http.MethodGet, "/v1/markets", nil, testToken)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/v1/markets", nil, testToken)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestUpdateConfigRoundTrip(t *testing.T) {
	env := newServerEnv(t, 100, 100)

	rec := env.do(t, http.MethodPut, "/v1/config", map[string]any{
		"caller":      testOwner.Hex(),
		"owner":       testOwner.Hex(),
		"closeFactor": "0.4",
	}, testToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/v1/config", nil, testToken)
	require.Equal(t, http.StatusOK, rec.Code)
	var cfg map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cfg))
	require.Equal(t, "0.4", cfg["closeFactor"])
	require.Equal(t, testOwner.Hex(), cfg["owner"])
}
