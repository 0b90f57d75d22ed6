package rpc

import (
	"encoding/json"
	"fmt"
	"math/big"

	"redbank/redbank"
)

// amount is a JSON string carrying an arbitrary-precision integer.
type amount struct {
	value *big.Int
}

func (a amount) MarshalJSON() ([]byte, error) {
	if a.value == nil {
		return []byte(`"0"`), nil
	}
	return json.Marshal(a.value.String())
}

func (a *amount) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return fmt.Errorf("invalid amount %q", s)
	}
	a.value = v
	return nil
}

type depositRequest struct {
	Caller     string  `json:"caller"`
	Asset      string  `json:"asset"`
	Amount     amount  `json:"amount"`
	OnBehalfOf *string `json:"onBehalfOf,omitempty"`
	Timestamp  *uint64 `json:"timestamp,omitempty"`
}

type withdrawRequest struct {
	Caller    string  `json:"caller"`
	Asset     string  `json:"asset"`
	Amount    *amount `json:"amount,omitempty"`
	Recipient *string `json:"recipient,omitempty"`
	Timestamp *uint64 `json:"timestamp,omitempty"`
}

type borrowRequest struct {
	Caller    string  `json:"caller"`
	Asset     string  `json:"asset"`
	Amount    amount  `json:"amount"`
	Recipient *string `json:"recipient,omitempty"`
	Timestamp *uint64 `json:"timestamp,omitempty"`
}

type repayRequest struct {
	Caller     string  `json:"caller"`
	Asset      string  `json:"asset"`
	Amount     amount  `json:"amount"`
	OnBehalfOf *string `json:"onBehalfOf,omitempty"`
	Timestamp  *uint64 `json:"timestamp,omitempty"`
}

type liquidateRequest struct {
	Caller          string  `json:"caller"`
	CollateralAsset string  `json:"collateralAsset"`
	DebtAsset       string  `json:"debtAsset"`
	Account         string  `json:"account"`
	Amount          amount  `json:"amount"`
	ReceiveShares   bool    `json:"receiveShares"`
	Timestamp       *uint64 `json:"timestamp,omitempty"`
}

type collateralRequest struct {
	Caller    string  `json:"caller"`
	Asset     string  `json:"asset"`
	Enable    bool    `json:"enable"`
	Timestamp *uint64 `json:"timestamp,omitempty"`
}

type finalizeTransferRequest struct {
	Caller              string  `json:"caller"`
	From                string  `json:"from"`
	To                  string  `json:"to"`
	FromPreviousBalance amount  `json:"fromPreviousBalance"`
	ToPreviousBalance   amount  `json:"toPreviousBalance"`
	AmountScaled        amount  `json:"amountScaled"`
	Timestamp           *uint64 `json:"timestamp,omitempty"`
}

type limitRequest struct {
	Caller    string  `json:"caller"`
	Asset     string  `json:"asset"`
	Account   string  `json:"account"`
	Limit     amount  `json:"limit"`
	Timestamp *uint64 `json:"timestamp,omitempty"`
}

type eventPayload struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

type instructionPayload struct {
	Type      string `json:"type"`
	Token     string `json:"token,omitempty"`
	Asset     string `json:"asset,omitempty"`
	From      string `json:"from,omitempty"`
	To        string `json:"to,omitempty"`
	Name      string `json:"name,omitempty"`
	Symbol    string `json:"symbol,omitempty"`
	Amount    string `json:"amount,omitempty"`
}

type operationResponse struct {
	Attributes   map[string]string    `json:"attributes"`
	Events       []eventPayload       `json:"events"`
	Instructions []instructionPayload `json:"instructions"`
}

func encodeResponse(res *redbank.Response) operationResponse {
	out := operationResponse{
		Attributes:   make(map[string]string, len(res.Attributes)),
		Events:       make([]eventPayload, 0, len(res.Events)),
		Instructions: make([]instructionPayload, 0, len(res.Instructions)),
	}
	for _, attr := range res.Attributes {
		out.Attributes[attr.Key] = attr.Value
	}
	for _, ev := range res.Events {
		out.Events = append(out.Events, eventPayload{Type: ev.EventType(), Attributes: ev.Attributes()})
	}
	for _, in := range res.Instructions {
		switch instr := in.(type) {
		case redbank.MintShares:
			out.Instructions = append(out.Instructions, instructionPayload{
				Type: "mint_shares", Token: instr.Token.Hex(), To: instr.Recipient.Hex(), Amount: instr.Amount.String(),
			})
		case redbank.BurnShares:
			out.Instructions = append(out.Instructions, instructionPayload{
				Type: "burn_shares", Token: instr.Token.Hex(), From: instr.Holder.Hex(), Amount: instr.Amount.String(),
			})
		case redbank.TransferSharesOnLiquidation:
			out.Instructions = append(out.Instructions, instructionPayload{
				Type: "transfer_shares", Token: instr.Token.Hex(), From: instr.From.Hex(), To: instr.To.Hex(), Amount: instr.Amount.String(),
			})
		case redbank.DeployShareToken:
			out.Instructions = append(out.Instructions, instructionPayload{
				Type: "deploy_share_token", Asset: instr.Asset.Label(), Name: instr.Name, Symbol: instr.Symbol,
			})
		case redbank.SendAsset:
			out.Instructions = append(out.Instructions, instructionPayload{
				Type: "send_asset", Asset: instr.Asset.Label(), To: instr.Recipient.Hex(), Amount: instr.Amount.String(),
			})
		}
	}
	return out
}

type marketPayload struct {
	Asset                 string `json:"asset"`
	Index                 uint32 `json:"index"`
	ShareToken            string `json:"shareToken"`
	LiquidityIndex        string `json:"liquidityIndex"`
	BorrowIndex           string `json:"borrowIndex"`
	LiquidityRate         string `json:"liquidityRate"`
	BorrowRate            string `json:"borrowRate"`
	MaxLoanToValue        string `json:"maxLoanToValue"`
	MaintenanceMargin     string `json:"maintenanceMargin"`
	LiquidationBonus      string `json:"liquidationBonus"`
	ReserveFactor         string `json:"reserveFactor"`
	DebtTotalScaled       string `json:"debtTotalScaled"`
	CollateralTotalScaled string `json:"collateralTotalScaled"`
	IndexesLastUpdated    uint64 `json:"indexesLastUpdated"`
	Active                bool   `json:"active"`
	DepositEnabled        bool   `json:"depositEnabled"`
	BorrowEnabled         bool   `json:"borrowEnabled"`
}

func encodeMarket(snap *redbank.MarketSnapshotView) marketPayload {
	m := snap.Market
	return marketPayload{
		Asset:                 m.Asset.Label(),
		Index:                 m.Index,
		ShareToken:            m.ShareToken.Hex(),
		LiquidityIndex:        m.LiquidityIndex.String(),
		BorrowIndex:           m.BorrowIndex.String(),
		LiquidityRate:         m.LiquidityRate.String(),
		BorrowRate:            m.BorrowRate.String(),
		MaxLoanToValue:        m.MaxLoanToValue.String(),
		MaintenanceMargin:     m.MaintenanceMargin.String(),
		LiquidationBonus:      m.LiquidationBonus.String(),
		ReserveFactor:         m.ReserveFactor.String(),
		DebtTotalScaled:       m.DebtTotalScaled.String(),
		CollateralTotalScaled: snap.CollateralTotalScaled.String(),
		IndexesLastUpdated:    m.IndexesLastUpdated,
		Active:                m.Active,
		DepositEnabled:        m.DepositEnabled,
		BorrowEnabled:         m.BorrowEnabled,
	}
}

type debtPayload struct {
	Asset            string `json:"asset"`
	Amount           string `json:"amount"`
	AmountScaled     string `json:"amountScaled"`
	Uncollateralized bool   `json:"uncollateralized"`
}

type collateralPayload struct {
	Asset        string `json:"asset"`
	Enabled      bool   `json:"enabled"`
	Amount       string `json:"amount"`
	AmountScaled string `json:"amountScaled"`
}

type positionPayload struct {
	TotalCollateralValue           string `json:"totalCollateralValue"`
	TotalDebtValue                 string `json:"totalDebtValue"`
	TotalCollateralizedDebtValue   string `json:"totalCollateralizedDebtValue"`
	MaxBorrowableValue             string `json:"maxBorrowableValue"`
	WeightedMaintenanceMarginValue string `json:"weightedMaintenanceMarginValue"`
	Borrowing                      bool   `json:"borrowing"`
	HealthFactor                   string `json:"healthFactor,omitempty"`
}

type errorPayload struct {
	Error string `json:"error"`
}
