package funding

import "github.com/shopspring/decimal"

// CardInRequest captures user-provided data to fund a wallet from a card.
type CardInRequest struct {
	CardNumber string `json:"card_number" validate:"required,min=12,max=23"`
	Expiry     string `json:"expiry" validate:"required,len=5"`
	CVV        string `json:"cvv" validate:"required,numeric,min=3,max=4"`
	Amount     string `json:"amount" validate:"required,positive_amount"`
	Currency   string `json:"currency" validate:"omitempty,currency"`
	ClientTxID string `json:"client_tx_id" validate:"max=128"`
}

// CardOutRequest captures withdrawal details to push funds to a card.
type CardOutRequest struct {
	CardNumber string `json:"card_number" validate:"required,min=12,max=23"`
	Amount     string `json:"amount" validate:"required,positive_amount"`
	Currency   string `json:"currency" validate:"omitempty,currency"`
	ClientTxID string `json:"client_tx_id" validate:"max=128"`
}

// FundingResponse represents the API response for card funding actions.
type FundingResponse struct {
	Reference         string          `json:"reference"`
	Status            string          `json:"status"`
	Currency          string          `json:"currency"`
	WalletBalance     decimal.Decimal `json:"wallet_balance"`
	AcquirerReference string          `json:"acquirer_reference"`
}
