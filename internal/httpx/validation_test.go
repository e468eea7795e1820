package httpx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Chengenchong/PayLentine-Backend/internal/apperr"
)

type sample struct {
	RecipientID string `json:"recipient_id" validate:"required"`
	Amount      string `json:"amount" validate:"required,positive_amount"`
	Currency    string `json:"currency" validate:"required,currency"`
}

func TestValidateStruct(t *testing.T) {
	tests := []struct {
		name  string
		in    sample
		field string
	}{
		{"valid", sample{RecipientID: "bob", Amount: "10.50", Currency: "usd"}, ""},
		{"missing recipient", sample{Amount: "10", Currency: "USD"}, "recipient_id"},
		{"negative amount", sample{RecipientID: "bob", Amount: "-1", Currency: "USD"}, "amount"},
		{"sub-cent amount", sample{RecipientID: "bob", Amount: "0.001", Currency: "USD"}, "amount"},
		{"not a number", sample{RecipientID: "bob", Amount: "ten", Currency: "USD"}, "amount"},
		{"long currency", sample{RecipientID: "bob", Amount: "1", Currency: "USDT"}, "currency"},
		{"digit currency", sample{RecipientID: "bob", Amount: "1", Currency: "U5D"}, "currency"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStruct(tt.in)
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			var ae *apperr.Error
			require.ErrorAs(t, err, &ae)
			assert.Equal(t, apperr.Validation, ae.Kind)
			assert.Equal(t, tt.field, ae.Field)
		})
	}
}
