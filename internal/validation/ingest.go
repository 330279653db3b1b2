package validation

import (
	"fmt"
	"strings"

	"github.com/openfolio/engine/internal/api/request"
)

// ValidTransactionSide contains the allowed transaction side values.
var ValidTransactionSide = map[string]bool{
	"buy": true, "sell": true,
}

// ValidActionType contains the allowed corporate action type values.
var ValidActionType = map[string]bool{
	"split": true, "cash_dividend": true, "stock_dividend": true, "delist": true,
}

// ValidateIngestTransaction validates a transaction ingest request.
//
// Required fields:
//   - accountId, instrumentId: valid UUIDs
//   - side: buy or sell
//   - quantity, price: positive; fee: non-negative
//   - tradeDate, settlementDate: YYYY-MM-DD, settlement not before trade
//   - idempotencyKey: non-empty
func ValidateIngestTransaction(req request.IngestTransactionRequest) error {
	errors := make(map[string]string)

	if err := ValidateUUID(req.AccountID); err != nil {
		errors["accountId"] = err.Error()
	}
	if err := ValidateUUID(req.InstrumentID); err != nil {
		errors["instrumentId"] = err.Error()
	}

	if strings.TrimSpace(req.Side) == "" {
		errors["side"] = "side is required"
	} else if !ValidTransactionSide[req.Side] {
		errors["side"] = fmt.Sprintf("invalid side: %s", req.Side)
	}

	if req.Quantity <= 0 {
		errors["quantity"] = "quantity must be positive"
	}
	if req.Price <= 0 {
		errors["price"] = "price must be positive"
	}
	if req.Fee < 0 {
		errors["fee"] = "fee must not be negative"
	}

	checkDate(errors, "tradeDate", req.TradeDate)
	checkDate(errors, "settlementDate", req.SettlementDate)
	if errors["tradeDate"] == "" && errors["settlementDate"] == "" {
		if _, _, err := ValidateDateRange(req.TradeDate, req.SettlementDate); err != nil {
			errors["settlementDate"] = "settlement date precedes trade date"
		}
	}

	if strings.TrimSpace(req.IdempotencyKey) == "" {
		errors["idempotencyKey"] = "idempotencyKey is required"
	}

	for _, lotID := range req.SpecificLots {
		if err := ValidateUUID(lotID); err != nil {
			errors["specificLots"] = err.Error()
			break
		}
	}

	if len(errors) > 0 {
		return &Error{Fields: errors}
	}
	return nil
}

// ValidateIngestAction validates a corporate action ingest request.
// Splits and stock dividends require a positive ratio; cash dividends
// a positive per-share amount.
func ValidateIngestAction(req request.IngestActionRequest) error {
	errors := make(map[string]string)

	if err := ValidateUUID(req.InstrumentID); err != nil {
		errors["instrumentId"] = err.Error()
	}

	if strings.TrimSpace(req.Type) == "" {
		errors["type"] = "type is required"
	} else if !ValidActionType[req.Type] {
		errors["type"] = fmt.Sprintf("invalid type: %s", req.Type)
	}

	checkDate(errors, "effectiveDate", req.EffectiveDate)

	switch req.Type {
	case "split", "stock_dividend":
		if req.Ratio <= 0 {
			errors["ratio"] = "ratio must be positive"
		}
	case "cash_dividend":
		if req.Amount <= 0 {
			errors["amount"] = "amount must be positive"
		}
	}

	if strings.TrimSpace(req.IdempotencyKey) == "" {
		errors["idempotencyKey"] = "idempotencyKey is required"
	}

	if len(errors) > 0 {
		return &Error{Fields: errors}
	}
	return nil
}
