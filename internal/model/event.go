package model

import "time"

// EventType identifies an update event pushed to the fan-out layer.
type EventType string

// Published event types.
const (
	EventPositionChanged  EventType = "PositionChanged"
	EventValuationUpdated EventType = "ValuationUpdated"
	EventRiskAlertRaised  EventType = "RiskAlertRaised"
)

// Event is an incremental update pushed to the external fan-out layer.
// Publishing is fire-and-forget: when the sink is slow, older
// unpublished events of the same type for the same account are dropped
// so consumers converge to the latest state.
type Event struct {
	Type               EventType   `json:"type"`
	AccountID          string      `json:"accountId"`
	Timestamp          time.Time   `json:"timestamp"`
	CalculationVersion string      `json:"calculationVersion"`
	Payload            interface{} `json:"payload"`
}

// RiskAlert is the payload of a RiskAlertRaised event, emitted when a
// risk metric crosses its configured threshold.
type RiskAlert struct {
	Metric    string  `json:"metric"`
	Value     float64 `json:"value"`
	Threshold float64 `json:"threshold"`
}
