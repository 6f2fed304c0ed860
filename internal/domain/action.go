package domain

import "time"

// ActionKind enumerates the decisions the risk engine can emit for a position.
type ActionKind string

const (
	ActionNone               ActionKind = "NONE"
	ActionPartialTakeProfit  ActionKind = "PARTIAL_TAKE_PROFIT"
	ActionStopLossExit       ActionKind = "STOP_LOSS_EXIT"
	ActionTrailingStopUpdate ActionKind = "TRAILING_STOP_UPDATE"
	ActionManualExit         ActionKind = "MANUAL_EXIT"
)

// Action is a single decision to apply to a position.
//
// Level is the take-profit multiplier for PARTIAL_TAKE_PROFIT. Quantity is the
// token amount to sell for exit kinds. StopLossPrice carries the new stop for
// TRAILING_STOP_UPDATE. Attempts and LastError are only set on exits that
// failed to execute and are waiting to be retried.
type Action struct {
	Kind          ActionKind `json:"kind"`
	PositionID    string     `json:"position_id"`
	Level         float64    `json:"level,omitempty"`
	Quantity      float64    `json:"quantity,omitempty"`
	Price         float64    `json:"price"`
	StopLossPrice float64    `json:"stop_loss_price,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	Attempts      int        `json:"attempts,omitempty"`
	LastError     string     `json:"last_error,omitempty"`
}

// IsExit reports whether the action sells tokens.
func (a Action) IsExit() bool {
	switch a.Kind {
	case ActionPartialTakeProfit, ActionStopLossExit, ActionManualExit:
		return true
	}
	return false
}

// IsFullExit reports whether the action liquidates everything that is left.
func (a Action) IsFullExit() bool {
	return a.Kind == ActionStopLossExit || a.Kind == ActionManualExit
}

// ExitReason maps an exit action to the reason recorded on the fill.
func (a Action) ExitReason() ExitReason {
	switch a.Kind {
	case ActionStopLossExit:
		return ExitReasonStopLoss
	case ActionManualExit:
		return ExitReasonManual
	}
	return ExitReasonTakeProfit
}
