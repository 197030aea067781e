package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Signal is one observed leader trade. Signals are ephemeral: they flow
// from the watcher into the fan-out engine and are never persisted. The
// watcher's in-memory sequence tracking is the only replay protection.
type Signal struct {
	ID            uuid.UUID
	LeaderAddress string
	Direction     string
	TokenAddress  string
	TonAmount     decimal.Decimal
	Platform      Platform
	// Seq is the chain logical time of the underlying event, strictly
	// increasing per leader.
	Seq uint64
	// SellPercent is the leader's implied sell percent when resolvable,
	// used by smart-mode sell mirroring.
	SellPercent *string
}
