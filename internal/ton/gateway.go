package ton

import (
	"context"
	"math/big"
	"time"
)

// SwapRequest asks the custody service to send TON into the native vault
// with a swap instruction attached.
type SwapRequest struct {
	VaultAddress string
	PoolAddress  string
	AmountNano   *big.Int
	// MinOut is the minimum acceptable output in raw token units.
	MinOut   *big.Int
	Deadline time.Time
}

// JettonSwapRequest asks the custody service to transfer jettons into the
// token vault carrying a swap instruction payload.
type JettonSwapRequest struct {
	JettonMaster string
	VaultAddress string
	PoolAddress  string
	AmountUnits  *big.Int
	// MinOut is the minimum acceptable output in nanotons.
	MinOut   *big.Int
	Deadline time.Time
}

// Gateway is the sign-and-submit capability for a managed wallet. Key
// storage and message building live in the custody service behind it.
type Gateway interface {
	SubmitSwap(ctx context.Context, walletID int64, req SwapRequest) (txHash string, err error)
	SubmitJettonSwap(ctx context.Context, walletID int64, req JettonSwapRequest) (txHash string, err error)
}
