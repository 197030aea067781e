package tonapi

// AccountRef is a compacted account preview attached to actions.
type AccountRef struct {
	Address string `json:"address"`
	Name    string `json:"name,omitempty"`
}

// TonTransferAction carries a native-currency transfer.
type TonTransferAction struct {
	Sender    AccountRef `json:"sender"`
	Recipient AccountRef `json:"recipient"`
	// Amount is in nanotons.
	Amount  int64  `json:"amount"`
	Comment string `json:"comment,omitempty"`
}

type JettonPreview struct {
	Address  string `json:"address"`
	Symbol   string `json:"symbol,omitempty"`
	Decimals int    `json:"decimals"`
}

// JettonTransferAction carries a jetton transfer in raw token units.
type JettonTransferAction struct {
	Sender    AccountRef    `json:"sender"`
	Recipient AccountRef    `json:"recipient"`
	Amount    string        `json:"amount"`
	Comment   string        `json:"comment,omitempty"`
	Jetton    JettonPreview `json:"jetton"`
}

type Action struct {
	Type           string                `json:"type"`
	Status         string                `json:"status"`
	TonTransfer    *TonTransferAction    `json:"TonTransfer,omitempty"`
	JettonTransfer *JettonTransferAction `json:"JettonTransfer,omitempty"`
}

// AccountEvent is one logical event (trace) on an account. Lt is the
// event's logical time, strictly increasing per account.
type AccountEvent struct {
	EventID    string   `json:"event_id"`
	Account    AccountRef `json:"account"`
	Lt         uint64   `json:"lt"`
	Timestamp  int64    `json:"timestamp"`
	InProgress bool     `json:"in_progress"`
	Actions    []Action `json:"actions"`
}

type accountEventsResponse struct {
	Events   []AccountEvent `json:"events"`
	NextFrom uint64         `json:"next_from"`
}

type accountResponse struct {
	Address string `json:"address"`
	Balance int64  `json:"balance"`
	Status  string `json:"status"`
}

type jettonMetadata struct {
	Address  string `json:"address"`
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals string `json:"decimals"`
}

type jettonInfoResponse struct {
	Metadata jettonMetadata `json:"metadata"`
}

type jettonBalanceResponse struct {
	Balance       string `json:"balance"`
	WalletAddress struct {
		Address string `json:"address"`
	} `json:"wallet_address"`
}
