package tonapi

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"nhooyr.io/websocket"
)

const DefaultStreamURL = "wss://tonapi.io/v2/websocket"

type rpcRequest struct {
	ID      int    `json:"id"`
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []string `json:"params"`
}

type rpcEnvelope struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

// AccountTxNotification is a push for one confirmed transaction on a
// subscribed account. Used as a fast-path poll trigger only; the REST
// event feed stays the source of truth.
type AccountTxNotification struct {
	AccountID string `json:"account_id"`
	Lt        uint64 `json:"lt"`
	TxHash    string `json:"tx_hash"`
}

type StreamClient struct {
	url    string
	token  string
	conn   *websocket.Conn
	nextID int
}

func NewStreamClient(url, token string) *StreamClient {
	if strings.TrimSpace(url) == "" {
		url = DefaultStreamURL
	}
	if token != "" {
		url = url + "?token=" + token
	}
	return &StreamClient{url: url, token: token, nextID: 1}
}

func (c *StreamClient) Connect(ctx context.Context) error {
	if c == nil {
		return fmt.Errorf("stream client is nil")
	}
	conn, _, err := websocket.Dial(ctx, c.url, nil)
	if err != nil {
		return err
	}
	conn.SetReadLimit(1 << 20)
	c.conn = conn
	return nil
}

func (c *StreamClient) Close(status websocket.StatusCode, reason string) error {
	if c == nil || c.conn == nil {
		return nil
	}
	return c.conn.Close(status, reason)
}

// SubscribeAccounts starts transaction notifications for the given
// accounts. Repeated calls extend the subscription set.
func (c *StreamClient) SubscribeAccounts(ctx context.Context, accounts []string) error {
	if c == nil || c.conn == nil {
		return fmt.Errorf("stream not connected")
	}
	if len(accounts) == 0 {
		return nil
	}
	req := rpcRequest{
		ID:      c.nextID,
		JSONRPC: "2.0",
		Method:  "subscribe_account",
		Params:  accounts,
	}
	c.nextID++
	payload, err := json.Marshal(req)
	if err != nil {
		return err
	}
	return c.conn.Write(ctx, websocket.MessageText, payload)
}

// Read blocks for the next account transaction notification. Non-
// notification frames (subscribe acks) yield a nil notification.
func (c *StreamClient) Read(ctx context.Context) (*AccountTxNotification, error) {
	if c == nil || c.conn == nil {
		return nil, fmt.Errorf("stream not connected")
	}
	_, data, err := c.conn.Read(ctx)
	if err != nil {
		return nil, err
	}
	var env rpcEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, nil
	}
	if env.Method != "account_transaction" {
		return nil, nil
	}
	var note AccountTxNotification
	if err := json.Unmarshal(env.Params, &note); err != nil {
		return nil, nil
	}
	return &note, nil
}
