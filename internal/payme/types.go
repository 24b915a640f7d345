package payme

import "encoding/json"

// RPC method names accepted on the gateway webhook. The set is closed;
// anything else is rejected with CodeMethodNotFound.
const (
	MethodCheckPerformTransaction = "CheckPerformTransaction"
	MethodCreateTransaction       = "CreateTransaction"
	MethodPerformTransaction      = "PerformTransaction"
	MethodCancelTransaction       = "CancelTransaction"
	MethodCheckTransaction        = "CheckTransaction"
	MethodGetStatement            = "GetStatement"
)

// Cancellation reason codes per the Payme merchant protocol.
const (
	// ReasonTimeout cancels a transaction left unperformed too long.
	ReasonTimeout = 4
	// ReasonRefund cancels a performed transaction on refund.
	ReasonRefund = 5
)

// Request is an inbound JSON-RPC call from the gateway.
type Request struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
	Params Params          `json:"params"`
}

// Params carries the union of all method parameters.
type Params struct {
	ID      string  `json:"id"`      // Gateway transaction id.
	Time    int64   `json:"time"`    // Gateway event time, Unix milliseconds.
	Amount  int64   `json:"amount"`  // Amount in tiyin.
	Account Account `json:"account"` // Account reference fields.
	Reason  *int    `json:"reason"`  // Cancellation reason.
	From    int64   `json:"from"`    // Statement range start, Unix milliseconds.
	To      int64   `json:"to"`      // Statement range end, Unix milliseconds.
}

// Account identifies the order a payment is for.
type Account struct {
	OrderID string `json:"order_id"`
	UserID  string `json:"user_id,omitempty"`
}

// Response is the outbound JSON-RPC reply.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// CheckPerformResult answers CheckPerformTransaction.
type CheckPerformResult struct {
	Allow bool `json:"allow"`
}

// CreateResult answers CreateTransaction.
type CreateResult struct {
	CreateTime  int64  `json:"create_time"`
	Transaction string `json:"transaction"`
	State       int    `json:"state"`
}

// PerformResult answers PerformTransaction.
type PerformResult struct {
	Transaction string `json:"transaction"`
	PerformTime int64  `json:"perform_time"`
	State       int    `json:"state"`
}

// CancelResult answers CancelTransaction.
type CancelResult struct {
	Transaction string `json:"transaction"`
	CancelTime  int64  `json:"cancel_time"`
	State       int    `json:"state"`
}

// CheckResult answers CheckTransaction.
type CheckResult struct {
	CreateTime  int64  `json:"create_time"`
	PerformTime int64  `json:"perform_time"`
	CancelTime  int64  `json:"cancel_time"`
	Transaction string `json:"transaction"`
	State       int    `json:"state"`
	Reason      *int   `json:"reason"`
}

// StatementEntry is one transaction in a GetStatement reply.
type StatementEntry struct {
	ID          string  `json:"id"`
	Time        int64   `json:"time"`
	Amount      int64   `json:"amount"`
	Account     Account `json:"account"`
	CreateTime  int64   `json:"create_time"`
	PerformTime int64   `json:"perform_time"`
	CancelTime  int64   `json:"cancel_time"`
	Transaction string  `json:"transaction"`
	State       int     `json:"state"`
	Reason      *int    `json:"reason"`
}

// StatementResult answers GetStatement.
type StatementResult struct {
	Transactions []StatementEntry `json:"transactions"`
}
