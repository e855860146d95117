package fordefi

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type State string

const (
	StateWaitingForApproval State = "waiting_for_approval"
	StateApproved           State = "approved"
	StateSigned             State = "signed"
	StatePushed             State = "pushed_to_blockchain"
	StateMined              State = "mined"
	StateCompleted          State = "completed"
	StateFailed             State = "error_pushing_to_blockchain"
	StateAborted            State = "aborted"
	StateDropped            State = "dropped"
)

// HasSignature reports whether the state guarantees the vault signature is
// attached to the transaction.
func (s State) HasSignature() bool {
	switch s {
	case StateSigned, StatePushed, StateMined, StateCompleted:
		return true
	}
	return false
}

// Terminal reports whether the transaction is dead from the oracle's side.
func (s State) Terminal() bool {
	switch s {
	case StateFailed, StateAborted, StateDropped:
		return true
	}
	return false
}

type Chain string

const (
	ChainMainnet Chain = "solana_mainnet"
	ChainDevnet  Chain = "solana_devnet"
)

// PartialSignature is a locally produced signature passed to the vault, or a
// nil Data placeholder for the slot the vault must fill.
type PartialSignature struct {
	Data *string `json:"data"`
}

type CustomFee struct {
	Type      string `json:"type"`
	UnitPrice uint64 `json:"unit_price"`
}

type createTransactionDetails struct {
	Type           string             `json:"type"`
	PushMode       string             `json:"push_mode"`
	Chain          Chain              `json:"chain"`
	Data           string             `json:"data"`
	Signatures     []PartialSignature `json:"signatures"`
	SkipPrediction bool               `json:"skip_prediction"`
	Fee            CustomFee          `json:"fee"`
}

type createTransactionRequest struct {
	VaultID    string                   `json:"vault_id"`
	SignerType string                   `json:"signer_type"`
	Type       string                   `json:"type"`
	Details    createTransactionDetails `json:"details"`
}

// SignRequest carries one serialized unsigned message to the vault.
type SignRequest struct {
	VaultID string
	Chain   Chain
	// Message is the compiled transaction message (not a full transaction).
	Message []byte
	// Signatures must be in signature-slot order; nil entries mark slots the
	// vault signs, normally just the fee payer's.
	Signatures []PartialSignature
	// FeeUnitPrice is always submitted as a custom fee so the oracle's own
	// fee prediction is never used.
	FeeUnitPrice uint64
}

type Transaction struct {
	ID             string `json:"id"`
	State          State  `json:"state"`
	RawTransaction string `json:"raw_transaction"`
	Signatures     []struct {
		Data string `json:"data"`
	} `json:"signatures"`
}

// RawTransactionBytes decodes the fully signed transaction when present.
func (t Transaction) RawTransactionBytes() ([]byte, error) {
	if strings.TrimSpace(t.RawTransaction) == "" {
		return nil, fmt.Errorf("%w: transaction %s has no raw_transaction", ErrProtocol, t.ID)
	}
	raw, err := base64.StdEncoding.DecodeString(t.RawTransaction)
	if err != nil {
		return nil, fmt.Errorf("%w: bad raw_transaction encoding: %v", ErrProtocol, err)
	}
	return raw, nil
}

func (c *Client) CreateTransaction(ctx context.Context, req SignRequest) (Transaction, error) {
	var tx Transaction
	if strings.TrimSpace(req.VaultID) == "" {
		return tx, fmt.Errorf("vault id required")
	}
	if len(req.Message) == 0 {
		return tx, fmt.Errorf("empty message")
	}
	if req.FeeUnitPrice == 0 {
		return tx, fmt.Errorf("fee unit price required")
	}

	body := createTransactionRequest{
		VaultID:    req.VaultID,
		SignerType: "api_signer",
		Type:       "solana_transaction",
		Details: createTransactionDetails{
			Type:           "solana_serialized_transaction_message",
			PushMode:       "manual",
			Chain:          req.Chain,
			Data:           base64.StdEncoding.EncodeToString(req.Message),
			Signatures:     req.Signatures,
			SkipPrediction: true,
			Fee:            CustomFee{Type: "custom", UnitPrice: req.FeeUnitPrice},
		},
	}
	if err := c.doRequest(ctx, http.MethodPost, "/api/v1/transactions", body, &tx); err != nil {
		return Transaction{}, err
	}
	if strings.TrimSpace(tx.ID) == "" {
		return Transaction{}, fmt.Errorf("%w: create response missing transaction id", ErrProtocol)
	}
	return tx, nil
}

func (c *Client) GetTransaction(ctx context.Context, id string) (Transaction, error) {
	var tx Transaction
	id = strings.TrimSpace(id)
	if id == "" {
		return tx, fmt.Errorf("transaction id required")
	}
	if err := c.doRequest(ctx, http.MethodGet, "/api/v1/transactions/"+url.PathEscape(id), nil, &tx); err != nil {
		return Transaction{}, err
	}
	return tx, nil
}

// WaitForSignature polls until the vault has produced its signature. A
// request already submitted is never abandoned early: the poll runs to the
// timeout even if ctx still has budget left.
func (c *Client) WaitForSignature(ctx context.Context, id string, interval, timeout time.Duration) (Transaction, error) {
	if interval <= 0 {
		interval = 1500 * time.Millisecond
	}
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	deadline := time.Now().Add(timeout)

	for {
		tx, err := c.GetTransaction(ctx, id)
		if err != nil {
			return Transaction{}, err
		}
		if tx.State.HasSignature() {
			return tx, nil
		}
		if tx.State.Terminal() {
			return Transaction{}, &TerminalStateError{ID: id, State: tx.State}
		}
		if time.Now().After(deadline) {
			return Transaction{}, fmt.Errorf("%w: transaction %s still %q after %s", ErrPollTimeout, id, tx.State, timeout)
		}

		t := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			t.Stop()
			return Transaction{}, ctx.Err()
		case <-t.C:
		}
	}
}
