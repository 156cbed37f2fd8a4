package ledger

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"
)

var ErrSealNotFound = errors.New("seal not found")

// SealReceipt is the ledger's acknowledgement of an anchored hash.
type SealReceipt struct {
	TxID     string    `json:"tx_id"`
	SealedAt time.Time `json:"sealed_at"`
}

// SealRecord is the ledger's view of a past seal, looked up by transaction.
type SealRecord struct {
	TxID        string    `json:"tx_id"`
	PayloadHash string    `json:"payload_hash"`
	SealedAt    time.Time `json:"sealed_at"`
}

// Ledger anchors document hashes to an external append-only store and reads
// them back for verification.
type Ledger interface {
	Seal(ctx context.Context, documentID, payloadHash string) (*SealReceipt, error)
	Verify(ctx context.Context, txID string) (*SealRecord, error)
}

// Config holds ledger client configuration
type Config struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		Timeout: 30 * time.Second,
	}
}

// Client talks to the ledger service over HTTP.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new ledger client
func NewClient(config Config) *Client {
	if config.Timeout == 0 {
		config.Timeout = DefaultConfig().Timeout
	}

	return &Client{
		apiKey:  config.APIKey,
		baseURL: config.BaseURL,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// Seal anchors a payload hash and returns the transaction receipt.
func (c *Client) Seal(ctx context.Context, documentID, payloadHash string) (*SealReceipt, error) {
	body, err := json.Marshal(map[string]string{
		"document_id":  documentID,
		"payload_hash": payloadHash,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/seals", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("seal request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("seal request: ledger returned status %d", resp.StatusCode)
	}

	receipt := &SealReceipt{}
	if err := json.NewDecoder(resp.Body).Decode(receipt); err != nil {
		return nil, fmt.Errorf("decode seal receipt: %w", err)
	}
	return receipt, nil
}

// Verify looks up a seal by transaction ID.
func (c *Client) Verify(ctx context.Context, txID string) (*SealRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/seals/"+txID, nil)
	if err != nil {
		return nil, err
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("verify request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrSealNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("verify request: ledger returned status %d", resp.StatusCode)
	}

	record := &SealRecord{}
	if err := json.NewDecoder(resp.Body).Decode(record); err != nil {
		return nil, fmt.Errorf("decode seal record: %w", err)
	}
	return record, nil
}

// NoopLedger keeps seals in memory. Used when no ledger backend is
// configured, typically in development and tests.
type NoopLedger struct {
	mu    sync.Mutex
	seals map[string]SealRecord
}

// NewNoopLedger creates an in-memory ledger
func NewNoopLedger() *NoopLedger {
	return &NoopLedger{seals: make(map[string]SealRecord)}
}

// Seal records the hash in memory under a derived transaction ID.
func (l *NoopLedger) Seal(_ context.Context, documentID, payloadHash string) (*SealReceipt, error) {
	sum := sha256.Sum256([]byte(documentID + "\x00" + payloadHash))
	txID := "noop-" + hex.EncodeToString(sum[:8])
	now := time.Now()

	l.mu.Lock()
	l.seals[txID] = SealRecord{TxID: txID, PayloadHash: payloadHash, SealedAt: now}
	l.mu.Unlock()

	return &SealReceipt{TxID: txID, SealedAt: now}, nil
}

// Verify returns the in-memory seal for a transaction ID.
func (l *NoopLedger) Verify(_ context.Context, txID string) (*SealRecord, error) {
	l.mu.Lock()
	record, ok := l.seals[txID]
	l.mu.Unlock()

	if !ok {
		return nil, ErrSealNotFound
	}
	return &record, nil
}
