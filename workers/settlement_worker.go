package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"presale-referral-system/services"
	"presale-referral-system/utils"
)

// DefaultPurchaseDeadline matches the wallet connector's transaction
// validity window: submissions older than this are no longer polled.
const DefaultPurchaseDeadline = 600 * time.Second

// SettlementClient polls the TON indexer for confirmation of pending
// purchase transactions and settles them once confirmed.
type SettlementClient struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
	Purchases  *services.PurchaseService
	Deadline   time.Duration
}

func NewSettlementClient(purchases *services.PurchaseService) *SettlementClient {
	baseURL := os.Getenv("TON_INDEXER_URL")
	if baseURL == "" {
		log.Fatal("TON_INDEXER_URL environment variable is required for settlement polling")
	}

	deadline := DefaultPurchaseDeadline
	if v := os.Getenv("PURCHASE_DEADLINE_SECONDS"); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil || secs <= 0 {
			log.Printf("⚠️ Invalid PURCHASE_DEADLINE_SECONDS=%q, using %v", v, DefaultPurchaseDeadline)
		} else {
			deadline = time.Duration(secs) * time.Second
		}
	}

	return &SettlementClient{
		BaseURL:    baseURL,
		Token:      os.Getenv("TON_INDEXER_TOKEN"),
		HTTPClient: utils.HTTPClient,
		Purchases:  purchases,
		Deadline:   deadline,
	}
}

// IsTransactionConfirmed checks the indexer for a successful on-chain
// transaction. A transaction the indexer has not seen yet is simply not
// confirmed, not an error.
func (c *SettlementClient) IsTransactionConfirmed(ctx context.Context, txHash string) (bool, error) {
	u, err := url.Parse(fmt.Sprintf("%s/v2/blockchain/transactions/%s", c.BaseURL, url.PathEscape(txHash)))
	if err != nil {
		return false, fmt.Errorf("failed to parse indexer URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "GET", u.String(), nil)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("failed to call indexer: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return false, fmt.Errorf("indexer returned status %d: %s", resp.StatusCode, string(body))
	}

	var response struct {
		Success bool `json:"success"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return false, fmt.Errorf("failed to decode indexer response: %w", err)
	}
	return response.Success, nil
}

// PollSettlements drives the settlement loop. No store transaction is held
// while awaiting the indexer — confirmation is reconciled as a separate
// step after the purchase transaction has long committed.
func PollSettlements(ctx context.Context, client *SettlementClient, pollInterval time.Duration) {
	log.Println("Starting settlement polling...")

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Settlement polling stopped.")
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-client.Deadline)
			pending, err := client.Purchases.PendingWithTxSince(cutoff)
			if err != nil {
				log.Printf("❌ Error listing pending purchases: %v", err)
				continue
			}
			if len(pending) == 0 {
				continue
			}
			log.Printf("🔎 Checking %d pending purchase(s) against the indexer...", len(pending))

			for _, p := range pending {
				confirmed, err := client.IsTransactionConfirmed(ctx, *p.TxHash)
				if err != nil {
					log.Printf("❌ Error checking tx %s: %v", *p.TxHash, err)
					continue
				}
				if !confirmed {
					continue
				}
				if _, err := client.Purchases.SettlePurchase(p.ID); err != nil {
					log.Printf("❌ Failed to settle purchase %s: %v", p.ID, err)
				}
			}
		}
	}
}
