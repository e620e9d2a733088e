// ABOUTME: Mailbox scanner that turns a Gmail query into raw email texts
// ABOUTME: Fetches messages concurrently and contains each fetch failure on its own
package sync

import (
	"context"
	"fmt"
	"sync"

	"github.com/harperreed/subzero/logging"
	"github.com/harperreed/subzero/metrics"
	"github.com/harperreed/subzero/models"
	"go.uber.org/zap"
)

// DefaultMaxMessages caps the messages fetched per account.
const DefaultMaxMessages = 50

const fetchConcurrency = 8

// ScanResult is the outcome of scanning one mailbox. Texts carry no
// ordering guarantee relative to the provider's message ids.
type ScanResult struct {
	Texts  []string
	Failed int
	// Rotated holds the merged bundle when the provider refreshed its token.
	Rotated *models.CredentialBundle
}

// Scanner fetches matching messages and resolves their text.
type Scanner struct {
	MaxMessages int64
	Logger      *zap.Logger
	Metrics     *metrics.Metrics
}

// Scan lists messages matching query and returns their labelled texts. Only
// a failed listing is returned as an error; failed fetches are counted.
// Rotated credentials are reported even when listing fails.
func (s *Scanner) Scan(ctx context.Context, provider MailProvider, account models.ConnectedMailAccount, query string) (result ScanResult, err error) {
	defer func() {
		if rp, ok := provider.(RotatingProvider); ok {
			if bundle, rotated := rp.Rotated(); rotated {
				result.Rotated = bundle
			}
		}
	}()

	limit := s.MaxMessages
	if limit <= 0 {
		limit = DefaultMaxMessages
	}

	ids, err := provider.ListMessageIDs(ctx, query, limit)
	if err != nil {
		return result, err
	}

	log := logging.OrNop(s.Logger).With(zap.String("account", logging.MaskEmail(account.Email)))

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, fetchConcurrency)
	)
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			msg, err := provider.GetMessage(ctx, id)
			if err != nil {
				log.Warn("failed to fetch message", zap.String("message_id", id), zap.Error(err))
				s.Metrics.MessageFailed()
				mu.Lock()
				result.Failed++
				mu.Unlock()
				return
			}

			body := ExtractPlainText(msg)
			if body == "" {
				return
			}
			text := fmt.Sprintf("[Account: %s]\nSubject: %s\n\n%s", account.Email, Header(msg, "Subject"), body)

			mu.Lock()
			result.Texts = append(result.Texts, text)
			mu.Unlock()
		}(id)
	}
	wg.Wait()

	log.Debug("scanned mailbox",
		zap.Int("listed", len(ids)),
		zap.Int("texts", len(result.Texts)),
		zap.Int("failed", result.Failed))

	return result, nil
}
