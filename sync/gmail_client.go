// ABOUTME: Google Gmail API client built per sync from an explicit credential bundle
// ABOUTME: Records refreshed access tokens so rotated credentials can be persisted afterwards
package sync

import (
	"context"
	"fmt"
	"sync"

	"github.com/harperreed/subzero/models"
	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// MailProvider lists and fetches messages from one mailbox.
type MailProvider interface {
	ListMessageIDs(ctx context.Context, query string, max int64) ([]string, error)
	GetMessage(ctx context.Context, id string) (*gmail.Message, error)
}

// RotatingProvider is a MailProvider that may have refreshed its credentials.
type RotatingProvider interface {
	MailProvider
	Rotated() (*models.CredentialBundle, bool)
}

// rotatingSource remembers the last token whose access token differs from
// the one the provider was built with.
type rotatingSource struct {
	base    oauth2.TokenSource
	initial string

	mu     sync.Mutex
	latest *oauth2.Token
}

func (r *rotatingSource) Token() (*oauth2.Token, error) {
	tok, err := r.base.Token()
	if err != nil {
		return nil, err
	}
	if tok.AccessToken != r.initial {
		r.mu.Lock()
		r.latest = tok
		r.mu.Unlock()
	}
	return tok, nil
}

func (r *rotatingSource) rotated() *oauth2.Token {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.latest
}

// GmailProvider talks to the Gmail API for one connected account.
type GmailProvider struct {
	service *gmail.Service
	source  *rotatingSource
	bundle  *models.CredentialBundle
}

// NewGmailProvider creates a Gmail client from bundle. It is short-lived and
// never shared between accounts.
func NewGmailProvider(ctx context.Context, oc *oauth2.Config, bundle *models.CredentialBundle, opts ...option.ClientOption) (*GmailProvider, error) {
	if oc == nil {
		return nil, fmt.Errorf("oauth config cannot be nil")
	}
	if bundle == nil || (bundle.AccessToken == "" && bundle.RefreshToken == "") {
		return nil, fmt.Errorf("credential bundle has no tokens")
	}

	tok := bundle.Token()
	src := &rotatingSource{
		base:    oc.TokenSource(ctx, tok),
		initial: tok.AccessToken,
	}
	client := oauth2.NewClient(ctx, src)

	clientOpts := append([]option.ClientOption{option.WithHTTPClient(client)}, opts...)
	service, err := gmail.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}

	return &GmailProvider{service: service, source: src, bundle: bundle}, nil
}

// ListMessageIDs returns the ids of messages matching query, newest first.
func (p *GmailProvider) ListMessageIDs(ctx context.Context, query string, max int64) ([]string, error) {
	call := p.service.Users.Messages.List("me").Q(query).Context(ctx)
	if max > 0 {
		call = call.MaxResults(max)
	}

	resp, err := call.Do()
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	ids := make([]string, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		ids = append(ids, m.Id)
	}
	return ids, nil
}

// GetMessage fetches one message with its full MIME payload.
func (p *GmailProvider) GetMessage(ctx context.Context, id string) (*gmail.Message, error) {
	msg, err := p.service.Users.Messages.Get("me", id).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to get message %s: %w", id, err)
	}
	return msg, nil
}

// Rotated returns the stored bundle merged with the refreshed token, if the
// provider refreshed one during its lifetime.
func (p *GmailProvider) Rotated() (*models.CredentialBundle, bool) {
	tok := p.source.rotated()
	if tok == nil {
		return nil, false
	}
	return p.bundle.Merge(models.BundleFromToken(tok)), true
}
