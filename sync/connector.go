// ABOUTME: OAuth connect flow that links a Gmail mailbox to a user
// ABOUTME: Exchanges the authorization code, resolves the address, and stores sealed credentials
package sync

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/harperreed/subzero/db"
	"github.com/harperreed/subzero/logging"
	"github.com/harperreed/subzero/models"
	"github.com/harperreed/subzero/vault"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	oauth2api "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"
)

// Connector manages connected mail accounts.
type Connector struct {
	DB     *sql.DB
	Vault  *vault.Vault
	OAuth  *oauth2.Config
	Logger *zap.Logger
	// APIOptions are passed to the userinfo client.
	APIOptions []option.ClientOption
}

// AuthURL returns the consent URL. The user id round-trips as the state.
func (c *Connector) AuthURL(userID string) string {
	return c.OAuth.AuthCodeURL(userID,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"))
}

// Complete finishes the consent flow for userID. Reconnecting the same
// address replaces its credentials.
func (c *Connector) Complete(ctx context.Context, userID, code string) (*models.ConnectedMailAccount, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	if err := c.Vault.Check(); err != nil {
		return nil, err
	}

	tok, err := c.OAuth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}

	email, err := c.lookupEmail(ctx, tok)
	if err != nil {
		return nil, err
	}

	bundle := c.mergeExisting(ctx, userID, email, models.BundleFromToken(tok))
	sealed, err := c.Vault.SealBundle(bundle)
	if err != nil {
		return nil, fmt.Errorf("failed to seal credentials: %w", err)
	}

	acct := &models.ConnectedMailAccount{
		UserID:               userID,
		Email:                email,
		EncryptedCredentials: sealed,
	}
	err = db.WithTx(ctx, c.DB, func(tx *sql.Tx) error {
		if err := db.EnsureUser(ctx, tx, userID, email); err != nil {
			return err
		}
		return db.UpsertMailAccount(ctx, tx, acct)
	})
	if err != nil {
		return nil, err
	}

	logging.OrNop(c.Logger).Info("connected mail account",
		zap.String("user_id", userID),
		zap.String("account", logging.MaskEmail(email)))
	return acct, nil
}

// mergeExisting keeps a previously stored refresh token when the provider
// did not resend one.
func (c *Connector) mergeExisting(ctx context.Context, userID, email string, fresh *models.CredentialBundle) *models.CredentialBundle {
	if fresh.RefreshToken != "" {
		return fresh
	}
	existing, err := db.GetMailAccountByEmail(ctx, c.DB, userID, email)
	if err != nil || existing == nil {
		return fresh
	}
	stored, err := c.Vault.OpenBundle(existing.EncryptedCredentials)
	if err != nil {
		return fresh
	}
	return stored.Merge(fresh)
}

func (c *Connector) lookupEmail(ctx context.Context, tok *oauth2.Token) (string, error) {
	opts := append([]option.ClientOption{option.WithHTTPClient(c.OAuth.Client(ctx, tok))}, c.APIOptions...)
	svc, err := oauth2api.NewService(ctx, opts...)
	if err != nil {
		return "", fmt.Errorf("failed to create userinfo service: %w", err)
	}

	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to fetch account address: %w", err)
	}
	if info.Email == "" {
		return "", fmt.Errorf("provider returned no email address")
	}
	return info.Email, nil
}

// Disconnect removes one connected address. It reports whether a row existed.
func (c *Connector) Disconnect(ctx context.Context, userID, email string) (bool, error) {
	return db.DeleteMailAccount(ctx, c.DB, userID, email)
}

// ConnectionStatus lists a user's accounts, oldest connection first.
func (c *Connector) ConnectionStatus(ctx context.Context, userID string) ([]models.ConnectedMailAccount, error) {
	return db.ListMailAccounts(ctx, c.DB, userID)
}
