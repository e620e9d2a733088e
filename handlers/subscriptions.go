// ABOUTME: Subscription MCP tool handlers
// ABOUTME: Implements list_subscriptions, add_subscription, verify_subscription, and delete_subscription tools
package handlers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/subzero/finance"
	"github.com/harperreed/subzero/models"
	"github.com/harperreed/subzero/subscriptions"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const dateLayout = "2006-01-02"

type SubscriptionHandlers struct {
	subs *subscriptions.Service
	now  func() time.Time
}

func NewSubscriptionHandlers(service *subscriptions.Service) *SubscriptionHandlers {
	return &SubscriptionHandlers{subs: service, now: time.Now}
}

type SubscriptionOutput struct {
	ID               string  `json:"id"`
	Name             string  `json:"name"`
	Amount           float64 `json:"amount"`
	Currency         string  `json:"currency"`
	AmountInBase     float64 `json:"amount_in_base"`
	BillingCycle     string  `json:"billing_cycle"`
	Category         string  `json:"category"`
	RenewalDate      string  `json:"renewal_date"`
	Source           string  `json:"source"`
	Verified         bool    `json:"verified"`
	LastDetectedAt   *string `json:"last_detected_at,omitempty"`
	DaysUntilRenewal int     `json:"days_until_renewal"`
	CreatedAt        string  `json:"created_at"`
}

func subscriptionToOutput(s *models.Subscription, now time.Time) SubscriptionOutput {
	out := SubscriptionOutput{
		ID:               s.ID.String(),
		Name:             s.Name,
		Amount:           s.Amount,
		Currency:         s.OriginalCurrency,
		AmountInBase:     s.BaseAmount(),
		BillingCycle:     s.BillingCycle,
		Category:         s.Category,
		RenewalDate:      s.RenewalDate.Format(dateLayout),
		Source:           s.Source,
		Verified:         s.Verified,
		DaysUntilRenewal: finance.DaysUntil(now, s.RenewalDate),
		CreatedAt:        s.CreatedAt.Format(time.RFC3339),
	}
	if s.LastDetectedAt != nil {
		v := s.LastDetectedAt.Format(time.RFC3339)
		out.LastDetectedAt = &v
	}
	return out
}

type ListSubscriptionsInput struct {
	UserID     string `json:"user_id" jsonschema:"User ID (required)"`
	Unverified bool   `json:"unverified,omitempty" jsonschema:"Only return AI-detected subscriptions awaiting review"`
}

type ListSubscriptionsOutput struct {
	Subscriptions []SubscriptionOutput   `json:"subscriptions"`
	Stats         models.DashboardStats `json:"stats"`
}

func (h *SubscriptionHandlers) ListSubscriptions(ctx context.Context, request *mcp.CallToolRequest, input ListSubscriptionsInput) (*mcp.CallToolResult, ListSubscriptionsOutput, error) {
	if input.UserID == "" {
		return nil, ListSubscriptionsOutput{}, fmt.Errorf("user_id is required")
	}

	subs, err := h.subs.List(ctx, input.UserID)
	if err != nil {
		return nil, ListSubscriptionsOutput{}, fmt.Errorf("failed to list subscriptions: %w", err)
	}

	now := h.now()
	out := ListSubscriptionsOutput{
		Subscriptions: []SubscriptionOutput{},
		Stats:         finance.Stats(subs, now),
	}
	for i := range subs {
		if input.Unverified && subs[i].Verified {
			continue
		}
		out.Subscriptions = append(out.Subscriptions, subscriptionToOutput(&subs[i], now))
	}
	return nil, out, nil
}

type AddSubscriptionInput struct {
	UserID       string  `json:"user_id" jsonschema:"User ID (required)"`
	Name         string  `json:"name" jsonschema:"Service name (required)"`
	Amount       float64 `json:"amount" jsonschema:"Charge per billing cycle (required, positive)"`
	Currency     string  `json:"currency,omitempty" jsonschema:"ISO 4217 currency code (default base currency)"`
	BillingCycle string  `json:"billing_cycle" jsonschema:"Billing cycle: monthly or yearly"`
	Category     string  `json:"category,omitempty" jsonschema:"Category: Streaming, Software, Cloud, Education, Utilities, Others (default Others)"`
	RenewalDate  string  `json:"renewal_date" jsonschema:"Next renewal date as YYYY-MM-DD"`
}

type MutationOutput struct {
	Success bool   `json:"success"`
	ID      string `json:"id,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (h *SubscriptionHandlers) AddSubscription(ctx context.Context, request *mcp.CallToolRequest, input AddSubscriptionInput) (*mcp.CallToolResult, MutationOutput, error) {
	if input.UserID == "" {
		return nil, MutationOutput{}, fmt.Errorf("user_id is required")
	}

	renewal, err := time.Parse(dateLayout, input.RenewalDate)
	if err != nil {
		return nil, MutationOutput{}, fmt.Errorf("invalid renewal_date format (use YYYY-MM-DD): %w", err)
	}

	category := input.Category
	if category == "" {
		category = models.CategoryOthers
	}

	result := h.subs.Create(ctx, input.UserID, subscriptions.Input{
		Name:         input.Name,
		Amount:       input.Amount,
		Currency:     input.Currency,
		BillingCycle: input.BillingCycle,
		Category:     category,
		RenewalDate:  renewal,
	}, models.SourceManual)

	out := MutationOutput{Success: result.Success, Error: result.Error}
	if result.Success {
		out.ID = result.ID.String()
	}
	return nil, out, nil
}

type SubscriptionRefInput struct {
	UserID string `json:"user_id" jsonschema:"User ID (required)"`
	ID     string `json:"id" jsonschema:"Subscription ID (required)"`
}

func (in SubscriptionRefInput) parse() (uuid.UUID, error) {
	if in.UserID == "" {
		return uuid.Nil, fmt.Errorf("user_id is required")
	}
	id, err := uuid.Parse(in.ID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid subscription ID: %w", err)
	}
	return id, nil
}

func (h *SubscriptionHandlers) VerifySubscription(ctx context.Context, request *mcp.CallToolRequest, input SubscriptionRefInput) (*mcp.CallToolResult, MutationOutput, error) {
	id, err := input.parse()
	if err != nil {
		return nil, MutationOutput{}, err
	}
	if err := h.subs.Verify(ctx, input.UserID, id); err != nil {
		return nil, mutationFailure(err), nil
	}
	return nil, MutationOutput{Success: true, ID: id.String()}, nil
}

func (h *SubscriptionHandlers) DeleteSubscription(ctx context.Context, request *mcp.CallToolRequest, input SubscriptionRefInput) (*mcp.CallToolResult, MutationOutput, error) {
	id, err := input.parse()
	if err != nil {
		return nil, MutationOutput{}, err
	}
	if err := h.subs.Delete(ctx, input.UserID, id); err != nil {
		return nil, mutationFailure(err), nil
	}
	return nil, MutationOutput{Success: true, ID: id.String()}, nil
}

type UpdateSubscriptionInput struct {
	UserID       string   `json:"user_id" jsonschema:"User ID (required)"`
	ID           string   `json:"id" jsonschema:"Subscription ID (required)"`
	Name         *string  `json:"name,omitempty" jsonschema:"New service name"`
	Amount       *float64 `json:"amount,omitempty" jsonschema:"New charge per billing cycle"`
	Currency     *string  `json:"currency,omitempty" jsonschema:"New ISO 4217 currency code"`
	BillingCycle *string  `json:"billing_cycle,omitempty" jsonschema:"New billing cycle: monthly or yearly"`
	Category     *string  `json:"category,omitempty" jsonschema:"New category"`
	RenewalDate  *string  `json:"renewal_date,omitempty" jsonschema:"New renewal date as YYYY-MM-DD"`
}

func (h *SubscriptionHandlers) UpdateSubscription(ctx context.Context, request *mcp.CallToolRequest, input UpdateSubscriptionInput) (*mcp.CallToolResult, MutationOutput, error) {
	id, err := SubscriptionRefInput{UserID: input.UserID, ID: input.ID}.parse()
	if err != nil {
		return nil, MutationOutput{}, err
	}

	patch := subscriptions.Patch{
		Name:         input.Name,
		Amount:       input.Amount,
		Currency:     input.Currency,
		BillingCycle: input.BillingCycle,
		Category:     input.Category,
	}
	if input.RenewalDate != nil {
		renewal, err := time.Parse(dateLayout, *input.RenewalDate)
		if err != nil {
			return nil, MutationOutput{}, fmt.Errorf("invalid renewal_date format (use YYYY-MM-DD): %w", err)
		}
		patch.RenewalDate = &renewal
	}

	if _, err := h.subs.Update(ctx, input.UserID, id, patch); err != nil {
		return nil, mutationFailure(err), nil
	}
	return nil, MutationOutput{Success: true, ID: id.String()}, nil
}

func mutationFailure(err error) MutationOutput {
	if errors.Is(err, subscriptions.ErrNotFound) {
		return MutationOutput{Error: "subscription not found"}
	}
	return MutationOutput{Error: err.Error()}
}
