// ABOUTME: Registers every subscription tracking tool on an MCP server
// ABOUTME: Shared by the mcp command and the in-memory handler tests
package handlers

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Register adds the tools to server.
func Register(server *mcp.Server, subs *SubscriptionHandlers, syncs *SyncHandlers) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "sync_subscriptions",
		Description: "Scan every connected mailbox for billing emails and record detected subscriptions",
	}, syncs.SyncSubscriptions)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_subscriptions",
		Description: "List a user's subscriptions with spend totals",
	}, subs.ListSubscriptions)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "add_subscription",
		Description: "Add a subscription manually",
	}, subs.AddSubscription)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "update_subscription",
		Description: "Change fields of an existing subscription",
	}, subs.UpdateSubscription)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "verify_subscription",
		Description: "Confirm an AI-detected subscription",
	}, subs.VerifySubscription)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "delete_subscription",
		Description: "Permanently delete a subscription",
	}, subs.DeleteSubscription)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "burn_forecast",
		Description: "Project the next months of subscription spend and the savings from switching to yearly billing",
	}, syncs.BurnForecast)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_accounts",
		Description: "List connected mailboxes and when they were last synced",
	}, syncs.ListAccounts)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_notifications",
		Description: "List renewal reminders written for a user",
	}, syncs.ListNotifications)
}
