package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/terra-clan/hackathon-leaderboard/internal/models"
)

type contextKey string

const clientContextKey contextKey = "api_client"

// ClientFromContext returns the authenticated admin client, or nil on public
// routes
func ClientFromContext(ctx context.Context) *models.ApiClient {
	client, ok := ctx.Value(clientContextKey).(*models.ApiClient)
	if !ok {
		return nil
	}
	return client
}

// ContextWithClient stores the authenticated admin client
func ContextWithClient(ctx context.Context, client *models.ApiClient) context.Context {
	return context.WithValue(ctx, clientContextKey, client)
}

// limiterKey identifies the write bucket a request draws from. Clients are
// keyed by id since names need not be unique; unauthenticated requests fall
// back to the remote address.
func limiterKey(r *http.Request) string {
	if client := ClientFromContext(r.Context()); client != nil {
		return "client:" + strconv.Itoa(client.ID)
	}
	return "addr:" + r.RemoteAddr
}
