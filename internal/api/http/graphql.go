package http

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/graphql-go/graphql"

	"github.com/inkwellhq/inkwell/internal/api/authz"
	gql "github.com/inkwellhq/inkwell/internal/api/graphql"
	"github.com/inkwellhq/inkwell/pkg/httpx"
)

type graphqlRequest struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
}

// GraphQLHandler executes queries and mutations over POST. Subscriptions go
// through the WebSocket endpoint.
type GraphQLHandler struct {
	Schema graphql.Schema
}

func (h *GraphQLHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req graphqlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Query == "" {
		httpx.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	ctx := authz.WithToken(r.Context(), bearerToken(r))

	result := graphql.Do(graphql.Params{
		Schema:         h.Schema,
		RequestString:  req.Query,
		OperationName:  req.OperationName,
		VariableValues: req.Variables,
		Context:        ctx,
	})

	httpx.NoCache(w)
	httpx.WriteJSON(w, statusFor(result), result)
}

// statusFor maps a fully failed operation to a transport status so plain
// HTTP clients and load balancers see authentication and availability
// failures without parsing the GraphQL error list. Partial results stay 200.
func statusFor(result *graphql.Result) int {
	if !result.HasErrors() || result.Data != nil {
		return http.StatusOK
	}

	switch gql.CodeOf(result.Errors[0]) {
	case gql.CodeUnauthenticated:
		return http.StatusUnauthorized
	case gql.CodeForbidden:
		return http.StatusForbidden
	case gql.CodeServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusOK
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return token
	}
	return ""
}
