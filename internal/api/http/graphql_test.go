package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/gqlerrors"
	"github.com/stretchr/testify/require"

	"github.com/inkwellhq/inkwell/internal/api/authz"
	gql "github.com/inkwellhq/inkwell/internal/api/graphql"
)

func testSchema(t *testing.T) graphql.Schema {
	t.Helper()

	schema, err := graphql.NewSchema(graphql.SchemaConfig{
		Query: graphql.NewObject(graphql.ObjectConfig{
			Name: "Query",
			Fields: graphql.Fields{
				"echoToken": &graphql.Field{
					Type: graphql.String,
					Resolve: func(p graphql.ResolveParams) (any, error) {
						token, _ := authz.TokenFromContext(p.Context)
						return token, nil
					},
				},
			},
		}),
	})
	require.NoError(t, err)
	return schema
}

func TestGraphQLHandler_ForwardsBearerToken(t *testing.T) {
	t.Parallel()

	h := &GraphQLHandler{Schema: testSchema(t)}

	req := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader(`{"query":"{ echoToken }"}`))
	req.Header.Set("Authorization", "Bearer token-123")
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "token-123")
}

func TestGraphQLHandler_RejectsBadBody(t *testing.T) {
	t.Parallel()

	h := &GraphQLHandler{Schema: testSchema(t)}

	req := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader(`not json`))
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatusFor(t *testing.T) {
	t.Parallel()

	withCode := func(code string) *graphql.Result {
		return &graphql.Result{
			Errors: []gqlerrors.FormattedError{{
				Message:    "boom",
				Extensions: map[string]any{"code": code},
			}},
		}
	}

	tests := []struct {
		name   string
		result *graphql.Result
		want   int
	}{
		{"no errors", &graphql.Result{Data: map[string]any{"ok": true}}, http.StatusOK},
		{"unauthenticated", withCode(gql.CodeUnauthenticated), http.StatusUnauthorized},
		{"forbidden", withCode(gql.CodeForbidden), http.StatusForbidden},
		{"unavailable", withCode(gql.CodeServiceUnavailable), http.StatusServiceUnavailable},
		{"user input stays 200", withCode(gql.CodeBadUserInput), http.StatusOK},
		{
			"partial result stays 200",
			&graphql.Result{
				Data: map[string]any{"a": 1},
				Errors: []gqlerrors.FormattedError{{
					Message:    "boom",
					Extensions: map[string]any{"code": gql.CodeForbidden},
				}},
			},
			http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, statusFor(tt.result))
		})
	}
}
