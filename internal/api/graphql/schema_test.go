package graphql

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/graphql-go/graphql"
	"github.com/stretchr/testify/require"

	"github.com/inkwellhq/inkwell/internal/api/authz"
	"github.com/inkwellhq/inkwell/internal/api/domain"
	"github.com/inkwellhq/inkwell/internal/api/idp"
	"github.com/inkwellhq/inkwell/internal/api/service"
	"github.com/inkwellhq/inkwell/internal/api/store/drivers/sqlite"
	"github.com/inkwellhq/inkwell/internal/api/subscription"
	"github.com/inkwellhq/inkwell/pkg/claimscache"
)

// testVerifier resolves tokens from a fixed table; unknown tokens are
// malformed. Tokens named outage-* simulate a provider outage.
type testVerifier struct {
	users map[string]domain.Claims
}

func (v *testVerifier) Verify(_ context.Context, token string) (domain.Claims, error) {
	if claims, ok := v.users[token]; ok {
		return claims, nil
	}
	if token == "outage-token" {
		return domain.Claims{}, idp.ErrUnavailable
	}
	return domain.Claims{}, idp.ErrTokenMalformed
}

type testProvider struct {
	idp.Provider
}

func (p *testProvider) Authenticate(_ context.Context, username, password string) (domain.TokenSet, error) {
	if password != "correct" {
		return domain.TokenSet{}, idp.ErrInvalidCredentials
	}
	return domain.TokenSet{
		AccessToken:  "token-" + username,
		RefreshToken: "refresh-" + username,
		TokenType:    "Bearer",
		ExpiresAt:    time.Now().Add(time.Hour),
	}, nil
}

func (p *testProvider) SignOut(_ context.Context, _ string) error { return nil }

func (p *testProvider) RevokeRefreshToken(_ context.Context, _ string) error { return nil }

type fixture struct {
	schema graphql.Schema
	bus    *subscription.Bus
	docs   *service.DocumentService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	st, err := sqlite.NewStore(filepath.Join(t.TempDir(), "inkwell.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	verifier := &testVerifier{users: map[string]domain.Claims{
		"token-alice": {Subject: "sub-alice", Username: "alice", ExpiresAt: time.Now().Add(time.Hour)},
		"token-bob":   {Subject: "sub-bob", Username: "bob", ExpiresAt: time.Now().Add(time.Hour)},
		"token-root":  {Subject: "sub-root", Username: "root", Roles: []string{"admin"}, ExpiresAt: time.Now().Add(time.Hour)},
	}}
	provider := &testProvider{}

	tokens := service.NewTokenService(provider, verifier, claimscache.New[domain.Claims](5*time.Minute))
	bus := subscription.NewBus()
	docs := &service.DocumentService{Store: st, Events: bus}
	users := &service.UserService{Provider: provider, Tokens: tokens, Store: st}

	authorizer := authz.NewAuthorizer(tokens)
	authorizer.RegisterOwnerFunc(OwnerKeyDocument, func(ctx context.Context, args map[string]any) (string, error) {
		owner, err := docs.OwnerOf(ctx, args["id"].(string))
		if errors.Is(err, service.ErrDocumentNotFound) {
			return "", authz.ErrOwnerUnknown
		}
		return owner, err
	})
	authorizer.RegisterOwnerFunc(OwnerKeyDocumentEvent, func(_ context.Context, args map[string]any) (string, error) {
		owner, _ := args["owner"].(string)
		return owner, nil
	})

	schema, err := NewSchema(Config{
		Tokens:     tokens,
		Users:      users,
		Documents:  docs,
		Authorizer: authorizer,
		Bus:        bus,
	})
	require.NoError(t, err)

	return &fixture{schema: schema, bus: bus, docs: docs}
}

func (f *fixture) do(t *testing.T, token, query string) *graphql.Result {
	t.Helper()
	return graphql.Do(graphql.Params{
		Schema:        f.schema,
		RequestString: query,
		Context:       authz.WithToken(context.Background(), token),
	})
}

func requireCode(t *testing.T, result *graphql.Result, code string) {
	t.Helper()
	require.NotEmpty(t, result.Errors)
	require.Equal(t, code, CodeOf(result.Errors[0]))
}

func data(t *testing.T, result *graphql.Result) map[string]any {
	t.Helper()
	require.Empty(t, result.Errors, "unexpected errors: %v", result.Errors)
	m, ok := result.Data.(map[string]any)
	require.True(t, ok)
	return m
}

func TestSchema_HealthIsPublic(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	result := f.do(t, "", `{ health }`)
	require.Equal(t, "ok", data(t, result)["health"])
}

func TestSchema_MeRequiresToken(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	requireCode(t, f.do(t, "", `{ me { username } }`), CodeUnauthenticated)
}

func TestSchema_MeResolvesMirror(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	result := f.do(t, "token-alice", `{ me { subject username } }`)
	me := data(t, result)["me"].(map[string]any)
	require.Equal(t, "sub-alice", me["subject"])
	require.Equal(t, "alice", me["username"])
}

func TestSchema_Login(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	result := f.do(t, "", `mutation { login(username: "alice", password: "correct") { accessToken tokenType refreshToken } }`)
	payload := data(t, result)["login"].(map[string]any)
	require.Equal(t, "token-alice", payload["accessToken"])
	require.Equal(t, "Bearer", payload["tokenType"])
	require.Equal(t, "refresh-alice", payload["refreshToken"])

	requireCode(t, f.do(t, "", `mutation { login(username: "alice", password: "wrong") { accessToken } }`), CodeUnauthenticated)
}

func TestSchema_ProviderOutageIsDistinguishable(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	requireCode(t, f.do(t, "outage-token", `{ me { username } }`), CodeServiceUnavailable)
}

func TestSchema_DocumentOwnership(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	// Seed mirrors, then create a document as alice.
	_ = data(t, f.do(t, "token-alice", `{ me { subject } }`))
	_ = data(t, f.do(t, "token-bob", `{ me { subject } }`))

	created := data(t, f.do(t, "token-alice",
		`mutation { createDocument(title: "notes", body: "hello") { id ownerId } }`))["createDocument"].(map[string]any)
	docID := created["id"].(string)
	require.Equal(t, "sub-alice", created["ownerId"])

	// Owner reads it.
	got := data(t, f.do(t, "token-alice",
		fmt.Sprintf(`{ document(id: %q) { title } }`, docID)))["document"].(map[string]any)
	require.Equal(t, "notes", got["title"])

	// A non-owner is denied; so is a lookup of a missing document, with the
	// identical answer.
	foreign := f.do(t, "token-bob", fmt.Sprintf(`{ document(id: %q) { title } }`, docID))
	requireCode(t, foreign, CodeForbidden)

	missing := f.do(t, "token-bob", `{ document(id: "01J00000000000000000000000") { title } }`)
	requireCode(t, missing, CodeForbidden)
	require.Equal(t, foreign.Errors[0].Message, missing.Errors[0].Message)
}

func TestSchema_MyDocumentsScopedToCaller(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	_ = data(t, f.do(t, "token-alice", `{ me { subject } }`))
	_ = data(t, f.do(t, "token-bob", `{ me { subject } }`))
	_ = data(t, f.do(t, "token-alice", `mutation { createDocument(title: "a1") { id } }`))
	_ = data(t, f.do(t, "token-bob", `mutation { createDocument(title: "b1") { id } }`))

	list := data(t, f.do(t, "token-alice", `{ myDocuments { title } }`))["myDocuments"].([]any)
	require.Len(t, list, 1)
	require.Equal(t, "a1", list[0].(map[string]any)["title"])
}

func TestSchema_AdminMutationsRequireRole(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	requireCode(t, f.do(t, "token-alice", `mutation { disableUser(username: "bob") }`), CodeForbidden)
}

func TestSchema_TransferDeniesOldOwner(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	_ = data(t, f.do(t, "token-alice", `{ me { subject } }`))
	_ = data(t, f.do(t, "token-bob", `{ me { subject } }`))

	created := data(t, f.do(t, "token-alice",
		`mutation { createDocument(title: "notes") { id } }`))["createDocument"].(map[string]any)
	docID := created["id"].(string)

	moved := data(t, f.do(t, "token-alice",
		fmt.Sprintf(`mutation { transferDocument(id: %q, newOwnerId: "sub-bob") { ownerId } }`, docID)))["transferDocument"].(map[string]any)
	require.Equal(t, "sub-bob", moved["ownerId"])

	// The old owner can no longer read it; the new owner can.
	requireCode(t, f.do(t, "token-alice", fmt.Sprintf(`{ document(id: %q) { title } }`, docID)), CodeForbidden)
	_ = data(t, f.do(t, "token-bob", fmt.Sprintf(`{ document(id: %q) { title } }`, docID)))
}

func TestSchema_SubscriptionDeliversToOwner(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	_ = data(t, f.do(t, "token-alice", `{ me { subject } }`))

	created := data(t, f.do(t, "token-alice",
		`mutation { createDocument(title: "notes", body: "v1") { id } }`))["createDocument"].(map[string]any)
	docID := created["id"].(string)

	ctx, cancel := context.WithCancel(authz.WithToken(context.Background(), "token-alice"))
	defer cancel()

	results := graphql.Subscribe(graphql.Params{
		Schema:        f.schema,
		RequestString: fmt.Sprintf(`subscription { documentChanged(id: %q) { type document { body } } }`, docID),
		Context:       ctx,
	})

	// Give the subscriber time to register before publishing.
	require.Eventually(t, func() bool { return f.bus.Subscribers(docID) == 1 }, time.Second, 10*time.Millisecond)

	_ = data(t, f.do(t, "token-alice",
		fmt.Sprintf(`mutation { updateDocument(id: %q, title: "notes", body: "v2") { id } }`, docID)))

	select {
	case result := <-results:
		ev := data(t, result)["documentChanged"].(map[string]any)
		require.Equal(t, "UPDATED", ev["type"])
		require.Equal(t, "v2", ev["document"].(map[string]any)["body"])
	case <-time.After(2 * time.Second):
		t.Fatal("no event delivered")
	}
}

func TestSchema_SubscriptionDropsEventsAfterTransfer(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	_ = data(t, f.do(t, "token-alice", `{ me { subject } }`))
	_ = data(t, f.do(t, "token-bob", `{ me { subject } }`))

	created := data(t, f.do(t, "token-alice",
		`mutation { createDocument(title: "notes", body: "v1") { id } }`))["createDocument"].(map[string]any)
	docID := created["id"].(string)

	ctx, cancel := context.WithCancel(authz.WithToken(context.Background(), "token-alice"))
	defer cancel()

	results := graphql.Subscribe(graphql.Params{
		Schema:        f.schema,
		RequestString: fmt.Sprintf(`subscription { documentChanged(id: %q) { type } }`, docID),
		Context:       ctx,
	})
	require.Eventually(t, func() bool { return f.bus.Subscribers(docID) == 1 }, time.Second, 10*time.Millisecond)

	// Transfer away: the TRANSFERRED event carries the new owner, so alice's
	// subscription must not see it, nor anything after it.
	_ = data(t, f.do(t, "token-alice",
		fmt.Sprintf(`mutation { transferDocument(id: %q, newOwnerId: "sub-bob") { id } }`, docID)))
	_ = data(t, f.do(t, "token-bob",
		fmt.Sprintf(`mutation { updateDocument(id: %q, title: "notes", body: "v2") { id } }`, docID)))

	select {
	case result := <-results:
		t.Fatalf("event leaked to former owner: %v", result.Data)
	case <-time.After(300 * time.Millisecond):
	}
}
