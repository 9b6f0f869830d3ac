package graphql

import (
	"context"
	"errors"

	"github.com/graphql-go/graphql"

	"github.com/inkwellhq/inkwell/internal/api/authz"
	"github.com/inkwellhq/inkwell/internal/api/domain"
	"github.com/inkwellhq/inkwell/internal/api/idp"
	"github.com/inkwellhq/inkwell/internal/api/service"
	"github.com/inkwellhq/inkwell/internal/api/subscription"
)

// Owner lookup keys referenced by ownership requirements. The wiring layer
// must register a matching OwnerFunc for each before the schema is built.
const (
	// OwnerKeyDocument resolves the current owner of the document named by
	// the "id" argument.
	OwnerKeyDocument = "document"

	// OwnerKeyDocumentEvent resolves the owner carried by an in-flight
	// document event, so delivery checks need no store round trip and a
	// deletion still reaches the document's last owner.
	OwnerKeyDocumentEvent = "documentEvent"
)

type Config struct {
	Tokens     *service.TokenService
	Users      *service.UserService
	Documents  *service.DocumentService
	Authorizer *authz.Authorizer
	Bus        *subscription.Bus
}

type builder struct {
	cfg       Config
	buildErrs []error
}

// NewSchema assembles the executable schema. Every field carries an explicit
// requirement; a requirement the authorizer cannot evaluate fails the build,
// which is fatal at startup.
func NewSchema(cfg Config) (graphql.Schema, error) {
	b := &builder{cfg: cfg}

	schema, err := graphql.NewSchema(graphql.SchemaConfig{
		Query:        b.query(),
		Mutation:     b.mutation(),
		Subscription: b.subscription(),
	})
	if err != nil {
		return graphql.Schema{}, err
	}
	if len(b.buildErrs) > 0 {
		return graphql.Schema{}, errors.Join(b.buildErrs...)
	}
	return schema, nil
}

// guard wraps a resolver with its requirement. The requirement is validated
// at build time; at run time authorization happens before the resolver and
// every error leaving the field is mapped to the wire taxonomy.
func (b *builder) guard(field string, req authz.Requirement, resolve graphql.FieldResolveFn) graphql.FieldResolveFn {
	if err := b.cfg.Authorizer.ValidateRequirement(field, req); err != nil {
		b.buildErrs = append(b.buildErrs, err)
	}

	return func(p graphql.ResolveParams) (any, error) {
		ctx, err := b.cfg.Authorizer.Authorize(p.Context, req, p.Args)
		if err != nil {
			return nil, mapError(err)
		}
		p.Context = ctx

		result, err := resolve(p)
		if err != nil {
			var ae *apiError
			if errors.As(err, &ae) {
				return nil, err
			}
			return nil, mapError(err)
		}
		return result, nil
	}
}

func (b *builder) query() *graphql.Object {
	return graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"health": &graphql.Field{
				Type: graphql.NewNonNull(graphql.String),
				Resolve: b.guard("Query.health", authz.Public(), func(p graphql.ResolveParams) (any, error) {
					return "ok", nil
				}),
			},
			"me": &graphql.Field{
				Type: graphql.NewNonNull(userType),
				Resolve: b.guard("Query.me", authz.Authenticated(), func(p graphql.ResolveParams) (any, error) {
					auth, _ := authz.FromContext(p.Context)
					u, err := b.cfg.Users.Me(p.Context, auth.Claims)
					if err != nil {
						return nil, err
					}
					return userPayload(u), nil
				}),
			},
			"document": &graphql.Field{
				Type: graphql.NewNonNull(documentType),
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.ID)},
				},
				Resolve: b.guard("Query.document", authz.RequireOwnership(OwnerKeyDocument), func(p graphql.ResolveParams) (any, error) {
					doc, err := b.cfg.Documents.Get(p.Context, stringArg(p.Args, "id"))
					if err != nil {
						return nil, err
					}
					return documentPayload(doc), nil
				}),
			},
			"myDocuments": &graphql.Field{
				Type: graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(documentType))),
				Resolve: b.guard("Query.myDocuments", authz.Authenticated(), func(p graphql.ResolveParams) (any, error) {
					docs, err := b.cfg.Documents.ListByOwner(p.Context, authz.MustSubject(p.Context))
					if err != nil {
						return nil, err
					}
					out := make([]map[string]any, 0, len(docs))
					for _, d := range docs {
						out = append(out, documentPayload(d))
					}
					return out, nil
				}),
			},
		},
	})
}

func (b *builder) mutation() *graphql.Object {
	fields := graphql.Fields{}
	b.accountMutations(fields)
	b.documentMutations(fields)

	return graphql.NewObject(graphql.ObjectConfig{
		Name:   "Mutation",
		Fields: fields,
	})
}

func (b *builder) accountMutations(fields graphql.Fields) {
	fields["login"] = &graphql.Field{
		Type: graphql.NewNonNull(loginPayloadType),
		Args: graphql.FieldConfigArgument{
			"username": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
			"password": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
		},
		Resolve: b.guard("Mutation.login", authz.Public(), func(p graphql.ResolveParams) (any, error) {
			set, err := b.cfg.Tokens.Authenticate(p.Context, stringArg(p.Args, "username"), stringArg(p.Args, "password"))
			if err != nil {
				return nil, err
			}
			return tokenSetPayload(set), nil
		}),
	}

	fields["refreshToken"] = &graphql.Field{
		Type: graphql.NewNonNull(loginPayloadType),
		Args: graphql.FieldConfigArgument{
			"refreshToken": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
		},
		Resolve: b.guard("Mutation.refreshToken", authz.Public(), func(p graphql.ResolveParams) (any, error) {
			set, err := b.cfg.Tokens.Refresh(p.Context, stringArg(p.Args, "refreshToken"))
			if err != nil {
				return nil, err
			}
			return tokenSetPayload(set), nil
		}),
	}

	fields["signUp"] = &graphql.Field{
		Type: graphql.NewNonNull(graphql.ID),
		Args: graphql.FieldConfigArgument{
			"username":    &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
			"password":    &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
			"email":       &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
			"phoneNumber": &graphql.ArgumentConfig{Type: graphql.String},
			"givenName":   &graphql.ArgumentConfig{Type: graphql.String},
			"familyName":  &graphql.ArgumentConfig{Type: graphql.String},
		},
		Resolve: b.guard("Mutation.signUp", authz.Public(), func(p graphql.ResolveParams) (any, error) {
			subject, err := b.cfg.Users.SignUp(p.Context, idp.SignUpParams{
				Username:    stringArg(p.Args, "username"),
				Password:    stringArg(p.Args, "password"),
				Email:       stringArg(p.Args, "email"),
				PhoneNumber: stringArg(p.Args, "phoneNumber"),
				GivenName:   stringArg(p.Args, "givenName"),
				FamilyName:  stringArg(p.Args, "familyName"),
			})
			if err != nil {
				return nil, err
			}
			return subject, nil
		}),
	}

	fields["confirmSignUp"] = &graphql.Field{
		Type: graphql.NewNonNull(graphql.Boolean),
		Args: graphql.FieldConfigArgument{
			"username":         &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
			"confirmationCode": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
		},
		Resolve: b.guard("Mutation.confirmSignUp", authz.Public(), func(p graphql.ResolveParams) (any, error) {
			if err := b.cfg.Users.ConfirmSignUp(p.Context, stringArg(p.Args, "username"), stringArg(p.Args, "confirmationCode")); err != nil {
				return nil, err
			}
			return true, nil
		}),
	}

	fields["resendConfirmationCode"] = &graphql.Field{
		Type: graphql.NewNonNull(graphql.Boolean),
		Args: graphql.FieldConfigArgument{
			"username": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
		},
		Resolve: b.guard("Mutation.resendConfirmationCode", authz.Public(), func(p graphql.ResolveParams) (any, error) {
			if err := b.cfg.Users.ResendConfirmationCode(p.Context, stringArg(p.Args, "username")); err != nil {
				return nil, err
			}
			return true, nil
		}),
	}

	fields["changePassword"] = &graphql.Field{
		Type: graphql.NewNonNull(graphql.Boolean),
		Args: graphql.FieldConfigArgument{
			"previousPassword": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
			"proposedPassword": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
		},
		Resolve: b.guard("Mutation.changePassword", authz.Authenticated(), func(p graphql.ResolveParams) (any, error) {
			auth, _ := authz.FromContext(p.Context)
			err := b.cfg.Users.ChangePassword(p.Context, auth.Token,
				stringArg(p.Args, "previousPassword"), stringArg(p.Args, "proposedPassword"))
			if err != nil {
				return nil, err
			}
			return true, nil
		}),
	}

	fields["forgotPassword"] = &graphql.Field{
		Type: graphql.NewNonNull(graphql.Boolean),
		Args: graphql.FieldConfigArgument{
			"username": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
		},
		Resolve: b.guard("Mutation.forgotPassword", authz.Public(), func(p graphql.ResolveParams) (any, error) {
			if err := b.cfg.Users.ForgotPassword(p.Context, stringArg(p.Args, "username")); err != nil {
				return nil, err
			}
			return true, nil
		}),
	}

	fields["confirmForgotPassword"] = &graphql.Field{
		Type: graphql.NewNonNull(graphql.Boolean),
		Args: graphql.FieldConfigArgument{
			"username":         &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
			"confirmationCode": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
			"newPassword":      &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
		},
		Resolve: b.guard("Mutation.confirmForgotPassword", authz.Public(), func(p graphql.ResolveParams) (any, error) {
			err := b.cfg.Users.ConfirmForgotPassword(p.Context,
				stringArg(p.Args, "username"), stringArg(p.Args, "confirmationCode"), stringArg(p.Args, "newPassword"))
			if err != nil {
				return nil, err
			}
			return true, nil
		}),
	}

	fields["updateUserAttributes"] = &graphql.Field{
		Type: graphql.NewNonNull(graphql.Boolean),
		Args: graphql.FieldConfigArgument{
			"attributes": &graphql.ArgumentConfig{
				Type: graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(attributeInputType))),
			},
		},
		Resolve: b.guard("Mutation.updateUserAttributes", authz.Authenticated(), func(p graphql.ResolveParams) (any, error) {
			auth, _ := authz.FromContext(p.Context)
			if err := b.cfg.Users.UpdateAttributes(p.Context, auth.Claims, auth.Token, attributeArgs(p.Args)); err != nil {
				return nil, err
			}
			return true, nil
		}),
	}

	fields["signOut"] = &graphql.Field{
		Type: graphql.NewNonNull(graphql.Boolean),
		Args: graphql.FieldConfigArgument{
			"refreshToken": &graphql.ArgumentConfig{Type: graphql.String},
		},
		Resolve: b.guard("Mutation.signOut", authz.Authenticated(), func(p graphql.ResolveParams) (any, error) {
			auth, _ := authz.FromContext(p.Context)
			b.cfg.Users.SignOut(p.Context, auth.Token, stringArg(p.Args, "refreshToken"))
			return true, nil
		}),
	}

	fields["disableUser"] = &graphql.Field{
		Type: graphql.NewNonNull(graphql.Boolean),
		Args: graphql.FieldConfigArgument{
			"username": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
		},
		Resolve: b.guard("Mutation.disableUser", authz.RequireRole("admin"), func(p graphql.ResolveParams) (any, error) {
			if err := b.cfg.Users.DisableUser(p.Context, stringArg(p.Args, "username")); err != nil {
				return nil, err
			}
			return true, nil
		}),
	}

	fields["deleteUser"] = &graphql.Field{
		Type: graphql.NewNonNull(graphql.Boolean),
		Args: graphql.FieldConfigArgument{
			"username": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
		},
		Resolve: b.guard("Mutation.deleteUser", authz.RequireRole("admin"), func(p graphql.ResolveParams) (any, error) {
			if err := b.cfg.Users.DeleteUser(p.Context, stringArg(p.Args, "username")); err != nil {
				return nil, err
			}
			return true, nil
		}),
	}
}

func (b *builder) documentMutations(fields graphql.Fields) {
	fields["createDocument"] = &graphql.Field{
		Type: graphql.NewNonNull(documentType),
		Args: graphql.FieldConfigArgument{
			"title": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
			"body":  &graphql.ArgumentConfig{Type: graphql.String, DefaultValue: ""},
		},
		Resolve: b.guard("Mutation.createDocument", authz.Authenticated(), func(p graphql.ResolveParams) (any, error) {
			doc, err := b.cfg.Documents.Create(p.Context, authz.MustSubject(p.Context),
				stringArg(p.Args, "title"), stringArg(p.Args, "body"))
			if err != nil {
				return nil, err
			}
			return documentPayload(doc), nil
		}),
	}

	fields["updateDocument"] = &graphql.Field{
		Type: graphql.NewNonNull(documentType),
		Args: graphql.FieldConfigArgument{
			"id":    &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.ID)},
			"title": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
			"body":  &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
		},
		Resolve: b.guard("Mutation.updateDocument", authz.RequireOwnership(OwnerKeyDocument), func(p graphql.ResolveParams) (any, error) {
			doc, err := b.cfg.Documents.Update(p.Context, stringArg(p.Args, "id"),
				stringArg(p.Args, "title"), stringArg(p.Args, "body"))
			if err != nil {
				return nil, err
			}
			return documentPayload(doc), nil
		}),
	}

	fields["deleteDocument"] = &graphql.Field{
		Type: graphql.NewNonNull(graphql.Boolean),
		Args: graphql.FieldConfigArgument{
			"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.ID)},
		},
		Resolve: b.guard("Mutation.deleteDocument", authz.RequireOwnership(OwnerKeyDocument), func(p graphql.ResolveParams) (any, error) {
			if err := b.cfg.Documents.Delete(p.Context, stringArg(p.Args, "id")); err != nil {
				return nil, err
			}
			return true, nil
		}),
	}

	fields["transferDocument"] = &graphql.Field{
		Type: graphql.NewNonNull(documentType),
		Args: graphql.FieldConfigArgument{
			"id":         &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.ID)},
			"newOwnerId": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.ID)},
		},
		Resolve: b.guard("Mutation.transferDocument", authz.RequireOwnership(OwnerKeyDocument), func(p graphql.ResolveParams) (any, error) {
			doc, err := b.cfg.Documents.Transfer(p.Context, stringArg(p.Args, "id"), stringArg(p.Args, "newOwnerId"))
			if err != nil {
				return nil, err
			}
			return documentPayload(doc), nil
		}),
	}
}

func (b *builder) subscription() *graphql.Object {
	return graphql.NewObject(graphql.ObjectConfig{
		Name: "Subscription",
		Fields: graphql.Fields{
			"documentChanged": &graphql.Field{
				Type: graphql.NewNonNull(documentEventType),
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.ID)},
				},
				Resolve: func(p graphql.ResolveParams) (any, error) {
					ev, ok := p.Source.(domain.DocumentEvent)
					if !ok {
						return nil, newAPIError(CodeInternal, "internal error", nil)
					}
					return eventPayload(ev), nil
				},
				Subscribe: b.guard("Subscription.documentChanged", authz.RequireOwnership(OwnerKeyDocument), b.subscribeDocumentChanged),
			},
		},
	})
}

// subscribeDocumentChanged opens the event stream for one document. The
// ownership requirement already passed for the subscribe itself; each event
// is additionally authorized against the connection's current claims before
// delivery, and unauthorized events are dropped without any signal to the
// client.
func (b *builder) subscribeDocumentChanged(p graphql.ResolveParams) (any, error) {
	docID := stringArg(p.Args, "id")
	events, cancel := b.cfg.Bus.Subscribe(docID)
	claims := currentClaims(p.Context)

	out := make(chan any)
	go func() {
		defer cancel()
		defer close(out)

		for {
			select {
			case <-p.Context.Done():
				return
			case ev, ok := <-events:
				if !ok {
					return
				}

				err := b.cfg.Authorizer.AuthorizeClaims(p.Context, claims(),
					authz.RequireOwnership(OwnerKeyDocumentEvent),
					map[string]any{"owner": ev.Document.OwnerID})
				if err != nil {
					continue
				}

				select {
				case out <- ev:
				case <-p.Context.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// currentClaims returns a live claims source when the call runs inside a
// managed WebSocket connection, and a fixed snapshot otherwise.
func currentClaims(ctx context.Context) subscription.ClaimsSource {
	if src, ok := subscription.ClaimsSourceFromContext(ctx); ok {
		return src
	}
	if auth, ok := authz.FromContext(ctx); ok {
		claims := auth.Claims
		return func() domain.Claims { return claims }
	}
	return func() domain.Claims { return domain.Claims{} }
}

func stringArg(args map[string]any, name string) string {
	s, _ := args[name].(string)
	return s
}

func attributeArgs(args map[string]any) []domain.Attribute {
	raw, _ := args["attributes"].([]any)
	attrs := make([]domain.Attribute, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		attrs = append(attrs, domain.Attribute{
			Name:  stringArg(m, "name"),
			Value: stringArg(m, "value"),
		})
	}
	return attrs
}
