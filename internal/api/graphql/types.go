package graphql

import (
	"github.com/graphql-go/graphql"

	"github.com/inkwellhq/inkwell/internal/api/domain"
)

var userType = graphql.NewObject(graphql.ObjectConfig{
	Name: "User",
	Fields: graphql.Fields{
		"subject":   &graphql.Field{Type: graphql.NewNonNull(graphql.ID)},
		"username":  &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
		"email":     &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
		"createdAt": &graphql.Field{Type: graphql.NewNonNull(graphql.DateTime)},
		"updatedAt": &graphql.Field{Type: graphql.NewNonNull(graphql.DateTime)},
	},
})

var documentType = graphql.NewObject(graphql.ObjectConfig{
	Name: "Document",
	Fields: graphql.Fields{
		"id":        &graphql.Field{Type: graphql.NewNonNull(graphql.ID)},
		"ownerId":   &graphql.Field{Type: graphql.NewNonNull(graphql.ID)},
		"title":     &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
		"body":      &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
		"createdAt": &graphql.Field{Type: graphql.NewNonNull(graphql.DateTime)},
		"updatedAt": &graphql.Field{Type: graphql.NewNonNull(graphql.DateTime)},
	},
})

var loginPayloadType = graphql.NewObject(graphql.ObjectConfig{
	Name: "LoginPayload",
	Fields: graphql.Fields{
		"accessToken":  &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
		"tokenType":    &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
		"refreshToken": &graphql.Field{Type: graphql.String},
		"idToken":      &graphql.Field{Type: graphql.String},
		"expiresAt":    &graphql.Field{Type: graphql.NewNonNull(graphql.DateTime)},
	},
})

var documentEventTypeEnum = graphql.NewEnum(graphql.EnumConfig{
	Name: "DocumentEventType",
	Values: graphql.EnumValueConfigMap{
		"CREATED":     &graphql.EnumValueConfig{Value: string(domain.DocumentCreated)},
		"UPDATED":     &graphql.EnumValueConfig{Value: string(domain.DocumentUpdated)},
		"DELETED":     &graphql.EnumValueConfig{Value: string(domain.DocumentDeleted)},
		"TRANSFERRED": &graphql.EnumValueConfig{Value: string(domain.DocumentTransferred)},
	},
})

var documentEventType = graphql.NewObject(graphql.ObjectConfig{
	Name: "DocumentEvent",
	Fields: graphql.Fields{
		"type":       &graphql.Field{Type: graphql.NewNonNull(documentEventTypeEnum)},
		"document":   &graphql.Field{Type: graphql.NewNonNull(documentType)},
		"occurredAt": &graphql.Field{Type: graphql.NewNonNull(graphql.DateTime)},
	},
})

var attributeInputType = graphql.NewInputObject(graphql.InputObjectConfig{
	Name: "AttributeInput",
	Fields: graphql.InputObjectConfigFieldMap{
		"name":  &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.String)},
		"value": &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.String)},
	},
})

func userPayload(u domain.User) map[string]any {
	return map[string]any{
		"subject":   u.Subject,
		"username":  u.Username,
		"email":     u.Email,
		"createdAt": u.CreatedAt,
		"updatedAt": u.UpdatedAt,
	}
}

func documentPayload(d domain.Document) map[string]any {
	return map[string]any{
		"id":        d.ID,
		"ownerId":   d.OwnerID,
		"title":     d.Title,
		"body":      d.Body,
		"createdAt": d.CreatedAt,
		"updatedAt": d.UpdatedAt,
	}
}

func tokenSetPayload(ts domain.TokenSet) map[string]any {
	payload := map[string]any{
		"accessToken": ts.AccessToken,
		"tokenType":   ts.TokenType,
		"expiresAt":   ts.ExpiresAt,
	}
	if ts.RefreshToken != "" {
		payload["refreshToken"] = ts.RefreshToken
	}
	if ts.IDToken != "" {
		payload["idToken"] = ts.IDToken
	}
	return payload
}

func eventPayload(ev domain.DocumentEvent) map[string]any {
	return map[string]any{
		"type":       string(ev.Type),
		"document":   documentPayload(ev.Document),
		"occurredAt": ev.OccurredAt,
	}
}
