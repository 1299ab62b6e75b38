package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	appErrors "github.com/qwertyz15/expense-app/customErrors"
)

const bearerScheme = "bearer"

type UserLookup interface {
	GetUserByID(ctx context.Context, id int64) (User, error)
}

// Resolver turns an Authorization header into the user it belongs to.
type Resolver struct {
	tokens *TokenService
	users  UserLookup
}

func NewResolver(tokens *TokenService, users UserLookup) *Resolver {
	return &Resolver{tokens: tokens, users: users}
}

func (r *Resolver) Resolve(ctx context.Context, authHeader string, now time.Time) (User, error) {
	token, err := BearerToken(authHeader)
	if err != nil {
		return User{}, err
	}

	userID, err := r.tokens.Verify(token, now)
	if err != nil {
		return User{}, err
	}

	user, err := r.users.GetUserByID(ctx, userID)
	if err != nil {
		if appErrors.IsCode(err, appErrors.ErrNotFound) {
			return User{}, fmt.Errorf("%w: user %d", ErrUnknownSubject, userID)
		}
		return User{}, err
	}
	return user, nil
}

// BearerToken extracts the token from "Bearer <token>". The scheme is
// case-insensitive.
func BearerToken(authHeader string) (string, error) {
	scheme, token, found := strings.Cut(authHeader, " ")
	if !found || !strings.EqualFold(scheme, bearerScheme) {
		return "", ErrMissingCredential
	}
	if token == "" || strings.ContainsAny(token, " \t") {
		return "", ErrMissingCredential
	}
	return token, nil
}
