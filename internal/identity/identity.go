package identity

import (
	"context"
	"strings"

	"github.com/clerk/clerk-sdk-go/v2/user"
	"go.uber.org/zap"
)

const FallbackName = "User"

type Profile struct {
	DisplayName string  `json:"display_name"`
	PhotoURL    *string `json:"photo_url"`
}

// Resolver never fails: an unknown or unreachable user resolves to the fallback profile.
type Resolver interface {
	Resolve(ctx context.Context, userID string) Profile
}

func Fallback() Profile {
	return Profile{DisplayName: FallbackName}
}

// ClerkResolver reads display fields from the Clerk user API. clerk.SetKey must be called first.
type ClerkResolver struct {
	log *zap.Logger
}

func NewClerkResolver(log *zap.Logger) *ClerkResolver {
	return &ClerkResolver{log: log}
}

func (r *ClerkResolver) Resolve(ctx context.Context, userID string) Profile {
	u, err := user.Get(ctx, userID)
	if err != nil {
		r.log.Debug("identity lookup failed", zap.String("user_id", userID), zap.Error(err))
		return Fallback()
	}

	p := Fallback()
	if name := displayName(deref(u.Username), deref(u.FirstName), deref(u.LastName)); name != "" {
		p.DisplayName = name
	}
	if u.ImageURL != nil && *u.ImageURL != "" {
		p.PhotoURL = u.ImageURL
	}
	return p
}

func displayName(username, first, last string) string {
	if username != "" {
		return username
	}
	return strings.TrimSpace(first + " " + last)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Static serves fixed profiles; anything else gets the fallback.
type Static map[string]Profile

func (s Static) Resolve(ctx context.Context, userID string) Profile {
	if p, ok := s[userID]; ok {
		return p
	}
	return Fallback()
}
