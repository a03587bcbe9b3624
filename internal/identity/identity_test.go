package identity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDisplayNamePrefersUsername(t *testing.T) {
	assert.Equal(t, "ana", displayName("ana", "Ana", "Lopez"))
	assert.Equal(t, "Ana Lopez", displayName("", "Ana", "Lopez"))
	assert.Equal(t, "Ana", displayName("", "Ana", ""))
	assert.Equal(t, "", displayName("", "", ""))
}

func TestStaticFallsBack(t *testing.T) {
	photo := "https://img.example.com/a.png"
	r := Static{"user_a": {DisplayName: "ana", PhotoURL: &photo}}

	assert.Equal(t, "ana", r.Resolve(context.Background(), "user_a").DisplayName)
	unknown := r.Resolve(context.Background(), "user_zzz")
	assert.Equal(t, FallbackName, unknown.DisplayName)
	assert.Nil(t, unknown.PhotoURL)
}
