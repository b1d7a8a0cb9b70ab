package domain_test

import (
	"testing"

	"github.com/blackmichael/volume/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDeepLink(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want domain.DeepLink
	}{
		{"scheme host", "volume://article?id=a1", domain.DeepLink{ContentType: domain.ContentArticle, ID: "a1"}},
		{"content type param", "https://volumeapp.co/x?contentType=flyer&id=f1", domain.DeepLink{ContentType: domain.ContentFlyer, ID: "f1"}},
		{"type param", "volume://open?type=magazine&id=m1", domain.DeepLink{ContentType: domain.ContentMagazine, ID: "m1"}},
		{"case insensitive", " volume://Article?id=a2 ", domain.DeepLink{ContentType: domain.ContentArticle, ID: "a2"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := domain.ParseDeepLink(tc.raw)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseDeepLink_Invalid(t *testing.T) {
	for _, raw := range []string{
		"volume://article",
		"https://volumeapp.co/x?id=1",
		"volume://podcast?id=1",
		"://bad",
	} {
		_, err := domain.ParseDeepLink(raw)
		assert.ErrorIs(t, err, domain.ErrInvalidDeepLink, raw)
	}
}

func TestIsNoConnection(t *testing.T) {
	assert.True(t, domain.IsNoConnection(&domain.NetworkTransportError{Op: "x", Err: assert.AnError}))
	assert.True(t, domain.IsNoConnection(&domain.GraphQLResponseError{Op: "x", Messages: []string{"bad"}}))
	assert.True(t, domain.IsNoConnection(&domain.EmptyResultError{What: "x"}))
	assert.False(t, domain.IsNoConnection(domain.ErrNoUser))

	err := &domain.NetworkTransportError{Op: "GetAllPublications", Err: assert.AnError}
	assert.ErrorIs(t, err, assert.AnError)
	assert.Contains(t, err.Error(), "GetAllPublications")
}
