package services

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tag_manager/tagerr"
)

func TestCreateLink(t *testing.T) {
	f := newFixture(t)
	svc := NewLinkService(f.db, zerolog.Nop())
	ctx := context.Background()

	link, err := svc.Create(ctx, "https://example.com", "", nil)
	require.NoError(t, err)
	assert.Len(t, link.ShortCode, codeLength)
	assert.Nil(t, link.ExpiresAt)

	custom, err := svc.Create(ctx, "https://example.org", "docs", nil)
	require.NoError(t, err)
	assert.Equal(t, "docs", custom.ShortCode)

	_, err = svc.Create(ctx, "https://example.net", "docs", nil)
	assert.Equal(t, tagerr.Uniqueness, tagerr.KindOf(err))

	_, err = svc.Create(ctx, "", "", nil)
	assert.True(t, tagerr.IsValidation(err))
}

func TestLinkByShortCode(t *testing.T) {
	f := newFixture(t)
	svc := NewLinkService(f.db, zerolog.Nop())
	ctx := context.Background()

	hour := time.Hour
	created, err := svc.Create(ctx, "https://example.com", "soon", &hour)
	require.NoError(t, err)
	require.NotNil(t, created.ExpiresAt)

	got, err := svc.ByShortCode(ctx, "soon")
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)

	svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = svc.ByShortCode(ctx, "soon")
	assert.ErrorIs(t, err, ErrLinkExpired)

	_, err = svc.ByShortCode(ctx, "missing")
	assert.ErrorIs(t, err, ErrLinkNotFound)
}

func TestListLinks(t *testing.T) {
	f := newFixture(t)
	svc := NewLinkService(f.db, zerolog.Nop())
	ctx := context.Background()

	for _, code := range []string{"one", "two", "three"} {
		_, err := svc.Create(ctx, "https://example.com/"+code, code, nil)
		require.NoError(t, err)
	}

	page, total, err := svc.List(ctx, 1, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	require.Len(t, page, 2)
	assert.Equal(t, "three", page[0].ShortCode)

	page, _, err = svc.List(ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "one", page[0].ShortCode)
}
