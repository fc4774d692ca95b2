package service

import (
	"context"
	"testing"

	"knot/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveService(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ana := f.signup(t, "ana")
	bob := f.signup(t, "bob")
	post := f.createPost(t, ana, "keep")

	save, err := f.saves.SavePost(ctx, bob.ID, post.ID)
	require.NoError(t, err)
	assert.Equal(t, post.ID, save.PostID)

	_, err = f.saves.SavePost(ctx, bob.ID, post.ID)
	assert.Equal(t, models.CodeConflict, models.ErrorCode(err))

	_, err = f.saves.SavePost(ctx, bob.ID, "missing")
	assert.True(t, models.IsNotFound(err))

	_, err = f.saves.SavePost(ctx, bob.ID, "")
	assert.Equal(t, models.CodeValidation, models.ErrorCode(err))

	list, err := f.saves.ListSaved(ctx, bob.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "keep", list[0].Post.Caption)

	got, err := f.posts.GetPostByID(ctx, post.ID, bob.ID)
	require.NoError(t, err)
	assert.True(t, got.Saved)
	assert.Equal(t, 1, got.SavesCount)

	_, err = f.saves.DeleteSavedPost(ctx, ana.ID, save.ID)
	assert.Equal(t, models.CodeForbidden, models.ErrorCode(err))

	_, err = f.saves.DeleteSavedPost(ctx, bob.ID, save.ID)
	require.NoError(t, err)

	_, err = f.saves.DeleteSavedPost(ctx, bob.ID, save.ID)
	assert.True(t, models.IsNotFound(err))
}
