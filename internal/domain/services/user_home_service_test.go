package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smarthome-index-service/internal/domain/index"
	"smarthome-index-service/internal/domain/models"
)

func TestBulkLinkAttachAndDetach(t *testing.T) {
	env := newTestEnv(t)
	h1 := env.createHome(t, "h1", false)
	h2 := env.createHome(t, "h2", false)
	u1 := env.createUser(t, "u1")
	u2 := env.createUser(t, "u2")
	u3 := env.createUser(t, "u3")

	_, err := env.links.LinkUser(env.ctx, env.orgID, u3.ID, h1.ID)
	require.NoError(t, err)
	_, err = env.links.LinkUser(env.ctx, env.orgID, u3.ID, h2.ID)
	require.NoError(t, err)

	res, err := env.links.BulkLink(env.ctx, env.orgID, BulkLinkInput{
		HomeIDs:       []string{h1.ID, h2.ID},
		AttachUserIDs: []string{u1.ID, u2.ID},
		DetachUserIDs: []string{u3.ID},
	})
	require.NoError(t, err)
	assert.True(t, res.Index.Converged)
	assert.ElementsMatch(t, []string{h1.ID, h2.ID}, res.IndexedHomeIDs)
	assert.Empty(t, res.SkippedDisabled)

	assert.ElementsMatch(t, []string{h1.ID, h2.ID}, env.members(t, index.FamilyHomeByUserID, u1.ID))
	assert.ElementsMatch(t, []string{h1.ID, h2.ID}, env.members(t, index.FamilyHomeByUserID, u2.ID))
	assert.Empty(t, env.members(t, index.FamilyHomeByUserID, u3.ID))

	var links int64
	require.NoError(t, env.db.Model(&models.UserHome{}).Where("user_id = ?", u3.ID).Count(&links).Error)
	assert.Zero(t, links)
}

func TestBulkLinkSkipsDisabledHomesInIndex(t *testing.T) {
	env := newTestEnv(t)
	enabled := env.createHome(t, "on", false)
	disabled := env.createHome(t, "off", true)
	user := env.createUser(t, "u1")

	res, err := env.links.BulkLink(env.ctx, env.orgID, BulkLinkInput{
		HomeIDs:       []string{enabled.ID, disabled.ID},
		AttachUserIDs: []string{user.ID},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{enabled.ID}, res.IndexedHomeIDs)
	assert.Equal(t, []string{disabled.ID}, res.SkippedDisabled)

	view, err := env.links.ListUserHomes(env.ctx, env.orgID, user.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{enabled.ID}, view.HomeIDs)
	assert.ElementsMatch(t, []string{enabled.ID, disabled.ID}, view.LinkedHomeIDs)

	_, err = env.homes.EnableHome(env.ctx, env.orgID, disabled.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{enabled.ID, disabled.ID}, env.members(t, index.FamilyHomeByUserID, user.ID))
}

func TestBulkLinkValidation(t *testing.T) {
	env := newTestEnv(t)
	home := env.createHome(t, "h1", false)
	user := env.createUser(t, "u1")

	_, err := env.links.BulkLink(env.ctx, env.orgID, BulkLinkInput{HomeIDs: []string{home.ID}})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = env.links.BulkLink(env.ctx, env.orgID, BulkLinkInput{
		HomeIDs:       []string{home.ID},
		AttachUserIDs: []string{user.ID},
		DetachUserIDs: []string{user.ID},
	})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = env.links.BulkLink(env.ctx, env.orgID, BulkLinkInput{
		HomeIDs:       []string{home.ID},
		AttachUserIDs: []string{user.ID, "ghost"},
	})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, env.members(t, index.FamilyHomeByUserID, user.ID))

	var links int64
	require.NoError(t, env.db.Model(&models.UserHome{}).Count(&links).Error)
	assert.Zero(t, links)
}

func TestLinkAndUnlinkUser(t *testing.T) {
	env := newTestEnv(t)
	home := env.createHome(t, "h1", false)
	user := env.createUser(t, "u1")

	res, err := env.links.LinkUser(env.ctx, env.orgID, user.ID, home.ID)
	require.NoError(t, err)
	assert.True(t, res.Changed)

	res, err = env.links.LinkUser(env.ctx, env.orgID, user.ID, home.ID)
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Equal(t, []string{home.ID}, env.members(t, index.FamilyHomeByUserID, user.ID))

	res, err = env.links.UnlinkUser(env.ctx, env.orgID, user.ID, home.ID)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Empty(t, env.members(t, index.FamilyHomeByUserID, user.ID))

	res, err = env.links.UnlinkUser(env.ctx, env.orgID, user.ID, home.ID)
	require.NoError(t, err)
	assert.False(t, res.Changed)
}

func TestLinkToDisabledHomeIsInvisible(t *testing.T) {
	env := newTestEnv(t)
	home := env.createHome(t, "h1", true)
	user := env.createUser(t, "u1")

	res, err := env.links.LinkUser(env.ctx, env.orgID, user.ID, home.ID)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.True(t, res.Index.Converged)
	assert.Empty(t, env.members(t, index.FamilyHomeByUserID, user.ID))
}

func TestLinkAcrossOrganizationsDenied(t *testing.T) {
	env := newTestEnv(t)
	home := env.createHome(t, "h1", false)
	other := env.otherOrg(t)
	stranger, err := env.links.CreateUser(env.ctx, other, "stranger")
	require.NoError(t, err)

	_, err = env.links.LinkUser(env.ctx, env.orgID, stranger.ID, home.ID)
	assert.ErrorIs(t, err, ErrAccessDenied)
	_, err = env.links.ListUserHomes(env.ctx, env.orgID, stranger.ID)
	assert.ErrorIs(t, err, ErrAccessDenied)

	_, err = env.links.CreateUser(env.ctx, env.orgID, " ")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestUserVisibilityMatchesLinksAndState(t *testing.T) {
	env := newTestEnv(t)
	homes := []*models.Home{
		env.createHome(t, "h1", false),
		env.createHome(t, "h2", true),
		env.createHome(t, "h3", false),
	}
	users := []*models.User{env.createUser(t, "u1"), env.createUser(t, "u2")}

	_, err := env.links.LinkUser(env.ctx, env.orgID, users[0].ID, homes[0].ID)
	require.NoError(t, err)
	_, err = env.links.LinkUser(env.ctx, env.orgID, users[0].ID, homes[1].ID)
	require.NoError(t, err)
	_, err = env.links.BulkLink(env.ctx, env.orgID, BulkLinkInput{
		HomeIDs:       []string{homes[1].ID, homes[2].ID},
		AttachUserIDs: []string{users[1].ID},
	})
	require.NoError(t, err)
	_, err = env.homes.DisableHome(env.ctx, env.orgID, homes[2].ID)
	require.NoError(t, err)
	_, err = env.homes.EnableHome(env.ctx, env.orgID, homes[1].ID)
	require.NoError(t, err)

	for _, u := range users {
		var linked []string
		require.NoError(t, env.db.Model(&models.UserHome{}).Where("user_id = ?", u.ID).Pluck("home_id", &linked).Error)
		visible := env.members(t, index.FamilyHomeByUserID, u.ID)
		for _, h := range homes {
			var stored models.Home
			require.NoError(t, env.db.Where("id = ?", h.ID).First(&stored).Error)
			assert.Equal(t, contains(linked, h.ID) && !stored.Disabled, contains(visible, h.ID),
				"user %s home %s", u.Name, h.UniqueID)
		}
	}
}

func contains(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}
