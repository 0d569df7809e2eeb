package services

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smarthome-index-service/internal/domain/index"
	"smarthome-index-service/internal/domain/models"
)

var errCacheDown = errors.New("cache unavailable")

func TestDisableAndReenableHome(t *testing.T) {
	env := newTestEnv(t)
	home := env.createHome(t, "abc", false)
	d1 := env.createDevice(t, "dev-1", home)
	d2 := env.createDevice(t, "dev-2", home)

	assert.ElementsMatch(t, []string{d1.ID, d2.ID}, env.members(t, index.FamilyDeviceByHomeID, home.ID))
	assert.ElementsMatch(t, []string{"dev-1", "dev-2"}, env.members(t, index.FamilyDeviceByHomeUniqueKey, "abc"))

	res, err := env.homes.DisableHome(env.ctx, env.orgID, home.ID)
	require.NoError(t, err)
	assert.True(t, res.Home.Disabled)
	assert.True(t, res.Index.Converged)
	assert.Empty(t, env.members(t, index.FamilyDeviceByHomeID, home.ID))
	assert.Empty(t, env.members(t, index.FamilyDeviceByHomeUniqueKey, "abc"))

	res, err = env.homes.EnableHome(env.ctx, env.orgID, home.ID)
	require.NoError(t, err)
	assert.False(t, res.Home.Disabled)
	assert.ElementsMatch(t, []string{d1.ID, d2.ID}, env.members(t, index.FamilyDeviceByHomeID, home.ID))
	assert.ElementsMatch(t, []string{"dev-1", "dev-2"}, env.members(t, index.FamilyDeviceByHomeUniqueKey, "abc"))

	view, err := env.homes.ListHomeDevices(env.ctx, env.orgID, home.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{d1.ID, d2.ID}, view.DeviceIDs)
	assert.ElementsMatch(t, []string{"dev-1", "dev-2"}, view.DeviceUniqueIDs)
}

func TestDisableKeepsLinkButHidesHome(t *testing.T) {
	env := newTestEnv(t)
	home := env.createHome(t, "abc", false)
	user := env.createUser(t, "u1")

	link, err := env.links.LinkUser(env.ctx, env.orgID, user.ID, home.ID)
	require.NoError(t, err)
	assert.True(t, link.Changed)
	assert.Equal(t, []string{home.ID}, env.members(t, index.FamilyHomeByUserID, user.ID))

	_, err = env.homes.DisableHome(env.ctx, env.orgID, home.ID)
	require.NoError(t, err)
	assert.Empty(t, env.members(t, index.FamilyHomeByUserID, user.ID))

	var count int64
	require.NoError(t, env.db.Model(&models.UserHome{}).Where("user_id = ? AND home_id = ?", user.ID, home.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	_, err = env.homes.EnableHome(env.ctx, env.orgID, home.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{home.ID}, env.members(t, index.FamilyHomeByUserID, user.ID))

	view, err := env.links.ListUserHomes(env.ctx, env.orgID, user.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{home.ID}, view.HomeIDs)
	assert.Equal(t, []string{home.ID}, view.LinkedHomeIDs)
}

func TestRenameEnabledHomeMovesUniqueKey(t *testing.T) {
	env := newTestEnv(t)
	home := env.createHome(t, "abc", false)
	env.createDevice(t, "dev-1", home)
	env.createDevice(t, "dev-2", home)

	newID := "xyz"
	res, err := env.homes.UpdateHome(env.ctx, env.orgID, home.ID, HomePatch{UniqueID: &newID})
	require.NoError(t, err)
	assert.Equal(t, "xyz", res.Home.UniqueID)
	assert.True(t, res.Index.Converged)

	assert.Empty(t, env.members(t, index.FamilyDeviceByHomeUniqueKey, "abc"))
	assert.Equal(t, []string{"dev-1", "dev-2"}, env.members(t, index.FamilyDeviceByHomeUniqueKey, "xyz"))
}

func TestRenameAndDisableDeletesBothKeys(t *testing.T) {
	env := newTestEnv(t)
	home := env.createHome(t, "old-key", false)
	env.createDevice(t, "dev-1", home)

	newID := "new-key"
	disabled := true
	res, err := env.homes.UpdateHome(env.ctx, env.orgID, home.ID, HomePatch{UniqueID: &newID, Disabled: &disabled})
	require.NoError(t, err)
	assert.Equal(t, "new-key", res.Home.UniqueID)
	assert.True(t, res.Home.Disabled)

	assert.Empty(t, env.members(t, index.FamilyDeviceByHomeUniqueKey, "old-key"))
	assert.Empty(t, env.members(t, index.FamilyDeviceByHomeUniqueKey, "new-key"))
	assert.Empty(t, env.members(t, index.FamilyDeviceByHomeID, home.ID))
}

func TestEnableWithCacheFailureLeavesObservableDivergence(t *testing.T) {
	env := newTestEnv(t)
	home := env.createHome(t, "abc", true)
	env.createDevice(t, "dev-1", home)
	env.createDevice(t, "dev-2", home)

	env.cache.SetFailure(func(index.CacheOp, index.Family, string, string) error {
		return errCacheDown
	})
	res, err := env.homes.EnableHome(env.ctx, env.orgID, home.ID)
	require.NoError(t, err, "relational write succeeds even when the index cannot converge")
	assert.False(t, res.Index.Converged)
	assert.Contains(t, res.Index.FailedKeys, string(index.FamilyDeviceByHomeID)+":"+home.ID)
	env.cache.SetFailure(nil)

	stored, err := env.homes.GetHome(env.ctx, env.orgID, home.ID)
	require.NoError(t, err)
	assert.False(t, stored.Disabled)
	assert.Len(t, stored.Devices, 2)
	assert.Empty(t, env.members(t, index.FamilyDeviceByHomeID, home.ID))

	// 下一次触及该住宅的写入负责收敛
	res, err = env.homes.UpdateHome(env.ctx, env.orgID, home.ID, HomePatch{})
	require.NoError(t, err)
	assert.True(t, res.Index.Converged)
	assert.Len(t, env.members(t, index.FamilyDeviceByHomeID, home.ID), 2)
}

func TestBulkDisableAndEnable(t *testing.T) {
	env := newTestEnv(t)
	h1 := env.createHome(t, "h1", false)
	h2 := env.createHome(t, "h2", true)
	d1 := env.createDevice(t, "dev-1", h1)
	d2 := env.createDevice(t, "dev-2", h2)
	user := env.createUser(t, "u1")
	_, err := env.links.BulkLink(env.ctx, env.orgID, BulkLinkInput{
		HomeIDs:       []string{h1.ID, h2.ID},
		AttachUserIDs: []string{user.ID},
	})
	require.NoError(t, err)

	res, err := env.homes.BulkEnableHomes(env.ctx, env.orgID, []string{h1.ID, h2.ID, h1.ID})
	require.NoError(t, err)
	assert.Len(t, res.Homes, 2)
	assert.True(t, res.Index.Converged)
	assert.Equal(t, []string{d1.ID}, env.members(t, index.FamilyDeviceByHomeID, h1.ID))
	assert.Equal(t, []string{d2.ID}, env.members(t, index.FamilyDeviceByHomeID, h2.ID))
	assert.ElementsMatch(t, []string{h1.ID, h2.ID}, env.members(t, index.FamilyHomeByUserID, user.ID))

	snapshot := env.cache.Size()
	_, err = env.homes.BulkEnableHomes(env.ctx, env.orgID, []string{h1.ID, h2.ID})
	require.NoError(t, err)
	assert.Equal(t, snapshot, env.cache.Size())

	res, err = env.homes.BulkDisableHomes(env.ctx, env.orgID, []string{h1.ID, h2.ID})
	require.NoError(t, err)
	for _, h := range res.Homes {
		assert.True(t, h.Disabled)
	}
	assert.Empty(t, env.members(t, index.FamilyDeviceByHomeID, h1.ID))
	assert.Empty(t, env.members(t, index.FamilyDeviceByHomeID, h2.ID))
	assert.Empty(t, env.members(t, index.FamilyHomeByUserID, user.ID))
}

func TestBulkDisableFailsClosed(t *testing.T) {
	env := newTestEnv(t)
	h1 := env.createHome(t, "h1", false)
	env.createDevice(t, "dev-1", h1)

	_, err := env.homes.BulkDisableHomes(env.ctx, env.orgID, []string{h1.ID, "missing"})
	assert.ErrorIs(t, err, ErrNotFound)

	other := env.otherOrg(t)
	foreign, err := env.homes.CreateHome(env.ctx, other, HomeInput{UniqueID: "foreign"})
	require.NoError(t, err)
	_, err = env.homes.BulkDisableHomes(env.ctx, env.orgID, []string{h1.ID, foreign.Home.ID})
	assert.ErrorIs(t, err, ErrAccessDenied)

	stored, err := env.homes.GetHome(env.ctx, env.orgID, h1.ID)
	require.NoError(t, err)
	assert.False(t, stored.Disabled)
	assert.Len(t, env.members(t, index.FamilyDeviceByHomeID, h1.ID), 1)

	_, err = env.homes.BulkDisableHomes(env.ctx, env.orgID, nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestHomeErrors(t *testing.T) {
	env := newTestEnv(t)
	home := env.createHome(t, "abc", false)
	env.createHome(t, "taken", false)

	_, err := env.homes.CreateHome(env.ctx, env.orgID, HomeInput{UniqueID: "abc"})
	assert.ErrorIs(t, err, ErrRelationalConflict)

	_, err = env.homes.CreateHome(env.ctx, env.orgID, HomeInput{UniqueID: "  "})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	taken := "taken"
	_, err = env.homes.UpdateHome(env.ctx, env.orgID, home.ID, HomePatch{UniqueID: &taken})
	assert.ErrorIs(t, err, ErrRelationalConflict)

	_, err = env.homes.DisableHome(env.ctx, env.orgID, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	other := env.otherOrg(t)
	_, err = env.homes.DisableHome(env.ctx, other, home.ID)
	assert.ErrorIs(t, err, ErrAccessDenied)
	_, err = env.homes.ListHomeDevices(env.ctx, other, home.ID)
	assert.ErrorIs(t, err, ErrAccessDenied)

	stored, err := env.homes.GetHome(env.ctx, env.orgID, home.ID)
	require.NoError(t, err)
	assert.Equal(t, "abc", stored.UniqueID)
	assert.False(t, stored.Disabled)
}

func TestDeleteHome(t *testing.T) {
	env := newTestEnv(t)
	home := env.createHome(t, "abc", false)
	device := env.createDevice(t, "dev-1", home)
	user := env.createUser(t, "u1")
	_, err := env.links.LinkUser(env.ctx, env.orgID, user.ID, home.ID)
	require.NoError(t, err)

	status, err := env.homes.DeleteHome(env.ctx, env.orgID, home.ID)
	require.NoError(t, err)
	assert.True(t, status.Converged)

	assert.Empty(t, env.members(t, index.FamilyDeviceByHomeID, home.ID))
	assert.Empty(t, env.members(t, index.FamilyDeviceByHomeUniqueKey, "abc"))
	assert.Empty(t, env.members(t, index.FamilyHomeByUserID, user.ID))

	_, err = env.homes.GetHome(env.ctx, env.orgID, home.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	stored, err := env.devices.GetDevice(env.ctx, env.orgID, device.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.HomeID)

	var links int64
	require.NoError(t, env.db.Model(&models.UserHome{}).Where("home_id = ?", home.ID).Count(&links).Error)
	assert.Zero(t, links)
}

func TestListHomesScopedToOrganization(t *testing.T) {
	env := newTestEnv(t)
	env.createHome(t, "b", false)
	env.createHome(t, "a", false)
	other := env.otherOrg(t)
	_, err := env.homes.CreateHome(env.ctx, other, HomeInput{UniqueID: "c"})
	require.NoError(t, err)

	homes, total, err := env.homes.ListHomes(env.ctx, env.orgID, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, homes, 1)
	assert.Equal(t, "a", homes[0].UniqueID)
}

// holdUniqueKeyDelete 让第一次删除 device-by-home-unique-key 下 uniqueID 键的操作停住，
// 返回的 entered 在停住时关闭，调用 release 后继续
func holdUniqueKeyDelete(env *testEnv, uniqueID string) (entered <-chan struct{}, release func()) {
	in := make(chan struct{})
	out := make(chan struct{})
	var once sync.Once
	env.cache.SetFailure(func(op index.CacheOp, family index.Family, key, member string) error {
		if op == index.OpDeleteKey && family == index.FamilyDeviceByHomeUniqueKey && key == uniqueID {
			once.Do(func() {
				close(in)
				<-out
			})
		}
		return nil
	})
	return in, func() { close(out) }
}

// takeFreedUniqueID 在 first 收敛停住期间把 second 改名为 uniqueID，
// 确认改名要等 first 收敛结束才能完成
func takeFreedUniqueID(t *testing.T, env *testEnv, second *models.Home, uniqueID string, entered <-chan struct{}, release func(), first <-chan error) {
	t.Helper()

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("首个写入没有进入收敛")
	}

	renamed := make(chan *HomeResult, 1)
	go func() {
		res, err := env.homes.UpdateHome(env.ctx, env.orgID, second.ID, HomePatch{UniqueID: &uniqueID})
		assert.NoError(t, err)
		renamed <- res
	}()

	select {
	case <-renamed:
		t.Fatal("改名在旧标识清理完成前就已完成")
	case <-time.After(50 * time.Millisecond):
	}

	release()
	require.NoError(t, <-first)
	res := <-renamed
	require.NotNil(t, res)
	assert.True(t, res.Index.Converged)
}

func TestRenameCannotOvertakeRetiringUniqueKey(t *testing.T) {
	env := newTestEnv(t)
	h1 := env.createHome(t, "abc", false)
	h2 := env.createHome(t, "other", false)
	env.createDevice(t, "dev-1", h1)
	env.createDevice(t, "dev-2", h2)

	entered, release := holdUniqueKeyDelete(env, "abc")
	first := make(chan error, 1)
	go func() {
		newID := "xyz"
		_, err := env.homes.UpdateHome(env.ctx, env.orgID, h1.ID, HomePatch{UniqueID: &newID})
		first <- err
	}()

	takeFreedUniqueID(t, env, h2, "abc", entered, release, first)

	assert.Equal(t, []string{"dev-2"}, env.members(t, index.FamilyDeviceByHomeUniqueKey, "abc"))
	assert.Equal(t, []string{"dev-1"}, env.members(t, index.FamilyDeviceByHomeUniqueKey, "xyz"))
	assert.Empty(t, env.members(t, index.FamilyDeviceByHomeUniqueKey, "other"))
}

func TestDeletedHomeUniqueIDReusedWhileRetiring(t *testing.T) {
	env := newTestEnv(t)
	h1 := env.createHome(t, "abc", false)
	h2 := env.createHome(t, "other", false)
	env.createDevice(t, "dev-1", h1)
	d2 := env.createDevice(t, "dev-2", h2)

	entered, release := holdUniqueKeyDelete(env, "abc")
	first := make(chan error, 1)
	go func() {
		_, err := env.homes.DeleteHome(env.ctx, env.orgID, h1.ID)
		first <- err
	}()

	takeFreedUniqueID(t, env, h2, "abc", entered, release, first)

	assert.Equal(t, []string{"dev-2"}, env.members(t, index.FamilyDeviceByHomeUniqueKey, "abc"))
	assert.Equal(t, []string{d2.ID}, env.members(t, index.FamilyDeviceByHomeID, h2.ID))
	assert.Empty(t, env.members(t, index.FamilyDeviceByHomeID, h1.ID))
}
