package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"smarthome-index-service/internal/domain/index"
	"smarthome-index-service/internal/domain/models"
	"smarthome-index-service/internal/infrastructure/config"
	"smarthome-index-service/internal/infrastructure/database"
)

type testEnv struct {
	db      *gorm.DB
	cfg     *config.Config
	cache   *index.MemoryCache
	engine  *index.Engine
	homes   InterfaceHomeService
	devices InterfaceDeviceService
	links   InterfaceUserHomeService
	jwt     InterfaceJWTService
	orgID   string
	ctx     context.Context
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := database.Open("sqlite", ":memory:", logger.Silent)
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, database.AutoMigrate(db))

	org := models.Organization{Name: "acme"}
	require.NoError(t, db.Create(&org).Error)

	cfg := &config.Config{JWTSecretKey: "test-secret"}
	cache := index.NewMemoryCache()
	engine := index.NewEngine(cache, 4, nil)
	locker := index.NewKeyedLocker()

	return &testEnv{
		db:      db,
		cfg:     cfg,
		cache:   cache,
		engine:  engine,
		homes:   NewHomeService(db, cfg, engine, locker),
		devices: NewDeviceService(db, cfg, engine, locker),
		links:   NewUserHomeService(db, cfg, engine, locker),
		jwt:     NewJWTService(cfg, db),
		orgID:   org.ID,
		ctx:     context.Background(),
	}
}

func (e *testEnv) createHome(t *testing.T, uniqueID string, disabled bool) *models.Home {
	t.Helper()
	res, err := e.homes.CreateHome(e.ctx, e.orgID, HomeInput{UniqueID: uniqueID, Name: uniqueID, Disabled: disabled})
	require.NoError(t, err)
	return res.Home
}

func (e *testEnv) createDevice(t *testing.T, uniqueID string, home *models.Home) *models.Device {
	t.Helper()
	input := DeviceInput{UniqueID: uniqueID}
	if home != nil {
		input.HomeID = &home.ID
	}
	res, err := e.devices.CreateDevice(e.ctx, e.orgID, input)
	require.NoError(t, err)
	require.True(t, res.Index.Converged)
	return res.Device
}

func (e *testEnv) createUser(t *testing.T, name string) *models.User {
	t.Helper()
	user, err := e.links.CreateUser(e.ctx, e.orgID, name)
	require.NoError(t, err)
	return user
}

func (e *testEnv) members(t *testing.T, family index.Family, key string) []string {
	t.Helper()
	members, err := e.cache.ListMembers(e.ctx, family, key)
	require.NoError(t, err)
	return members
}

func (e *testEnv) otherOrg(t *testing.T) string {
	t.Helper()
	org := models.Organization{Name: "other"}
	require.NoError(t, e.db.Create(&org).Error)
	return org.ID
}
