package services

import (
	"context"
	"sort"

	"gorm.io/gorm"

	"smarthome-index-service/internal/domain/index"
	"smarthome-index-service/internal/domain/models"
)

// loadHome 在事务内读取住宅并校验组织范围
func loadHome(tx *gorm.DB, orgID, homeID string) (*models.Home, error) {
	var home models.Home
	if err := tx.Where("id = ?", homeID).First(&home).Error; err != nil {
		return nil, translateDBError(err)
	}
	if home.OrganizationID != orgID {
		return nil, ErrAccessDenied
	}
	return &home, nil
}

// loadHomes 读取一批住宅，任一不存在或越权都使整批失败
func loadHomes(tx *gorm.DB, orgID string, homeIDs []string) ([]models.Home, error) {
	var homes []models.Home
	if err := tx.Where("id IN ?", homeIDs).Order("id").Find(&homes).Error; err != nil {
		return nil, translateDBError(err)
	}
	if len(homes) != len(homeIDs) {
		return nil, ErrNotFound
	}
	for _, h := range homes {
		if h.OrganizationID != orgID {
			return nil, ErrAccessDenied
		}
	}
	return homes, nil
}

func loadDevice(tx *gorm.DB, orgID, deviceID string) (*models.Device, error) {
	var device models.Device
	if err := tx.Where("id = ?", deviceID).First(&device).Error; err != nil {
		return nil, translateDBError(err)
	}
	if device.OrganizationID != orgID {
		return nil, ErrAccessDenied
	}
	return &device, nil
}

func loadUser(tx *gorm.DB, orgID, userID string) (*models.User, error) {
	var user models.User
	if err := tx.Where("id = ?", userID).First(&user).Error; err != nil {
		return nil, translateDBError(err)
	}
	if user.OrganizationID != orgID {
		return nil, ErrAccessDenied
	}
	return &user, nil
}

func loadUsers(tx *gorm.DB, orgID string, userIDs []string) error {
	if len(userIDs) == 0 {
		return nil
	}
	var users []models.User
	if err := tx.Where("id IN ?", userIDs).Find(&users).Error; err != nil {
		return translateDBError(err)
	}
	if len(users) != len(userIDs) {
		return ErrNotFound
	}
	for _, u := range users {
		if u.OrganizationID != orgID {
			return ErrAccessDenied
		}
	}
	return nil
}

// lockUniqueKeys 锁定住宅当前唯一标识以及 extra 中标识对应的索引键。
// 调用方须已持有这些住宅的锁，此时它们的唯一标识不会被并发修改
func lockUniqueKeys(ctx context.Context, db *gorm.DB, locker *index.KeyedLocker, homeIDs []string, extra ...string) (func(), error) {
	var uniqueIDs []string
	if len(homeIDs) > 0 {
		if err := db.WithContext(ctx).Model(&models.Home{}).Where("id IN ?", homeIDs).Pluck("unique_id", &uniqueIDs).Error; err != nil {
			return nil, translateDBError(err)
		}
	}

	keys := make([]string, 0, len(uniqueIDs)+len(extra))
	for _, id := range append(uniqueIDs, extra...) {
		if id != "" {
			keys = append(keys, index.UniqueKeyLock(id))
		}
	}
	return locker.LockMany(keys...), nil
}

func snapshotOf(home *models.Home) index.HomeSnapshot {
	return index.HomeSnapshot{
		ID:       home.ID,
		UniqueID: home.UniqueID,
		Disabled: home.Disabled,
	}
}

// readHomeContext 读取住宅当前挂载的设备和关联的用户
func readHomeContext(tx *gorm.DB, home *models.Home) (index.HomeContext, error) {
	hc := index.HomeContext{Home: snapshotOf(home)}

	var devices []models.Device
	if err := tx.Where("home_id = ?", home.ID).Order("unique_id").Find(&devices).Error; err != nil {
		return hc, err
	}
	for _, d := range devices {
		hc.Devices = append(hc.Devices, index.DeviceRef{ID: d.ID, UniqueID: d.UniqueID})
	}

	if err := tx.Model(&models.UserHome{}).Where("home_id = ?", home.ID).Order("user_id").Pluck("user_id", &hc.UserIDs).Error; err != nil {
		return hc, err
	}
	return hc, nil
}

// uniqueStrings 去重并排序，忽略空字符串
func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
