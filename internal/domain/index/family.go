package index

// Family 索引族，每个族是一组 key -> 成员集合
type Family string

const (
	// FamilyDeviceByHomeID 住宅ID -> 设备ID集合
	FamilyDeviceByHomeID Family = "device-by-home-id"
	// FamilyDeviceByHomeUniqueKey 住宅唯一标识 -> 设备唯一标识集合
	FamilyDeviceByHomeUniqueKey Family = "device-by-home-unique-key"
	// FamilyHomeByUserID 用户ID -> 可见住宅ID集合
	FamilyHomeByUserID Family = "home-by-user-id"
)

// Families 返回全部索引族
func Families() []Family {
	return []Family{FamilyDeviceByHomeID, FamilyDeviceByHomeUniqueKey, FamilyHomeByUserID}
}

// Valid 判断索引族是否已定义
func (f Family) Valid() bool {
	switch f {
	case FamilyDeviceByHomeID, FamilyDeviceByHomeUniqueKey, FamilyHomeByUserID:
		return true
	}
	return false
}

// StorageKey 组合缓存中的实际键
func StorageKey(prefix string, family Family, key string) string {
	if prefix == "" {
		return string(family) + ":" + key
	}
	return prefix + ":" + string(family) + ":" + key
}
