package index

// HomeSnapshot 住宅在某次关系写入前或后的状态
type HomeSnapshot struct {
	ID       string
	UniqueID string
	Disabled bool
}

// DeviceRef 设备的两个标识
type DeviceRef struct {
	ID       string
	UniqueID string
}

// HomeContext 住宅快照及其当前挂载的设备和关联用户
type HomeContext struct {
	Home    HomeSnapshot
	Devices []DeviceRef
	UserIDs []string
}
