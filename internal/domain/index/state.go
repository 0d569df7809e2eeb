package index

// HomeState 住宅在索引中的状态
type HomeState uint8

const (
	// StateAbsent 住宅的设备索引不存在（禁用或已删除）
	StateAbsent HomeState = iota
	// StateMaterialized 住宅的设备索引已写入缓存（启用）
	StateMaterialized
)

func (s HomeState) String() string {
	switch s {
	case StateAbsent:
		return "absent"
	case StateMaterialized:
		return "materialized"
	}
	return "unknown"
}

// StateOf 由禁用标记得到索引状态
func StateOf(disabled bool) HomeState {
	if disabled {
		return StateAbsent
	}
	return StateMaterialized
}

// Step 收敛步骤
type Step uint8

const (
	// StepRetireOldUniqueKey 删除旧唯一标识下的设备索引
	StepRetireOldUniqueKey Step = iota + 1
	// StepMaterialize 按当前设备集合写入两类设备索引
	StepMaterialize
	// StepRetire 删除当前ID和唯一标识下的设备索引
	StepRetire
	// StepHideFromUsers 从所有关联用户的住宅索引中移除
	StepHideFromUsers
	// StepRevealToUsers 向所有关联用户的住宅索引中加入
	StepRevealToUsers
)

func (s Step) String() string {
	switch s {
	case StepRetireOldUniqueKey:
		return "retire_old_unique_key"
	case StepMaterialize:
		return "materialize"
	case StepRetire:
		return "retire"
	case StepHideFromUsers:
		return "hide_from_users"
	case StepRevealToUsers:
		return "reveal_to_users"
	}
	return "unknown"
}

// HomeTransition 一次住宅变更在索引上的状态迁移
type HomeTransition struct {
	From    HomeState
	To      HomeState
	Renamed bool
}

// TransitionOf 由变更前后的快照得到状态迁移
func TransitionOf(previous, updated HomeSnapshot) HomeTransition {
	return HomeTransition{
		From:    StateOf(previous.Disabled),
		To:      StateOf(updated.Disabled),
		Renamed: previous.UniqueID != updated.UniqueID,
	}
}

// Steps 返回迁移需要按顺序执行的步骤。
// 改名同时禁用时旧键和新键都删除，新键不会被写入
func (t HomeTransition) Steps() []Step {
	var steps []Step
	if t.Renamed && t.From == StateMaterialized {
		steps = append(steps, StepRetireOldUniqueKey)
	}

	switch t.To {
	case StateMaterialized:
		steps = append(steps, StepMaterialize)
		if t.From == StateAbsent {
			steps = append(steps, StepRevealToUsers)
		}
	case StateAbsent:
		steps = append(steps, StepRetire)
		if t.From == StateMaterialized {
			steps = append(steps, StepHideFromUsers)
		}
	}
	return steps
}

// Changed 迁移是否改变了启用状态
func (t HomeTransition) Changed() bool {
	return t.From != t.To
}
