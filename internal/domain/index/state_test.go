package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStateOf(t *testing.T) {
	assert.Equal(t, StateAbsent, StateOf(true))
	assert.Equal(t, StateMaterialized, StateOf(false))
}

func TestHomeTransitionSteps(t *testing.T) {
	cases := []struct {
		name string
		t    HomeTransition
		want []Step
	}{
		{"stay disabled", HomeTransition{StateAbsent, StateAbsent, false}, []Step{StepRetire}},
		{"stay disabled renamed", HomeTransition{StateAbsent, StateAbsent, true}, []Step{StepRetire}},
		{"enable", HomeTransition{StateAbsent, StateMaterialized, false}, []Step{StepMaterialize, StepRevealToUsers}},
		{"enable renamed", HomeTransition{StateAbsent, StateMaterialized, true}, []Step{StepMaterialize, StepRevealToUsers}},
		{"stay enabled", HomeTransition{StateMaterialized, StateMaterialized, false}, []Step{StepMaterialize}},
		{"stay enabled renamed", HomeTransition{StateMaterialized, StateMaterialized, true}, []Step{StepRetireOldUniqueKey, StepMaterialize}},
		{"disable", HomeTransition{StateMaterialized, StateAbsent, false}, []Step{StepRetire, StepHideFromUsers}},
		{"disable renamed", HomeTransition{StateMaterialized, StateAbsent, true}, []Step{StepRetireOldUniqueKey, StepRetire, StepHideFromUsers}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.t.Steps())
		})
	}
}

func TestTransitionOf(t *testing.T) {
	tr := TransitionOf(
		HomeSnapshot{ID: "H1", UniqueID: "abc", Disabled: false},
		HomeSnapshot{ID: "H1", UniqueID: "xyz", Disabled: true},
	)
	assert.Equal(t, HomeTransition{From: StateMaterialized, To: StateAbsent, Renamed: true}, tr)
	assert.True(t, tr.Changed())
	assert.Equal(t, "absent", tr.To.String())
}
