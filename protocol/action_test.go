package protocol

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestActionClassification(t *testing.T) {
	require.Equal(t, KindAction, ActionSearch.Kind())
	require.Equal(t, KindAction, ActionConfirm.Kind())
	require.Equal(t, KindCallback, ActionOnSearch.Kind())
	require.Equal(t, KindCallback, ActionOnConfirm.Kind())

	// Unknown actions classify as actions so they still hit the duplicate guard.
	require.Equal(t, KindAction, Action("frobnicate").Kind())
	require.False(t, Action("frobnicate").Valid())
}

func TestActionCallbackPairs(t *testing.T) {
	for action, kind := range Actions() {
		if kind != KindAction {
			continue
		}
		callback := action.Callback()
		require.Equal(t, KindCallback, callback.Kind(), "callback of %s", action)
		require.Equal(t, action, callback.Origin())
	}

	require.Equal(t, Action(""), ActionOnSearch.Callback())
	require.Equal(t, Action(""), ActionSearch.Origin())
	require.Equal(t, Action(""), Action("frobnicate").Callback())
}

func TestBroadcastIsSearchOnly(t *testing.T) {
	for action := range Actions() {
		if action == ActionSearch {
			require.True(t, action.Broadcast())
		} else {
			require.False(t, action.Broadcast(), "action %s", action)
		}
	}
}
