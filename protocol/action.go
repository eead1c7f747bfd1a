package protocol

import "strings"

// Action names a protocol operation carried in an envelope context.
type Action string

const (
	ActionSearch  Action = "search"
	ActionSelect  Action = "select"
	ActionInit    Action = "init"
	ActionConfirm Action = "confirm"
	ActionStatus  Action = "status"
	ActionTrack   Action = "track"
	ActionCancel  Action = "cancel"
	ActionUpdate  Action = "update"
	ActionRating  Action = "rating"
	ActionSupport Action = "support"

	ActionOnSearch  Action = "on_search"
	ActionOnSelect  Action = "on_select"
	ActionOnInit    Action = "on_init"
	ActionOnConfirm Action = "on_confirm"
	ActionOnStatus  Action = "on_status"
	ActionOnTrack   Action = "on_track"
	ActionOnCancel  Action = "on_cancel"
	ActionOnUpdate  Action = "on_update"
	ActionOnRating  Action = "on_rating"
	ActionOnSupport Action = "on_support"
)

// MessageKind is the closed action-vs-callback classification. Routing and
// duplicate detection branch on this, never on string inspection of the action.
type MessageKind int

const (
	// KindAction is a request initiated by a counterpart.
	KindAction MessageKind = iota
	// KindCallback is the asynchronous answer to a prior action. Callbacks
	// legitimately reuse the triggering action's message_id.
	KindCallback
)

var actions = map[Action]MessageKind{
	ActionSearch:  KindAction,
	ActionSelect:  KindAction,
	ActionInit:    KindAction,
	ActionConfirm: KindAction,
	ActionStatus:  KindAction,
	ActionTrack:   KindAction,
	ActionCancel:  KindAction,
	ActionUpdate:  KindAction,
	ActionRating:  KindAction,
	ActionSupport: KindAction,

	ActionOnSearch:  KindCallback,
	ActionOnSelect:  KindCallback,
	ActionOnInit:    KindCallback,
	ActionOnConfirm: KindCallback,
	ActionOnStatus:  KindCallback,
	ActionOnTrack:   KindCallback,
	ActionOnCancel:  KindCallback,
	ActionOnUpdate:  KindCallback,
	ActionOnRating:  KindCallback,
	ActionOnSupport: KindCallback,
}

// Actions returns every known action and its kind. The returned map is a
// copy; mutating it does not affect classification.
func Actions() map[Action]MessageKind {
	out := make(map[Action]MessageKind, len(actions))
	for action, kind := range actions {
		out[action] = kind
	}
	return out
}

// Valid returns true if the action is recognized.
func (a Action) Valid() bool {
	_, ok := actions[a]
	return ok
}

// Kind classifies the action. Unknown actions classify as KindAction so they
// still pass through the duplicate guard.
func (a Action) Kind() MessageKind {
	kind, ok := actions[a]
	if !ok {
		return KindAction
	}
	return kind
}

// Callback returns the callback action answering this action, or "" for
// callbacks and unknown actions.
func (a Action) Callback() Action {
	if a.Kind() != KindAction || !a.Valid() {
		return ""
	}
	return Action("on_" + string(a))
}

// Origin returns the action a callback answers, or "" if a is not a callback.
func (a Action) Origin() Action {
	if a.Kind() != KindCallback {
		return ""
	}
	return Action(strings.TrimPrefix(string(a), "on_"))
}

// Broadcast reports whether the action fans out to many counterparts instead
// of one known counterpart.
func (a Action) Broadcast() bool {
	return a == ActionSearch
}
