package session

import (
	"time"

	"github.com/yourusername/k8s-console/internal/model"
)

// ViewMode is the active screen
type ViewMode int

const (
	ModeBrowse ViewMode = iota
	ModeDetail
	ModeLogs
	ModeHelp
)

func (m ViewMode) String() string {
	switch m {
	case ModeBrowse:
		return "browse"
	case ModeDetail:
		return "detail"
	case ModeLogs:
		return "logs"
	case ModeHelp:
		return "help"
	default:
		return "unknown"
	}
}

// Focus is the Browse element receiving navigation
type Focus int

const (
	FocusContext Focus = iota
	FocusNamespace
	FocusType
	FocusList
)

func (f Focus) String() string {
	switch f {
	case FocusContext:
		return "context"
	case FocusNamespace:
		return "namespace"
	case FocusType:
		return "type"
	case FocusList:
		return "list"
	default:
		return "unknown"
	}
}

func (f Focus) next() Focus { return (f + 1) % (FocusList + 1) }

func (f Focus) prev() Focus { return (f + FocusList) % (FocusList + 1) }

// Action is an abstract operator input. Key bindings live in the renderer.
type Action int

const (
	ActionNone Action = iota
	ActionQuit
	ActionForceQuit
	ActionHelp
	ActionBack
	ActionUp
	ActionDown
	ActionPrev
	ActionNext
	ActionFocusNext
	ActionFocusPrev
	ActionOpen
	ActionFilter
	ActionDelete
	ActionRestart
	ActionEdit
	ActionLogs
	ActionToggleFollow
	ActionTop
	ActionBottom
	ActionPageUp
	ActionPageDown
	ActionConfirm
	ActionCopy
	ActionOpenLogs
	ActionChar
	ActionBackspace
)

var actionNames = map[Action]string{
	ActionNone:         "none",
	ActionQuit:         "quit",
	ActionForceQuit:    "force-quit",
	ActionHelp:         "help",
	ActionBack:         "back",
	ActionUp:           "up",
	ActionDown:         "down",
	ActionPrev:         "prev",
	ActionNext:         "next",
	ActionFocusNext:    "focus-next",
	ActionFocusPrev:    "focus-prev",
	ActionOpen:         "open",
	ActionFilter:       "filter",
	ActionDelete:       "delete",
	ActionRestart:      "restart",
	ActionEdit:         "edit",
	ActionLogs:         "logs",
	ActionToggleFollow: "toggle-follow",
	ActionTop:          "top",
	ActionBottom:       "bottom",
	ActionPageUp:       "page-up",
	ActionPageDown:     "page-down",
	ActionConfirm:      "confirm",
	ActionCopy:         "copy",
	ActionOpenLogs:     "open-logs",
	ActionChar:         "char",
	ActionBackspace:    "backspace",
}

func (a Action) String() string {
	if name, ok := actionNames[a]; ok {
		return name
	}
	return "unknown"
}

// Input is the payload of events.KindInput
type Input struct {
	Action Action
	Rune   rune // ActionChar only
}

// Key builds an Input for a plain action
func Key(a Action) Input { return Input{Action: a} }

// Char builds an Input for a typed character
func Char(r rune) Input { return Input{Action: ActionChar, Rune: r} }

// ConfirmKind is the action awaiting confirmation
type ConfirmKind int

const (
	ConfirmDelete ConfirmKind = iota
	ConfirmRestart
)

func (k ConfirmKind) String() string {
	if k == ConfirmRestart {
		return "restart"
	}
	return "delete"
}

// Confirmation is a pending destructive action
type Confirmation struct {
	Kind   ConfirmKind
	Type   model.ResourceType
	Target model.Key
}

// BannerLevel is the severity of a status banner
type BannerLevel int

const (
	BannerInfo BannerLevel = iota
	BannerError
)

// Banner is the one-line status message. Sticky banners have no expiry.
type Banner struct {
	Text      string
	Level     BannerLevel
	ExpiresAt time.Time
	Sticky    bool
}

// ContextsLoaded is the payload of events.KindContextsLoaded
type ContextsLoaded struct {
	Contexts []model.ClusterContext
	Current  string
}

// NamespacesLoaded is the payload of events.KindNamespacesLoaded
type NamespacesLoaded struct {
	Seq        uint64
	Context    string
	Namespaces []string
	Err        error
}
