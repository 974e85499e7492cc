package session

import (
	"time"

	"github.com/yourusername/k8s-console/internal/cache"
	"github.com/yourusername/k8s-console/internal/model"
)

// Snapshot is an immutable picture of the session handed to the renderer
type Snapshot struct {
	Mode     ViewMode
	PrevMode ViewMode // mode underneath the Help overlay
	Focus    Focus

	Contexts       []string
	ContextIndex   int
	Namespaces     []string
	NamespaceIndex int
	Type           model.ResourceType

	Columns      []string
	Items        []model.ResourceItem
	Selected     int
	Filter       string
	FilterActive bool

	Watch   cache.SessionState
	Stale   bool
	Offline bool

	Detail DetailView
	Logs   LogsView

	Confirmation *Confirmation
	Banner       *Banner
	Spinner      int
	Editing      bool

	Width      int
	Height     int
	BodyHeight int
	Now        time.Time
	Quitting   bool
}

// DetailView is the Detail screen content
type DetailView struct {
	Key     model.Key
	Type    model.ResourceType
	Lines   []string
	Offset  int
	Present bool
}

// LogsView is the visible part of the log buffer
type LogsView struct {
	Key     model.Key
	Lines   []string
	Offset  int
	Total   int
	Follow  bool
	Present bool
	Ended   bool
	Err     error
}

// SelectedItem returns the highlighted row, if any
func (s Snapshot) SelectedItem() (model.ResourceItem, bool) {
	if s.Selected < 0 || s.Selected >= len(s.Items) {
		return model.ResourceItem{}, false
	}
	return s.Items[s.Selected], true
}

// Snapshot captures the current state
func (c *Controller) Snapshot() Snapshot {
	view := c.watcher.View()
	now := c.now()

	s := Snapshot{
		Mode:         c.mode(),
		PrevMode:     ModeBrowse,
		Focus:        c.focus,
		Namespaces:   append([]string(nil), c.namespaces...),
		Type:         c.resourceType,
		Columns:      c.resourceType.Columns(),
		Items:        view.Filter(c.filter),
		Selected:     c.selected,
		Filter:       c.filter,
		FilterActive: c.filterActive,
		Watch:        c.watchState,
		Stale:        view.Stale,
		Offline:      view.Offline,
		Spinner:      c.spinner,
		Editing:      c.editing,
		Width:        c.width,
		Height:       c.height,
		BodyHeight:   c.bodyHeight(),
		Now:          now,
		Quitting:     c.quit,
	}
	if len(c.modes) > 1 {
		s.PrevMode = c.modes[len(c.modes)-2]
	}

	for i, cc := range c.contexts {
		s.Contexts = append(s.Contexts, cc.Name)
		if cc.Name == c.kubeContext {
			s.ContextIndex = i
		}
	}
	for i, ns := range c.namespaces {
		if ns == c.namespace {
			s.NamespaceIndex = i
		}
	}

	if c.confirm != nil {
		conf := *c.confirm
		s.Confirmation = &conf
	}
	if c.banner != nil {
		banner := *c.banner
		s.Banner = &banner
	}

	if c.hasMode(ModeDetail) {
		s.Detail = DetailView{Key: c.detailKey, Type: c.detailType, Offset: c.detailOffset}
		if item, ok := view.Get(c.detailKey); ok {
			s.Detail.Present = true
			s.Detail.Lines = DetailLines(item, now)
		}
	}

	if c.hasMode(ModeLogs) {
		s.Logs = LogsView{Key: c.logsKey}
		if buf := c.logs.Buffer(); buf != nil {
			s.Logs.Lines = buf.Visible()
			s.Logs.Offset = buf.Offset()
			s.Logs.Total = buf.Len()
			s.Logs.Follow = buf.Follow()
		}
		s.Logs.Ended, s.Logs.Err = c.logs.Ended()
		if view.Target.Type == model.ResourcePod {
			_, s.Logs.Present = view.Get(c.logsKey)
		} else {
			s.Logs.Present = true
		}
	}

	return s
}

func (c *Controller) hasMode(m ViewMode) bool {
	for _, mode := range c.modes {
		if mode == m {
			return true
		}
	}
	return false
}
