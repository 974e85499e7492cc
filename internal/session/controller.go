package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/yourusername/k8s-console/internal/action"
	"github.com/yourusername/k8s-console/internal/cache"
	"github.com/yourusername/k8s-console/internal/datasource"
	"github.com/yourusername/k8s-console/internal/events"
	"github.com/yourusername/k8s-console/internal/logstream"
	"github.com/yourusername/k8s-console/internal/model"
	"go.uber.org/zap"
)

// Watcher drives the single live watch subscription
type Watcher interface {
	Start(target model.Target) uint64
	Stop()
	SessionID() uint64
	View() cache.View
	State() cache.SessionState
}

// LogStreamer drives the single live log stream
type LogStreamer interface {
	Start(kubeContext string, key model.Key, container string) uint64
	Stop()
	StreamID() uint64
	Buffer() *logstream.Buffer
	Ended() (bool, error)
	HandleLines(logstream.Lines) bool
	HandleEnded(logstream.Ended) bool
}

// Actions accepts mutating requests
type Actions interface {
	Submit(req action.Request) uint64
	Edit(kubeContext string, rt model.ResourceType, target model.Key) uint64
	OpenLogs(target model.Key, lines []string) uint64
}

// Renderer receives a snapshot after every event
type Renderer interface {
	Render(Snapshot)
}

// Clipboard copies text for the operator
type Clipboard interface {
	WriteAll(text string) error
}

// Deps are the collaborators of a Controller
type Deps struct {
	Client    datasource.ClusterClient
	Watcher   Watcher
	Logs      LogStreamer
	Actions   Actions
	Publisher events.Publisher
	Renderer  Renderer
	Clipboard Clipboard
}

// Config holds the initial selection and timing of a Controller
type Config struct {
	Namespace string
	Type      model.ResourceType
	BannerTTL time.Duration
	Now       func() time.Time
}

const (
	// DefaultBannerTTL is how long transient banners stay up
	DefaultBannerTTL = 5 * time.Second

	// chromeRows is the number of rows the renderer uses outside the body
	chromeRows = 6

	namespaceLoadTimeout = 15 * time.Second
)

// Controller owns the session state. All state is mutated on the goroutine
// calling Handle (or Run).
type Controller struct {
	client    datasource.ClusterClient
	watcher   Watcher
	logs      LogStreamer
	actions   Actions
	publisher events.Publisher
	renderer  Renderer
	clipboard Clipboard
	bannerTTL time.Duration
	now       func() time.Time
	logger    *zap.Logger

	contexts     []model.ClusterContext
	kubeContext  string
	namespaces   []string
	namespace    string
	resourceType model.ResourceType

	modes        []ViewMode
	focus        Focus
	filter       string
	filterActive bool
	selected     int

	detailKey    model.Key
	detailType   model.ResourceType
	detailOffset int
	logsKey      model.Key

	confirm *Confirmation
	banner  *Banner
	width   int
	height  int
	editing bool
	spinner int
	quit    bool

	watchSession uint64
	watchState   cache.SessionState

	nsSeq     uint64
	switching bool
}

// NewController creates a controller; call Start or Run to begin
func NewController(deps Deps, config Config, logger *zap.Logger) *Controller {
	if config.BannerTTL <= 0 {
		config.BannerTTL = DefaultBannerTTL
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	if config.Namespace == "" {
		config.Namespace = model.AllNamespaces
	}
	return &Controller{
		client:       deps.Client,
		watcher:      deps.Watcher,
		logs:         deps.Logs,
		actions:      deps.Actions,
		publisher:    deps.Publisher,
		renderer:     deps.Renderer,
		clipboard:    deps.Clipboard,
		bannerTTL:    config.BannerTTL,
		now:          config.Now,
		logger:       logger,
		namespace:    config.Namespace,
		resourceType: config.Type,
		modes:        []ViewMode{ModeBrowse},
		focus:        FocusList,
		width:        80,
		height:       24,
	}
}

// Run starts the session and handles events until the stream closes, the
// context is cancelled or the operator quits.
func (c *Controller) Run(ctx context.Context, in <-chan events.Event) error {
	c.Start()
	defer c.shutdown()

	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-in:
			if !ok {
				return nil
			}
			if !c.Handle(e) {
				c.logger.Info("Session ended by operator")
				return nil
			}
		}
	}
}

// Start opens the initial watch and kicks off the context and namespace loaders
func (c *Controller) Start() {
	c.kubeContext = c.client.CurrentContext()
	if c.kubeContext != "" {
		c.contexts = []model.ClusterContext{{Name: c.kubeContext}}
	}
	c.namespaces = []string{model.AllNamespaces}
	if c.namespace != model.AllNamespaces {
		c.namespaces = append(c.namespaces, c.namespace)
	}

	c.logger.Info("Session started",
		zap.String("context", c.kubeContext),
		zap.String("namespace", c.namespace),
		zap.Stringer("type", c.resourceType),
	)

	c.startWatch()
	go c.loadContexts()
	c.loadNamespaces(c.kubeContext, false)
	c.render()
}

func (c *Controller) shutdown() {
	c.logs.Stop()
	c.watcher.Stop()
}

// Handle applies one event, publishes a snapshot and reports whether the
// session should continue.
func (c *Controller) Handle(e events.Event) bool {
	switch e.Kind {
	case events.KindInput:
		if in, ok := e.Payload.(Input); ok {
			c.handleInput(in)
		}
	case events.KindResize:
		if r, ok := e.Payload.(events.Resize); ok {
			c.width, c.height = r.Width, r.Height
			if buf := c.logs.Buffer(); buf != nil {
				buf.SetViewport(c.bodyHeight())
			}
			c.detailOffset = c.clampDetail(c.detailOffset)
		}
	case events.KindTick:
		c.spinner++
		if c.banner != nil && !c.banner.Sticky && !c.now().Before(c.banner.ExpiresAt) {
			c.banner = nil
		}
	case events.KindCacheChanged:
		// The view is pulled at render time; stale sessions are ignored
		if p, ok := e.Payload.(cache.Changed); ok && p.SessionID != c.watchSession {
			return !c.quit
		}
	case events.KindWatchState:
		if p, ok := e.Payload.(cache.StateChanged); ok {
			c.handleWatchState(p)
		}
	case events.KindLogLines:
		if p, ok := e.Payload.(logstream.Lines); ok {
			c.logs.HandleLines(p)
		}
	case events.KindLogEnded:
		if p, ok := e.Payload.(logstream.Ended); ok && c.logs.HandleEnded(p) && p.Err != nil {
			c.setBanner(BannerError, "Log stream ended: "+p.Err.Error())
		}
	case events.KindActionOutcome:
		if p, ok := e.Payload.(action.Outcome); ok {
			c.handleOutcome(p)
		}
	case events.KindEditFinished:
		if p, ok := e.Payload.(action.EditResult); ok {
			c.handleEditFinished(p)
		}
	case events.KindContextsLoaded:
		if p, ok := e.Payload.(ContextsLoaded); ok && len(p.Contexts) > 0 {
			c.contexts = p.Contexts
		}
	case events.KindNamespacesLoaded:
		if p, ok := e.Payload.(NamespacesLoaded); ok {
			c.handleNamespacesLoaded(p)
		}
	case events.KindError:
		if err, ok := e.Payload.(error); ok {
			c.setBanner(BannerError, err.Error())
		}
	}

	c.clampSelection()
	c.render()
	return !c.quit
}

func (c *Controller) mode() ViewMode {
	return c.modes[len(c.modes)-1]
}

func (c *Controller) toBrowse() {
	c.modes = []ViewMode{ModeBrowse}
}

func (c *Controller) handleInput(in Input) {
	if in.Action == ActionForceQuit {
		c.quit = true
		return
	}
	if c.editing {
		return
	}

	if c.confirm != nil {
		pending := *c.confirm
		c.confirm = nil
		if in.Action == ActionConfirm {
			c.submitConfirmed(pending)
		} else {
			c.setBanner(BannerInfo, fmt.Sprintf("Cancelled %s of %s", pending.Kind, pending.Target))
		}
		return
	}

	if in.Action == ActionHelp && !c.filterActive {
		if c.mode() == ModeHelp {
			c.modes = c.modes[:len(c.modes)-1]
		} else {
			c.modes = append(c.modes, ModeHelp)
		}
		return
	}

	switch c.mode() {
	case ModeHelp:
		if in.Action == ActionBack || in.Action == ActionQuit {
			c.modes = c.modes[:len(c.modes)-1]
		}
	case ModeBrowse:
		c.handleBrowse(in)
	case ModeDetail:
		c.handleDetail(in)
	case ModeLogs:
		c.handleLogs(in)
	}
}

func (c *Controller) handleBrowse(in Input) {
	if c.filterActive {
		c.handleFilterEntry(in)
		return
	}

	switch in.Action {
	case ActionQuit:
		c.quit = true
		return
	case ActionFocusNext:
		c.focus = c.focus.next()
		return
	case ActionFocusPrev:
		c.focus = c.focus.prev()
		return
	}

	if c.focus != FocusList {
		c.handleSelector(in)
		return
	}

	page := c.bodyHeight()
	switch in.Action {
	case ActionUp:
		c.selected--
	case ActionDown:
		c.selected++
	case ActionPageUp:
		c.selected -= page
	case ActionPageDown:
		c.selected += page
	case ActionTop:
		c.selected = 0
	case ActionBottom:
		c.selected = len(c.filteredItems()) - 1
	case ActionPrev:
		c.changeType(c.resourceType.Prev())
	case ActionNext:
		c.changeType(c.resourceType.Next())
	case ActionFilter:
		c.filterActive = true
	case ActionBack:
		if c.filter != "" {
			c.filter = ""
			c.selected = 0
		}
	case ActionOpen:
		if item, ok := c.selectedItem(); ok {
			c.detailKey = item.Key()
			c.detailType = item.Type
			c.detailOffset = 0
			c.modes = append(c.modes, ModeDetail)
		}
	case ActionDelete, ActionRestart, ActionEdit, ActionLogs, ActionCopy:
		if item, ok := c.selectedItem(); ok {
			c.itemAction(in.Action, item.Type, item.Key())
		}
	}
}

func (c *Controller) handleFilterEntry(in Input) {
	switch in.Action {
	case ActionChar:
		c.filter += string(in.Rune)
		c.selected = 0
	case ActionBackspace:
		if r := []rune(c.filter); len(r) > 0 {
			c.filter = string(r[:len(r)-1])
			c.selected = 0
		}
	case ActionOpen:
		c.filterActive = false
	case ActionBack:
		c.filterActive = false
		c.filter = ""
		c.selected = 0
	case ActionUp:
		c.selected--
	case ActionDown:
		c.selected++
	}
}

func (c *Controller) handleSelector(in Input) {
	delta := 0
	switch in.Action {
	case ActionUp, ActionPrev:
		delta = -1
	case ActionDown, ActionNext:
		delta = 1
	case ActionBack:
		c.focus = FocusList
		return
	case ActionOpen:
		c.focus = c.focus.next()
		return
	default:
		return
	}

	switch c.focus {
	case FocusContext:
		c.changeContext(delta)
	case FocusNamespace:
		c.changeNamespace(delta)
	case FocusType:
		if delta > 0 {
			c.changeType(c.resourceType.Next())
		} else {
			c.changeType(c.resourceType.Prev())
		}
	}
}

func (c *Controller) handleDetail(in Input) {
	page := c.bodyHeight()
	switch in.Action {
	case ActionBack, ActionQuit:
		c.toBrowse()
	case ActionUp:
		c.detailOffset = c.clampDetail(c.detailOffset - 1)
	case ActionDown:
		c.detailOffset = c.clampDetail(c.detailOffset + 1)
	case ActionPageUp:
		c.detailOffset = c.clampDetail(c.detailOffset - page)
	case ActionPageDown:
		c.detailOffset = c.clampDetail(c.detailOffset + page)
	case ActionTop:
		c.detailOffset = 0
	case ActionBottom:
		c.detailOffset = c.clampDetail(len(c.detailContent()))
	case ActionDelete, ActionRestart, ActionEdit, ActionLogs, ActionCopy:
		if _, ok := c.watcher.View().Get(c.detailKey); ok {
			c.itemAction(in.Action, c.detailType, c.detailKey)
		}
	}
}

func (c *Controller) handleLogs(in Input) {
	if in.Action == ActionBack || in.Action == ActionQuit {
		c.logs.Stop()
		c.toBrowse()
		return
	}

	buf := c.logs.Buffer()
	if buf == nil {
		return
	}
	page := c.bodyHeight()
	switch in.Action {
	case ActionUp:
		buf.ScrollUp(1)
	case ActionDown:
		buf.ScrollDown(1)
	case ActionPageUp:
		buf.ScrollUp(page)
	case ActionPageDown:
		buf.ScrollDown(page)
	case ActionTop:
		buf.Top()
	case ActionBottom:
		buf.Bottom()
	case ActionToggleFollow:
		buf.ToggleFollow()
	case ActionOpenLogs:
		c.editing = true
		c.actions.OpenLogs(c.logsKey, buf.Lines())
	case ActionCopy:
		c.copyText(c.logsKey.String())
	}
}

// itemAction handles the per-resource actions shared by List and Detail
func (c *Controller) itemAction(a Action, rt model.ResourceType, key model.Key) {
	switch a {
	case ActionDelete:
		c.confirm = &Confirmation{Kind: ConfirmDelete, Type: rt, Target: key}
	case ActionRestart:
		if !rt.CanRestart() {
			c.setBanner(BannerInfo, "Restart is only available for StatefulSets")
			return
		}
		c.confirm = &Confirmation{Kind: ConfirmRestart, Type: rt, Target: key}
	case ActionEdit:
		if !rt.CanEdit() {
			c.setBanner(BannerInfo, fmt.Sprintf("Edit is not available for %s", rt))
			return
		}
		c.editing = true
		c.actions.Edit(c.kubeContext, rt, key)
		c.setBanner(BannerInfo, "Opening editor for "+key.String())
	case ActionLogs:
		if !rt.HasLogs() {
			c.setBanner(BannerInfo, "Logs are only available for Pods")
			return
		}
		c.openLogs(key)
	case ActionCopy:
		c.copyText(key.String())
	}
}

func (c *Controller) openLogs(key model.Key) {
	c.logsKey = key
	c.logs.Start(c.kubeContext, key, "")
	if buf := c.logs.Buffer(); buf != nil {
		buf.SetViewport(c.bodyHeight())
	}
	c.modes = []ViewMode{ModeBrowse, ModeLogs}
}

func (c *Controller) copyText(text string) {
	if c.clipboard == nil {
		c.setBanner(BannerError, "Clipboard is not available")
		return
	}
	if err := c.clipboard.WriteAll(text); err != nil {
		c.setBanner(BannerError, "Copy failed: "+err.Error())
		return
	}
	c.setBanner(BannerInfo, "Copied "+text)
}

func (c *Controller) submitConfirmed(conf Confirmation) {
	req := action.Request{
		Context: c.kubeContext,
		Type:    conf.Type,
		Target:  conf.Target,
	}
	verb := "Deleting"
	switch conf.Kind {
	case ConfirmDelete:
		req.Kind = action.KindDelete
	case ConfirmRestart:
		req.Kind = action.KindRestart
		verb = "Restarting"
	}
	id := c.actions.Submit(req)
	c.logger.Info("Action submitted",
		zap.Uint64("id", id),
		zap.Stringer("kind", req.Kind),
		zap.Stringer("target", req.Target),
	)
	c.setBanner(BannerInfo, fmt.Sprintf("%s %s %s...", verb, strings.ToLower(conf.Type.Kind()), conf.Target))
}

func (c *Controller) handleOutcome(o action.Outcome) {
	req := o.Request
	if req.Kind == action.KindOpenLogs {
		c.editing = false
		if o.Err != nil {
			c.setBanner(BannerError, "Cannot open logs: "+o.Err.Error())
		}
		return
	}

	kind := strings.ToLower(req.Type.Kind())
	if o.Err != nil {
		c.setBanner(BannerError, fmt.Sprintf("%s %s %s failed: %s", capitalize(req.Kind.String()), kind, req.Target, o.Err.Error()))
		return
	}

	switch req.Kind {
	case action.KindDelete:
		c.setBanner(BannerInfo, fmt.Sprintf("Deleted %s %s", kind, req.Target))
	case action.KindRestart:
		c.setBanner(BannerInfo, fmt.Sprintf("Restarted %s %s", kind, req.Target))
	case action.KindEditApply:
		c.setBanner(BannerInfo, fmt.Sprintf("Applied changes to %s %s", kind, req.Target))
	}
}

func (c *Controller) handleEditFinished(r action.EditResult) {
	c.editing = false
	target := r.Request.Target
	switch {
	case r.Aborted():
		c.setBanner(BannerInfo, "Edit cancelled")
	case r.Err != nil:
		c.setBanner(BannerError, fmt.Sprintf("Edit %s failed: %s", target, r.Err.Error()))
	case !r.Changed:
		c.setBanner(BannerInfo, "No changes to "+target.String())
	default:
		c.actions.Submit(r.Request)
		c.setBanner(BannerInfo, "Applying changes to "+target.String()+"...")
	}
}

func (c *Controller) handleWatchState(p cache.StateChanged) {
	if p.SessionID != c.watchSession {
		return
	}
	c.watchState = p.State

	switch p.State.Phase {
	case cache.PhaseFailed:
		text := "Watch failed: " + p.State.Reason
		if datasource.ReasonOf(p.State.Err) == datasource.ReasonOffline {
			text = "Offline: " + p.State.Reason
		}
		c.banner = &Banner{Text: text, Level: BannerError, Sticky: true}
	case cache.PhaseReconnecting:
		// Auth failures keep retrying; keep the reason up until access returns
		switch datasource.ReasonOf(p.State.Err) {
		case datasource.ReasonForbidden, datasource.ReasonUnauthorized:
			c.banner = &Banner{Text: "Access denied, retrying: " + p.State.Reason, Level: BannerError, Sticky: true}
		}
	case cache.PhaseActive:
		if c.banner != nil && c.banner.Sticky {
			c.banner = nil
		}
	}
}

func (c *Controller) handleNamespacesLoaded(p NamespacesLoaded) {
	if p.Seq != c.nsSeq || p.Context != c.kubeContext {
		return
	}

	if p.Err != nil {
		c.logger.Warn("Failed to list namespaces", zap.String("context", p.Context), zap.Error(p.Err))
		if datasource.ReasonOf(p.Err) != datasource.ReasonOffline {
			c.setBanner(BannerError, "Cannot list namespaces: "+p.Err.Error())
		}
	}

	if c.switching {
		c.switching = false
		if p.Err == nil && c.namespace != model.AllNamespaces && !contains(p.Namespaces, c.namespace) {
			fallback := model.AllNamespaces
			if ns := c.contextDefaultNamespace(); ns != "" && contains(p.Namespaces, ns) {
				fallback = ns
			}
			c.logger.Info("Namespace not present in new context, falling back",
				zap.String("namespace", c.namespace),
				zap.String("fallback", fallback),
			)
			c.namespace = fallback
		}
		c.startWatch()
	}

	namespaces := append([]string{model.AllNamespaces}, p.Namespaces...)
	if c.namespace != model.AllNamespaces && !contains(namespaces, c.namespace) {
		namespaces = append(namespaces, c.namespace)
	}
	c.namespaces = namespaces
}

func (c *Controller) contextDefaultNamespace() string {
	for _, cc := range c.contexts {
		if cc.Name == c.kubeContext {
			return cc.Namespace
		}
	}
	return ""
}

func (c *Controller) changeContext(delta int) {
	n := len(c.contexts)
	if n < 2 {
		return
	}
	idx := 0
	for i, cc := range c.contexts {
		if cc.Name == c.kubeContext {
			idx = i
		}
	}
	name := c.contexts[(idx+delta+n)%n].Name

	if err := c.client.SetCurrentContext(name); err != nil {
		c.setBanner(BannerError, "Cannot switch context: "+err.Error())
		return
	}

	c.logger.Info("Context changed", zap.String("from", c.kubeContext), zap.String("to", name))
	c.kubeContext = name
	c.resetSelection()

	// The watch restarts once the namespace is resolved for the new context
	c.watcher.Stop()
	c.watchSession = 0
	c.watchState = cache.SessionState{Phase: cache.PhaseConnecting}
	c.clearStickyBanner()
	c.loadNamespaces(name, true)
}

func (c *Controller) changeNamespace(delta int) {
	n := len(c.namespaces)
	if n == 0 {
		return
	}
	idx := 0
	for i, ns := range c.namespaces {
		if ns == c.namespace {
			idx = i
		}
	}
	next := c.namespaces[(idx+delta+n)%n]
	if next == c.namespace {
		return
	}
	c.namespace = next
	c.switching = false
	c.resetSelection()
	c.startWatch()
}

func (c *Controller) changeType(rt model.ResourceType) {
	if rt == c.resourceType {
		return
	}
	c.resourceType = rt
	c.resetSelection()
	if !c.switching {
		c.startWatch()
	}
}

func (c *Controller) resetSelection() {
	c.selected = 0
	c.filter = ""
	c.filterActive = false
}

func (c *Controller) target() model.Target {
	return model.Target{Context: c.kubeContext, Namespace: c.namespace, Type: c.resourceType}
}

func (c *Controller) startWatch() {
	c.watchSession = c.watcher.Start(c.target())
	c.watchState = cache.SessionState{Phase: cache.PhaseConnecting}
	c.clearStickyBanner()
}

func (c *Controller) clearStickyBanner() {
	if c.banner != nil && c.banner.Sticky {
		c.banner = nil
	}
}

func (c *Controller) loadContexts() {
	c.publisher.Publish(events.Event{
		Kind: events.KindContextsLoaded,
		Payload: ContextsLoaded{
			Contexts: c.client.ListContexts(),
			Current:  c.client.CurrentContext(),
		},
	})
}

func (c *Controller) loadNamespaces(kubeContext string, switching bool) {
	c.nsSeq++
	c.switching = switching
	seq := c.nsSeq
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), namespaceLoadTimeout)
		defer cancel()
		namespaces, err := c.client.ListNamespaces(ctx, kubeContext)
		c.publisher.Publish(events.Event{
			Kind:    events.KindNamespacesLoaded,
			Payload: NamespacesLoaded{Seq: seq, Context: kubeContext, Namespaces: namespaces, Err: err},
		})
	}()
}

func (c *Controller) setBanner(level BannerLevel, text string) {
	c.banner = &Banner{Text: text, Level: level, ExpiresAt: c.now().Add(c.bannerTTL)}
}

func (c *Controller) filteredItems() []model.ResourceItem {
	return c.watcher.View().Filter(c.filter)
}

func (c *Controller) selectedItem() (model.ResourceItem, bool) {
	items := c.filteredItems()
	if c.selected < 0 || c.selected >= len(items) {
		return model.ResourceItem{}, false
	}
	return items[c.selected], true
}

func (c *Controller) clampSelection() {
	n := len(c.filteredItems())
	if c.selected >= n {
		c.selected = n - 1
	}
	if c.selected < 0 {
		c.selected = 0
	}
}

func (c *Controller) bodyHeight() int {
	if h := c.height - chromeRows; h > 1 {
		return h
	}
	return 1
}

// detailContent returns the detail lines, or nil when the item is gone
func (c *Controller) detailContent() []string {
	item, ok := c.watcher.View().Get(c.detailKey)
	if !ok {
		return nil
	}
	return DetailLines(item, c.now())
}

func (c *Controller) clampDetail(offset int) int {
	maxOffset := len(c.detailContent()) - c.bodyHeight()
	if offset > maxOffset {
		offset = maxOffset
	}
	if offset < 0 {
		offset = 0
	}
	return offset
}

func (c *Controller) render() {
	if c.renderer != nil {
		c.renderer.Render(c.Snapshot())
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
