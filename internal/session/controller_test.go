package session

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/k8s-console/internal/action"
	"github.com/yourusername/k8s-console/internal/cache"
	"github.com/yourusername/k8s-console/internal/datasource"
	"github.com/yourusername/k8s-console/internal/datasource/fake"
	"github.com/yourusername/k8s-console/internal/events"
	"github.com/yourusername/k8s-console/internal/logstream"
	"github.com/yourusername/k8s-console/internal/model"
	"go.uber.org/zap"
	k8serrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/runtime/schema"
)

type chanPublisher chan events.Event

func (c chanPublisher) Publish(e events.Event) { c <- e }

type editorFunc func(ctx context.Context, name, text string) (string, error)

func (f editorFunc) Edit(ctx context.Context, name, text string) (string, error) {
	return f(ctx, name, text)
}

type lastRenderer struct {
	last  Snapshot
	count int
}

func (r *lastRenderer) Render(s Snapshot) {
	r.last = s
	r.count++
}

type memClipboard struct {
	text string
}

func (c *memClipboard) WriteAll(text string) error {
	c.text = text
	return nil
}

type harness struct {
	t        *testing.T
	client   *fake.Client
	ctrl     *Controller
	pub      chanPublisher
	renderer *lastRenderer
	clip     *memClipboard
	now      time.Time
}

func pod(namespace, name string) model.ResourceItem {
	return model.ResourceItem{Type: model.ResourcePod, Namespace: namespace, Name: name, Status: "Running"}
}

func statefulSet(namespace, name string) model.ResourceItem {
	return model.ResourceItem{
		Type:        model.ResourceStatefulSet,
		Namespace:   namespace,
		Name:        name,
		StatefulSet: &model.StatefulSetData{Replicas: 2, ReadyReplicas: 2},
	}
}

func unchanged() action.Editor {
	return editorFunc(func(_ context.Context, _, text string) (string, error) { return text, nil })
}

func newHarness(t *testing.T, client *fake.Client, editor action.Editor, config Config) *harness {
	t.Helper()
	h := &harness{
		t:        t,
		client:   client,
		pub:      make(chanPublisher, 1024),
		renderer: &lastRenderer{},
		clip:     &memClipboard{},
		now:      time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	config.Now = func() time.Time { return h.now }

	logger := zap.NewNop()
	watcher := cache.NewWatchManager(client, h.pub, cache.WatchConfig{
		BackoffInitial: 5 * time.Millisecond,
		BackoffMax:     20 * time.Millisecond,
		StaleTimeout:   time.Minute,
	}, logger)
	streamer := logstream.NewStreamer(client, h.pub, logstream.Config{}, logger)
	pipeline := action.NewPipeline(client, editor, h.pub, logger)

	h.ctrl = NewController(Deps{
		Client:    client,
		Watcher:   watcher,
		Logs:      streamer,
		Actions:   pipeline,
		Publisher: h.pub,
		Renderer:  h.renderer,
		Clipboard: h.clip,
	}, config, logger)

	t.Cleanup(func() {
		pipeline.Close()
		h.ctrl.shutdown()
	})
	h.ctrl.Start()
	return h
}

// pump feeds published events to the controller until cond holds
func (h *harness) pump(what string, cond func(Snapshot) bool) Snapshot {
	h.t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if s := h.ctrl.Snapshot(); cond(s) {
			return s
		}
		select {
		case e := <-h.pub:
			h.ctrl.Handle(e)
		case <-deadline:
			h.t.Fatalf("timed out waiting for %s", what)
			return Snapshot{}
		}
	}
}

// drain handles every event already published
func (h *harness) drain() {
	for {
		select {
		case e := <-h.pub:
			h.ctrl.Handle(e)
		case <-time.After(30 * time.Millisecond):
			return
		}
	}
}

func (h *harness) press(actions ...Action) Snapshot {
	h.t.Helper()
	for _, a := range actions {
		h.ctrl.Handle(events.Event{Kind: events.KindInput, Payload: Key(a)})
	}
	return h.renderer.last
}

func (h *harness) typeText(text string) Snapshot {
	for _, r := range text {
		h.ctrl.Handle(events.Event{Kind: events.KindInput, Payload: Char(r)})
	}
	return h.renderer.last
}

func (h *harness) tick(d time.Duration) Snapshot {
	h.now = h.now.Add(d)
	h.ctrl.Handle(events.Event{Kind: events.KindTick})
	return h.renderer.last
}

func active(n int) func(Snapshot) bool {
	return func(s Snapshot) bool {
		return s.Watch.Phase == cache.PhaseActive && len(s.Items) == n
	}
}

func withBanner(level BannerLevel) func(Snapshot) bool {
	return func(s Snapshot) bool { return s.Banner != nil && s.Banner.Level == level }
}

func podClient() *fake.Client {
	client := fake.New("test")
	client.SetItems("test", model.ResourcePod,
		pod("default", "web-1"),
		pod("default", "web-0"),
		pod("kube-system", "coredns"),
	)
	return client
}

func TestControllerInitialWatch(t *testing.T) {
	h := newHarness(t, podClient(), unchanged(), Config{Namespace: "default"})

	s := h.pump("initial list", func(s Snapshot) bool {
		return active(2)(s) && len(s.Namespaces) == 3
	})

	assert.Equal(t, "web-0", s.Items[0].Name)
	assert.Equal(t, "web-1", s.Items[1].Name)
	assert.Equal(t, []string{model.AllNamespaces, "default", "kube-system"}, s.Namespaces)
	assert.Equal(t, 1, s.NamespaceIndex)
	assert.Equal(t, []string{"test"}, s.Contexts)
	assert.Equal(t, FocusList, s.Focus)
	assert.Equal(t, ModeBrowse, s.Mode)
}

func TestControllerDeleteRequiresConfirmation(t *testing.T) {
	h := newHarness(t, podClient(), unchanged(), Config{Namespace: "default"})
	h.pump("initial list", active(2))

	s := h.press(ActionDown, ActionDelete)
	require.NotNil(t, s.Confirmation)
	assert.Equal(t, model.Key{Namespace: "default", Name: "web-1"}, s.Confirmation.Target)

	// Any key other than confirm cancels
	s = h.press(ActionDown)
	assert.Nil(t, s.Confirmation)
	assert.Equal(t, 1, s.Selected)
	h.drain()
	assert.Empty(t, h.client.Calls())

	h.press(ActionDelete, ActionConfirm)
	h.pump("delete outcome", func(s Snapshot) bool {
		return s.Banner != nil && s.Banner.Text == "Deleted pod default/web-1"
	})
	calls := h.client.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "delete", calls[0].Op)
	assert.Equal(t, "web-1", calls[0].Key.Name)
}

func TestControllerDeleteForbidden(t *testing.T) {
	client := podClient()
	client.DeleteErr = datasource.Classify(
		k8serrors.NewForbidden(schema.GroupResource{Resource: "pods"}, "web-0", errors.New("rbac")),
		datasource.KindAction,
	)
	h := newHarness(t, client, unchanged(), Config{Namespace: "default"})
	h.pump("initial list", active(2))

	h.press(ActionDelete, ActionConfirm)
	s := h.pump("error banner", withBanner(BannerError))

	assert.Nil(t, s.Confirmation)
	assert.Contains(t, s.Banner.Text, "forbidden")
	assert.Len(t, s.Items, 2, "cache must be untouched by a failed delete")

	s = h.tick(time.Second)
	require.NotNil(t, s.Banner, "banner must survive until its TTL")

	s = h.tick(DefaultBannerTTL)
	assert.Nil(t, s.Banner)
}

func TestControllerRestartOnlyForStatefulSets(t *testing.T) {
	h := newHarness(t, podClient(), unchanged(), Config{Namespace: "default"})
	h.pump("initial list", active(2))

	s := h.press(ActionRestart)
	assert.Nil(t, s.Confirmation)
	require.NotNil(t, s.Banner)
	assert.Equal(t, BannerInfo, s.Banner.Level)
}

func TestControllerNamespaceSwitch(t *testing.T) {
	h := newHarness(t, podClient(), unchanged(), Config{Namespace: "default"})
	h.pump("initial list", func(s Snapshot) bool { return active(2)(s) && len(s.Namespaces) == 3 })

	s := h.press(ActionDown)
	require.Equal(t, 1, s.Selected)

	s = h.press(ActionFocusPrev, ActionFocusPrev)
	require.Equal(t, FocusNamespace, s.Focus)
	h.press(ActionDown)

	s = h.pump("kube-system list", active(1))
	assert.Equal(t, "coredns", s.Items[0].Name)
	assert.Equal(t, 0, s.Selected)
	assert.Equal(t, "kube-system", s.Namespaces[s.NamespaceIndex])

	live := h.client.LiveWatches()
	require.Len(t, live, 1)
	assert.Equal(t, "kube-system", live[0].Target.Namespace)
}

func TestControllerRapidTypeSwitchesLeaveOneWatch(t *testing.T) {
	h := newHarness(t, podClient(), unchanged(), Config{Namespace: "default"})
	h.pump("initial list", active(2))

	s := h.press(ActionNext, ActionNext, ActionNext, ActionNext, ActionNext)
	assert.Equal(t, model.ResourceStatefulSet, s.Type)

	h.pump("statefulset watch", func(s Snapshot) bool {
		live := h.client.LiveWatches()
		return s.Watch.Phase == cache.PhaseActive && len(live) == 1 && live[0].Target.Type == model.ResourceStatefulSet
	})
	assert.Len(t, h.client.LiveWatches(), 1)
}

func TestControllerContextSwitchFallsBackNamespace(t *testing.T) {
	client := fake.New("alpha", "beta")
	client.SetNamespaces("alpha", "default", "team")
	client.SetNamespaces("beta", "default", "prod")
	client.SetItems("beta", model.ResourcePod, pod("default", "api-0"), pod("prod", "api-1"))

	h := newHarness(t, client, unchanged(), Config{Namespace: "team"})
	h.pump("contexts", func(s Snapshot) bool {
		return len(s.Contexts) == 2 && len(s.Namespaces) == 3 && s.Watch.Phase == cache.PhaseActive
	})

	s := h.press(ActionFocusPrev, ActionFocusPrev, ActionFocusPrev)
	require.Equal(t, FocusContext, s.Focus)
	h.press(ActionDown)

	s = h.pump("beta watch", func(s Snapshot) bool {
		live := h.client.LiveWatches()
		return len(live) == 1 && live[0].Target.Context == "beta" && active(1)(s)
	})
	assert.Equal(t, "beta", s.Contexts[s.ContextIndex])
	assert.Equal(t, "default", s.Namespaces[s.NamespaceIndex])
	assert.Equal(t, "api-0", s.Items[0].Name)
	assert.Equal(t, "beta", client.CurrentContext())
}

func TestControllerLogsFollow(t *testing.T) {
	client := podClient()
	reader, writer := io.Pipe()
	client.LogStream = func(context.Context, model.Key, datasource.LogOptions) (io.ReadCloser, error) {
		return reader, nil
	}
	t.Cleanup(func() { writer.Close() })

	h := newHarness(t, client, unchanged(), Config{Namespace: "default"})
	h.pump("initial list", active(2))
	h.ctrl.Handle(events.Event{Kind: events.KindResize, Payload: events.Resize{Width: 80, Height: chromeRows + 2}})

	s := h.press(ActionLogs)
	require.Equal(t, ModeLogs, s.Mode)
	assert.Equal(t, "web-0", s.Logs.Key.Name)

	_, err := io.WriteString(writer, "a\nb\nc\n")
	require.NoError(t, err)
	s = h.pump("three lines", func(s Snapshot) bool { return s.Logs.Total == 3 })
	assert.Equal(t, []string{"b", "c"}, s.Logs.Lines)
	assert.True(t, s.Logs.Follow)

	_, err = io.WriteString(writer, "d\n")
	require.NoError(t, err)
	s = h.pump("fourth line", func(s Snapshot) bool { return s.Logs.Total == 4 })
	assert.Equal(t, []string{"c", "d"}, s.Logs.Lines)

	s = h.press(ActionUp)
	assert.False(t, s.Logs.Follow)
	assert.Equal(t, []string{"b", "c"}, s.Logs.Lines)

	_, err = io.WriteString(writer, "e\n")
	require.NoError(t, err)
	s = h.pump("fifth line", func(s Snapshot) bool { return s.Logs.Total == 5 })
	assert.Equal(t, []string{"b", "c"}, s.Logs.Lines, "paused view must not move")

	s = h.press(ActionBottom)
	assert.True(t, s.Logs.Follow)
	assert.Equal(t, []string{"d", "e"}, s.Logs.Lines)

	s = h.press(ActionBack)
	assert.Equal(t, ModeBrowse, s.Mode)
}

func TestControllerEditFlow(t *testing.T) {
	client := fake.New("test")
	client.SetItems("test", model.ResourceStatefulSet, statefulSet("default", "db"))

	release := make(chan struct{})
	editor := editorFunc(func(_ context.Context, _, text string) (string, error) {
		<-release
		return text + "spec:\n  replicas: 3\n", nil
	})
	h := newHarness(t, client, editor, Config{Namespace: "default", Type: model.ResourceStatefulSet})
	h.pump("initial list", active(1))

	s := h.press(ActionEdit)
	assert.True(t, s.Editing)

	// Input is ignored while the editor owns the terminal
	s = h.press(ActionDelete)
	assert.Nil(t, s.Confirmation)

	close(release)
	s = h.pump("apply outcome", func(s Snapshot) bool {
		return s.Banner != nil && s.Banner.Text == "Applied changes to statefulset default/db"
	})
	assert.False(t, s.Editing)

	calls := client.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "apply", calls[0].Op)
	assert.Contains(t, string(calls[0].Manifest), `"replicas":3`)
}

func TestControllerEditUnchanged(t *testing.T) {
	client := fake.New("test")
	client.SetItems("test", model.ResourceStatefulSet, statefulSet("default", "db"))
	h := newHarness(t, client, unchanged(), Config{Namespace: "default", Type: model.ResourceStatefulSet})
	h.pump("initial list", active(1))

	h.press(ActionEdit)
	s := h.pump("edit finished", func(s Snapshot) bool { return !s.Editing })
	require.NotNil(t, s.Banner)
	assert.Equal(t, "No changes to default/db", s.Banner.Text)
	h.drain()
	assert.Empty(t, client.Calls())
}

func TestControllerDetailVanishes(t *testing.T) {
	h := newHarness(t, podClient(), unchanged(), Config{Namespace: "default"})
	h.pump("initial list", active(2))

	s := h.press(ActionOpen)
	require.Equal(t, ModeDetail, s.Mode)
	assert.True(t, s.Detail.Present)
	assert.Contains(t, s.Detail.Lines[0], "web-0")

	live := h.client.LiveWatches()
	require.Len(t, live, 1)
	require.True(t, live[0].Send(model.WatchEvent{Type: model.EventDeleted, Item: pod("default", "web-0")}))

	s = h.pump("item removal", func(s Snapshot) bool { return !s.Detail.Present })
	assert.Equal(t, ModeDetail, s.Mode)
	assert.Equal(t, "web-0", s.Detail.Key.Name)

	s = h.press(ActionBack)
	assert.Equal(t, ModeBrowse, s.Mode)
	assert.Len(t, s.Items, 1)
}

func TestControllerFilter(t *testing.T) {
	client := podClient()
	client.SetItems("test", model.ResourcePod, pod("default", "web-0"), pod("default", "web-1"), pod("default", "db-0"))
	h := newHarness(t, client, unchanged(), Config{Namespace: "default"})
	h.pump("initial list", active(3))

	s := h.press(ActionFilter)
	assert.True(t, s.FilterActive)

	s = h.typeText("we")
	assert.Equal(t, "we", s.Filter)
	assert.Len(t, s.Items, 2)

	// Typed characters never trigger actions while filtering
	s = h.typeText("q")
	assert.False(t, s.Quitting)
	assert.Empty(t, s.Items)

	s = h.press(ActionBackspace, ActionOpen)
	assert.False(t, s.FilterActive)
	assert.Equal(t, "we", s.Filter)
	assert.Len(t, s.Items, 2)

	s = h.press(ActionBack)
	assert.Empty(t, s.Filter)
	assert.Len(t, s.Items, 3)
}

func TestControllerHelpAndQuit(t *testing.T) {
	h := newHarness(t, podClient(), unchanged(), Config{Namespace: "default"})
	h.pump("initial list", active(2))

	s := h.press(ActionOpen, ActionHelp)
	assert.Equal(t, ModeHelp, s.Mode)
	assert.Equal(t, ModeDetail, s.PrevMode)

	s = h.press(ActionHelp)
	assert.Equal(t, ModeDetail, s.Mode)

	s = h.press(ActionQuit)
	assert.Equal(t, ModeBrowse, s.Mode)
	assert.False(t, s.Quitting)

	assert.False(t, h.ctrl.Handle(events.Event{Kind: events.KindInput, Payload: Key(ActionQuit)}))
	assert.True(t, h.renderer.last.Quitting)
}

func TestControllerForceQuitDuringConfirmation(t *testing.T) {
	h := newHarness(t, podClient(), unchanged(), Config{Namespace: "default"})
	h.pump("initial list", active(2))

	h.press(ActionDelete)
	assert.False(t, h.ctrl.Handle(events.Event{Kind: events.KindInput, Payload: Key(ActionForceQuit)}))
	h.drain()
	assert.Empty(t, h.client.Calls())
}

func TestControllerIgnoresStaleWatchState(t *testing.T) {
	h := newHarness(t, podClient(), unchanged(), Config{Namespace: "default"})
	h.pump("initial list", active(2))

	h.ctrl.Handle(events.Event{Kind: events.KindWatchState, Payload: cache.StateChanged{
		SessionID: 9999,
		State:     cache.SessionState{Phase: cache.PhaseFailed, Reason: "gone"},
	}})
	s := h.renderer.last
	assert.Nil(t, s.Banner)
	assert.Equal(t, cache.PhaseActive, s.Watch.Phase)
}

func TestControllerForbiddenWatchRecovers(t *testing.T) {
	client := podClient()
	client.FailNextList(datasource.Classify(
		k8serrors.NewForbidden(schema.GroupResource{Resource: "pods"}, "", errors.New("rbac")),
		datasource.KindTransport,
	))
	h := newHarness(t, client, unchanged(), Config{Namespace: "default"})

	s := h.pump("access denied", func(s Snapshot) bool { return s.Watch.Phase == cache.PhaseReconnecting })
	require.NotNil(t, s.Banner)
	assert.True(t, s.Banner.Sticky)
	assert.Equal(t, BannerError, s.Banner.Level)
	assert.Contains(t, s.Banner.Text, "Access denied")

	// The same session retries and clears the banner once the list succeeds
	s = h.pump("recovered watch", active(2))
	assert.Nil(t, s.Banner)
	assert.GreaterOrEqual(t, len(client.ListCalls()), 2)
}

func TestControllerOfflineWatchIsSticky(t *testing.T) {
	client := podClient()
	client.FailNextList(datasource.ErrOffline)
	h := newHarness(t, client, unchanged(), Config{Namespace: "default"})

	s := h.pump("failed watch", func(s Snapshot) bool { return s.Watch.Phase == cache.PhaseFailed })
	require.NotNil(t, s.Banner)
	assert.True(t, s.Banner.Sticky)
	assert.Contains(t, s.Banner.Text, "Offline")

	s = h.tick(time.Hour)
	assert.NotNil(t, s.Banner)
}

func TestControllerCopy(t *testing.T) {
	h := newHarness(t, podClient(), unchanged(), Config{Namespace: "default"})
	h.pump("initial list", active(2))

	s := h.press(ActionCopy)
	assert.Equal(t, "default/web-0", h.clip.text)
	require.NotNil(t, s.Banner)
	assert.Equal(t, BannerInfo, s.Banner.Level)
}
