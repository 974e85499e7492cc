// Package fake provides a scriptable in-memory datasource.ClusterClient for tests.
package fake

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/yourusername/k8s-console/internal/datasource"
	"github.com/yourusername/k8s-console/internal/model"
)

// Call records a mutating request received by the client
type Call struct {
	Op       string
	Context  string
	Type     model.ResourceType
	Key      model.Key
	Manifest []byte
}

// WatchStream is a watch opened against the fake client. Tests push events
// with Send and end the stream with Close.
type WatchStream struct {
	Target          model.Target
	ResourceVersion string

	ctx       context.Context
	events    chan model.WatchEvent
	closeOnce sync.Once
}

// Send delivers an event, returning false if the watcher went away
func (w *WatchStream) Send(e model.WatchEvent) bool {
	select {
	case w.events <- e:
		return true
	case <-w.ctx.Done():
		return false
	}
}

// Close ends the stream as a server-side close would
func (w *WatchStream) Close() {
	w.closeOnce.Do(func() { close(w.events) })
}

// Live reports whether the consumer still holds the stream open
func (w *WatchStream) Live() bool {
	return w.ctx.Err() == nil
}

// Client is an in-memory ClusterClient
type Client struct {
	mu         sync.Mutex
	contexts   []model.ClusterContext
	current    string
	namespaces map[string][]string
	items      map[string]map[model.ResourceType][]model.ResourceItem
	listErrs   []error
	listCalls  []model.Target
	watches    []*WatchStream
	calls      []Call
	manifests  map[model.Key]string

	// Err hooks returned by the mutating calls when set
	DeleteErr   error
	RestartErr  error
	ApplyErr    error
	ManifestErr error

	// LogStream, when set, opens log streams; otherwise Logs is served once
	LogStream func(ctx context.Context, key model.Key, opts datasource.LogOptions) (io.ReadCloser, error)
	Logs      string

	// Block, when set, is waited on by every mutating call
	Block chan struct{}
}

var _ datasource.ClusterClient = (*Client)(nil)

// New creates a fake client with the given contexts; the first is current
func New(contexts ...string) *Client {
	c := &Client{
		namespaces: make(map[string][]string),
		items:      make(map[string]map[model.ResourceType][]model.ResourceItem),
		manifests:  make(map[model.Key]string),
	}
	for _, name := range contexts {
		c.contexts = append(c.contexts, model.ClusterContext{Name: name, Cluster: name, Namespace: "default"})
		c.namespaces[name] = []string{"default", "kube-system"}
	}
	if len(contexts) > 0 {
		c.current = contexts[0]
	}
	return c
}

// SetNamespaces replaces the namespaces of a context
func (c *Client) SetNamespaces(kubeContext string, namespaces ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.namespaces[kubeContext] = namespaces
}

// SetItems replaces the items listed for a context and type
func (c *Client) SetItems(kubeContext string, rt model.ResourceType, items ...model.ResourceItem) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.items[kubeContext] == nil {
		c.items[kubeContext] = make(map[model.ResourceType][]model.ResourceItem)
	}
	c.items[kubeContext][rt] = items
}

// SetManifest sets the manifest returned for a key
func (c *Client) SetManifest(key model.Key, manifest string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.manifests[key] = manifest
}

// FailNextList queues an error for the next List call
func (c *Client) FailNextList(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listErrs = append(c.listErrs, err)
}

// ListCalls returns the targets listed so far
func (c *Client) ListCalls() []model.Target {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]model.Target(nil), c.listCalls...)
}

// Watches returns every watch opened so far
func (c *Client) Watches() []*WatchStream {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*WatchStream(nil), c.watches...)
}

// LiveWatches returns the watches still held open
func (c *Client) LiveWatches() []*WatchStream {
	var live []*WatchStream
	for _, w := range c.Watches() {
		if w.Live() {
			live = append(live, w)
		}
	}
	return live
}

// Calls returns the mutating calls received so far
func (c *Client) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Call(nil), c.calls...)
}

func (c *Client) record(call Call) {
	if c.Block != nil {
		<-c.Block
	}
	c.mu.Lock()
	c.calls = append(c.calls, call)
	c.mu.Unlock()
}

func (c *Client) ListContexts() []model.ClusterContext {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]model.ClusterContext(nil), c.contexts...)
}

func (c *Client) CurrentContext() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *Client) SetCurrentContext(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, cc := range c.contexts {
		if cc.Name == name {
			c.current = name
			return nil
		}
	}
	return &datasource.Error{Kind: datasource.KindTransport, Reason: datasource.ReasonNotFound, Message: fmt.Sprintf("context %q not found", name)}
}

func (c *Client) ListNamespaces(_ context.Context, kubeContext string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	namespaces, ok := c.namespaces[kubeContext]
	if !ok {
		return nil, &datasource.Error{Kind: datasource.KindTransport, Reason: datasource.ReasonNotFound, Message: "unknown context"}
	}
	out := append([]string(nil), namespaces...)
	sort.Strings(out)
	return out, nil
}

func (c *Client) List(_ context.Context, target model.Target) (*datasource.ListResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.listCalls = append(c.listCalls, target)
	if len(c.listErrs) > 0 {
		err := c.listErrs[0]
		c.listErrs = c.listErrs[1:]
		if err != nil {
			return nil, err
		}
	}

	result := &datasource.ListResult{ResourceVersion: fmt.Sprintf("%d", len(c.listCalls))}
	for _, item := range c.items[target.Context][target.Type] {
		if target.Namespace == model.AllNamespaces || item.Namespace == target.Namespace {
			result.Items = append(result.Items, item)
		}
	}
	return result, nil
}

func (c *Client) Watch(ctx context.Context, target model.Target, resourceVersion string) (<-chan model.WatchEvent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	w := &WatchStream{
		Target:          target,
		ResourceVersion: resourceVersion,
		ctx:             ctx,
		events:          make(chan model.WatchEvent),
	}
	c.watches = append(c.watches, w)
	return w.events, nil
}

func (c *Client) Delete(_ context.Context, kubeContext string, rt model.ResourceType, key model.Key) error {
	c.record(Call{Op: "delete", Context: kubeContext, Type: rt, Key: key})
	return c.DeleteErr
}

func (c *Client) PatchRestart(_ context.Context, kubeContext string, key model.Key) error {
	c.record(Call{Op: "restart", Context: kubeContext, Type: model.ResourceStatefulSet, Key: key})
	return c.RestartErr
}

func (c *Client) GetManifest(_ context.Context, kubeContext string, rt model.ResourceType, key model.Key) (string, error) {
	if c.ManifestErr != nil {
		return "", c.ManifestErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if manifest, ok := c.manifests[key]; ok {
		return manifest, nil
	}
	return fmt.Sprintf("apiVersion: %s\nkind: %s\nmetadata:\n  name: %s\n  namespace: %s\n",
		rt.APIVersion(), rt.Kind(), key.Name, key.Namespace), nil
}

func (c *Client) ApplyManifest(_ context.Context, kubeContext string, rt model.ResourceType, key model.Key, manifest []byte) error {
	c.record(Call{Op: "apply", Context: kubeContext, Type: rt, Key: key, Manifest: manifest})
	return c.ApplyErr
}

func (c *Client) StreamLogs(ctx context.Context, _ string, key model.Key, opts datasource.LogOptions) (io.ReadCloser, error) {
	if c.LogStream != nil {
		return c.LogStream(ctx, key, opts)
	}
	return io.NopCloser(strings.NewReader(c.Logs)), nil
}

func (c *Client) Name() string { return "fake" }

func (c *Client) Close() error { return nil }
