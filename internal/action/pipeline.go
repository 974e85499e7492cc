package action

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/yourusername/k8s-console/internal/datasource"
	"github.com/yourusername/k8s-console/internal/events"
	"github.com/yourusername/k8s-console/internal/model"
	"go.uber.org/zap"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/yaml"
)

// Kind is the operation requested
type Kind int

const (
	KindDelete Kind = iota
	KindRestart
	KindEditApply
	KindOpenLogs
)

func (k Kind) String() string {
	switch k {
	case KindDelete:
		return "delete"
	case KindRestart:
		return "restart"
	case KindEditApply:
		return "apply"
	case KindOpenLogs:
		return "open logs"
	default:
		return "unknown"
	}
}

// Request is a mutating operation against one resource
type Request struct {
	ID       uint64
	Kind     Kind
	Context  string
	Type     model.ResourceType
	Target   model.Key
	Manifest string // edited YAML, EditApply only
}

// Outcome is the payload of events.KindActionOutcome. Exactly one is
// published per submitted request.
type Outcome struct {
	Request Request
	Err     error
}

// Success reports whether the request completed without error
func (o Outcome) Success() bool { return o.Err == nil }

// EditResult is the payload of events.KindEditFinished. Request carries an
// EditApply request ready to submit when Changed is true.
type EditResult struct {
	Request  Request
	Original string
	Edited   string
	Changed  bool
	Err      error
}

// Aborted reports whether the operator abandoned the edit
func (r EditResult) Aborted() bool { return errors.Is(r.Err, ErrEditAborted) }

// ErrEditAborted is returned by an Editor when the operator quits without saving
var ErrEditAborted = errors.New("edit aborted")

// Editor hands text to the operator for editing. name is a file name hint.
type Editor interface {
	Edit(ctx context.Context, name, text string) (string, error)
}

type job struct {
	name string
	run  func(ctx context.Context)
}

// Pipeline executes actions on a single worker goroutine so at most one
// request is in flight. Submit never blocks.
type Pipeline struct {
	client    datasource.ClusterClient
	editor    Editor
	publisher events.Publisher
	logger    *zap.Logger

	nextID atomic.Uint64

	// ctx is cancelled by Close; editor sessions wait on it
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	queue   []job
	closed  bool
	wake    chan struct{}
	stop    chan struct{}
	done    chan struct{}
	running atomic.Bool
}

// NewPipeline creates a pipeline and starts its worker
func NewPipeline(client datasource.ClusterClient, editor Editor, publisher events.Publisher, logger *zap.Logger) *Pipeline {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pipeline{
		ctx:       ctx,
		cancel:    cancel,
		client:    client,
		editor:    editor,
		publisher: publisher,
		logger:    logger,
		wake:      make(chan struct{}, 1),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	go p.worker()
	return p
}

// Submit queues a request and returns its ID
func (p *Pipeline) Submit(req Request) uint64 {
	if req.ID == 0 {
		req.ID = p.nextID.Add(1)
	}
	p.enqueue(job{
		name: req.Kind.String(),
		run: func(ctx context.Context) {
			// Mutations run to completion once sent; the client applies its request timeout
			err := p.execute(context.WithoutCancel(ctx), req)
			if err != nil {
				p.logger.Warn("Action failed",
					zap.Uint64("id", req.ID),
					zap.Stringer("kind", req.Kind),
					zap.Stringer("target", req.Target),
					zap.Error(err),
				)
			} else {
				p.logger.Info("Action succeeded",
					zap.Uint64("id", req.ID),
					zap.Stringer("kind", req.Kind),
					zap.Stringer("target", req.Target),
				)
			}
			p.publisher.Publish(events.Event{
				Kind:    events.KindActionOutcome,
				Payload: Outcome{Request: req, Err: err},
			})
		},
	})
	return req.ID
}

// Edit fetches the manifest of target, opens it in the editor and publishes
// an EditResult.
func (p *Pipeline) Edit(kubeContext string, rt model.ResourceType, target model.Key) uint64 {
	req := Request{
		ID:      p.nextID.Add(1),
		Kind:    KindEditApply,
		Context: kubeContext,
		Type:    rt,
		Target:  target,
	}
	p.enqueue(job{
		name: "edit",
		run: func(ctx context.Context) {
			result := p.edit(ctx, req)
			p.publisher.Publish(events.Event{Kind: events.KindEditFinished, Payload: result})
		},
	})
	return req.ID
}

// OpenLogs shows log lines in the editor. The outcome is published as an
// Outcome of kind KindOpenLogs.
func (p *Pipeline) OpenLogs(target model.Key, lines []string) uint64 {
	req := Request{ID: p.nextID.Add(1), Kind: KindOpenLogs, Target: target}
	text := strings.Join(lines, "\n")
	if text != "" {
		text += "\n"
	}
	p.enqueue(job{
		name: "open logs",
		run: func(ctx context.Context) {
			_, err := p.editor.Edit(ctx, fmt.Sprintf("%s-%s.log", target.Namespace, target.Name), text)
			if errors.Is(err, ErrEditAborted) {
				err = nil
			}
			p.publisher.Publish(events.Event{
				Kind:    events.KindActionOutcome,
				Payload: Outcome{Request: req, Err: err},
			})
		},
	})
	return req.ID
}

// Busy reports whether a request is executing
func (p *Pipeline) Busy() bool {
	return p.running.Load()
}

// Close stops the worker after the in-flight request completes. An editor
// session in flight is abandoned. Requests still queued are discarded.
func (p *Pipeline) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	dropped := len(p.queue)
	p.queue = nil
	p.mu.Unlock()

	p.cancel()
	close(p.stop)
	<-p.done

	if dropped > 0 {
		p.logger.Info("Action pipeline closed with queued requests", zap.Int("dropped", dropped))
	}
}

func (p *Pipeline) enqueue(j job) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.logger.Debug("Dropping action submitted after close", zap.String("job", j.name))
		return
	}
	p.queue = append(p.queue, j)
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *Pipeline) worker() {
	defer close(p.done)
	for {
		select {
		case <-p.stop:
			return
		case <-p.wake:
		}

		for {
			p.mu.Lock()
			if p.closed || len(p.queue) == 0 {
				p.mu.Unlock()
				break
			}
			j := p.queue[0]
			p.queue = p.queue[1:]
			p.mu.Unlock()

			p.running.Store(true)
			j.run(p.ctx)
			p.running.Store(false)
		}
	}
}

func (p *Pipeline) execute(ctx context.Context, req Request) error {
	switch req.Kind {
	case KindDelete:
		return p.client.Delete(ctx, req.Context, req.Type, req.Target)
	case KindRestart:
		if !req.Type.CanRestart() {
			return datasource.NewUnsupportedError(fmt.Sprintf("restart is not supported for %s", req.Type))
		}
		return p.client.PatchRestart(ctx, req.Context, req.Target)
	case KindEditApply:
		return p.apply(ctx, req)
	default:
		return datasource.NewUnsupportedError(fmt.Sprintf("unsupported action %v", req.Kind))
	}
}

func (p *Pipeline) edit(ctx context.Context, req Request) EditResult {
	result := EditResult{Request: req}
	if !req.Type.CanEdit() {
		result.Err = datasource.NewUnsupportedError(fmt.Sprintf("edit is not supported for %s", req.Type))
		return result
	}

	original, err := p.client.GetManifest(ctx, req.Context, req.Type, req.Target)
	if err != nil {
		result.Err = err
		return result
	}
	result.Original = original

	name := fmt.Sprintf("%s-%s-%s.yaml", strings.ToLower(req.Type.Kind()), req.Target.Namespace, req.Target.Name)
	edited, err := p.editor.Edit(ctx, name, original)
	if err != nil {
		if ctx.Err() != nil {
			p.logger.Info("Edit abandoned on shutdown", zap.Stringer("target", req.Target))
		}
		result.Err = err
		return result
	}

	result.Edited = edited
	result.Changed = strings.TrimSpace(edited) != strings.TrimSpace(original)
	result.Request.Manifest = edited
	return result
}

// apply validates the edited manifest locally before sending it
func (p *Pipeline) apply(ctx context.Context, req Request) error {
	manifest, err := ValidateManifest(req.Manifest, req.Type, req.Target)
	if err != nil {
		return err
	}
	return p.client.ApplyManifest(ctx, req.Context, req.Type, req.Target, manifest)
}

// ValidateManifest parses edited YAML and checks it still describes the
// same object. It returns the manifest as JSON.
func ValidateManifest(text string, rt model.ResourceType, target model.Key) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, datasource.NewParseError("edited manifest is empty", nil)
	}

	data, err := yaml.YAMLToJSON([]byte(text))
	if err != nil {
		return nil, datasource.NewParseError("invalid YAML", err)
	}
	if string(data) == "null" {
		return nil, datasource.NewParseError("edited manifest is empty", nil)
	}

	var obj metav1.PartialObjectMetadata
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, datasource.NewParseError("manifest is not an object", err)
	}

	switch {
	case obj.Kind != rt.Kind():
		return nil, datasource.NewParseError(fmt.Sprintf("kind changed from %s to %q", rt.Kind(), obj.Kind), nil)
	case obj.Name != target.Name:
		return nil, datasource.NewParseError(fmt.Sprintf("name changed from %s to %q", target.Name, obj.Name), nil)
	case obj.Namespace != target.Namespace:
		return nil, datasource.NewParseError(fmt.Sprintf("namespace changed from %s to %q", target.Namespace, obj.Namespace), nil)
	}
	return data, nil
}
