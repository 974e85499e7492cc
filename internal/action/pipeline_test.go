package action

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/k8s-console/internal/datasource"
	"github.com/yourusername/k8s-console/internal/datasource/fake"
	"github.com/yourusername/k8s-console/internal/events"
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

func unchangedEditor() Editor {
	return editorFunc(func(_ context.Context, _, text string) (string, error) { return text, nil })
}

func nextEvent(t *testing.T, ch chanPublisher) events.Event {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return events.Event{}
	}
}

func newTestPipeline(t *testing.T, client datasource.ClusterClient, editor Editor) (*Pipeline, chanPublisher) {
	t.Helper()
	pub := make(chanPublisher, 16)
	p := NewPipeline(client, editor, pub, zap.NewNop())
	t.Cleanup(p.Close)
	return p, pub
}

var (
	webPod = model.Key{Namespace: "default", Name: "web-1"}
	dbSts  = model.Key{Namespace: "default", Name: "db"}
)

func TestPipelineDelete(t *testing.T) {
	client := fake.New("test")
	p, pub := newTestPipeline(t, client, unchangedEditor())

	id := p.Submit(Request{Kind: KindDelete, Context: "test", Type: model.ResourcePod, Target: webPod})

	e := nextEvent(t, pub)
	require.Equal(t, events.KindActionOutcome, e.Kind)
	outcome := e.Payload.(Outcome)
	assert.Equal(t, id, outcome.Request.ID)
	assert.True(t, outcome.Success())

	calls := client.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "delete", calls[0].Op)
	assert.Equal(t, webPod, calls[0].Key)
}

func TestPipelineDeleteForbidden(t *testing.T) {
	client := fake.New("test")
	client.DeleteErr = datasource.Classify(
		k8serrors.NewForbidden(schema.GroupResource{Resource: "pods"}, "web-1", errors.New("rbac")),
		datasource.KindAction,
	)
	p, pub := newTestPipeline(t, client, unchangedEditor())

	p.Submit(Request{Kind: KindDelete, Context: "test", Type: model.ResourcePod, Target: webPod})

	outcome := nextEvent(t, pub).Payload.(Outcome)
	assert.False(t, outcome.Success())
	assert.Equal(t, datasource.ReasonForbidden, datasource.ReasonOf(outcome.Err))
}

func TestPipelineRestartOnlyStatefulSets(t *testing.T) {
	client := fake.New("test")
	p, pub := newTestPipeline(t, client, unchangedEditor())

	p.Submit(Request{Kind: KindRestart, Context: "test", Type: model.ResourcePod, Target: webPod})
	outcome := nextEvent(t, pub).Payload.(Outcome)
	assert.Equal(t, datasource.ReasonUnsupported, datasource.ReasonOf(outcome.Err))
	assert.Empty(t, client.Calls(), "restart of a pod must never reach the cluster")

	p.Submit(Request{Kind: KindRestart, Context: "test", Type: model.ResourceStatefulSet, Target: dbSts})
	outcome = nextEvent(t, pub).Payload.(Outcome)
	assert.True(t, outcome.Success())
	require.Len(t, client.Calls(), 1)
	assert.Equal(t, "restart", client.Calls()[0].Op)
}

func TestPipelineSerializesRequests(t *testing.T) {
	client := fake.New("test")
	client.Block = make(chan struct{})
	p, pub := newTestPipeline(t, client, unchangedEditor())

	first := p.Submit(Request{Kind: KindDelete, Context: "test", Type: model.ResourcePod, Target: webPod})
	second := p.Submit(Request{Kind: KindDelete, Context: "test", Type: model.ResourcePod, Target: model.Key{Namespace: "default", Name: "web-2"}})

	require.Eventually(t, p.Busy, time.Second, time.Millisecond)
	assert.Empty(t, client.Calls(), "first request must still be blocked")

	client.Block <- struct{}{}
	assert.Equal(t, first, nextEvent(t, pub).Payload.(Outcome).Request.ID)

	client.Block <- struct{}{}
	assert.Equal(t, second, nextEvent(t, pub).Payload.(Outcome).Request.ID)
}

func TestPipelineEditFlow(t *testing.T) {
	client := fake.New("test")
	editor := editorFunc(func(_ context.Context, name, text string) (string, error) {
		assert.Equal(t, "statefulset-default-db.yaml", name)
		return text + "spec:\n  replicas: 3\n", nil
	})
	p, pub := newTestPipeline(t, client, editor)

	p.Edit("test", model.ResourceStatefulSet, dbSts)

	e := nextEvent(t, pub)
	require.Equal(t, events.KindEditFinished, e.Kind)
	result := e.Payload.(EditResult)
	require.NoError(t, result.Err)
	assert.True(t, result.Changed)
	assert.Equal(t, KindEditApply, result.Request.Kind)
	assert.Contains(t, result.Request.Manifest, "replicas: 3")

	p.Submit(result.Request)
	outcome := nextEvent(t, pub).Payload.(Outcome)
	require.NoError(t, outcome.Err)

	calls := client.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "apply", calls[0].Op)
	assert.True(t, strings.Contains(string(calls[0].Manifest), `"replicas":3`), "expected JSON manifest, got %s", calls[0].Manifest)
}

func TestPipelineEditUnchangedAndAborted(t *testing.T) {
	client := fake.New("test")
	p, pub := newTestPipeline(t, client, unchangedEditor())

	p.Edit("test", model.ResourcePod, webPod)
	result := nextEvent(t, pub).Payload.(EditResult)
	assert.NoError(t, result.Err)
	assert.False(t, result.Changed)

	aborting := editorFunc(func(context.Context, string, string) (string, error) { return "", ErrEditAborted })
	p2, pub2 := newTestPipeline(t, client, aborting)
	p2.Edit("test", model.ResourcePod, webPod)
	result = nextEvent(t, pub2).Payload.(EditResult)
	assert.True(t, result.Aborted())

	p.Edit("test", model.ResourcePVC, model.Key{Namespace: "default", Name: "data"})
	result = nextEvent(t, pub).Payload.(EditResult)
	assert.Equal(t, datasource.ReasonUnsupported, datasource.ReasonOf(result.Err))
}

func TestPipelineEditApplyParseErrors(t *testing.T) {
	tests := []struct {
		name     string
		manifest string
	}{
		{"empty", "   \n"},
		{"invalid yaml", "kind: Pod\nmetadata: [\n"},
		{"kind changed", "apiVersion: v1\nkind: Service\nmetadata:\n  name: web-1\n  namespace: default\n"},
		{"name changed", "apiVersion: v1\nkind: Pod\nmetadata:\n  name: web-2\n  namespace: default\n"},
		{"namespace changed", "apiVersion: v1\nkind: Pod\nmetadata:\n  name: web-1\n  namespace: prod\n"},
		{"not an object", "- a\n- b\n"},
	}

	client := fake.New("test")
	p, pub := newTestPipeline(t, client, unchangedEditor())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p.Submit(Request{Kind: KindEditApply, Context: "test", Type: model.ResourcePod, Target: webPod, Manifest: tt.manifest})
			outcome := nextEvent(t, pub).Payload.(Outcome)
			require.Error(t, outcome.Err)
			assert.Equal(t, datasource.KindParse, datasource.KindOf(outcome.Err))
		})
	}
	assert.Empty(t, client.Calls(), "parse errors must never reach the cluster")
}

func TestPipelineOpenLogs(t *testing.T) {
	var got string
	editor := editorFunc(func(_ context.Context, name, text string) (string, error) {
		assert.Equal(t, "default-web-1.log", name)
		got = text
		return text, nil
	})
	p, pub := newTestPipeline(t, fake.New("test"), editor)

	p.OpenLogs(webPod, []string{"a", "b"})
	outcome := nextEvent(t, pub).Payload.(Outcome)
	assert.Equal(t, KindOpenLogs, outcome.Request.Kind)
	assert.NoError(t, outcome.Err)
	assert.Equal(t, "a\nb\n", got)
}

func TestPipelineClose(t *testing.T) {
	client := fake.New("test")
	pub := make(chanPublisher, 16)
	p := NewPipeline(client, unchangedEditor(), pub, zap.NewNop())

	p.Close()
	p.Close()
	p.Submit(Request{Kind: KindDelete, Context: "test", Type: model.ResourcePod, Target: webPod})

	select {
	case e := <-pub:
		t.Fatalf("Expected no outcome after close, got %v", e.Kind)
	case <-time.After(20 * time.Millisecond):
	}
	assert.Empty(t, client.Calls())
}

func TestPipelineCloseAbandonsEditor(t *testing.T) {
	started := make(chan struct{})
	// Waits like an editor whose suspend message never reached the program
	stuck := editorFunc(func(ctx context.Context, _, _ string) (string, error) {
		close(started)
		<-ctx.Done()
		return "", ctx.Err()
	})
	pub := make(chanPublisher, 16)
	p := NewPipeline(fake.New("test"), stuck, pub, zap.NewNop())

	p.Edit("test", model.ResourcePod, webPod)
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("editor never started")
	}

	closed := make(chan struct{})
	go func() {
		p.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Close blocked on the editor")
	}

	result := nextEvent(t, pub).Payload.(EditResult)
	assert.ErrorIs(t, result.Err, context.Canceled)
	assert.False(t, result.Changed)
}

type blockingDelete struct {
	*fake.Client
	started chan struct{}
	release chan struct{}
}

func (b *blockingDelete) Delete(ctx context.Context, kubeContext string, rt model.ResourceType, key model.Key) error {
	close(b.started)
	<-b.release
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.Client.Delete(ctx, kubeContext, rt, key)
}

func TestPipelineCloseFinishesMutation(t *testing.T) {
	client := &blockingDelete{Client: fake.New("test"), started: make(chan struct{}), release: make(chan struct{})}
	pub := make(chanPublisher, 16)
	p := NewPipeline(client, unchangedEditor(), pub, zap.NewNop())

	p.Submit(Request{Kind: KindDelete, Context: "test", Type: model.ResourcePod, Target: webPod})
	<-client.started

	closed := make(chan struct{})
	go func() {
		p.Close()
		close(closed)
	}()

	select {
	case <-closed:
		t.Fatal("Close returned while a delete was in flight")
	case <-time.After(20 * time.Millisecond):
	}
	close(client.release)
	<-closed

	outcome := nextEvent(t, pub).Payload.(Outcome)
	assert.NoError(t, outcome.Err)
	assert.Len(t, client.Calls(), 1)
}
