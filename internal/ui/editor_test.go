package ui

import (
	"context"
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/yourusername/k8s-console/internal/action"
	"github.com/yourusername/k8s-console/internal/datasource/fake"
	"github.com/yourusername/k8s-console/internal/events"
	"github.com/yourusername/k8s-console/internal/model"
	"go.uber.org/zap"
)

// exitedSender drops every message, like a program that has already quit
type exitedSender struct{}

func (exitedSender) Send(tea.Msg) {}

type eventSink chan events.Event

func (s eventSink) Publish(e events.Event) { s <- e }

func TestEditorCancelledWhileWaiting(t *testing.T) {
	e := NewEditor("true", exitedSender{}, zap.NewNop())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := e.Edit(ctx, "pod-default-web.yaml", "kind: Pod\n")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Expected deadline error, got %v", err)
	}
}

func TestPipelineCloseWithExitedProgram(t *testing.T) {
	sink := make(eventSink, 4)
	editor := NewEditor("true", exitedSender{}, zap.NewNop())
	pipeline := action.NewPipeline(fake.New("test"), editor, sink, zap.NewNop())

	pipeline.Edit("test", model.ResourcePod, model.Key{Namespace: "default", Name: "web-1"})
	deadline := time.Now().Add(2 * time.Second)
	for !pipeline.Busy() {
		if time.Now().After(deadline) {
			t.Fatal("edit never started")
		}
		time.Sleep(time.Millisecond)
	}

	closed := make(chan struct{})
	go func() {
		pipeline.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Close blocked on an editor the program never ran")
	}

	select {
	case ev := <-sink:
		result := ev.Payload.(action.EditResult)
		if !errors.Is(result.Err, context.Canceled) {
			t.Errorf("Expected cancelled edit, got %v", result.Err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Expected an edit result")
	}
}
