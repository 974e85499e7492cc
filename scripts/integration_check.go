//go:build ignore

package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/yourusername/k8s-console/internal/cache"
	"github.com/yourusername/k8s-console/internal/datasource"
	"github.com/yourusername/k8s-console/internal/events"
	"github.com/yourusername/k8s-console/internal/model"
	"go.uber.org/zap"
	"k8s.io/client-go/util/homedir"
)

func fail(err error) {
	fmt.Printf("❌ FAILED: %v\n", err)
	os.Exit(1)
}

func main() {
	var kubeconfig string
	if home := homedir.HomeDir(); home != "" {
		kubeconfig = filepath.Join(home, ".kube", "config")
	}
	logger := zap.NewNop()
	ctx := context.Background()

	fmt.Println("=== k8s-console Integration Test ===")
	fmt.Println("")

	// Test 1: API Server Client
	fmt.Println("Test 1: Creating API Server client...")
	client, err := datasource.NewAPIServerClient(datasource.Options{Kubeconfig: kubeconfig, Timeout: 10 * time.Second}, logger)
	if err != nil {
		fail(err)
	}
	defer client.Close()
	fmt.Printf("✅ PASSED: client created, current context %q (%d contexts)\n", client.CurrentContext(), len(client.ListContexts()))

	// Test 2: Namespaces
	fmt.Println("\nTest 2: Listing namespaces...")
	startTime := time.Now()
	namespaces, err := client.ListNamespaces(ctx, client.CurrentContext())
	if err != nil {
		fail(err)
	}
	fmt.Printf("✅ PASSED: Retrieved %d namespaces in %v\n", len(namespaces), time.Since(startTime))

	// Test 3: List each resource type
	fmt.Println("\nTest 3: Listing resources...")
	var pods []model.ResourceItem
	for _, rt := range model.ResourceTypes {
		startTime = time.Now()
		result, err := client.List(ctx, model.Target{Context: client.CurrentContext(), Namespace: model.AllNamespaces, Type: rt})
		if err != nil {
			fail(err)
		}
		if rt == model.ResourcePod {
			pods = result.Items
		}
		fmt.Printf("✅ PASSED: %d %s at resourceVersion %s in %v\n", len(result.Items), rt, result.ResourceVersion, time.Since(startTime))
	}

	// Test 4: Watch session reaches Active
	fmt.Println("\nTest 4: Starting a watch session...")
	states := make(chan cache.SessionState, 16)
	publisher := events.PublisherFunc(func(e events.Event) {
		if p, ok := e.Payload.(cache.StateChanged); ok {
			states <- p.State
		}
	})
	watcher := cache.NewWatchManager(client, publisher, cache.DefaultWatchConfig(), logger)
	watcher.Start(model.Target{Context: client.CurrentContext(), Namespace: model.AllNamespaces, Type: model.ResourcePod})
	timeout := time.After(30 * time.Second)
wait:
	for {
		select {
		case s := <-states:
			if s.Phase == cache.PhaseActive {
				break wait
			}
			if s.Phase == cache.PhaseFailed {
				fail(s.Err)
			}
		case <-timeout:
			fail(fmt.Errorf("watch did not become active"))
		}
	}
	fmt.Printf("✅ PASSED: watch active with %d pods cached\n", watcher.View().Len())
	watcher.Stop()

	// Test 5: Tail logs of the first pod
	if len(pods) == 0 {
		fmt.Println("\nTest 5: skipped, no pods")
		return
	}
	fmt.Println("\nTest 5: Tailing pod logs...")
	logCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	stream, err := client.StreamLogs(logCtx, client.CurrentContext(), pods[0].Key(), datasource.LogOptions{TailLines: 5})
	if err != nil {
		fail(err)
	}
	defer stream.Close()
	lines := 0
	scanner := bufio.NewScanner(stream)
	for scanner.Scan() {
		lines++
	}
	fmt.Printf("✅ PASSED: read %d lines from %s\n", lines, pods[0].Key())

	fmt.Println("\n=== All tests passed ===")
}
