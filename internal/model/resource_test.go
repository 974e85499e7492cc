package model

import (
	"testing"
	"time"
)

func TestResourceTypeCycle(t *testing.T) {
	rt := ResourcePod
	seen := map[ResourceType]bool{}
	for i := 0; i < len(ResourceTypes); i++ {
		seen[rt] = true
		rt = rt.Next()
	}
	if rt != ResourcePod {
		t.Errorf("Expected Next to wrap back to Pods, got %v", rt)
	}
	if len(seen) != len(ResourceTypes) {
		t.Errorf("Expected to visit %d types, visited %d", len(ResourceTypes), len(seen))
	}
	if ResourcePod.Prev() != ResourceStatefulSet {
		t.Errorf("Expected Pods.Prev to be StatefulSets, got %v", ResourcePod.Prev())
	}
}

func TestResourceTypeCapabilities(t *testing.T) {
	tests := []struct {
		rt      ResourceType
		restart bool
		edit    bool
		logs    bool
	}{
		{ResourcePod, false, true, true},
		{ResourcePVC, false, false, false},
		{ResourceStatefulSet, true, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.rt.String(), func(t *testing.T) {
			if tt.rt.CanRestart() != tt.restart {
				t.Errorf("CanRestart() = %v, want %v", tt.rt.CanRestart(), tt.restart)
			}
			if tt.rt.CanEdit() != tt.edit {
				t.Errorf("CanEdit() = %v, want %v", tt.rt.CanEdit(), tt.edit)
			}
			if tt.rt.HasLogs() != tt.logs {
				t.Errorf("HasLogs() = %v, want %v", tt.rt.HasLogs(), tt.logs)
			}
		})
	}
}

func TestParseResourceType(t *testing.T) {
	for in, want := range map[string]ResourceType{
		"pods": ResourcePod, "po": ResourcePod, "PVC": ResourcePVC, "sts": ResourceStatefulSet,
	} {
		got, err := ParseResourceType(in)
		if err != nil {
			t.Fatalf("ParseResourceType(%q) error = %v", in, err)
		}
		if got != want {
			t.Errorf("ParseResourceType(%q) = %v, want %v", in, got, want)
		}
	}
	if _, err := ParseResourceType("deployments"); err == nil {
		t.Error("Expected error for unsupported type")
	}
}

func TestKeyLess(t *testing.T) {
	a := Key{Namespace: "default", Name: "b"}
	b := Key{Namespace: "kube-system", Name: "a"}
	if !a.Less(b) {
		t.Error("Expected namespace to order before name")
	}
	if !(Key{Namespace: "default", Name: "a"}).Less(a) {
		t.Error("Expected name ordering within a namespace")
	}
}

func TestFormatAge(t *testing.T) {
	now := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		created time.Time
		want    string
	}{
		{time.Time{}, "<unknown>"},
		{now.Add(time.Minute), "0s"},
		{now.Add(-42 * time.Second), "42s"},
		{now.Add(-5 * time.Minute), "5m"},
		{now.Add(-(3*time.Hour + 20*time.Minute)), "3h20m"},
		{now.Add(-(50 * time.Hour)), "2d2h"},
	}
	for _, tt := range tests {
		if got := FormatAge(tt.created, now); got != tt.want {
			t.Errorf("FormatAge(%v) = %q, want %q", tt.created, got, tt.want)
		}
	}
}

func TestResourceItemColumns(t *testing.T) {
	now := time.Now()
	pod := ResourceItem{
		Type: ResourcePod, Name: "web-0", Status: "Running", CreationTimestamp: now,
		Pod: &PodData{RestartCount: 3, Node: "node-1"},
	}
	cols := pod.Columns(now)
	if len(cols) != len(ResourcePod.Columns()) {
		t.Fatalf("Expected %d columns, got %d", len(ResourcePod.Columns()), len(cols))
	}
	if cols[3] != "3" || cols[4] != "node-1" {
		t.Errorf("Unexpected pod columns %v", cols)
	}

	sts := ResourceItem{Type: ResourceStatefulSet, Name: "db", StatefulSet: &StatefulSetData{Replicas: 3, ReadyReplicas: 2}}
	if got := sts.Columns(now)[1]; got != "2/3" {
		t.Errorf("Expected ready column 2/3, got %q", got)
	}

	pvc := ResourceItem{Type: ResourcePVC, Name: "data"}
	if got := pvc.Columns(now); got[2] != "<none>" || got[3] != "<none>" {
		t.Errorf("Expected <none> placeholders for unbound PVC, got %v", got)
	}
}
