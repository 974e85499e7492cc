package session

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/yourusername/k8s-console/internal/model"
)

// DetailLines renders the describe-style content of an item
func DetailLines(item model.ResourceItem, now time.Time) []string {
	var lines []string
	field := func(label, value string) {
		if value == "" {
			value = "<none>"
		}
		lines = append(lines, fmt.Sprintf("%-16s %s", label+":", value))
	}
	section := func(title string) {
		lines = append(lines, "", title)
	}

	field("Name", item.Name)
	field("Namespace", item.Namespace)
	field("Kind", item.Type.Kind())
	field("Status", item.Status)
	field("Age", model.FormatAge(item.CreationTimestamp, now))
	if !item.CreationTimestamp.IsZero() {
		field("Created", item.CreationTimestamp.UTC().Format(time.RFC3339))
	}

	switch {
	case item.Pod != nil:
		pod := item.Pod
		field("Node", pod.Node)
		field("Pod IP", pod.PodIP)
		field("Host IP", pod.HostIP)
		field("QoS Class", pod.QOSClass)
		field("Ready", fmt.Sprintf("%d/%d", pod.ReadyContainers, pod.Containers))
		field("Restarts", fmt.Sprintf("%d", pod.RestartCount))
		if pod.Reason != "" || pod.Message != "" {
			field("Reason", strings.TrimSpace(pod.Reason+" "+pod.Message))
		}

		section("Containers:")
		if len(pod.ContainerStates) == 0 {
			lines = append(lines, "  <none>")
		}
		for _, cs := range pod.ContainerStates {
			state := cs.State
			if cs.Reason != "" {
				state += " (" + cs.Reason + ")"
			}
			if cs.State == "Terminated" {
				state += fmt.Sprintf(" exit=%d", cs.ExitCode)
			}
			lines = append(lines, fmt.Sprintf("  %s", cs.Name))
			lines = append(lines, fmt.Sprintf("    Image:    %s", cs.Image))
			lines = append(lines, fmt.Sprintf("    State:    %s", state))
			lines = append(lines, fmt.Sprintf("    Ready:    %t", cs.Ready))
			lines = append(lines, fmt.Sprintf("    Restarts: %d", cs.RestartCount))
			if cs.Message != "" {
				lines = append(lines, fmt.Sprintf("    Message:  %s", cs.Message))
			}
		}

		section("Conditions:")
		if len(pod.Conditions) == 0 {
			lines = append(lines, "  <none>")
		}
		for _, cond := range pod.Conditions {
			line := fmt.Sprintf("  %-28s %s", cond.Type, cond.Status)
			if cond.Reason != "" {
				line += "  " + cond.Reason
			}
			lines = append(lines, line)
		}

	case item.PVC != nil:
		pvc := item.PVC
		field("Volume", pvc.Volume)
		field("Capacity", pvc.Capacity)
		field("Requested", pvc.RequestedStorage)
		field("Storage Class", pvc.StorageClass)
		field("Access Modes", strings.Join(pvc.AccessModes, ","))
		field("Volume Mode", pvc.VolumeMode)

	case item.StatefulSet != nil:
		sts := item.StatefulSet
		field("Replicas", fmt.Sprintf("%d desired", sts.Replicas))
		field("Ready", fmt.Sprintf("%d/%d", sts.ReadyReplicas, sts.Replicas))
		field("Current", fmt.Sprintf("%d", sts.CurrentReplicas))
		field("Updated", fmt.Sprintf("%d", sts.UpdatedReplicas))
		field("Service Name", sts.ServiceName)
		field("Selector", joinMap(sts.Selector, ","))
	}

	section("Labels:")
	lines = append(lines, mapLines(item.Labels)...)
	section("Annotations:")
	lines = append(lines, mapLines(item.Annotations)...)

	return lines
}

func mapLines(m map[string]string) []string {
	if len(m) == 0 {
		return []string{"  <none>"}
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("  %s=%s", k, m[k]))
	}
	return lines
}

func joinMap(m map[string]string, sep string) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+m[k])
	}
	return strings.Join(parts, sep)
}
