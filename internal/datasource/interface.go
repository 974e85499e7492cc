package datasource

import (
	"context"
	"io"
	"sort"

	"github.com/yourusername/k8s-console/internal/model"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
)

// ClusterClient is the capability the session engine consumes. Every call
// names the kubeconfig context it runs against.
type ClusterClient interface {
	// ListContexts returns every kubeconfig context, sorted by name
	ListContexts() []model.ClusterContext

	// CurrentContext returns the name of the active context
	CurrentContext() string

	// SetCurrentContext switches the active context (in memory only)
	SetCurrentContext(name string) error

	// ListNamespaces returns namespace names in the given context
	ListNamespaces(ctx context.Context, kubeContext string) ([]string, error)

	// List returns the authoritative list for a target plus its resource version
	List(ctx context.Context, target model.Target) (*ListResult, error)

	// Watch streams changes for a target starting after resourceVersion.
	// The channel is closed when the stream ends; a terminal EventError
	// carries the failure when there is one.
	Watch(ctx context.Context, target model.Target, resourceVersion string) (<-chan model.WatchEvent, error)

	// Delete removes a resource
	Delete(ctx context.Context, kubeContext string, rt model.ResourceType, key model.Key) error

	// PatchRestart triggers a rollout restart of a StatefulSet
	PatchRestart(ctx context.Context, kubeContext string, key model.Key) error

	// GetManifest returns the YAML manifest of a resource
	GetManifest(ctx context.Context, kubeContext string, rt model.ResourceType, key model.Key) (string, error)

	// ApplyManifest updates a resource to match the given JSON manifest
	ApplyManifest(ctx context.Context, kubeContext string, rt model.ResourceType, key model.Key, manifest []byte) error

	// StreamLogs opens a log stream for a pod
	StreamLogs(ctx context.Context, kubeContext string, key model.Key, opts LogOptions) (io.ReadCloser, error)

	// Name returns the client name (for logging/debugging)
	Name() string

	// Close cleans up resources
	Close() error
}

// ListResult is an authoritative list of a collection.
type ListResult struct {
	Items           []model.ResourceItem
	ResourceVersion string
}

// LogOptions controls a log stream.
type LogOptions struct {
	Container string
	Follow    bool
	TailLines int64
}

// Helper functions to convert Kubernetes API objects to internal models

// ConvertPod converts a Kubernetes Pod to a ResourceItem
func ConvertPod(pod *corev1.Pod) model.ResourceItem {
	podData := &model.PodData{
		Node:       pod.Spec.NodeName,
		Phase:      string(pod.Status.Phase),
		Reason:     pod.Status.Reason,
		Message:    pod.Status.Message,
		HostIP:     pod.Status.HostIP,
		PodIP:      pod.Status.PodIP,
		QOSClass:   string(pod.Status.QOSClass),
		Conditions: pod.Status.Conditions,
		Containers: len(pod.Spec.Containers),
	}

	podData.ContainerStates = make([]model.ContainerState, 0, len(pod.Status.ContainerStatuses))
	for i := range pod.Status.ContainerStatuses {
		cs := &pod.Status.ContainerStatuses[i]
		podData.RestartCount += cs.RestartCount
		if cs.Ready {
			podData.ReadyContainers++
		}
		podData.ContainerStates = append(podData.ContainerStates, extractContainerState(cs))
	}

	return model.ResourceItem{
		Type:              model.ResourcePod,
		Namespace:         pod.Namespace,
		Name:              pod.Name,
		Status:            podStatus(pod),
		CreationTimestamp: pod.CreationTimestamp.Time,
		Labels:            pod.Labels,
		Annotations:       pod.Annotations,
		Pod:               podData,
	}
}

// podStatus prefers the first container waiting reason over the phase
func podStatus(pod *corev1.Pod) string {
	if pod.DeletionTimestamp != nil {
		return "Terminating"
	}
	for _, cs := range pod.Status.ContainerStatuses {
		if cs.State.Waiting != nil {
			if cs.State.Waiting.Reason != "" {
				return cs.State.Waiting.Reason
			}
			return "Waiting"
		}
		if cs.State.Terminated != nil {
			return "Terminated"
		}
	}
	if pod.Status.Phase == "" {
		return "Unknown"
	}
	return string(pod.Status.Phase)
}

// extractContainerState extracts container state from ContainerStatus
func extractContainerState(cs *corev1.ContainerStatus) model.ContainerState {
	state := model.ContainerState{
		Name:         cs.Name,
		Image:        cs.Image,
		Ready:        cs.Ready,
		RestartCount: cs.RestartCount,
	}

	if cs.State.Running != nil {
		state.State = "Running"
	} else if cs.State.Waiting != nil {
		state.State = "Waiting"
		state.Reason = cs.State.Waiting.Reason
		state.Message = cs.State.Waiting.Message
	} else if cs.State.Terminated != nil {
		state.State = "Terminated"
		state.Reason = cs.State.Terminated.Reason
		state.Message = cs.State.Terminated.Message
		state.ExitCode = cs.State.Terminated.ExitCode
	}

	return state
}

// ConvertPVC converts a PersistentVolumeClaim to a ResourceItem
func ConvertPVC(pvc *corev1.PersistentVolumeClaim) model.ResourceItem {
	pvcData := &model.PVCData{
		Phase:       string(pvc.Status.Phase),
		Volume:      pvc.Spec.VolumeName,
		AccessModes: convertAccessModes(pvc.Spec.AccessModes),
	}
	if pvc.Spec.StorageClassName != nil {
		pvcData.StorageClass = *pvc.Spec.StorageClassName
	}
	if pvc.Spec.VolumeMode != nil {
		pvcData.VolumeMode = string(*pvc.Spec.VolumeMode)
	}
	if storage, ok := pvc.Spec.Resources.Requests[corev1.ResourceStorage]; ok {
		pvcData.RequestedStorage = storage.String()
	}
	if storage, ok := pvc.Status.Capacity[corev1.ResourceStorage]; ok {
		pvcData.Capacity = storage.String()
	}

	status := pvcData.Phase
	if status == "" {
		status = "Unknown"
	}
	if pvc.DeletionTimestamp != nil {
		status = "Terminating"
	}

	return model.ResourceItem{
		Type:              model.ResourcePVC,
		Namespace:         pvc.Namespace,
		Name:              pvc.Name,
		Status:            status,
		CreationTimestamp: pvc.CreationTimestamp.Time,
		Labels:            pvc.Labels,
		Annotations:       pvc.Annotations,
		PVC:               pvcData,
	}
}

func convertAccessModes(modes []corev1.PersistentVolumeAccessMode) []string {
	result := make([]string, 0, len(modes))
	for _, m := range modes {
		result = append(result, string(m))
	}
	return result
}

// ConvertStatefulSet converts a StatefulSet to a ResourceItem
func ConvertStatefulSet(sts *appsv1.StatefulSet) model.ResourceItem {
	var desired int32 = 1
	if sts.Spec.Replicas != nil {
		desired = *sts.Spec.Replicas
	}
	stsData := &model.StatefulSetData{
		Replicas:        desired,
		ReadyReplicas:   sts.Status.ReadyReplicas,
		CurrentReplicas: sts.Status.CurrentReplicas,
		UpdatedReplicas: sts.Status.UpdatedReplicas,
		ServiceName:     sts.Spec.ServiceName,
	}
	if sts.Spec.Selector != nil {
		stsData.Selector = sts.Spec.Selector.MatchLabels
	}

	status := "Updating"
	if stsData.ReadyReplicas == desired {
		status = "Active"
	}
	if sts.DeletionTimestamp != nil {
		status = "Terminating"
	}

	return model.ResourceItem{
		Type:              model.ResourceStatefulSet,
		Namespace:         sts.Namespace,
		Name:              sts.Name,
		Status:            status,
		CreationTimestamp: sts.CreationTimestamp.Time,
		Labels:            sts.Labels,
		Annotations:       sts.Annotations,
		StatefulSet:       stsData,
	}
}

func sortItems(items []model.ResourceItem) {
	sort.Slice(items, func(i, j int) bool {
		return items[i].Key().Less(items[j].Key())
	})
}
