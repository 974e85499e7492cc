package model

import (
	"fmt"
	"strings"
	"time"

	corev1 "k8s.io/api/core/v1"
)

// AllNamespaces is the pseudo namespace meaning "unscoped".
const AllNamespaces = "all"

// ResourceType is the closed set of resource kinds the console can browse.
type ResourceType int

const (
	ResourcePod ResourceType = iota
	ResourcePVC
	ResourceStatefulSet
)

// ResourceTypes lists every supported type in selector order.
var ResourceTypes = []ResourceType{ResourcePod, ResourcePVC, ResourceStatefulSet}

func (t ResourceType) String() string {
	switch t {
	case ResourcePod:
		return "Pods"
	case ResourcePVC:
		return "PVCs"
	case ResourceStatefulSet:
		return "StatefulSets"
	default:
		return "Unknown"
	}
}

// Kind returns the Kubernetes kind served by the type.
func (t ResourceType) Kind() string {
	switch t {
	case ResourcePod:
		return "Pod"
	case ResourcePVC:
		return "PersistentVolumeClaim"
	case ResourceStatefulSet:
		return "StatefulSet"
	default:
		return ""
	}
}

// APIVersion returns the group/version of the type.
func (t ResourceType) APIVersion() string {
	if t == ResourceStatefulSet {
		return "apps/v1"
	}
	return "v1"
}

// Columns returns the table header for the type.
func (t ResourceType) Columns() []string {
	switch t {
	case ResourcePod:
		return []string{"NAME", "STATUS", "AGE", "RESTARTS", "NODE"}
	case ResourcePVC:
		return []string{"NAME", "STATUS", "VOLUME", "CAPACITY", "AGE"}
	case ResourceStatefulSet:
		return []string{"NAME", "READY", "STATUS", "AGE"}
	default:
		return nil
	}
}

// CanRestart reports whether a rollout restart is offered for the type.
func (t ResourceType) CanRestart() bool { return t == ResourceStatefulSet }

// CanEdit reports whether the manifest can be edited in place.
func (t ResourceType) CanEdit() bool { return t == ResourcePod || t == ResourceStatefulSet }

// HasLogs reports whether the type streams logs.
func (t ResourceType) HasLogs() bool { return t == ResourcePod }

// Next cycles forward through ResourceTypes.
func (t ResourceType) Next() ResourceType {
	return ResourceTypes[(t.index()+1)%len(ResourceTypes)]
}

// Prev cycles backward through ResourceTypes.
func (t ResourceType) Prev() ResourceType {
	return ResourceTypes[(t.index()+len(ResourceTypes)-1)%len(ResourceTypes)]
}

func (t ResourceType) index() int {
	for i, rt := range ResourceTypes {
		if rt == t {
			return i
		}
	}
	return 0
}

// ParseResourceType accepts the display names plus common kubectl aliases.
func ParseResourceType(s string) (ResourceType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pod", "pods", "po":
		return ResourcePod, nil
	case "pvc", "pvcs", "persistentvolumeclaim", "persistentvolumeclaims":
		return ResourcePVC, nil
	case "sts", "statefulset", "statefulsets":
		return ResourceStatefulSet, nil
	default:
		return ResourcePod, fmt.Errorf("unknown resource type %q", s)
	}
}

// Key identifies an item within a (context, type) scope.
type Key struct {
	Namespace string
	Name      string
}

func (k Key) String() string {
	if k.Namespace == "" {
		return k.Name
	}
	return k.Namespace + "/" + k.Name
}

// Less orders keys by namespace, then name.
func (k Key) Less(o Key) bool {
	if k.Namespace != o.Namespace {
		return k.Namespace < o.Namespace
	}
	return k.Name < o.Name
}

// ClusterContext is a kubeconfig context the operator can switch to.
type ClusterContext struct {
	Name      string
	Cluster   string
	User      string
	Namespace string
}

// ResourceItem is one row of the resource table. Exactly one of Pod, PVC or
// StatefulSet is set, matching Type.
type ResourceItem struct {
	Type              ResourceType
	Namespace         string
	Name              string
	Status            string
	CreationTimestamp time.Time
	Labels            map[string]string
	Annotations       map[string]string

	Pod         *PodData
	PVC         *PVCData
	StatefulSet *StatefulSetData
}

// Key returns the identity key of the item.
func (r ResourceItem) Key() Key {
	return Key{Namespace: r.Namespace, Name: r.Name}
}

// Columns returns the cell values matching Type.Columns().
func (r ResourceItem) Columns(now time.Time) []string {
	age := FormatAge(r.CreationTimestamp, now)
	switch r.Type {
	case ResourcePod:
		restarts, node := "0", "<none>"
		if r.Pod != nil {
			restarts = fmt.Sprintf("%d", r.Pod.RestartCount)
			if r.Pod.Node != "" {
				node = r.Pod.Node
			}
		}
		return []string{r.Name, r.Status, age, restarts, node}
	case ResourcePVC:
		volume, capacity := "<none>", "<none>"
		if r.PVC != nil {
			if r.PVC.Volume != "" {
				volume = r.PVC.Volume
			}
			if r.PVC.Capacity != "" {
				capacity = r.PVC.Capacity
			}
		}
		return []string{r.Name, r.Status, volume, capacity, age}
	case ResourceStatefulSet:
		ready := "0/0"
		if r.StatefulSet != nil {
			ready = fmt.Sprintf("%d/%d", r.StatefulSet.ReadyReplicas, r.StatefulSet.Replicas)
		}
		return []string{r.Name, ready, r.Status, age}
	default:
		return []string{r.Name, r.Status, age}
	}
}

// PodData holds pod-specific fields
type PodData struct {
	Node     string
	Phase    string // Pending, Running, Succeeded, Failed, Unknown
	Reason   string
	Message  string
	HostIP   string
	PodIP    string
	QOSClass string

	// Container status
	Containers      int
	ReadyContainers int
	RestartCount    int32
	ContainerStates []ContainerState

	Conditions []corev1.PodCondition
}

// ContainerState represents container status
type ContainerState struct {
	Name         string
	Image        string
	Ready        bool
	RestartCount int32
	State        string // Running, Waiting, Terminated
	Reason       string
	Message      string
	ExitCode     int32
}

// PVCData holds PersistentVolumeClaim-specific fields
type PVCData struct {
	Phase            string // Pending, Bound, Lost
	Volume           string // PV name
	Capacity         string // e.g. "10Gi"
	RequestedStorage string
	StorageClass     string
	AccessModes      []string
	VolumeMode       string
}

// StatefulSetData holds StatefulSet-specific fields
type StatefulSetData struct {
	Replicas        int32 // Desired replicas
	ReadyReplicas   int32
	CurrentReplicas int32
	UpdatedReplicas int32
	ServiceName     string
	Selector        map[string]string
}

// FormatAge renders the elapsed time since t in the compact kubectl style.
func FormatAge(t, now time.Time) string {
	if t.IsZero() {
		return "<unknown>"
	}
	d := now.Sub(t)
	if d < 0 {
		return "0s"
	}
	secs := int64(d.Seconds())
	days := secs / 86400
	hours := (secs % 86400) / 3600
	minutes := (secs % 3600) / 60
	switch {
	case days > 0:
		return fmt.Sprintf("%dd%dh", days, hours)
	case hours > 0:
		return fmt.Sprintf("%dh%dm", hours, minutes)
	case minutes > 0:
		return fmt.Sprintf("%dm", minutes)
	default:
		return fmt.Sprintf("%ds", secs%60)
	}
}
