package diagnostic

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/yourusername/k8s-console/internal/model"
	authorizationv1 "k8s.io/api/authorization/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	authorizationclient "k8s.io/client-go/kubernetes/typed/authorization/v1"
)

// Permission is one RBAC verb a console feature relies on
type Permission struct {
	Verb          string
	Group         string
	Resource      string
	Subresource   string
	ClusterScoped bool
	Feature       string
}

// ConsolePermissions lists what browsing and the item actions need
var ConsolePermissions = []Permission{
	{Verb: "list", Resource: "namespaces", ClusterScoped: true, Feature: "namespace selector"},
	{Verb: "list", Resource: "pods", Feature: "browse pods"},
	{Verb: "watch", Resource: "pods", Feature: "browse pods"},
	{Verb: "list", Resource: "persistentvolumeclaims", Feature: "browse PVCs"},
	{Verb: "watch", Resource: "persistentvolumeclaims", Feature: "browse PVCs"},
	{Verb: "list", Group: "apps", Resource: "statefulsets", Feature: "browse StatefulSets"},
	{Verb: "watch", Group: "apps", Resource: "statefulsets", Feature: "browse StatefulSets"},
	{Verb: "get", Resource: "pods", Subresource: "log", Feature: "pod logs"},
	{Verb: "delete", Resource: "pods", Feature: "delete pods"},
	{Verb: "delete", Resource: "persistentvolumeclaims", Feature: "delete PVCs"},
	{Verb: "delete", Group: "apps", Resource: "statefulsets", Feature: "delete StatefulSets"},
	{Verb: "patch", Group: "apps", Resource: "statefulsets", Feature: "restart and edit StatefulSets"},
	{Verb: "patch", Resource: "pods", Feature: "edit pods"},
}

// AccessResult records whether the current identity holds a permission
type AccessResult struct {
	Permission
	Allowed   bool
	Reason    string
	CheckedAt time.Time
}

// Hint returns the kubectl command that reproduces the check
func (r AccessResult) Hint(namespace string) string {
	resource := r.Resource
	if r.Group != "" {
		resource += "." + r.Group
	}
	if r.Subresource != "" {
		resource += "/" + r.Subresource
	}
	switch {
	case r.ClusterScoped:
		return fmt.Sprintf("kubectl auth can-i %s %s", r.Verb, resource)
	case namespace == "" || namespace == model.AllNamespaces:
		return fmt.Sprintf("kubectl auth can-i %s %s -A", r.Verb, resource)
	default:
		return fmt.Sprintf("kubectl auth can-i %s %s -n %s", r.Verb, resource, namespace)
	}
}

// CheckAccess performs a SelfSubjectAccessReview for each permission.
// namespace "all" checks across every namespace.
func CheckAccess(ctx context.Context, client authorizationclient.AuthorizationV1Interface, namespace string, perms []Permission) ([]AccessResult, error) {
	if namespace == model.AllNamespaces {
		namespace = ""
	}

	results := make([]AccessResult, 0, len(perms))
	for _, p := range perms {
		attrs := &authorizationv1.ResourceAttributes{
			Verb:        p.Verb,
			Group:       p.Group,
			Resource:    p.Resource,
			Subresource: p.Subresource,
		}
		if !p.ClusterScoped {
			attrs.Namespace = namespace
		}
		sar := &authorizationv1.SelfSubjectAccessReview{
			Spec: authorizationv1.SelfSubjectAccessReviewSpec{ResourceAttributes: attrs},
		}

		resp, err := client.SelfSubjectAccessReviews().Create(ctx, sar, metav1.CreateOptions{})
		if err != nil {
			return results, fmt.Errorf("access review for %s %s: %w", p.Verb, p.Resource, err)
		}

		result := AccessResult{
			Permission: p,
			Allowed:    resp.Status.Allowed,
			CheckedAt:  time.Now(),
		}
		if !resp.Status.Allowed {
			var details []string
			if resp.Status.Reason != "" {
				details = append(details, resp.Status.Reason)
			}
			if resp.Status.EvaluationError != "" {
				details = append(details, resp.Status.EvaluationError)
			}
			result.Reason = strings.TrimSpace(strings.Join(details, "; "))
		}
		results = append(results, result)
	}
	return results, nil
}

// Denied returns the results that were not allowed
func Denied(results []AccessResult) []AccessResult {
	var denied []AccessResult
	for _, r := range results {
		if !r.Allowed {
			denied = append(denied, r)
		}
	}
	return denied
}
