package diagnostic

import (
	"context"
	"errors"
	"testing"

	authorizationv1 "k8s.io/api/authorization/v1"
	"k8s.io/apimachinery/pkg/runtime"
	fakeK8s "k8s.io/client-go/kubernetes/fake"
	k8sTesting "k8s.io/client-go/testing"
)

// reviewer allows everything except delete and records reviewed namespaces
func reviewer(cs *fakeK8s.Clientset, namespaces *[]string) {
	cs.PrependReactor("create", "selfsubjectaccessreviews", func(action k8sTesting.Action) (bool, runtime.Object, error) {
		sar := action.(k8sTesting.CreateAction).GetObject().(*authorizationv1.SelfSubjectAccessReview)
		attrs := sar.Spec.ResourceAttributes
		*namespaces = append(*namespaces, attrs.Namespace)
		if attrs.Verb == "delete" {
			sar.Status = authorizationv1.SubjectAccessReviewStatus{Allowed: false, Reason: "no RBAC policy matched"}
		} else {
			sar.Status = authorizationv1.SubjectAccessReviewStatus{Allowed: true}
		}
		return true, sar, nil
	})
}

func TestCheckAccess(t *testing.T) {
	cs := fakeK8s.NewSimpleClientset()
	var namespaces []string
	reviewer(cs, &namespaces)

	results, err := CheckAccess(context.Background(), cs.AuthorizationV1(), "payments", ConsolePermissions)
	if err != nil {
		t.Fatalf("CheckAccess failed: %v", err)
	}
	if len(results) != len(ConsolePermissions) {
		t.Fatalf("Expected %d results, got %d", len(ConsolePermissions), len(results))
	}

	denied := Denied(results)
	if len(denied) != 3 {
		t.Fatalf("Expected 3 denied delete permissions, got %d", len(denied))
	}
	for _, r := range denied {
		if r.Verb != "delete" || r.Reason != "no RBAC policy matched" {
			t.Errorf("Unexpected denial %+v", r)
		}
	}

	// namespaces is cluster scoped, the rest are checked in the selected namespace
	if namespaces[0] != "" {
		t.Errorf("Expected cluster-scoped review for namespaces, got %q", namespaces[0])
	}
	for _, ns := range namespaces[1:] {
		if ns != "payments" {
			t.Errorf("Expected namespaced review in payments, got %q", ns)
		}
	}
}

func TestCheckAccessAllNamespaces(t *testing.T) {
	cs := fakeK8s.NewSimpleClientset()
	var namespaces []string
	reviewer(cs, &namespaces)

	if _, err := CheckAccess(context.Background(), cs.AuthorizationV1(), "all", ConsolePermissions[1:2]); err != nil {
		t.Fatalf("CheckAccess failed: %v", err)
	}
	if len(namespaces) != 1 || namespaces[0] != "" {
		t.Errorf("Expected an all-namespace review, got %v", namespaces)
	}
}

func TestCheckAccessError(t *testing.T) {
	cs := fakeK8s.NewSimpleClientset()
	cs.PrependReactor("create", "selfsubjectaccessreviews", func(k8sTesting.Action) (bool, runtime.Object, error) {
		return true, nil, errors.New("connection refused")
	})

	if _, err := CheckAccess(context.Background(), cs.AuthorizationV1(), "default", ConsolePermissions); err == nil {
		t.Error("Expected review error to be returned")
	}
}

func TestHint(t *testing.T) {
	tests := []struct {
		result    AccessResult
		namespace string
		want      string
	}{
		{AccessResult{Permission: Permission{Verb: "list", Resource: "namespaces", ClusterScoped: true}}, "default", "kubectl auth can-i list namespaces"},
		{AccessResult{Permission: Permission{Verb: "get", Resource: "pods", Subresource: "log"}}, "default", "kubectl auth can-i get pods/log -n default"},
		{AccessResult{Permission: Permission{Verb: "patch", Group: "apps", Resource: "statefulsets"}}, "all", "kubectl auth can-i patch statefulsets.apps -A"},
	}
	for _, tt := range tests {
		if got := tt.result.Hint(tt.namespace); got != tt.want {
			t.Errorf("Hint(%q) = %q, want %q", tt.namespace, got, tt.want)
		}
	}
}
