package datasource

import (
	"context"
	"io"

	"github.com/yourusername/k8s-console/internal/model"
)

// OfflineClient stands in when no kubeconfig or in-cluster config could be
// loaded. Every cluster call fails with ErrOffline.
type OfflineClient struct {
	cause error
}

var _ ClusterClient = (*OfflineClient)(nil)

// NewOfflineClient creates an offline client remembering why it is offline
func NewOfflineClient(cause error) *OfflineClient {
	return &OfflineClient{cause: cause}
}

// Cause returns the load error that forced offline mode
func (c *OfflineClient) Cause() error {
	return c.cause
}

func (c *OfflineClient) ListContexts() []model.ClusterContext { return nil }

func (c *OfflineClient) CurrentContext() string { return "" }

func (c *OfflineClient) SetCurrentContext(string) error { return ErrOffline }

func (c *OfflineClient) ListNamespaces(context.Context, string) ([]string, error) {
	return nil, ErrOffline
}

func (c *OfflineClient) List(context.Context, model.Target) (*ListResult, error) {
	return nil, ErrOffline
}

func (c *OfflineClient) Watch(context.Context, model.Target, string) (<-chan model.WatchEvent, error) {
	return nil, ErrOffline
}

func (c *OfflineClient) Delete(context.Context, string, model.ResourceType, model.Key) error {
	return ErrOffline
}

func (c *OfflineClient) PatchRestart(context.Context, string, model.Key) error {
	return ErrOffline
}

func (c *OfflineClient) GetManifest(context.Context, string, model.ResourceType, model.Key) (string, error) {
	return "", ErrOffline
}

func (c *OfflineClient) ApplyManifest(context.Context, string, model.ResourceType, model.Key, []byte) error {
	return ErrOffline
}

func (c *OfflineClient) StreamLogs(context.Context, string, model.Key, LogOptions) (io.ReadCloser, error) {
	return nil, ErrOffline
}

func (c *OfflineClient) Name() string { return "offline" }

func (c *OfflineClient) Close() error { return nil }
