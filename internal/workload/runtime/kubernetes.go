package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	appsv1 "k8s.io/api/apps/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"leasekeeper/internal/workload"
)

// KubernetesConfig holds configuration for the Kubernetes executor.
type KubernetesConfig struct {
	// Namespace holding the managed Deployments
	Namespace string
	// Kubeconfig path used outside a cluster (optional)
	Kubeconfig string
}

// KubernetesExecutor runs a workload by scaling its Deployment between zero
// and one replica. The process name is the Deployment name.
type KubernetesExecutor struct {
	clientset kubernetes.Interface
	namespace string
}

// homeDir returns the user's home directory.
func homeDir() string {
	if h := os.Getenv("HOME"); h != "" {
		return h
	}
	return os.Getenv("USERPROFILE") // Windows
}

// NewKubernetesExecutor creates a Kubernetes executor.
// Tries in-cluster configuration first, falls back to kubeconfig for local development.
func NewKubernetesExecutor(cfg KubernetesConfig, logger *slog.Logger) (*KubernetesExecutor, error) {
	config, err := rest.InClusterConfig()
	if err != nil {
		kubeconfig := cfg.Kubeconfig
		if kubeconfig == "" {
			kubeconfig = filepath.Join(homeDir(), ".kube", "config")
		}
		logger.Info("in-cluster config not available, using kubeconfig", "kubeconfig", kubeconfig, "reason", err)
		config, err = clientcmd.BuildConfigFromFlags("", kubeconfig)
		if err != nil {
			return nil, fmt.Errorf("failed to build kubernetes config: %w: %w", workload.ErrRuntimeUnavailable, err)
		}
	}

	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create kubernetes clientset: %w: %w", workload.ErrRuntimeUnavailable, err)
	}

	return newKubernetesExecutor(clientset, cfg.Namespace), nil
}

func newKubernetesExecutor(clientset kubernetes.Interface, namespace string) *KubernetesExecutor {
	if namespace == "" {
		namespace = "default"
	}
	return &KubernetesExecutor{clientset: clientset, namespace: namespace}
}

// Start implements workload.Executor by scaling the Deployment to one replica.
func (k *KubernetesExecutor) Start(ctx context.Context, name string) error {
	return k.scale(ctx, name, 1)
}

// Stop implements workload.Executor by scaling the Deployment to zero.
func (k *KubernetesExecutor) Stop(ctx context.Context, name string) error {
	return k.scale(ctx, name, 0)
}

// Status implements workload.Executor. A Deployment counts as running while
// it desires at least one replica.
func (k *KubernetesExecutor) Status(ctx context.Context, name string) (workload.Status, error) {
	deployment, err := k.get(ctx, name)
	if apierrors.IsNotFound(err) {
		return workload.StatusNotFound, nil
	}
	if err != nil {
		return workload.StatusNotRunning, k.classify("get", name, err)
	}
	if replicas(deployment) > 0 {
		return workload.StatusRunning, nil
	}
	return workload.StatusNotRunning, nil
}

func (k *KubernetesExecutor) scale(ctx context.Context, name string, want int32) error {
	deployment, err := k.get(ctx, name)
	if err != nil {
		return k.classify("get", name, err)
	}
	if replicas(deployment) == want {
		return nil
	}

	deployment.Spec.Replicas = &want
	if _, err := k.clientset.AppsV1().Deployments(k.namespace).Update(ctx, deployment, metav1.UpdateOptions{}); err != nil {
		return k.classify("scale", name, err)
	}
	return nil
}

func (k *KubernetesExecutor) get(ctx context.Context, name string) (*appsv1.Deployment, error) {
	return k.clientset.AppsV1().Deployments(k.namespace).Get(ctx, name, metav1.GetOptions{})
}

func (k *KubernetesExecutor) classify(op, name string, err error) error {
	if apierrors.IsNotFound(err) {
		return fmt.Errorf("failed to %s deployment %s/%s: %w", op, k.namespace, name, workload.ErrNotFound)
	}
	return fmt.Errorf("failed to %s deployment %s/%s: %w: %w", op, k.namespace, name, workload.ErrRuntimeUnavailable, err)
}

// replicas returns the desired replica count; Kubernetes defaults nil to one.
func replicas(d *appsv1.Deployment) int32 {
	if d.Spec.Replicas == nil {
		return 1
	}
	return *d.Spec.Replicas
}
