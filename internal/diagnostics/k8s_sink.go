package diagnostics

import (
	"context"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/kubernetes/scheme"
	typedcorev1 "k8s.io/client-go/kubernetes/typed/core/v1"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/record"
)

// K8sEventSink records leak warnings as Kubernetes Events against the
// pod the cache is running in, so `kubectl describe pod` surfaces
// leaks without needing log access. It is a no-op outside a cluster:
// construction falls back to a discarding recorder rather than
// failing, since diagnostics must never block cache startup.
type K8sEventSink struct {
	recorder  record.EventRecorder
	namespace string
	podName   string
}

// NewK8sEventSink builds a sink using in-cluster configuration. If no
// in-cluster config is available (local dev, tests), it returns a sink
// whose Leak is a no-op rather than an error.
func NewK8sEventSink(namespace, podName string) (*K8sEventSink, error) {
	cfg, err := rest.InClusterConfig()
	if err != nil {
		return &K8sEventSink{recorder: nil, namespace: namespace, podName: podName}, nil
	}

	clientset, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("build k8s clientset: %w", err)
	}

	broadcaster := record.NewBroadcaster()
	broadcaster.StartRecordingToSink(&typedcorev1.EventSinkImpl{
		Interface: clientset.CoreV1().Events(namespace),
	})
	recorder := broadcaster.NewRecorder(scheme.Scheme, corev1.EventSource{Component: "rxcache"})

	return &K8sEventSink{recorder: recorder, namespace: namespace, podName: podName}, nil
}

func (k *K8sEventSink) Leak(_ context.Context, w LeakWarning) error {
	if k.recorder == nil {
		return nil
	}
	ref := &corev1.ObjectReference{
		Kind:      "Pod",
		Name:      k.podName,
		Namespace: k.namespace,
	}
	k.recorder.Eventf(ref, corev1.EventTypeWarning, "RegexCacheLeak",
		"%s tier pattern handle held %s past eviction, ref_count=%d", w.Tier, w.Age, w.RefCount)
	return nil
}
