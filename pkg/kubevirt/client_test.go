/*
Copyright 2024 The hypervisor-builder Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

//go:build unit

package kubevirt_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	dynamicfake "k8s.io/client-go/dynamic/fake"
	k8sfake "k8s.io/client-go/kubernetes/fake"

	"github.com/VirtwhoQE/hypervisor-builder/pkg/kubevirt"
)

var vmiGVR = schema.GroupVersionResource{
	Group:    "kubevirt.io",
	Version:  "v1",
	Resource: "virtualmachineinstances",
}

func newVMI(name, uid, phase, nodeName, ip string) *unstructured.Unstructured {
	status := map[string]any{}
	if phase != "" {
		status["phase"] = phase
	}
	if nodeName != "" {
		status["nodeName"] = nodeName
	}
	if ip != "" {
		status["interfaces"] = []any{
			map[string]any{"ipAddress": ip},
		}
	}

	return &unstructured.Unstructured{
		Object: map[string]any{
			"apiVersion": "kubevirt.io/v1",
			"kind":       "VirtualMachineInstance",
			"metadata": map[string]any{
				"name":      name,
				"namespace": "default",
				"uid":       uid,
			},
			"status": status,
		},
	}
}

func newNode(name, systemUUID, kubeletVersion string, cpus string) *corev1.Node {
	return &corev1.Node{
		ObjectMeta: metav1.ObjectMeta{Name: name},
		Status: corev1.NodeStatus{
			NodeInfo: corev1.NodeSystemInfo{
				SystemUUID:     systemUUID,
				KubeletVersion: kubeletVersion,
			},
			Capacity: corev1.ResourceList{
				corev1.ResourceCPU: resource.MustParse(cpus),
			},
		},
	}
}

func newTestClient(t *testing.T, nodes []runtime.Object, vmis ...runtime.Object) *kubevirt.Client {
	t.Helper()

	dyn := dynamicfake.NewSimpleDynamicClientWithCustomListKinds(
		runtime.NewScheme(),
		map[schema.GroupVersionResource]string{vmiGVR: "VirtualMachineInstanceList"},
		vmis...,
	)

	return kubevirt.NewFromClients(
		k8sfake.NewSimpleClientset(nodes...),
		dyn,
		kubevirt.WithAPIVersion("v1"),
	)
}

// TestGuestSearch verifies the VMI-by-name lookup and the node facts
// resolved through the VMI's nodeName.
func TestGuestSearch(t *testing.T) {
	c := newTestClient(t,
		[]runtime.Object{newNode("node-1", "5c8282a2", "v1.29.1", "8")},
		newVMI("vm1", "uid-1", "Running", "node-1", "10.0.10.5"),
	)

	guest, err := c.GuestSearch(context.Background(), "vm1")
	require.NoError(t, err)
	require.NotNil(t, guest)

	assert.Equal(t, "vm1", guest.GuestName)
	assert.Equal(t, "uid-1", guest.GuestUUID)
	assert.Equal(t, "Running", guest.GuestState)
	assert.Equal(t, "10.0.10.5", guest.GuestIP)
	assert.Equal(t, "5c8282a2", guest.UUID)
	assert.Equal(t, "node-1", guest.Hostname)
	assert.Equal(t, "v1.29.1", guest.Version)
	assert.Equal(t, 8, guest.CPU)
}

// TestGuestSearch_UnscheduledVMI verifies a VMI without a node yields a
// record with the host fields absent rather than an error.
func TestGuestSearch_UnscheduledVMI(t *testing.T) {
	c := newTestClient(t, nil,
		newVMI("vm1", "uid-1", "Scheduling", "", ""),
	)

	guest, err := c.GuestSearch(context.Background(), "vm1")
	require.NoError(t, err)
	require.NotNil(t, guest)

	assert.Equal(t, "Scheduling", guest.GuestState)
	assert.Empty(t, guest.Hostname)
	assert.Empty(t, guest.UUID)
}

// TestGuestSearch_NotFound verifies an unknown name yields a nil record.
func TestGuestSearch_NotFound(t *testing.T) {
	c := newTestClient(t, nil,
		newVMI("other", "uid-2", "Running", "", ""),
	)

	guest, err := c.GuestSearch(context.Background(), "vm1")
	require.NoError(t, err)
	assert.Nil(t, guest)
}

// TestNodes verifies the node listing passthrough.
func TestNodes(t *testing.T) {
	c := newTestClient(t, []runtime.Object{
		newNode("node-1", "a", "v1.29.1", "4"),
		newNode("node-2", "b", "v1.29.1", "4"),
	})

	nodes, err := c.Nodes(context.Background())
	require.NoError(t, err)
	assert.Len(t, nodes, 2)
}
