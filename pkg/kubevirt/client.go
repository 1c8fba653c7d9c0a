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

// Package kubevirt reads guest inventory from a kubevirt cluster through
// the Kubernetes API server, authenticating with a bearer token.
package kubevirt

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"

	"github.com/VirtwhoQE/hypervisor-builder/pkg/virt"
)

const kubevirtGroup = "kubevirt.io"

// Client is a read-only view over a kubevirt cluster: nodes through the
// typed core/v1 client, VirtualMachineInstances through the dynamic
// client.
type Client struct {
	kube kubernetes.Interface
	dyn  dynamic.Interface
	log  logr.Logger

	// version is the preferred kubevirt.io API version; discovered
	// lazily when empty.
	version string
}

// Option configures a Client.
type Option func(*Client)

// WithLogger injects the logger.
func WithLogger(log logr.Logger) Option {
	return func(c *Client) { c.log = log }
}

// WithAPIVersion pins the kubevirt.io API version instead of discovering
// the server's preferred one.
func WithAPIVersion(version string) Option {
	return func(c *Client) { c.version = version }
}

// New builds a client for the API server at endpoint, authenticating
// with the given bearer token. Certificate verification is skipped; test
// clusters rarely carry trusted certificates.
func New(endpoint, token string, opts ...Option) (*Client, error) {
	cfg := &rest.Config{
		Host:            endpoint,
		BearerToken:     token,
		TLSClientConfig: rest.TLSClientConfig{Insecure: true},
	}

	kube, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating kubernetes client: %w", err)
	}

	dyn, err := dynamic.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating dynamic client: %w", err)
	}

	return NewFromClients(kube, dyn, opts...), nil
}

// NewFromClients builds a client from pre-constructed clientsets. Used
// by tests to inject fakes.
func NewFromClients(kube kubernetes.Interface, dyn dynamic.Interface, opts ...Option) *Client {
	c := &Client{
		kube: kube,
		dyn:  dyn,
		log:  logr.Discard(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// preferredVersion resolves the server's preferred kubevirt.io API
// version, caching the answer.
func (c *Client) preferredVersion(_ context.Context) (string, error) {
	if c.version != "" {
		return c.version, nil
	}

	groups, err := c.kube.Discovery().ServerGroups()
	if err != nil {
		return "", fmt.Errorf("discovering API groups: %w", err)
	}

	for _, group := range groups.Groups {
		if group.Name == kubevirtGroup {
			c.version = group.PreferredVersion.Version
			return c.version, nil
		}
	}

	return "", fmt.Errorf("API group %q not served", kubevirtGroup)
}

// Nodes lists the cluster's nodes.
func (c *Client) Nodes(ctx context.Context) ([]corev1.Node, error) {
	list, err := c.kube.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("listing nodes: %w", err)
	}
	return list.Items, nil
}

// VMIs lists all VirtualMachineInstances across namespaces.
func (c *Client) VMIs(ctx context.Context) (*unstructured.UnstructuredList, error) {
	version, err := c.preferredVersion(ctx)
	if err != nil {
		return nil, err
	}

	gvr := schema.GroupVersionResource{
		Group:    kubevirtGroup,
		Version:  version,
		Resource: "virtualmachineinstances",
	}

	list, err := c.dyn.Resource(gvr).Namespace(metav1.NamespaceAll).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("listing virtualmachineinstances: %w", err)
	}

	return list, nil
}

// GuestSearch finds a VirtualMachineInstance by name and assembles the
// flattened guest record, resolving the node it runs on for the host
// facts. A VMI not yet scheduled to a node yields a record with the host
// fields absent. A nil result means no VMI of that name exists.
func (c *Client) GuestSearch(ctx context.Context, guestName string) (*virt.Guest, error) {
	vmis, err := c.VMIs(ctx)
	if err != nil {
		return nil, err
	}

	for i := range vmis.Items {
		vmi := &vmis.Items[i]
		if vmi.GetName() != guestName {
			continue
		}

		guest := &virt.Guest{
			GuestName: vmi.GetName(),
			GuestUUID: string(vmi.GetUID()),
		}

		if phase, ok, _ := unstructured.NestedString(vmi.Object, "status", "phase"); ok {
			guest.GuestState = phase
		}
		if ifaces, ok, _ := unstructured.NestedSlice(vmi.Object, "status", "interfaces"); ok {
			for _, it := range ifaces {
				if iface, ok := it.(map[string]any); ok {
					if ip, ok := iface["ipAddress"].(string); ok {
						guest.GuestIP = ip
					}
				}
			}
		}

		nodeName, _, _ := unstructured.NestedString(vmi.Object, "status", "nodeName")
		if nodeName == "" {
			c.log.V(1).Info("vmi has no node assigned, perhaps it is not running",
				"vmi", guestName)
			return guest, nil
		}

		node, err := c.kube.CoreV1().Nodes().Get(ctx, nodeName, metav1.GetOptions{})
		if err != nil {
			return nil, fmt.Errorf("getting node %s: %w", nodeName, err)
		}

		guest.UUID = node.Status.NodeInfo.SystemUUID
		guest.Hostname = node.Name
		guest.Version = node.Status.NodeInfo.KubeletVersion
		if cpu, ok := node.Status.Capacity[corev1.ResourceCPU]; ok {
			guest.CPU = int(cpu.Value())
		}

		return guest, nil
	}

	return nil, nil
}
