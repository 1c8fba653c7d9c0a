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

package ahv

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/VirtwhoQE/hypervisor-builder/pkg/virt"
)

// GetVMByName lists the VMs matching the given name, normalized. The
// include flags request nic/disk details in the response.
func (c *Client) GetVMByName(
	ctx context.Context,
	guestName string,
	includeNICConfig, includeDiskConfig bool,
) ([]map[string]any, error) {
	cmd, err := versionedCommand("list_vms", c.version)
	if err != nil {
		return nil, err
	}

	uri := fmt.Sprintf("%s/?name=%s", cmd.url, guestName)
	if includeNICConfig {
		uri += "&include_vm_nic_config=true"
	}
	if includeDiskConfig {
		uri += "&include_vm_disk_config=true"
	}

	res, err := c.Call(ctx, cmd.method, uri, nil)
	if err != nil || res == nil {
		return nil, err
	}

	records, single := formatResponse(res)
	if records == nil && single != nil {
		records = []map[string]any{single}
	}

	return records, nil
}

// GetVM returns the normalized record of one VM.
func (c *Client) GetVM(ctx context.Context, vmUUID string) (map[string]any, error) {
	return c.getByUUID(ctx, "get_vm", vmUUID)
}

// GetHost returns the normalized record of one host.
func (c *Client) GetHost(ctx context.Context, hostUUID string) (map[string]any, error) {
	return c.getByUUID(ctx, "get_host", hostUUID)
}

func (c *Client) getByUUID(ctx context.Context, cmdKey, entityUUID string) (map[string]any, error) {
	cmd, err := commonCommand(cmdKey)
	if err != nil {
		return nil, err
	}

	res, err := c.Call(ctx, cmd.method, expandUUID(cmd.url, entityUUID), nil)
	if err != nil || res == nil {
		return nil, err
	}

	_, single := formatResponse(res)
	return single, nil
}

// HostNames lists the names of the physical hosts known to the endpoint.
// Cluster records that the v3 hosts list mixes in are filtered out by the
// presence of a cpu_model.
func (c *Client) HostNames(ctx context.Context) ([]string, error) {
	cmd, err := versionedCommand("list_hosts", c.version)
	if err != nil {
		return nil, err
	}

	res, err := c.Call(ctx, cmd.method, cmd.url, nil)
	if err != nil || res == nil {
		return nil, err
	}

	entities, _ := res["entities"].([]any)
	names := []string{}
	for _, e := range entities {
		entity, ok := asMap(e)
		if !ok {
			continue
		}

		status, hasStatus := asMap(entity["status"])
		metadata, hasMetadata := asMap(entity["metadata"])
		switch {
		case hasStatus && hasMetadata:
			if _, isHost := status["cpu_model"]; isHost {
				if name, ok := metadata["name"].(string); ok {
					names = append(names, name)
				}
			}
		default:
			if name, ok := entity["name"].(string); ok {
				names = append(names, name)
			} else {
				c.log.Info("cannot access the name for the host object", "host", entity)
			}
		}
	}

	return names, nil
}

// HostClusterName resolves a cluster UUID to the cluster's name.
func (c *Client) HostClusterName(ctx context.Context, clusterUUID string) (string, error) {
	cmd, err := versionedCommand("list_clusters", c.version)
	if err != nil {
		return "", err
	}

	res, err := c.Call(ctx, cmd.method, cmd.url, nil)
	if err != nil || res == nil {
		return "", err
	}

	records, _ := formatResponse(res)
	for _, cluster := range records {
		if _, ok := cluster["hypervisor_types"]; !ok {
			continue
		}
		if cluster["cluster_uuid"] == clusterUUID {
			if name, ok := cluster["name"].(string); ok {
				return name, nil
			}
		}
	}

	return "", nil
}

// GuestSearch looks up a guest by name and assembles the flattened guest
// record, following the VM's host reference and the host's cluster id.
// Missing intermediates (e.g. a powered-off VM with no host) leave the
// dependent fields empty rather than failing. A nil result means no VM of
// that name exists.
func (c *Client) GuestSearch(ctx context.Context, guestName string) (*virt.Guest, error) {
	vms, err := c.GetVMByName(ctx, guestName, true, false)
	if err != nil {
		return nil, err
	}
	if len(vms) == 0 {
		return nil, nil
	}

	var guest *virt.Guest
	for _, vm := range vms {
		guest = &virt.Guest{
			GuestName:  stringField(vm, "name"),
			GuestUUID:  stringField(vm, "uuid"),
			GuestState: stringField(vm, "power_state"),
		}

		if nics, ok := vm["vm_nics"].([]any); ok {
			for _, n := range nics {
				if nic, ok := asMap(n); ok {
					if ip, ok := nic["ip_address"].(string); ok {
						guest.GuestIP = ip
					}
				}
			}
		}

		hostUUID := c.hostUUIDFromVM(vm)
		if hostUUID == "" {
			continue
		}

		host, err := c.GetHost(ctx, hostUUID)
		if err != nil {
			return nil, err
		}
		if host == nil {
			continue
		}

		guest.UUID = stringField(host, "uuid")
		guest.Hostname = stringField(host, "name")
		guest.Version = stringField(host, "hypervisor_full_name")
		guest.CPU = intField(host, "num_cpu_sockets")

		if clusterUUID := stringField(host, "cluster_uuid"); clusterUUID != "" {
			cluster, err := c.HostClusterName(ctx, clusterUUID)
			if err != nil {
				return nil, err
			}
			guest.Cluster = cluster
		}
	}

	return guest, nil
}

// hostUUIDFromVM extracts the host uuid from a VM record, handling both
// the v3 host_reference shape and the v2 flat host_uuid field. Empty
// means the VM has no host assigned, typically because it is powered off.
func (c *Client) hostUUIDFromVM(vm map[string]any) string {
	if resources, ok := asMap(vm["resources"]); ok {
		if ref, ok := asMap(resources["host_reference"]); ok {
			return stringField(ref, "uuid")
		}
		c.log.Info("did not find any host information for vm", "vm", vm["uuid"])
		return ""
	}

	if hostUUID, ok := vm["host_uuid"].(string); ok {
		return hostUUID
	}

	c.log.V(1).Info("cannot get the host uuid of the vm, perhaps the vm is powered off",
		"vm", vm["uuid"])
	return ""
}

// GuestSetPowerState submits a power state transition for the named guest
// and drives the task poll protocol to completion. It reports true only
// for a classified success; submission failures, task failures and poll
// windows that elapse without a terminal state all report false.
func (c *Client) GuestSetPowerState(ctx context.Context, guestName, state string) (bool, error) {
	vms, err := c.GetVMByName(ctx, guestName, false, false)
	if err != nil {
		return false, err
	}
	if len(vms) != 1 {
		c.log.Error(nil, "expected exactly one vm", "guest", guestName, "found", len(vms))
		return false, nil
	}

	vmUUID := stringField(vms[0], "uuid")

	cmd, err := commonCommand("vm_set_power_state")
	if err != nil {
		return false, err
	}

	c.log.Info("setting guest power state", "guest", guestName, "state", state)

	body := map[string]any{"transition": state}
	res, err := c.Call(ctx, cmd.method, expandUUID(cmd.url, vmUUID), body)
	if err != nil || res == nil {
		return false, err
	}

	_, single := formatResponse(res)
	return c.awaitTask(ctx, single)
}

// awaitTask polls the task referenced by a mutating call's response and
// classifies the outcome.
func (c *Client) awaitTask(ctx context.Context, submission map[string]any) (bool, error) {
	taskUUID := stringField(submission, "task_uuid")
	if taskUUID == "" {
		return false, nil
	}

	result, err := c.PollTask(ctx, taskUUID, defaultPollTimeout)
	if err != nil {
		return false, err
	}

	return c.classifyPollResult(result), nil
}

// GuestStart powers on the named guest.
func (c *Client) GuestStart(ctx context.Context, guestName string) (bool, error) {
	return c.GuestSetPowerState(ctx, guestName, PowerStateOn)
}

// GuestStop powers off the named guest.
func (c *Client) GuestStop(ctx context.Context, guestName string) (bool, error) {
	return c.GuestSetPowerState(ctx, guestName, PowerStateOff)
}

// GuestSuspend suspends the named guest.
func (c *Client) GuestSuspend(ctx context.Context, guestName string) (bool, error) {
	return c.GuestSetPowerState(ctx, guestName, PowerStateSuspend)
}

// GuestResume resumes the named guest.
func (c *Client) GuestResume(ctx context.Context, guestName string) (bool, error) {
	return c.GuestSetPowerState(ctx, guestName, PowerStateResume)
}

// GuestAddSpec configures GuestAdd. Zero values fall back to a minimal
// single-vcpu guest.
type GuestAddSpec struct {
	MemoryMB    int
	NumVCPUs    int
	Description string
}

// GuestAdd creates a guest with the given name and a minimal
// configuration, then drives the creation task to completion.
func (c *Client) GuestAdd(ctx context.Context, guestName string, spec GuestAddSpec) (bool, error) {
	cmd, err := commonCommand("create_vm")
	if err != nil {
		return false, err
	}

	if spec.MemoryMB <= 0 {
		spec.MemoryMB = 1024
	}
	if spec.NumVCPUs <= 0 {
		spec.NumVCPUs = 1
	}

	body := map[string]any{
		"name":        guestName,
		"uuid":        uuid.NewString(),
		"memory_mb":   spec.MemoryMB,
		"num_vcpus":   spec.NumVCPUs,
		"description": spec.Description,
	}

	c.log.Info("creating guest", "guest", guestName)

	res, err := c.Call(ctx, cmd.method, cmd.url, body)
	if err != nil || res == nil {
		return false, err
	}

	_, single := formatResponse(res)
	return c.awaitTask(ctx, single)
}

// GuestDelete deletes the named guest and drives the deletion task to
// completion.
func (c *Client) GuestDelete(ctx context.Context, guestName string) (bool, error) {
	vms, err := c.GetVMByName(ctx, guestName, false, false)
	if err != nil {
		return false, err
	}
	if len(vms) != 1 {
		c.log.Error(nil, "expected exactly one vm", "guest", guestName, "found", len(vms))
		return false, nil
	}

	cmd, err := commonCommand("delete_vm")
	if err != nil {
		return false, err
	}

	c.log.Info("deleting guest", "guest", guestName)

	res, err := c.Call(ctx, cmd.method, expandUUID(cmd.url, stringField(vms[0], "uuid")), nil)
	if err != nil || res == nil {
		return false, err
	}

	_, single := formatResponse(res)
	return c.awaitTask(ctx, single)
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func intField(m map[string]any, key string) int {
	// JSON numbers decode as float64.
	if f, ok := m[key].(float64); ok {
		return int(f)
	}
	return 0
}
