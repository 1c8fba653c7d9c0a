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
	"fmt"
	"net/http"
	"strings"
)

const (
	// DefaultPort is the Prism gateway port.
	DefaultPort = 9440

	// VersionV2 and VersionV3 are the supported interface versions.
	VersionV2 = "v2.0"
	VersionV3 = "v3"

	baseURLTemplate = "https://%s:%d/api/nutanix/%s"
)

// Power state transitions accepted by the set_power_state operation.
const (
	PowerStateOn           = "ON"
	PowerStateOff          = "OFF"
	PowerStatePowerCycle   = "POWERCYCLE"
	PowerStateReset        = "RESET"
	PowerStatePause        = "PAUSE"
	PowerStateSuspend      = "SUSPEND"
	PowerStateResume       = "RESUME"
	PowerStateSave         = "SAVE"
	PowerStateACPIShutdown = "ACPI_SHUTDOWN"
	PowerStateACPIReboot   = "ACPI_REBOOT"
)

// hypervisorTypes are the type labels the backend reports for AHV nodes.
var hypervisorTypes = []string{"kKvm", "AHV", "ahv", "kvm"}

// taskCompleteLabels are the progress_status values that mark a task as
// successfully completed.
var taskCompleteLabels = []string{"SUCCEEDED", "Succeeded"}

// noRetryStatusCodes will not succeed on retry; the client stops retrying
// when it sees one of them, logs the failure, and returns no result.
var noRetryStatusCodes = map[int]bool{
	http.StatusBadRequest:          true,
	http.StatusNotFound:            true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
}

// command maps a logical operation to a relative URL template and an HTTP
// verb. URL templates may contain a {uuid} placeholder.
type command struct {
	url    string
	method string
}

// commonCommands are version-invariant operations.
var commonCommands = map[string]command{
	"get_vm":             {url: "/vms/{uuid}", method: http.MethodGet},
	"get_host":           {url: "/hosts/{uuid}", method: http.MethodGet},
	"get_tasks":          {url: "/tasks/list", method: http.MethodPost},
	"get_task":           {url: "/tasks/{uuid}", method: http.MethodGet},
	"poll_task":          {url: "/tasks/poll", method: http.MethodPost},
	"create_vm":          {url: "/vms", method: http.MethodPost},
	"delete_vm":          {url: "/vms/{uuid}", method: http.MethodDelete},
	"vm_set_power_state": {url: "/vms/{uuid}/set_power_state", method: http.MethodPost},
}

// versionedCommands are operations whose URL or verb differ per interface
// version.
var versionedCommands = map[string]map[string]command{
	VersionV2: {
		"list_vms":      {url: "/vms", method: http.MethodGet},
		"list_hosts":    {url: "/hosts", method: http.MethodGet},
		"list_clusters": {url: "/clusters", method: http.MethodGet},
	},
	VersionV3: {
		"list_vms":      {url: "/vms/list", method: http.MethodPost},
		"list_hosts":    {url: "/hosts/list", method: http.MethodPost},
		"list_clusters": {url: "/clusters/list", method: http.MethodPost},
	},
}

// commonCommand resolves a version-invariant command key.
func commonCommand(key string) (command, error) {
	cmd, ok := commonCommands[key]
	if !ok {
		return command{}, fmt.Errorf("unknown command %q", key)
	}
	return cmd, nil
}

// versionedCommand resolves a command key against the table for the given
// interface version.
func versionedCommand(key, version string) (command, error) {
	table, ok := versionedCommands[version]
	if !ok {
		return command{}, fmt.Errorf("unknown interface version %q", version)
	}
	cmd, ok := table[key]
	if !ok {
		return command{}, fmt.Errorf("unknown command %q for version %q", key, version)
	}
	return cmd, nil
}

// expandUUID substitutes the {uuid} placeholder of a URL template.
func expandUUID(urlTemplate, uuid string) string {
	return strings.ReplaceAll(urlTemplate, "{uuid}", uuid)
}
