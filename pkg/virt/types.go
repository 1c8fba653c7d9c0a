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

// Package virt holds the record shapes shared by the hypervisor backends.
//
// It deliberately does not define a common hypervisor interface: each
// backend exposes its own client with its own capabilities, and the test
// harness picks the one it needs.
package virt

// Guest is the flattened description of a virtual machine and the host it
// runs on, as reported by a backend's guest search. Host-side fields are
// left empty when the guest has no host assigned (e.g. it is powered off).
type Guest struct {
	GuestName  string `json:"guest_name"`
	GuestUUID  string `json:"guest_uuid"`
	GuestState string `json:"guest_state"`
	GuestIP    string `json:"guest_ip,omitempty"`

	// Host facts, resolved through the guest's host reference.
	UUID     string `json:"uuid,omitempty"`
	Hostname string `json:"hostname,omitempty"`
	Version  string `json:"version,omitempty"`
	CPU      int    `json:"cpu,omitempty"`
	Cluster  string `json:"cluster,omitempty"`
}
