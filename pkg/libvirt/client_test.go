//go:build unit

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

package libvirt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"libvirt.org/go/libvirt"
)

func TestRemoteURI(t *testing.T) {
	assert.Equal(t,
		"qemu+ssh://root@kvm-host.example.com/system",
		RemoteURI("root", "kvm-host.example.com"),
	)
}

func TestStateName(t *testing.T) {
	for _, tc := range []struct {
		state libvirt.DomainState
		want  string
	}{
		{libvirt.DOMAIN_RUNNING, "running"},
		{libvirt.DOMAIN_BLOCKED, "blocked"},
		{libvirt.DOMAIN_PAUSED, "paused"},
		{libvirt.DOMAIN_SHUTDOWN, "in shutdown"},
		{libvirt.DOMAIN_SHUTOFF, "shut off"},
		{libvirt.DOMAIN_CRASHED, "crashed"},
		{libvirt.DOMAIN_PMSUSPENDED, "pmsuspended"},
		{libvirt.DOMAIN_NOSTATE, "no state"},
	} {
		assert.Equal(t, tc.want, stateName(tc.state), "state %d", tc.state)
	}
}

func TestFormatVersion(t *testing.T) {
	assert.Equal(t, "8.0.0", formatVersion(8000000))
	assert.Equal(t, "10.5.3", formatVersion(10005003))
}
