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

package remote_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VirtwhoQE/hypervisor-builder/pkg/remote"
)

func TestFakeRunner(t *testing.T) {
	runner := remote.NewFakeRunner()
	runner.Script("virsh domstate guest-1", remote.FakeResult{Output: "running"})
	runner.Script("virsh start guest-1", remote.FakeResult{ExitCode: 1, Output: "error: domain is already active"})

	code, out, err := runner.Run(context.Background(), "virsh domstate guest-1")
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Equal(t, "running", out)

	code, out, err = runner.Run(context.Background(), "virsh start guest-1")
	require.NoError(t, err)
	assert.Equal(t, 1, code)
	assert.Contains(t, out, "already active")

	_, _, err = runner.Run(context.Background(), "virsh undefine guest-1")
	require.Error(t, err)

	assert.Equal(t, []string{
		"virsh domstate guest-1",
		"virsh start guest-1",
		"virsh undefine guest-1",
	}, runner.Calls())
}
