//go:build unit

// Copyright 2024 The hypervisor-builder Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	configYAML := `
ahv:
  server: prism.example.com
  username: admin
  password: secret
  version: v2.0
  retries: 5
  retryIntervalSeconds: 30
kubevirt:
  endpoint: https://k8s.example.com:6443
  token: abc123
libvirt:
  user: root
  host: kvm-host.example.com
metricsServer:
  port: 9090
  path: /metrics
`

	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(configYAML), 0o600))
	t.Setenv(ConfigPathEnvKey, configPath)

	config, err := loadConfig()
	require.NoError(t, err)

	assert.Equal(t, "prism.example.com", config.AHV.Server)
	assert.Equal(t, "admin", config.AHV.Username)
	assert.Equal(t, "v2.0", config.AHV.Version)
	assert.Equal(t, 5, config.AHV.Retries)
	assert.Equal(t, 30, config.AHV.RetryIntervalSeconds)
	assert.False(t, config.AHV.TLSVerify)

	assert.Equal(t, "https://k8s.example.com:6443", config.Kubevirt.Endpoint)
	assert.Equal(t, "root", config.Libvirt.User)
	assert.Equal(t, 9090, config.MetricsServer.Port)
}

func TestLoadConfig_MissingEnvVar(t *testing.T) {
	t.Setenv(ConfigPathEnvKey, "")

	_, err := loadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), ConfigPathEnvKey)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	t.Setenv(ConfigPathEnvKey, filepath.Join(t.TempDir(), "nope.yaml"))

	_, err := loadConfig()
	require.Error(t, err)
}
