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

package ahv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNormalizeObject_MetadataWinsOnCollision verifies that when status
// and metadata share a key, the metadata value ends up in the record.
func TestNormalizeObject_MetadataWinsOnCollision(t *testing.T) {
	data := map[string]any{
		"status": map[string]any{
			"name":  "from-status",
			"state": "COMPLETE",
		},
		"metadata": map[string]any{
			"name": "from-metadata",
			"uuid": "abc",
		},
	}

	out := normalizeObject(data)

	assert.Equal(t, "from-metadata", out["name"])
	assert.Equal(t, "COMPLETE", out["state"])
	assert.Equal(t, "abc", out["uuid"])
}

// TestNormalizeObject_HoistsResources verifies power_state and
// num_cpu_sockets are hoisted to the top level, keeping the nested copy.
func TestNormalizeObject_HoistsResources(t *testing.T) {
	data := map[string]any{
		"status": map[string]any{
			"resources": map[string]any{
				"power_state":     "ON",
				"num_cpu_sockets": float64(2),
			},
		},
		"metadata": map[string]any{"uuid": "abc"},
	}

	out := normalizeObject(data)

	assert.Equal(t, "ON", out["power_state"])
	assert.Equal(t, float64(2), out["num_cpu_sockets"])

	resources, ok := out["resources"].(map[string]any)
	require.True(t, ok, "nested resources must not be removed")
	assert.Equal(t, "ON", resources["power_state"])
}

// TestNormalizeObject_Idempotent verifies normalization is a pure
// function of its input: applying it twice yields the same record.
func TestNormalizeObject_Idempotent(t *testing.T) {
	data := map[string]any{
		"uuid": "abc",
		"resources": map[string]any{
			"power_state": "ON",
		},
	}

	once := normalizeObject(data)
	twice := normalizeObject(once)

	assert.Equal(t, "ON", once["power_state"])
	assert.Equal(t, once, twice)
}

// TestNormalizeObject_FlatPassThrough verifies an object without the
// status/metadata split passes through unchanged.
func TestNormalizeObject_FlatPassThrough(t *testing.T) {
	data := map[string]any{"task_uuid": "t1"}

	out := normalizeObject(data)

	assert.Equal(t, "t1", out["task_uuid"])
}

// TestNormalizeEntities_DropsUnshapedElements exercises the documented
// quirk: as soon as one element carries the status/metadata shape, the
// output is rebuilt from shaped elements only and the rest are dropped.
func TestNormalizeEntities_DropsUnshapedElements(t *testing.T) {
	entities := []any{
		map[string]any{"name": "flat-element"},
		map[string]any{
			"status":   map[string]any{"state": "COMPLETE"},
			"metadata": map[string]any{"uuid": "abc"},
		},
	}

	out := normalizeEntities(entities)

	require.Len(t, out, 1)
	assert.Equal(t, "abc", out[0]["uuid"])
}

// TestNormalizeEntities_PassThroughWhenNoneQualify verifies a collection
// with no status/metadata elements passes through unchanged.
func TestNormalizeEntities_PassThroughWhenNoneQualify(t *testing.T) {
	entities := []any{
		map[string]any{"name": "host-1"},
		map[string]any{"name": "host-2"},
	}

	out := normalizeEntities(entities)

	require.Len(t, out, 2)
	assert.Equal(t, "host-1", out[0]["name"])
	assert.Equal(t, "host-2", out[1]["name"])
}

// TestNormalizeEntities_ClusterAliasing verifies cluster records carry
// cluster_uuid equal to uuid.
func TestNormalizeEntities_ClusterAliasing(t *testing.T) {
	entities := []any{
		map[string]any{
			"status": map[string]any{
				"resources": map[string]any{
					"nodes": map[string]any{
						"hypervisor_server_list": []any{
							map[string]any{"type": "AHV"},
							map[string]any{"type": "kKvm"},
						},
					},
				},
			},
			"metadata": map[string]any{
				"kind": "cluster",
				"uuid": "X",
			},
		},
	}

	out := normalizeEntities(entities)

	require.Len(t, out, 1)
	assert.Equal(t, "X", out[0]["uuid"])
	assert.Equal(t, "X", out[0]["cluster_uuid"])
	assert.Equal(t, []string{"AHV", "kKvm"}, out[0]["hypervisor_types"])
}

// TestFormatResponse_Dispatch verifies the envelope dispatch: entities
// yields a record list, anything else a single record.
func TestFormatResponse_Dispatch(t *testing.T) {
	records, single := formatResponse(map[string]any{
		"entities": []any{
			map[string]any{
				"status":   map[string]any{},
				"metadata": map[string]any{"uuid": "abc"},
			},
		},
	})
	require.Nil(t, single)
	require.Len(t, records, 1)

	records, single = formatResponse(map[string]any{"task_uuid": "t1"})
	require.Nil(t, records)
	assert.Equal(t, "t1", single["task_uuid"])
}
