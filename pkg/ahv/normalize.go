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

// The gateway answers with two incompatible envelope shapes: a collection
// wrapped under an "entities" key, and a single object that either splits
// its fields across "status"/"metadata" or is already flat. Both are
// normalized here into flat records so callers never care which shape the
// backend picked.

// normalizeEntities flattens a collection envelope.
//
// Elements carrying both "status" and "metadata" are replaced by their
// merge (metadata wins on key collisions). Once the first such element is
// seen the output is rebuilt from qualifying elements only, so elements
// without that shape are dropped from then on. When no element qualifies
// the list passes through unchanged. Either way every resulting record
// gets hypervisor_types derived from its node server list and, for
// cluster records, a cluster_uuid alias of uuid.
func normalizeEntities(entities []any) []map[string]any {
	formatted := make([]map[string]any, 0, len(entities))
	for _, e := range entities {
		if m, ok := e.(map[string]any); ok {
			formatted = append(formatted, m)
		}
	}

	var merged []map[string]any
	for _, entity := range formatted {
		status, hasStatus := asMap(entity["status"])
		metadata, hasMetadata := asMap(entity["metadata"])
		if hasStatus && hasMetadata {
			merged = append(merged, mergeStatusMetadata(status, metadata))
		}
	}
	if merged != nil {
		formatted = merged
	}

	for _, record := range formatted {
		if resources, ok := asMap(record["resources"]); ok {
			if nodes, ok := asMap(resources["nodes"]); ok {
				if servers, ok := nodes["hypervisor_server_list"].([]any); ok {
					types := make([]string, 0, len(servers))
					for _, s := range servers {
						if server, ok := asMap(s); ok {
							if t, ok := server["type"].(string); ok {
								types = append(types, t)
							}
						}
					}
					record["hypervisor_types"] = types
				}
			}
		}

		if kind, ok := record["kind"].(string); ok && kind == "cluster" {
			if uuid, ok := record["uuid"]; ok {
				record["cluster_uuid"] = uuid
			}
		}
	}

	return formatted
}

// normalizeObject flattens a single-object envelope. An object carrying
// both "status" and "metadata" is replaced by their merge (metadata wins);
// anything else passes through. power_state and num_cpu_sockets are then
// hoisted out of "resources" to the top level, leaving the nested copies
// in place.
func normalizeObject(data map[string]any) map[string]any {
	formatted := data

	status, hasStatus := asMap(data["status"])
	metadata, hasMetadata := asMap(data["metadata"])
	if hasStatus && hasMetadata {
		formatted = mergeStatusMetadata(status, metadata)
	}

	if resources, ok := asMap(formatted["resources"]); ok {
		if powerState, ok := resources["power_state"]; ok {
			formatted["power_state"] = powerState
		}
		if numCPUSockets, ok := resources["num_cpu_sockets"]; ok {
			formatted["num_cpu_sockets"] = numCPUSockets
		}
	}

	return formatted
}

// formatResponse normalizes a raw response body into either a record list
// (collection envelope) or a single record.
func formatResponse(data map[string]any) (records []map[string]any, single map[string]any) {
	if entities, ok := data["entities"].([]any); ok {
		return normalizeEntities(entities), nil
	}
	return nil, normalizeObject(data)
}

// mergeStatusMetadata builds a fresh record from status overlaid with
// metadata; metadata's value wins on every key collision.
func mergeStatusMetadata(status, metadata map[string]any) map[string]any {
	merged := make(map[string]any, len(status)+len(metadata))
	for k, v := range status {
		merged[k] = v
	}
	for k, v := range metadata {
		merged[k] = v
	}
	return merged
}

func asMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}
