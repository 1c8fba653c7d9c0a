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
	"slices"
)

// defaultPollTimeout is the wait window, in seconds, the backend is asked
// to hold a poll request open for.
const defaultPollTimeout = 60

// PollTask asks the backend whether the given task completed within the
// requested wait window. The normalized poll response carries a
// completed_tasks_info list only when the task reached a terminal state
// before the window elapsed. timeoutInterval <= 0 selects the default of
// 60 seconds.
func (c *Client) PollTask(ctx context.Context, taskUUID string, timeoutInterval int) (map[string]any, error) {
	cmd, err := commonCommand("poll_task")
	if err != nil {
		return nil, err
	}

	if timeoutInterval <= 0 {
		timeoutInterval = defaultPollTimeout
	}

	body := map[string]any{
		"completed_tasks":  []string{taskUUID},
		"timeout_interval": fmt.Sprintf("%d", timeoutInterval),
	}

	res, err := c.Call(ctx, cmd.method, cmd.url, body)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, nil
	}

	_, single := formatResponse(res)
	return single, nil
}

// classifyPollResult resolves a poll response into a success verdict.
//
// The first completed task carrying a progress_status decides: a success
// label means true, "Failed" means false (with the backend's error detail
// logged), and anything else is indeterminate and also reported as false.
// A response without completed_tasks_info means the wait window elapsed
// first; that too is false. Only the first entry is consulted, matching
// the single-task submissions this client makes.
func (c *Client) classifyPollResult(result map[string]any) bool {
	if result == nil {
		return false
	}

	tasks, ok := result["completed_tasks_info"].([]any)
	if !ok {
		return false
	}

	for _, t := range tasks {
		task, ok := asMap(t)
		if !ok {
			continue
		}
		progress, ok := task["progress_status"].(string)
		if !ok {
			continue
		}

		if slices.Contains(taskCompleteLabels, progress) {
			return true
		}
		if progress == "Failed" {
			if meta, ok := asMap(task["meta_response"]); ok {
				c.log.Error(nil, "task failed", "detail", meta["error_detail"])
			}
			return false
		}
		return false
	}

	return false
}
