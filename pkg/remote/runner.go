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

// Package remote executes commands and transfers files on remote hosts
// over SSH. It is the authenticated-channel capability the CLI-driven
// hypervisor shells are driven through.
package remote

import "context"

// Runner executes a command on a remote host and returns its exit code
// together with the captured output text. Output is stderr when the
// command produced any, stdout otherwise. No streaming; the command runs
// to completion.
type Runner interface {
	Run(ctx context.Context, cmd string) (exitCode int, output string, err error)
}

// Transferer moves files between the local machine and a remote host.
// Uploads create missing remote directories as needed.
type Transferer interface {
	Upload(ctx context.Context, localPath, remotePath string) error
	Download(ctx context.Context, remotePath, localPath string) error
	UploadDir(ctx context.Context, localDir, remoteDir string) error
}
