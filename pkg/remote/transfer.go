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

package remote

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/pkg/sftp"
)

// Upload copies a local file to the remote host. A missing remote parent
// directory is created and the upload retried once.
func (c *Client) Upload(ctx context.Context, localPath, remotePath string) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}
	defer closeAndLogErr(c.log, conn.Close)

	client, err := sftp.NewClient(conn)
	if err != nil {
		return fmt.Errorf("unable to create sftp client: %w", err)
	}
	defer closeAndLogErr(c.log, client.Close)

	return c.put(client, localPath, remotePath)
}

// Download copies a remote file to the local machine.
func (c *Client) Download(ctx context.Context, remotePath, localPath string) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}
	defer closeAndLogErr(c.log, conn.Close)

	client, err := sftp.NewClient(conn)
	if err != nil {
		return fmt.Errorf("unable to create sftp client: %w", err)
	}
	defer closeAndLogErr(c.log, client.Close)

	src, err := client.Open(remotePath)
	if err != nil {
		return fmt.Errorf("opening remote file %s: %w", remotePath, err)
	}
	defer closeAndLogErr(c.log, src.Close)

	dst, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("creating local file %s: %w", localPath, err)
	}
	defer closeAndLogErr(c.log, dst.Close)

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("downloading %s: %w", remotePath, err)
	}

	return nil
}

// UploadDir copies every file under localDir to remoteDir, recreating
// the directory layout on the remote side.
func (c *Client) UploadDir(ctx context.Context, localDir, remoteDir string) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}
	defer closeAndLogErr(c.log, conn.Close)

	client, err := sftp.NewClient(conn)
	if err != nil {
		return fmt.Errorf("unable to create sftp client: %w", err)
	}
	defer closeAndLogErr(c.log, client.Close)

	return filepath.WalkDir(localDir, func(localPath string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(localDir, localPath)
		if err != nil {
			return err
		}
		remotePath := path.Join(remoteDir, filepath.ToSlash(rel))

		if d.IsDir() {
			if err := client.MkdirAll(remotePath); err != nil {
				return fmt.Errorf("creating remote directory %s: %w", remotePath, err)
			}
			return nil
		}

		return c.put(client, localPath, remotePath)
	})
}

// put uploads one file, creating the remote parent directory on a first
// failure that looks like a missing path.
func (c *Client) put(client *sftp.Client, localPath, remotePath string) error {
	src, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("opening local file %s: %w", localPath, err)
	}
	defer closeAndLogErr(c.log, src.Close)

	dst, err := client.Create(remotePath)
	if err != nil {
		// The remote parent may not exist yet.
		if mkErr := client.MkdirAll(parentDir(remotePath)); mkErr != nil {
			return fmt.Errorf("creating remote file %s: %w", remotePath, err)
		}
		dst, err = client.Create(remotePath)
		if err != nil {
			return fmt.Errorf("creating remote file %s: %w", remotePath, err)
		}
	}
	defer closeAndLogErr(c.log, dst.Close)

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("uploading %s: %w", localPath, err)
	}

	return nil
}

func parentDir(remotePath string) string {
	dir := path.Dir(strings.TrimSuffix(remotePath, "/"))
	if dir == "" {
		return "/"
	}
	return dir
}
