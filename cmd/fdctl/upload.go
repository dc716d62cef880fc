// Copyright 2025 The fawa Authors
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
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/fawa-io/filedrop/service/upload"
)

const defaultChunkSize = 64 << 10

type uploadOptions struct {
	server    string
	email     string
	name      string
	chunkSize int
	timeout   time.Duration
}

func newUploadCmd() *cobra.Command {
	opts := uploadOptions{}
	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a file and have the link mailed to --email",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpload(cmd.Context(), cmd.OutOrStdout(), http.DefaultClient, opts, args[0])
		},
	}
	cmd.Flags().StringVar(&opts.server, "server", "http://127.0.0.1:8080", "FileDrop server base URL")
	cmd.Flags().StringVar(&opts.email, "email", "", "Recipient of the link (required)")
	cmd.Flags().StringVar(&opts.name, "name", "", "Filename to report (default: base name of <file>)")
	cmd.Flags().IntVar(&opts.chunkSize, "chunk-size", defaultChunkSize, "Bytes per stream message")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 2*time.Minute, "Give up after this long")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func runUpload(ctx context.Context, out io.Writer, client *http.Client, opts uploadOptions, path string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.chunkSize <= 0 {
		return errors.New("--chunk-size must be positive")
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return err
	}
	name := opts.name
	if name == "" {
		name = filepath.Base(path)
	}

	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	stream := upload.NewUploadClient(client, strings.TrimRight(opts.server, "/")).CallClientStream(ctx)
	if err := stream.Send(&upload.UploadRequest{Info: &upload.FileInfo{
		Filename: name,
		Size:     st.Size(),
		Email:    opts.email,
	}}); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("send file info: %w", err)
	}

	buf := make([]byte, opts.chunkSize)
	for {
		n, rerr := f.Read(buf)
		if n > 0 {
			// io.EOF from Send means the server already answered; the
			// answer comes from CloseAndReceive.
			if err := stream.Send(&upload.UploadRequest{Chunk: buf[:n]}); err != nil {
				break
			}
		}
		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			return rerr
		}
	}

	res, err := stream.CloseAndReceive()
	if err != nil {
		re := upload.ParseRemoteError(err)
		_ = printJSON(out, map[string]any{
			"status":    "error",
			"kind":      re.Kind,
			"cause":     re.Cause,
			"message":   re.Message,
			"key":       re.Key,
			"link":      re.Link,
			"expiresAt": re.Expires,
		})
		return errFailed
	}
	return printJSON(out, res.Msg)
}
