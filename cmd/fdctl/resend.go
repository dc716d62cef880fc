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
	"io"

	"github.com/spf13/cobra"

	"github.com/fawa-io/filedrop/pkg/config"
	"github.com/fawa-io/filedrop/pkg/notify"
	"github.com/fawa-io/filedrop/pkg/pipeline"
	"github.com/fawa-io/filedrop/pkg/storage"
)

func newResendCmd() *cobra.Command {
	var req pipeline.ResendRequest
	cmd := &cobra.Command{
		Use:   "resend",
		Short: "Issue a fresh link for a stored object and mail it",
		Long: `Issue a fresh link for an object that is already in the bucket and
send it to --email. Use it when an upload ended with NotifyFailed or
LinkIssuingFailed. The server configuration (file, FILEDROP_* env) is
read to reach the store and the mail transport.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := config.Load(cmd.Flags(), nil)
			if err != nil {
				return err
			}
			return runResend(cmd.Context(), cmd.OutOrStdout(), cfg, req)
		},
	}
	cmd.Flags().StringVar(&req.Key, "key", "", "Object key reported by the failed upload (required)")
	cmd.Flags().StringVar(&req.Recipient, "email", "", "Recipient of the link (required)")
	cmd.Flags().StringVar(&req.Filename, "filename", "", "Filename shown in the message")
	_ = cmd.MarkFlagRequired("key")
	_ = cmd.MarkFlagRequired("email")
	config.RegisterFlags(cmd.Flags())
	return cmd
}

func runResend(ctx context.Context, out io.Writer, cfg config.Config, req pipeline.ResendRequest) error {
	if ctx == nil {
		ctx = context.Background()
	}
	store, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	dispatcher, err := notify.New(cfg.Mail)
	if err != nil {
		return err
	}
	orch := pipeline.New(pipeline.Config{
		MaxBytes:     cfg.Upload.MaxBytes,
		LinkValidity: cfg.Upload.LinkValidity,
		Timeout:      cfg.Upload.Timeout,
		Prefix:       cfg.Storage.Prefix,
	}, store, notify.NewComposer(cfg.Mail.Subject), dispatcher)

	res := orch.Resend(ctx, req)
	if err := printJSON(out, res); err != nil {
		return err
	}
	if !res.OK() {
		return errFailed
	}
	return nil
}
