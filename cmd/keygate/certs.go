// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keygate Contributors

package main

import (
	"errors"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	keygatetls "github.com/keygate/keygate/internal/tls"
	"github.com/keygate/keygate/internal/xdg"
)

// newCertsCmd creates the certs subcommand.
func newCertsCmd() *cobra.Command {
	var (
		dir   string
		hosts []string
	)

	cmd := &cobra.Command{
		Use:   "certs",
		Short: "Generate a development CA and server certificate",
		Long: `Generate a development CA and a server certificate for HTTPS.
An existing CA in the target directory is reused so clients that already
trust it keep working. Point server.tls_cert_file and server.tls_key_file
at the written server.crt and server.key.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if dir == "" {
				base, err := xdg.ConfigDir()
				if err != nil {
					return err
				}
				dir = filepath.Join(base, "certs")
			}
			return runCerts(cmd, dir, hosts, time.Now())
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "output directory (default: $XDG_CONFIG_HOME/keygate/certs)")
	cmd.Flags().StringSliceVar(&hosts, "host", []string{"localhost", "127.0.0.1"}, "DNS name or IP the server certificate covers (repeatable)")

	return cmd
}

func runCerts(cmd *cobra.Command, dir string, hosts []string, now time.Time) error {
	ca, err := keygatetls.LoadCA(dir)
	switch {
	case err == nil:
		cmd.Printf("Reusing CA in %s\n", dir)
	case errors.Is(err, fs.ErrNotExist):
		ca, err = keygatetls.GenerateCA(now)
		if err != nil {
			return oops.Code("CERTS_FAILED").With("operation", "generate ca").Wrap(err)
		}
	default:
		return oops.Code("CERTS_FAILED").With("operation", "load ca").With("dir", dir).Wrap(err)
	}

	server, err := keygatetls.GenerateServerCert(ca, hosts, now)
	if err != nil {
		return oops.Code("CERTS_FAILED").With("operation", "generate server cert").Wrap(err)
	}
	if err := keygatetls.SaveCertificates(dir, ca, server); err != nil {
		return oops.Code("CERTS_FAILED").With("operation", "save").With("dir", dir).Wrap(err)
	}

	cmd.Printf("Wrote %s and %s\n",
		filepath.Join(dir, keygatetls.ServerCertFile),
		filepath.Join(dir, keygatetls.ServerKeyFile))
	return nil
}
