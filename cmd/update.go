// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newUpdateCommand(v *viper.Viper, configFile *string) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Download the NVD feed segments that changed since the last update",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(v, *configFile)
			if err != nil {
				return err
			}
			defer a.writeMetrics()

			ctx := cmd.Context()
			st, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			marker := a.updateMarker()
			if force && marker != nil {
				if err := marker.Invalidate(); err != nil {
					return fmt.Errorf("resetting update check: %w", err)
				}
			}

			u := a.newUpdater(st, marker)
			if err := u.Update(ctx); err != nil {
				return fmt.Errorf("updating vulnerability data: %w", err)
			}
			a.logger.Debug("update finished", "state", u.State())
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Check the feeds even when they were checked recently")
	return cmd
}
