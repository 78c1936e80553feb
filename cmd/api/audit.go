package main

import (
	"fmt"
	"io"

	"grantsbackend/internal/database"
	"grantsbackend/internal/repository"
	"grantsbackend/internal/service"
	"grantsbackend/pkg/pagination"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newAuditCmd(v *viper.Viper) *cobra.Command {
	var (
		filter   service.AuditFilter
		entityID string
	)
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Print audit rows, or the full trail of one entity",
		Example: `  grantsbackend audit --entity-type BUDGET --action BUDGET_SSOT_STATUS_CHANGED
  grantsbackend audit --entity-type CONTRACT --entity-id 0b9f...`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if entityID != "" && filter.EntityType == "" {
				return fmt.Errorf("--entity-id requires --entity-type")
			}
			cfg, log, err := bootstrap(cmd, v)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			db, err := database.NewConnection(cfg.DB, log)
			if err != nil {
				return fmt.Errorf("database connection failed: %w", err)
			}
			audit := service.NewAuditService(repository.NewAuditRepository(db))

			var rows []service.AuditLogResponse
			if entityID != "" {
				rows, err = audit.GetEntityTrail(cmd.Context(), filter.EntityType, entityID)
			} else {
				rows, _, err = audit.GetAuditLogs(cmd.Context(), filter)
			}
			if err != nil {
				return err
			}
			renderAuditTable(cmd.OutOrStdout(), rows)
			return nil
		},
	}
	cmd.Flags().StringVar(&filter.EntityType, "entity-type", "", "BUDGET or CONTRACT")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "show the full trail of this entity")
	cmd.Flags().StringVar(&filter.Action, "action", "", "audit action filter")
	cmd.Flags().IntVar(&filter.Page, "page", pagination.DefaultPage, "page number")
	cmd.Flags().IntVar(&filter.Limit, "limit", pagination.DefaultLimit, "rows per page")
	return cmd
}

func renderAuditTable(w io.Writer, rows []service.AuditLogResponse) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"Time", "Action", "Entity", "Entity ID", "Actor", "Details"})
	for _, r := range rows {
		actor := ""
		if r.ActorID != nil {
			actor = r.ActorID.String()
		}
		tw.AppendRow(table.Row{
			r.CreatedAt.Format("2006-01-02 15:04:05.000"),
			r.Action,
			r.EntityType,
			r.EntityID,
			actor,
			string(r.Details),
		})
	}
	tw.AppendFooter(table.Row{"", "", "", "", "Rows", len(rows)})
	tw.Render()
}
