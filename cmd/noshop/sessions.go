package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/bdmorin/the-no-shop/internal/config"
	"github.com/bdmorin/the-no-shop/internal/domain"
)

func serverURL(addr string) string {
	if addr == "" {
		addr = config.Load().Addr
	}
	return "http://" + addr
}

func sessionsCmd() *cobra.Command {
	var (
		addr   string
		format string
	)

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List sessions known to a running server",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := http.Get(serverURL(addr) + "/api/sessions")
			if err != nil {
				return fmt.Errorf("server not reachable: %w", err)
			}
			defer resp.Body.Close()

			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return err
			}

			var sessions []*domain.Session
			if err := json.Unmarshal(body, &sessions); err != nil {
				return fmt.Errorf("unexpected response: %w", err)
			}

			return writeSessions(os.Stdout, sessions, format)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Server address (defaults to NOSHOP_ADDR)")
	cmd.Flags().StringVar(&format, "format", "table", "Output format: table, plain, json")
	return cmd
}

func writeSessions(w io.Writer, sessions []*domain.Session, format string) error {
	switch strings.ToLower(format) {
	case "", "table":
		return writeSessionsTable(w, sessions)
	case "plain":
		return writeSessionsPlain(w, sessions)
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(sessions)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

func writeSessionsPlain(w io.Writer, sessions []*domain.Session) error {
	if _, err := fmt.Fprintln(w, "session_id\tdirectory\tmodel\tbranch\tturns\ttokens_in\ttokens_out\tstate"); err != nil {
		return err
	}
	for _, s := range sessions {
		if _, err := fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
			s.ID, s.Directory, s.Model, s.Branch,
			s.Turns, s.TokensIn, s.TokensOut, sessionState(s)); err != nil {
			return err
		}
	}
	return nil
}

func writeSessionsTable(w io.Writer, sessions []*domain.Session) error {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleRounded)

	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignLeft, AlignHeader: text.AlignCenter, WidthMax: 12},
		{Number: 2, Align: text.AlignLeft, AlignHeader: text.AlignCenter, WidthMax: 40},
		{Number: 3, Align: text.AlignLeft, AlignHeader: text.AlignCenter},
		{Number: 4, Align: text.AlignLeft, AlignHeader: text.AlignCenter},
		{Number: 5, Align: text.AlignRight, AlignHeader: text.AlignCenter},
		{Number: 6, Align: text.AlignRight, AlignHeader: text.AlignCenter},
		{Number: 7, Align: text.AlignRight, AlignHeader: text.AlignCenter},
		{Number: 8, Align: text.AlignCenter, AlignHeader: text.AlignCenter},
	})

	tw.AppendHeader(table.Row{"Session", "Directory", "Model", "Branch", "Turns", "In", "Out", "State"})

	for _, s := range sessions {
		tw.AppendRow(table.Row{
			shortID(s.ID),
			s.Directory,
			s.Model,
			s.Branch,
			s.Turns,
			s.TokensIn,
			s.TokensOut,
			sessionState(s),
		})
	}

	if len(sessions) == 0 {
		tw.AppendRow(table.Row{"-", "(no sessions)", "-", "-", 0, 0, 0, "-"})
	}

	tw.Render()
	return nil
}

func sessionState(s *domain.Session) string {
	if s.Ended {
		return dim("ended")
	}
	if time.Since(s.LastActivity) < time.Minute {
		return green("active")
	}
	return "idle"
}

func shortID(id string) string {
	if len(id) <= 12 {
		return id
	}
	return id[:12]
}

func green(s string) string {
	if isTTY() {
		return color.GreenString(s)
	}
	return s
}

func dim(s string) string {
	if isTTY() {
		return color.HiBlackString(s)
	}
	return s
}

func isTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

func pingCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "ping",
		Short: "Check whether a server is running",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := http.Get(serverURL(addr) + "/api/health")
			if err != nil {
				return fmt.Errorf("server not reachable: %w", err)
			}
			defer resp.Body.Close()

			var health struct {
				Status    string `json:"status"`
				Sessions  int    `json:"sessions"`
				Observers int    `json:"observers"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
				return fmt.Errorf("unexpected response: %w", err)
			}

			fmt.Printf("%s %d sessions, %d observers\n",
				green("✓"), health.Sessions, health.Observers)
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Server address (defaults to NOSHOP_ADDR)")
	return cmd
}
