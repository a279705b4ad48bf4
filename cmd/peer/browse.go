package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/dkeye/Huddle/internal/adapters/storage"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List live sessions on the server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var topics []struct {
			Name        string `json:"name"`
			MemberCount int    `json:"memberCount"`
		}
		if err := fetchJSON(cmd.Context(), "/api/sessions", &topics); err != nil {
			return err
		}
		table := newTable(cmd.OutOrStdout(), "Session", "Members")
		for _, t := range topics {
			table.Append([]string{t.Name, strconv.Itoa(t.MemberCount)})
		}
		table.Render()
		return nil
	},
}

var recordingsCmd = &cobra.Command{
	Use:   "recordings <session>",
	Short: "List stored recordings of a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var list []storage.Recording
		if err := fetchJSON(cmd.Context(), "/api/sessions/"+url.PathEscape(args[0])+"/recordings", &list); err != nil {
			return err
		}
		table := newTable(cmd.OutOrStdout(), "Ref", "Started", "Duration", "Frames", "Bytes")
		for _, r := range list {
			table.Append([]string{
				r.Ref,
				r.StartedAt.Local().Format(time.DateTime),
				(time.Duration(r.DurationMS) * time.Millisecond).String(),
				strconv.Itoa(r.Frames),
				strconv.Itoa(r.Size),
			})
		}
		table.Render()
		return nil
	},
}

var downloadCmd = &cobra.Command{
	Use:   "download <ref>",
	Short: "Download a stored recording",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _ := cmd.Flags().GetString("output")
		if out == "" {
			out = args[0] + ".zip"
		}
		resp, err := get(cmd.Context(), "/api/recordings/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		f, err := os.Create(out)
		if err != nil {
			return err
		}
		n, err := io.Copy(f, resp.Body)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s (%d bytes)\n", out, n)
		return nil
	},
}

func init() {
	downloadCmd.Flags().StringP("output", "o", "", "output file, defaults to <ref>.zip")
	rootCmd.AddCommand(sessionsCmd, recordingsCmd, downloadCmd)
}

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	return table
}

func get(ctx context.Context, path string) (*http.Response, error) {
	server := strings.TrimRight(peerViper.GetString("server"), "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server+path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	return resp, nil
}

func fetchJSON(ctx context.Context, path string, out any) error {
	resp, err := get(ctx, path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(out)
}
