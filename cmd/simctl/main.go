// Command simctl is the operator CLI for the Open Protocol simulator's
// HTTP control plane: profile switching, session/traffic inspection,
// state edits, event injection, and scenario playback.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func main() {
	var addr string

	root := &cobra.Command{
		Use:   "simctl",
		Short: "Control plane client for the Open Protocol torque-tool simulator",
	}
	root.PersistentFlags().StringVar(&addr, "addr", "http://127.0.0.1:8000", "simulator API base URL")

	client := func() *apiClient { return newAPIClient(addr) }

	root.AddCommand(
		healthCmd(client),
		profileCmd(client),
		sessionsCmd(client),
		trafficCmd(client),
		stateCmd(client),
		eventCmd(client),
		scenarioCmd(client),
		resetCmd(client),
		capabilitiesCmd(client),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func healthCmd(client func() *apiClient) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check simulator health",
		RunE: func(cmd *cobra.Command, args []string) error {
			var out map[string]any
			if err := client().get("/api/v1/health", &out); err != nil {
				return err
			}
			fmt.Printf("status: %v, version: %v\n", out["status"], out["version"])
			return nil
		},
	}
}

func profileCmd(client func() *apiClient) *cobra.Command {
	root := &cobra.Command{
		Use:   "profile",
		Short: "Inspect or switch the active vendor profile",
	}
	root.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List configured profiles",
		RunE: func(cmd *cobra.Command, args []string) error {
			var out []map[string]any
			if err := client().get("/api/v1/profiles", &out); err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tDISPLAY NAME\tSUPPORTED MIDS")
			for _, p := range out {
				mids, _ := p["supported_mids"].([]any)
				fmt.Fprintf(w, "%v\t%v\t%v\n", p["name"], p["display_name"], len(mids))
			}
			return w.Flush()
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "active",
		Short: "Show the active profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			var out map[string]any
			if err := client().get("/api/v1/profiles/active", &out); err != nil {
				return err
			}
			return printJSON(out)
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "switch [name]",
		Short: "Switch the active profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var out map[string]any
			if err := client().put("/api/v1/profiles/active", map[string]string{"name": args[0]}, &out); err != nil {
				return err
			}
			fmt.Println("active profile:", out["active"])
			return nil
		},
	})
	return root
}

func sessionsCmd(client func() *apiClient) *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List connected sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			var out []map[string]any
			if err := client().get("/api/v1/sessions", &out); err != nil {
				return err
			}
			if len(out) == 0 {
				fmt.Println("no sessions")
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tROLE\tREMOTE\tSTARTED\tSUBSCRIPTIONS")
			for _, s := range out {
				fmt.Fprintf(w, "%v\t%v\t%v\t%v\t%v\n", s["session_id"], s["role"], s["remote"], s["communication_started"], s["subscriptions"])
			}
			return w.Flush()
		},
	}
}

func trafficCmd(client func() *apiClient) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "traffic",
		Short: "Show recent wire traffic",
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			mid, _ := cmd.Flags().GetString("mid")
			sessionID, _ := cmd.Flags().GetString("session")

			path := fmt.Sprintf("/api/v1/traffic?limit=%d", limit)
			if mid != "" {
				path += "&mid=" + mid
			}
			if sessionID != "" {
				path += "&session_id=" + sessionID
			}

			var out []map[string]any
			if err := client().get(path, &out); err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TIMESTAMP\tSESSION\tDIR\tMID\tLENGTH")
			for _, t := range out {
				fmt.Fprintf(w, "%v\t%v\t%v\t%v\t%v\n", t["timestamp"], t["session_id"], t["direction"], t["mid"], t["length"])
			}
			return w.Flush()
		},
	}
	cmd.Flags().Int("limit", 50, "Maximum records to return")
	cmd.Flags().String("mid", "", "Filter by MID")
	cmd.Flags().String("session", "", "Filter by session ID")
	return cmd
}

func stateCmd(client func() *apiClient) *cobra.Command {
	root := &cobra.Command{
		Use:   "state",
		Short: "Inspect or edit simulator state domains",
	}
	root.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List state domain names",
		RunE: func(cmd *cobra.Command, args []string) error {
			var out map[string]any
			if err := client().get("/api/v1/state", &out); err != nil {
				return err
			}
			return printJSON(out["domains"])
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "get [domain]",
		Short: "Print one state domain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var out any
			if err := client().get("/api/v1/state/"+args[0], &out); err != nil {
				return err
			}
			return printJSON(out)
		},
	})
	setCmd := &cobra.Command{
		Use:   "set [domain] [json]",
		Short: "Replace one state domain with a JSON document",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var payload map[string]any
			if err := json.Unmarshal([]byte(args[1]), &payload); err != nil {
				return fmt.Errorf("parse json argument: %w", err)
			}
			var out any
			if err := client().put("/api/v1/state/"+args[0], payload, &out); err != nil {
				return err
			}
			return printJSON(out)
		},
	}
	root.AddCommand(setCmd)
	return root
}

func eventCmd(client func() *apiClient) *cobra.Command {
	return &cobra.Command{
		Use:   "event [name] [json-payload]",
		Short: "Publish a simulated event to every subscribed session",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var payload map[string]any
			if len(args) == 2 {
				if err := json.Unmarshal([]byte(args[1]), &payload); err != nil {
					return fmt.Errorf("parse json payload: %w", err)
				}
			}
			var out map[string]any
			if err := client().post("/api/v1/events/"+args[0], payload, &out); err != nil {
				return err
			}
			fmt.Printf("pushed %v message(s) for event %v\n", out["pushed_messages"], out["event_type"])
			return nil
		},
	}
}

func scenarioCmd(client func() *apiClient) *cobra.Command {
	root := &cobra.Command{
		Use:   "scenario",
		Short: "List or run canned demo scenarios",
	}
	root.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List available scenarios",
		RunE: func(cmd *cobra.Command, args []string) error {
			var out map[string]any
			if err := client().get("/api/v1/scenarios", &out); err != nil {
				return err
			}
			names, _ := out["scenarios"].([]any)
			if len(names) == 0 {
				fmt.Println("no scenarios loaded")
				return nil
			}
			for _, n := range names {
				fmt.Println(n)
			}
			return nil
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "run [name]",
		Short: "Run a scenario",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var out map[string]any
			if err := client().post("/api/v1/scenarios/run", map[string]string{"name": args[0]}, &out); err != nil {
				return err
			}
			return printJSON(out)
		},
	})
	return root
}

func resetCmd(client func() *apiClient) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Reset the simulator to its initial state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return client().post("/api/v1/reset", nil, nil)
		},
	}
}

func capabilitiesCmd(client func() *apiClient) *cobra.Command {
	return &cobra.Command{
		Use:   "capabilities",
		Short: "Show the active profile's MID capability matrix",
		RunE: func(cmd *cobra.Command, args []string) error {
			var out map[string]any
			if err := client().get("/api/v1/capabilities", &out); err != nil {
				return err
			}
			mids, _ := out["mids"].([]any)
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "MID\tNAME\tSUPPORTED\tREVISIONS")
			for _, raw := range mids {
				m, _ := raw.(map[string]any)
				fmt.Fprintf(w, "%v\t%v\t%v\t%v\n", m["mid"], m["name"], m["supported"], m["revisions"])
			}
			return w.Flush()
		},
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
