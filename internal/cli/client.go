package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ebbtide-net/ebbtide/internal/domain"
	"github.com/ebbtide-net/ebbtide/internal/session"
)

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(toggleCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(nextCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(hoursCmd)
	rootCmd.AddCommand(signInCmd)
	rootCmd.AddCommand(signOutCmd)
	hoursCmd.AddCommand(hoursReviewCmd)
	hoursCmd.AddCommand(hoursResetCmd)
}

var httpClient = &http.Client{Timeout: 10 * time.Second}

func getJSON(base, path string, out interface{}) error {
	resp, err := httpClient.Get(base + path)
	if err != nil {
		return fmt.Errorf("is the daemon running? %w", err)
	}
	defer resp.Body.Close()
	return decodeResponse(resp, out)
}

func postJSON(base, path string, body, out interface{}) error {
	buf := &bytes.Buffer{}
	if body != nil {
		if err := json.NewEncoder(buf).Encode(body); err != nil {
			return err
		}
	}
	resp, err := httpClient.Post(base+path, "application/json", buf)
	if err != nil {
		return fmt.Errorf("is the daemon running? %w", err)
	}
	defer resp.Body.Close()
	return decodeResponse(resp, out)
}

func decodeResponse(resp *http.Response, out interface{}) error {
	if resp.StatusCode >= 400 {
		var errBody struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&errBody) == nil && errBody.Error.Message != "" {
			return fmt.Errorf("%s", errBody.Error.Message)
		}
		return fmt.Errorf("daemon returned %s", resp.Status)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func printState(st session.State) {
	mins := st.SecondsRemaining / 60
	secs := st.SecondsRemaining % 60
	mode := "paused"
	switch {
	case st.IsDone:
		mode = "done"
	case st.IsReset:
		mode = "reset"
	case st.IsActive:
		mode = "running"
	}
	fmt.Fprintf(os.Stdout, "%s  %02d:%02d  (%s)\n", st.Stage, mins, secs, mode)
}

func timerAction(cmd *cobra.Command, path string) error {
	base, err := apiBase(cmd)
	if err != nil {
		return err
	}
	var st session.State
	if err := postJSON(base, path, nil, &st); err != nil {
		return err
	}
	printState(st)
	return nil
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current timer state",
	RunE: func(cmd *cobra.Command, args []string) error {
		base, err := apiBase(cmd)
		if err != nil {
			return err
		}
		var st session.State
		if err := getJSON(base, "/v1/timer", &st); err != nil {
			return err
		}
		printState(st)
		return nil
	},
}

var toggleCmd = &cobra.Command{
	Use:   "toggle",
	Short: "Play or pause the timer",
	RunE: func(cmd *cobra.Command, args []string) error {
		return timerAction(cmd, "/v1/timer/toggle")
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset the current stage",
	RunE: func(cmd *cobra.Command, args []string) error {
		return timerAction(cmd, "/v1/timer/reset")
	},
}

var nextCmd = &cobra.Command{
	Use:   "next",
	Short: "Skip to the next stage",
	RunE: func(cmd *cobra.Command, args []string) error {
		return timerAction(cmd, "/v1/timer/next")
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the recent focus intervals",
	RunE: func(cmd *cobra.Command, args []string) error {
		base, err := apiBase(cmd)
		if err != nil {
			return err
		}
		var resp struct {
			Intervals []domain.Interval `json:"intervals"`
		}
		if err := getJSON(base, "/v1/history", &resp); err != nil {
			return err
		}
		if len(resp.Intervals) == 0 {
			fmt.Fprintln(os.Stdout, "No focus intervals in the last two days.")
			return nil
		}
		for _, iv := range resp.Intervals {
			start := domain.FromMillis(iv.Start)
			end := domain.FromMillis(iv.End)
			fmt.Fprintf(os.Stdout, "%s - %s  (%.0f min)\n",
				start.Format("Mon 15:04"),
				end.Format("15:04"),
				domain.MinutesBetween(iv.Start, iv.End))
		}
		return nil
	},
}

var hoursCmd = &cobra.Command{
	Use:   "hours",
	Short: "Show the best-hours productivity histogram",
	RunE: func(cmd *cobra.Command, args []string) error {
		base, err := apiBase(cmd)
		if err != nil {
			return err
		}
		var resp struct {
			NormalizedScores [24]float64 `json:"normalizedScores"`
			BestHour         int         `json:"bestHour"`
			BestPeriod       string      `json:"bestPeriod"`
			IsReset          bool        `json:"isReset"`
		}
		if err := getJSON(base, "/v1/best-hours", &resp); err != nil {
			return err
		}
		if resp.IsReset {
			fmt.Fprintln(os.Stdout, "No scored focus time yet.")
			return nil
		}
		for h, score := range resp.NormalizedScores {
			bar := strings.Repeat("█", int(score*20))
			fmt.Fprintf(os.Stdout, "%02d %s\n", h, bar)
		}
		fmt.Fprintf(os.Stdout, "\nBest hour: %02d:00 (%s)\n", resp.BestHour, resp.BestPeriod)
		return nil
	},
}

var hoursReviewCmd = &cobra.Command{
	Use:   "review (bad|okay|good)",
	Short: "Rate the current focus interval",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		base, err := apiBase(cmd)
		if err != nil {
			return err
		}
		req := map[string]string{"review": args[0]}
		if err := postJSON(base, "/v1/best-hours/review", req, nil); err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Review recorded: %s\n", args[0])
		return nil
	},
}

var hoursResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Zero the best-hours histogram",
	RunE: func(cmd *cobra.Command, args []string) error {
		base, err := apiBase(cmd)
		if err != nil {
			return err
		}
		if err := postJSON(base, "/v1/best-hours/reset", nil, nil); err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, "Best-hours histogram reset.")
		return nil
	},
}

var signInCmd = &cobra.Command{
	Use:   "signin CREDENTIAL",
	Short: "Upgrade to a durable identity",
	Long: `Upgrade the daemon's identity to a durable account. The anonymous
session's timer, history, and best-hours documents migrate to the durable
identity; the anonymous credential is discarded.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		base, err := apiBase(cmd)
		if err != nil {
			return err
		}
		var ident domain.Identity
		req := map[string]string{"credential": args[0]}
		if err := postJSON(base, "/v1/auth/signin", req, &ident); err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Signed in as %s\n", ident.UID)
		return nil
	},
}

var signOutCmd = &cobra.Command{
	Use:   "signout",
	Short: "Return to a fresh anonymous identity",
	RunE: func(cmd *cobra.Command, args []string) error {
		base, err := apiBase(cmd)
		if err != nil {
			return err
		}
		var ident domain.Identity
		if err := postJSON(base, "/v1/auth/signout", nil, &ident); err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Signed out; now anonymous (%s)\n", ident.UID)
		return nil
	},
}
