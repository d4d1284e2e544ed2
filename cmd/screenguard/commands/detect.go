package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/bryanchriswhite/ScreenGuard/internal/guard"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Control screen capture detection on a running daemon",
}

var detectStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start screen capture detection",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newDaemonClient(cmd)
		if err != nil {
			return err
		}
		if err := c.call(cmd.Context(), "POST", "/api/detection/start", nil, nil); err != nil {
			return err
		}
		fmt.Println("✅ Capture detection started")
		return nil
	},
}

var detectStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop screen capture detection",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newDaemonClient(cmd)
		if err != nil {
			return err
		}
		if err := c.call(cmd.Context(), "POST", "/api/detection/stop", nil, nil); err != nil {
			return err
		}
		fmt.Println("✅ Capture detection stopped")
		return nil
	},
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Print daemon events as JSON lines",
	Example: `  # Follow screenshot detections
  screenguard events | jq 'select(.type == "userDidTakeScreenshot")'`,
	RunE: runEvents,
}

var preventCmd = &cobra.Command{
	Use:       "prevent on|off",
	Short:     "Raise or lower the screenshot shield",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"on", "off"},
	RunE:      runPrevent,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show capture status of a running daemon",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(detectCmd, eventsCmd, preventCmd, statusCmd)
	detectCmd.AddCommand(detectStartCmd, detectStopCmd)
}

func runPrevent(cmd *cobra.Command, args []string) error {
	c, err := newDaemonClient(cmd)
	if err != nil {
		return err
	}

	var resp struct {
		IsPrevent bool `json:"is_prevent"`
		Success   bool `json:"success"`
	}
	body := map[string]bool{"is_prevent": args[0] == "on"}
	if err := c.call(cmd.Context(), "POST", "/api/prevent", body, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("%s: no protected window is focused", guard.CodeNoActivity)
	}
	if resp.IsPrevent {
		fmt.Println("🛡️  Shield raised")
	} else {
		fmt.Println("Shield lowered")
	}
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	c, err := newDaemonClient(cmd)
	if err != nil {
		return err
	}
	var st guard.Status
	if err := c.call(cmd.Context(), "GET", "/api/capture/status", nil, &st); err != nil {
		return err
	}
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(st)
}

func runEvents(cmd *cobra.Command, args []string) error {
	c, err := newDaemonClient(cmd)
	if err != nil {
		return err
	}

	url := "ws" + strings.TrimPrefix(c.base, "http") + "/api/events"
	conn, _, err := websocket.DefaultDialer.DialContext(cmd.Context(), url, nil)
	if err != nil {
		return fmt.Errorf("is the daemon running? %w", err)
	}
	defer conn.Close()

	closing := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		<-sigChan
		close(closing)
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		conn.Close()
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-closing:
				return nil
			default:
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("event stream: %w", err)
		}
		fmt.Println(string(msg))
	}
}
