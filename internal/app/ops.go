package app

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/devkeep/internal/ops"
	"github.com/blackwell-systems/devkeep/internal/output"
)

// defaultServeAddr is where the serve daemon listens unless told otherwise.
const defaultServeAddr = "127.0.0.1:7433"

var (
	opsLimit int
	opsAddr  string

	opsCmd = &cobra.Command{
		Use:   "ops",
		Short: "Inspect and manage operations",
		Long: `Show the audit log of finished operations and manage live ones.

Every operation that reaches a terminal state (succeeded, failed,
cancelled) is recorded in the local database; 'devkeep ops' lists that
history. 'cancel' and 'clear' talk to a running serve daemon, since live
operation slots exist only inside the process that started them.

Kinds: ` + kindList() + `.`,
		Example: `  # Recent history
  devkeep ops

  # Stop a long-running backup in the daemon
  devkeep ops cancel backupCreate

  # Free the slot once it has settled
  devkeep ops clear backupCreate`,
		RunE: runOpsList,
	}

	opsCancelCmd = &cobra.Command{
		Use:   "cancel <kind>",
		Short: "Cancel a running operation in the serve daemon",
		Args:  cobra.ExactArgs(1),
		RunE:  runOpsCancel,
	}

	opsClearCmd = &cobra.Command{
		Use:   "clear <kind>",
		Short: "Clear a finished operation slot in the serve daemon",
		Args:  cobra.ExactArgs(1),
		RunE:  runOpsClear,
	}
)

func init() {
	opsCmd.Flags().IntVar(&opsLimit, "limit", 20, "number of history entries to show")
	opsCmd.PersistentFlags().StringVar(&opsAddr, "addr", defaultServeAddr, "serve daemon address for cancel/clear")

	opsCmd.AddCommand(opsCancelCmd)
	opsCmd.AddCommand(opsClearCmd)
	RootCmd.AddCommand(opsCmd)
}

func kindList() string {
	kinds := ops.Kinds()
	names := make([]string, len(kinds))
	for i := 0; i < len(kinds); i++ {
		names[i] = string(kinds[i])
	}
	return strings.Join(names, ", ")
}

func runOpsList(cmd *cobra.Command, args []string) error {
	eng, err := newEngine(log.New(os.Stderr, "", 0))
	if err != nil {
		return err
	}
	defer eng.Close()

	entries, err := eng.db.ListOperations(opsLimit)
	if err != nil {
		return err
	}
	fmt.Print(output.RenderOperationLogTable(entries))
	return nil
}

func runOpsCancel(cmd *cobra.Command, args []string) error {
	kind, err := ops.ParseKind(args[0])
	if err != nil {
		return err
	}
	msg, err := callDaemon(http.MethodPost, opsAddr, fmt.Sprintf("/api/operations/%s/cancel", kind))
	if err != nil {
		return err
	}
	if msg == "" {
		msg = fmt.Sprintf("cancel requested for %s", kind)
	}
	fmt.Printf("✓ %s\n", msg)
	return nil
}

func runOpsClear(cmd *cobra.Command, args []string) error {
	kind, err := ops.ParseKind(args[0])
	if err != nil {
		return err
	}
	msg, err := callDaemon(http.MethodDelete, opsAddr, fmt.Sprintf("/api/operations/%s", kind))
	if err != nil {
		return err
	}
	if msg == "" {
		msg = fmt.Sprintf("%s cleared", kind)
	}
	fmt.Printf("✓ %s\n", msg)
	return nil
}

// callDaemon sends a bodyless request to the serve daemon's API and decodes
// its envelope. The returned string is the envelope's message, if any.
func callDaemon(method, addr, path string) (string, error) {
	client := &http.Client{Timeout: 5 * time.Second}

	req, err := http.NewRequest(method, "http://"+addr+path, nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("no serve daemon reachable at %s (start one with 'devkeep serve')", addr)
	}
	defer resp.Body.Close()

	var envelope struct {
		Success bool            `json:"success"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return "", fmt.Errorf("unexpected response from daemon (HTTP %d)", resp.StatusCode)
	}
	if !envelope.Success {
		if envelope.Message != "" {
			return "", fmt.Errorf("daemon refused: %s", envelope.Message)
		}
		return "", fmt.Errorf("daemon refused (HTTP %d)", resp.StatusCode)
	}

	// Clear responses carry their text inside data.
	if envelope.Message == "" && len(envelope.Data) > 0 {
		var data struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(envelope.Data, &data); err == nil {
			return data.Message, nil
		}
	}
	return envelope.Message, nil
}
