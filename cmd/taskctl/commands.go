package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/taskbot/internal/extraction"
	httpapi "github.com/fyrsmithlabs/taskbot/internal/http"
	"github.com/fyrsmithlabs/taskbot/internal/picker"
	"github.com/fyrsmithlabs/taskbot/internal/pipeline"
	"github.com/fyrsmithlabs/taskbot/internal/resolution"
	"github.com/fyrsmithlabs/taskbot/internal/session"
)

var (
	sendSender string
	sendChat   string
	pick       bool
	localOnly  bool
	asJSON     bool
)

// pickFunc runs the interactive picker. Tests replace it.
var pickFunc = func(decisions []resolution.Decision) ([]picker.Choice, error) {
	return picker.Run(decisions)
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check taskbotd server health",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		var resp httpapi.HealthResponse
		if err := call(cmd.Context(), http.MethodGet, "/health", nil, &resp); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Server Status: %s\n", resp.Status)
		fmt.Fprintf(cmd.OutOrStdout(), "Server URL: %s\n", serverURL)
		return nil
	},
}

var sendCmd = &cobra.Command{
	Use:   "send <text...>",
	Short: "Buffer a message for analysis",
	Long: `Buffer a message as if it had been forwarded from a chat.

Examples:
  taskctl send -u 42 --from Anna --chat team "fix the checkout by 12.10"
  echo "deploy on friday" | taskctl send -u 42 -`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := readText(cmd.InOrStdin(), args)
		if err != nil {
			return err
		}
		path, err := userPath("messages")
		if err != nil {
			return err
		}
		var resp httpapi.MessageResponse
		req := httpapi.MessageRequest{Text: text, Sender: sendSender, SourceChat: sendChat}
		if err := call(cmd.Context(), http.MethodPost, path, req, &resp); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Buffered message #%d\n", resp.Ordinal)
		return nil
	},
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze the buffered messages",
	Long: `Analyze the buffered messages into tasks. Confident tasks are filed
automatically; use --pick to choose destinations for the rest interactively.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		path, err := userPath("analyze")
		if err != nil {
			return err
		}
		var report pipeline.Report
		if err := call(cmd.Context(), http.MethodPost, path, nil, &report); err != nil {
			return err
		}
		if err := printReport(cmd.OutOrStdout(), &report); err != nil {
			return err
		}
		if pick {
			return pickAndChoose(cmd, report.Decisions)
		}
		return nil
	},
}

var directCmd = &cobra.Command{
	Use:   "direct <text...>",
	Short: "Analyze one message without buffering it",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := readText(cmd.InOrStdin(), args)
		if err != nil {
			return err
		}
		path, err := userPath("direct")
		if err != nil {
			return err
		}
		var report pipeline.Report
		req := httpapi.MessageRequest{Text: text, Sender: sendSender, SourceChat: sendChat}
		if err := call(cmd.Context(), http.MethodPost, path, req, &report); err != nil {
			return err
		}
		return printReport(cmd.OutOrStdout(), &report)
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel",
	Short: "Drop the buffered messages and analysis",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		path, err := userPath("cancel")
		if err != nil {
			return err
		}
		if err := call(cmd.Context(), http.MethodPost, path, nil, nil); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Session cleared")
		return nil
	},
}

var chooseCmd = &cobra.Command{
	Use:   "choose <task-index> <destination-id> [sub-list]",
	Short: "File a task into a destination",
	Args:  cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		index, err := strconv.Atoi(args[0])
		if err != nil || index < 0 {
			return fmt.Errorf("invalid task index %q", args[0])
		}
		subList := ""
		if len(args) == 3 {
			subList = args[2]
		}
		commit, err := choose(cmd, index, args[1], subList)
		if err != nil {
			return err
		}
		printCommit(cmd.OutOrStdout(), *commit)
		return nil
	},
}

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Show the buffered messages and last analysis",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		path, err := userPath("session")
		if err != nil {
			return err
		}
		var sess session.Session
		if err := call(cmd.Context(), http.MethodGet, path, nil, &sess); err != nil {
			return err
		}
		if asJSON {
			return writeJSON(cmd.OutOrStdout(), sess)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "User: %s\n", sess.UserID)
		fmt.Fprintf(out, "Messages: %d\n", len(sess.Messages))
		for _, m := range sess.Messages {
			fmt.Fprintf(out, "  #%d [%s] %s\n", m.Ordinal, m.SenderLabel(), m.Text)
		}
		if sess.Selected != nil {
			fmt.Fprintf(out, "Selected: %s/%s\n", sess.Selected.DestinationID, sess.Selected.SubListID)
		}
		if sess.LastAnalysis != nil {
			fmt.Fprintf(out, "Last analysis: %s (%d tasks)\n", sess.LastAnalysis.ID, len(sess.LastAnalysis.Tasks))
		}
		return nil
	},
}

var extractCmd = &cobra.Command{
	Use:   "extract [file|-]",
	Short: "Extract deadlines, priority and mentions from text",
	Long: `Run deterministic extraction over text, one message per line.

Examples:
  taskctl extract notes.txt
  cat chat.txt | taskctl extract -
  taskctl extract --local notes.txt   # no server needed`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var data []byte
		var err error
		if len(args) == 0 || args[0] == "-" {
			data, err = io.ReadAll(cmd.InOrStdin())
		} else {
			data, err = os.ReadFile(args[0])
		}
		if err != nil {
			return fmt.Errorf("failed to read input: %w", err)
		}

		var msgs []httpapi.MessageRequest
		for _, line := range strings.Split(string(data), "\n") {
			if line = strings.TrimSpace(line); line != "" {
				msgs = append(msgs, httpapi.MessageRequest{Text: line})
			}
		}
		if len(msgs) == 0 {
			return errors.New("no text to extract from")
		}

		if localOnly {
			in := make([]extraction.Message, len(msgs))
			for i, m := range msgs {
				in[i] = extraction.Message{Text: m.Text, Ordinal: i}
			}
			return writeJSON(cmd.OutOrStdout(), httpapi.ExtractResponse{Context: extraction.New().Extract(in)})
		}

		var resp httpapi.ExtractResponse
		if err := call(cmd.Context(), http.MethodPost, "/api/v1/extract", httpapi.ExtractRequest{Messages: msgs}, &resp); err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), resp)
	},
}

func init() {
	for _, c := range []*cobra.Command{sendCmd, directCmd} {
		c.Flags().StringVar(&sendSender, "from", "", "original sender of the message")
		c.Flags().StringVar(&sendChat, "chat", "", "chat the message was forwarded from")
	}
	analyzeCmd.Flags().BoolVar(&pick, "pick", false, "choose destinations interactively for unresolved tasks")
	for _, c := range []*cobra.Command{analyzeCmd, directCmd, sessionCmd} {
		c.Flags().BoolVar(&asJSON, "json", false, "print the raw JSON response")
	}
	extractCmd.Flags().BoolVar(&localOnly, "local", false, "extract locally instead of asking the server")
}

// readText joins args, or reads stdin when the only arg is "-".
func readText(stdin io.Reader, args []string) (string, error) {
	if len(args) == 1 && args[0] == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read from stdin: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	}
	return strings.Join(args, " "), nil
}

func choose(cmd *cobra.Command, index int, destinationID, subList string) (*pipeline.Commit, error) {
	path, err := userPath(fmt.Sprintf("tasks/%d/destination", index))
	if err != nil {
		return nil, err
	}
	var commit pipeline.Commit
	req := httpapi.ChooseRequest{DestinationID: destinationID, SubList: subList}
	if err := call(cmd.Context(), http.MethodPost, path, req, &commit); err != nil {
		return nil, err
	}
	return &commit, nil
}

func pickAndChoose(cmd *cobra.Command, decisions []resolution.Decision) error {
	choices, err := pickFunc(decisions)
	if err != nil && !errors.Is(err, picker.ErrAborted) {
		return err
	}
	for _, c := range choices {
		commit, cerr := choose(cmd, c.TaskIndex, c.DestinationID, c.SubListID)
		if cerr != nil {
			return fmt.Errorf("task %d: %w", c.TaskIndex, cerr)
		}
		printCommit(cmd.OutOrStdout(), *commit)
	}
	return err
}

func printReport(out io.Writer, report *pipeline.Report) error {
	if asJSON {
		return writeJSON(out, report)
	}
	if report.Empty {
		fmt.Fprintln(out, "No tasks found")
		return nil
	}
	for _, d := range report.Decisions {
		switch d.Action {
		case resolution.ActionAutoCommit:
			ac := d.AutoCommit
			fmt.Fprintf(out, "[%d] -> %s / %s (%.2f)\n", d.TaskIndex, ac.DestinationName, ac.SubListName, ac.Confidence)
		case resolution.ActionRequestDisambiguation:
			rd := d.Disambiguation
			fmt.Fprintf(out, "[%d] %s: needs a destination (%s)\n", d.TaskIndex, rd.Candidate.Name, rd.Reason)
			for _, s := range rd.Suggestions {
				fmt.Fprintf(out, "      %s/%s  %s\n", s.DestinationID, s.SubListID, s.Reason)
			}
		}
	}
	for _, c := range report.Committed {
		printCommit(out, c)
	}
	return nil
}

func printCommit(out io.Writer, c pipeline.Commit) {
	if c.Error != "" {
		fmt.Fprintf(out, "task %d: commit to %s failed: %s\n", c.TaskIndex, c.DestinationID, c.Error)
		return
	}
	fmt.Fprintf(out, "task %d: filed to %s/%s as %s\n", c.TaskIndex, c.DestinationID, c.SubListID, c.Receipt.ItemID)
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
