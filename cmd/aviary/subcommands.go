package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aviaryhq/aviary-go/pkg/client"
)

// Resolve a configured client from the global flags
func resolveClient(cmd *cobra.Command, extra ...client.Option) (*client.TaskClient, error) {
	baseURL, _ := cmd.Flags().GetString("base-url")
	apiKey, _ := cmd.Flags().GetString("api-key")
	if apiKey == "" {
		apiKey = os.Getenv("AVIARY_API_KEY")
	}

	opts := append([]client.Option{client.WithAPIKey(apiKey)}, extra...)
	return client.New(baseURL, opts...)
}

// Build a task request from positional args and shared task flags. The
// --runtime-config JSON is parsed first; dedicated flags override its fields.
func taskRequestFromFlags(cmd *cobra.Command, args []string) (client.TaskRequest, error) {
	req := client.TaskRequest{
		Name:  args[0],
		Query: args[1],
	}

	if taskID, _ := cmd.Flags().GetString("task-id"); taskID != "" {
		req.ID = taskID
	}

	rc := client.RuntimeConfig{}
	if rcJSON, _ := cmd.Flags().GetString("runtime-config"); rcJSON != "" {
		if err := json.Unmarshal([]byte(rcJSON), &rc); err != nil {
			return client.TaskRequest{}, fmt.Errorf("invalid JSON for --runtime-config: %w", err)
		}
	}
	if continueFrom, _ := cmd.Flags().GetString("continue-from"); continueFrom != "" {
		rc.ContinuedTaskID = continueFrom
	}
	if timeout, _ := cmd.Flags().GetInt("task-timeout"); timeout > 0 {
		rc.Timeout = timeout
	}
	if maxSteps, _ := cmd.Flags().GetInt("max-steps"); maxSteps > 0 {
		rc.MaxSteps = maxSteps
	}
	if rc != (client.RuntimeConfig{}) {
		req.RuntimeConfig = &rc
	}

	return req, nil
}

func addTaskFlags(cmd *cobra.Command) {
	cmd.Flags().String("task-id", "", "submit with a caller-chosen task UUID")
	cmd.Flags().String("continue-from", "", "ID of a previous task to continue")
	cmd.Flags().Int("task-timeout", 0, "server-side execution timeout in seconds")
	cmd.Flags().Int("max-steps", 0, "cap on the number of agent steps")
	cmd.Flags().String("runtime-config", "", "additional runtime configuration as JSON")
}

func addPollFlags(cmd *cobra.Command) {
	cmd.Flags().Duration("poll-interval", 5*time.Second, "delay between status polls")
	cmd.Flags().Duration("poll-timeout", 10*time.Minute, "how long to wait for tasks to finish")
}

// Submit a task without waiting for it
func newCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create AGENT QUERY",
		Short: "Submit a task and print its ID",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := resolveClient(cmd)
			if err != nil {
				return err
			}
			req, err := taskRequestFromFlags(cmd, args)
			if err != nil {
				return err
			}
			handle, err := c.CreateTask(cmd.Context(), req)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), handle.ID)
			return nil
		},
	}
	addTaskFlags(cmd)
	return cmd
}

// Submit a task and wait for the result
func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run AGENT QUERY",
		Short: "Submit a task and wait for its result",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pollInterval, _ := cmd.Flags().GetDuration("poll-interval")
			pollTimeout, _ := cmd.Flags().GetDuration("poll-timeout")
			syncRun, _ := cmd.Flags().GetBool("sync")

			c, err := resolveClient(cmd,
				client.WithPollInterval(pollInterval),
				client.WithPollTimeout(pollTimeout),
			)
			if err != nil {
				return err
			}
			req, err := taskRequestFromFlags(cmd, args)
			if err != nil {
				return err
			}

			var result client.TaskResult
			if syncRun {
				result, err = c.RunTaskSync(cmd.Context(), req)
			} else {
				result, err = c.RunTask(cmd.Context(), req)
			}
			if err != nil {
				var timeout *client.TimeoutError
				if errors.As(err, &timeout) {
					return fmt.Errorf("%w (check later with: aviary result %s)", timeout, timeout.TaskID)
				}
				return err
			}

			return printJSON(cmd, result)
		},
	}
	addTaskFlags(cmd)
	addPollFlags(cmd)
	cmd.Flags().Bool("sync", false, "run server-side synchronously instead of polling")
	return cmd
}

// batchEntry is one line of batch output, in input order.
type batchEntry struct {
	ID     string          `json:"id"`
	Name   string          `json:"name"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Submit a batch of tasks and poll them all to completion
func newBatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch FILE",
		Short: "Submit a batch of tasks from a JSON file and wait for their results",
		Long:  "FILE contains a JSON array of task requests: [{\"name\": \"CROW\", \"query\": \"...\"}, ...]. Use \"-\" to read from stdin. Results print in input order.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var data []byte
			var err error
			if args[0] == "-" {
				data, err = io.ReadAll(cmd.InOrStdin())
			} else {
				data, err = os.ReadFile(args[0])
			}
			if err != nil {
				return err
			}

			var reqs []client.TaskRequest
			if err := json.Unmarshal(data, &reqs); err != nil {
				return fmt.Errorf("parsing %s: %w", args[0], err)
			}

			pollInterval, _ := cmd.Flags().GetDuration("poll-interval")
			pollTimeout, _ := cmd.Flags().GetDuration("poll-timeout")
			submitOnly, _ := cmd.Flags().GetBool("submit-only")

			c, err := resolveClient(cmd,
				client.WithPollInterval(pollInterval),
				client.WithPollTimeout(pollTimeout),
			)
			if err != nil {
				return err
			}
			handles, err := c.BatchCreateTasks(cmd.Context(), reqs)
			if err != nil {
				return err
			}

			if submitOnly {
				for i, h := range handles {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", h.ID, reqs[i].Name)
				}
				return nil
			}

			// Poll all tasks concurrently; results print in input order
			entries := make([]batchEntry, len(handles))
			var wg sync.WaitGroup
			for i, h := range handles {
				entries[i] = batchEntry{ID: h.ID, Name: reqs[i].Name}
				wg.Add(1)
				go func(i int, h client.TaskHandle) {
					defer wg.Done()
					result, err := c.PollTask(cmd.Context(), h)
					if err != nil {
						entries[i].Error = err.Error()
						return
					}
					entries[i].Result = json.RawMessage(result)
				}(i, h)
			}
			wg.Wait()

			return printJSON(cmd, entries)
		},
	}
	addPollFlags(cmd)
	cmd.Flags().Bool("submit-only", false, "print task IDs without waiting for results")
	return cmd
}

// Print the status of a task
func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status TASK_ID",
		Short: "Print the current status of a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := resolveClient(cmd)
			if err != nil {
				return err
			}
			task, err := c.GetTask(cmd.Context(), client.TaskHandle{ID: args[0]})
			if err != nil {
				return err
			}
			return printJSON(cmd, task)
		},
	}
}

// Print the result of a finished task
func newResultCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "result TASK_ID",
		Short: "Print the result of a finished task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := resolveClient(cmd)
			if err != nil {
				return err
			}
			result, err := c.GetResult(cmd.Context(), client.TaskHandle{ID: args[0]})
			if err != nil {
				var notReady *client.NotReadyError
				if errors.As(err, &notReady) {
					return fmt.Errorf("task %s is still running", notReady.TaskID)
				}
				return err
			}
			return printJSON(cmd, result)
		},
	}
}

// Stream task events over WebSocket
func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Stream task lifecycle events until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := resolveClient(cmd)
			if err != nil {
				return err
			}
			if err := c.ConnectWebSocket(cmd.Context()); err != nil {
				return err
			}
			defer c.CloseWebSocket()

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

			for {
				select {
				case <-quit:
					return nil
				case event, ok := <-c.Events():
					if !ok {
						return fmt.Errorf("connection closed by server")
					}
					line, err := json.Marshal(event)
					if err != nil {
						continue
					}
					fmt.Fprintln(cmd.OutOrStdout(), string(line))
				}
			}
		},
	}
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
