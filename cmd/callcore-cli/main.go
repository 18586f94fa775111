package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/spf13/cobra"
)

var (
	apiHost string
	token   string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "callcore-cli",
		Short: "Command-line client for the callcore supervisor API",
		Long:  "A command-line tool for driving callcore's supervisor operations against a running instance.",
	}

	rootCmd.PersistentFlags().StringVar(&apiHost, "host", "http://localhost:8090", "base URL of the control API")
	rootCmd.PersistentFlags().StringVar(&token, "token", os.Getenv("CALLCORE_TOKEN"), "bearer token for the control API")

	hangupCmd := &cobra.Command{
		Use:   "hangup [extension]",
		Short: "Hang up the active call on an extension",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			post("/api/v1/hangup", map[string]interface{}{"extension": args[0]})
		},
	}

	var transferContext, transferPriority string
	transferCmd := &cobra.Command{
		Use:   "transfer [source] [destination]",
		Short: "Blind-transfer a call to a new destination",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			post("/api/v1/transfer", map[string]interface{}{
				"source":      args[0],
				"destination": args[1],
				"context":     transferContext,
				"priority":    transferPriority,
			})
		},
	}
	transferCmd.Flags().StringVar(&transferContext, "context", "default", "dialplan context to redirect into")
	transferCmd.Flags().StringVar(&transferPriority, "priority", "1", "dialplan priority to redirect into")

	listenCmd := &cobra.Command{
		Use:   "listen [supervisor] [target]",
		Short: "Listen in on a target extension's call",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			post("/api/v1/listen", map[string]interface{}{"supervisor": args[0], "target": args[1]})
		},
	}

	whisperCmd := &cobra.Command{
		Use:   "whisper [supervisor] [target]",
		Short: "Whisper to a target extension's agent leg",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			post("/api/v1/whisper", map[string]interface{}{"supervisor": args[0], "target": args[1]})
		},
	}

	bargeCmd := &cobra.Command{
		Use:   "barge [supervisor] [target]",
		Short: "Barge into a target extension's call",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			post("/api/v1/barge", map[string]interface{}{"supervisor": args[0], "target": args[1]})
		},
	}

	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Manage queue membership",
	}

	var queuePenalty int
	var queuePaused bool
	var queueMemberName string
	queueAddCmd := &cobra.Command{
		Use:   "add [queue] [interface]",
		Short: "Add a member to a queue",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			post("/api/v1/queue/add", map[string]interface{}{
				"queue":       args[0],
				"interface":   args[1],
				"penalty":     queuePenalty,
				"paused":      queuePaused,
				"member_name": queueMemberName,
			})
		},
	}
	queueAddCmd.Flags().IntVar(&queuePenalty, "penalty", 0, "member penalty")
	queueAddCmd.Flags().BoolVar(&queuePaused, "paused", false, "add the member already paused")
	queueAddCmd.Flags().StringVar(&queueMemberName, "name", "", "display name for the member")

	queueRemoveCmd := &cobra.Command{
		Use:   "remove [queue] [interface]",
		Short: "Remove a dynamic member from a queue",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			post("/api/v1/queue/remove", map[string]interface{}{"queue": args[0], "interface": args[1]})
		},
	}

	var pauseReason string
	queuePauseCmd := &cobra.Command{
		Use:   "pause [queue] [interface]",
		Short: "Pause a queue member",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			post("/api/v1/queue/pause", map[string]interface{}{"queue": args[0], "interface": args[1], "reason": pauseReason})
		},
	}
	queuePauseCmd.Flags().StringVar(&pauseReason, "reason", "", "pause reason")

	queueUnpauseCmd := &cobra.Command{
		Use:   "unpause [queue] [interface]",
		Short: "Unpause a queue member",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			post("/api/v1/queue/unpause", map[string]interface{}{"queue": args[0], "interface": args[1]})
		},
	}

	queueCmd.AddCommand(queueAddCmd, queueRemoveCmd, queuePauseCmd, queueUnpauseCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Check whether the control API is reachable",
		Run: func(cmd *cobra.Command, args []string) {
			get("/health")
		},
	}

	rootCmd.AddCommand(hangupCmd, transferCmd, listenCmd, whisperCmd, bargeCmd, queueCmd, statusCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func post(path string, body interface{}) {
	payload, _ := json.Marshal(body)
	req, err := http.NewRequest(http.MethodPost, apiHost+path, bytes.NewReader(payload))
	if err != nil {
		fmt.Printf("error building request: %v\n", err)
		os.Exit(1)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Printf("error connecting to control API: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		fmt.Println(string(respBody))
	} else {
		fmt.Printf("error (%s): %s\n", resp.Status, string(respBody))
		os.Exit(1)
	}
}

func get(path string) {
	req, err := http.NewRequest(http.MethodGet, apiHost+path, nil)
	if err != nil {
		fmt.Printf("error building request: %v\n", err)
		os.Exit(1)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Printf("error connecting to control API: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	fmt.Println(string(body))
}
