package main

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

func newClearCommand() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Clear every cache tier on a running instance",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClear(addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "http://localhost:9090", "admin server base address")
	return cmd
}

func runClear(addr string) error {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Post(addr+"/cache/clear", "application/json", nil)
	if err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("admin server returned %d: %s", resp.StatusCode, body)
	}
	fmt.Println(string(body))
	return nil
}
