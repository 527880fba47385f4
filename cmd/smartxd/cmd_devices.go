package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/smartx-rfid/smartx/pkg/cli"
)

var serverAddr string

func newDevicesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List devices on a running daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDevices()
		},
	}
	cmd.Flags().StringVar(&serverAddr, "addr", "http://127.0.0.1:5000", "daemon address")
	return cmd
}

func runDevices() error {
	c := &http.Client{Timeout: 5 * time.Second}

	var names []string
	if err := getJSON(c, "/api/devices/get_device_list", &names); err != nil {
		return fmt.Errorf("querying %s: %w", serverAddr, err)
	}

	tbl := cli.NewTable(os.Stdout, "NAME", "READER", "CONNECTION", "STATE")
	for _, name := range names {
		var cfg struct {
			Reader     string `json:"READER"`
			Connection string `json:"CONNECTION"`
		}
		if err := getJSON(c, "/api/devices/get_device_config/"+url.PathEscape(name), &cfg); err != nil {
			return err
		}
		var st struct {
			State int `json:"state"`
		}
		if err := getJSON(c, "/api/rfid/get_device_state/"+url.PathEscape(name), &st); err != nil {
			return err
		}
		tbl.Row(name, cfg.Reader, cfg.Connection, cli.StateLabel(st.State))
	}
	tbl.Flush()
	if len(names) == 0 {
		fmt.Println("no devices configured")
	}
	return nil
}

func getJSON(c *http.Client, path string, out interface{}) error {
	resp, err := c.Get(serverAddr + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
