package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

var (
	reportAddr string
	reportType string
	reportLat  float64
	reportLon  float64
	reportPrio string
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Inject a test emergency report into a running service",
	RunE:  runReport,
}

func init() {
	reportCmd.Flags().StringVar(&reportAddr, "addr", "http://localhost:8080", "service base URL")
	reportCmd.Flags().StringVar(&reportType, "type", "fire", "emergency type")
	reportCmd.Flags().Float64Var(&reportLat, "lat", 0, "latitude")
	reportCmd.Flags().Float64Var(&reportLon, "lon", 0, "longitude")
	reportCmd.Flags().StringVar(&reportPrio, "priority", "", "priority override")
	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, args []string) error {
	body, err := json.Marshal(map[string]any{
		"type":      reportType,
		"latitude":  reportLat,
		"longitude": reportLon,
		"priority":  reportPrio,
	})
	if err != nil {
		return err
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Post(reportAddr+"/api/emergencies", "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("post report: %w", err)
	}
	defer resp.Body.Close()

	out, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("report rejected (%d): %s", resp.StatusCode, out)
	}
	fmt.Println(string(bytes.TrimSpace(out)))
	return nil
}
