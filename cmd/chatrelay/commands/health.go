package commands

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
)

// newHealthCmd creates the `chatrelay health` command.
// Used by Docker HEALTHCHECK and process supervisors.
func newHealthCmd(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Print the service health status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			status := map[string]string{"status": "ok", "version": version}
			if _, _, err := loadConfig(cmd); err != nil {
				status["status"] = "error"
				status["error"] = err.Error()
			}
			return json.NewEncoder(os.Stdout).Encode(status)
		},
	}
}
