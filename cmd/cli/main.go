package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var apiURL string
	root := &cobra.Command{
		Use:           "tenantctl",
		Short:         "Administer tenantcore tenants",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&apiURL, "api", getAPIURL(), "tenantcore API base URL")

	client := func() *apiClient { return newAPIClient(apiURL, loadToken()) }
	root.AddCommand(newTenantsCmd(client), newTokenCmd())
	return root
}
