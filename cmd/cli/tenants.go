package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/aryan0dhankhar/tenantcore/internal/domain"
	"github.com/aryan0dhankhar/tenantcore/internal/handler"
	"github.com/aryan0dhankhar/tenantcore/internal/repository"
	"github.com/aryan0dhankhar/tenantcore/internal/security/auth"
)

func newTenantsCmd(client func() *apiClient) *cobra.Command {
	cmd := &cobra.Command{Use: "tenants", Short: "Manage tenants"}

	var (
		in             domain.CreateTenantInput
		email          string
		idempotencyKey string
	)
	create := &cobra.Command{
		Use:   "create",
		Short: "Register a tenant",
		RunE: func(cmd *cobra.Command, _ []string) error {
			in.PrimaryEmail = domain.StringPtr(email)
			var t domain.Tenant
			headers := []string{}
			if idempotencyKey != "" {
				headers = append(headers, handler.IdempotencyKeyHeader, idempotencyKey)
			}
			if err := client().do(http.MethodPost, "/api/tenants", in, &t, headers...); err != nil {
				return err
			}
			return printTenants(cmd.OutOrStdout(), &t)
		},
	}
	create.Flags().StringVar(&in.Name, "name", "", "tenant name")
	create.Flags().StringVar(&in.Subdomain, "subdomain", "", "tenant subdomain")
	create.Flags().StringVar(&email, "email", "", "primary email")
	create.Flags().StringVar(&idempotencyKey, "idempotency-key", "", "make the request safe to retry")
	_ = create.MarkFlagRequired("name")
	_ = create.MarkFlagRequired("subdomain")

	get := &cobra.Command{
		Use:   "get <id>",
		Short: "Show one tenant as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var t domain.Tenant
			if err := client().do(http.MethodGet, "/api/tenants/"+url.PathEscape(args[0]), nil, &t); err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(t)
		},
	}

	var (
		page, pageSize int
		status, search string
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List tenants",
		RunE: func(cmd *cobra.Command, _ []string) error {
			q := url.Values{}
			if page > 0 {
				q.Set("page", strconv.Itoa(page))
			}
			if pageSize > 0 {
				q.Set("pageSize", strconv.Itoa(pageSize))
			}
			if status != "" {
				q.Set("status", status)
			}
			if search != "" {
				q.Set("search", search)
			}
			var out repository.Page[domain.Tenant]
			if err := client().do(http.MethodGet, "/api/tenants?"+q.Encode(), nil, &out); err != nil {
				return err
			}
			if err := printTenants(cmd.OutOrStdout(), out.Items...); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "page %d/%d, %d total\n", out.Page, out.TotalPages, out.Total)
			return nil
		},
	}
	list.Flags().IntVar(&page, "page", 0, "page number")
	list.Flags().IntVar(&pageSize, "page-size", 0, "page size")
	list.Flags().StringVar(&status, "status", "", "filter by status")
	list.Flags().StringVar(&search, "search", "", "match name or subdomain")

	setStatus := &cobra.Command{
		Use:   "status <id> <PENDING|ACTIVE|SUSPENDED|TERMINATED>",
		Short: "Move a tenant through its lifecycle",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var t domain.Tenant
			body := map[string]string{"status": args[1]}
			if err := client().do(http.MethodPut, "/api/tenants/"+url.PathEscape(args[0])+"/status", body, &t); err != nil {
				return err
			}
			return printTenants(cmd.OutOrStdout(), &t)
		},
	}

	var notes string
	verify := &cobra.Command{
		Use:   "verify <id> <PENDING|VERIFIED|REJECTED>",
		Short: "Record a verification decision",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{"status": args[1]}
			if notes != "" {
				body["notes"] = notes
			}
			var t domain.Tenant
			if err := client().do(http.MethodPut, "/api/tenants/"+url.PathEscape(args[0])+"/verification", body, &t); err != nil {
				return err
			}
			return printTenants(cmd.OutOrStdout(), &t)
		},
	}
	verify.Flags().StringVar(&notes, "notes", "", "reviewer notes")

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a tenant and its addresses and contacts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := client().do(http.MethodDelete, "/api/tenants/"+url.PathEscape(args[0]), nil, nil); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "tenant %s deleted\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(create, get, list, setStatus, verify, del)
	return cmd
}

func printTenants(out io.Writer, tenants ...*domain.Tenant) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSUBDOMAIN\tSTATUS\tVERIFICATION\tACTIVE")
	for _, t := range tenants {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%t\n", t.ID, t.Name, t.Subdomain, t.Status, t.Verification.Status, t.IsActive)
	}
	return w.Flush()
}

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "token", Short: "Work with API tokens"}

	var (
		secret, issuer, subject, tenantID, role string
		ttl                                     time.Duration
		save                                    bool
	)
	mint := &cobra.Command{
		Use:   "mint",
		Short: "Sign a token locally with the server's JWT secret",
		RunE: func(cmd *cobra.Command, _ []string) error {
			tok, err := auth.NewTokenManager(secret, issuer).Generate(subject, tenantID, role, ttl)
			if err != nil {
				return err
			}
			if save {
				if err := saveToken(tok); err != nil {
					return fmt.Errorf("save token: %w", err)
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	mint.Flags().StringVar(&secret, "secret", os.Getenv("JWT_SECRET"), "signing secret")
	mint.Flags().StringVar(&issuer, "issuer", "tenantcore", "token issuer")
	mint.Flags().StringVar(&subject, "subject", "tenantctl", "token subject")
	mint.Flags().StringVar(&tenantID, "tenant", "", "tenant id claim")
	mint.Flags().StringVar(&role, "role", auth.RoleAdmin, "role claim")
	mint.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	mint.Flags().BoolVar(&save, "save", false, "store the token for later commands")

	cmd.AddCommand(mint)
	return cmd
}
