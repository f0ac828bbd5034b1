package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/kestrelops/jitgate/internal/accessrequest"
	"github.com/kestrelops/jitgate/internal/client"
	"github.com/kestrelops/jitgate/internal/config"
	"github.com/kestrelops/jitgate/internal/requestform"
	"github.com/spf13/cobra"
)

func NewRequestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "request",
		Short: "Manage access requests",
	}

	cmd.AddCommand(
		newRequestNewCmd(),
		newRequestListCmd(),
		newRequestShowCmd(),
		newRequestApproveCmd(),
		newRequestDenyCmd(),
	)

	return cmd
}

func newRequestNewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "new",
		Short: "Create a new access request",
		RunE:  runRequestNew,
	}
	cmd.Flags().StringArrayP("role", "r", nil, "Role to request (repeatable)")
	cmd.Flags().StringArray("resource", nil, "Resource to request as kind/name (repeatable)")
	cmd.Flags().String("reason", "", "Reason for the request")
	cmd.Flags().Bool("no-input", false, "Submit directly without the interactive form")
	cmd.Flags().Duration("max-duration", 0, "Expiry offset for --no-input (0 = no expiry)")
	return cmd
}

func newRequestListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List access requests",
		RunE:  runRequestList,
	}
	cmd.Flags().String("status", "", "Filter by status (pending|approved|denied|expired)")
	return cmd
}

func newRequestShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one access request",
		Args:  cobra.ExactArgs(1),
		RunE:  runRequestShow,
	}
}

func newRequestApproveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "approve <id>",
		Short: "Approve an access request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRequestDecision(cmd, args[0], true)
		},
	}
	cmd.Flags().String("by", "", "Decision maker")
	cmd.Flags().String("note", "", "Decision note")
	_ = cmd.MarkFlagRequired("by")
	return cmd
}

func newRequestDenyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deny <id>",
		Short: "Deny an access request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRequestDecision(cmd, args[0], false)
		},
	}
	cmd.Flags().String("by", "", "Decision maker")
	cmd.Flags().String("note", "", "Decision note")
	_ = cmd.MarkFlagRequired("by")
	return cmd
}

func loadRequestClient() (*client.Client, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	return client.New(cfg.Cluster.ServerURL, cfg.Cluster.Token), cfg, nil
}

func parseResources(raw []string) ([]accessrequest.ResourceRef, error) {
	refs := make([]accessrequest.ResourceRef, 0, len(raw))
	for _, s := range raw {
		ref, err := accessrequest.ParseResourceRef(s)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

func runRequestNew(cmd *cobra.Command, args []string) error {
	roles, _ := cmd.Flags().GetStringArray("role")
	rawResources, _ := cmd.Flags().GetStringArray("resource")
	reason, _ := cmd.Flags().GetString("reason")
	noInput, _ := cmd.Flags().GetBool("no-input")
	maxDuration, _ := cmd.Flags().GetDuration("max-duration")

	if len(roles) == 0 && len(rawResources) == 0 {
		return fmt.Errorf("at least one --role or --resource is required")
	}
	resources, err := parseResources(rawResources)
	if err != nil {
		return err
	}

	c, cfg, err := loadRequestClient()
	if err != nil {
		return err
	}

	if noInput {
		return createDirect(cmd.Context(), c, cfg, roles, resources, reason, maxDuration)
	}

	var createdID string
	form := requestform.New(requestform.Params{
		ClusterID: cfg.Cluster.ID,
		Requester: cfg.Cluster.RequesterName(),
		Roles:     roles,
		Resources: resources,
		Reason:    reason,
		Service:   c,
		OnCreated: func(id string) { createdID = id },
	})

	if _, err := tea.NewProgram(form).Run(); err != nil {
		return fmt.Errorf("form failed: %w", err)
	}

	if createdID == "" {
		fmt.Println("No access request created.")
		return nil
	}
	fmt.Printf("Access request %s created.\n", createdID)
	return nil
}

func createDirect(ctx context.Context, c *client.Client, cfg *config.Config, roles []string, resources []accessrequest.ResourceRef, reason string, maxDuration time.Duration) error {
	var expiry *time.Time
	if maxDuration > 0 {
		t := time.Now().UTC().Add(maxDuration)
		expiry = &t
	}

	created, err := c.CreateAccessRequest(ctx, accessrequest.CreateInput{
		ClusterID:   cfg.Cluster.ID,
		Requester:   cfg.Cluster.RequesterName(),
		Roles:       roles,
		Resources:   resources,
		Reason:      reason,
		MaxDuration: expiry,
	})
	if err != nil {
		return err
	}
	fmt.Printf("Access request %s created.\n", created.ID)
	return nil
}

func runRequestList(cmd *cobra.Command, args []string) error {
	statusFilter, _ := cmd.Flags().GetString("status")

	c, _, err := loadRequestClient()
	if err != nil {
		return err
	}

	requests, err := c.ListRequests(cmd.Context(), accessrequest.Status(strings.TrimSpace(statusFilter)))
	if err != nil {
		return err
	}
	if len(requests) == 0 {
		fmt.Println("No access requests.")
		return nil
	}

	fmt.Print(renderRequestTable(requests))
	return nil
}

func renderRequestTable(requests []accessrequest.Request) string {
	// Styles matching the form's palette
	var (
		headerStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("#FAFAFA")).
				Background(lipgloss.Color("#8E4EC6")).
				Padding(0, 1).
				MarginBottom(1)

		// Column Widths
		wID        = 8
		wRequester = 14
		wRoles     = 22
		wStatus    = 10
		wExpires   = 22

		colHeaderStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#8E4EC6")).
				Bold(true).
				MarginRight(1)

		idStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Width(wID).
			MarginRight(1)

		requesterStyle = lipgloss.NewStyle().
				Width(wRequester).
				MarginRight(1)

		rolesStyle = lipgloss.NewStyle().
				Width(wRoles).
				MarginRight(1)

		statusStyleBase = lipgloss.NewStyle().
				Width(wStatus).
				MarginRight(1)

		expiresStyle = lipgloss.NewStyle().
				Width(wExpires).
				MarginRight(1)

		pendingColor = lipgloss.Color("#D7A93D")
		settledColor = lipgloss.Color("241")
	)

	var b strings.Builder
	b.WriteString(headerStyle.Render("Access Requests"))
	b.WriteByte('\n')

	headers := lipgloss.JoinHorizontal(lipgloss.Top,
		colHeaderStyle.Width(wID).Render("ID"),
		colHeaderStyle.Width(wRequester).Render("REQUESTER"),
		colHeaderStyle.Width(wRoles).Render("ROLES"),
		colHeaderStyle.Width(wStatus).Render("STATUS"),
		colHeaderStyle.Width(wExpires).Render("EXPIRES"),
	)
	fmt.Fprintf(&b, "  %s\n", headers)

	sepStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("240")).MarginRight(1)
	separator := lipgloss.JoinHorizontal(lipgloss.Top,
		sepStyle.Render(strings.Repeat("─", wID)),
		sepStyle.Render(strings.Repeat("─", wRequester)),
		sepStyle.Render(strings.Repeat("─", wRoles)),
		sepStyle.Render(strings.Repeat("─", wStatus)),
		sepStyle.Render(strings.Repeat("─", wExpires)),
	)
	fmt.Fprintf(&b, "  %s\n", separator)

	for _, req := range requests {
		expires := "-"
		if req.MaxDuration != nil {
			expires = req.MaxDuration.Format("2006-01-02 15:04:05")
		}

		sColor := settledColor
		if req.Status == accessrequest.StatusPending {
			sColor = pendingColor
		}

		row := lipgloss.JoinHorizontal(lipgloss.Top,
			idStyle.Render(req.ID),
			requesterStyle.Render(truncate(req.Requester, wRequester)),
			rolesStyle.Render(truncate(strings.Join(req.Roles, ","), wRoles)),
			statusStyleBase.Foreground(sColor).Render(string(req.Status)),
			expiresStyle.Render(expires),
		)
		fmt.Fprintf(&b, "  %s\n", row)
	}
	b.WriteByte('\n')

	return b.String()
}

func runRequestShow(cmd *cobra.Command, args []string) error {
	c, _, err := loadRequestClient()
	if err != nil {
		return err
	}

	request, err := c.GetRequest(cmd.Context(), strings.TrimSpace(args[0]))
	if err != nil {
		return err
	}

	md := requestMarkdown(request)
	rendered, err := glamour.Render(md, "dark")
	if err != nil {
		// Fall back to the raw markdown when the terminal renderer is unavailable.
		fmt.Println(md)
		return nil
	}
	fmt.Print(rendered)
	return nil
}

func requestMarkdown(req accessrequest.Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Access request %s\n\n", req.ID)
	fmt.Fprintf(&b, "- **Cluster**: %s\n", req.ClusterID)
	fmt.Fprintf(&b, "- **Requester**: %s\n", req.Requester)
	fmt.Fprintf(&b, "- **Status**: %s\n", req.Status)
	if len(req.Roles) > 0 {
		fmt.Fprintf(&b, "- **Roles**: %s\n", strings.Join(req.Roles, ", "))
	}
	if len(req.Resources) > 0 {
		refs := make([]string, 0, len(req.Resources))
		for _, res := range req.Resources {
			refs = append(refs, res.String())
		}
		fmt.Fprintf(&b, "- **Resources**: %s\n", strings.Join(refs, ", "))
	}
	if req.MaxDuration != nil {
		fmt.Fprintf(&b, "- **Expires**: %s\n", req.MaxDuration.Format(time.RFC3339))
	} else {
		b.WriteString("- **Expires**: never\n")
	}
	fmt.Fprintf(&b, "- **Requested**: %s\n", req.RequestedAt.Format(time.RFC3339))
	if req.Reason != "" {
		fmt.Fprintf(&b, "\n## Reason\n\n%s\n", req.Reason)
	}
	if req.DecidedBy != "" {
		fmt.Fprintf(&b, "\n## Decision\n\n%s by %s at %s\n",
			req.Status, req.DecidedBy, req.DecidedAt.Format(time.RFC3339))
		if req.DecisionNote != "" {
			fmt.Fprintf(&b, "\n> %s\n", req.DecisionNote)
		}
	}
	return b.String()
}

func runRequestDecision(cmd *cobra.Command, id string, approve bool) error {
	c, _, err := loadRequestClient()
	if err != nil {
		return err
	}

	by, _ := cmd.Flags().GetString("by")
	note, _ := cmd.Flags().GetString("note")
	if strings.TrimSpace(by) == "" {
		return fmt.Errorf("--by is required")
	}

	decision := accessrequest.DecisionInput{
		DecidedBy: strings.TrimSpace(by),
		Note:      strings.TrimSpace(note),
	}

	if approve {
		if _, err := c.ApproveRequest(cmd.Context(), id, decision); err != nil {
			return err
		}
		fmt.Printf("Request %s approved.\n", id)
		return nil
	}

	if _, err := c.DenyRequest(cmd.Context(), id, decision); err != nil {
		return err
	}
	fmt.Printf("Request %s denied.\n", id)
	return nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
