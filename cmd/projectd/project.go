package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/projectd/internal/project"
	"github.com/fyrsmithlabs/projectd/internal/state"
)

var (
	// create command flags
	createName         string
	createRequirements string
	createUserID       string

	// list command flags
	listUserID string
	listLimit  int
	listOffset int
	listSort   string
	listOrder  string
)

func init() {
	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(deleteCmd)

	createCmd.Flags().StringVar(&createName, "name", "", "Project name (required)")
	createCmd.Flags().StringVar(&createRequirements, "requirements", "", "Initial requirements content")
	createCmd.Flags().StringVar(&createUserID, "user-id", "", "Owning user recorded on the project")
	_ = createCmd.MarkFlagRequired("name")

	listCmd.Flags().StringVar(&listUserID, "user-id", "", "Filter by owning user")
	listCmd.Flags().IntVar(&listLimit, "limit", 20, "Maximum number of projects to return")
	listCmd.Flags().IntVar(&listOffset, "offset", 0, "Number of projects to skip")
	listCmd.Flags().StringVar(&listSort, "sort", "createdAt", "Sort field: createdAt or updatedAt")
	listCmd.Flags().StringVar(&listOrder, "order", "desc", "Sort direction: asc or desc")
}

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new project",
	Long: `Create a new project record in the configured storage backend.

Examples:
  # Create a project
  projectd create --name "billing service"

  # Create with seeded requirements and an owner
  projectd create --name "billing service" \
    --requirements "invoice export with CSV download" \
    --user-id user-42

  # Create scoped to a tenant
  projectd create --name "internal tools" --tenant-id acme`,
	RunE: runCreate,
}

var getCmd = &cobra.Command{
	Use:   "get <project-id>",
	Short: "Show a project",
	Long: `Show a project record by id.

Examples:
  # Show a project summary
  projectd get 2f9f3f1e-8a3c-4c9e-9d7b-0f6a4a8b9c21

  # Full record as JSON
  projectd get 2f9f3f1e-8a3c-4c9e-9d7b-0f6a4a8b9c21 --json`,
	Args: cobra.ExactArgs(1),
	RunE: runGet,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List projects",
	Long: `List project records, newest first by default.

Examples:
  # List the 20 newest projects
  projectd list

  # List projects owned by a user
  projectd list --user-id user-42

  # Page through oldest first
  projectd list --sort createdAt --order asc --limit 10 --offset 10`,
	RunE: runList,
}

var deleteCmd = &cobra.Command{
	Use:   "delete <project-id>",
	Short: "Delete a project",
	Long: `Delete a project record, its listing entry, and any externalized
file chunks. Deleting a missing project is not an error.

Examples:
  # Delete a project
  projectd delete 2f9f3f1e-8a3c-4c9e-9d7b-0f6a4a8b9c21`,
	Args: cobra.ExactArgs(1),
	RunE: runDelete,
}

func runCreate(cmd *cobra.Command, args []string) error {
	if createName == "" {
		return fmt.Errorf("--name is required")
	}

	mgr, logger, err := initManager()
	if err != nil {
		return err
	}
	defer closeManager(mgr, logger)

	p, err := mgr.CreateProject(context.Background(), project.CreateOptions{
		Name:                createName,
		InitialRequirements: createRequirements,
		UserID:              createUserID,
		TenantID:            tenantScope,
	})
	if err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}

	if jsonOutput {
		return outputJSON(p)
	}

	fmt.Printf("Project created\n")
	fmt.Printf("ID: %s\n", p.ID)
	fmt.Printf("Name: %s\n", p.Name)
	fmt.Printf("Created: %s\n", formatMillis(p.CreatedAt))
	fmt.Printf("Backend: %s\n", mgr.Backend())
	return nil
}

func runGet(cmd *cobra.Command, args []string) error {
	mgr, logger, err := initManager()
	if err != nil {
		return err
	}
	defer closeManager(mgr, logger)

	p, err := mgr.GetProject(context.Background(), args[0], tenantScope)
	if err != nil {
		return fmt.Errorf("failed to get project: %w", err)
	}

	if jsonOutput {
		return outputJSON(p)
	}

	live := 0
	for _, f := range p.Files {
		if !f.IsDeleted {
			live++
		}
	}

	fmt.Printf("ID: %s\n", p.ID)
	fmt.Printf("Name: %s\n", p.Name)
	fmt.Printf("Created: %s\n", formatMillis(p.CreatedAt))
	fmt.Printf("Updated: %s\n", formatMillis(p.UpdatedAt))
	fmt.Printf("Files: %d live, %d total\n", live, len(p.Files))
	fmt.Printf("Requirements: %d\n", len(p.Requirements))
	fmt.Printf("Deployments: %d\n", len(p.Deployments))
	if p.CurrentDeploymentID != "" {
		fmt.Printf("Current Deployment: %s\n", p.CurrentDeploymentID)
	}
	if p.TenantID != "" {
		fmt.Printf("Tenant: %s\n", p.TenantID)
	}
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	mgr, logger, err := initManager()
	if err != nil {
		return err
	}
	defer closeManager(mgr, logger)

	res, err := mgr.ListProjects(context.Background(), state.ListOptions{
		UserID:        listUserID,
		TenantID:      tenantScope,
		Limit:         listLimit,
		Offset:        listOffset,
		SortBy:        listSort,
		SortDirection: listOrder,
	})
	if err != nil {
		return fmt.Errorf("failed to list projects: %w", err)
	}

	if jsonOutput {
		return outputJSON(res)
	}

	if len(res.Projects) == 0 {
		fmt.Println("No projects found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tFILES\tCREATED\tUPDATED")
	for _, p := range res.Projects {
		live := 0
		for _, f := range p.Files {
			if !f.IsDeleted {
				live++
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
			truncate(p.ID, 12),
			truncate(p.Name, 30),
			live,
			formatMillis(p.CreatedAt),
			formatMillis(p.UpdatedAt),
		)
	}
	w.Flush()

	fmt.Printf("\n%d of %d project(s)\n", len(res.Projects), res.Total)
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	mgr, logger, err := initManager()
	if err != nil {
		return err
	}
	defer closeManager(mgr, logger)

	found, err := mgr.DeleteProject(context.Background(), args[0], tenantScope)
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}

	if jsonOutput {
		return outputJSON(map[string]bool{"deleted": found})
	}

	if !found {
		fmt.Println("Project not found")
		return nil
	}
	fmt.Println("Project deleted")
	return nil
}
