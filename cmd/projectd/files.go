package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/projectd/internal/state"
)

var (
	// files command flags
	filesIncludeDeleted bool
	filesPattern        string
	filesInclude        []string
	filesExclude        []string
)

func init() {
	rootCmd.AddCommand(filesCmd)

	filesCmd.Flags().BoolVar(&filesIncludeDeleted, "include-deleted", false, "Also list soft-deleted files")
	filesCmd.Flags().StringVar(&filesPattern, "pattern", "", "Regular expression matched against file paths")
	filesCmd.Flags().StringSliceVar(&filesInclude, "include", nil, "Restrict output to these paths")
	filesCmd.Flags().StringSliceVar(&filesExclude, "exclude", nil, "Drop these paths from the output")
}

var filesCmd = &cobra.Command{
	Use:   "files <project-id>",
	Short: "List a project's files",
	Long: `List the files stored on a project record. Soft-deleted files are
hidden unless --include-deleted is set.

Examples:
  # List live files
  projectd files 2f9f3f1e-8a3c-4c9e-9d7b-0f6a4a8b9c21

  # Include soft-deleted files
  projectd files 2f9f3f1e-8a3c-4c9e-9d7b-0f6a4a8b9c21 --include-deleted

  # Only Go sources
  projectd files 2f9f3f1e-8a3c-4c9e-9d7b-0f6a4a8b9c21 --pattern '\.go$'

  # Specific paths, full content as JSON
  projectd files 2f9f3f1e-8a3c-4c9e-9d7b-0f6a4a8b9c21 \
    --include src/main.go --include src/util.go --json`,
	Args: cobra.ExactArgs(1),
	RunE: runFiles,
}

func runFiles(cmd *cobra.Command, args []string) error {
	mgr, logger, err := initManager()
	if err != nil {
		return err
	}
	defer closeManager(mgr, logger)

	files, err := mgr.GetProjectFiles(context.Background(), args[0], state.FileFilter{
		IncludeDeleted: filesIncludeDeleted,
		IncludePaths:   filesInclude,
		ExcludePaths:   filesExclude,
		Pattern:        filesPattern,
	}, tenantScope)
	if err != nil {
		return fmt.Errorf("failed to list files: %w", err)
	}

	if jsonOutput {
		return outputJSON(files)
	}

	if len(files) == 0 {
		fmt.Println("No files found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PATH\tSIZE\tSTATUS\tUPDATED")
	for _, f := range files {
		status := "live"
		if f.IsDeleted {
			status = "deleted"
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\n",
			truncate(f.Path, 50),
			len(f.Content),
			status,
			formatMillis(f.UpdatedAt),
		)
	}
	w.Flush()

	fmt.Printf("\n%d file(s)\n", len(files))
	return nil
}
