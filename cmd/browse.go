package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/docrelay/internal/formatter"
	"github.com/desertthunder/docrelay/internal/models"
	"github.com/urfave/cli/v3"
)

// Folders lists Drive folders, one page at a time unless --all is set.
func (r *Runner) Folders(ctx context.Context, cmd *cli.Command) error {
	g, err := r.gateway(ctx)
	if err != nil {
		return err
	}

	var page models.FolderPage
	if cmd.Bool("all") {
		r.logger.Info("listing every folder")
		page.Folders, err = g.ListAllFolders(ctx)
	} else {
		r.logger.Info("listing folders", "page_token", cmd.String("page-token"))
		page, err = g.ListFolders(ctx, cmd.String("page-token"))
	}
	if err != nil {
		return fmt.Errorf("failed to list folders: %w", err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(page, cmd.Bool("pretty"))
	}

	r.writePlainHeader(fmt.Sprintf("Folders (%d)", len(page.Folders)))
	r.output.Write(formatter.FoldersToText(page.Folders))
	if page.NextPageToken != "" {
		r.writePlainln("More folders available: --page-token %s", page.NextPageToken)
	}
	return nil
}

// Files lists the allowed documents directly inside a folder.
func (r *Runner) Files(ctx context.Context, cmd *cli.Command) error {
	g, err := r.gateway(ctx)
	if err != nil {
		return err
	}

	folderID := cmd.String("folder")

	var page models.FilePage
	if cmd.Bool("all") {
		r.logger.Info("listing every file", "folder", folderID)
		page.Files, err = g.ListAllFiles(ctx, folderID)
	} else {
		r.logger.Info("listing files", "folder", folderID, "page_token", cmd.String("page-token"))
		page, err = g.ListFiles(ctx, folderID, cmd.String("page-token"))
	}
	if err != nil {
		return fmt.Errorf("failed to list files in %s: %w", folderID, err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(page, cmd.Bool("pretty"))
	}

	r.writePlainHeader(fmt.Sprintf("Files in %s (%d)", folderID, len(page.Files)))
	r.output.Write(formatter.FilesToText(page.Files))
	if page.NextPageToken != "" {
		r.writePlainln("More files available: --page-token %s", page.NextPageToken)
	}
	return nil
}
