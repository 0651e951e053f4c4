package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"printshelf/internal/api"
	"printshelf/internal/cache"
	"printshelf/internal/ledger"
	"printshelf/internal/request"
)

// withEnv runs fn with command collaborators and a context cancelled on
// interrupt. Each invocation owns its own request manager.
func withEnv(cmd *cobra.Command, app *App, fn func(ctx context.Context, e *env, reqs *request.Manager) error) error {
	e, cleanup, err := app.newEnv(false)
	if err != nil {
		return writeErr(cmd, err)
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()
	reqs := request.NewManager(e.logger)
	defer reqs.Close()

	if err := fn(ctx, e, reqs); err != nil {
		return writeErr(cmd, err)
	}
	return nil
}

// resultErr turns a non-OK result into an error for command output.
func resultErr[T any](r request.Result[T]) error {
	switch {
	case r.OK():
		return nil
	case r.Cancelled():
		return context.Canceled
	default:
		return r.Err
	}
}

func parseID(s, what string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", what, s)
	}
	return id, nil
}

func newBrowseCmd(app *App) *cobra.Command {
	var page, perPage int

	cmd := &cobra.Command{
		Use:   "browse [path]",
		Short: "List the folders and projects under a library path",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			return withEnv(cmd, app, func(ctx context.Context, e *env, reqs *request.Manager) error {
				var (
					contents request.Result[*api.FolderContents]
					crumbs   request.Result[[]api.BreadcrumbItem]
				)
				g, gctx := errgroup.WithContext(ctx)
				g.Go(func() error {
					contents = request.Issue(reqs, gctx, request.ChannelFolder, func(ctx context.Context) (*api.FolderContents, error) {
						return e.client.FolderContents(ctx, path, page, perPage)
					})
					return resultErr(contents)
				})
				g.Go(func() error {
					crumbs = request.Issue(reqs, gctx, request.ChannelBreadcrumb, func(ctx context.Context) ([]api.BreadcrumbItem, error) {
						return e.client.Breadcrumb(ctx, path)
					})
					// The trail is cosmetic; the listing is still worth printing.
					if crumbs.Failed() {
						e.logger.Warn("breadcrumb unavailable", "path", path, "err", crumbs.Err)
					}
					return nil
				})
				if err := g.Wait(); err != nil {
					return err
				}
				trail := crumbs.Value
				if trail == nil {
					trail = []api.BreadcrumbItem{}
				}
				return writeOut(cmd, app, map[string]any{
					"path":       contents.Value.CurrentPath,
					"breadcrumb": trail,
					"data":       contents.Value,
				})
			})
		},
	}

	cmd.Flags().IntVar(&page, "page", 0, "Page (server default when 0)")
	cmd.Flags().IntVar(&perPage, "per-page", 0, "Items per page (server default when 0)")
	return cmd
}

func newSearchCmd(app *App) *cobra.Command {
	var (
		tags    []string
		page    int
		perPage int
	)

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search projects by text and tags",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params := api.SearchParams{Tags: tags, Page: page, PerPage: perPage}
			if len(args) == 1 {
				params.Query = args[0]
			}
			return withEnv(cmd, app, func(ctx context.Context, e *env, reqs *request.Manager) error {
				res := request.Issue(reqs, ctx, request.ChannelSearch, func(ctx context.Context) (*api.SearchResponse, error) {
					return e.client.Search(ctx, params)
				})
				if err := resultErr(res); err != nil {
					return err
				}
				return writeOut(cmd, app, res.Value)
			})
		},
	}

	cmd.Flags().StringSliceVar(&tags, "tag", nil, "Filter by tag (repeatable)")
	cmd.Flags().IntVar(&page, "page", 1, "Result page")
	cmd.Flags().IntVar(&perPage, "per-page", searchPerPage, "Results per page")
	return cmd
}

func newProjectCmd(app *App) *cobra.Command {
	var children bool

	cmd := &cobra.Command{
		Use:   "project [id]",
		Short: "Show a project with its tile metadata (root projects when no id)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, app, func(ctx context.Context, e *env, reqs *request.Manager) error {
				if len(args) == 0 {
					projects, err := e.client.RootProjects(ctx)
					if err != nil {
						return err
					}
					return writeOut(cmd, app, map[string]any{"data": projects})
				}
				id, err := parseID(args[0], "project id")
				if err != nil {
					return err
				}

				var (
					detail request.Result[*api.ProjectDetail]
					files  request.Result[*api.FilesPage]
					kids   []api.Project
				)
				g, gctx := errgroup.WithContext(ctx)
				g.Go(func() error {
					detail = request.Issue(reqs, gctx, request.ChannelProject, func(ctx context.Context) (*api.ProjectDetail, error) {
						return e.client.Project(ctx, id)
					})
					return resultErr(detail)
				})
				g.Go(func() error {
					files = request.Issue(reqs, gctx, request.ChannelFiles, func(ctx context.Context) (*api.FilesPage, error) {
						return e.client.ProjectFiles(ctx, id, 1, api.DefaultFilesPerPage)
					})
					return resultErr(files)
				})
				if children {
					g.Go(func() error {
						var err error
						kids, err = e.client.ProjectChildren(gctx, id)
						return err
					})
				}
				if err := g.Wait(); err != nil {
					return err
				}

				out := map[string]any{
					"data":     detail.Value,
					"metadata": cache.Compute(*detail.Value, files.Value.STLFiles),
				}
				if children {
					out["children"] = kids
				}
				return writeOut(cmd, app, out)
			})
		},
	}

	cmd.Flags().BoolVar(&children, "children", false, "Include direct child projects")
	return cmd
}

func newFilesCmd(app *App) *cobra.Command {
	var page, perPage int

	cmd := &cobra.Command{
		Use:   "files <project-id>",
		Short: "List a project's STL files and one page of its images",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "project id")
			if err != nil {
				return writeErr(cmd, err)
			}
			return withEnv(cmd, app, func(ctx context.Context, e *env, reqs *request.Manager) error {
				res := request.Issue(reqs, ctx, request.ChannelFiles, func(ctx context.Context) (*api.FilesPage, error) {
					return e.client.ProjectFiles(ctx, id, page, perPage)
				})
				if err := resultErr(res); err != nil {
					return err
				}
				return writeOut(cmd, app, map[string]any{
					"data":        res.Value,
					"total_pages": res.Value.TotalPages(),
				})
			})
		},
	}

	cmd.Flags().IntVar(&page, "page", 1, "Image page")
	cmd.Flags().IntVar(&perPage, "per-page", api.DefaultFilesPerPage, "Images per page")
	return cmd
}

func newTagsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tags",
		Short: "Tag commands",
	}
	cmd.AddCommand(newTagsListCmd(app))
	cmd.AddCommand(newTagsAutocompleteCmd(app))
	cmd.AddCommand(newTagsCreateCmd(app))
	cmd.AddCommand(newTagsAddCmd(app))
	cmd.AddCommand(newTagsRemoveCmd(app))
	return cmd
}

func newTagsListCmd(app *App) *cobra.Command {
	var params api.TagListParams

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tags",
		RunE: func(cmd *cobra.Command, args []string) error {
			if params.SortBy != "" && params.SortBy != "name" && params.SortBy != "usage" {
				return writeErr(cmd, fmt.Errorf("--sort must be name or usage, got %q", params.SortBy))
			}
			return withEnv(cmd, app, func(ctx context.Context, e *env, reqs *request.Manager) error {
				tags, err := e.client.Tags(ctx, params)
				if err != nil {
					return err
				}
				return writeOut(cmd, app, map[string]any{"data": tags})
			})
		},
	}

	cmd.Flags().StringVar(&params.Query, "q", "", "Name filter")
	cmd.Flags().StringVar(&params.SortBy, "sort", "name", "Sort order (name|usage)")
	return cmd
}

func newTagsAutocompleteCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "autocomplete <prefix>",
		Short: "Suggest tags starting with a prefix",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, app, func(ctx context.Context, e *env, reqs *request.Manager) error {
				res := request.Issue(reqs, ctx, request.ChannelTags, func(ctx context.Context) ([]api.Tag, error) {
					return e.client.AutocompleteTags(ctx, args[0])
				})
				if err := resultErr(res); err != nil {
					return err
				}
				return writeOut(cmd, app, map[string]any{"data": res.Value})
			})
		},
	}
}

func newTagsCreateCmd(app *App) *cobra.Command {
	var color string

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a tag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, app, func(ctx context.Context, e *env, reqs *request.Manager) error {
				tag, err := e.client.CreateTag(ctx, args[0], color)
				if err != nil {
					return err
				}
				return writeOut(cmd, app, map[string]any{"data": tag})
			})
		},
	}

	cmd.Flags().StringVar(&color, "color", "", "Tag color (#rrggbb)")
	return cmd
}

func newTagsAddCmd(app *App) *cobra.Command {
	var color string

	cmd := &cobra.Command{
		Use:   "add <project-id> <name>",
		Short: "Tag a project, creating the tag if needed",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "project id")
			if err != nil {
				return writeErr(cmd, err)
			}
			return withEnv(cmd, app, func(ctx context.Context, e *env, reqs *request.Manager) error {
				tags, err := e.client.AddProjectTag(ctx, id, args[1], color)
				if err != nil {
					return err
				}
				return writeOut(cmd, app, map[string]any{"tags": tags})
			})
		},
	}

	cmd.Flags().StringVar(&color, "color", "", "Color for a newly created tag (#rrggbb)")
	return cmd
}

func newTagsRemoveCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <project-id> <name>",
		Short: "Remove a tag from a project",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "project id")
			if err != nil {
				return writeErr(cmd, err)
			}
			return withEnv(cmd, app, func(ctx context.Context, e *env, reqs *request.Manager) error {
				tags, err := e.client.RemoveProjectTag(ctx, id, args[1])
				if err != nil {
					return err
				}
				return writeOut(cmd, app, map[string]any{"tags": tags})
			})
		},
	}
}

func newScanCmd(app *App) *cobra.Command {
	var (
		req      api.ScanRequest
		watch    bool
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Start a library scan",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, app, func(ctx context.Context, e *env, reqs *request.Manager) error {
				st, err := e.client.StartScan(ctx, req)
				if err != nil {
					return err
				}
				if watch {
					st, err = watchScan(ctx, e, reqs, st, interval)
					if err != nil {
						return err
					}
				}
				return writeOut(cmd, app, st)
			})
		},
	}

	cmd.Flags().BoolVar(&req.Force, "force", false, "Rescan files even when unchanged")
	cmd.Flags().BoolVar(&req.Clean, "clean", false, "Remove projects whose folders are gone")
	cmd.Flags().BoolVar(&watch, "watch", false, "Poll until the scan finishes")
	cmd.Flags().DurationVar(&interval, "interval", scanPollInterval, "Polling interval with --watch")

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the current scan status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, app, func(ctx context.Context, e *env, reqs *request.Manager) error {
				st, err := e.client.ScanStatus(ctx)
				if err != nil {
					return err
				}
				return writeOut(cmd, app, st)
			})
		},
	})
	return cmd
}

// watchScan polls the scan status until the server reports it finished.
func watchScan(ctx context.Context, e *env, reqs *request.Manager, st *api.ScanStatus, interval time.Duration) (*api.ScanStatus, error) {
	if interval <= 0 {
		interval = scanPollInterval
	}
	for st.IsScanning {
		e.logger.Info("scan running", "projects", countOf(st.ProjectsFound), "files", countOf(st.FilesProcessed))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}
		res := request.Issue(reqs, ctx, request.ChannelScan, func(ctx context.Context) (*api.ScanStatus, error) {
			return e.client.ScanStatus(ctx)
		})
		if err := resultErr(res); err != nil {
			return nil, err
		}
		st = res.Value
	}
	return st, nil
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change server and local settings",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get",
		Short: "Show the server library configuration and local settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, app, func(ctx context.Context, e *env, reqs *request.Manager) error {
				server, err := e.client.Config(ctx)
				if err != nil {
					return err
				}
				return writeOut(cmd, app, map[string]any{
					"server": server,
					"local":  e.cfg,
					"path":   e.cfg.FilePath(),
				})
			})
		},
	})

	var local bool
	set := &cobra.Command{
		Use:   "set <field> <value>",
		Short: "Change a server setting (root_path, stl_thumb_path, cache_max_size_mb, images_per_page) or, with --local, a local one",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			field, value := args[0], args[1]
			return withEnv(cmd, app, func(ctx context.Context, e *env, reqs *request.Manager) error {
				if local {
					if err := e.cfg.Set(field, value); err != nil {
						return err
					}
					if err := e.cfg.Save(); err != nil {
						return err
					}
					return writeOut(cmd, app, map[string]any{"local": e.cfg})
				}

				req, err := serverConfigUpdate(field, value)
				if err != nil {
					return err
				}
				server, err := e.client.UpdateConfig(ctx, req)
				if err != nil {
					return err
				}
				if req.RootPath != nil {
					e.cfg.RememberRoot(*req.RootPath)
					if err := e.cfg.Save(); err != nil {
						e.logger.Warn("saving settings failed", "err", err)
					}
				}
				return writeOut(cmd, app, map[string]any{"server": server})
			})
		},
	}
	set.Flags().BoolVar(&local, "local", false, "Change a local setting instead")
	cmd.AddCommand(set)
	return cmd
}

func serverConfigUpdate(field, value string) (api.UpdateConfigRequest, error) {
	var req api.UpdateConfigRequest
	switch field {
	case "root_path":
		req.RootPath = &value
	case "stl_thumb_path":
		req.STLThumbPath = &value
	case "cache_max_size_mb", "images_per_page":
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 {
			return req, fmt.Errorf("%s must be a positive integer, got %q", field, value)
		}
		if field == "cache_max_size_mb" {
			req.CacheMaxSizeMB = &n
		} else {
			req.ImagesPerPage = &n
		}
	default:
		return req, fmt.Errorf("unknown server setting %q", field)
	}
	return req, nil
}

func newDownloadCmd(app *App) *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download files or whole projects",
	}
	cmd.PersistentFlags().StringVar(&dir, "dir", "", "Destination directory (default from settings, else the working directory)")

	var kind string
	file := &cobra.Command{
		Use:   "file <file-id>",
		Short: "Download one STL or image file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "file id")
			if err != nil {
				return writeErr(cmd, err)
			}
			var lk ledger.Kind
			switch api.FileKind(kind) {
			case api.FileSTL:
				lk = ledger.KindSTL
			case api.FileImage:
				lk = ledger.KindImage
			default:
				return writeErr(cmd, fmt.Errorf("--type must be stl or image, got %q", kind))
			}
			return runDownloadCmd(cmd, app, downloadRequest{kind: lk, id: id, dir: dir})
		},
	}
	file.Flags().StringVar(&kind, "type", string(api.FileSTL), "File type (stl|image)")

	var extract bool
	var extractTo string
	project := &cobra.Command{
		Use:   "project <project-id>",
		Short: "Download a project as a zip archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "project id")
			if err != nil {
				return writeErr(cmd, err)
			}
			return runDownloadCmd(cmd, app, downloadRequest{
				kind:      ledger.KindProject,
				id:        id,
				dir:       dir,
				extract:   extract,
				extractTo: extractTo,
			})
		},
	}
	project.Flags().BoolVar(&extract, "extract", false, "Extract the archive after downloading")
	project.Flags().StringVar(&extractTo, "extract-to", "", "Extraction directory (default next to the archive)")

	cmd.AddCommand(file, project)
	return cmd
}

func runDownloadCmd(cmd *cobra.Command, app *App, req downloadRequest) error {
	return withEnv(cmd, app, func(ctx context.Context, e *env, reqs *request.Manager) error {
		if req.dir == "" {
			req.dir = e.cfg.DownloadDirOr()
		}
		entry, err := runDownload(ctx, e.client, e.ledger, req)
		if err != nil {
			return err
		}
		return writeOut(cmd, app, map[string]any{"data": entry})
	})
}

func newDownloadsCmd(app *App) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "downloads",
		Short: "List recorded downloads, checking each file is still intact",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, app, func(ctx context.Context, e *env, reqs *request.Manager) error {
				if e.ledger == nil {
					return errors.New("download ledger unavailable; see the log for details")
				}
				entries, err := e.ledger.List(ctx, limit)
				if err != nil {
					return err
				}
				type row struct {
					ledger.Entry `yaml:",inline"`
					Intact       bool `json:"intact" yaml:"intact"`
				}
				rows := make([]row, len(entries))
				for i, en := range entries {
					rows[i] = row{Entry: en, Intact: ledger.Verify(en)}
				}
				return writeOut(cmd, app, map[string]any{"data": rows})
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum entries (0 for all)")
	return cmd
}
