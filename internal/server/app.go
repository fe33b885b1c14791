package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/docrelay/internal/auth"
	"github.com/desertthunder/docrelay/internal/credentials"
	"github.com/desertthunder/docrelay/internal/models"
	"github.com/desertthunder/docrelay/internal/shared"
	"github.com/desertthunder/docrelay/internal/tasks"
	"golang.org/x/oauth2"
)

// Gateway is the Drive surface the web relay needs. [*drive.Gateway] satisfies it.
type Gateway interface {
	tasks.Gateway
	ListFolders(ctx context.Context, pageToken string) (models.FolderPage, error)
	ListFiles(ctx context.Context, parentID, pageToken string) (models.FilePage, error)
}

// GatewayFactory builds a gateway authorized by ts for a single request.
type GatewayFactory func(ctx context.Context, ts oauth2.TokenSource) (Gateway, error)

// AppOpts configures an [App].
type AppOpts struct {
	Flow        *auth.Flow
	Credentials credentials.Store
	States      *auth.StateStore
	Sessions    *SessionManager
	NewGateway  GatewayFactory
	Recorder    tasks.Recorder
	DownloadDir string   // Download root (default: downloads)
	RedirectURI string   // Callback URL; derived from the request host when empty
	Scopes      []string // Requested scopes; the flow's scopes when empty
	Logger      *log.Logger
}

// App serves the browser workflow of the relay.
type App struct {
	flow        *auth.Flow
	creds       credentials.Store
	refresher   *credentials.Refresher
	states      *auth.StateStore
	sessions    *SessionManager
	newGateway  GatewayFactory
	recorder    tasks.Recorder
	downloadDir string
	redirectURI string
	scopes      []string
	views       views
	logger      *log.Logger
}

// NewApp validates opts and parses the page templates.
func NewApp(opts AppOpts) (*App, error) {
	if opts.Flow == nil || opts.Credentials == nil || opts.NewGateway == nil {
		return nil, fmt.Errorf("flow, credential store and gateway factory are required: %w", shared.ErrMissingArgument)
	}
	if opts.States == nil {
		opts.States = auth.NewStateStore(auth.DefaultStateTTL)
	}
	if opts.Sessions == nil {
		opts.Sessions = NewSessionManager(nil, false)
	}
	if opts.DownloadDir == "" {
		opts.DownloadDir = "downloads"
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}

	v, err := loadViews()
	if err != nil {
		return nil, err
	}

	return &App{
		flow:        opts.Flow,
		creds:       opts.Credentials,
		refresher:   credentials.NewRefresher(opts.Credentials, opts.Flow.Config(), opts.Logger),
		states:      opts.States,
		sessions:    opts.Sessions,
		newGateway:  opts.NewGateway,
		recorder:    opts.Recorder,
		downloadDir: opts.DownloadDir,
		redirectURI: opts.RedirectURI,
		scopes:      opts.Scopes,
		views:       v,
		logger:      shared.WithLogger(opts.Logger, "component", "web"),
	}, nil
}

// Router returns a [BasicRouter] with the app's middleware and routes.
func (a *App) Router() *BasicRouter {
	r := NewBasicRouter()
	r.Use(Recover(a.logger), Logging(a.logger), a.sessions.Middleware)
	a.Register(r)
	return r
}

// Register adds every route of the relay to r.
func (a *App) Register(r Router) {
	r.Handle(http.MethodGet, "/{$}", http.HandlerFunc(a.index))
	r.Handle(http.MethodGet, "/healthz", http.HandlerFunc(a.healthz))
	r.Handle(http.MethodGet, "/authorize", http.HandlerFunc(a.authorize))
	r.Handle(http.MethodGet, "/oauth2callback", http.HandlerFunc(a.callback))
	r.Handle(http.MethodGet, "/logout", http.HandlerFunc(a.logout))
	r.Handle(http.MethodGet, "/list_folders", http.HandlerFunc(a.listFolders))
	r.Handle(http.MethodGet, "/list_files", http.HandlerFunc(a.listFiles))
	r.Handle(http.MethodGet, "/list_files/{folderID}", http.HandlerFunc(a.listFiles))
	r.Handle(http.MethodGet, "/download/{fileID}", http.HandlerFunc(a.downloadFile))
	r.Handle(http.MethodPost, "/download_files", http.HandlerFunc(a.downloadFiles))
	r.Handle(http.MethodPost, "/download_folders", http.HandlerFunc(a.downloadFolders))
}

func (a *App) index(w http.ResponseWriter, r *http.Request) {
	_, authenticated, err := a.creds.Load(r.Context(), SessionID(r.Context()))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.render(w, r, http.StatusOK, "index", viewData{
		Title:         "Home",
		Authenticated: authenticated,
		DownloadDir:   a.downloadDir,
	})
}

func (a *App) healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, `{"status":"ok"}`)
}

// authorize starts a new handshake, discarding any pending one for this session.
func (a *App) authorize(w http.ResponseWriter, r *http.Request) {
	authURL, state, err := a.flow.BeginAuthorization(a.scopes, a.callbackURI(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}

	a.states.Issue(SessionID(r.Context()), state)
	http.Redirect(w, r, authURL, http.StatusFound)
}

func (a *App) callback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sid := SessionID(ctx)

	expected, _ := a.states.Consume(sid)
	cred, err := a.flow.CompleteAuthorization(ctx, a.callbackURI(r)+"?"+r.URL.RawQuery, expected)
	if err != nil {
		a.logger.Warn("authorization failed", "reason", shared.Reason(err), "error", err)
		a.renderError(w, r, callbackStatus(err), err)
		return
	}

	if err := a.creds.Save(ctx, sid, cred); err != nil {
		a.fail(w, r, err)
		return
	}

	a.logger.Info("authorized session", "scopes", strings.Join(cred.Scopes, " "))
	http.Redirect(w, r, "/list_folders", http.StatusFound)
}

func (a *App) logout(w http.ResponseWriter, r *http.Request) {
	if err := a.creds.Clear(r.Context(), SessionID(r.Context())); err != nil {
		a.fail(w, r, err)
		return
	}
	a.flash(w, r, "Signed out.")
	http.Redirect(w, r, "/", http.StatusFound)
}

func (a *App) listFolders(w http.ResponseWriter, r *http.Request) {
	gw, ok := a.gateway(w, r)
	if !ok {
		return
	}

	page, err := gw.ListFolders(r.Context(), r.URL.Query().Get("page_token"))
	if err != nil {
		a.fail(w, r, err)
		return
	}

	a.render(w, r, http.StatusOK, "folders", viewData{
		Title:         "Folders",
		Authenticated: true,
		Folders:       page.Folders,
		NextPageToken: page.NextPageToken,
	})
}

func (a *App) listFiles(w http.ResponseWriter, r *http.Request) {
	gw, ok := a.gateway(w, r)
	if !ok {
		return
	}

	folderID := r.PathValue("folderID")
	page, err := gw.ListFiles(r.Context(), folderID, r.URL.Query().Get("page_token"))
	if err != nil {
		a.fail(w, r, err)
		return
	}

	a.render(w, r, http.StatusOK, "files", viewData{
		Title:         "Files",
		Authenticated: true,
		Files:         page.Files,
		FolderID:      folderID,
		PagePath:      r.URL.Path,
		NextPageToken: page.NextPageToken,
	})
}

func (a *App) downloadFile(w http.ResponseWriter, r *http.Request) {
	gw, ok := a.gateway(w, r)
	if !ok {
		return
	}

	fileID := r.PathValue("fileID")
	report, err := a.orchestrator(gw).DownloadFiles(r.Context(), []string{fileID}, nil)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	for _, res := range report.Results {
		if res.Succeeded() {
			a.flash(w, r, fmt.Sprintf("Downloaded %s.", res.Name))
		} else {
			a.flash(w, r, failureMessage(res))
		}
	}
	http.Redirect(w, r, "/list_files", http.StatusFound)
}

func (a *App) downloadFiles(w http.ResponseWriter, r *http.Request) {
	gw, ok := a.gateway(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		a.renderError(w, r, http.StatusBadRequest, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err))
		return
	}

	report, err := a.orchestrator(gw).DownloadFiles(r.Context(), r.PostForm["selected_files"], nil)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	a.flash(w, r, batchMessages(report, fmt.Sprintf("Downloaded %d file(s).", report.Succeeded()))...)
	http.Redirect(w, r, "/list_files", http.StatusFound)
}

func (a *App) downloadFolders(w http.ResponseWriter, r *http.Request) {
	gw, ok := a.gateway(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		a.renderError(w, r, http.StatusBadRequest, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err))
		return
	}

	report, err := a.orchestrator(gw).DownloadFolders(r.Context(), r.PostForm["selected_folders"], nil)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	a.flash(w, r, batchMessages(report, fmt.Sprintf("Downloaded %d file(s) from selected folder(s).", report.Succeeded()))...)
	http.Redirect(w, r, "/list_folders", http.StatusFound)
}

// gateway builds a Drive gateway for the session's credential, redirecting to
// /authorize when there is none. It reports false when a response was written.
func (a *App) gateway(w http.ResponseWriter, r *http.Request) (Gateway, bool) {
	ctx := r.Context()
	sid := SessionID(ctx)

	_, ok, err := a.creds.Load(ctx, sid)
	if err != nil {
		a.fail(w, r, err)
		return nil, false
	}
	if !ok {
		http.Redirect(w, r, "/authorize", http.StatusFound)
		return nil, false
	}

	ts := a.refresher.TokenSource(ctx, sid)
	gw, err := a.newGateway(ctx, ts)
	if err != nil {
		a.fail(w, r, err)
		return nil, false
	}
	return gw, true
}

func (a *App) orchestrator(gw Gateway) *tasks.Orchestrator {
	return tasks.NewOrchestrator(gw, tasks.OrchestratorOpts{
		Root:     a.downloadDir,
		Recorder: a.recorder,
		Logger:   a.logger,
	})
}

// fail handles an error from any route. Authorization errors clear the
// session's credential and restart the handshake.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error) {
	if shared.IsAuthError(err) {
		sid := SessionID(r.Context())
		if clearErr := a.creds.Clear(r.Context(), sid); clearErr != nil {
			a.logger.Error("failed to clear credential", "error", clearErr)
		}
		a.logger.Warn("reauthorizing session", "reason", shared.Reason(err), "error", err)
		http.Redirect(w, r, "/authorize", http.StatusFound)
		return
	}

	status := http.StatusBadGateway
	switch {
	case errors.Is(err, shared.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, shared.ErrInvalidInput), errors.Is(err, shared.ErrNotAllowed):
		status = http.StatusBadRequest
	case errors.Is(err, context.Canceled):
		status = http.StatusServiceUnavailable
	case errors.Is(err, shared.ErrLocalIO), errors.Is(err, shared.ErrMissingArgument):
		status = http.StatusInternalServerError
	}

	a.logger.Error("request failed", "path", r.URL.Path, "status", status, "error", err)
	a.renderError(w, r, status, err)
}

func (a *App) renderError(w http.ResponseWriter, r *http.Request, status int, err error) {
	a.render(w, r, status, "error", viewData{
		Title:  "Error",
		Error:  err.Error(),
		Reason: shared.Reason(err),
	})
}

func (a *App) render(w http.ResponseWriter, r *http.Request, status int, page string, data viewData) {
	data.Flashes = append(a.sessions.Flashes(w, r), data.Flashes...)
	if err := a.views.render(w, status, page, data); err != nil {
		a.logger.Error("failed to render page", "page", page, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func (a *App) flash(w http.ResponseWriter, r *http.Request, messages ...string) {
	if err := a.sessions.AddFlash(w, r, messages...); err != nil {
		a.logger.Error("failed to save flash", "error", err)
	}
}

// callbackURI is the configured redirect URI or, when unset, /oauth2callback on the request host.
func (a *App) callbackURI(r *http.Request) string {
	if a.redirectURI != "" {
		return a.redirectURI
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host + "/oauth2callback"
}

// maxFailureFlashes keeps the session cookie under the browser size limit.
const maxFailureFlashes = 5

func batchMessages(report *models.BatchReport, summary string) []string {
	messages := []string{summary}

	for i, f := range report.FolderFailures {
		if i == maxFailureFlashes {
			messages = append(messages, fmt.Sprintf("...and %d more folder(s).", len(report.FolderFailures)-maxFailureFlashes))
			break
		}
		messages = append(messages, fmt.Sprintf("Could not list folder %s: %s.", f.FolderID, f.Reason))
	}

	if report.Failed() == 0 {
		return messages
	}

	messages = append(messages, fmt.Sprintf("Failed to download %d of %d file(s).", report.Failed(), report.Total()))
	for i, res := range report.Failures() {
		if i == maxFailureFlashes {
			messages = append(messages, fmt.Sprintf("...and %d more.", report.Failed()-maxFailureFlashes))
			break
		}
		messages = append(messages, failureMessage(res))
	}
	return messages
}

func failureMessage(res models.DownloadResult) string {
	name := res.Name
	if name == "" {
		name = res.FileID
	}
	return fmt.Sprintf("Could not download %s: %s.", name, res.Reason)
}
