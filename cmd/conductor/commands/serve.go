package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/conductor-html/conductor/internal/config"
	"github.com/conductor-html/conductor/internal/engine"
	"github.com/conductor-html/conductor/internal/server"
	"github.com/conductor-html/conductor/internal/watch"
)

var (
	servePort     int
	serveHostname string
	serveDir      string
	serveWatch    bool
)

var serveCmd = &cobra.Command{
	Use:   "serve [files...]",
	Short: "Host documents behind the HTTP API",
	Long: `Start the conductor server. Documents named on the command line are
hosted at startup; more can be created over the API. The server
exposes document CRUD, command dispatch, event firing, an SSE event
stream, and a websocket live-document feed.

Examples:
  conductor serve
  conductor serve dashboard.html
  conductor serve --watch --port 9000 pages/*.html`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8080, "Port to listen on")
	serveCmd.Flags().StringVar(&serveHostname, "hostname", "127.0.0.1", "Hostname to listen on")
	serveCmd.Flags().StringVar(&serveDir, "directory", "", "Working directory")
	serveCmd.Flags().BoolVar(&serveWatch, "watch", false, "Reload hosted documents when their files change")
}

func runServe(cmd *cobra.Command, args []string) error {
	workDir, err := GetWorkDir(serveDir)
	if err != nil {
		return err
	}

	if err := config.GetPaths().EnsurePaths(); err != nil {
		return err
	}

	appConfig, err := config.Load(workDir)
	if err != nil {
		return err
	}

	// Flag beats config beats default.
	serverConfig := server.DefaultConfig()
	if sc := appConfig.Server; sc != nil {
		if sc.Host != "" {
			serverConfig.Host = sc.Host
		}
		if sc.Port != 0 {
			serverConfig.Port = sc.Port
		}
		if len(sc.CORSOrigins) > 0 {
			serverConfig.CORSOrigins = sc.CORSOrigins
		}
	}
	if cmd.Flags().Changed("hostname") {
		serverConfig.Host = serveHostname
	}
	if cmd.Flags().Changed("port") {
		serverConfig.Port = servePort
	}

	srv, err := server.New(serverConfig, appConfig)
	if err != nil {
		return err
	}

	// Host the documents named on the command line, keyed by absolute
	// path so the watcher can find their engines.
	engines := make(map[string]*engine.Engine, len(args))
	for _, path := range args {
		id, eng, err := srv.HostFile(path)
		if err != nil {
			return fmt.Errorf("hosting %s: %w", path, err)
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			return err
		}
		engines[abs] = eng
		fmt.Printf("Hosting %s as %s\n", path, id)
	}

	var watcher *watch.Watcher
	if serveWatch && len(args) > 0 {
		reload := func(path string) error {
			eng, ok := engines[path]
			if !ok {
				return fmt.Errorf("no hosted document for %s", path)
			}
			return eng.LoadFile(path)
		}
		watcher, err = watch.New(appConfig.Watcher, reload, args...)
		if err != nil {
			return err
		}
		watcher.Start()
		defer watcher.Stop()
	}

	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		fmt.Printf("Conductor server v%s listening on http://%s\n", Version, srv.Addr())
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-quit:
	case <-cmd.Context().Done():
	}

	fmt.Println("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	fmt.Println("Server stopped")
	return nil
}
