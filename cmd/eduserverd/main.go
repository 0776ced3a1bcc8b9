package main

import (
	"context"
	"flag"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/andylee303/jupyterlab-edu-extension/internal/bootstrap"
	"github.com/andylee303/jupyterlab-edu-extension/internal/config"
	"github.com/andylee303/jupyterlab-edu-extension/internal/logging"
	"github.com/andylee303/jupyterlab-edu-extension/internal/version"
	"github.com/andylee303/jupyterlab-edu-extension/pkg/extension"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "init" {
		if err := runInit(os.Args[2:]); err != nil {
			log.Fatalf("init failed: %v", err)
		}
		return
	}
	runServer()
}

// runInit scaffolds config/setting.ini and the environment config so a fresh
// deployment can start without hand-writing INI files.
func runInit(args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	root := fs.String("root", ".", "config root")
	env := fs.String("env", "dev", "environment name")
	listen := fs.String("listen", "127.0.0.1:8866", "server listen address")
	force := fs.Bool("force", false, "overwrite existing files")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return bootstrap.Init(bootstrap.InitOptions{
		Root:        *root,
		Environment: *env,
		ListenAddr:  *listen,
		Force:       *force,
	})
}

func runServer() {
	cfg, err := config.Load(".")
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}

	const maxLogBytes = int64(100 * 1024 * 1024) // 100MB
	if logTarget := strings.TrimSpace(cfg.LogFile); logTarget != "" {
		rot, err := logging.NewRotatingWriter(logTarget, maxLogBytes)
		if err != nil {
			log.Fatalf("init rotating log: %v", err)
		}
		// Mirror to stdout as well for foreground runs.
		log.SetOutput(io.MultiWriter(os.Stdout, rot))
		defer rot.Close()
	}
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	log.SetPrefix("[eduserverd] ")

	ext, err := extension.New(extension.Options{
		Root:   ".",
		Config: cfg,
		Logger: log.New(log.Writer(), "[eduserverd/http] ", log.LstdFlags|log.Lmicroseconds),
	})
	if err != nil {
		log.Fatalf("build extension: %v", err)
	}
	defer ext.Close()

	log.Printf("%s environment=%s store_driver=%s openai_configured=%t",
		version.FullInfo(), cfg.Environment, cfg.StoreDriver, cfg.OpenAIConfigured())

	srv := &http.Server{
		Addr:        cfg.ListenAddr,
		Handler:     ext.Handler(),
		ReadTimeout: 15 * time.Second,
		// No write timeout: the chat stream endpoint holds the response open.
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		log.Printf("edu extension server listening on %s", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGTERM, syscall.SIGINT)
	<-sigs

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
}
