package utils

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

const (
	DefaultReadTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 30 * time.Second

	gracefulEnvKey     = "IS_GRACEFUL"
	gracefulEnvValue   = gracefulEnvKey + "=1"
	gracefulListenerFD = 3
)

// Server wraps http.Server with signal driven shutdown and SIGUSR2 hand-over to a child process.
type Server struct {
	*http.Server

	listener   net.Listener
	isGraceful bool
	hooks      []func(context.Context)
	signals    chan os.Signal
	done       chan struct{}
}

// NewServer creates a Server. Write timeouts are left to handlers because
// WebSocket connections outlive any fixed deadline.
func NewServer(addr string, handler http.Handler) *Server {
	return &Server{
		Server: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       DefaultReadTimeout,
		},
		isGraceful: os.Getenv(gracefulEnvKey) != "",
		signals:    make(chan os.Signal, 1),
		done:       make(chan struct{}),
	}
}

// OnShutdown registers fn to run after the HTTP server stopped accepting requests.
// Hooks run in registration order and share the shutdown deadline.
func (srv *Server) OnShutdown(fn func(context.Context)) {
	srv.hooks = append(srv.hooks, fn)
}

// ListenAndServe serves until SIGINT/SIGTERM (or a SIGUSR2 hand-over) completes the shutdown.
func (srv *Server) ListenAndServe() error {
	ln, err := srv.listen()
	if err != nil {
		return err
	}
	srv.listener = ln

	signal.Notify(srv.signals, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR2)
	go srv.handleSignals()

	err = srv.Serve(ln)
	if err == http.ErrServerClosed {
		err = nil
	}
	<-srv.done
	return err
}

func (srv *Server) listen() (net.Listener, error) {
	if srv.isGraceful {
		ln, err := net.FileListener(os.NewFile(gracefulListenerFD, ""))
		if err != nil {
			return nil, fmt.Errorf("inherit listener: %w", err)
		}
		return ln, nil
	}
	addr := srv.Addr
	if addr == "" {
		addr = ":http"
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	return ln, nil
}

func (srv *Server) handleSignals() {
	for sig := range srv.signals {
		switch sig {
		case syscall.SIGUSR2:
			pid, err := srv.forkChild()
			if err != nil {
				Sugar.Errorf("graceful restart failed: %v, continue serving", err)
				continue
			}
			Sugar.Infof("child process %d took over the listener", pid)
		default:
			Sugar.Infof("received %s, shutting down", sig)
		}
		signal.Stop(srv.signals)
		srv.shutdown()
		return
	}
}

func (srv *Server) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		Sugar.Errorf("HTTP server shutdown error: %v", err)
	}
	for _, hook := range srv.hooks {
		hook(ctx)
	}
	close(srv.done)
}

// forkChild starts a copy of this binary that inherits the listening socket.
func (srv *Server) forkChild() (int, error) {
	tcpLn, ok := srv.listener.(*net.TCPListener)
	if !ok {
		return 0, fmt.Errorf("listener is %T, not *net.TCPListener", srv.listener)
	}
	file, err := tcpLn.File()
	if err != nil {
		return 0, fmt.Errorf("listener file: %w", err)
	}
	defer file.Close()

	env := make([]string, 0, len(os.Environ())+1)
	for _, e := range os.Environ() {
		if e != gracefulEnvValue {
			env = append(env, e)
		}
	}
	env = append(env, gracefulEnvValue)

	return syscall.ForkExec(os.Args[0], os.Args, &syscall.ProcAttr{
		Env:   env,
		Files: []uintptr{os.Stdin.Fd(), os.Stdout.Fd(), os.Stderr.Fd(), file.Fd()},
	})
}
