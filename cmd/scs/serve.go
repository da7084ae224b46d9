package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/LashSesh/qso/internal/calibrator"
	"github.com/LashSesh/qso/internal/rpc"
	"github.com/LashSesh/qso/internal/settings"
	"github.com/LashSesh/qso/internal/telemetry"
	"github.com/LashSesh/qso/internal/tuner"
	"github.com/LashSesh/qso/internal/watch"
)

// shutdownTimeout bounds the HTTP server's graceful shutdown.
const shutdownTimeout = 5 * time.Second

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// watchDirs lists the directories a watcher follows.
func (a *app) watchDirs() []string {
	dirs := []string{a.settings.BenchmarkDir}
	if a.settings.RecordDir != "" && a.settings.RecordDir != a.settings.BenchmarkDir {
		dirs = append(dirs, a.settings.RecordDir)
	}
	return dirs
}

// #region watch

func (a *app) newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Run one calibration step whenever benchmark files change",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			t, closeTuner, err := a.newTuner()
			if err != nil {
				return err
			}
			defer closeTuner()
			if _, err := t.Initialize(ctx, nil); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			w := watch.New(t, a.settings.Watch.Debounce, a.logger, a.watchDirs()...)
			w.OnProposal = func(p tuner.Proposal) {
				fmt.Fprintf(out, "step %d: ψ=%.4f accepted=%v cri=%v\n",
					p.Step, p.CurrentPerformance.Psi, p.PoRAccepted, p.CRITriggered)
			}
			return w.Run(ctx)
		},
	}
}

// #endregion watch

// #region serve

func (a *app) newServeCmd() *cobra.Command {
	var grpcAddr, httpAddr string
	var follow bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the calibration API over gRPC and HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("grpc-addr") {
				a.settings.Server.GRPCAddr = grpcAddr
			}
			if cmd.Flags().Changed("http-addr") {
				a.settings.Server.HTTPAddr = httpAddr
			}
			ctx, stop := signalContext(cmd.Context())
			defer stop()
			return a.serve(ctx, follow)
		},
	}
	def := settings.Default().Server
	cmd.Flags().StringVar(&grpcAddr, "grpc-addr", def.GRPCAddr, "gRPC listen address")
	cmd.Flags().StringVar(&httpAddr, "http-addr", def.HTTPAddr, "HTTP listen address (health, status, metrics)")
	cmd.Flags().BoolVar(&follow, "watch", false, "also step on benchmark file changes")
	return cmd
}

// serve runs the gRPC and HTTP servers, and optionally a watcher, until ctx
// is cancelled or one of them fails.
func (a *app) serve(ctx context.Context, follow bool) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rec, err := telemetry.NewPrometheus(reg)
	if err != nil {
		return err
	}

	t, closeTuner, err := a.newTuner(tuner.WithCalibratorOptions(calibrator.WithRecorder(rec)))
	if err != nil {
		return err
	}
	defer closeTuner()
	if _, err := t.Initialize(ctx, nil); err != nil {
		return err
	}
	svc := rpc.NewService(t, a.logger)

	lis, err := net.Listen("tcp", a.settings.Server.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", a.settings.Server.GRPCAddr, err)
	}
	grpcSrv, health := rpc.NewGRPCServer(svc)
	httpSrv := &http.Server{
		Addr:              a.settings.Server.HTTPAddr,
		Handler:           svc.Router(promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("grpc listening", zap.String("addr", lis.Addr().String()))
		return grpcSrv.Serve(lis)
	})
	g.Go(func() error {
		a.logger.Info("http listening", zap.String("addr", httpSrv.Addr))
		if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if follow {
		w := watch.New(svc, a.settings.Watch.Debounce, a.logger, a.watchDirs()...)
		g.Go(func() error { return w.Run(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutting down")
		health.Shutdown()
		grpcSrv.GracefulStop()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpSrv.Shutdown(sctx)
	})
	return g.Wait()
}

// #endregion serve

// #region remote

func (a *app) newRemoteCmd() *cobra.Command {
	var addr string
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "remote",
		Short: "Call a running scs serve instance",
	}
	cmd.PersistentFlags().StringVar(&addr, "addr", "127.0.0.1:7443", "gRPC address of the server")
	cmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second, "per-call timeout")

	call := func(cmd *cobra.Command, fn func(context.Context, *rpc.Client) (any, error)) error {
		client, err := rpc.NewClient(addr)
		if err != nil {
			return err
		}
		defer client.Close()
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()
		v, err := fn(ctx, client)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "status",
			Short: "Show the server's calibration state",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return call(cmd, func(ctx context.Context, c *rpc.Client) (any, error) { return c.Status(ctx) })
			},
		},
		&cobra.Command{
			Use:   "propose",
			Short: "Ask the server for one tuning step",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return call(cmd, func(ctx context.Context, c *rpc.Client) (any, error) { return c.Propose(ctx) })
			},
		},
	)
	return cmd
}

// #endregion remote
