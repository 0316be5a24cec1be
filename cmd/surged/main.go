// Command surged runs a minimal embedding of the surge HTTP/1.x core: one
// endpoint, one or more named hosts, and a default route answering every
// request. It exists to exercise the server wiring end to end.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/yourusername/surge/pkg/surge/http1"
	"github.com/yourusername/surge/pkg/surge/router"
	"github.com/yourusername/surge/pkg/surge/server"
)

var log = logrus.New()

func main() {
	var (
		listen   string
		vhosts   []string
		period   time.Duration
		maxConns int
		debug    bool
	)

	root := &cobra.Command{
		Use:   "surged",
		Short: "Embedded HTTP/1.x server core demo",
		RunE: func(cmd *cobra.Command, args []string) error {
			if debug {
				log.SetLevel(logrus.DebugLevel)
			}
			return run(listen, vhosts, period, maxConns)
		},
	}
	root.Flags().StringVar(&listen, "listen", ":8080", "endpoint bind address (ip:port)")
	root.Flags().StringSliceVar(&vhosts, "vhost", nil, "named virtual hosts, wildcard forms allowed")
	root.Flags().DurationVar(&period, "period", 10*time.Second, "housekeeping timer period")
	root.Flags().IntVar(&maxConns, "max-connections", 0, "per-endpoint connection cap (0 = unlimited)")
	root.Flags().BoolVar(&debug, "debug", false, "enable debug logging")

	if err := root.Execute(); err != nil {
		log.WithError(err).Fatal("surged failed")
	}
}

func run(listen string, vhosts []string, period time.Duration, maxConns int) error {
	svc := server.NewService(log.WithField("component", "service"))
	svc.Limits.Period = period

	e, err := server.NewEndpoint(svc, listen, -1)
	if err != nil {
		return err
	}
	e.MaxConnections = maxConns

	handler := server.HandlerFunc(func(c *http1.Conn) (int, []byte) {
		return http1.StatusOK, []byte("surge: " + c.Rx.Method + " " + c.Rx.PathInfo + "\n")
	})

	defaultRoute, err := router.NewRoute("default", "", http1.MethodAll, handler)
	if err != nil {
		return err
	}

	addHost := func(name string) {
		h := router.NewHost(name)
		h.AddRoute(defaultRoute)
		e.AddHost(h)
		svc.SetDefaultHost(h)
	}
	if len(vhosts) == 0 {
		addHost(listen)
	} else {
		e.NamedVirtualHosts = true
		for _, name := range vhosts {
			addHost(name)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := e.Open(ctx); err != nil {
		return err
	}
	log.WithField("listen", listen).Info("surged running")

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return svc.Shutdown(shutdownCtx)
}
