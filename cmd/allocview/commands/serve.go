package commands

import (
	"context"
	"os"

	"github.com/PowerDNS/simpleblob"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/wojas/go-healthz"
	"golang.org/x/sync/errgroup"

	"github.com/allocview/allocview/status"
	"github.com/allocview/allocview/watcher"
)

var onlyOnce bool

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().BoolVar(&onlyOnce, "only-once", false, "Only do a single storage poll and exit")
}

func runServe() error {
	ctx, cancel := context.WithCancel(rootCtx)
	defer cancel()

	st, err := simpleblob.GetBackend(ctx, conf.Storage.Type, conf.Storage.Options)
	if err != nil {
		return err
	}
	logrus.WithField("storage_type", conf.Storage.Type).Info("Storage backend initialised")
	status.SetStorage(st)

	w := watcher.New(st, conf, logrus.StandardLogger())
	status.SetWatcher(w)

	healthz.AddBuildInfo()
	if hostname, err := os.Hostname(); err == nil {
		healthz.SetMeta("hostname", hostname)
	}
	healthz.SetMeta("version", version)

	if onlyOnce {
		logrus.Info("Not starting the HTTP server, because only-once is set")
		return w.RunOnce(ctx)
	}

	status.StartHTTPServer(conf)

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return w.Run(ctx)
	})
	eg.Go(func() error {
		return w.Loaded().Handle(ctx, func(t *watcher.Trace) error {
			logrus.WithFields(logrus.Fields{
				"trace":  t.Name,
				"allocs": t.NumAllocs(),
			}).Info("Trace available")
			return nil
		})
	})

	logrus.Info("Watcher running")
	return eg.Wait()
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Watch storage for trace dumps and serve them over HTTP",
	Run: func(cmd *cobra.Command, args []string) {
		if err := runServe(); err != nil {
			logrus.WithError(err).Fatal("Error")
		}
	},
}
