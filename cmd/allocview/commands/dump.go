package commands

import (
	"encoding/json"
	"os"
	"strings"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/allocview/allocview/config/logger"
	"github.com/allocview/allocview/model"
	"github.com/allocview/allocview/status"
	"github.com/allocview/allocview/watcher"
)

var dumpSummary bool

func init() {
	rootCmd.AddCommand(dumpCmd)
	dumpCmd.Flags().BoolVar(&dumpSummary, "summary", false, "Only print a summary of the dump")
}

func runDump(fname string) error {
	data, err := os.ReadFile(fname)
	if err != nil {
		return err
	}
	compressed := strings.HasSuffix(fname, ".gz")

	t0 := time.Now()
	init, diffs, _, err := watcher.Decode(data, compressed, 0)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	if dumpSummary {
		tr := &watcher.Trace{
			Name:       fname,
			Blob:       fname,
			Size:       datasize.ByteSize(len(data)),
			Compressed: compressed,
			LoadedAt:   time.Now(),
			LoadTime:   time.Since(t0).Round(time.Millisecond),
			Init:       init,
			Diffs:      diffs,
		}
		return enc.Encode(status.Summarize([]*watcher.Trace{tr})[0])
	}

	out := struct {
		Init  model.Init   `json:"init"`
		Diffs []model.Diff `json:"diffs"`
	}{
		Init:  init,
		Diffs: diffs,
	}
	return enc.Encode(out)
}

var dumpCmd = &cobra.Command{
	Use:   "dump <file.ctf[.gz]>",
	Short: "Decode a local trace dump to JSON on stdout",
	Args:  cobra.ExactArgs(1),
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Override the root one: decoding a local file does not need a
		// config file, only the log flags.
		logger.Configure(logger.DefaultConfig.Merge(logger.FlagConfig))
	},
	Run: func(cmd *cobra.Command, args []string) {
		if err := runDump(args[0]); err != nil {
			logrus.WithError(err).Fatal("Error")
		}
	},
}
