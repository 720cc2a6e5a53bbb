// Command datalens is a headless reference host for internal/session's
// Engine: a Cobra CLI exercising open/page/search/task/cancel/export/recent the way
// a desktop shell would drive it over IPC. Grounded on the cobra command
// tree shape used by the pack's harvx CLI (root command with
// PersistentPreRunE for cross-cutting setup, one subcommand per operation).
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sec-view/datalens/internal/config"
	"github.com/sec-view/datalens/internal/corelog"
	"github.com/sec-view/datalens/internal/cursor"
	"github.com/sec-view/datalens/internal/model"
	"github.com/sec-view/datalens/internal/session"
	"github.com/sec-view/datalens/internal/store"
)

var (
	engine     *session.Engine
	outputJSON bool
)

func wallClock() int64 { return time.Now().UnixMilli() }

func newEngine() (*session.Engine, error) {
	cfg := config.Load()
	st, err := store.Open(cfg.SQLitePath)
	if err != nil {
		corelog.Tagf("STORE_OPEN_FAIL", "err=%v", err)
		st = nil
	}
	return session.New(cfg, st, wallClock), nil
}

func printResult(v any) {
	if !outputJSON {
		fmt.Printf("%+v\n", v)
		return
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

var rootCmd = &cobra.Command{
	Use:           "datalens",
	Short:         "Stream and search large JSONL/CSV/JSON/Parquet data files.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEngine()
		if err != nil {
			return err
		}
		engine = e
		return nil
	},
}

var openCmd = &cobra.Command{
	Use:   "open <path>",
	Short: "Open a data file and print its session info.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		info, err := engine.OpenFile(args[0])
		if err != nil {
			return err
		}
		printResult(info)
		return nil
	},
}

var pageCmd = &cobra.Command{
	Use:   "page <session-id> [cursor]",
	Short: "Read the next page of records for a session.",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cur := cursor.Zero
		if len(args) == 2 {
			var err error
			cur, err = cursor.Decode(args[1])
			if err != nil {
				return err
			}
		}
		page, err := engine.NextPage(args[0], cur)
		if err != nil {
			return err
		}
		printResult(page)
		return nil
	},
}

var (
	searchMode          string
	searchCaseSensitive bool
	searchMaxHits       int
)

var searchCmd = &cobra.Command{
	Use:   "search <session-id> <query>",
	Short: "Search a session's current page, or scan the whole file in the background.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		mode := model.CurrentPage
		if searchMode == "scan" {
			mode = model.ScanAll
		}
		result, err := engine.Search(args[0], model.SearchQuery{
			Text: args[1], CaseSensitive: searchCaseSensitive, Mode: mode, MaxHits: searchMaxHits,
		})
		if err != nil {
			return err
		}
		printResult(result)
		return nil
	},
}

var taskCmd = &cobra.Command{
	Use:   "task <task-id>",
	Short: "Show a background search task's status.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		task, err := engine.GetTask(args[0])
		if err != nil {
			return err
		}
		printResult(task)
		return nil
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <task-id>",
	Short: "Cancel a running background task.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return engine.CancelTask(args[0])
	},
}

var (
	exportKind    string
	exportFormat  string
	exportTaskID  string
	exportIDsFlag string
)

// parseExportIDs parses a comma-separated list of record ids, e.g.
// "0,3,7"; an empty string yields nil.
func parseExportIDs(s string) ([]uint64, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	ids := make([]uint64, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseUint(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid --ids value %q: %w", p, err)
		}
		ids = append(ids, v)
	}
	return ids, nil
}

var exportCmd = &cobra.Command{
	Use:   "export <session-id> <output-path>",
	Short: "Stream a selection or a search task's hits to a file.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := parseExportIDs(exportIDsFlag)
		if err != nil {
			return err
		}
		req := model.ExportRequest{TaskID: exportTaskID, RecordIDs: ids}
		switch exportKind {
		case "selection":
			req.Kind = model.ExportSelection
		case "task":
			req.Kind = model.ExportSearchTask
		default:
			req.Kind = model.ExportSelection
		}

		var outFmt model.ExportFormat
		switch exportFormat {
		case "jsonl":
			outFmt = model.ExportJSONL
		case "csv":
			outFmt = model.ExportCSV
		default:
			outFmt = model.ExportJSON
		}

		res, err := engine.Export(args[0], req, outFmt, args[1])
		if err != nil {
			return err
		}
		printResult(res)
		return nil
	},
}

var recentCmd = &cobra.Command{
	Use:   "recent",
	Short: "List recently opened files.",
	RunE: func(cmd *cobra.Command, args []string) error {
		st := engine.Storage()
		if st == nil {
			return fmt.Errorf("recent-files store unavailable")
		}
		files, err := st.ListRecent(20)
		if err != nil {
			return err
		}
		printResult(files)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "print results as JSON")

	searchCmd.Flags().StringVar(&searchMode, "mode", "page", "\"page\" (current page only) or \"scan\" (whole file, background)")
	searchCmd.Flags().BoolVar(&searchCaseSensitive, "case-sensitive", false, "match case-sensitively")
	searchCmd.Flags().IntVar(&searchMaxHits, "max-hits", 0, "cap the number of hits (0 = engine default)")

	exportCmd.Flags().StringVar(&exportKind, "kind", "selection", "\"selection\" or \"task\"")
	exportCmd.Flags().StringVar(&exportFormat, "format", "json", "\"json\", \"jsonl\", or \"csv\"")
	exportCmd.Flags().StringVar(&exportTaskID, "task-id", "", "search task id, for --kind=task")
	exportCmd.Flags().StringVar(&exportIDsFlag, "ids", "", "comma-separated record ids, for --kind=selection")

	rootCmd.AddCommand(openCmd, pageCmd, searchCmd, taskCmd, cancelCmd, exportCmd, recentCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		corelog.Tagf("CLI_ERROR", "%v", err)
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
