// Command plasmad runs one peer of the query engine: it optionally
// serves the RPC surface (spec.md §4.H/§6) on a listening socket, seeds
// a demo graph when its store is empty, and can run a single path query
// against it and print the result as a table.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/wbrown/plasma"
	"github.com/wbrown/plasma/graph"
	"github.com/wbrown/plasma/graph/badger"
	"github.com/wbrown/plasma/peer"
	"github.com/wbrown/plasma/plan"
	"github.com/wbrown/plasma/planner"
	"github.com/wbrown/plasma/runtime"
	"github.com/wbrown/plasma/telemetry"
)

func main() {
	var (
		dbPath    string
		listen    string
		htl       int
		demo      bool
		verbose   bool
		queryRoot string
		pathSpec  string
		projSpec  string
		countTail bool
		limitTail int
	)

	flag.StringVar(&dbPath, "db", "", "badger graph store path (empty: in-memory)")
	flag.StringVar(&listen, "listen", "", "address to serve the peer RPC surface on, e.g. :7946")
	flag.IntVar(&htl, "htl", 8, "default hop budget for locally originated queries")
	flag.BoolVar(&demo, "demo", false, "seed demo graph data when the store is empty")
	flag.BoolVar(&verbose, "verbose", false, "print query execution events")
	flag.StringVar(&queryRoot, "query-root", string(plasma.RootID), "node id the path query starts from")
	flag.StringVar(&pathSpec, "path", "", "comma-separated edge labels to traverse, e.g. music,synths,synth")
	flag.StringVar(&projSpec, "project", "", "comma-separated properties to project off the path's final variable")
	flag.BoolVar(&countTail, "count", false, "count results instead of listing them")
	flag.IntVar(&limitTail, "limit", 0, "limit results to N rows (0: unlimited)")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "A peer-to-peer graph query engine node.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s -listen :7946 -demo         # serve, seeding demo data\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -demo -path music,synths,synth -project label,score\n", os.Args[0])
	}
	flag.Parse()

	g, closeGraph, err := openGraph(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "opening graph store: %v\n", err)
		os.Exit(1)
	}
	defer closeGraph()

	if demo {
		_, hasRoot, err := g.FindNode(context.Background(), plasma.RootID)
		if err == nil && !hasRoot {
			err = seedDemoGraph(g)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "seeding demo graph: %v\n", err)
			os.Exit(1)
		}
	}

	var handler telemetry.Handler
	if verbose {
		handler = logEvent
	}
	p := peer.New(g, htl)
	p.Telemetry = telemetry.NewContext(handler)

	if listen != "" {
		ln, err := net.Listen("tcp", listen)
		if err != nil {
			fmt.Fprintf(os.Stderr, "listening on %s: %v\n", listen, err)
			os.Exit(1)
		}
		fmt.Printf("%s serving on %s\n", color.GreenString("plasmad"), ln.Addr())
		go func() {
			if err := p.Serve(ln); err != nil {
				fmt.Fprintf(os.Stderr, "serve stopped: %v\n", err)
			}
		}()
	}

	if pathSpec != "" {
		runPathQuery(p, queryRoot, pathSpec, projSpec, countTail, limitTail)
	}

	if listen == "" {
		return
	}
	if pathSpec == "" {
		fmt.Println("Listening; no -path given, nothing to run locally. Ctrl-C to exit.")
	}
	waitForSignal()
}

func waitForSignal() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
}

func openGraph(dbPath string) (graph.Adapter, func(), error) {
	if dbPath == "" {
		return graph.NewMemory(), func() {}, nil
	}
	store, err := badger.Open(dbPath)
	if err != nil {
		return nil, nil, err
	}
	return store, func() { store.Close() }, nil
}

// seedDemoGraph installs spec.md example (b)'s music graph under the
// peer's root: root -> music -> synths -> four labeled, scored synths.
func seedDemoGraph(g graph.Adapter) error {
	type putter interface {
		PutNode(plasma.Node) error
	}
	put := func(n plasma.Node) error {
		if mem, ok := g.(*graph.Memory); ok {
			mem.Put(n)
			return nil
		}
		if p, ok := g.(putter); ok {
			return p.PutNode(n)
		}
		return plasma.NewError(plasma.PlanInvalid, "graph adapter does not support seeding")
	}

	if err := put(plasma.Node{
		"id":    string(plasma.RootID),
		"edges": map[string]interface{}{"UUID:demo-music": map[string]interface{}{"label": "music"}},
	}); err != nil {
		return err
	}
	if err := put(plasma.Node{
		"id":    "UUID:demo-music",
		"edges": map[string]interface{}{"UUID:demo-synths": map[string]interface{}{"label": "synths"}},
	}); err != nil {
		return err
	}
	if err := put(plasma.Node{
		"id": "UUID:demo-synths",
		"edges": map[string]interface{}{
			"UUID:demo-bass":  map[string]interface{}{"label": "synth"},
			"UUID:demo-kick":  map[string]interface{}{"label": "synth"},
			"UUID:demo-snare": map[string]interface{}{"label": "synth"},
			"UUID:demo-hat":   map[string]interface{}{"label": "synth"},
		},
	}); err != nil {
		return err
	}
	synths := []plasma.Node{
		{"id": "UUID:demo-bass", "label": "bass", "score": 0.8},
		{"id": "UUID:demo-kick", "label": "kick", "score": 0.7},
		{"id": "UUID:demo-snare", "label": "snare", "score": 0.4},
		{"id": "UUID:demo-hat", "label": "hat", "score": 0.3},
	}
	for _, n := range synths {
		if err := put(n); err != nil {
			return err
		}
	}
	return nil
}

// runPathQuery lowers -path/-project/-count/-limit into a plan.Plan via
// the planner, executes it against p, and prints the result.
func runPathQuery(p *peer.Peer, rootID, pathSpec, projSpec string, countTail bool, limitTail int) {
	var segs []planner.Segment
	for i, label := range strings.Split(pathSpec, ",") {
		segs = append(segs, planner.Segment{
			Var:   fmt.Sprintf("v%d", i),
			Preds: []plan.EdgePredicate{{Label: strings.TrimSpace(label)}},
		})
	}
	finalVar := segs[len(segs)-1].Var

	q := planner.Query{Path: segs}
	if projSpec != "" {
		q.Projection = []plan.ProjectField{{PathVar: finalVar, Props: strings.Split(projSpec, ",")}}
	} else {
		q.Projection = []plan.ProjectField{{PathVar: finalVar}}
	}
	switch {
	case countTail:
		q.Tail = &planner.Tail{Kind: planner.TailCount}
	case limitTail > 0:
		q.Tail = &planner.Tail{Kind: planner.TailLimit, Limit: limitTail}
	}

	built, err := planner.Build(q)
	if err != nil {
		fmt.Fprintf(os.Stderr, "planning query: %v\n", err)
		os.Exit(1)
	}

	ectx := &runtime.ExecCtx{
		Graph:     p.Graph,
		Connector: p.Pool,
		Params:    map[string]interface{}{"root-id": rootID},
		Telemetry: p.Telemetry,
		HTL:       p.HTL,
	}

	start := time.Now()
	out, err := runtime.Execute(context.Background(), built, ectx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "executing query: %v\n", err)
		os.Exit(1)
	}
	items, errs := runtime.Collect(out)
	elapsed := time.Since(start)

	for _, e := range errs {
		fmt.Fprintf(os.Stderr, "%s %v\n", color.RedString("error:"), e)
	}
	printResults(items, elapsed)
}

func printResults(items []runtime.Item, elapsed time.Duration) {
	var columns []string
	rows := make([][]string, 0, len(items))
	for _, it := range items {
		rec, ok := it.(runtime.Record)
		if !ok {
			continue
		}
		if columns == nil {
			for k := range rec {
				columns = append(columns, k)
			}
		}
		row := make([]string, len(columns))
		for i, c := range columns {
			row[i] = formatValue(rec[c])
		}
		rows = append(rows, row)
	}

	tableString := &strings.Builder{}
	alignment := make([]tw.Align, len(columns))
	for i := range alignment {
		alignment[i] = tw.AlignNone
	}
	table := tablewriter.NewTable(tableString,
		tablewriter.WithRenderer(renderer.NewMarkdown()),
		tablewriter.WithAlignment(alignment),
		tablewriter.WithHeaderAutoFormat(tw.Off))
	table.Header(columns)
	for _, row := range rows {
		table.Append(row)
	}
	table.Render()

	fmt.Print(tableString.String())
	fmt.Printf("\n%s (%.3fms)\n", color.CyanString("%d rows", len(rows)), float64(elapsed.Microseconds())/1000.0)
}

func formatValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case map[string]interface{}:
		parts := make([]string, 0, len(val))
		for k, pv := range val {
			parts = append(parts, k+"="+formatValue(pv))
		}
		return strings.Join(parts, " ")
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case int:
		return strconv.Itoa(val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

func logEvent(e telemetry.Event) {
	fmt.Fprintf(os.Stderr, "%s %s %v\n", color.YellowString(e.At.Format("15:04:05.000")), e.Name, e.Fields)
}
