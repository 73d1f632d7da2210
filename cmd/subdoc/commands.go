package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/agentflare-ai/subdoc"
)

var (
	batchFile string
	casFlag   uint64
	seqnoFlag bool
)

var setCmd = &cobra.Command{
	Use:   "set KEY [DOCUMENT]",
	Short: "Store a whole document, read from the argument or stdin",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var doc []byte
		if len(args) == 2 {
			doc = []byte(args[1])
		} else {
			var err error
			if doc, err = io.ReadAll(cmd.InOrStdin()); err != nil {
				return fmt.Errorf("read document: %w", err)
			}
		}
		// Stored documents are normalized through the tree so that every
		// later batch sees well-formed JSON.
		root, err := subdoc.ParseDocument(doc)
		if err != nil {
			return err
		}
		cas, err := store.Set(cmd.Context(), args[0], subdoc.Marshal(root))
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), map[string]uint64{"cas": cas})
	},
}

var getCmd = &cobra.Command{
	Use:   "get KEY",
	Short: "Print a whole stored document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, cas, err := store.Fetch(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), struct {
			CAS uint64          `json:"cas"`
			Doc json.RawMessage `json:"doc"`
		}{cas, doc})
	},
}

var lookupCmd = &cobra.Command{
	Use:   "lookup KEY... [-f BATCH]",
	Short: "Run a lookup batch against one or more documents",
	Long: `Run a lookup batch against each KEY. The batch is a JSON object
{"specs":[{"op":"get","path":"a.b[0]"}, ...]} read from -f (or stdin).
Keys are looked up concurrently. With several keys the results are
printed as an object keyed by KEY.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		batch, err := readBatch(cmd)
		if err != nil {
			return err
		}
		results := make([]subdoc.BatchResult, len(args))
		g, ctx := errgroup.WithContext(cmd.Context())
		for i, key := range args {
			g.Go(func() error {
				b := batch
				b.Key = key
				res, err := service.Lookup(ctx, b)
				results[i] = res
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
		out := make(map[string]subdoc.BatchResult, len(args))
		for i, key := range args {
			out[key] = results[i]
		}
		if len(args) == 1 {
			return writeJSON(cmd.OutOrStdout(), results[0])
		}
		return writeJSON(cmd.OutOrStdout(), out)
	},
}

var mutateCmd = &cobra.Command{
	Use:   "mutate KEY [-f BATCH]",
	Short: "Apply a mutation batch to a document atomically",
	Long: `Apply a mutation batch to KEY. The batch is a JSON object
{"cas":0,"specs":[{"op":"counter","path":"visits","value":1}, ...]} read
from -f (or stdin). --cas overrides the batch CAS.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		batch, err := readBatch(cmd)
		if err != nil {
			return err
		}
		batch.Key = args[0]
		if cmd.Flags().Changed("cas") {
			batch.CAS = casFlag
		}
		res, err := service.Mutate(cmd.Context(), batch, subdoc.MutateOptions{
			MutationSeqno: seqnoFlag || cfg.MutationSeqno,
		})
		if err != nil {
			return err
		}
		if err := writeJSON(cmd.OutOrStdout(), res); err != nil {
			return err
		}
		if !res.OK() {
			return errors.New(res.Status.String())
		}
		return nil
	},
}

var applyCmd = &cobra.Command{
	Use:   "apply DOCUMENT -f BATCH",
	Short: "Apply a mutation batch to a JSON file without a store",
	Long: `Apply a mutation batch to the JSON document in the DOCUMENT file (- for
stdin) and print the new document. The store is not touched and the batch
CAS is ignored.`,
	Args:        cobra.ExactArgs(1),
	Annotations: map[string]string{noStore: ""},
	RunE: func(cmd *cobra.Command, args []string) error {
		if args[0] == "-" && batchFile == "-" {
			return errors.New("document and batch cannot both come from stdin")
		}
		batch, err := readBatch(cmd)
		if err != nil {
			return err
		}
		in := cmd.InOrStdin()
		if args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			in = f
		}
		res, err := engine.ApplyStream(in, cmd.OutOrStdout(), batch)
		if err != nil {
			return err
		}
		if !res.OK() {
			_ = writeJSON(cmd.ErrOrStderr(), res)
			return errors.New(res.Status.String())
		}
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{lookupCmd, mutateCmd, applyCmd} {
		c.Flags().StringVarP(&batchFile, "file", "f", "-", "batch JSON file, - for stdin")
	}
	mutateCmd.Flags().Uint64Var(&casFlag, "cas", 0, "expected CAS of the stored document")
	mutateCmd.Flags().BoolVar(&seqnoFlag, "seqno", false, "ask the store for a mutation sequence number")
}

func readBatch(cmd *cobra.Command) (subdoc.Batch, error) {
	var (
		data []byte
		err  error
	)
	if batchFile == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(batchFile)
	}
	if err != nil {
		return subdoc.Batch{}, fmt.Errorf("read batch: %w", err)
	}
	var b subdoc.Batch
	if err := json.Unmarshal(data, &b); err != nil {
		return subdoc.Batch{}, fmt.Errorf("parse batch: %w", err)
	}
	return b, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// dumpMetrics prints every gathered series of reg as "name{labels} value".
// Histograms print their sample count.
func dumpMetrics(w io.Writer, reg *prometheus.Registry) error {
	families, err := reg.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			labels := make([]string, 0, len(m.GetLabel()))
			for _, l := range m.GetLabel() {
				labels = append(labels, fmt.Sprintf("%s=%q", l.GetName(), l.GetValue()))
			}
			sort.Strings(labels)
			value := m.GetCounter().GetValue()
			if h := m.GetHistogram(); h != nil {
				value = float64(h.GetSampleCount())
			}
			fmt.Fprintf(w, "%s{%s} %g\n", mf.GetName(), strings.Join(labels, ","), value)
		}
	}
	return nil
}
