package main

import (
	"encoding/json"
	"fmt"
	"iter"
	"net/http"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/duynguyendang/gca-datalog/internal/term"
	"github.com/duynguyendang/gca-datalog/pkg/sink"
)

type relationResponse struct {
	Relation string     `json:"relation"`
	Rows     [][]string `json:"rows"`
}

func newQueryCommand() *cobra.Command {
	var server, runID, format string
	cmd := &cobra.Command{
		Use:   "query <relation>",
		Short: "Read a relation back from a running datalogd serve instance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return queryRelation(server, runID, format, args[0])
		},
	}
	cmd.Flags().StringVar(&server, "server", "http://localhost:8080", "base URL of a running `datalogd serve`")
	cmd.Flags().StringVar(&runID, "run-id", "", "run to read from (defaults to the server's most recent evaluation)")
	cmd.Flags().StringVar(&format, "format", "table", "output format: table or csv")
	return cmd
}

func queryRelation(server, runID, format, relation string) error {
	u, err := url.Parse(server)
	if err != nil {
		return fmt.Errorf("invalid --server URL: %w", err)
	}
	u.Path = "/relations/" + relation
	if runID != "" {
		q := u.Query()
		q.Set("run_id", runID)
		u.RawQuery = q.Encode()
	}

	resp, err := http.Get(u.String())
	if err != nil {
		return fmt.Errorf("querying %s: %w", u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errBody struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errBody)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, errBody.Error)
	}

	var rel relationResponse
	if err := json.NewDecoder(resp.Body).Decode(&rel); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	out, err := selectSink(format)
	if err != nil {
		return err
	}
	return out.Emit(rel.Relation, rowsToTuples(rel.Rows))
}

// rowsToTuples adapts the wire format ([][]string, since the server does
// not know the querying client's Schema) back into a term.Tuple sequence
// of symbol constants, sufficient for display purposes.
func rowsToTuples(rows [][]string) iter.Seq[term.Tuple] {
	tuples := make([]term.Tuple, len(rows))
	for i, row := range rows {
		tup := make(term.Tuple, len(row))
		for j, v := range row {
			tup[j] = term.Sym(v)
		}
		tuples[i] = tup
	}
	return sink.Seq(tuples)
}
