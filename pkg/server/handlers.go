package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/duynguyendang/gca-datalog/internal/engine"
	"github.com/duynguyendang/gca-datalog/internal/term"
	"github.com/duynguyendang/gca-datalog/pkg/apperr"
	"github.com/duynguyendang/gca-datalog/pkg/datalog"
)

// evaluateRequest is the POST /evaluate body: program text plus, since a
// request has no filesystem to load a data directory from, EDB facts
// given inline (a relation name to a list of column-value rows).
type evaluateRequest struct {
	Program     string              `json:"program" binding:"required"`
	Facts       map[string][]string `json:"facts,omitempty"`
	Parallelism int                 `json:"parallelism,omitempty"`
	Explain     bool                `json:"explain,omitempty"`
	MaxTuples   int                 `json:"max_tuples,omitempty"`
}

type evaluateResponse struct {
	RunID   string   `json:"run_id"`
	Stages  []string `json:"stages"`
	Explain []string `json:"explain,omitempty"`
}

// handleEvaluate parses and runs a Datalog program, storing the result
// under its RunID for later GET /relations/{name} calls.
func (s *Server) handleEvaluate(c *gin.Context) {
	var req evaluateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handleError(c, apperr.SchemaViolation("<request>", err.Error()))
		return
	}

	prog, inlineFacts, err := datalog.Parse(req.Program)
	if err != nil {
		handleError(c, apperr.SchemaViolation("<program>", err.Error()))
		return
	}

	edb, err := decodeInlineFacts(prog, req.Facts)
	if err != nil {
		handleError(c, apperr.SchemaViolation("<facts>", err.Error()))
		return
	}
	for relation, tuples := range inlineFacts {
		edb[relation] = append(edb[relation], tuples...)
	}

	res, err := engine.Run(c.Request.Context(), prog, edb, engine.Options{
		Parallelism: req.Parallelism,
		Explain:     req.Explain,
		MaxTuples:   req.MaxTuples,
		Logger:      s.logger,
	})
	if err != nil {
		handleError(c, err)
		return
	}

	s.mu.Lock()
	s.runs.Add(res.RunID, &run{prog: prog, result: res})
	s.latest = res.RunID
	s.mu.Unlock()

	stages := make([]string, len(res.Stages))
	for i, st := range res.Stages {
		stages[i] = st.Members[0]
		if len(st.Members) > 1 {
			stages[i] = st.Members[0] + " (+more)"
		}
	}

	c.JSON(http.StatusOK, evaluateResponse{RunID: res.RunID, Stages: stages, Explain: res.Explain})
}

// decodeInlineFacts turns a flat "column1,column2,..." string-per-row
// request body into typed Tuples per the resolved Program's Schema.
func decodeInlineFacts(prog term.Program, facts map[string][]string) (map[string][]term.Tuple, error) {
	edb := make(map[string][]term.Tuple, len(facts))
	for relation, rows := range facts {
		schema, ok := prog.Schema(relation)
		if !ok {
			return nil, apperr.SchemaViolation(relation, "no such relation")
		}
		tuples := make([]term.Tuple, 0, len(rows))
		for _, row := range rows {
			cols := strings.Split(row, ",")
			if len(cols) != schema.Arity() {
				return nil, apperr.SchemaViolation(relation, "row column count does not match declared arity")
			}
			tup := make(term.Tuple, len(cols))
			for i, col := range cols {
				col = strings.TrimSpace(col)
				if schema.Columns[i] == term.Integer {
					n, err := strconv.ParseInt(col, 10, 64)
					if err != nil {
						return nil, apperr.SchemaViolation(relation, "column "+col+" is not an integer")
					}
					tup[i] = term.Int(n)
				} else {
					tup[i] = term.Sym(col)
				}
			}
			tuples = append(tuples, tup)
		}
		edb[relation] = tuples
	}
	return edb, nil
}

// handleRelation returns a relation's current tuples as JSON rows. The
// run to read from is selected by ?run_id=..., defaulting to the most
// recently evaluated run.
func (s *Server) handleRelation(c *gin.Context) {
	name := c.Param("name")
	runID := c.Query("run_id")

	s.mu.RLock()
	if runID == "" {
		runID = s.latest
	}
	s.mu.RUnlock()
	r, ok := s.runs.Get(runID)
	if !ok {
		handleError(c, apperr.UndeclaredOutput(name))
		return
	}

	pattern := term.OutputPattern(nil)
	for _, o := range r.prog.Outputs {
		if o.Relation == name {
			pattern = o.Pattern
			break
		}
	}

	rows, err := queryRelation(r.result, name, pattern)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"relation": name, "rows": encodeTuples(rows)})
}

func queryRelation(res *engine.Result, name string, pattern term.OutputPattern) ([]term.Tuple, error) {
	prog := term.Program{Outputs: []term.OutputDecl{{Relation: name, Pattern: pattern}}}
	out, err := engine.QueryOutputs(prog, res)
	if err != nil {
		return nil, err
	}
	return out[name], nil
}

func encodeTuples(tuples []term.Tuple) [][]string {
	rows := make([][]string, len(tuples))
	for i, t := range tuples {
		row := make([]string, len(t))
		for j, c := range t {
			row[j] = c.String()
		}
		rows[i] = row
	}
	return rows
}

func handleError(c *gin.Context, err error) {
	appErr := apperr.MapError(err)
	c.JSON(appErr.Code, gin.H{"error": appErr.Message})
}
