package zonal

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// Stat names a built-in reduction.
type Stat string

// Built-in reductions. All are weighted by coverage fraction, and by the
// weight raster when one is supplied, unless noted.
const (
	StatCount        Stat = "count"
	StatSum          Stat = "sum"
	StatMean         Stat = "mean"
	StatMin          Stat = "min" // unweighted
	StatMax          Stat = "max" // unweighted
	StatMode         Stat = "mode"
	StatMajority     Stat = "majority"
	StatMinority     Stat = "minority"
	StatVariety      Stat = "variety" // unweighted
	StatVariance     Stat = "variance"
	StatStdev        Stat = "stdev"
	StatCoV          Stat = "coefficient_of_variation"
	StatMedian       Stat = "median"
	StatQuantile     Stat = "quantile"
	StatWeightedMean Stat = "weighted_mean"
	StatWeightedSum  Stat = "weighted_sum"
	StatCoverageArea Stat = "coverage_area"
	StatFrac         Stat = "frac"
	StatWeightedFrac Stat = "weighted_frac"
)

var knownStats = map[Stat]bool{
	StatCount: true, StatSum: true, StatMean: true, StatMin: true, StatMax: true,
	StatMode: true, StatMajority: true, StatMinority: true, StatVariety: true,
	StatVariance: true, StatStdev: true, StatCoV: true, StatMedian: true,
	StatQuantile: true, StatWeightedMean: true, StatWeightedSum: true,
	StatCoverageArea: true, StatFrac: true, StatWeightedFrac: true,
}

func (s Stat) needsWeights() bool {
	switch s {
	case StatWeightedMean, StatWeightedSum, StatWeightedFrac:
		return true
	}
	return false
}

func (s Stat) isTable() bool {
	return s == StatFrac || s == StatWeightedFrac
}

// Input is what a user function sees for one feature. Rows is set unless
// Options.SummarizeAsTable, in which case Table is set. Each call gets its
// own copy, so a function may sort or overwrite the arrays.
type Input struct {
	Feature int
	Rows    *Rows
	Table   *Table
}

// Result is a user function's answer: a scalar or a table fragment.
type Result struct {
	value float64
	table *Table
	isTab bool
}

// Scalar wraps a single value.
func Scalar(v float64) Result { return Result{value: v} }

// TableResult wraps a table fragment. A nil table means zero rows.
func TableResult(t *Table) Result { return Result{table: t, isTab: true} }

// UserFunc is a caller-supplied reduction.
type UserFunc func(Input) (Result, error)

type opKind int

const (
	kindBuiltin opKind = iota
	kindFunc
	kindTableFunc
)

// Operation is either a built-in Stat or a user function. It is resolved
// once per Summarize call.
type Operation struct {
	kind opKind
	name string
	stat Stat
	q    float64
	fn   UserFunc
}

// Builtin returns the built-in operation s. Use Quantile for StatQuantile.
func Builtin(s Stat) Operation {
	if s == StatMajority {
		return Operation{kind: kindBuiltin, name: string(s), stat: StatMode}
	}
	if s == StatMedian {
		return Operation{kind: kindBuiltin, name: string(s), stat: StatQuantile, q: 0.5}
	}
	return Operation{kind: kindBuiltin, name: string(s), stat: s}
}

// Quantile returns the weighted quantile operation for q in [0, 1]. Its
// column is named like q25 for q = 0.25.
func Quantile(q float64) Operation {
	return Operation{
		kind: kindBuiltin,
		name: "q" + strconv.FormatFloat(q*100, 'f', -1, 64),
		stat: StatQuantile,
		q:    q,
	}
}

// Func returns a scalar-valued user operation.
func Func(name string, fn UserFunc) Operation {
	return Operation{kind: kindFunc, name: name, fn: fn}
}

// TableFunc returns a table-valued user operation.
func TableFunc(name string, fn UserFunc) Operation {
	return Operation{kind: kindTableFunc, name: name, fn: fn}
}

// ParseOperation parses a built-in name such as "mean" or "quantile(0.25)".
func ParseOperation(s string) (Operation, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if arg, ok := strings.CutPrefix(s, "quantile("); ok {
		arg, ok = strings.CutSuffix(arg, ")")
		if !ok {
			return Operation{}, eris.Errorf("zonal: malformed operation %q", s)
		}
		q, err := strconv.ParseFloat(strings.TrimSpace(arg), 64)
		if err != nil {
			return Operation{}, eris.Wrapf(err, "zonal: quantile argument %q", arg)
		}
		if q < 0 || q > 1 {
			return Operation{}, eris.Errorf("zonal: quantile %v outside [0, 1]", q)
		}
		return Quantile(q), nil
	}

	st := Stat(s)
	if st == StatQuantile {
		return Operation{}, eris.New("zonal: quantile needs an argument, e.g. quantile(0.25)")
	}
	if !knownStats[st] {
		return Operation{}, eris.Errorf("zonal: unknown operation %q", s)
	}
	return Builtin(st), nil
}

// ParseOperations parses each name with ParseOperation.
func ParseOperations(names []string) ([]Operation, error) {
	ops := make([]Operation, 0, len(names))
	for _, n := range names {
		op, err := ParseOperation(n)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return ops, nil
}

// Name is the output column name.
func (op Operation) Name() string { return op.name }

// IsTable reports whether the operation yields a table fragment per feature.
func (op Operation) IsTable() bool {
	switch op.kind {
	case kindTableFunc:
		return true
	case kindBuiltin:
		return op.stat.isTable()
	}
	return false
}

// apply runs the operation on one feature's rows.
func (op Operation) apply(feature int, rows *Rows, asTable bool) (Result, error) {
	if op.kind == kindBuiltin {
		if op.stat.isTable() {
			return TableResult(fractions(rows, op.stat == StatWeightedFrac)), nil
		}
		return Scalar(reduce(op.stat, op.q, rows)), nil
	}

	// Each func gets its own copy so that in-place edits stay local.
	in := Input{Feature: feature}
	if asTable {
		in.Table = rows.Table()
	} else {
		in.Rows = rows.Clone()
	}
	res, err := call(op.fn, in)
	if err != nil {
		return Result{}, &OperationError{Feature: feature, Operation: op.name, Err: err}
	}
	if res.isTab != op.IsTable() {
		return Result{}, &OperationError{
			Feature:   feature,
			Operation: op.name,
			Err:       eris.New("result kind does not match operation kind"),
		}
	}
	return res, nil
}

// call runs fn, reporting a panic as an error.
func call(fn UserFunc, in Input) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = eris.Errorf("panic: %v", r)
		}
	}()
	return fn(in)
}
