// Package toycsp implements a small finite-domain backtracking constraint
// solver satisfying the solver.Solver interface. It stands in for the
// external sequential constraint solver this module treats as out of
// scope: a real deployment would plug in a production CP/SAT engine behind
// the same interface, either in-process (as toycsp demonstrates) or behind
// the rpcsolver network proxy.
//
// Instances are described directly in Go (NewInstance) or parsed from a
// minimal line-oriented text format by LoadInstance/Parse; the concrete file
// format is this package's own demonstration convention, not a standard the
// core prescribes.
package toycsp

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math/big"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rivo/uniseg"

	"github.com/gallia/parsolve/internal/perr"
	"github.com/gallia/parsolve/solver"
)

// Variable is a finite-domain variable with an inclusive integer range.
type Variable struct {
	Name string
	Lo   int64
	Hi   int64
}

// Constraint is a predicate over a complete assignment restricted to the
// variables it names. Pred receives only the named variables' values, in
// the order returned by Vars.
type Constraint struct {
	Vars []string
	Pred func(values map[string]int64) bool
}

// Objective declares an optimization variable and its sense. Variable must
// be one of the instance's variables.
type Objective struct {
	Variable string
	Sense    solver.Sense
}

// Instance is the in-memory problem description.
type Instance struct {
	Variables   []Variable
	Constraints []Constraint
	Objective   *Objective // nil for a pure decision problem
	Auxiliary   []string   // names (subset of Variables) considered auxiliary
}

// Solver is a solver.Solver backed by Instance, implementing exhaustive
// backtracking search with assumption-consistent domain restriction.
type Solver struct {
	mu sync.Mutex // serializes reset/load/solve against the instance

	loaded   bool
	instance Instance
	varIndex map[string]int

	lower, upper *big.Int // objective bounds, nil if no objective
	bestCost     *big.Int // best objective value found, nil until first solution
	bestSolution map[string]*big.Int

	decisionOrder []string
	valueOrder    map[string][]int64

	interrupted        bool
	verbosity          int
	lastResult         solver.Result
	ignoredConstraints map[int]bool
}

// New returns a Solver with no instance loaded.
func New() *Solver {
	return &Solver{}
}

// NewWithInstance returns a Solver pre-loaded with inst, useful for tests
// and for oracle solvers used by consistency checkers.
func NewWithInstance(inst Instance) *Solver {
	s := New()
	s.setInstance(inst)
	return s
}

func (s *Solver) setInstance(inst Instance) {
	s.instance = inst
	s.varIndex = make(map[string]int, len(inst.Variables))
	for i, v := range inst.Variables {
		s.varIndex[v.Name] = i
	}
	if inst.Objective != nil {
		lo, hi := s.domainRange(inst.Objective.Variable)
		s.lower = big.NewInt(lo)
		s.upper = big.NewInt(hi)
	}
	s.bestCost = nil
	s.bestSolution = nil
	s.loaded = true
}

func (s *Solver) domainRange(name string) (lo, hi int64) {
	for _, v := range s.instance.Variables {
		if v.Name == name {
			return v.Lo, v.Hi
		}
	}
	return 0, 0
}

// LoadInstance parses the toycsp text format from file and installs it.
//
// Format (one directive per line, blank lines and # comments ignored):
//
//	var NAME LO HI
//	aux NAME
//	objective NAME minimize|maximize
//	constraint OP ARG [ARG ...]
//
// constraint supports a small fixed grammar: "eq A B", "neq A B",
// "lt A B", "le A B", "or A=1 B=1" (disjunction of var=const literals),
// "sum A B ... = N".
func (s *Solver) LoadInstance(ctx context.Context, file string) error {
	f, err := os.Open(file)
	if err != nil {
		return perr.New(perr.Protocol, "toycsp.LoadInstance", err)
	}
	defer f.Close()

	inst, err := Parse(bufio.NewScanner(f))
	if err != nil {
		return perr.New(perr.Protocol, "toycsp.LoadInstance", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.setInstance(inst)
	return nil
}

// Reset clears search state; the instance remains loaded. Configured state
// (objective bounds, ignored constraints, heuristics) survives, since the
// coordinator assigns it before the reset-then-solve cycle it drives.
func (s *Solver) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		return perr.New(perr.ContractViolation, "toycsp.Reset", fmt.Errorf("no instance loaded"))
	}
	s.bestCost = nil
	s.bestSolution = nil
	s.interrupted = false
	s.lastResult = solver.Unknown
	return nil
}

func (s *Solver) requireLoaded(op string) error {
	if !s.loaded {
		return perr.New(perr.ContractViolation, op, fmt.Errorf("no instance loaded"))
	}
	return nil
}

func (s *Solver) NVariables(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireLoaded("toycsp.NVariables"); err != nil {
		return 0, err
	}
	return len(s.instance.Variables), nil
}

func (s *Solver) NConstraints(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireLoaded("toycsp.NConstraints"); err != nil {
		return 0, err
	}
	return len(s.instance.Constraints), nil
}

func (s *Solver) IsOptimization(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireLoaded("toycsp.IsOptimization"); err != nil {
		return false, err
	}
	return s.instance.Objective != nil, nil
}

func (s *Solver) IsMinimization(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.instance.Objective == nil {
		return false, perr.New(perr.Unsupported, "toycsp.IsMinimization", fmt.Errorf("not an optimization instance"))
	}
	return s.instance.Objective.Sense == solver.Minimize, nil
}

func (s *Solver) GetAuxiliaryVariables(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.instance.Auxiliary))
	copy(out, s.instance.Auxiliary)
	return out, nil
}

func (s *Solver) GetVariablesMapping(ctx context.Context) (map[string]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.varIndex))
	for k, v := range s.varIndex {
		out[k] = v
	}
	return out, nil
}

// Solve performs a blocking exhaustive search with no initial assumptions.
func (s *Solver) Solve(ctx context.Context) error {
	return s.solve(ctx, nil)
}

// SolveFile is a convenience that reloads file and then solves it.
func (s *Solver) SolveFile(ctx context.Context, file string) error {
	if err := s.LoadInstance(ctx, file); err != nil {
		return err
	}
	return s.Solve(ctx)
}

// SolveAssumptions performs a blocking search restricted to cube.
func (s *Solver) SolveAssumptions(ctx context.Context, cube solver.Cube) error {
	return s.solve(ctx, cube)
}

func (s *Solver) solve(ctx context.Context, cube solver.Cube) error {
	s.mu.Lock()
	if err := s.requireLoaded("toycsp.Solve"); err != nil {
		s.mu.Unlock()
		return err
	}
	// A pending interrupt survives into the search; only Reset clears it,
	// matching the reset-then-resolve cycle the coordinator drives.
	order := s.searchOrder()
	domains, neq, err := s.domainsFromCube(cube)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	// The objective variable additionally honors the assigned [lower,
	// upper] window, so a solver confined to a sub-range of the objective
	// never reports a cost outside it.
	if domains != nil && s.instance.Objective != nil {
		name := s.instance.Objective.Variable
		d := domains[name]
		if s.lower != nil && s.lower.IsInt64() && s.lower.Int64() > d.lo {
			d.lo = s.lower.Int64()
		}
		if s.upper != nil && s.upper.IsInt64() && s.upper.Int64() < d.hi {
			d.hi = s.upper.Int64()
		}
		domains[name] = d
		if d.lo > d.hi {
			domains = nil
		}
	}
	s.mu.Unlock()

	assignment := make(map[string]int64, len(order))
	s.backtrack(ctx, order, 0, domains, neq, assignment)

	s.mu.Lock()
	s.lastResult = s.classifyOutcome()
	s.mu.Unlock()
	return nil
}

// classifyOutcome must be called with s.mu held, after search has stopped.
func (s *Solver) classifyOutcome() solver.Result {
	if s.interrupted {
		return solver.Unknown
	}
	if s.bestSolution == nil {
		return solver.Unsatisfiable
	}
	if s.instance.Objective == nil {
		return solver.Satisfiable
	}
	return solver.OptimumFound
}

func (s *Solver) Result(ctx context.Context) (solver.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastResult, nil
}

func (s *Solver) searchOrder() []string {
	if len(s.decisionOrder) > 0 {
		return s.decisionOrder
	}
	order := make([]string, len(s.instance.Variables))
	for i, v := range s.instance.Variables {
		order[i] = v.Name
	}
	return order
}

type domain struct{ lo, hi int64 }

// domainsFromCube narrows each variable's domain under the cube's
// assumptions. Interior Neq exclusions that cannot be folded into a
// contiguous domain are reported separately for enforcement during
// enumeration. A nil domain map (with nil error) means the cube is
// inconsistent on its own: some domain emptied out.
func (s *Solver) domainsFromCube(cube solver.Cube) (map[string]domain, map[string][]int64, error) {
	domains := make(map[string]domain, len(s.instance.Variables))
	for _, v := range s.instance.Variables {
		domains[v.Name] = domain{lo: v.Lo, hi: v.Hi}
	}
	var neq map[string][]int64
	for _, a := range cube {
		d, ok := domains[a.Variable]
		if !ok {
			return nil, nil, perr.New(perr.Protocol, "toycsp.domainsFromCube", fmt.Errorf("unknown variable %q in cube", a.Variable))
		}
		val := a.Value.Int64()
		switch a.Relation {
		case solver.Eq:
			if val < d.lo || val > d.hi {
				return nil, nil, nil // inconsistent cube: empty domain, handled by caller seeing no solution
			}
			domains[a.Variable] = domain{lo: val, hi: val}
		case solver.Neq:
			switch {
			case val == d.lo:
				domains[a.Variable] = domain{lo: d.lo + 1, hi: d.hi}
			case val == d.hi:
				domains[a.Variable] = domain{lo: d.lo, hi: d.hi - 1}
			case val > d.lo && val < d.hi:
				if neq == nil {
					neq = make(map[string][]int64)
				}
				neq[a.Variable] = append(neq[a.Variable], val)
			}
		case solver.Ge:
			if val > d.lo {
				domains[a.Variable] = domain{lo: val, hi: d.hi}
			}
		case solver.Lt:
			if val-1 < d.hi {
				domains[a.Variable] = domain{lo: d.lo, hi: val - 1}
			}
		}
		if dd := domains[a.Variable]; dd.lo > dd.hi {
			return nil, nil, nil // inconsistent cube: empty domain
		}
	}
	return domains, neq, nil
}

// backtrack enumerates assignments depth-first; on the first assignment
// satisfying every constraint it records it as the current solution (for a
// decision problem, search stops there; for an optimization problem it
// keeps searching for better objective values within [lower, upper] until
// exhausted or interrupted).
func (s *Solver) backtrack(ctx context.Context, order []string, idx int, domains map[string]domain, neq map[string][]int64, assignment map[string]int64) bool {
	if domains == nil {
		return false
	}
	select {
	case <-ctx.Done():
		s.mu.Lock()
		s.interrupted = true
		s.mu.Unlock()
		return false
	default:
	}
	s.mu.Lock()
	interrupted := s.interrupted
	s.mu.Unlock()
	if interrupted {
		return false
	}

	if idx == len(order) {
		if !s.satisfiesAll(assignment) {
			return false
		}
		return s.considerAssignment(assignment)
	}

	name := order[idx]
	d := domains[name]
	values := s.orderedValues(name, d)
	for _, v := range values {
		if excludedByNeq(neq, name, v) {
			continue
		}
		assignment[name] = v
		if s.partialOK(assignment) {
			stop := s.backtrack(ctx, order, idx+1, domains, neq, assignment)
			if stop && s.instance.Objective == nil {
				return true
			}
		}
		delete(assignment, name)
	}
	return false
}

// excludedByNeq enforces the interior Neq assumptions domainsFromCube could
// not fold into a contiguous domain.
func excludedByNeq(neq map[string][]int64, name string, v int64) bool {
	for _, x := range neq[name] {
		if x == v {
			return true
		}
	}
	return false
}

func (s *Solver) orderedValues(name string, d domain) []int64 {
	if vals, ok := s.valueOrder[name]; ok {
		out := make([]int64, 0, len(vals))
		for _, v := range vals {
			if v >= d.lo && v <= d.hi {
				out = append(out, v)
			}
		}
		return out
	}
	out := make([]int64, 0, d.hi-d.lo+1)
	for v := d.lo; v <= d.hi; v++ {
		out = append(out, v)
	}
	return out
}

// partialOK checks every constraint whose variables are all currently
// assigned, pruning inconsistent branches early.
func (s *Solver) partialOK(assignment map[string]int64) bool {
	for i, c := range s.instance.Constraints {
		if s.ignoredConstraints[i] {
			continue
		}
		if !allAssigned(c.Vars, assignment) {
			continue
		}
		if !c.Pred(subset(assignment, c.Vars)) {
			return false
		}
	}
	return true
}

func (s *Solver) satisfiesAll(assignment map[string]int64) bool {
	for i, c := range s.instance.Constraints {
		if s.ignoredConstraints[i] {
			continue
		}
		if !c.Pred(subset(assignment, c.Vars)) {
			return false
		}
	}
	return true
}

// SetIgnoredConstraints marks exactly the constraints at the given indices
// as ignored; every other constraint index becomes active. Used by the
// partition strategy to restrict this worker's solver to its assigned
// block of the decomposition, toggling a per-constraint "ignored" flag
// during beforeSearch(i).
func (s *Solver) SetIgnoredConstraints(ctx context.Context, ignored []int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := make(map[int]bool, len(ignored))
	for _, i := range ignored {
		set[i] = true
	}
	s.ignoredConstraints = set
	return nil
}

func allAssigned(vars []string, assignment map[string]int64) bool {
	for _, v := range vars {
		if _, ok := assignment[v]; !ok {
			return false
		}
	}
	return true
}

func subset(assignment map[string]int64, vars []string) map[string]int64 {
	out := make(map[string]int64, len(vars))
	for _, v := range vars {
		out[v] = assignment[v]
	}
	return out
}

// considerAssignment records a satisfying assignment. For a decision
// problem it always stops the search (returns true). For an optimization
// problem it updates the best solution if the objective improves, and
// tightens the bound driving subsequent pruning, but returns false so the
// caller keeps searching for a better one within [lower, upper].
func (s *Solver) considerAssignment(assignment map[string]int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.instance.Objective == nil {
		s.bestSolution = toBigMap(assignment)
		return true
	}

	cost := big.NewInt(assignment[s.instance.Objective.Variable])
	// Bounds set mid-search (a rebalance narrowing this solver's window)
	// are read here on every candidate, so they take effect without a
	// reset-and-resolve.
	if s.lower != nil && cost.Cmp(s.lower) < 0 {
		return false
	}
	if s.upper != nil && cost.Cmp(s.upper) > 0 {
		return false
	}
	if s.bestCost != nil {
		if s.instance.Objective.Sense == solver.Minimize && cost.Cmp(s.bestCost) >= 0 {
			return false
		}
		if s.instance.Objective.Sense == solver.Maximize && cost.Cmp(s.bestCost) <= 0 {
			return false
		}
	}
	s.bestCost = cost
	s.bestSolution = toBigMap(assignment)
	return false
}

func toBigMap(assignment map[string]int64) map[string]*big.Int {
	out := make(map[string]*big.Int, len(assignment))
	for k, v := range assignment {
		out[k] = big.NewInt(v)
	}
	return out
}

func (s *Solver) Interrupt(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interrupted = true
	return nil
}

func (s *Solver) Solution(ctx context.Context) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bestSolution == nil {
		return nil, perr.New(perr.ContractViolation, "toycsp.Solution", fmt.Errorf("no solution available"))
	}
	names := make([]string, 0, len(s.bestSolution))
	for n := range s.bestSolution {
		names = append(names, n)
	}
	sort.Strings(names)
	out := make([]int64, len(names))
	for i, n := range names {
		out[i] = s.bestSolution[n].Int64()
	}
	return out, nil
}

func (s *Solver) MapSolution(ctx context.Context, excludeAux bool) (solver.Solution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bestSolution == nil {
		return solver.Solution{}, perr.New(perr.ContractViolation, "toycsp.MapSolution", fmt.Errorf("no solution available"))
	}
	aux := make(map[string]bool, len(s.instance.Auxiliary))
	for _, a := range s.instance.Auxiliary {
		aux[a] = true
	}
	values := make(map[string]*big.Int, len(s.bestSolution))
	for k, v := range s.bestSolution {
		if excludeAux && aux[k] {
			continue
		}
		values[k] = new(big.Int).Set(v)
	}
	return solver.Solution{Values: values, IncludesAuxiliary: !excludeAux && len(aux) > 0}, nil
}

func (s *Solver) CheckSolution(ctx context.Context) (bool, error) {
	s.mu.Lock()
	sol := s.bestSolution
	s.mu.Unlock()
	if sol == nil {
		return false, perr.New(perr.ContractViolation, "toycsp.CheckSolution", fmt.Errorf("no solution available"))
	}
	assignment := make(map[string]int64, len(sol))
	for k, v := range sol {
		assignment[k] = v.Int64()
	}
	return s.satisfiesAll(assignment), nil
}

func (s *Solver) CheckSolutionAssignment(ctx context.Context, assign solver.Solution) (bool, error) {
	assignment := make(map[string]int64, len(assign.Values))
	for k, v := range assign.Values {
		assignment[k] = v.Int64()
	}
	return s.satisfiesAll(assignment), nil
}

func (s *Solver) SetLowerBound(ctx context.Context, v solver.Bound) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lower = new(big.Int).Set(v.Value)
	return nil
}

func (s *Solver) SetUpperBound(ctx context.Context, v solver.Bound) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upper = new(big.Int).Set(v.Value)
	return nil
}

func (s *Solver) SetBounds(ctx context.Context, lower, upper solver.Bound) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lower = new(big.Int).Set(lower.Value)
	s.upper = new(big.Int).Set(upper.Value)
	return nil
}

func (s *Solver) GetLowerBound(ctx context.Context) (solver.Bound, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lower == nil {
		return solver.Bound{}, perr.New(perr.Unsupported, "toycsp.GetLowerBound", fmt.Errorf("not an optimization instance"))
	}
	return solver.Bound{Value: new(big.Int).Set(s.lower), Sense: s.instance.Objective.Sense}, nil
}

func (s *Solver) GetUpperBound(ctx context.Context) (solver.Bound, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.upper == nil {
		return solver.Bound{}, perr.New(perr.Unsupported, "toycsp.GetUpperBound", fmt.Errorf("not an optimization instance"))
	}
	return solver.Bound{Value: new(big.Int).Set(s.upper), Sense: s.instance.Objective.Sense}, nil
}

func (s *Solver) GetCurrentBound(ctx context.Context) (solver.Bound, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.instance.Objective == nil {
		return solver.Bound{}, perr.New(perr.Unsupported, "toycsp.GetCurrentBound", fmt.Errorf("not an optimization instance"))
	}
	if s.bestCost == nil {
		if s.instance.Objective.Sense == solver.Minimize {
			return solver.Bound{Value: new(big.Int).Set(s.upper), Sense: solver.Minimize}, nil
		}
		return solver.Bound{Value: new(big.Int).Set(s.lower), Sense: solver.Maximize}, nil
	}
	return solver.Bound{Value: new(big.Int).Set(s.bestCost), Sense: s.instance.Objective.Sense}, nil
}

func (s *Solver) DecisionVariables(ctx context.Context, vars []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decisionOrder = append([]string(nil), vars...)
	return nil
}

func (s *Solver) ValueHeuristicStatic(ctx context.Context, vars []string, orderedValues [][]int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.valueOrder == nil {
		s.valueOrder = make(map[string][]int64)
	}
	for i, v := range vars {
		if i < len(orderedValues) {
			s.valueOrder[v] = orderedValues[i]
		}
	}
	return nil
}

// SetTimeout is accepted but not enforced: toycsp has no wall-clock of its
// own, matching the core's own stance of leaving timeout enforcement to the
// underlying solver rather than the coordinator.
func (s *Solver) SetTimeout(ctx context.Context, d time.Duration) error { return nil }

func (s *Solver) SetVerbosity(ctx context.Context, level int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.verbosity = level
	return nil
}

func (s *Solver) SetLogFile(ctx context.Context, path string) error {
	return nil
}

// SetLogStream satisfies solver.LogStreamer; toycsp produces no log output
// of its own, so the writer is accepted and unused.
func (s *Solver) SetLogStream(ctx context.Context, w io.Writer) error {
	return nil
}

// Parse reads the toycsp text format from sc and returns an Instance.
func Parse(sc *bufio.Scanner) (Instance, error) {
	var inst Instance
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		switch fields[0] {
		case "var":
			if len(fields) != 4 {
				return Instance{}, fmt.Errorf("toycsp: malformed var line %q", line)
			}
			lo, err := strconv.ParseInt(fields[2], 10, 64)
			if err != nil {
				return Instance{}, fmt.Errorf("toycsp: %w", err)
			}
			hi, err := strconv.ParseInt(fields[3], 10, 64)
			if err != nil {
				return Instance{}, fmt.Errorf("toycsp: %w", err)
			}
			inst.Variables = append(inst.Variables, Variable{Name: fields[1], Lo: lo, Hi: hi})
		case "aux":
			inst.Auxiliary = append(inst.Auxiliary, fields[1:]...)
		case "objective":
			if len(fields) != 3 {
				return Instance{}, fmt.Errorf("toycsp: malformed objective line %q", line)
			}
			sense := solver.Minimize
			if fields[2] == "maximize" {
				sense = solver.Maximize
			}
			inst.Objective = &Objective{Variable: fields[1], Sense: sense}
		case "constraint":
			c, err := parseConstraint(fields[1:])
			if err != nil {
				return Instance{}, err
			}
			inst.Constraints = append(inst.Constraints, c)
		default:
			return Instance{}, fmt.Errorf("toycsp: unknown directive %q", fields[0])
		}
	}
	if err := sc.Err(); err != nil {
		return Instance{}, err
	}
	return inst, nil
}

func parseConstraint(fields []string) (Constraint, error) {
	if len(fields) < 2 {
		return Constraint{}, fmt.Errorf("toycsp: malformed constraint %v", fields)
	}
	op := fields[0]
	switch op {
	case "eq", "neq", "lt", "le":
		a, b := fields[1], fields[2]
		pred := func(values map[string]int64) bool {
			va, vb := lookup(values, a), lookup(values, b)
			switch op {
			case "eq":
				return va == vb
			case "neq":
				return va != vb
			case "lt":
				return va < vb
			default:
				return va <= vb
			}
		}
		return Constraint{Vars: []string{a, b}, Pred: pred}, nil
	case "or":
		literals := fields[1:]
		vars := make([]string, 0, len(literals))
		type lit struct {
			name string
			val  int64
		}
		lits := make([]lit, 0, len(literals))
		for _, l := range literals {
			parts := strings.SplitN(l, "=", 2)
			if len(parts) != 2 {
				return Constraint{}, fmt.Errorf("toycsp: malformed or-literal %q", l)
			}
			v, err := strconv.ParseInt(parts[1], 10, 64)
			if err != nil {
				return Constraint{}, fmt.Errorf("toycsp: %w", err)
			}
			vars = append(vars, parts[0])
			lits = append(lits, lit{name: parts[0], val: v})
		}
		return Constraint{Vars: vars, Pred: func(values map[string]int64) bool {
			for _, l := range lits {
				if values[l.name] == l.val {
					return true
				}
			}
			return false
		}}, nil
	case "sum":
		if len(fields) < 4 || fields[len(fields)-2] != "=" {
			return Constraint{}, fmt.Errorf("toycsp: malformed sum constraint %v", fields)
		}
		vars := fields[1 : len(fields)-2]
		target, err := strconv.ParseInt(fields[len(fields)-1], 10, 64)
		if err != nil {
			return Constraint{}, fmt.Errorf("toycsp: %w", err)
		}
		return Constraint{Vars: vars, Pred: func(values map[string]int64) bool {
			var sum int64
			for _, v := range vars {
				sum += values[v]
			}
			return sum == target
		}}, nil
	default:
		return Constraint{}, fmt.Errorf("toycsp: unknown constraint operator %q", op)
	}
}

// PrettyPrint renders sol as a column-aligned "name  value" table, one line
// per variable, sorted by name. Column widths are measured with
// uniseg.StringWidth rather than len/utf8.RuneCountInString so that
// multi-byte or combining-rune variable names still line up.
func PrettyPrint(sol solver.Solution) string {
	names := make([]string, 0, len(sol.Values))
	for n := range sol.Values {
		names = append(names, n)
	}
	sort.Strings(names)

	width := 0
	for _, n := range names {
		if w := uniseg.StringWidth(n); w > width {
			width = w
		}
	}

	var b strings.Builder
	for _, n := range names {
		pad := width - uniseg.StringWidth(n)
		fmt.Fprintf(&b, "%s%s  %s\n", n, strings.Repeat(" ", pad), sol.Values[n].String())
	}
	return b.String()
}

func lookup(values map[string]int64, token string) int64 {
	if v, ok := values[token]; ok {
		return v
	}
	n, _ := strconv.ParseInt(token, 10, 64)
	return n
}
