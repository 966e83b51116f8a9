package policy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/open-policy-agent/opa/rego"
)

const (
	denyQuery = "data.escopt.deny"
	warnQuery = "data.escopt.warn"
)

// RegoEvaluator runs rego policies against the recommendation input.
// Policies declare package escopt and produce deny and warn message sets.
// Both queries are compiled once and are safe for concurrent use.
type RegoEvaluator struct {
	modules map[string]string
	deny    *rego.PreparedEvalQuery
	warn    *rego.PreparedEvalQuery
}

// LoadRegoDir reads and compiles every *.rego file in dir.
func LoadRegoDir(dir string) (*RegoEvaluator, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.rego"))
	if err != nil {
		return nil, fmt.Errorf("failed to list policies: %w", err)
	}
	modules := make(map[string]string, len(files))
	for _, file := range files {
		content, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", file, err)
		}
		modules[filepath.Base(file)] = string(content)
	}
	return NewRegoEvaluator(modules)
}

// NewRegoEvaluator validates the given modules, keyed by file name, and
// prepares the deny and warn queries over all of them.
func NewRegoEvaluator(modules map[string]string) (*RegoEvaluator, error) {
	e := &RegoEvaluator{modules: modules}
	if len(modules) == 0 {
		return e, nil
	}

	for name, src := range modules {
		_, err := rego.New(rego.Query(denyQuery), rego.Module(name, src)).PrepareForEval(context.Background())
		if err != nil {
			return nil, fmt.Errorf("invalid policy %s: %w", name, err)
		}
	}

	var err error
	if e.deny, err = prepare(denyQuery, modules); err != nil {
		return nil, fmt.Errorf("failed to prepare %s: %w", denyQuery, err)
	}
	if e.warn, err = prepare(warnQuery, modules); err != nil {
		return nil, fmt.Errorf("failed to prepare %s: %w", warnQuery, err)
	}
	return e, nil
}

func prepare(query string, modules map[string]string) (*rego.PreparedEvalQuery, error) {
	opts := []func(*rego.Rego){rego.Query(query)}
	for name, src := range modules {
		opts = append(opts, rego.Module(name, src))
	}
	pq, err := rego.New(opts...).PrepareForEval(context.Background())
	if err != nil {
		return nil, err
	}
	return &pq, nil
}

// Len returns the number of loaded modules.
func (e *RegoEvaluator) Len() int { return len(e.modules) }

// Evaluate returns the deny and warn messages produced for input.
func (e *RegoEvaluator) Evaluate(ctx context.Context, input map[string]any) (denials, warnings []string, err error) {
	if e.deny == nil || e.warn == nil {
		return nil, nil, nil
	}
	denials, err = evalQuery(ctx, e.deny, input)
	if err != nil {
		return nil, nil, err
	}
	warnings, err = evalQuery(ctx, e.warn, input)
	if err != nil {
		return nil, nil, err
	}
	return denials, warnings, nil
}

func evalQuery(ctx context.Context, pq *rego.PreparedEvalQuery, input map[string]any) ([]string, error) {
	rs, err := pq.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, err
	}

	var messages []string
	for _, result := range rs {
		for _, expr := range result.Expressions {
			if set, ok := expr.Value.([]interface{}); ok {
				for _, v := range set {
					if msg, ok := v.(string); ok {
						messages = append(messages, msg)
					}
				}
			}
		}
	}
	// set order is not guaranteed
	sort.Strings(messages)
	return messages, nil
}
