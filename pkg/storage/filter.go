package storage

import (
	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types/ref"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.einride.tech/aip/filtering"
)

// FilterVarsMapper is implemented by any stored object that can be matched against an AIP-160 filter.
type FilterVarsMapper interface {
	FilterVariablesMap() map[string]any
}

type IncludeFunc func(FilterVarsMapper) bool

// Evaluator compiles a parsed AIP-160 filter into a predicate. An empty filter includes everything.
func Evaluator(filter filtering.Filter) (IncludeFunc, error) {
	if filter.CheckedExpr == nil {
		return func(_ FilterVarsMapper) bool {
			return true
		}, nil
	}

	env, err := Env()
	if err != nil {
		return nil, errors.Wrap(err, "creating cel env")
	}
	ast := cel.CheckedExprToAst(filter.CheckedExpr)

	program, err := env.Program(ast)
	if err != nil {
		return nil, errors.Wrap(err, "creating program from ast")
	}
	return func(f FilterVarsMapper) bool {
		out, det, err := program.Eval(f.FilterVariablesMap())
		if err != nil {
			logrus.WithError(err).
				WithField("details", det).
				Error("evaluating filter")
			return false
		}
		return out.Value() == true
	}, nil
}

func Env() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Function(filtering.FunctionEquals,
			cel.Overload(filtering.FunctionOverloadEqualsBool,
				[]*cel.Type{cel.BoolType, cel.BoolType},
				cel.BoolType,
				cel.BinaryBinding(func(lhs ref.Val, rhs ref.Val) ref.Val {
					return lhs.Equal(rhs)
				})),
			cel.Overload(filtering.FunctionOverloadEqualsString,
				[]*cel.Type{cel.StringType, cel.StringType},
				cel.BoolType,
				cel.BinaryBinding(func(lhs ref.Val, rhs ref.Val) ref.Val {
					return lhs.Equal(rhs)
				}))))
}
