// internal/service/assignment/infrastructure/cel_vendor_policy.go
package infrastructure

import (
	"fmt"

	"github.com/google/cel-go/cel"

	"tiffin/internal/service/assignment/domain"
)

// CELVendorPolicy 用一条 CEL 表达式过滤候选商家，表达式中可用变量 vendor（id / name / active）。
// 例如: vendor.active && vendor.name != "closed-kitchen"
type CELVendorPolicy struct {
	expr    string
	program cel.Program
}

func NewCELVendorPolicy(expr string) (*CELVendorPolicy, error) {
	env, err := cel.NewEnv(cel.Variable("vendor", cel.MapType(cel.StringType, cel.DynType)))
	if err != nil {
		return nil, fmt.Errorf("create cel env: %w", err)
	}
	ast, iss := env.Compile(expr)
	if iss.Err() != nil {
		return nil, fmt.Errorf("compile vendor policy %q: %w", expr, iss.Err())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("build vendor policy program: %w", err)
	}
	return &CELVendorPolicy{expr: expr, program: prg}, nil
}

func (p *CELVendorPolicy) Allow(v domain.Vendor) (bool, error) {
	out, _, err := p.program.Eval(map[string]any{
		"vendor": map[string]any{"id": v.ID, "name": v.Name, "active": v.Active},
	})
	if err != nil {
		return false, fmt.Errorf("evaluate vendor policy %q: %w", p.expr, err)
	}
	allowed, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("vendor policy %q returned %T, want bool", p.expr, out.Value())
	}
	return allowed, nil
}
