package function

import (
	"fmt"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
)

// ParseType parses an argument type expression: string, number, bool, any,
// list(T), set(T), map(T) or object({name = T, ...}).
func ParseType(src string) (cty.Type, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return cty.DynamicPseudoType, nil
	}
	expr, diags := hclsyntax.ParseExpression([]byte(src), "type", hcl.Pos{Line: 1, Column: 1})
	if diags.HasErrors() {
		return cty.NilType, fmt.Errorf("type %q: %s", src, diags.Error())
	}
	return typeOf(expr)
}

func typeOf(expr hclsyntax.Expression) (cty.Type, error) {
	switch v := expr.(type) {
	case *hclsyntax.ScopeTraversalExpr:
		if len(v.Traversal) != 1 {
			return cty.NilType, fmt.Errorf("invalid type keyword")
		}
		switch name := v.Traversal.RootName(); name {
		case "string":
			return cty.String, nil
		case "number":
			return cty.Number, nil
		case "bool":
			return cty.Bool, nil
		case "any":
			return cty.DynamicPseudoType, nil
		default:
			return cty.NilType, fmt.Errorf("unknown primitive type %q", name)
		}

	case *hclsyntax.FunctionCallExpr:
		if len(v.Args) != 1 {
			return cty.NilType, fmt.Errorf("%s() takes exactly one argument, got %d", v.Name, len(v.Args))
		}
		if v.Name == "object" {
			return objectOf(v.Args[0])
		}
		elem, err := typeOf(v.Args[0])
		if err != nil {
			return cty.NilType, err
		}
		switch v.Name {
		case "list":
			return cty.List(elem), nil
		case "set":
			return cty.Set(elem), nil
		case "map":
			return cty.Map(elem), nil
		default:
			return cty.NilType, fmt.Errorf("unknown type constructor %q", v.Name)
		}
	}
	return cty.NilType, fmt.Errorf("unsupported type expression %T", expr)
}

func objectOf(expr hclsyntax.Expression) (cty.Type, error) {
	obj, ok := expr.(*hclsyntax.ObjectConsExpr)
	if !ok {
		return cty.NilType, fmt.Errorf("object() needs an object literal, got %T", expr)
	}
	attrs := make(map[string]cty.Type, len(obj.Items))
	for _, item := range obj.Items {
		key := objectKey(item.KeyExpr)
		if key == "" {
			return cty.NilType, fmt.Errorf("object type keys must be identifiers or quoted strings")
		}
		t, err := typeOf(item.ValueExpr)
		if err != nil {
			return cty.NilType, fmt.Errorf("attribute %q: %w", key, err)
		}
		attrs[key] = t
	}
	return cty.Object(attrs), nil
}

func objectKey(expr hclsyntax.Expression) string {
	k, ok := expr.(*hclsyntax.ObjectConsKeyExpr)
	if !ok {
		return ""
	}
	switch w := k.Wrapped.(type) {
	case *hclsyntax.ScopeTraversalExpr:
		if len(w.Traversal) == 1 {
			return w.Traversal.RootName()
		}
	case *hclsyntax.TemplateExpr:
		if len(w.Parts) == 1 {
			if lit, ok := w.Parts[0].(*hclsyntax.LiteralValueExpr); ok && lit.Val.Type().Equals(cty.String) {
				return lit.Val.AsString()
			}
		}
	}
	return ""
}
