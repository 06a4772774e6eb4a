package function

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/gocty"
	ctyjson "github.com/zclconf/go-cty/cty/json"

	"github.com/joeydtaylor/steeze-pool/pkg/library"
)

// MaxBodyBytes caps JSON argument bodies.
const MaxBodyBytes = 1 << 20

// ArgError reports an argument that is missing or does not match its
// declared type. The dispatcher answers it with 400.
type ArgError struct {
	Name string
	Err  error
}

func (e *ArgError) Error() string { return fmt.Sprintf("argument %q: %v", e.Name, e.Err) }
func (e *ArgError) Unwrap() error { return e.Err }

var ErrMissing = errors.New("required")

// Args are the bound, type-checked arguments of one call. Optional
// arguments that were not supplied are null.
type Args map[string]cty.Value

// Bind extracts the declared arguments from r. POST requests with a JSON
// body read arguments from the body's top-level object; everything else
// reads query and form values.
func Bind(r *http.Request, specs []library.ArgSpec) (Args, error) {
	types := make([]cty.Type, len(specs))
	for i, s := range specs {
		t, err := ParseType(s.Type)
		if err != nil {
			return nil, &ArgError{Name: s.Name, Err: err}
		}
		types[i] = t
	}

	if r.Method == http.MethodPost && isJSON(r.Header.Get("Content-Type")) {
		return bindJSON(r, specs, types)
	}
	if err := r.ParseForm(); err != nil {
		return nil, &ArgError{Name: "", Err: err}
	}
	out := make(Args, len(specs))
	for i, s := range specs {
		vals, ok := r.Form[s.Name]
		if !ok || len(vals) == 0 {
			if !s.Optional {
				return nil, &ArgError{Name: s.Name, Err: ErrMissing}
			}
			out[s.Name] = cty.NullVal(types[i])
			continue
		}
		v, err := fromStrings(vals, types[i])
		if err != nil {
			return nil, &ArgError{Name: s.Name, Err: err}
		}
		out[s.Name] = v
	}
	return out, nil
}

func bindJSON(r *http.Request, specs []library.ArgSpec, types []cty.Type) (Args, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, MaxBodyBytes+1))
	if err != nil {
		return nil, &ArgError{Err: err}
	}
	if len(body) > MaxBodyBytes {
		return nil, &ArgError{Err: errors.New("body too large")}
	}
	fields := map[string]json.RawMessage{}
	if len(strings.TrimSpace(string(body))) > 0 {
		if err := json.Unmarshal(body, &fields); err != nil {
			return nil, &ArgError{Err: fmt.Errorf("body must be a JSON object: %w", err)}
		}
	}

	out := make(Args, len(specs))
	for i, s := range specs {
		raw, ok := fields[s.Name]
		if !ok || string(raw) == "null" {
			if !s.Optional {
				return nil, &ArgError{Name: s.Name, Err: ErrMissing}
			}
			out[s.Name] = cty.NullVal(types[i])
			continue
		}
		t := types[i]
		if t.Equals(cty.DynamicPseudoType) {
			if t, err = ctyjson.ImpliedType(raw); err != nil {
				return nil, &ArgError{Name: s.Name, Err: err}
			}
		}
		v, err := ctyjson.Unmarshal(raw, t)
		if err != nil {
			return nil, &ArgError{Name: s.Name, Err: err}
		}
		out[s.Name] = v
	}
	return out, nil
}

// fromStrings converts query values to t. Primitives convert from their
// string form; a collection of primitives accepts repeated keys; anything
// else must be JSON.
func fromStrings(vals []string, t cty.Type) (cty.Value, error) {
	last := vals[len(vals)-1]
	switch {
	case t.Equals(cty.DynamicPseudoType), t.Equals(cty.String):
		return cty.StringVal(last), nil
	case t.IsPrimitiveType():
		return convert.Convert(cty.StringVal(strings.TrimSpace(last)), t)
	case (t.IsListType() || t.IsSetType()) && t.ElementType().IsPrimitiveType() &&
		!strings.HasPrefix(strings.TrimSpace(last), "["):
		elems := make([]cty.Value, len(vals))
		for i, s := range vals {
			elems[i] = cty.StringVal(s)
		}
		return convert.Convert(cty.TupleVal(elems), t)
	}
	return ctyjson.Unmarshal([]byte(last), t)
}

func isJSON(ct string) bool {
	mt, _, err := mime.ParseMediaType(ct)
	return err == nil && (mt == "application/json" || strings.HasSuffix(mt, "+json"))
}

// Value returns the named argument, or a dynamic null when absent.
func (a Args) Value(name string) cty.Value {
	if v, ok := a[name]; ok {
		return v
	}
	return cty.NullVal(cty.DynamicPseudoType)
}

// Has reports whether name was supplied.
func (a Args) Has(name string) bool {
	v, ok := a[name]
	return ok && !v.IsNull()
}

// Decode copies the named argument into the Go value pointed to by out.
func (a Args) Decode(name string, out any) error {
	v, ok := a[name]
	if !ok {
		return &ArgError{Name: name, Err: ErrMissing}
	}
	if err := gocty.FromCtyValue(v, out); err != nil {
		return &ArgError{Name: name, Err: err}
	}
	return nil
}

func (a Args) String(name string) (string, error) {
	var s string
	err := a.Decode(name, &s)
	return s, err
}

func (a Args) Int(name string) (int64, error) {
	var n int64
	err := a.Decode(name, &n)
	return n, err
}

func (a Args) Float(name string) (float64, error) {
	var f float64
	err := a.Decode(name, &f)
	return f, err
}

func (a Args) Bool(name string) (bool, error) {
	var b bool
	err := a.Decode(name, &b)
	return b, err
}
