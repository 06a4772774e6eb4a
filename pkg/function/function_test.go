package function

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"

	"github.com/joeydtaylor/steeze-pool/pkg/library"
)

func TestParseType(t *testing.T) {
	cases := map[string]cty.Type{
		"string":                          cty.String,
		"number":                          cty.Number,
		"bool":                            cty.Bool,
		"any":                             cty.DynamicPseudoType,
		"":                                cty.DynamicPseudoType,
		"list(string)":                    cty.List(cty.String),
		"set(number)":                     cty.Set(cty.Number),
		"map(bool)":                       cty.Map(cty.Bool),
		`object({name=string, "age"=number})`: cty.Object(map[string]cty.Type{"name": cty.String, "age": cty.Number}),
	}
	for src, want := range cases {
		got, err := ParseType(src)
		require.NoError(t, err, src)
		assert.True(t, want.Equals(got), "%s: got %s", src, got.FriendlyName())
	}

	for _, bad := range []string{"strin", "list(string, number)", "tuple(string)", "object(string)", "1 +"} {
		_, err := ParseType(bad)
		assert.Error(t, err, bad)
	}
}

var sumSpecs = []library.ArgSpec{
	{Name: "a", Type: "number"},
	{Name: "b", Type: "number", Optional: true},
}

func TestBind_Query(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/sum?a=2&b=3", nil)
	args, err := Bind(r, sumSpecs)
	require.NoError(t, err)
	a, err := args.Int("a")
	require.NoError(t, err)
	assert.EqualValues(t, 2, a)
	assert.True(t, args.Has("b"))

	r = httptest.NewRequest(http.MethodGet, "/sum?a=2", nil)
	args, err = Bind(r, sumSpecs)
	require.NoError(t, err)
	assert.False(t, args.Has("b"))
	assert.True(t, args.Value("b").IsNull())
}

func TestBind_MissingAndMistyped(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/sum?b=1", nil)
	_, err := Bind(r, sumSpecs)
	var ae *ArgError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "a", ae.Name)
	assert.ErrorIs(t, err, ErrMissing)

	r = httptest.NewRequest(http.MethodGet, "/sum?a=two", nil)
	_, err = Bind(r, sumSpecs)
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "a", ae.Name)
}

func TestBind_RepeatedQueryList(t *testing.T) {
	specs := []library.ArgSpec{{Name: "n", Type: "list(number)"}}
	r := httptest.NewRequest(http.MethodGet, "/?n=1&n=2&n=3", nil)
	args, err := Bind(r, specs)
	require.NoError(t, err)
	var ns []int
	require.NoError(t, args.Decode("n", &ns))
	assert.Equal(t, []int{1, 2, 3}, ns)

	r = httptest.NewRequest(http.MethodGet, "/?n=%5B4%2C5%5D", nil)
	args, err = Bind(r, specs)
	require.NoError(t, err)
	require.NoError(t, args.Decode("n", &ns))
	assert.Equal(t, []int{4, 5}, ns)
}

func TestBind_JSONBody(t *testing.T) {
	specs := []library.ArgSpec{
		{Name: "user", Type: "object({name=string, age=number})"},
		{Name: "extra", Type: "any", Optional: true},
	}
	body := `{"user":{"name":"ada","age":36},"extra":[1,"x"]}`
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")

	args, err := Bind(r, specs)
	require.NoError(t, err)

	var user struct {
		Name string `cty:"name"`
		Age  int    `cty:"age"`
	}
	require.NoError(t, args.Decode("user", &user))
	assert.Equal(t, "ada", user.Name)
	assert.Equal(t, 36, user.Age)
	assert.True(t, args.Has("extra"))

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"user":{"name":"ada","age":"old"}}`))
	r.Header.Set("Content-Type", "application/json")
	_, err = Bind(r, specs)
	var ae *ArgError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "user", ae.Name)

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`[1]`))
	r.Header.Set("Content-Type", "application/json")
	_, err = Bind(r, specs)
	assert.Error(t, err)
}

func TestBind_FormBody(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/sum", strings.NewReader("a=7"))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	args, err := Bind(r, sumSpecs)
	require.NoError(t, err)
	f, err := args.Float("a")
	require.NoError(t, err)
	assert.Equal(t, 7.0, f)
}

func TestTable(t *testing.T) {
	Register("test.double", func(_ context.Context, a Args) (any, error) {
		n, err := a.Int("n")
		return n * 2, err
	})
	fn, ok := Lookup("test.double")
	require.True(t, ok)
	out, err := fn(context.Background(), Args{"n": cty.NumberIntVal(21)})
	require.NoError(t, err)
	assert.EqualValues(t, 42, out)
	assert.Contains(t, Names(), "test.double")

	_, ok = Lookup("test.missing")
	assert.False(t, ok)
}

func TestEncode(t *testing.T) {
	b, ct, err := Encode("hi")
	require.NoError(t, err)
	assert.Equal(t, "hi", string(b))
	assert.Equal(t, "text/plain; charset=utf-8", ct)

	b, ct, err = Encode(map[string]int{"b": 1, "a": 2})
	require.NoError(t, err)
	assert.Equal(t, `{"a":2,"b":1}`, string(b))
	assert.Equal(t, "application/json", ct)

	b, _, err = Encode(cty.ObjectVal(map[string]cty.Value{"x": cty.True}))
	require.NoError(t, err)
	assert.Equal(t, `{"x":true}`, string(b))

	b, ct, err = Encode([]byte{1, 2})
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2}, b)
	assert.Equal(t, "application/octet-stream", ct)
}
