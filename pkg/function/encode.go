package function

import (
	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"

	"github.com/joeydtaylor/steeze-pool/pkg/codec"
)

// Encode turns a function result into a response body. Bytes and strings
// pass through; everything else is canonical JSON.
func Encode(v any) (body []byte, contentType string, err error) {
	switch x := v.(type) {
	case nil:
		return nil, "", nil
	case []byte:
		return x, "application/octet-stream", nil
	case string:
		return []byte(x), "text/plain; charset=utf-8", nil
	case cty.Value:
		b, err := ctyjson.Marshal(x, x.Type())
		if err != nil {
			return nil, "", err
		}
		return b, "application/json", nil
	}
	return codec.Canonical(v)
}
