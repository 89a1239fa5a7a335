package message

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
)

// DecodeArgs recovers a typed argument record from a Request or Reply's
// Args field. Args arrives as map[string]interface{} after a CBOR
// round-trip (or already as the concrete struct, for in-process calls that
// skip the wire). Decoding goes through mapstructure with the same
// weakly-typed, case-insensitive configuration the teacher uses to decode
// untyped tool arguments, so a byte slice that crossed the wire as a
// []interface{} of numbers still lands in the right Go field. A string
// decoded into a []byte field yields the string's raw bytes; it is not
// base64-decoded.
func DecodeArgs(raw interface{}, out interface{}) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
		MatchName:        caseInsensitiveMatch,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeHookFunc(time.RFC3339),
		),
	})
	if err != nil {
		return fmt.Errorf("message: build decoder: %w", err)
	}
	if err := dec.Decode(raw); err != nil {
		return fmt.Errorf("message: decode args: %w", err)
	}
	return nil
}

func caseInsensitiveMatch(mapKey, fieldName string) bool {
	return strings.EqualFold(mapKey, fieldName)
}

// ArgsToMap flattens a typed argument record (or an already-generic map)
// into map[string]interface{}, for TransformRule field extraction.
func ArgsToMap(args interface{}) (map[string]interface{}, error) {
	if m, ok := args.(map[string]interface{}); ok {
		return m, nil
	}
	var out map[string]interface{}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  &out,
		TagName: "mapstructure",
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(args); err != nil {
		return nil, fmt.Errorf("message: args to map: %w", err)
	}
	return out, nil
}
