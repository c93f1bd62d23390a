package connectutil

import "encoding/json"

// JSONCodec marshals plain Go structs with encoding/json, so procedures can
// be served without generated protobuf types. It registers under the name
// "json" and answers application/json requests.
type JSONCodec struct{}

func (JSONCodec) Name() string { return "json" }

func (JSONCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (JSONCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
