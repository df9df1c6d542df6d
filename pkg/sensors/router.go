package sensors

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
)

// Decoder turns the raw JSON of a payload's "value" field into a Reading.
type Decoder func(value json.RawMessage) (Reading, error)

// Router maps feature names to the Decoder for that kind. A Router is read-only once
// handed to a pipeline and is safe for concurrent use from then on.
type Router struct {
	decoders map[string]Decoder
}

// NewRouter returns a Router with no features. Use Handle to add them, or DefaultRouter.
func NewRouter() *Router {
	return &Router{decoders: make(map[string]Decoder)}
}

// DefaultRouter recognizes temperature, humidity, light, motion, airquality and airpressure.
func DefaultRouter() *Router {
	r := NewRouter()
	r.Handle(FeatureTemperature, Float32Decoder(func(v float32) Reading { return Temperature{Value: v} }))
	r.Handle(FeatureHumidity, Float32Decoder(func(v float32) Reading { return Humidity{Value: v} }))
	r.Handle(FeatureLight, Float32Decoder(func(v float32) Reading { return Light{Value: v} }))
	r.Handle(FeatureAirPressure, Float32Decoder(func(v float32) Reading { return AirPressure{Value: v} }))
	r.Handle(FeatureAirQuality, Int32Decoder(func(v int32) Reading { return AirQuality{Value: v} }))
	r.Handle(FeatureMotion, BoolDecoder(func(v bool) Reading { return Motion{Value: v} }))
	return r
}

// Handle registers the decoder for a feature, replacing any previous one.
func (r *Router) Handle(feature string, decoder Decoder) {
	r.decoders[feature] = decoder
}

// Route returns the decoder for feature, or ErrUnknownFeature.
func (r *Router) Route(feature string) (Decoder, error) {
	decoder, ok := r.decoders[feature]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFeature, feature)
	}
	return decoder, nil
}

// Features lists the recognized feature names in sorted order.
func (r *Router) Features() []string {
	features := make([]string, 0, len(r.decoders))
	for f := range r.decoders {
		features = append(features, f)
	}
	sort.Strings(features)
	return features
}

// Float32Decoder expects a JSON number. Integers are accepted; the value is narrowed to float32,
// losing precision. Numbers beyond the float32 range are rejected.
func Float32Decoder(build func(float32) Reading) Decoder {
	return func(value json.RawMessage) (Reading, error) {
		var f float64
		if err := json.Unmarshal(value, &f); err != nil {
			return nil, fmt.Errorf("%w: want a number, got %s", ErrPayloadShapeMismatch, value)
		}
		narrowed := float32(f)
		if math.IsInf(float64(narrowed), 0) {
			return nil, fmt.Errorf("%w: %s is out of float32 range", ErrPayloadShapeMismatch, value)
		}
		return build(narrowed), nil
	}
}

// Int32Decoder expects a JSON integer within the int32 range.
func Int32Decoder(build func(int32) Reading) Decoder {
	return func(value json.RawMessage) (Reading, error) {
		var i int64
		if err := json.Unmarshal(value, &i); err != nil {
			return nil, fmt.Errorf("%w: want an integer, got %s", ErrPayloadShapeMismatch, value)
		}
		if i < math.MinInt32 || i > math.MaxInt32 {
			return nil, fmt.Errorf("%w: %d is out of int32 range", ErrPayloadShapeMismatch, i)
		}
		return build(int32(i)), nil
	}
}

// BoolDecoder expects a JSON boolean.
func BoolDecoder(build func(bool) Reading) Decoder {
	return func(value json.RawMessage) (Reading, error) {
		var b bool
		if err := json.Unmarshal(value, &b); err != nil {
			return nil, fmt.Errorf("%w: want a boolean, got %s", ErrPayloadShapeMismatch, value)
		}
		return build(b), nil
	}
}

var jsonNull = []byte("null")

// valueField extracts the raw "value" member of a payload object.
func valueField(payload json.RawMessage) (json.RawMessage, error) {
	var body struct {
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, fmt.Errorf("%w: payload is not an object: %v", ErrPayloadShapeMismatch, err)
	}
	if len(body.Value) == 0 || bytes.Equal(bytes.TrimSpace(body.Value), jsonNull) {
		return nil, fmt.Errorf("%w: payload has no value", ErrPayloadShapeMismatch)
	}
	return body.Value, nil
}
