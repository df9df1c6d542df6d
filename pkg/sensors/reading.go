package sensors

// Recognized feature names. Each one is also the name of the store collection that holds
// sensors of that kind.
const (
	FeatureTemperature = "temperature"
	FeatureHumidity    = "humidity"
	FeatureLight       = "light"
	FeatureMotion      = "motion"
	FeatureAirQuality  = "airquality"
	FeatureAirPressure = "airpressure"
)

// Reading is one typed sensor value. The implementations in this package form a closed
// set; NormalizedValue lets storage treat every kind as a single float.
type Reading interface {
	// Kind returns the feature name the reading belongs to.
	Kind() string
	// NormalizedValue returns the reading as a float64. Booleans map to 1 and 0.
	NormalizedValue() float64

	isReading()
}

// Temperature is a continuous reading, narrowed to float32 on decode.
type Temperature struct {
	Value float32 `json:"value"`
}

func (Temperature) Kind() string               { return FeatureTemperature }
func (r Temperature) NormalizedValue() float64 { return float64(r.Value) }
func (Temperature) isReading()                 {}

// Humidity is a continuous reading, narrowed to float32 on decode.
type Humidity struct {
	Value float32 `json:"value"`
}

func (Humidity) Kind() string               { return FeatureHumidity }
func (r Humidity) NormalizedValue() float64 { return float64(r.Value) }
func (Humidity) isReading()                 {}

// Light is a continuous reading, narrowed to float32 on decode.
type Light struct {
	Value float32 `json:"value"`
}

func (Light) Kind() string               { return FeatureLight }
func (r Light) NormalizedValue() float64 { return float64(r.Value) }
func (Light) isReading()                 {}

// AirPressure is a continuous reading, narrowed to float32 on decode.
type AirPressure struct {
	Value float32 `json:"value"`
}

func (AirPressure) Kind() string               { return FeatureAirPressure }
func (r AirPressure) NormalizedValue() float64 { return float64(r.Value) }
func (AirPressure) isReading()                 {}

// AirQuality is a discrete index, narrowed to int32 on decode.
type AirQuality struct {
	Value int32 `json:"value"`
}

func (AirQuality) Kind() string               { return FeatureAirQuality }
func (r AirQuality) NormalizedValue() float64 { return float64(r.Value) }
func (AirQuality) isReading()                 {}

// Motion reports presence.
type Motion struct {
	Value bool `json:"value"`
}

func (Motion) Kind() string { return FeatureMotion }

func (r Motion) NormalizedValue() float64 {
	if r.Value {
		return 1
	}
	return 0
}

func (Motion) isReading() {}
