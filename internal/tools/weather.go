package tools

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/firebase/genkit/go/ai"
)

// WeatherInput is the argument schema for getCurrentWeather.
type WeatherInput struct {
	Location string `json:"location" jsonschema_description:"City and country, e.g. 'Manila, Philippines' or 'Jakarta, Indonesia'"`
	Unit     string `json:"unit,omitempty" jsonschema_description:"Temperature unit: 'celsius' (default) or 'fahrenheit'"`
}

// WeatherReport is the structured result returned to the model.
type WeatherReport struct {
	Location    string `json:"location"`
	Temperature int    `json:"temperature"`
	Unit        string `json:"unit"`
	Condition   string `json:"condition"`
	Forecast    string `json:"forecast"`
}

// RegisterWeatherTool adds the getCurrentWeather tool to the registry.
// The implementation is simulated; swapping in a real weather API changes
// only this function body.
func RegisterWeatherTool(r *Registry) error {
	return Register(r, "getCurrentWeather",
		"Get the current weather in a specific location.",
		func(_ *ai.ToolContext, in WeatherInput) (string, error) {
			unit := in.Unit
			if unit == "" {
				unit = "celsius"
			}
			if unit != "celsius" && unit != "fahrenheit" {
				return "", fmt.Errorf("unsupported unit %q", unit)
			}

			report := simulateWeather(in.Location, unit)
			out, err := json.Marshal(report)
			if err != nil {
				return "", fmt.Errorf("encoding weather report: %w", err)
			}
			return string(out), nil
		})
}

// simulateWeather fabricates a stable report per location so conversations
// and tests are deterministic.
func simulateWeather(location, unit string) WeatherReport {
	var tempC int
	var condition string
	switch {
	case strings.Contains(strings.ToLower(location), "jakarta"):
		tempC, condition = 30, "Hot and humid"
	case strings.Contains(strings.ToLower(location), "manila"):
		tempC, condition = 32, "Scattered showers"
	default:
		tempC, condition = 27, "Partly cloudy"
	}

	temp := tempC
	if unit == "fahrenheit" {
		temp = tempC*9/5 + 32
	}

	return WeatherReport{
		Location:    location,
		Temperature: temp,
		Unit:        unit,
		Condition:   condition,
		Forecast:    "Stable for the next few hours.",
	}
}
