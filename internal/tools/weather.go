package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// CheckWeatherTool fetches the SMHI point forecast for a work site so the
// user can plan outdoor work like concrete pours or roofing.
type CheckWeatherTool struct {
	apiURL     string
	httpClient *http.Client
}

type smhiResponse struct {
	TimeSeries []smhiEntry `json:"timeSeries"`
}

type smhiEntry struct {
	ValidTime  time.Time       `json:"validTime"`
	Parameters []smhiParameter `json:"parameters"`
}

type smhiParameter struct {
	Name   string    `json:"name"`
	Unit   string    `json:"unit"`
	Values []float64 `json:"values"`
}

func NewCheckWeatherTool(apiURL string) *CheckWeatherTool {
	if apiURL == "" {
		apiURL = "https://opendata-download-metfcst.smhi.se"
	}
	return &CheckWeatherTool{
		apiURL: apiURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

func (t *CheckWeatherTool) Name() string   { return "check_weather" }
func (t *CheckWeatherTool) Safety() Safety { return SafetySafe }

func (t *CheckWeatherTool) Description() string {
	return "Get the SMHI weather forecast for a site in Sweden. Useful when scheduling weather-sensitive work such as concrete, roofing or painting."
}

func (t *CheckWeatherTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"latitude": {"type": "number", "description": "Site latitude in decimal degrees"},
			"longitude": {"type": "number", "description": "Site longitude in decimal degrees"},
			"hours": {"type": "integer", "description": "Forecast horizon in hours (default 24, max 72)"}
		},
		"required": ["latitude", "longitude"]
	}`)
}

func (t *CheckWeatherTool) Execute(ctx context.Context, _ ExecutionContext, args json.RawMessage) (ToolResult, error) {
	var input struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
		Hours     int     `json:"hours"`
	}
	if err := json.Unmarshal(args, &input); err != nil {
		return errorResult("failed to parse arguments: %v", err), nil
	}
	if input.Hours <= 0 {
		input.Hours = 24
	}
	if input.Hours > 72 {
		input.Hours = 72
	}

	forecast, err := t.fetch(ctx, input.Latitude, input.Longitude)
	if err != nil {
		return errorResult("weather lookup failed: %v", err), nil
	}

	return ToolResult{Content: t.format(forecast, input.Hours)}, nil
}

func (t *CheckWeatherTool) fetch(ctx context.Context, lat, lon float64) (*smhiResponse, error) {
	url := fmt.Sprintf(
		"%s/api/category/pmp3g/version/2/geotype/point/lon/%.6f/lat/%.6f/data.json",
		t.apiURL, lon, lat,
	)

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("SMHI error (status %d): %s", resp.StatusCode, string(body))
	}

	var forecast smhiResponse
	if err := json.Unmarshal(body, &forecast); err != nil {
		return nil, fmt.Errorf("failed to parse forecast: %w", err)
	}
	return &forecast, nil
}

func (t *CheckWeatherTool) format(forecast *smhiResponse, hours int) string {
	if len(forecast.TimeSeries) == 0 {
		return "No forecast data available for this location."
	}

	cutoff := time.Now().Add(time.Duration(hours) * time.Hour)
	var b strings.Builder
	b.WriteString("SMHI forecast:\n")

	shown := 0
	for _, entry := range forecast.TimeSeries {
		if entry.ValidTime.After(cutoff) {
			break
		}
		temp, hasTemp := entry.value("t")
		wind, hasWind := entry.value("ws")
		rain, hasRain := entry.value("pmean")

		fmt.Fprintf(&b, "%s:", entry.ValidTime.Format("Mon 15:04"))
		if hasTemp {
			fmt.Fprintf(&b, " %.1f°C", temp)
		}
		if hasWind {
			fmt.Fprintf(&b, ", wind %.1f m/s", wind)
		}
		if hasRain {
			fmt.Fprintf(&b, ", precipitation %.1f mm/h", rain)
		}
		b.WriteString("\n")

		shown++
		if shown >= 12 {
			break
		}
	}

	if shown == 0 {
		return "No forecast entries within the requested horizon."
	}
	return strings.TrimSpace(b.String())
}

func (e smhiEntry) value(name string) (float64, bool) {
	for _, p := range e.Parameters {
		if p.Name == name && len(p.Values) > 0 {
			return p.Values[0], true
		}
	}
	return 0, false
}
