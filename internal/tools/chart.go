package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"agentforge/chat-api/internal/domain/tool"
)

const (
	maxChartLabels = 100
	maxChartSeries = 10
)

var chartTypes = map[string]bool{"bar": true, "line": true, "area": true, "pie": true, "scatter": true}

// ChartSeries is one named set of values aligned with the labels.
type ChartSeries struct {
	Name string    `json:"name,omitempty"`
	Data []float64 `json:"data" validate:"min=1"`
}

// ChartArgs are the arguments of generate_chart and the normalized result.
type ChartArgs struct {
	Type   string        `json:"type" jsonschema:"enum=bar,enum=line,enum=area,enum=pie,enum=scatter"`
	Title  string        `json:"title"`
	Labels []string      `json:"labels" validate:"min=1"`
	Series []ChartSeries `json:"series" validate:"min=1,dive"`
}

// Chart validates chart specs for client side rendering.
type Chart struct{}

// Definition implements tool.Tool.
func (Chart) Definition() tool.Definition {
	return tool.Definition{
		Name:        "generate_chart",
		Description: "Render a chart for the user from labels and one or more numeric series.",
		Parameters:  tool.SchemaFor(ChartArgs{}),
	}
}

// Execute implements tool.Tool.
func (Chart) Execute(_ context.Context, _ tool.Env, raw json.RawMessage) (any, error) {
	args, err := decodeArgs[ChartArgs](raw)
	if err != nil {
		return nil, err
	}
	return NormalizeChart(args)
}

// NormalizeChart checks shape constraints and fills default series names.
func NormalizeChart(c ChartArgs) (ChartArgs, error) {
	c.Type = strings.ToLower(strings.TrimSpace(c.Type))
	if !chartTypes[c.Type] {
		return c, fmt.Errorf("unsupported chart type %q", c.Type)
	}
	c.Title = strings.TrimSpace(c.Title)
	if len(c.Labels) == 0 {
		return c, errors.New("at least one label is required")
	}
	if len(c.Labels) > maxChartLabels {
		return c, fmt.Errorf("at most %d labels are supported", maxChartLabels)
	}
	if len(c.Series) == 0 {
		return c, errors.New("at least one series is required")
	}
	if len(c.Series) > maxChartSeries {
		return c, fmt.Errorf("at most %d series are supported", maxChartSeries)
	}
	if c.Type == "pie" && len(c.Series) != 1 {
		return c, errors.New("pie charts take exactly one series")
	}

	series := make([]ChartSeries, len(c.Series))
	for i, s := range c.Series {
		if len(s.Data) != len(c.Labels) {
			return c, fmt.Errorf("series %d has %d values for %d labels", i+1, len(s.Data), len(c.Labels))
		}
		for _, v := range s.Data {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return c, fmt.Errorf("series %d contains a non-finite value", i+1)
			}
			if c.Type == "pie" && v < 0 {
				return c, errors.New("pie charts cannot contain negative values")
			}
		}
		name := strings.TrimSpace(s.Name)
		if name == "" {
			name = fmt.Sprintf("Series %d", i+1)
		}
		series[i] = ChartSeries{Name: name, Data: append([]float64(nil), s.Data...)}
	}
	c.Series = series

	labels := make([]string, len(c.Labels))
	for i, l := range c.Labels {
		labels[i] = strings.TrimSpace(l)
	}
	c.Labels = labels
	return c, nil
}
