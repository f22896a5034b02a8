// Package clock provides the get_current_time tool.
package clock

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
	"google.golang.org/genai"
)

type Clock struct {
	// now is swappable for tests
	now func() time.Time
}

// New creates the get_current_time tool
func New() *Clock {
	return &Clock{now: time.Now}
}

func (x *Clock) Flags() []cli.Flag { return nil }

func (x *Clock) Prompt(ctx context.Context) string { return "" }

func (x *Clock) Spec() *genai.Tool {
	return &genai.Tool{
		FunctionDeclarations: []*genai.FunctionDeclaration{
			{
				Name:        "get_current_time",
				Description: "Get the current date and time, optionally in a specific IANA timezone",
				Parameters: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"timezone": {
							Type:        genai.TypeString,
							Description: `IANA timezone name, e.g. "Asia/Tokyo" (default: UTC)`,
						},
					},
				},
			},
		},
	}
}

func (x *Clock) Execute(ctx context.Context, fc genai.FunctionCall) (*genai.FunctionResponse, error) {
	loc := time.UTC
	if tz, ok := fc.Args["timezone"].(string); ok && tz != "" {
		var err error
		loc, err = time.LoadLocation(tz)
		if err != nil {
			return nil, goerr.Wrap(err, "unknown timezone", goerr.V("timezone", tz))
		}
	}

	return &genai.FunctionResponse{
		Name:     fc.Name,
		Response: map[string]any{"result": x.now().In(loc).Format(time.RFC3339)},
	}, nil
}
