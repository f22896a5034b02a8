package clock_test

import (
	"context"
	"testing"

	"github.com/m-mizutani/gt"
	"google.golang.org/genai"

	"github.com/m-mizutani/burrow/pkg/tool/clock"
)

func TestGetCurrentTime(t *testing.T) {
	c := clock.New()
	ctx := context.Background()

	resp, err := c.Execute(ctx, genai.FunctionCall{Name: "get_current_time"})
	gt.NoError(t, err)
	gt.S(t, resp.Response["result"].(string)).Contains("T")

	resp, err = c.Execute(ctx, genai.FunctionCall{
		Name: "get_current_time",
		Args: map[string]any{"timezone": "Asia/Tokyo"},
	})
	gt.NoError(t, err)
	gt.S(t, resp.Response["result"].(string)).Contains("+09:00")

	_, err = c.Execute(ctx, genai.FunctionCall{
		Name: "get_current_time",
		Args: map[string]any{"timezone": "Not/AZone"},
	})
	gt.Error(t, err)
}
