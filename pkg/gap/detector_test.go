package gap_test

import (
	"context"
	"testing"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"

	"github.com/m-mizutani/burrow/pkg/gap"
)

type extractorFunc func(ctx context.Context, task string) ([]string, error)

func (f extractorFunc) ExtractCapabilities(ctx context.Context, task string) ([]string, error) {
	return f(ctx, task)
}

var baseTools = []string{"web_search", "read_file", "get_current_time"}

func TestDetectNoGap(t *testing.T) {
	extractor := extractorFunc(func(_ context.Context, _ string) ([]string, error) {
		return []string{"web_search", "read_file"}, nil
	})
	d, err := gap.New(extractor, nil)
	gt.NoError(t, err)

	report, err := d.Detect(context.Background(), "summarize the latest release notes", baseTools)
	gt.NoError(t, err)
	gt.Nil(t, report)
}

func TestDetectMissingCapability(t *testing.T) {
	extractor := extractorFunc(func(_ context.Context, _ string) ([]string, error) {
		return []string{"stock_price_lookup", "web_search"}, nil
	})
	d, err := gap.New(extractor, nil)
	gt.NoError(t, err)

	task := "What's the current price of AAPL and should I sell?"
	report, err := d.Detect(context.Background(), task, baseTools)
	gt.NoError(t, err)
	gt.V(t, report).NotNil()
	gt.A(t, report.MissingCapabilities).Length(1)
	gt.Equal(t, report.MissingCapabilities[0], "stock_price_lookup")
	gt.Equal(t, report.TaskDescription, task)
	gt.A(t, report.ExistingToolsChecked).Length(len(baseTools))
}

func TestDetectSubstringCoverage(t *testing.T) {
	extractor := extractorFunc(func(_ context.Context, _ string) ([]string, error) {
		return []string{"search", "file reading", "Current-Time"}, nil
	})
	d, err := gap.New(extractor, nil)
	gt.NoError(t, err)

	// "search" is a substring of "web_search" and "current_time" of
	// "get_current_time". "file reading" normalizes to "file_reading",
	// which neither contains nor is contained by "read_file", so it
	// must be reported.
	report, err := d.Detect(context.Background(), "find and read the config", baseTools)
	gt.NoError(t, err)
	gt.V(t, report).NotNil()
	gt.A(t, report.MissingCapabilities).Length(1)
	gt.Equal(t, report.MissingCapabilities[0], "file reading")
}

func TestDetectExtractorFailureIsAGap(t *testing.T) {
	extractor := extractorFunc(func(_ context.Context, _ string) ([]string, error) {
		return nil, goerr.New("model unavailable")
	})
	d, err := gap.New(extractor, nil)
	gt.NoError(t, err)

	report, err := d.Detect(context.Background(), "do something", baseTools)
	gt.NoError(t, err)
	gt.V(t, report).NotNil()
	gt.A(t, report.MissingCapabilities).Length(1)
	gt.Equal(t, report.MissingCapabilities[0], "unresolvable_task")
}

func TestDetectEmptyExtractionIsAGap(t *testing.T) {
	extractor := extractorFunc(func(_ context.Context, _ string) ([]string, error) {
		return nil, nil
	})
	d, err := gap.New(extractor, nil)
	gt.NoError(t, err)

	report, err := d.Detect(context.Background(), "do something", baseTools)
	gt.NoError(t, err)
	gt.V(t, report).NotNil()
	gt.Equal(t, report.MissingCapabilities[0], "unresolvable_task")
}

func TestDetectEmptyTask(t *testing.T) {
	extractor := extractorFunc(func(_ context.Context, _ string) ([]string, error) {
		return []string{"web_search"}, nil
	})
	d, err := gap.New(extractor, nil)
	gt.NoError(t, err)

	_, err = d.Detect(context.Background(), "   ", baseTools)
	gt.Error(t, err)
}

func TestDetectNoToolsAtAll(t *testing.T) {
	extractor := extractorFunc(func(_ context.Context, _ string) ([]string, error) {
		return []string{"web_search"}, nil
	})
	d, err := gap.New(extractor, nil)
	gt.NoError(t, err)

	report, err := d.Detect(context.Background(), "look something up", nil)
	gt.NoError(t, err)
	gt.V(t, report).NotNil()
	gt.A(t, report.MissingCapabilities).Length(1)
}

func TestNewRequiresExtractor(t *testing.T) {
	_, err := gap.New(nil, nil)
	gt.Error(t, err)
}
