package risk

import (
	"context"
	"os"
	"path/filepath"

	"github.com/m-mizutani/goerr/v2"
	"github.com/open-policy-agent/opa/v1/rego"

	"github.com/m-mizutani/burrow/pkg/model"
)

// LoadPolicyDir evaluates Rego policies under the data.risk package and
// returns options extending the built-in table. Policies declare additional
// tool entries and sensitive markers:
//
//	package risk
//
//	tools := {"rotate_keys": "IRREVERSIBLE"}
//	sensitive := ["vault"]
//
// Evaluation happens once here; Classify itself never touches a policy
// engine. A directory without .rego files yields no options.
func LoadPolicyDir(ctx context.Context, policyDir string) ([]Option, error) {
	files, err := filepath.Glob(filepath.Join(policyDir, "*.rego"))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to glob policy files", goerr.V("dir", policyDir))
	}
	if len(files) == 0 {
		return nil, nil
	}

	options := []func(*rego.Rego){rego.Query("data.risk")}
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to read policy file", goerr.V("path", file))
		}
		options = append(options, rego.Module(file, string(data)))
	}

	prepared, err := rego.New(options...).PrepareForEval(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to prepare risk policy")
	}

	rs, err := prepared.Eval(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to evaluate risk policy")
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return nil, nil
	}

	doc, ok := rs[0].Expressions[0].Value.(map[string]any)
	if !ok {
		return nil, goerr.New("risk policy document is not an object")
	}

	var opts []Option

	if tools, ok := doc["tools"].(map[string]any); ok {
		for name, raw := range tools {
			levelStr, ok := raw.(string)
			if !ok {
				return nil, goerr.New("risk policy tool level is not a string", goerr.V("tool", name))
			}
			level := model.RiskLevel(levelStr)
			if err := level.Validate(); err != nil {
				return nil, goerr.Wrap(err, "invalid risk level in policy", goerr.V("tool", name))
			}
			opts = append(opts, WithTool(name, level))
		}
	}

	if markers, ok := doc["sensitive"].([]any); ok {
		for _, raw := range markers {
			marker, ok := raw.(string)
			if !ok {
				return nil, goerr.New("risk policy sensitive marker is not a string", goerr.V("marker", raw))
			}
			opts = append(opts, WithSensitiveMarker(marker))
		}
	}

	return opts, nil
}
