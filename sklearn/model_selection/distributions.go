package model_selection

import (
	"fmt"
	"math/rand/v2"
	"sort"
	"strings"

	"gopkg.in/yaml.v2"

	"github.com/YuminosukeSato/mindepth/pkg/errors"
)

// ParamSet is one sampled hyperparameter configuration.
type ParamSet map[string]interface{}

// String renders the set with sorted keys, nil as None and strings quoted,
// e.g. {'max_depth': None, 'n_estimators': 250}.
func (p ParamSet) String() string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "'%s': %s", k, formatValue(p[k]))
	}
	b.WriteByte('}')
	return b.String()
}

func formatValue(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return "None"
	case string:
		return "'" + x + "'"
	default:
		return fmt.Sprint(x)
	}
}

// Distribution は1つのハイパーパラメータの標本分布
type Distribution interface {
	Sample(r *rand.Rand) interface{}
	Validate() error
	String() string
}

// RandInt samples integers uniformly from [Low, High).
type RandInt struct {
	Low  int
	High int
}

// Sample draws one integer.
func (d RandInt) Sample(r *rand.Rand) interface{} {
	return d.Low + r.IntN(d.High-d.Low)
}

// Validate requires a non-empty range.
func (d RandInt) Validate() error {
	if d.High <= d.Low {
		return errors.Newf("randint(%d, %d): high must be greater than low", d.Low, d.High)
	}
	return nil
}

func (d RandInt) String() string {
	return fmt.Sprintf("randint(%d, %d)", d.Low, d.High)
}

// Choice samples uniformly from a fixed list. A nil entry stands for "no value".
type Choice struct {
	Values []interface{}
}

// Sample draws one value.
func (d Choice) Sample(r *rand.Rand) interface{} {
	return d.Values[r.IntN(len(d.Values))]
}

// Validate requires at least one value.
func (d Choice) Validate() error {
	if len(d.Values) == 0 {
		return errors.New("choice: at least one value is required")
	}
	return nil
}

func (d Choice) String() string {
	parts := make([]string, len(d.Values))
	for i, v := range d.Values {
		parts[i] = formatValue(v)
	}
	return "choice[" + strings.Join(parts, ", ") + "]"
}

// Param binds a hyperparameter name to its distribution.
type Param struct {
	Name string
	Dist Distribution
}

// SearchSpace is an ordered set of hyperparameter distributions.
type SearchSpace struct {
	Params []Param
}

// Names returns the parameter names in declaration order.
func (s SearchSpace) Names() []string {
	names := make([]string, len(s.Params))
	for i, p := range s.Params {
		names[i] = p.Name
	}
	return names
}

// Validate returns a ConfigurationError for an empty space, a duplicated
// name or an invalid distribution.
func (s SearchSpace) Validate() error {
	if len(s.Params) == 0 {
		return errors.NewConfigurationError("search_space", "must define at least one parameter", 0)
	}
	seen := make(map[string]bool, len(s.Params))
	for _, p := range s.Params {
		if p.Name == "" {
			return errors.NewConfigurationError("search_space", "parameter name must not be empty", p.Dist)
		}
		if seen[p.Name] {
			return errors.NewConfigurationError("search_space."+p.Name, "duplicated parameter", p.Name)
		}
		seen[p.Name] = true
		if p.Dist == nil {
			return errors.NewConfigurationError("search_space."+p.Name, "missing distribution", nil)
		}
		if err := p.Dist.Validate(); err != nil {
			return errors.NewConfigurationError("search_space."+p.Name, err.Error(), p.Dist.String())
		}
	}
	return nil
}

// Sample draws one configuration. Parameters are visited in sorted name
// order so the draw does not depend on declaration order.
func (s SearchSpace) Sample(r *rand.Rand) ParamSet {
	params := make([]Param, len(s.Params))
	copy(params, s.Params)
	sort.Slice(params, func(i, j int) bool { return params[i].Name < params[j].Name })

	out := make(ParamSet, len(params))
	for _, p := range params {
		out[p.Name] = p.Dist.Sample(r)
	}
	return out
}

// SampleN draws n configurations from a single PCG stream seeded by seed.
func (s SearchSpace) SampleN(n int, seed uint64) []ParamSet {
	r := rand.New(rand.NewPCG(seed, 0))
	out := make([]ParamSet, n)
	for i := range out {
		out[i] = s.Sample(r)
	}
	return out
}

// DefaultForestSpace はランダムフォレストの既定の探索空間。
// max_depth の nil は深さ無制限を表す。
func DefaultForestSpace() SearchSpace {
	return SearchSpace{Params: []Param{
		{Name: "n_estimators", Dist: RandInt{Low: 100, High: 1000}},
		{Name: "max_depth", Dist: Choice{Values: []interface{}{nil, 5, 10, 15, 20, 25, 30, 35}}},
		{Name: "min_samples_split", Dist: RandInt{Low: 2, High: 10}},
		{Name: "min_samples_leaf", Dist: RandInt{Low: 1, High: 5}},
		{Name: "max_features", Dist: Choice{Values: []interface{}{"sqrt", "log2"}}},
	}}
}

// ParseSearchSpace reads a YAML search space of the form
//
//	n_estimators: {randint: [100, 1000]}
//	max_depth: {choice: [null, 5, 10]}
//	max_features: [sqrt, log2]        # shorthand for choice
//
// Declaration order is preserved. The result is validated.
func ParseSearchSpace(data []byte) (SearchSpace, error) {
	var doc yaml.MapSlice
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return SearchSpace{}, errors.NewConfigurationError("search_space", "invalid YAML: "+err.Error(), nil)
	}

	var space SearchSpace
	for _, item := range doc {
		name, ok := item.Key.(string)
		if !ok {
			return SearchSpace{}, errors.NewConfigurationError("search_space", "parameter names must be strings", item.Key)
		}
		dist, err := parseDistribution(name, item.Value)
		if err != nil {
			return SearchSpace{}, err
		}
		space.Params = append(space.Params, Param{Name: name, Dist: dist})
	}
	if err := space.Validate(); err != nil {
		return SearchSpace{}, err
	}
	return space, nil
}

func parseDistribution(name string, value interface{}) (Distribution, error) {
	param := "search_space." + name
	switch v := value.(type) {
	case []interface{}:
		return Choice{Values: normalizeValues(v)}, nil
	case yaml.MapSlice:
		if len(v) != 1 {
			return nil, errors.NewConfigurationError(param, "expected exactly one of randint or choice", len(v))
		}
		kind, _ := v[0].Key.(string)
		args, ok := v[0].Value.([]interface{})
		if !ok {
			return nil, errors.NewConfigurationError(param, kind+" expects a list", v[0].Value)
		}
		switch kind {
		case "randint":
			if len(args) != 2 {
				return nil, errors.NewConfigurationError(param, "randint expects [low, high]", args)
			}
			low, okLow := args[0].(int)
			high, okHigh := args[1].(int)
			if !okLow || !okHigh {
				return nil, errors.NewConfigurationError(param, "randint bounds must be integers", args)
			}
			return RandInt{Low: low, High: high}, nil
		case "choice":
			return Choice{Values: normalizeValues(args)}, nil
		default:
			return nil, errors.NewConfigurationError(param, "unknown distribution", kind)
		}
	default:
		return nil, errors.NewConfigurationError(param, "expected a list or a distribution mapping", value)
	}
}

// normalizeValues maps YAML "none"/"None" strings to nil.
func normalizeValues(in []interface{}) []interface{} {
	out := make([]interface{}, len(in))
	for i, v := range in {
		if s, ok := v.(string); ok && strings.EqualFold(s, "none") {
			continue
		}
		out[i] = v
	}
	return out
}
