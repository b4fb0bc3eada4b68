package vw

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"unicode/utf8"
)

const (
	// DefaultBinary is the engine executable looked up on PATH.
	DefaultBinary = "vw"
	// DefaultPredictions sends predictions back over the pipe.
	DefaultPredictions = "/dev/stdout"
	// ActivePredictions discards the prediction file in active mode, where
	// answers arrive over the socket instead.
	ActivePredictions = "/dev/null"
)

// Arg is one engine option. Keys of one character render as "-k", longer
// keys as "--key". A true value renders the bare flag, false drops it,
// a slice repeats the option once per element and a nil value is treated
// as a bare flag.
type Arg struct {
	Key   string      `json:"key" yaml:"key"`
	Value interface{} `json:"value,omitempty" yaml:"value,omitempty"`
}

// Options describes a vw invocation. Zero values mean "unset": unset
// fields are either omitted or take the documented default when the
// argument list is built.
type Options struct {
	// Binary defaults to DefaultBinary.
	Binary string `json:"binary,omitempty" yaml:"binary,omitempty"`
	// Predictions defaults to DefaultPredictions (ActivePredictions in
	// active mode).
	Predictions string `json:"predictions,omitempty" yaml:"predictions,omitempty"`
	// Quiet defaults to true.
	Quiet *bool `json:"quiet,omitempty" yaml:"quiet,omitempty"`
	// SaveResume defaults to true.
	SaveResume *bool `json:"save_resume,omitempty" yaml:"save_resume,omitempty"`
	// QColon is rendered as repeated "--q:" options.
	QColon           []string `json:"q_colon,omitempty" yaml:"q_colon,omitempty"`
	LossFunction     string   `json:"loss_function,omitempty" yaml:"loss_function,omitempty"`
	Bits             int      `json:"bits,omitempty" yaml:"bits,omitempty"`
	InitialRegressor string   `json:"initial_regressor,omitempty" yaml:"initial_regressor,omitempty"`
	ActiveLearning   bool     `json:"active_learning,omitempty" yaml:"active_learning,omitempty"`
	ActiveMellowness float64  `json:"active_mellowness,omitempty" yaml:"active_mellowness,omitempty"`
	Daemon           bool     `json:"daemon,omitempty" yaml:"daemon,omitempty"`
	Port             int      `json:"port,omitempty" yaml:"port,omitempty"`
	// Extra is passed through verbatim, ahead of the named options.
	Extra []Arg `json:"extra,omitempty" yaml:"extra,omitempty"`
}

// Bool returns a pointer to b, for the optional flags of Options.
func Bool(b bool) *bool {
	return &b
}

// DefaultOptions returns the options every session starts from:
// vw --predictions /dev/stdout --quiet --save_resume.
func DefaultOptions() Options {
	return Options{
		Binary:      DefaultBinary,
		Predictions: DefaultPredictions,
		Quiet:       Bool(true),
		SaveResume:  Bool(true),
	}
}

// WithActiveDefaults fills in the settings active learning needs without
// overriding anything the caller set.
func (o Options) WithActiveDefaults() Options {
	o.ActiveLearning = true
	if o.Port == 0 {
		o.Port = DefaultPort
	}
	if o.Predictions == "" {
		o.Predictions = ActivePredictions
	}
	return o
}

// Args renders the options as an argv slice, binary first. Names and values
// are not validated; vw rejects bad input at startup.
func (o Options) Args() []string {
	binary := o.Binary
	if binary == "" {
		binary = DefaultBinary
	}
	predictions := o.Predictions
	if predictions == "" {
		predictions = DefaultPredictions
	}
	quiet := o.Quiet == nil || *o.Quiet
	saveResume := o.SaveResume == nil || *o.SaveResume

	args := []Arg{}
	args = append(args, o.Extra...)
	if o.LossFunction != "" {
		args = append(args, Arg{"loss_function", o.LossFunction})
	}
	if o.Bits != 0 {
		args = append(args, Arg{"b", o.Bits})
	}
	if o.InitialRegressor != "" {
		args = append(args, Arg{"i", o.InitialRegressor})
	}
	args = append(args, Arg{"active_learning", o.ActiveLearning})
	if o.ActiveMellowness != 0 {
		args = append(args, Arg{"active_mellowness", o.ActiveMellowness})
	}
	args = append(args, Arg{"daemon", o.Daemon})
	if o.Port != 0 {
		args = append(args, Arg{"port", o.Port})
	}
	if len(o.QColon) > 0 {
		args = append(args, Arg{"q:", o.QColon})
	}
	args = append(args,
		Arg{"predictions", predictions},
		Arg{"quiet", quiet},
		Arg{"save_resume", saveResume},
	)

	argv := []string{binary}
	for _, a := range args {
		argv = append(argv, a.Tokens()...)
	}
	return argv
}

// CommandLine joins the argv of o with single spaces.
func (o Options) CommandLine() string {
	return strings.Join(o.Args(), " ")
}

// Tokens renders a single option.
func (a Arg) Tokens() []string {
	option := "--" + a.Key
	if utf8.RuneCountInString(a.Key) == 1 {
		option = "-" + a.Key
	}

	switch v := a.Value.(type) {
	case nil:
		return []string{option}
	case bool:
		if v {
			return []string{option}
		}
		return nil
	case string:
		return []string{option, v}
	}

	rv := reflect.ValueOf(a.Value)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		out := make([]string, 0, 2*rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out = append(out, option, formatValue(rv.Index(i).Interface()))
		}
		return out
	}
	return []string{option, formatValue(a.Value)}
}

func formatValue(v interface{}) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return formatFloat(x)
	case float32:
		return formatFloat(float64(x))
	case int:
		return strconv.Itoa(x)
	default:
		return fmt.Sprint(v)
	}
}

// SplitCommand breaks a command string into argv on whitespace. Quoting is
// not interpreted.
func SplitCommand(command string) []string {
	return strings.Fields(command)
}
