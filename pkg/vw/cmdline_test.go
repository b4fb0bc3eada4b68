package vw

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCommandLine_Defaults(t *testing.T) {
	assert.Equal(t, "vw --predictions /dev/stdout --quiet --save_resume", DefaultOptions().CommandLine())
	assert.Equal(t, DefaultOptions().CommandLine(), Options{}.CommandLine())
}

func TestCommandLine_Mixed(t *testing.T) {
	cmd := Options{
		Predictions: "/dev/stdout",
		Quiet:       Bool(true),
		SaveResume:  Bool(true),
		QColon:      []string{"a", "b"},
		Bits:        20,
	}.CommandLine()

	for _, want := range []string{"--predictions /dev/stdout", "--quiet", "--save_resume", "--q: a", "--q: b", "-b 20"} {
		assert.Contains(t, cmd, want)
	}
	assert.NotContains(t, cmd, "--b 20")
}

func TestCommandLine_DisabledFlags(t *testing.T) {
	cmd := Options{Quiet: Bool(false), SaveResume: Bool(false)}.CommandLine()
	assert.Equal(t, "vw --predictions /dev/stdout", cmd)
}

func TestCommandLine_ExtraArgs(t *testing.T) {
	opts := Options{
		Binary: "/opt/vw/bin/vw",
		Extra: []Arg{
			{Key: "q", Value: []string{"ab", "bc"}},
			{Key: "l", Value: 0.5},
			{Key: "holdout_off", Value: true},
			{Key: "audit", Value: false},
			{Key: "passes", Value: 3},
			{Key: "ngram", Value: []interface{}{"a2", 3}},
			{Key: "invert_hash", Value: nil},
		},
	}
	args := opts.Args()

	assert.Equal(t, "/opt/vw/bin/vw", args[0])
	cmd := strings.Join(args, " ")
	assert.True(t, strings.HasPrefix(cmd, "/opt/vw/bin/vw -q ab -q bc -l 0.5 --holdout_off --passes 3 --ngram a2 --ngram 3 --invert_hash "), cmd)
	assert.NotContains(t, cmd, "audit")
}

func TestCommandLine_NamedOptions(t *testing.T) {
	cmd := Options{
		LossFunction:     "logistic",
		InitialRegressor: "/models/m.vw",
		ActiveLearning:   true,
		ActiveMellowness: 0.1,
		Daemon:           true,
		Port:             4000,
	}.CommandLine()

	assert.Equal(t,
		"vw --loss_function logistic -i /models/m.vw --active_learning --active_mellowness 0.1 --daemon --port 4000 --predictions /dev/stdout --quiet --save_resume",
		cmd)
}

func TestWithActiveDefaults_KeepsCallerValues(t *testing.T) {
	opts := Options{Port: 5000, Predictions: "/tmp/p"}.WithActiveDefaults()
	assert.True(t, opts.ActiveLearning)
	assert.Equal(t, 5000, opts.Port)
	assert.Equal(t, "/tmp/p", opts.Predictions)

	opts = Options{}.WithActiveDefaults()
	assert.Equal(t, DefaultPort, opts.Port)
	assert.Equal(t, ActivePredictions, opts.Predictions)
}

func TestArgTokens_SingleCharacterKeys(t *testing.T) {
	assert.Equal(t, []string{"-b", "20"}, Arg{Key: "b", Value: 20}.Tokens())
	assert.Equal(t, []string{"--bb", "20"}, Arg{Key: "bb", Value: 20}.Tokens())
	assert.Equal(t, []string{"-é"}, Arg{Key: "é", Value: true}.Tokens())
	assert.Equal(t, []string{"--q:", "ab"}, Arg{Key: "q:", Value: "ab"}.Tokens())
}

func TestSplitCommand(t *testing.T) {
	assert.Equal(t, []string{"vw", "--quiet", "-b", "20"}, SplitCommand(" vw\t--quiet  -b 20\n"))
	assert.Empty(t, SplitCommand(""))
}
