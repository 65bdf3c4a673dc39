package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vvka-141/txorch/internal/retry"
	"github.com/vvka-141/txorch/internal/tx"
	"github.com/vvka-141/txorch/pkg/txorch"
)

func TestLoad_AllFields(t *testing.T) {
	dir := t.TempDir()
	content := `connection:
  url: postgres://app@db:5432/shop
  max_conns: 20
  connect_attempts: 5

timeouts:
  begin: 5s
  commit: 1m

commit: stored

policy:
  type: escalation
  occ:
    kind: occ
    label: checkout
  occ_size: 3
  pessimistic:
    kind: ltx
    write_preserve: [orders, stock]
  ltx_size: 2
  retryable_codes: ["40001"]
  escalate_codes: ["55P03"]

backoff:
  initial_delay: 50ms
  max_delay: 2s
  multiplier: 1.5
  jitter: 0.2

log:
  format: json
  verbose: true
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(content), 0644))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "postgres://app@db:5432/shop", cfg.Connection.URL)
	assert.Equal(t, int32(20), cfg.Connection.MaxConns)
	assert.Equal(t, 5, cfg.Connection.ConnectAttempts)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.True(t, cfg.Log.Verbose)

	timeouts, err := cfg.BuildTimeouts()
	require.NoError(t, err)
	assert.Equal(t, tx.Timeouts{Begin: 5 * time.Second, Commit: time.Minute}, timeouts)

	kind, err := cfg.BuildCommitKind()
	require.NoError(t, err)
	assert.Equal(t, txorch.CommitStored, kind)

	policy, err := cfg.BuildPolicy()
	require.NoError(t, err)
	esc, ok := policy.(*retry.EscalationPolicy)
	require.True(t, ok)

	pc := esc.NewContext()
	first := esc.Decide(pc, 0, nil).(txorch.Execute)
	assert.Equal(t, txorch.OCC().WithLabel("checkout"), first.Option)
	second := esc.Decide(pc, 1, &txorch.ServerError{Code: "55P03"}).(txorch.Execute)
	assert.Equal(t, txorch.LTX("orders", "stock"), second.Option)

	backoff, err := cfg.BuildBackoff()
	require.NoError(t, err)
	exp, ok := backoff.(*retry.ExponentialBackoff)
	require.True(t, ok)
	assert.Equal(t, 50*time.Millisecond, exp.InitialDelay())
	assert.Equal(t, 2*time.Second, exp.MaxDelay())
	assert.Equal(t, 1.5, exp.Multiplier())
	assert.Equal(t, 0.2, exp.Jitter())
}

func TestLoad_NotFound(t *testing.T) {
	_, err := Load(t.TempDir())
	assert.ErrorIs(t, err, ErrConfigNotFound)
}

func TestParse_Empty(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	policy, err := cfg.BuildPolicy()
	require.NoError(t, err)
	assert.IsType(t, &retry.SamePolicy{}, policy)

	backoff, err := cfg.BuildBackoff()
	require.NoError(t, err)
	assert.Nil(t, backoff)
}

func TestParse_RejectsUnknownKeys(t *testing.T) {
	_, err := Parse([]byte("policy:\n  typo: same\n"))
	assert.ErrorIs(t, err, txorch.ErrInvalidConfig)
}

func TestParse_Policies(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want any
	}{
		{
			name: "same",
			yaml: "policy:\n  type: same\n  option: {kind: rtx}\n  max_attempts: 0\n",
			want: &retry.SamePolicy{},
		},
		{
			name: "sequence",
			yaml: "policy:\n  type: sequence\n  options:\n    - kind: occ\n    - kind: ltx\n      write_preserve: [t]\n",
			want: &retry.SequencePolicy{},
		},
		{
			name: "bucket",
			yaml: "policy:\n  type: bucket\n  buckets:\n    - {size: 3, option: {kind: occ}}\n    - {size: 2, option: {kind: ltx}}\n",
			want: &retry.BucketPolicy{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Parse([]byte(tt.yaml))
			require.NoError(t, err)
			policy, err := cfg.BuildPolicy()
			require.NoError(t, err)
			assert.IsType(t, tt.want, policy)
		})
	}
}

func TestParse_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		message string
	}{
		{"unknown policy", "policy: {type: random}", `unknown policy "random"`},
		{"bad timeout", "timeouts: {commit: soon}", "timeouts.commit"},
		{"negative timeout", "timeouts: {begin: -1s}", "timeouts.begin: must not be negative"},
		{"bad commit kind", "commit: eventually", `unknown commit kind "eventually"`},
		{"empty sequence", "policy: {type: sequence}", "at least one option"},
		{"zero bucket", "policy: {type: bucket, buckets: [{size: 0, option: {kind: occ}}]}", "size must be positive"},
		{"write preserve on occ", "policy: {type: same, option: {kind: occ, write_preserve: [t]}}", "write_preserve is only valid for ltx"},
		{"escalation to occ", "policy: {type: escalation, occ: {kind: occ}, occ_size: 1, pessimistic: {kind: occ}, ltx_size: 1}", "pessimistic option must be LTX or RTX"},
		{"bad multiplier", "backoff: {multiplier: 0.5}", "backoff.multiplier"},
		{"bad jitter", "backoff: {jitter: 2}", "backoff.jitter"},
		{"bad log format", "log: {format: xml}", `unknown format "xml"`},
		{"negative max conns", "connection: {max_conns: -1}", "connection.max_conns"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.ErrorIs(t, err, txorch.ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestValidate_ReportsAllProblems(t *testing.T) {
	_, err := Parse([]byte("commit: never\nlog: {format: xml}\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "commit:")
	assert.Contains(t, err.Error(), "log.format")
}

func TestOptionConfig_Build(t *testing.T) {
	opt, err := OptionConfig{Kind: "LTX", WritePreserve: []string{"a", "b"}, Label: "import"}.Build()
	require.NoError(t, err)
	assert.Equal(t, txorch.LTX("a", "b").WithLabel("import"), opt)

	opt, err = OptionConfig{Kind: "read-only"}.Build()
	require.NoError(t, err)
	assert.Equal(t, txorch.RTX(), opt)

	_, err = OptionConfig{Kind: "serializable"}.Build()
	assert.ErrorIs(t, err, txorch.ErrInvalidConfig)
}

func TestPolicyConfig_BuildClassifier(t *testing.T) {
	def := PolicyConfig{}.BuildClassifier()
	assert.True(t, def.IsRetryable(txorch.CodeSerializationFailure))

	custom := PolicyConfig{RetryableCodes: []string{"XX000"}}.BuildClassifier()
	assert.True(t, custom.IsRetryable("XX000"))
	assert.False(t, custom.IsRetryable(txorch.CodeSerializationFailure))
}

func TestDatabaseURL(t *testing.T) {
	t.Setenv(txorch.DatabaseURLEnv, "postgres://env/db")

	cfg := Default()
	assert.Equal(t, "postgres://env/db", cfg.DatabaseURL())

	cfg.Connection.URL = "postgres://file/db"
	assert.Equal(t, "postgres://file/db", cfg.DatabaseURL())
}
