package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gniumg-source/clawfi-g-sub001/internal/domain"
)

func TestPlanFor(t *testing.T) {
	tests := []struct {
		mode    string
		server  bool
		want    plan
		wantErr bool
	}{
		{mode: "detect", server: false, want: plan{detect: true}},
		{mode: "discover", server: true, want: plan{discover: true, serve: true}},
		{mode: "server", server: false, want: plan{serve: true}},
		{mode: "full", server: true, want: plan{detect: true, discover: true, serve: true}},
		{mode: "trade", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			got, err := planFor(tt.mode, tt.server)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPlanStrategies(t *testing.T) {
	assert.Equal(t, []string{"molt", "discovery"}, plan{detect: true, discover: true}.strategies(true))
	assert.Equal(t, []string{"molt"}, plan{detect: true, discover: true}.strategies(false))
	assert.Empty(t, plan{serve: true}.strategies(true))
}

func TestMinSeverity(t *testing.T) {
	assert.Equal(t, domain.SeverityMedium, minSeverity("Medium"))
	assert.Equal(t, domain.SeverityHigh, minSeverity(""))
	assert.Equal(t, domain.SeverityHigh, minSeverity("bogus"))
}
