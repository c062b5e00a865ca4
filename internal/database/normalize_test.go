package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePermissions(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    []string
		granted []bool
		changed bool
	}{
		{
			name:    "canonical",
			raw:     `[{"action":"users.read","granted":true},{"action":"users.write","granted":false}]`,
			want:    []string{"users.read", "users.write"},
			granted: []bool{true, false},
			changed: false,
		},
		{
			name:    "plain strings",
			raw:     `["users.read","hierarchy.view"]`,
			want:    []string{"users.read", "hierarchy.view"},
			granted: []bool{true, true},
			changed: true,
		},
		{
			name:    "loose objects",
			raw:     `[{"name":"audit.view","allowed":false},{"permission":"users.read"}]`,
			want:    []string{"audit.view", "users.read"},
			granted: []bool{false, true},
			changed: true,
		},
		{
			name:    "character indexed",
			raw:     `[{"0":"a","1":"u","2":"d","3":"i","4":"t","granted":true},{"1":"b","0":"a"}]`,
			want:    []string{"audit", "ab"},
			granted: []bool{true, true},
			changed: true,
		},
		{
			name:    "action map",
			raw:     `{"b.write":false,"a.read":true}`,
			want:    []string{"a.read", "b.write"},
			granted: []bool{true, false},
			changed: true,
		},
		{
			name:    "empty entries dropped",
			raw:     `["", "users.read"]`,
			want:    []string{"users.read"},
			granted: []bool{true},
			changed: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			grants, changed, err := normalizePermissions([]byte(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.changed, changed)
			require.Len(t, grants, len(tt.want))
			for i, g := range grants {
				assert.Equal(t, tt.want[i], g.Action)
				assert.Equal(t, tt.granted[i], g.Granted)
			}
		})
	}
}

func TestNormalizePermissionsRejectsGarbage(t *testing.T) {
	_, _, err := normalizePermissions([]byte(`42`))
	require.Error(t, err)
}

func TestNormalizePermissionsNull(t *testing.T) {
	grants, changed, err := normalizePermissions([]byte(`null`))
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Empty(t, grants)
}
