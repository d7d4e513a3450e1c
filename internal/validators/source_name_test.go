package validators

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateSourceName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		sourceName  string
		want        string
		expectError string
	}{
		{name: "simple", sourceName: "probuild", want: "probuild"},
		{name: "with hyphen", sourceName: "probuild-eu", want: "probuild-eu"},
		{name: "with digits", sourceName: "op9", want: "op9"},
		{name: "single character", sourceName: "a", want: "a"},
		{name: "trims whitespace", sourceName: "  lolalytics\t", want: "lolalytics"},
		{name: "empty", sourceName: "", expectError: "cannot be empty"},
		{name: "whitespace only", sourceName: "   ", expectError: "cannot be empty"},
		{name: "uppercase", sourceName: "Probuild", expectError: "is invalid"},
		{name: "underscore", sourceName: "pro_build", expectError: "is invalid"},
		{name: "slash", sourceName: "pro/build", expectError: "is invalid"},
		{name: "inner space", sourceName: "pro build", expectError: "is invalid"},
		{name: "leading hyphen", sourceName: "-probuild", expectError: "is invalid"},
		{name: "trailing hyphen", sourceName: "probuild-", expectError: "is invalid"},
		{name: "repeated hyphen", sourceName: "pro--build", expectError: "is invalid"},
		{name: "too long", sourceName: strings.Repeat("a", maxSourceNameLength+1), expectError: "maximum length"},
		{name: "max length", sourceName: strings.Repeat("a", maxSourceNameLength), want: strings.Repeat("a", maxSourceNameLength)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := ValidateSourceName(tt.sourceName)
			if tt.expectError != "" {
				require.ErrorContains(t, err, tt.expectError)
				assert.False(t, IsValidSourceName(tt.sourceName))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.True(t, IsValidSourceName(tt.sourceName))
		})
	}
}
