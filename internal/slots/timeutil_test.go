package slots

import (
	"testing"

	"hairstudio/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeToMinutes(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"00:00", 0, false},
		{"10:30", 630, false},
		{"23:59", 1439, false},
		{"24:00", 0, true},
		{"10:60", 0, true},
		{"9:00", 0, true},
		{"ab:cd", 0, true},
		{"", 0, true},
		{"10-30", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := TimeToMinutes(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, domain.ErrFormat)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMinutesToTime(t *testing.T) {
	assert.Equal(t, "00:00", MinutesToTime(0))
	assert.Equal(t, "09:05", MinutesToTime(545))
	assert.Equal(t, "16:30", MinutesToTime(990))

	for m := 0; m < minutesPerDay; m += 7 {
		back, err := TimeToMinutes(MinutesToTime(m))
		require.NoError(t, err)
		assert.Equal(t, m, back)
	}
}

func TestGenerateSlots(t *testing.T) {
	got, err := GenerateSlots("10:00", "12:00", 30)
	require.NoError(t, err)
	assert.Equal(t, []string{"10:00", "10:30", "11:00", "11:30"}, got)

	got, err = GenerateSlots("10:00", "11:00", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"10:00", "10:30"}, got)

	got, err = GenerateSlots("12:00", "10:00", 30)
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = GenerateSlots("bad", "10:00", 30)
	assert.ErrorIs(t, err, domain.ErrFormat)
}

func TestValidateDate(t *testing.T) {
	assert.NoError(t, ValidateDate("2025-06-10"))
	assert.NoError(t, ValidateDate("2024-02-29"))
	assert.ErrorIs(t, ValidateDate("2025-02-29"), domain.ErrFormat)
	assert.ErrorIs(t, ValidateDate("2025-6-10"), domain.ErrFormat)
	assert.ErrorIs(t, ValidateDate("10.06.2025"), domain.ErrFormat)
	assert.ErrorIs(t, ValidateDate(""), domain.ErrFormat)
}

func TestOverlaps(t *testing.T) {
	assert.True(t, Overlaps(600, 660, 630, 690))
	assert.True(t, Overlaps(600, 720, 630, 660))
	assert.False(t, Overlaps(600, 660, 660, 720), "touching endpoints")
	assert.False(t, Overlaps(660, 720, 600, 660))
}
