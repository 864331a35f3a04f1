package secret

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListUnversionedOverwrites(t *testing.T) {
	t.Parallel()

	l := NewList()
	l.Set(New("test", "", "1234"))
	l.Set(New("test", "", "abcdef"))

	got, ok := l.Get("test", "", time.Time{})
	require.True(t, ok)
	assert.Equal(t, "abcdef", got.Value)
	assert.Equal(t, 1, l.Count())
}

func TestListVersionsAreIndependent(t *testing.T) {
	t.Parallel()

	l := NewList(New("test", "v1", "A"), New("test", "v2", "B"))

	v1, ok := l.Get("test", "v1", time.Time{})
	require.True(t, ok)
	assert.Equal(t, "A", v1.Value)

	v2, ok := l.Get("test", "v2", time.Time{})
	require.True(t, ok)
	assert.Equal(t, "B", v2.Value)

	first, ok := l.Get("test", "", time.Time{})
	require.True(t, ok)
	assert.Equal(t, "A", first.Value, "first inserted entry wins without a version")

	assert.Equal(t, 2, l.Count())
	assert.Equal(t, 1, l.Len())
}

func TestListGetByDate(t *testing.T) {
	t.Parallel()

	jan := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	feb := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	mar := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	l := NewList(
		New("cert", "old", "A").WithWindow(jan, feb),
		New("cert", "new", "B").WithWindow(feb, mar),
	)

	tests := []struct {
		name    string
		version string
		date    time.Time
		want    string
		found   bool
	}{
		{name: "scan picks window containing date", date: jan.AddDate(0, 0, 10), want: "A", found: true},
		{name: "scan skips expired entry", date: feb.AddDate(0, 0, 1), want: "B", found: true},
		{name: "nothing active", date: mar, found: false},
		{name: "pinned version inside window", version: "new", date: feb, want: "B", found: true},
		{name: "pinned version outside window", version: "old", date: feb, found: false},
		{name: "unknown version", version: "missing", found: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := l.Get("cert", tt.version, tt.date)
			assert.Equal(t, tt.found, ok)
			if tt.found {
				assert.Equal(t, tt.want, got.Value)
			}
		})
	}
}

func TestListOverwriteKeepsPosition(t *testing.T) {
	t.Parallel()

	l := NewList(New("k", "v1", "A"), New("k", "v2", "B"))
	l.Set(New("k", "v1", "C"))

	got, ok := l.Get("k", "", time.Time{})
	require.True(t, ok)
	assert.Equal(t, "C", got.Value)
}

func TestListUnknownName(t *testing.T) {
	t.Parallel()

	var nilList *List
	_, ok := nilList.Get("x", "", time.Time{})
	assert.False(t, ok)
	assert.Zero(t, nilList.Count())

	_, ok = NewList().Versions("x")
	assert.False(t, ok)
}

func TestListSelect(t *testing.T) {
	t.Parallel()

	l := NewList(New("a", "v1", "1"), New("a", "v2", "2"), New("b", "", "3"))

	assert.Len(t, l.Select(Stub("a", "")), 2)
	assert.Len(t, l.Select(Stub("a", "v2")), 1)
	assert.Empty(t, l.Select(Stub("a", "v3")))
	assert.Len(t, l.Select(Stub("b", "")), 1)
	assert.Empty(t, l.Select(Stub("c", "")))

	versions, ok := l.Versions("a")
	require.True(t, ok)
	assert.Equal(t, "2", versions["v2"].Value)
}

func TestListJSONPreservesOrder(t *testing.T) {
	t.Parallel()

	jan := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewList(
		New("zeta", "v9", "Z"),
		New("alpha", "", "A").WithWindow(jan, time.Time{}),
		New("zeta", "v1", "Y"),
	)

	data, err := json.Marshal(l)
	require.NoError(t, err)

	var decoded List
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, []string{"zeta", "alpha"}, decoded.Names())
	first, ok := decoded.Get("zeta", "", time.Time{})
	require.True(t, ok)
	assert.Equal(t, "Z", first.Value)

	alpha, ok := decoded.Get("alpha", "", time.Time{})
	require.True(t, ok)
	assert.True(t, alpha.ActivationDate.Equal(jan))
	assert.Equal(t, "", alpha.Version)
}

func TestListUnmarshalRejectsMalformed(t *testing.T) {
	t.Parallel()

	tests := []string{
		`[]`,
		`{"a": []}`,
		`{"a": {"v1": "not-an-object"}}`,
		`{"a": {"v1": {}}`,
	}
	for _, doc := range tests {
		var l List
		assert.Error(t, json.Unmarshal([]byte(doc), &l), doc)
	}
}
