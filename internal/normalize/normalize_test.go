package normalize

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

var testTable = Table{
	{Name: "id", Aliases: []string{"_id", "job_id"}, Kind: String},
	{Name: "title", Aliases: []string{"name", "job_title"}, Kind: String},
	{Name: "assignedEmployees", Aliases: []string{"assigned_employees", "employeeIds"}, Kind: StringList},
	{Name: "status", Aliases: []string{"state"}, Kind: Enum, Allowed: []string{"active", "inactive"}, Default: "active"},
	{Name: "read", Aliases: []string{"is_read"}, Kind: Bool},
	{Name: "hours", Aliases: []string{"stats.weeklyHours"}, Kind: Float, Optional: true},
	{Name: "timestamp", Aliases: []string{"created_at"}, Kind: Time},
	{Name: "owner", Aliases: []string{"user.name"}, Kind: String},
}

func TestApply_FirstAliasWins(t *testing.T) {
	raw := map[string]any{
		"job_id":    "j-2",
		"_id":       "j-1",
		"name":      "Roof repair",
		"job_title": "ignored",
	}

	res := testTable.Apply(raw, fixedNow)

	assert.Equal(t, "j-1", res.Canonical["id"])
	assert.Equal(t, "Roof repair", res.Canonical["title"])
	assert.False(t, res.WasDefaulted("id"))
}

func TestApply_SkipsNullAndUnconvertible(t *testing.T) {
	raw := map[string]any{
		"id":     nil,
		"_id":    map[string]any{"nested": true},
		"job_id": 42.0,
	}

	res := testTable.Apply(raw, fixedNow)

	assert.Equal(t, "42", res.Canonical["id"])
}

func TestApply_Defaults(t *testing.T) {
	res := testTable.Apply(map[string]any{}, fixedNow)

	assert.Equal(t, "", res.Canonical["id"])
	assert.Equal(t, []string{}, res.Canonical["assignedEmployees"])
	assert.Equal(t, "active", res.Canonical["status"])
	assert.Equal(t, false, res.Canonical["read"])
	assert.Equal(t, fixedNow, res.Canonical["timestamp"])
	assert.NotContains(t, res.Canonical, "hours")

	assert.True(t, res.WasDefaulted("timestamp"))
	assert.False(t, res.WasDefaulted("hours"))
}

func TestApply_EnumOutsideAllowedFallsBack(t *testing.T) {
	res := testTable.Apply(map[string]any{"status": "On Leave", "state": "INACTIVE"}, fixedNow)
	assert.Equal(t, "inactive", res.Canonical["status"])

	res = testTable.Apply(map[string]any{"status": "On Leave"}, fixedNow)
	assert.Equal(t, "active", res.Canonical["status"])
}

func TestApply_StringListCoercion(t *testing.T) {
	raw := map[string]any{
		"employeeIds": []any{5.0, "7", map[string]any{"id": 9.0}, map[string]any{"_id": "x"}, nil},
	}

	res := testTable.Apply(raw, fixedNow)

	assert.Equal(t, []string{"5", "7", "9", "x"}, res.Canonical["assignedEmployees"])
}

func TestApply_JSONNumbers(t *testing.T) {
	raw := map[string]any{
		"id":    json.Number("12345678901234567"),
		"hours": json.Number("37.5"),
	}

	res := testTable.Apply(raw, fixedNow)

	assert.Equal(t, "12345678901234567", res.Canonical["id"])
	assert.Equal(t, 37.5, res.Canonical["hours"])
}

func TestApply_DotPath(t *testing.T) {
	raw := map[string]any{
		"user":  map[string]any{"name": "Ana"},
		"stats": map[string]any{"weeklyHours": "32"},
	}

	res := testTable.Apply(raw, fixedNow)

	assert.Equal(t, "Ana", res.Canonical["owner"])
	assert.Equal(t, 32.0, res.Canonical["hours"])
}

func TestApply_Bool(t *testing.T) {
	for _, tc := range []struct {
		in   any
		want bool
	}{
		{true, true},
		{"yes", true},
		{"0", false},
		{1.0, true},
		{0.0, false},
	} {
		res := testTable.Apply(map[string]any{"is_read": tc.in}, fixedNow)
		assert.Equal(t, tc.want, res.Canonical["read"], "input %v", tc.in)
	}
}

func TestApply_Time(t *testing.T) {
	want := time.Date(2024, 2, 10, 8, 30, 0, 0, time.UTC)

	for _, in := range []any{
		"2024-02-10T08:30:00Z",
		"2024-02-10T09:30:00+01:00",
		"2024-02-10 08:30:00",
		float64(want.Unix()),
		float64(want.UnixMilli()),
	} {
		res := testTable.Apply(map[string]any{"created_at": in}, fixedNow)
		assert.Equal(t, want, res.Canonical["timestamp"], "input %v", in)
	}
}

func TestApply_RejectsNonFiniteNumbers(t *testing.T) {
	for _, in := range []any{"NaN", "Infinity", "-Inf", math.NaN(), math.Inf(1), json.Number("NaN")} {
		res := testTable.Apply(map[string]any{
			"stats":      map[string]any{"weeklyHours": in},
			"created_at": in,
		}, fixedNow)

		assert.NotContains(t, res.Canonical, "hours", "input %v", in)
		assert.Equal(t, fixedNow, res.Canonical["timestamp"], "input %v", in)
		assert.True(t, res.WasDefaulted("timestamp"), "input %v", in)
	}
}

func TestApply_ExtraDropsCanonicalAndAliasKeys(t *testing.T) {
	raw := map[string]any{
		"id":       "1",
		"job_id":   "2",
		"location": "Site B",
	}

	res := testTable.Apply(raw, fixedNow)

	assert.Equal(t, "1", res.Canonical["id"])
	assert.Equal(t, map[string]any{"location": "Site B"}, res.Extra)
}

func TestApply_Idempotent(t *testing.T) {
	raw := map[string]any{
		"_id":         7.0,
		"name":        "Fence",
		"employeeIds": []any{1.0, 2.0},
		"state":       "inactive",
		"is_read":     "true",
		"stats":       map[string]any{"weeklyHours": 12.0},
		"created_at":  "2024-02-10T08:30:00Z",
	}

	first := testTable.Apply(raw, fixedNow)

	encoded, err := json.Marshal(first.Canonical)
	require.NoError(t, err)
	var canonical map[string]any
	require.NoError(t, json.Unmarshal(encoded, &canonical))

	second := testTable.Apply(canonical, fixedNow.Add(time.Hour))

	assert.Equal(t, first.Canonical, second.Canonical)
	assert.Empty(t, second.Extra)
	assert.Empty(t, second.Defaulted)
}

func TestDecode(t *testing.T) {
	type record struct {
		ID        string    `mapstructure:"id"`
		Title     string    `mapstructure:"title"`
		Assigned  []string  `mapstructure:"assignedEmployees"`
		Hours     *float64  `mapstructure:"hours"`
		Timestamp time.Time `mapstructure:"timestamp"`
	}

	res := testTable.Apply(map[string]any{
		"id":          "1",
		"title":       "Roof repair",
		"employeeIds": []any{"5"},
		"stats":       map[string]any{"weeklyHours": 40.0},
	}, fixedNow)

	var out record
	require.NoError(t, res.Decode(&out))

	assert.Equal(t, "1", out.ID)
	assert.Equal(t, "Roof repair", out.Title)
	assert.Equal(t, []string{"5"}, out.Assigned)
	require.NotNil(t, out.Hours)
	assert.Equal(t, 40.0, *out.Hours)
	assert.Equal(t, fixedNow, out.Timestamp)
}

func TestLookup(t *testing.T) {
	raw := map[string]any{
		"a.b": "literal",
		"a":   map[string]any{"b": "nested", "c": map[string]any{"d": 1.0}},
	}

	v, ok := Lookup(raw, "a.b")
	assert.True(t, ok)
	assert.Equal(t, "literal", v)

	v, ok = Lookup(raw, "a.c.d")
	assert.True(t, ok)
	assert.Equal(t, 1.0, v)

	_, ok = Lookup(raw, "a.x")
	assert.False(t, ok)
	_, ok = Lookup(raw, "a.b.c")
	assert.False(t, ok)
}
