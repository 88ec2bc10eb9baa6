package utils

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseDuration(t *testing.T) {
	require.Equal(t, 90*time.Second, ParseDuration("90s", time.Minute))
	require.Equal(t, time.Minute, ParseDuration("", time.Minute))
	require.Equal(t, time.Hour, ParseDuration("soon", time.Hour))
}

func TestFormatCell(t *testing.T) {
	testCases := []struct {
		in       interface{}
		expected string
	}{
		{nil, ""},
		{"text", "text"},
		{json.Number("4.50"), "4.50"},
		{true, "true"},
		{12, "12"},
		{2.5, "2.5"},
		{[]interface{}{json.Number("1"), "a"}, `[1,"a"]`},
		{map[string]interface{}{"k": "v"}, `{"k":"v"}`},
	}
	for _, test := range testCases {
		require.Equal(t, test.expected, FormatCell(test.in))
	}
}

func TestFlattenLines(t *testing.T) {
	require.Equal(t, "a b  c ", FlattenLines("a\nb\r\nc\r"))
	require.Equal(t, "", FlattenLines(""))
}
