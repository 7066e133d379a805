// SPDX-FileCopyrightText: 2025 FunTW <dev@funtw.io>
//
// SPDX-License-Identifier: MIT

package httpsoverproxy

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jsonResponse(body string) *Response {
	return &Response{
		StatusCode: 200,
		StatusText: "OK",
		Headers:    http.Header{"Content-Type": []string{"application/json"}},
		Body:       []byte(body),
	}
}

func TestInterpretJSONObject(t *testing.T) {
	out, err := ResponseInterpreter{}.Interpret(jsonResponse(`{"id": 7}`), RequestSpec{ResponseFormat: FormatJSON})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"id": float64(7)}, out)
}

func TestInterpretJSONArrayKeepsShape(t *testing.T) {
	out, err := ResponseInterpreter{}.Interpret(jsonResponse(`[1, 2]`), RequestSpec{ResponseFormat: FormatJSON})
	require.NoError(t, err)
	assert.Equal(t, []any{float64(1), float64(2)}, out)
}

func TestInterpretJSONScalarWrapped(t *testing.T) {
	out, err := ResponseInterpreter{}.Interpret(jsonResponse(`"hello"`), RequestSpec{ResponseFormat: FormatJSON})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"data": "hello"}, out)
}

func TestInterpretJSONScalarCustomOutputField(t *testing.T) {
	spec := RequestSpec{ResponseFormat: FormatJSON, OutputFieldName: "payload"}
	out, err := ResponseInterpreter{}.Interpret(jsonResponse(`42`), spec)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"payload": float64(42)}, out)
}

func TestInterpretInvalidJSON(t *testing.T) {
	_, err := ResponseInterpreter{}.Interpret(jsonResponse(`{broken`), RequestSpec{ResponseFormat: FormatJSON})
	require.Error(t, err)
	assert.Equal(t, CodeInvalidJSONResponse, CodeOf(err))
	assert.Contains(t, err.Error(), `"text"`)
}

func TestInterpretTextWrapped(t *testing.T) {
	resp := &Response{
		StatusCode: 200,
		StatusText: "OK",
		Headers:    http.Header{"Content-Type": []string{"text/plain"}},
		Body:       []byte("raw text"),
	}
	out, err := ResponseInterpreter{}.Interpret(resp, RequestSpec{ResponseFormat: FormatText})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"data": "raw text"}, out)
}

func TestInterpretAutodetect(t *testing.T) {
	cases := []struct {
		contentType string
		format      ResponseFormat
	}{
		{"application/json", FormatJSON},
		{"application/hal+json; charset=utf-8", FormatJSON},
		{"text/html", FormatText},
		{"application/xml", FormatText},
		{"application/pdf", FormatFile},
		{"image/png", FormatFile},
		{"", FormatText},
	}
	for _, tc := range cases {
		headers := http.Header{}
		if tc.contentType != "" {
			headers.Set("Content-Type", tc.contentType)
		}
		assert.Equal(t, tc.format, detectFormat(headers), "content type %q", tc.contentType)
	}
}

func TestInterpretFileArtifact(t *testing.T) {
	resp := &Response{
		StatusCode: 200,
		StatusText: "OK",
		Headers: http.Header{
			"Content-Type":        []string{"application/pdf"},
			"Content-Disposition": []string{`attachment; filename="report.pdf"`},
		},
		Body:     []byte{0x25, 0x50, 0x44, 0x46},
		FinalURL: "https://api.example.com/files/123",
	}
	out, err := ResponseInterpreter{}.Interpret(resp, RequestSpec{ResponseFormat: FormatFile})
	require.NoError(t, err)

	wrapped, ok := out.(map[string]any)
	require.True(t, ok)
	artifact, ok := wrapped["data"].(*BinaryArtifact)
	require.True(t, ok)
	assert.Equal(t, "report.pdf", artifact.FileName)
	assert.Equal(t, "application/pdf", artifact.MimeType)
	assert.Equal(t, 4, artifact.Size)
}

func TestInterpretFileNameFromURL(t *testing.T) {
	resp := &Response{
		StatusCode: 200,
		Headers:    http.Header{"Content-Type": []string{"image/png"}},
		Body:       []byte{0x89},
		FinalURL:   "https://cdn.example.com/assets/logo.png?v=3",
	}
	out, err := ResponseInterpreter{}.Interpret(resp, RequestSpec{ResponseFormat: FormatFile})
	require.NoError(t, err)
	artifact := out.(map[string]any)["data"].(*BinaryArtifact)
	assert.Equal(t, "logo.png", artifact.FileName)
}

func TestInterpretFullResponseEnvelope(t *testing.T) {
	resp := jsonResponse(`{"id": 1}`)
	resp.Headers.Set("X-Rate-Limit", "99")

	out, err := ResponseInterpreter{}.Interpret(resp, RequestSpec{ResponseFormat: FormatJSON, FullResponse: true})
	require.NoError(t, err)

	envelope, ok := out.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 200, envelope["status"])
	assert.Equal(t, "OK", envelope["statusText"])
	assert.Equal(t, map[string]any{"id": float64(1)}, envelope["data"])

	headers, ok := envelope["headers"].(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "99", headers["x-rate-limit"])
}

func TestInterpretEmptyJSONBody(t *testing.T) {
	out, err := ResponseInterpreter{}.Interpret(jsonResponse(""), RequestSpec{ResponseFormat: FormatJSON})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"data": nil}, out)
}
