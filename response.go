// SPDX-FileCopyrightText: 2025 FunTW <dev@funtw.io>
//
// SPDX-License-Identifier: MIT

package httpsoverproxy

import (
	"encoding/json"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
)

// BinaryArtifact carries a response body kept as opaque bytes, with the
// metadata a downstream consumer needs to store or forward it.
type BinaryArtifact struct {
	Data     []byte `json:"-"`
	FileName string `json:"fileName"`
	MimeType string `json:"mimeType"`
	Size     int    `json:"size"`
}

// ResponseInterpreter turns raw responses into the structured output shape:
// decoded per the requested format, optionally wrapped in the full-response
// envelope, and binary payloads surfaced as artifacts.
type ResponseInterpreter struct{}

// Interpret decodes resp according to the spec's response options. The
// returned value is a map for object-shaped results; JSON arrays and the
// full-response envelope keep their natural shape.
func (ResponseInterpreter) Interpret(resp *Response, spec RequestSpec) (any, error) {
	format := spec.ResponseFormat
	if format == "" || format == FormatAutodetect {
		format = detectFormat(resp.Headers)
	}

	var (
		data     any
		artifact *BinaryArtifact
		err      error
	)
	switch format {
	case FormatJSON:
		data, err = decodeJSONBody(resp.Body)
		if err != nil {
			return nil, err
		}
	case FormatFile:
		artifact = binaryArtifact(resp, spec)
		data = artifact
	default:
		data = string(resp.Body)
	}

	if spec.FullResponse {
		return map[string]any{
			"status":     resp.StatusCode,
			"statusText": resp.StatusText,
			"headers":    flattenHeaders(resp.Headers),
			"data":       data,
		}, nil
	}

	if artifact != nil {
		return map[string]any{outputField(spec): artifact}, nil
	}
	if format == FormatText {
		return map[string]any{outputField(spec): data}, nil
	}

	// JSON results are returned as decoded: objects stay objects, arrays
	// stay arrays. Bare scalars still get wrapped so consumers always see
	// structured output.
	switch v := data.(type) {
	case map[string]any, []any:
		return v, nil
	default:
		return map[string]any{outputField(spec): v}, nil
	}
}

func decodeJSONBody(body []byte) (any, error) {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return nil, nil
	}
	var data any
	if err := json.Unmarshal([]byte(trimmed), &data); err != nil {
		return nil, wrapError(CodeInvalidJSONResponse, err,
			"response body is not valid JSON; set the response format to \"text\" to receive it as-is")
	}
	return data, nil
}

// detectFormat inspects Content-Type: JSON media types decode as JSON,
// text-like types as text, everything else is kept as a file.
func detectFormat(headers http.Header) ResponseFormat {
	contentType := headers.Get("Content-Type")
	if contentType == "" {
		return FormatText
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return FormatText
	}

	switch {
	case mediaType == "application/json" || strings.HasSuffix(mediaType, "+json"):
		return FormatJSON
	case strings.HasPrefix(mediaType, "text/"),
		mediaType == "application/xml",
		mediaType == "application/javascript",
		mediaType == "application/x-www-form-urlencoded",
		strings.HasSuffix(mediaType, "+xml"):
		return FormatText
	default:
		return FormatFile
	}
}

func binaryArtifact(resp *Response, spec RequestSpec) *BinaryArtifact {
	mimeType := "application/octet-stream"
	if ct := resp.Headers.Get("Content-Type"); ct != "" {
		if mediaType, _, err := mime.ParseMediaType(ct); err == nil {
			mimeType = mediaType
		}
	}
	return &BinaryArtifact{
		Data:     resp.Body,
		FileName: fileNameFor(resp, mimeType),
		MimeType: mimeType,
		Size:     len(resp.Body),
	}
}

// fileNameFor prefers the server-declared attachment name, falling back to
// the last URL path segment and finally a generic name.
func fileNameFor(resp *Response, mimeType string) string {
	if cd := resp.Headers.Get("Content-Disposition"); cd != "" {
		if _, params, err := mime.ParseMediaType(cd); err == nil {
			if name := params["filename"]; name != "" {
				return name
			}
		}
	}
	if resp.FinalURL != "" {
		if u, err := url.Parse(resp.FinalURL); err == nil {
			if segment := path.Base(u.Path); segment != "." && segment != "/" {
				return segment
			}
		}
	}
	if exts, err := mime.ExtensionsByType(mimeType); err == nil && len(exts) > 0 {
		return "response" + exts[0]
	}
	return "response"
}

func flattenHeaders(headers http.Header) map[string]string {
	flat := make(map[string]string, len(headers))
	for name, values := range headers {
		flat[strings.ToLower(name)] = strings.Join(values, ", ")
	}
	return flat
}

func outputField(spec RequestSpec) string {
	if spec.OutputFieldName != "" {
		return spec.OutputFieldName
	}
	return DefaultOutputField
}
