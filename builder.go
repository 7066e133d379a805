// SPDX-FileCopyrightText: 2025 FunTW <dev@funtw.io>
//
// SPDX-License-Identifier: MIT

package httpsoverproxy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
)

// pageOverrides carries per-page replacements from the pagination driver.
// Overrides always win over the base spec for the slots they fill.
type pageOverrides struct {
	url     string
	query   map[string]string
	headers map[string]string
	body    map[string]any
}

// builtRequest is a fully resolved transport request plus the agent
// configuration the executor should dispatch it through.
type builtRequest struct {
	req      *http.Request
	agentCfg AgentConfig
	spec     RequestSpec
}

// RequestBuilder turns a RequestSpec into a transport request: merged query
// string, layered auth headers, body payload and the pooled-agent key.
type RequestBuilder struct {
	binaries BinaryProvider
	creds    CredentialSource
	signer   OAuth1Signer
}

func NewRequestBuilder() *RequestBuilder {
	return &RequestBuilder{}
}

func (b *RequestBuilder) SetBinaryProvider(p BinaryProvider)     { b.binaries = p }
func (b *RequestBuilder) SetCredentialSource(s CredentialSource) { b.creds = s }
func (b *RequestBuilder) SetOAuth1Signer(s OAuth1Signer)         { b.signer = s }

// BuildRequest assembles one outbound request. Authentication is layered in
// a fixed order: base headers, then the auth variant, then pagination
// overrides, with Proxy-Authorization appended last so nothing can clobber it.
func (b *RequestBuilder) BuildRequest(ctx context.Context, spec RequestSpec, ov *pageOverrides) (*builtRequest, error) {
	spec = spec.withDefaults()

	rawURL := spec.URL
	if ov != nil && ov.url != "" {
		rawURL = ov.url
	}

	if err := GuardTarget(rawURL, spec.AllowInternalNetworkAccess); err != nil {
		return nil, err
	}

	target, err := url.Parse(rawURL)
	if err != nil {
		return nil, newError(CodeInvalidURL, "invalid URL: %s", rawURL)
	}

	var proxy *ProxyEndpoint
	if spec.Proxy != nil && strings.TrimSpace(spec.Proxy.URL) != "" {
		ep, err := ResolveProxyURL(spec.Proxy.URL)
		if err != nil {
			return nil, err
		}
		if spec.Proxy.Auth != nil {
			ep.Username = spec.Proxy.Auth.Username
			ep.Password = spec.Proxy.Auth.Password
		}
		proxy = &ep
	}

	draft := &requestDraft{
		method:    spec.Method,
		rawURL:    rawURL,
		headers:   make(map[string]string, len(spec.Headers)+4),
		query:     target.Query(),
		lowercase: spec.lowercaseHeaders(),
	}

	// 1. Base headers.
	for name, value := range spec.Headers {
		draft.setHeader(name, value)
	}

	// 2. Query mapping from the spec.
	for name, value := range spec.Query {
		if strings.TrimSpace(name) != "" {
			draft.query.Set(name, value)
		}
	}

	// 3. Auth variant.
	auth, err := NewAuthenticator(spec.Auth, b.creds, b.signer)
	if err != nil {
		return nil, err
	}
	if err := auth.Apply(draft); err != nil {
		return nil, err
	}

	// 4. Pagination overrides replace fixed slots.
	if ov != nil {
		for name, value := range ov.query {
			draft.query.Set(name, value)
		}
		for name, value := range ov.headers {
			draft.setHeader(name, value)
		}
	}

	// 5. Body. The custom-auth fragment and pagination body overrides merge
	// later-wins into object bodies.
	body, err := b.buildBody(spec, draft, ov)
	if err != nil {
		return nil, err
	}

	target.RawQuery = draft.query.Encode()

	req, err := http.NewRequestWithContext(ctx, spec.Method, target.String(), body.reader)
	if err != nil {
		return nil, fmt.Errorf("error creating HTTP request: %w", err)
	}
	for name, value := range draft.headers {
		if draft.lowercase {
			// Direct assignment skips Go's MIME canonicalization so the
			// lowercase policy survives onto the wire.
			req.Header[name] = []string{value}
		} else {
			req.Header.Set(name, value)
		}
	}
	if body.contentType != "" && !hasHeader(draft.headers, "Content-Type") {
		req.Header.Set("Content-Type", body.contentType)
	}
	if body.contentLength > 0 {
		req.ContentLength = body.contentLength
	}

	// 6. Proxy-Authorization is appended last; auth variants must not
	// overwrite it and vice versa.
	if proxy != nil && proxy.hasAuth() {
		req.Header.Set("Proxy-Authorization", basicAuthHeader(proxy.Username, proxy.Password))
	}

	return &builtRequest{
		req:      req,
		agentCfg: agentConfigFor(spec, target, proxy),
		spec:     spec,
	}, nil
}

func agentConfigFor(spec RequestSpec, target *url.URL, proxy *ProxyEndpoint) AgentConfig {
	cfg := AgentConfig{
		TimeoutMs:          spec.TimeoutMs,
		KeepAlive:          *spec.Pool.KeepAlive,
		MaxSockets:         spec.Pool.MaxSockets,
		MaxFreeSockets:     spec.Pool.MaxFreeSockets,
		RejectUnauthorized: !spec.TLS.AllowUnauthorizedCerts,
	}
	switch {
	case proxy != nil:
		cfg.Kind = AgentProxy
		cfg.ProxyURL = proxy.URL().String()
	case target.Scheme == "https":
		cfg.Kind = AgentHTTPS
	default:
		cfg.Kind = AgentHTTP
	}
	return cfg
}

type builtBody struct {
	reader        io.Reader
	contentType   string
	contentLength int64
}

func (b *RequestBuilder) buildBody(spec RequestSpec, draft *requestDraft, ov *pageOverrides) (builtBody, error) {
	fragment := draft.bodyFragment
	var overrideBody map[string]any
	if ov != nil {
		overrideBody = ov.body
	}

	if spec.Body == nil {
		// No declared body; a custom-auth fragment or pagination body
		// override still produces a JSON body on its own.
		merged := mergeObjects(nil, fragment, overrideBody)
		if len(merged) == 0 {
			return builtBody{}, nil
		}
		return marshalJSONBody(merged)
	}

	switch spec.Body.Kind {
	case BodyJSON:
		base := spec.Body.JSON
		if base == nil && spec.Body.RawText != "" {
			if err := json.Unmarshal([]byte(spec.Body.RawText), &base); err != nil {
				return builtBody{}, newError(CodeInvalidJSON,
					"request body must be valid JSON: %v", err)
			}
		}
		return marshalJSONBody(mergeObjects(base, fragment, overrideBody))

	case BodyForm:
		form := url.Values{}
		for name, value := range spec.Body.Form {
			if strings.TrimSpace(name) != "" {
				form.Set(name, value)
			}
		}
		for name, value := range mergeObjects(nil, fragment, overrideBody) {
			form.Set(name, fmt.Sprint(value))
		}
		encoded := form.Encode()
		return builtBody{
			reader:        strings.NewReader(encoded),
			contentType:   "application/x-www-form-urlencoded",
			contentLength: int64(len(encoded)),
		}, nil

	case BodyMultipart:
		return b.buildMultipartBody(spec.Body.Parts)

	case BodyBinary:
		return b.buildBinaryBody(spec.Body)

	case BodyRaw:
		text := spec.Body.RawText
		// Later-wins merge applies to raw bodies too when they hold a JSON
		// object and a fragment is staged.
		merged := mergeObjects(nil, fragment, overrideBody)
		if len(merged) > 0 {
			var base map[string]any
			if text != "" {
				if err := json.Unmarshal([]byte(text), &base); err != nil {
					return builtBody{}, newError(CodeInvalidJSON,
						"cannot merge auth body into non-JSON raw body: %v", err)
				}
			}
			return marshalJSONBody(mergeObjects(base, merged))
		}
		return builtBody{
			reader:        strings.NewReader(text),
			contentType:   spec.Body.ContentType,
			contentLength: int64(len(text)),
		}, nil

	default:
		return builtBody{}, fmt.Errorf("unsupported body kind: %s", spec.Body.Kind)
	}
}

func marshalJSONBody(obj map[string]any) (builtBody, error) {
	if len(obj) == 0 {
		return builtBody{}, nil
	}
	data, err := json.Marshal(obj)
	if err != nil {
		return builtBody{}, newError(CodeInvalidJSON, "error encoding body params: %v", err)
	}
	return builtBody{
		reader:        bytes.NewReader(data),
		contentType:   "application/json",
		contentLength: int64(len(data)),
	}, nil
}

// buildMultipartBody streams parts through a pipe so binary payloads are
// never buffered whole. Binary fields are resolved eagerly so a missing
// field fails before any bytes are written.
func (b *RequestBuilder) buildMultipartBody(parts []MultipartPart) (builtBody, error) {
	type resolvedPart struct {
		MultipartPart
		data *BinaryData
	}

	resolved := make([]resolvedPart, 0, len(parts))
	for _, part := range parts {
		if strings.TrimSpace(part.Name) == "" {
			continue
		}
		rp := resolvedPart{MultipartPart: part}
		if part.BinaryField != "" {
			if b.binaries == nil {
				return builtBody{}, newError(CodeMissingRequiredField,
					"multipart part %q references binary field %q but no binary provider is configured", part.Name, part.BinaryField)
			}
			data, err := b.binaries.Binary(part.BinaryField)
			if err != nil || data == nil {
				return builtBody{}, newError(CodeMissingRequiredField,
					"binary field %q for multipart part %q is missing from the input item", part.BinaryField, part.Name)
			}
			rp.data = data
		}
		resolved = append(resolved, rp)
	}

	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)

	go func() {
		var failed error
		defer func() {
			if failed != nil {
				pw.CloseWithError(failed)
				return
			}
			if err := writer.Close(); err != nil {
				pw.CloseWithError(err)
				return
			}
			pw.Close()
		}()

		for _, part := range resolved {
			if part.data == nil {
				if failed = writer.WriteField(part.Name, part.Value); failed != nil {
					return
				}
				continue
			}

			header := make(textproto.MIMEHeader)
			header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%s; filename=%s`,
				strconv.Quote(part.Name), strconv.Quote(part.data.FileName)))
			if part.data.MimeType != "" {
				header.Set("Content-Type", part.data.MimeType)
			} else {
				header.Set("Content-Type", "application/octet-stream")
			}

			field, err := writer.CreatePart(header)
			if err != nil {
				failed = err
				return
			}
			if part.data.Stream != nil {
				_, failed = io.Copy(field, part.data.Stream)
				part.data.Stream.Close()
			} else {
				_, failed = field.Write(part.data.Bytes)
			}
			if failed != nil {
				return
			}
		}
	}()

	return builtBody{
		reader:      pr,
		contentType: writer.FormDataContentType(),
	}, nil
}

func (b *RequestBuilder) buildBinaryBody(body *BodySpec) (builtBody, error) {
	if body.BinaryField == "" {
		return builtBody{}, newError(CodeMissingRequiredField,
			"binary body requires an input data field name")
	}
	if b.binaries == nil {
		return builtBody{}, newError(CodeMissingRequiredField,
			"binary body references field %q but no binary provider is configured", body.BinaryField)
	}
	data, err := b.binaries.Binary(body.BinaryField)
	if err != nil || data == nil {
		return builtBody{}, newError(CodeMissingRequiredField,
			"binary field %q is missing from the input item", body.BinaryField)
	}

	contentType := data.MimeType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if data.Stream != nil {
		return builtBody{reader: data.Stream, contentType: contentType, contentLength: data.Size}, nil
	}
	return builtBody{
		reader:        bytes.NewReader(data.Bytes),
		contentType:   contentType,
		contentLength: int64(len(data.Bytes)),
	}, nil
}

// mergeObjects shallow-merges maps left to right, later keys winning.
func mergeObjects(base map[string]any, layers ...map[string]any) map[string]any {
	size := len(base)
	for _, l := range layers {
		size += len(l)
	}
	if size == 0 {
		return nil
	}
	merged := make(map[string]any, size)
	for k, v := range base {
		merged[k] = v
	}
	for _, layer := range layers {
		for k, v := range layer {
			merged[k] = v
		}
	}
	return merged
}

func canonicalHeaderName(name string, lowercase bool) string {
	if lowercase {
		return strings.ToLower(name)
	}
	return name
}

func hasHeader(headers map[string]string, name string) bool {
	for k := range headers {
		if strings.EqualFold(k, name) {
			return true
		}
	}
	return false
}
