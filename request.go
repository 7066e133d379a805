// SPDX-FileCopyrightText: 2025 FunTW <dev@funtw.io>
//
// SPDX-License-Identifier: MIT

package httpsoverproxy

import (
	"io"
	"strings"
)

// Defaults applied by withDefaults. Callers only set what they care about.
const (
	DefaultTimeoutMs      = 30000
	DefaultMaxRedirects   = 21
	DefaultProxyPort      = 8080
	DefaultOutputField    = "data"
	DefaultMaxSockets     = 50
	DefaultMaxFreeSockets = 10
)

// RequestSpec is the complete declarative description of one outbound call.
type RequestSpec struct {
	Method  string            `yaml:"method" json:"method"`
	URL     string            `yaml:"url" json:"url"`
	Headers map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
	Query   map[string]string `yaml:"query,omitempty" json:"query,omitempty"`
	Body    *BodySpec         `yaml:"body,omitempty" json:"body,omitempty"`
	Auth    *AuthSpec         `yaml:"auth,omitempty" json:"auth,omitempty"`
	Proxy   *ProxySpec        `yaml:"proxy,omitempty" json:"proxy,omitempty"`

	TLS      TLSSpec      `yaml:"tls,omitempty" json:"tls,omitempty"`
	Redirect RedirectSpec `yaml:"redirect,omitempty" json:"redirect,omitempty"`

	TimeoutMs  int  `yaml:"timeoutMs,omitempty" json:"timeoutMs,omitempty"`
	NeverError bool `yaml:"neverError,omitempty" json:"neverError,omitempty"`

	// LowercaseHeaders folds caller-supplied header names to lower case
	// before they are applied. Case-insensitivity is a policy, not inherent.
	LowercaseHeaders *bool `yaml:"lowercaseHeaders,omitempty" json:"lowercaseHeaders,omitempty"`

	ResponseFormat  ResponseFormat `yaml:"responseFormat,omitempty" json:"responseFormat,omitempty"`
	FullResponse    bool           `yaml:"fullResponse,omitempty" json:"fullResponse,omitempty"`
	OutputFieldName string         `yaml:"outputFieldName,omitempty" json:"outputFieldName,omitempty"`

	// AllowInternalNetworkAccess disables the SSRF guard. Explicit,
	// auditable opt-in.
	AllowInternalNetworkAccess bool `yaml:"allowInternalNetworkAccess,omitempty" json:"allowInternalNetworkAccess,omitempty"`

	Pagination *PaginationSpec `yaml:"pagination,omitempty" json:"pagination,omitempty"`
	Pool       PoolSpec        `yaml:"pool,omitempty" json:"pool,omitempty"`
}

// ResponseFormat selects how the raw response body is decoded.
type ResponseFormat string

const (
	FormatAutodetect ResponseFormat = "autodetect"
	FormatJSON       ResponseFormat = "json"
	FormatText       ResponseFormat = "text"
	FormatFile       ResponseFormat = "file"
)

// BodyKind discriminates the body representation. Exactly one is active.
type BodyKind string

const (
	BodyJSON      BodyKind = "json"
	BodyForm      BodyKind = "form-urlencoded"
	BodyMultipart BodyKind = "multipart-form-data"
	BodyBinary    BodyKind = "binaryData"
	BodyRaw       BodyKind = "raw"
)

// BodySpec describes the request body. The fields used depend on Kind:
// JSON uses JSON (object) or, when empty, RawText parsed as a JSON blob;
// Form uses Form; Multipart uses Parts; Binary uses BinaryField; Raw uses
// RawText plus ContentType.
type BodySpec struct {
	Kind BodyKind `yaml:"kind" json:"kind"`

	JSON  map[string]any    `yaml:"json,omitempty" json:"json,omitempty"`
	Form  map[string]string `yaml:"form,omitempty" json:"form,omitempty"`
	Parts []MultipartPart   `yaml:"parts,omitempty" json:"parts,omitempty"`

	// BinaryField names the binary payload to fetch from the BinaryProvider.
	BinaryField string `yaml:"binaryField,omitempty" json:"binaryField,omitempty"`

	RawText     string `yaml:"rawText,omitempty" json:"rawText,omitempty"`
	ContentType string `yaml:"contentType,omitempty" json:"contentType,omitempty"`
}

// MultipartPart is one part of a multipart body: a literal value or a
// reference to a binary payload streamed from the BinaryProvider.
type MultipartPart struct {
	Name        string `yaml:"name" json:"name"`
	Value       string `yaml:"value,omitempty" json:"value,omitempty"`
	BinaryField string `yaml:"binaryField,omitempty" json:"binaryField,omitempty"`
}

// AuthKind discriminates the authentication variant.
type AuthKind string

const (
	AuthNone       AuthKind = "none"
	AuthBasic      AuthKind = "basic"
	AuthBearer     AuthKind = "bearer"
	AuthHeader     AuthKind = "header"
	AuthQuery      AuthKind = "query"
	AuthCustom     AuthKind = "custom"
	AuthPredefined AuthKind = "predefinedCredentialType"
)

// AuthSpec configures request authentication.
type AuthSpec struct {
	Kind AuthKind `yaml:"kind" json:"kind"`

	// basic
	Username string `yaml:"username,omitempty" json:"username,omitempty"`
	Password string `yaml:"password,omitempty" json:"password,omitempty"`

	// bearer
	Token string `yaml:"token,omitempty" json:"token,omitempty"`

	// header / query
	Name  string `yaml:"name,omitempty" json:"name,omitempty"`
	Value string `yaml:"value,omitempty" json:"value,omitempty"`

	// custom: extra headers, query additions and a body fragment merged
	// later-wins into an object body.
	Headers map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
	Query   map[string]string `yaml:"query,omitempty" json:"query,omitempty"`
	Body    map[string]any    `yaml:"body,omitempty" json:"body,omitempty"`

	// predefined: opaque credential type resolved by the CredentialSource.
	CredentialType string `yaml:"credentialType,omitempty" json:"credentialType,omitempty"`
}

// ProxySpec points the request at an HTTP(S) forward proxy.
type ProxySpec struct {
	URL      string     `yaml:"url" json:"url"`
	Auth     *ProxyAuth `yaml:"auth,omitempty" json:"auth,omitempty"`
}

type ProxyAuth struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

type TLSSpec struct {
	// AllowUnauthorizedCerts disables certificate verification for this
	// request's transport only, never process-wide.
	AllowUnauthorizedCerts bool `yaml:"allowUnauthorizedCerts,omitempty" json:"allowUnauthorizedCerts,omitempty"`
}

type RedirectSpec struct {
	Follow       *bool `yaml:"follow,omitempty" json:"follow,omitempty"`
	MaxRedirects int   `yaml:"maxRedirects,omitempty" json:"maxRedirects,omitempty"`
}

// PoolSpec tunes the pooled transport used for this request.
type PoolSpec struct {
	KeepAlive      *bool `yaml:"keepAlive,omitempty" json:"keepAlive,omitempty"`
	MaxSockets     int   `yaml:"maxSockets,omitempty" json:"maxSockets,omitempty"`
	MaxFreeSockets int   `yaml:"maxFreeSockets,omitempty" json:"maxFreeSockets,omitempty"`
}

// PaginationMode governs how the next page request is derived.
type PaginationMode string

const (
	PaginationOff             PaginationMode = "off"
	PaginationUpdateParameter PaginationMode = "updateParameterEachRequest"
	PaginationNextURL         PaginationMode = "responseContainsNextURL"
)

// ParamSlot is where an updated pagination parameter is written.
type ParamSlot string

const (
	SlotQuery  ParamSlot = "query"
	SlotHeader ParamSlot = "header"
	SlotBody   ParamSlot = "body"
)

// PaginationParam updates one request parameter between pages. Value may be
// a literal or an expression over {response, pageCount, request}.
type PaginationParam struct {
	Slot  ParamSlot `yaml:"slot" json:"slot"`
	Name  string    `yaml:"name" json:"name"`
	Value string    `yaml:"value" json:"value"`
}

// CompletionPolicy decides when the page loop stops.
type CompletionPolicy string

const (
	CompleteOnEmptyResponse CompletionPolicy = "responseIsEmpty"
	CompleteOnStatusCodes   CompletionPolicy = "receiveSpecificStatusCodes"
	CompleteOnPredicate     CompletionPolicy = "customPredicate"
)

// PaginationSpec governs the page loop.
type PaginationSpec struct {
	Mode       PaginationMode    `yaml:"mode" json:"mode"`
	Parameters []PaginationParam `yaml:"parameters,omitempty" json:"parameters,omitempty"`

	// NextURL is a jq selector evaluated against the prior page
	// {body, headers, statusCode}. Empty result ends the loop.
	NextURL string `yaml:"nextUrl,omitempty" json:"nextUrl,omitempty"`

	CompleteWhen        CompletionPolicy `yaml:"completeWhen,omitempty" json:"completeWhen,omitempty"`
	StatusCodesComplete []int            `yaml:"statusCodesComplete,omitempty" json:"statusCodesComplete,omitempty"`
	CompleteExpression  string           `yaml:"completeExpression,omitempty" json:"completeExpression,omitempty"`

	// PageLimit, when > 0, halts the loop after exactly that many requests.
	PageLimit int `yaml:"pageLimit,omitempty" json:"pageLimit,omitempty"`

	// IntervalMs is a fixed delay between pages. IntervalExpression, when
	// set, is evaluated fresh each page and wins over IntervalMs.
	IntervalMs         int    `yaml:"intervalMs,omitempty" json:"intervalMs,omitempty"`
	IntervalExpression string `yaml:"intervalExpression,omitempty" json:"intervalExpression,omitempty"`
}

// BatchSpec throttles multi-item processing. Size -1 means all items in one
// batch; 0 is treated as 1.
type BatchSpec struct {
	Size           int  `yaml:"size,omitempty" json:"size,omitempty"`
	IntervalMs     int  `yaml:"intervalMs,omitempty" json:"intervalMs,omitempty"`
	ContinueOnFail bool `yaml:"continueOnFail,omitempty" json:"continueOnFail,omitempty"`

	Aggregation *AggregationSpec `yaml:"aggregation,omitempty" json:"aggregation,omitempty"`
}

// AggregationSpec folds per-item results into a single output.
type AggregationSpec struct {
	Type            AggregationType `yaml:"type" json:"type"`
	DeepMerge       bool            `yaml:"deepMerge,omitempty" json:"deepMerge,omitempty"`
	IncludeMetadata bool            `yaml:"includeMetadata,omitempty" json:"includeMetadata,omitempty"`
}

type AggregationType string

const (
	AggregateMerge   AggregationType = "merge"
	AggregateArray   AggregationType = "array"
	AggregateSummary AggregationType = "summary"
)

// BinaryData is a binary payload handed over by the host. Stream is
// preferred when present so large files are never buffered whole.
type BinaryData struct {
	Stream   io.ReadCloser
	Bytes    []byte
	FileName string
	MimeType string
	Size     int64
}

// BinaryProvider resolves named binary payloads for multipart and binary
// bodies. The host owns file I/O; this package only consumes it.
type BinaryProvider interface {
	Binary(field string) (*BinaryData, error)
}

// CredentialSource resolves opaque predefined-credential records.
type CredentialSource interface {
	Credentials(credentialType string) (map[string]any, error)
}

// OAuth1Signer signs requests when the resolved credential carries an
// oauth_token/oauth_token_secret pair. Signing itself is delegated, not
// reimplemented here.
type OAuth1Signer interface {
	Sign(method, rawURL string, creds map[string]any) (authorizationHeader string, err error)
}

func (s RequestSpec) withDefaults() RequestSpec {
	if s.Method == "" {
		s.Method = "GET"
	}
	s.Method = strings.ToUpper(s.Method)
	if s.TimeoutMs <= 0 {
		s.TimeoutMs = DefaultTimeoutMs
	}
	if s.Redirect.Follow == nil {
		follow := true
		s.Redirect.Follow = &follow
	}
	if s.Redirect.MaxRedirects <= 0 {
		s.Redirect.MaxRedirects = DefaultMaxRedirects
	}
	if s.ResponseFormat == "" {
		s.ResponseFormat = FormatAutodetect
	}
	if s.OutputFieldName == "" {
		s.OutputFieldName = DefaultOutputField
	}
	if s.Pool.KeepAlive == nil {
		keepAlive := true
		s.Pool.KeepAlive = &keepAlive
	}
	if s.Pool.MaxSockets <= 0 {
		s.Pool.MaxSockets = DefaultMaxSockets
	}
	if s.Pool.MaxFreeSockets <= 0 {
		s.Pool.MaxFreeSockets = DefaultMaxFreeSockets
	}
	return s
}

func (s RequestSpec) lowercaseHeaders() bool {
	// Default is true, matching how most HTTP tooling canonicalizes.
	return s.LowercaseHeaders == nil || *s.LowercaseHeaders
}
