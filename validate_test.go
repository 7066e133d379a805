// SPDX-FileCopyrightText: 2025 FunTW <dev@funtw.io>
//
// SPDX-License-Identifier: MIT

package httpsoverproxy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateSpecMinimal(t *testing.T) {
	errs := ValidateSpec(RequestSpec{URL: "https://api.example.com/items"})
	assert.Empty(t, errs)
}

func TestValidateSpecMissingURL(t *testing.T) {
	errs := ValidateSpec(RequestSpec{})
	require.Len(t, errs, 1)
	assert.Equal(t, "url", errs[0].Location)
}

func TestValidateSpecBadMethod(t *testing.T) {
	errs := ValidateSpec(RequestSpec{URL: "https://x.example.com", Method: "FETCH"})
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Message, "FETCH")
}

func TestValidateSpecAuthVariants(t *testing.T) {
	cases := []struct {
		name     string
		auth     AuthSpec
		location string
	}{
		{"basic without username", AuthSpec{Kind: AuthBasic}, "auth.username"},
		{"bearer without token", AuthSpec{Kind: AuthBearer}, "auth.token"},
		{"header without name", AuthSpec{Kind: AuthHeader, Value: "v"}, "auth.name"},
		{"query without name", AuthSpec{Kind: AuthQuery, Value: "v"}, "auth.name"},
		{"custom without content", AuthSpec{Kind: AuthCustom}, "auth"},
		{"predefined without type", AuthSpec{Kind: AuthPredefined}, "auth.credentialType"},
		{"unknown kind", AuthSpec{Kind: "magic"}, "auth.kind"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			spec := RequestSpec{URL: "https://x.example.com", Auth: &tc.auth}
			errs := ValidateSpec(spec)
			require.Len(t, errs, 1)
			assert.Equal(t, tc.location, errs[0].Location)
		})
	}
}

func TestValidateSpecProxyURL(t *testing.T) {
	spec := RequestSpec{URL: "https://x.example.com", Proxy: &ProxySpec{URL: "justahostname"}}
	errs := ValidateSpec(spec)
	require.Len(t, errs, 1)
	assert.Equal(t, "proxy.url", errs[0].Location)
}

func TestValidateSpecPaginationParamFailsFast(t *testing.T) {
	spec := RequestSpec{
		URL: "https://x.example.com",
		Pagination: &PaginationSpec{
			Mode:       PaginationUpdateParameter,
			Parameters: []PaginationParam{{Slot: SlotQuery, Name: "", Value: ""}},
			PageLimit:  5,
		},
	}
	errs := ValidateSpec(spec)
	locations := make([]string, 0, len(errs))
	for _, e := range errs {
		locations = append(locations, e.Location)
	}
	assert.Contains(t, locations, "pagination.parameters[0].name")
	assert.Contains(t, locations, "pagination.parameters[0].value")
}

func TestValidateSpecPaginationNeedsTermination(t *testing.T) {
	spec := RequestSpec{
		URL: "https://x.example.com",
		Pagination: &PaginationSpec{
			Mode:       PaginationUpdateParameter,
			Parameters: []PaginationParam{{Slot: SlotQuery, Name: "page", Value: "{{ pageCount + 1 }}"}},
		},
	}
	errs := ValidateSpec(spec)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Message, "completeWhen or pageLimit")
}

func TestValidateSpecPaginationCompletionRequirements(t *testing.T) {
	spec := RequestSpec{
		URL: "https://x.example.com",
		Pagination: &PaginationSpec{
			Mode:         PaginationNextURL,
			NextURL:      ".body.next",
			CompleteWhen: CompleteOnStatusCodes,
		},
	}
	errs := ValidateSpec(spec)
	require.Len(t, errs, 1)
	assert.Equal(t, "pagination.statusCodesComplete", errs[0].Location)

	spec.Pagination.CompleteWhen = CompleteOnPredicate
	errs = ValidateSpec(spec)
	require.Len(t, errs, 1)
	assert.Equal(t, "pagination.completeExpression", errs[0].Location)
}

func TestValidateSpecMultipartParts(t *testing.T) {
	spec := RequestSpec{
		URL: "https://x.example.com",
		Body: &BodySpec{
			Kind:  BodyMultipart,
			Parts: []MultipartPart{{Name: "", Value: "v"}},
		},
	}
	errs := ValidateSpec(spec)
	require.Len(t, errs, 1)
	assert.Equal(t, "body.parts[0].name", errs[0].Location)
}

func TestValidationErrorString(t *testing.T) {
	e := ValidationError{Message: "url is required", Location: "url"}
	assert.Equal(t, "url: url is required", e.Error())
	assert.Equal(t, "bare", ValidationError{Message: "bare"}.Error())
}
