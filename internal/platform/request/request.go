// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package request provides utilities for extracting data from HTTP requests.

It covers body decoding, credential extraction (bearer header and cookies),
and access to the authenticated identity, with consistent error values.
*/
package requestutil

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/taibuivan/authsvc/internal/platform/apperr"
	"github.com/taibuivan/authsvc/internal/platform/constants"
	"github.com/taibuivan/authsvc/internal/platform/ctxutil"
	"github.com/taibuivan/authsvc/internal/platform/sec"
	"github.com/taibuivan/authsvc/internal/platform/validate"
)

// maxBodyBytes caps credential payloads; nothing this service accepts is larger.
const maxBodyBytes = 1 << 16

/*
DecodeJSON reads the request body and decodes it into the target structure.

An empty body decodes to the zero value so optional payloads (e.g. a refresh
token carried by cookie) do not fail.

Returns:
  - error: validate.ErrInvalidJSON if decoding fails, otherwise nil
*/
func DecodeJSON(request *http.Request, target any) error {
	if request.Body == nil {
		return nil
	}
	body := io.LimitReader(request.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(target); err != nil && !errors.Is(err, io.EOF) {
		return validate.ErrInvalidJSON
	}
	return nil
}

/*
BearerToken returns the token from an "Authorization: Bearer <token>" header.

The scheme comparison is case-insensitive. It returns "" when the header is
absent or malformed.
*/
func BearerToken(request *http.Request) string {
	header := request.Header.Get(constants.HeaderAuthorization)
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, constants.AuthorizationScheme) {
		return ""
	}
	return strings.TrimSpace(token)
}

/*
Cookie returns the value of the named cookie, or "" if it is not set.
*/
func Cookie(request *http.Request, name string) string {
	cookie, err := request.Cookie(name)
	if err != nil {
		return ""
	}
	return cookie.Value
}

/*
Claims extracts the authenticated user claims from the request context.

Returns nil if the request is not authenticated.
*/
func Claims(request *http.Request) *sec.AuthClaims {
	return ctxutil.GetAuthUser(request.Context())
}

/*
RequiredUserID returns the User ID of the currently authenticated user.

Returns:
  - string: User UUID
  - error: apperr.Unauthorized if not authenticated
*/
func RequiredUserID(request *http.Request) (string, error) {
	claims := Claims(request)
	if claims == nil || claims.UserID() == "" {
		return "", apperr.Unauthorized("Authentication required")
	}
	return claims.UserID(), nil
}
