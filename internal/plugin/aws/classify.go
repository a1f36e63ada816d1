package aws

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	"github.com/aws/smithy-go"

	"github.com/yairfalse/kartta/pkg/resource"
)

var authErrorCodes = map[string]struct{}{
	"AccessDenied":                {},
	"AccessDeniedException":       {},
	"AuthFailure":                 {},
	"AuthorizationError":          {},
	"UnauthorizedOperation":       {},
	"UnrecognizedClientException": {},
	"InvalidClientTokenId":        {},
	"ExpiredToken":                {},
	"ExpiredTokenException":       {},
	"InvalidAccessKeyId":          {},
	"SignatureDoesNotMatch":       {},
	"MissingAuthenticationToken":  {},
	"IncompleteSignature":         {},
}

var regionErrorCodes = map[string]struct{}{
	"OptInRequired":                {},
	"InvalidRegion":                {},
	"UnsupportedOperation":         {},
	"AuthorizationHeaderMalformed": {},
}

// credential chain failures surface as plain wrapped errors
var credentialMessages = []string{
	"failed to refresh cached credentials",
	"failed to retrieve credentials",
	"no EC2 IMDS role found",
	"get identity: get credentials",
}

// classify maps an SDK error to the scan error taxonomy.
func classify(op string, err error) *resource.Error {
	if err == nil {
		return nil
	}

	var classified *resource.Error
	if errors.As(err, &classified) {
		return classified
	}

	kind := classifyKind(err)
	return resource.NewError(kind, op, err)
}

func classifyKind(err error) resource.ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return resource.ErrKindTimeout
	}

	var missingRegion *aws.MissingRegionError
	if errors.As(err, &missingRegion) {
		return resource.ErrKindConfiguration
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		if _, ok := retry.DefaultThrottleErrorCodes[code]; ok {
			return resource.ErrKindThrottled
		}
		if _, ok := authErrorCodes[code]; ok {
			return resource.ErrKindAuth
		}
		if _, ok := regionErrorCodes[code]; ok {
			return resource.ErrKindRegionUnavailable
		}
	}

	var deser *smithy.DeserializationError
	if errors.As(err, &deser) {
		return resource.ErrKindMalformedResponse
	}

	var notFound *aws.EndpointNotFoundError
	if errors.As(err, &notFound) {
		return resource.ErrKindRegionUnavailable
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return resource.ErrKindRegionUnavailable
	}

	var status interface{ HTTPStatusCode() int }
	if errors.As(err, &status) {
		switch status.HTTPStatusCode() {
		case http.StatusUnauthorized, http.StatusForbidden:
			return resource.ErrKindAuth
		case http.StatusTooManyRequests:
			return resource.ErrKindThrottled
		}
	}

	msg := err.Error()
	for _, m := range credentialMessages {
		if strings.Contains(msg, m) {
			return resource.ErrKindAuth
		}
	}

	return resource.ErrKindInternal
}

var notFoundCodes = map[string]struct{}{
	"ResourceNotFoundException": {},
	"ClusterNotFound":           {},
	"NotFoundException":         {},
	"NoSuchBucket":              {},
}

// isNotFound reports whether a describe call raced a deletion.
func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	_, ok := notFoundCodes[apiErr.ErrorCode()]
	return ok
}
