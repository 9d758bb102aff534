package api

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type errorResponse struct {
	Code    int64  `json:"code"`
	Message string `json:"message"`
}

// Machine-readable error codes. Lookup failures deliberately share the same
// generic human message so valid codes cannot be enumerated by probing; the
// numeric code and HTTP status still distinguish them for the client UI.
var (
	errorInternalServer    = errorResponse{1000, "internal server error"}
	errorInvalidParameters = errorResponse{1001, "invalid parameters"}
	errorUnauthorized      = errorResponse{1002, "authorization required"}
	errorForbidden         = errorResponse{1003, "operation not allowed"}
	errorNotFound          = errorResponse{1004, "not found"}

	errorInvalidConsentCode    = errorResponse{1100, "invalid or expired code"}
	errorConsentLinkExpired    = errorResponse{1101, "invalid or expired code"}
	errorConsentAlreadyUsed    = errorResponse{1102, "this request has already been processed"}
	errorSignatureInputMissing = errorResponse{1103, "signer name and final confirmation are required"}
	errorEmailMismatch         = errorResponse{1104, "parent email does not match our records"}
	errorConsentNotApproved    = errorResponse{1105, "consent is not in an approved state"}

	errorInsufficientBalance = errorResponse{1200, "insufficient token balance"}
	errorClaimCodeInvalid    = errorResponse{1201, "invalid or exhausted claim code"}

	errorTooManyRequests = errorResponse{1300, "too many requests"}
)

func abortWithEncoding(c *gin.Context, code int, resp errorResponse, errors ...error) {
	for _, err := range errors {
		c.Error(err)
		log.WithFields(logrus.Fields{
			"prefix": "api",
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
			"code":   resp.Code,
		}).WithError(err).Error("request aborted")
	}

	c.AbortWithStatusJSON(code, resp)
}
