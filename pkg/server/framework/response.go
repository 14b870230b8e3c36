package framework

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// InvalidRequest is the error code of request errors that carry no protocol code of their own.
const InvalidRequest = "invalid_request"

// Respond convert a Go value to JSON and sends it to the client.
func Respond(c *gin.Context, data any, statusCode int) {
	// if there's no payload to marshal, set the status code of the response and return
	if statusCode == http.StatusNoContent || data == nil {
		c.Status(statusCode)
		return
	}

	c.JSON(statusCode, data)
}

// RespondError sends an error response back to the client. If the error is a `SafeError`,
// the error message and fields are sent back to the client. If the error is not a
// `SafeError`, a generic error message is sent back to the client.
func RespondError(c *gin.Context, err error) {
	// if the cause of the error provided is a `SafeError`, construct an ErrorResponse
	// using the contents of SafeError and send it back to the client
	var webErr *SafeError
	if ok := errors.As(err, &webErr); ok {
		er := ErrorResponse{
			Error:            InvalidRequest,
			ErrorDescription: webErr.Err.Error(),
			Fields:           webErr.Fields,
		}
		Respond(c, er, webErr.StatusCode)
		return
	}

	// if the error isn't a `SafeError`, it's not safe to send back the error
	// message as is because it may contain sensitive data. Send back a generic
	// 500.
	er := ErrorResponse{
		Error: http.StatusText(http.StatusInternalServerError),
	}

	Respond(c, er, http.StatusInternalServerError)
}

// LoggingRespondErrMsg logs the message and responds with it as a safe error
func LoggingRespondErrMsg(c *gin.Context, errMsg string, statusCode int) {
	logrus.Error(errMsg)
	RespondError(c, NewRequestError(errors.New(errMsg), statusCode))
}

// LoggingRespondErrWithMsg logs the error with the message and responds with the message as a safe error
func LoggingRespondErrWithMsg(c *gin.Context, err error, errMsg string, statusCode int) {
	logrus.WithError(err).Error(errMsg)
	RespondError(c, NewRequestError(errors.Wrap(err, errMsg), statusCode))
}
