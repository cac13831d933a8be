package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"questbot.io/questbot/pkg/errors"
	"questbot.io/questbot/pkg/log"
	"questbot.io/questbot/pkg/log/meta"
)

// RequestIDHeader carries the request id back to the caller.
const RequestIDHeader = "X-Request-Id"

type requestIDKey struct{}

type httpInfo struct {
	RequestID     string            `json:"request_id"`
	Headers       map[string]string `json:"headers,omitempty"`
	Method        string            `json:"method"`
	Path          string            `json:"path"`
	RemoteAddr    string            `json:"remote_addr,omitempty"`
	Status        int               `json:"status"`
	ExecutionTime string            `json:"execution_time"`
}

func (i *httpInfo) String() string {
	return fmt.Sprintf("%s %s %d %s request_id=%s remote=%s",
		i.Method, i.Path, i.Status, i.ExecutionTime, i.RequestID, i.RemoteAddr)
}

// RecoveredHTTPLog logs every request with its status and latency and turns handler panics
// into a reported error plus a 500 response.
func RecoveredHTTPLog() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		rctx := meta.Begin(ctx.Request.Context())
		requestID := ctx.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		meta.WithValue(rctx, requestIDKey{}, requestID)
		ctx.Request = ctx.Request.WithContext(rctx)
		ctx.Header(RequestIDHeader, requestID)

		start := time.Now()
		defer func() {
			if r := recover(); r != nil {
				log.Error(errors.ErrorfAndReport("http handler panic: %v", r))
				if !ctx.Writer.Written() {
					ctx.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"msg": "Server internal error"})
				}
			}
			logHTTP(ctx, requestID, start)
		}()
		ctx.Next()
	}
}

// RequestID returns the id stamped by RecoveredHTTPLog, if any.
func RequestID(ctx context.Context) string {
	if id, ok := meta.Value(ctx, requestIDKey{}).(string); ok {
		return id
	}
	return ""
}

const defaultRequestTimeout = time.Second * 60

// TimeoutHTTP HTTP超时拦截器
func TimeoutHTTP(timeout ...time.Duration) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		d := defaultRequestTimeout
		if len(timeout) != 0 && timeout[0] > 0 {
			d = timeout[0]
		}
		timeoutCtx, cancelFunc := context.WithTimeout(ctx.Request.Context(), d)
		defer cancelFunc()
		ctx.Request = ctx.Request.WithContext(timeoutCtx)
		ctx.Next()
	}
}

func logHTTP(ctx *gin.Context, requestID string, start time.Time) {
	info := &httpInfo{
		RequestID:     requestID,
		Headers:       requestHeaderFilter(ctx.Request.Header),
		Method:        ctx.Request.Method,
		Path:          ctx.Request.URL.Path,
		RemoteAddr:    ctx.ClientIP(),
		Status:        ctx.Writer.Status(),
		ExecutionTime: fmt.Sprintf("%vms", time.Since(start).Milliseconds()),
	}
	switch {
	case info.Status >= http.StatusInternalServerError:
		log.Error(info)
	case info.Status >= http.StatusBadRequest:
		log.Warn(info)
	default:
		log.Debug(info)
	}
}

var excludedHeaders = map[string]bool{
	"authorization": true,
	"cookie":        true,
	"token":         true,
	"access-token":  true,
}

func requestHeaderFilter(headers map[string][]string) map[string]string {
	filtered := make(map[string]string)
	for k, v := range headers {
		k = strings.ToLower(k)
		if excludedHeaders[k] {
			continue
		}
		filtered[k] = strings.Join(v, ";")
	}
	return filtered
}
