package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/QAntum-Fortres/QANTUM-FRAMEWORK-PRIVATE-sub015/internal/bridge"
	"github.com/QAntum-Fortres/QANTUM-FRAMEWORK-PRIVATE-sub015/internal/tracing"
	"github.com/QAntum-Fortres/QANTUM-FRAMEWORK-PRIVATE-sub015/internal/utils"
)

// SendRequest is the body of POST /messages
type SendRequest struct {
	Type     string          `json:"type"`
	To       string          `json:"to"`
	Priority bridge.Priority `json:"priority"`
	Payload  any             `json:"payload"`
}

// BroadcastRequest is the body of POST /broadcast
type BroadcastRequest struct {
	Type     string          `json:"type"`
	Priority bridge.Priority `json:"priority"`
	Payload  any             `json:"payload"`
	TraceID  string          `json:"traceId"`
}

func validateMessage(msgType string, priority bridge.Priority, payload any) error {
	if err := utils.ValidateMessageType(msgType); err != nil {
		return err
	}
	if priority != "" && !priority.Valid() {
		return errors.New("priority must be one of low, normal, high, critical")
	}
	return utils.ValidatePayload(payload)
}

// SendMessage sends a message to the peer inside a "bridge.send" span. The
// span continues an inbound traceparent and its ids become the message's
// trace and span ids. Without ?wait the call follows Send semantics; with
// ?wait=<duration> it waits that long for a reply and answers with a null
// reply when none arrives.
func (h *Handlers) SendMessage(c *gin.Context) {
	var req SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}
	if err := validateMessage(req.Type, req.Priority, req.Payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	var wait time.Duration
	if raw := c.Query("wait"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "wait must be a positive duration"})
			return
		}
		wait = d
	}

	msg := &bridge.Message{
		To:       req.To,
		Type:     req.Type,
		Priority: req.Priority,
		Payload:  req.Payload,
	}
	res, err := h.tracedSend(c.Request.Context(), c.GetHeader(tracing.TraceparentHeader), msg, wait)
	c.Header(tracing.TraceparentHeader, tracing.FormatTraceparent(msg.TraceID, msg.SpanID))

	if err != nil {
		c.JSON(statusFor(err), gin.H{
			"success":    false,
			"error":      err.Error(),
			"message_id": msg.ID,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"message_id": msg.ID,
		"trace_id":   msg.TraceID,
		"span_id":    msg.SpanID,
		"queued":     res.Queued,
		"reply":      res.Reply,
	})
}

func (h *Handlers) tracedSend(ctx context.Context, traceparent string, msg *bridge.Message, wait time.Duration) (bridge.Result, error) {
	h.traceMu.Lock()
	defer h.traceMu.Unlock()

	attrs := map[string]string{
		"message.type": msg.Type,
		"node.id":      h.bridge.NodeID(),
	}
	if traceparent != "" {
		h.tracer.ContinueTrace(traceparent, "bridge.send", attrs)
	} else {
		h.tracer.StartTrace("bridge.send", attrs)
	}
	tc, _ := h.tracer.CurrentContext()
	msg.TraceID, msg.SpanID = tc.TraceID, tc.SpanID
	ctx = tracing.ContextWithTrace(ctx, tc)

	var (
		res bridge.Result
		err error
	)
	if wait > 0 {
		res.Reply, err = h.bridge.SendAndWaitForResponse(ctx, msg, wait)
	} else {
		res, err = h.bridge.Send(ctx, msg)
	}

	h.tracer.SetAttribute("message.id", msg.ID)
	switch {
	case err == nil:
		if res.Queued {
			h.tracer.AddEvent("message.queued", nil)
		}
		if res.Reply != nil {
			h.tracer.SetAttribute("reply.id", res.Reply.ID)
		}
		h.tracer.EndSpanWithStatus(tracing.StatusOK)
	case errors.Is(err, bridge.ErrMessageTimeout):
		h.tracer.SetStatus(tracing.StatusTimeout, err.Error())
		h.tracer.EndSpan()
	default:
		h.tracer.AddEvent("exception", map[string]any{"exception.message": err.Error()})
		h.tracer.SetStatus(tracing.StatusError, err.Error())
		h.tracer.EndSpan()
	}
	return res, err
}

// Broadcast sends an untracked message to every peer
func (h *Handlers) Broadcast(c *gin.Context) {
	var req BroadcastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}
	if err := validateMessage(req.Type, req.Priority, req.Payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	traceID := req.TraceID
	if traceID == "" {
		if tc, ok := tracing.TraceFromContext(ctx); ok {
			traceID = tc.TraceID
		}
	}

	if err := h.bridge.Broadcast(ctx, req.Type, req.Payload, traceID, req.Priority); err != nil {
		c.JSON(statusFor(err), gin.H{"success": false, "error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"state":   h.bridge.State(),
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, bridge.ErrMessageTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, bridge.ErrDuplicateRequest):
		return http.StatusConflict
	case errors.Is(err, bridge.ErrConnectionLost):
		return http.StatusBadGateway
	case errors.Is(err, bridge.ErrBridgeClosed),
		errors.Is(err, bridge.ErrNotConnected),
		errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
